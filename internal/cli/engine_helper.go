package cli

import (
	"context"
	"fmt"

	"github.com/doclatex/doclatex/internal/artifact"
	"github.com/doclatex/doclatex/internal/config"
	"github.com/doclatex/doclatex/internal/core"
)

// configPath returns the --config path or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file and applies flag overrides.
// Priority: flags > environment > config file > token file > defaults
func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if apiBaseURL != "" {
		cfg.BaseURL = apiBaseURL
	}
	tokenPath, _ := config.DefaultTokenPath()
	cfg.APIKey, apiKeySource = config.ResolveAPIKey(apiKey, cfg, tokenPath)
	return cfg, nil
}

// newEngine builds the engine for one command. progress may be nil.
func newEngine(ctx context.Context, cfg *config.Config, progress artifact.ProgressReporter) (*core.Engine, error) {
	engine, err := core.NewEngine(ctx, cfg, core.Options{
		Logger:   GetLogger(),
		Progress: progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start client: %w", err)
	}
	return engine, nil
}
