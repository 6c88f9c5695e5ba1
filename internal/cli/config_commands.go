package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/doclatex/doclatex/internal/config"
	"github.com/doclatex/doclatex/internal/identity"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage doclatex configuration",
		Long: `Configuration management commands for doclatex.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path
  token - Store the API key in the token file`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())
	configCmd.AddCommand(newConfigTokenCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for doclatex.

The configuration will be saved to ~/.config/doclatex/config

Use --force to overwrite existing configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := runConfigWizard(newPrompter(cmd.InOrStdin(), out), out)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfig(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			fmt.Fprintln(out, "Check the service with: doclatex health")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// runConfigWizard asks for the common settings on top of the defaults.
func runConfigWizard(p *prompter, out io.Writer) (*config.Config, error) {
	cfg := config.NewConfig()

	fmt.Fprintln(out, "doclatex Configuration Setup")
	fmt.Fprintln(out, "============================")
	fmt.Fprintln(out)

	cfg.BaseURL = p.String("Service URL", cfg.BaseURL)
	cfg.APIKey = p.String("API key (optional)", "")
	cfg.TimeoutSeconds = p.Int("Conversion timeout in seconds", cfg.TimeoutSeconds)
	cfg.DefaultTemplate = p.String("Default template", cfg.DefaultTemplate)
	cfg.OutputDir = p.String("Archive output directory", cfg.OutputDir)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "History (recorded only when a user is set)")
	fmt.Fprintln(out, "------------------------------------------")
	defUser := ""
	if id, err := identity.FromConfig("", true).CurrentUser(context.Background()); err == nil {
		defUser = id
	}
	cfg.UserID = p.String("User id", defUser)
	cfg.History.Backend = p.Choice("History backend", cfg.History.Backend, []string{"none", "memory", "sqlite", "postgres", "firestore"})
	switch cfg.History.Backend {
	case "sqlite":
		cfg.History.SQLitePath = p.String("SQLite file", cfg.History.SQLitePath)
	case "postgres":
		cfg.History.PostgresDSN = p.String("PostgreSQL DSN", "")
	case "firestore":
		cfg.History.FirestoreProject = p.String("Firestore project", "")
		cfg.History.FirestoreCollection = p.String("Firestore collection", cfg.History.FirestoreCollection)
	}

	fmt.Fprintln(out)
	if p.Confirm("Configure proxy?", false) {
		cfg.ProxyMode = p.Choice("Proxy mode", "system", []string{"no-proxy", "system", "basic", "ntlm"})
		if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
			cfg.ProxyHost = p.String("Proxy host", "")
			cfg.ProxyPort = p.Int("Proxy port", cfg.ProxyPort)
			cfg.ProxyUser = p.String("Proxy user", "")
		}
	}

	cfg.NotificationsEnabled = p.Confirm("Desktop notifications?", true)
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/doclatex/config)
  2. Environment variables (DOCLATEX_API_URL, DOCLATEX_API_KEY, ...)
  3. Command-line flags (--api-key, --api-url)

Priority: flags > environment > config file > defaults`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path, _ := configPath()
			printConfig(cmd.OutOrStdout(), cfg, path)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Service:")
	fmt.Fprintf(w, "  Base URL:    %s\n", cfg.BaseURL)
	if apiKeySource != "" {
		fmt.Fprintf(w, "  API Key:     %s from %s\n", secretState(cfg.APIKey), apiKeySource)
	} else {
		fmt.Fprintf(w, "  API Key:     %s\n", secretState(cfg.APIKey))
	}
	fmt.Fprintf(w, "  Timeout:     %s\n", cfg.ConvertTimeout())
	fmt.Fprintf(w, "  Max Retries: %d (GET/DELETE only)\n", cfg.MaxRetries)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Conversion:")
	fmt.Fprintf(w, "  Default Template: %s\n", cfg.DefaultTemplate)
	fmt.Fprintf(w, "  Output Dir:       %s\n", cfg.OutputDir)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "History:")
	user := cfg.UserID
	if user == "" {
		user = "<not set, history disabled>"
	}
	fmt.Fprintf(w, "  User:    %s\n", user)
	fmt.Fprintf(w, "  Backend: %s\n", cfg.History.Backend)
	switch cfg.History.Backend {
	case "sqlite":
		fmt.Fprintf(w, "  File:    %s\n", cfg.History.SQLitePath)
	case "postgres":
		fmt.Fprintf(w, "  DSN:     %s\n", secretState(cfg.History.PostgresDSN))
	case "firestore":
		fmt.Fprintf(w, "  Project: %s/%s\n", cfg.History.FirestoreProject, cfg.History.FirestoreCollection)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Delivery:")
	fmt.Fprintf(w, "  Sink: %s\n", cfg.Delivery.Sink)
	switch cfg.Delivery.Sink {
	case "s3", "gcs":
		fmt.Fprintf(w, "  Bucket: %s  Prefix: %s\n", cfg.Delivery.Bucket, cfg.Delivery.Prefix)
	case "azure":
		fmt.Fprintf(w, "  Container: %s/%s\n", cfg.Delivery.AzureAccountURL, cfg.Delivery.AzureContainer)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy:")
	fmt.Fprintf(w, "  Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Host: %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
}

// secretState never reveals any part of a secret.
func secretState(v string) string {
	if v == "" {
		return "<not set>"
	}
	return fmt.Sprintf("<set (%d chars)>", len(v))
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %s\n", path)
			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out, "Create a configuration file with: doclatex config init")
			}
			return nil
		},
	}
}

// newConfigTokenCmd creates the 'config token' command.
func newConfigTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token [api-key]",
		Short: "Store the API key in the token file",
		Long: `Store the API key in ~/.config/doclatex/token with owner-only permissions.

The token file is used when no --api-key flag, DOCLATEX_API_KEY variable or
api_key config entry is set. Without an argument the key is read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultTokenPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				key = newPrompter(cmd.InOrStdin(), out).String("API key", "")
			}
			if key == "" {
				return fmt.Errorf("no API key given")
			}
			if err := config.WriteTokenFile(path, key); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ API key saved to: %s\n", path)
			return nil
		},
	}
}
