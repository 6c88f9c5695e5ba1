package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// API key sources reported by ResolveAPIKey.
const (
	KeySourceFlag        = "flag"
	KeySourceEnvironment = "environment"
	KeySourceConfig      = "config"
	KeySourceTokenFile   = "token-file"
)

// ErrTokenPermissions is returned for token files readable by other users.
var ErrTokenPermissions = errors.New("token file is readable by other users")

// DefaultTokenPath returns the token file next to the config file.
func DefaultTokenPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "token"), nil
}

// ReadTokenFile reads an API key from path, trimming surrounding whitespace.
// On Unix the file must not be readable by group or others.
func ReadTokenFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		return "", fmt.Errorf("%s: %w (mode %04o)", path, ErrTokenPermissions, info.Mode().Perm())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteTokenFile stores key in path with owner-only permissions.
func WriteTokenFile(path, key string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(key)+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// ResolveAPIKey returns the API key to use and where it came from.
//
// Priority (highest to lowest):
//  1. flagKey, e.g. from --api-key
//  2. DOCLATEX_API_KEY
//  3. api_key in the config file
//  4. the token file at tokenPath
//
// cfg is the loaded config; its APIKey already carries the environment
// override. An empty key and source mean no key is configured, which is
// valid for services without authentication.
func ResolveAPIKey(flagKey string, cfg *Config, tokenPath string) (string, string) {
	if flagKey != "" {
		return flagKey, KeySourceFlag
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		return v, KeySourceEnvironment
	}
	if cfg != nil && cfg.APIKey != "" {
		return cfg.APIKey, KeySourceConfig
	}
	if tokenPath != "" {
		if key, err := ReadTokenFile(tokenPath); err == nil && key != "" {
			return key, KeySourceTokenFile
		}
	}
	return "", ""
}
