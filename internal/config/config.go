// Package config provides configuration management for doclatex.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"

	"github.com/doclatex/doclatex/internal/constants"
)

// Config is the client configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\doclatex\config
//   - Unix: ~/.config/doclatex/config
//
// INI format:
//
//	[service]
//	base_url = http://localhost:8000
//	api_key =
//	timeout_seconds = 180
//	max_retries = 0
//
//	[convert]
//	default_template = ieee_conference
//	output_dir = .
//
//	[history]
//	backend = sqlite
//	sqlite_path = ~/.config/doclatex/history.db
//
//	[identity]
//	user_id = alice
//
//	[delivery]
//	sink = local
//
//	[proxy]
//	mode = no-proxy
//
//	[notifications]
//	enabled = true
type Config struct {
	// Service connection
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	MaxRetries     int

	// Conversion defaults
	DefaultTemplate string
	OutputDir       string

	History  HistoryConfig
	Delivery DeliveryConfig

	// Identity used when recording history
	UserID string

	// Proxy settings
	ProxyMode     string // no-proxy, system, basic, ntlm
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string

	NotificationsEnabled bool
}

// HistoryConfig selects and configures the history store.
type HistoryConfig struct {
	// Backend is one of none, memory, sqlite, postgres, firestore.
	Backend             string
	SQLitePath          string
	PostgresDSN         string
	FirestoreProject    string
	FirestoreCollection string
}

// DeliveryConfig selects where downloaded archives are written.
type DeliveryConfig struct {
	// Sink is one of local, s3, azure, gcs.
	Sink            string
	Bucket          string
	Prefix          string
	Region          string
	AzureAccountURL string
	AzureContainer  string
	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint        string
	AccessKeyID     string
	// SecretAccessKey is read from the environment only.
	SecretAccessKey string
}

// Validation errors
var (
	ErrMissingBaseURL          = errors.New("base_url is required")
	ErrInvalidBaseURL          = errors.New("base_url must start with http:// or https://")
	ErrInvalidTimeout          = errors.New("timeout_seconds must be between 1 and 1800")
	ErrInvalidMaxRetries       = errors.New("max_retries must be between 0 and 10")
	ErrInvalidHistoryBackend   = errors.New("history backend must be one of none, memory, sqlite, postgres, firestore")
	ErrMissingPostgresDSN      = errors.New("postgres_dsn is required when history backend is postgres")
	ErrMissingFirestoreProject = errors.New("firestore_project is required when history backend is firestore")
	ErrInvalidDeliverySink     = errors.New("delivery sink must be one of local, s3, azure, gcs")
	ErrMissingBucket           = errors.New("bucket is required for s3 and gcs delivery")
	ErrMissingAzureContainer   = errors.New("azure_account_url and azure_container are required for azure delivery")
	ErrInvalidProxyMode        = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
)

// Environment variables that override file settings.
const (
	EnvAPIURL         = "DOCLATEX_API_URL"
	EnvAPIKey         = "DOCLATEX_API_KEY"
	EnvUser           = "DOCLATEX_USER"
	EnvHistoryBackend = "DOCLATEX_HISTORY_BACKEND"
	EnvS3SecretKey    = "DOCLATEX_S3_SECRET_KEY"
)

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	sqlitePath := "history.db"
	if dir, err := ConfigDirectory(); err == nil {
		sqlitePath = filepath.Join(dir, "history.db")
	}
	return &Config{
		BaseURL:         "http://localhost:8000",
		TimeoutSeconds:  int(constants.DefaultConvertTimeout / time.Second),
		MaxRetries:      0,
		DefaultTemplate: constants.DefaultTemplateID,
		OutputDir:       ".",
		History: HistoryConfig{
			Backend:             "sqlite",
			SQLitePath:          sqlitePath,
			FirestoreCollection: constants.DefaultHistoryCollection,
		},
		Delivery: DeliveryConfig{
			Sink: "local",
		},
		ProxyMode:            "no-proxy",
		ProxyPort:            8080,
		NotificationsEnabled: true,
	}
}

// LoadConfig loads configuration from an INI file, then applies environment overrides.
// If the file doesn't exist, defaults are used and no error is returned.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	// Missing .env is the common case
	_ = godotenv.Load()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			cfg.ApplyEnv()
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.ApplyEnv()
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	svc := iniFile.Section("service")
	cfg.BaseURL = svc.Key("base_url").MustString(cfg.BaseURL)
	cfg.APIKey = svc.Key("api_key").String()
	cfg.TimeoutSeconds = svc.Key("timeout_seconds").MustInt(cfg.TimeoutSeconds)
	cfg.MaxRetries = svc.Key("max_retries").MustInt(cfg.MaxRetries)

	conv := iniFile.Section("convert")
	cfg.DefaultTemplate = conv.Key("default_template").MustString(cfg.DefaultTemplate)
	cfg.OutputDir = conv.Key("output_dir").MustString(cfg.OutputDir)

	hist := iniFile.Section("history")
	cfg.History.Backend = hist.Key("backend").MustString(cfg.History.Backend)
	cfg.History.SQLitePath = expandHome(hist.Key("sqlite_path").MustString(cfg.History.SQLitePath))
	cfg.History.PostgresDSN = hist.Key("postgres_dsn").String()
	cfg.History.FirestoreProject = hist.Key("firestore_project").String()
	cfg.History.FirestoreCollection = hist.Key("firestore_collection").MustString(cfg.History.FirestoreCollection)

	cfg.UserID = iniFile.Section("identity").Key("user_id").String()

	del := iniFile.Section("delivery")
	cfg.Delivery.Sink = del.Key("sink").MustString(cfg.Delivery.Sink)
	cfg.Delivery.Bucket = del.Key("bucket").String()
	cfg.Delivery.Prefix = del.Key("prefix").String()
	cfg.Delivery.Region = del.Key("region").String()
	cfg.Delivery.AzureAccountURL = del.Key("azure_account_url").String()
	cfg.Delivery.AzureContainer = del.Key("azure_container").String()
	cfg.Delivery.Endpoint = del.Key("endpoint").String()
	cfg.Delivery.AccessKeyID = del.Key("access_key_id").String()

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(cfg.ProxyPort)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.ProxyPassword = proxy.Key("password").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()

	cfg.NotificationsEnabled = iniFile.Section("notifications").Key("enabled").MustBool(true)

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides settings from DOCLATEX_* environment variables.
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv(EnvUser); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv(EnvHistoryBackend); v != "" {
		cfg.History.Backend = v
	}
	if v := os.Getenv(EnvS3SecretKey); v != "" {
		cfg.Delivery.SecretAccessKey = v
	}
}

// SaveConfig saves configuration to an INI file.
// Creates parent directories if they don't exist.
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name   string
		values [][2]string
	}{
		{"service", [][2]string{
			{"base_url", cfg.BaseURL},
			{"api_key", cfg.APIKey},
			{"timeout_seconds", strconv.Itoa(cfg.TimeoutSeconds)},
			{"max_retries", strconv.Itoa(cfg.MaxRetries)},
		}},
		{"convert", [][2]string{
			{"default_template", cfg.DefaultTemplate},
			{"output_dir", cfg.OutputDir},
		}},
		{"history", [][2]string{
			{"backend", cfg.History.Backend},
			{"sqlite_path", cfg.History.SQLitePath},
			{"postgres_dsn", cfg.History.PostgresDSN},
			{"firestore_project", cfg.History.FirestoreProject},
			{"firestore_collection", cfg.History.FirestoreCollection},
		}},
		{"identity", [][2]string{
			{"user_id", cfg.UserID},
		}},
		{"delivery", [][2]string{
			{"sink", cfg.Delivery.Sink},
			{"bucket", cfg.Delivery.Bucket},
			{"prefix", cfg.Delivery.Prefix},
			{"region", cfg.Delivery.Region},
			{"azure_account_url", cfg.Delivery.AzureAccountURL},
			{"azure_container", cfg.Delivery.AzureContainer},
			{"endpoint", cfg.Delivery.Endpoint},
			{"access_key_id", cfg.Delivery.AccessKeyID},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.ProxyMode},
			{"host", cfg.ProxyHost},
			{"port", strconv.Itoa(cfg.ProxyPort)},
			{"user", cfg.ProxyUser},
			{"no_proxy", cfg.NoProxy},
		}},
		{"notifications", [][2]string{
			{"enabled", strconv.FormatBool(cfg.NotificationsEnabled)},
		}},
	}

	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.values {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// Proxy password is never written to disk.
	return writeINI(iniFile, path)
}

// SetValue updates a single key in the config file at path, leaving every
// other setting as written. The file is created when missing.
func SetValue(path, section, key, value string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	iniFile := ini.Empty()
	if _, err := os.Stat(path); err == nil {
		iniFile, err = ini.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile.Section(section).Key(key).SetValue(value)
	return writeINI(iniFile, path)
}

// writeINI replaces path atomically with owner-only permissions.
func writeINI(iniFile *ini.File, path string) error {
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the configuration and returns the first problem found.
func (cfg *Config) Validate() error {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return ErrMissingBaseURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return ErrInvalidBaseURL
	}
	if cfg.TimeoutSeconds < 1 || time.Duration(cfg.TimeoutSeconds)*time.Second > constants.MaxConvertTimeout {
		return ErrInvalidTimeout
	}
	if cfg.MaxRetries < 0 || cfg.MaxRetries > 10 {
		return ErrInvalidMaxRetries
	}

	switch strings.ToLower(cfg.History.Backend) {
	case "none", "memory", "sqlite", "":
	case "postgres":
		if strings.TrimSpace(cfg.History.PostgresDSN) == "" {
			return ErrMissingPostgresDSN
		}
	case "firestore":
		if strings.TrimSpace(cfg.History.FirestoreProject) == "" {
			return ErrMissingFirestoreProject
		}
	default:
		return ErrInvalidHistoryBackend
	}

	switch strings.ToLower(cfg.Delivery.Sink) {
	case "local", "":
	case "s3", "gcs":
		if strings.TrimSpace(cfg.Delivery.Bucket) == "" {
			return ErrMissingBucket
		}
	case "azure":
		if cfg.Delivery.AzureAccountURL == "" || cfg.Delivery.AzureContainer == "" {
			return ErrMissingAzureContainer
		}
	default:
		return ErrInvalidDeliverySink
	}

	switch strings.ToLower(cfg.ProxyMode) {
	case "no-proxy", "system", "basic", "ntlm", "":
	default:
		return ErrInvalidProxyMode
	}

	return nil
}

// ConvertTimeout returns the hard ceiling for one conversion request.
func (cfg *Config) ConvertTimeout() time.Duration {
	if cfg.TimeoutSeconds <= 0 {
		return constants.DefaultConvertTimeout
	}
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}
