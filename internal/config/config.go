// Package config loads runtime settings from the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment prefix. Fields with an explicit envconfig tag are also
// read without it, so GITHUB_TOKEN and GHCONTRIB_GITHUB_TOKEN both work.
const Prefix = "GHCONTRIB"

const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Config struct {
	// App
	LogLevel  string `split_words:"true" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `split_words:"true" default:"text" validate:"oneof=text json"`

	// GitHub
	GithubToken             string `envconfig:"GITHUB_TOKEN"`
	GithubAppClientID       string `envconfig:"GITHUB_APP_CLIENT_ID"`
	GithubAppPrivateKey     string `envconfig:"GITHUB_APP_PRIVATE_KEY" validate:"required_with=GithubAppClientID"`
	GithubAppInstallationID int64  `envconfig:"GITHUB_APP_INSTALLATION_ID" validate:"required_with=GithubAppClientID"`
	Organization            string `envconfig:"GITHUB_ORG"`

	// Scan
	ScanWindowDays int    `split_words:"true" default:"180" validate:"gt=0"`
	ReportDir      string `split_words:"true" default:"." validate:"required"`
	ExportXLSX     bool   `envconfig:"EXPORT_XLSX" default:"false"`

	// Checkpoint
	CheckpointBackend string `split_words:"true" default:"file" validate:"oneof=file redis sqlite"`
	CheckpointPath    string `split_words:"true" default:"scan_checkpoint.json" validate:"required_if=CheckpointBackend file"`
	CheckpointKey     string `split_words:"true" default:"github-contrib:checkpoint" validate:"required"`
	RedisURL          string `split_words:"true" validate:"required_if=CheckpointBackend redis"`
	SqlitePath        string `split_words:"true" default:"github-contrib.db" validate:"required_if=CheckpointBackend sqlite"`

	// Performance tuning
	MaxConcurrency         int           `split_words:"true" default:"10" validate:"gt=0,lte=10"`
	RetryAttempts          int           `split_words:"true" default:"5" validate:"gt=0"`
	RetryBaseDelay         time.Duration `split_words:"true" default:"1s" validate:"gt=0"`
	RequestsPerMinute      int           `split_words:"true" default:"80" validate:"gte=0"`
	SecondaryLimitMaxSleep time.Duration `split_words:"true" default:"2m" validate:"gte=0"`
	HTTPTimeout            time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s" validate:"gt=0"`
	ProfileCacheSize       int           `split_words:"true" default:"1000" validate:"gt=0"`
}

type Loader struct {
	Prefix   string
	Validate *validator.Validate
	// Files are the dotenv files tried in order; later files override earlier ones.
	Files []string
}

func NewLoader(prefix string) *Loader {
	return &Loader{Prefix: prefix, Validate: validator.New(), Files: dotEnvFiles()}
}

// Load reads dotenv files, then the environment, and validates the result.
func (l *Loader) Load() (Config, error) {
	var cfg Config

	if err := loadDotEnv(l.Files); err != nil {
		return cfg, fmt.Errorf("dotenv: %w", err)
	}
	if err := envconfig.Process(l.Prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("env load: %w", err)
	}
	if err := l.Validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// HasAppCredentials reports whether GitHub App authentication is configured.
func (c Config) HasAppCredentials() bool {
	return c.GithubAppClientID != "" && c.GithubAppPrivateKey != "" && c.GithubAppInstallationID != 0
}

// AppPrivateKey returns the App key PEM. The setting holds either the PEM itself
// or a path to a file containing it.
func (c Config) AppPrivateKey() ([]byte, error) {
	key := strings.TrimSpace(c.GithubAppPrivateKey)
	if strings.HasPrefix(key, "-----BEGIN") {
		return []byte(strings.ReplaceAll(key, `\n`, "\n")), nil
	}
	data, err := os.ReadFile(key)
	if err != nil {
		return nil, fmt.Errorf("read app private key: %w", err)
	}
	return data, nil
}

func dotEnvFiles() []string {
	files := []string{".env"}
	if appEnv := strings.TrimSpace(os.Getenv("APP_ENV")); appEnv != "" {
		files = append(files, ".env."+appEnv)
	}
	return files
}

// loadDotEnv loads the files that exist. Variables already set in the process
// environment win over the first file; later files override earlier ones.
func loadDotEnv(files []string) error {
	for i, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		load := godotenv.Load
		if i > 0 {
			load = godotenv.Overload
		}
		if err := load(f); err != nil {
			return fmt.Errorf("failed loading %s: %w", f, err)
		}
	}
	return nil
}
