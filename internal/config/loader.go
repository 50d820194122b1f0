package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/angora-org/angora/internal/build"
	"github.com/angora-org/angora/internal/fileutil"
)

// ConfigLoader reads and merges configuration from file, environment and
// baked-in defaults.
type ConfigLoader struct {
	configFile string
	warnings   []string
}

// ConfigLoaderOption is a functional option for the loader.
type ConfigLoaderOption func(*ConfigLoader)

// WithConfigFile sets an explicit configuration file path.
func WithConfigFile(configFile string) ConfigLoaderOption {
	return func(l *ConfigLoader) {
		l.configFile = configFile
	}
}

// Load builds a Config with the given options.
func Load(opts ...ConfigLoaderOption) (*Config, error) {
	loader := &ConfigLoader{}
	for _, opt := range opts {
		opt(loader)
	}
	return loader.Load()
}

// Load reads the config file (if any), applies environment overrides, and
// merges the result over the defaults.
func (l *ConfigLoader) Load() (*Config, error) {
	// A local .env supplements the process environment without overriding it.
	if fileutil.FileExists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			l.warnings = append(l.warnings, fmt.Sprintf("Failed to load .env: %v", err))
		}
	}

	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(build.Slug))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	l.bindEnvKeys(v)

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, build.Slug))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || l.configFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine; defaults and env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Fill zero-valued fields from the defaults.
	if err := mergo.Merge(&cfg, defaultConfig()); err != nil {
		return nil, fmt.Errorf("failed to merge defaults: %w", err)
	}

	l.validate(&cfg)
	cfg.Warnings = l.warnings
	return &cfg, nil
}

// bindEnvKeys registers every config key so AutomaticEnv can see nested
// keys without a config file present.
func (l *ConfigLoader) bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"broker.host", "broker.port", "broker.username", "broker.password",
		"broker.exchange", "broker.ingressQueue",
		"store.dsn",
		"catalog.pattern",
		"worker.queueName", "worker.concurrency",
		"replay.ttl", "replay.routingKey",
		"api.host", "api.port",
		"app.host", "app.port", "app.apiBaseUrl",
		"log.level", "log.format", "log.file",
		"otel.enabled", "otel.endpoint", "otel.insecure",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			l.warnings = append(l.warnings, fmt.Sprintf("Failed to bind env for %s: %v", key, err))
		}
	}
}

func (l *ConfigLoader) validate(cfg *Config) {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		l.warnings = append(l.warnings, fmt.Sprintf("Unknown log level %q, using info", cfg.Log.Level))
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		l.warnings = append(l.warnings, fmt.Sprintf("Unknown log format %q, using text", cfg.Log.Format))
		cfg.Log.Format = "text"
	}
	if cfg.Replay.TTL <= 0 {
		l.warnings = append(l.warnings, "Replay TTL must be positive, using default")
		cfg.Replay.TTL = defaultReplayTTL
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 1
	}
}
