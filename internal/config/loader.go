package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "WIRECHAT"
	envConfigDefaultPath = "WIRECHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, the config file and WIRECHAT_* env
// vars, and returns the resolved path. A missing file is created with defaults.
// Precedence: defaults < config file < env vars; callers apply flag overrides
// with UpdateFrom.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range fileValues(cfg) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)
	if err := readOrCreate(v, configPath, cfg, logger); err != nil {
		return cfg, configPath, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, configPath, nil
}

func readOrCreate(v *viper.Viper, path string, cfg Config, logger *zerolog.Logger) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}

	if err := writeDefaultConfig(path, cfg); err != nil {
		// Defaults and env still apply without a file.
		logger.Warn().Err(err).Str("path", path).Msg("failed to write default config")
		return nil
	}
	logger.Info().Str("path", path).Msg("created default config")
	if err := v.ReadInConfig(); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to read default config")
	}
	return nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}
	return filepath.Join(dataDir(), defaultConfigName)
}

// fileValues is cfg keyed the way the config file spells it. Durations are
// written as strings ("15s") so the file stays editable.
func fileValues(cfg Config) map[string]any {
	d := func(v time.Duration) string { return v.String() }
	return map[string]any{
		"api_url":              cfg.APIURL,
		"ws_url":               cfg.WSURL,
		"token_path":           cfg.TokenPath,
		"cache_path":           cfg.CachePath,
		"send_timeout":         d(cfg.SendTimeout),
		"typing_timeout":       d(cfg.TypingTimeout),
		"remote_typing_ttl":    d(cfg.RemoteTypingTTL),
		"notification_ttl":     d(cfg.NotificationTTL),
		"log_level":            cfg.LogLevel,
		"metrics_addr":         cfg.MetricsAddr,
		"max_emits_per_minute": cfg.MaxEmitsPerMinute,
	}
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(fileValues(cfg))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
