package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Config holds client configuration values.
type Config struct {
	APIURL            string        `mapstructure:"api_url" yaml:"api_url"`
	WSURL             string        `mapstructure:"ws_url" yaml:"ws_url"`
	TokenPath         string        `mapstructure:"token_path" yaml:"token_path"`
	CachePath         string        `mapstructure:"cache_path" yaml:"cache_path"`
	SendTimeout       time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
	TypingTimeout     time.Duration `mapstructure:"typing_timeout" yaml:"typing_timeout"`
	RemoteTypingTTL   time.Duration `mapstructure:"remote_typing_ttl" yaml:"remote_typing_ttl"`
	NotificationTTL   time.Duration `mapstructure:"notification_ttl" yaml:"notification_ttl"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	MetricsAddr       string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	MaxEmitsPerMinute int           `mapstructure:"max_emits_per_minute" yaml:"max_emits_per_minute"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	dir := dataDir()
	return Config{
		APIURL:            "http://localhost:8080/api",
		WSURL:             "ws://localhost:8080/ws",
		TokenPath:         filepath.Join(dir, "token"),
		CachePath:         filepath.Join(dir, "cache.db"),
		SendTimeout:       15 * time.Second,
		TypingTimeout:     time.Second,
		RemoteTypingTTL:   5 * time.Second,
		NotificationTTL:   5 * time.Second,
		LogLevel:          "info",
		MaxEmitsPerMinute: 30,
	}
}

// Validate reports settings the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("api_url is required"))
	}
	if c.WSURL == "" {
		errs = append(errs, errors.New("ws_url is required"))
	}
	if c.TokenPath == "" {
		errs = append(errs, errors.New("token_path is required"))
	}
	if c.SendTimeout <= 0 {
		errs = append(errs, errors.New("send_timeout must be positive"))
	}
	if c.TypingTimeout <= 0 {
		errs = append(errs, errors.New("typing_timeout must be positive"))
	}
	if c.RemoteTypingTTL < 0 || c.NotificationTTL < 0 {
		errs = append(errs, errors.New("ttl values must not be negative"))
	}
	return errors.Join(errs...)
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIURL != "" {
		c.APIURL = other.APIURL
	}
	if other.WSURL != "" {
		c.WSURL = other.WSURL
	}
	if other.TokenPath != "" {
		c.TokenPath = other.TokenPath
	}
	if other.CachePath != "" {
		c.CachePath = other.CachePath
	}
	if other.SendTimeout != 0 {
		c.SendTimeout = other.SendTimeout
	}
	if other.TypingTimeout != 0 {
		c.TypingTimeout = other.TypingTimeout
	}
	if other.RemoteTypingTTL != 0 {
		c.RemoteTypingTTL = other.RemoteTypingTTL
	}
	if other.NotificationTTL != 0 {
		c.NotificationTTL = other.NotificationTTL
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MetricsAddr != "" {
		c.MetricsAddr = other.MetricsAddr
	}
	if other.MaxEmitsPerMinute != 0 {
		c.MaxEmitsPerMinute = other.MaxEmitsPerMinute
	}
}

func dataDir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "wirechat")
	}
	return ".wirechat"
}
