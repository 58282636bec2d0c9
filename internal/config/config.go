package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "INKWELL"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "inkwell.db"
	defaultLogLevel         = "info"
	defaultTokenTTLMinutes  = 60
	defaultSaveDebounceMS   = 1000
	defaultWriteBufferSlots = 32
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	SigningSecret   string
	TokenTTL        time.Duration
	LogLevel        string
	SaveDebounce    time.Duration
	WriteBufferSize int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("collab.save_debounce_ms", defaultSaveDebounceMS)
	configViper.SetDefault("collab.write_buffer", defaultWriteBufferSlots)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		TokenTTL:        time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		LogLevel:        configViper.GetString("log.level"),
		SaveDebounce:    time.Duration(configViper.GetInt("collab.save_debounce_ms")) * time.Millisecond,
		WriteBufferSize: configViper.GetInt("collab.write_buffer"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if c.SaveDebounce <= 0 {
		return fmt.Errorf("collab.save_debounce_ms must be positive")
	}
	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("collab.write_buffer must be positive")
	}
	return nil
}
