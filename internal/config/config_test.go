package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "inkwell.db" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if cfg.SaveDebounce != time.Second {
		t.Fatalf("unexpected save debounce %s", cfg.SaveDebounce)
	}
	if cfg.WriteBufferSize != 32 {
		t.Fatalf("unexpected write buffer %d", cfg.WriteBufferSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("http.address", "127.0.0.1:9999")
	configViper.Set("token.ttl_minutes", 5)
	configViper.Set("collab.save_debounce_ms", 250)

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9999" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.TokenTTL != 5*time.Minute {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if cfg.SaveDebounce != 250*time.Millisecond {
		t.Fatalf("unexpected save debounce %s", cfg.SaveDebounce)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name     string
		settings map[string]any
	}{
		{
			name:     "missing signing secret",
			settings: map[string]any{},
		},
		{
			name: "blank database path",
			settings: map[string]any{
				"auth.signing_secret": "s",
				"database.path":       "   ",
			},
		},
		{
			name: "non-positive token ttl",
			settings: map[string]any{
				"auth.signing_secret": "s",
				"token.ttl_minutes":   0,
			},
		},
		{
			name: "non-positive debounce",
			settings: map[string]any{
				"auth.signing_secret":     "s",
				"collab.save_debounce_ms": -5,
			},
		},
		{
			name: "non-positive write buffer",
			settings: map[string]any{
				"auth.signing_secret": "s",
				"collab.write_buffer": 0,
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.settings {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
