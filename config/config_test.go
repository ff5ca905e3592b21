package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.MaxRooms != 5 {
		t.Fatalf("MaxRooms = %d, want 5", cfg.MaxRooms)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Fatalf("PollInterval = %v, want 15s", cfg.PollInterval)
	}
	if cfg.NavTimeout != 30*time.Second {
		t.Fatalf("NavTimeout = %v, want 30s", cfg.NavTimeout)
	}
	if cfg.Webhook != DefaultWebhook {
		t.Fatalf("Webhook = %q, want %q", cfg.Webhook, DefaultWebhook)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WEBHOOK", "http://hooks.test/new")
	t.Setenv("POLL_DOM_SEC", "7")
	t.Setenv("MAX_ROOMS", "2")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Webhook != "http://hooks.test/new" {
		t.Fatalf("Webhook = %q", cfg.Webhook)
	}
	if cfg.PollInterval != 7*time.Second {
		t.Fatalf("PollInterval = %v, want 7s", cfg.PollInterval)
	}
	if cfg.MaxRooms != 2 {
		t.Fatalf("MaxRooms = %d, want 2", cfg.MaxRooms)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero capacity", func(c *Config) { c.MaxRooms = 0 }, true},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"negative restore delay", func(c *Config) { c.RestoreDelay = -time.Second }, true},
		{"bad pattern", func(c *Config) { c.RoomPattern = `live\.(` }, true},
		{"pattern without group", func(c *Config) { c.RoomPattern = `live\.\d+` }, true},
		{"no retries", func(c *Config) { c.WebhookRetries = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
