package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SocketTimeout != 5*time.Second {
		t.Fatalf("SocketTimeout = %v, want 5s", cfg.SocketTimeout)
	}
	if cfg.ChannelCapacity != 200 {
		t.Fatalf("ChannelCapacity = %d, want 200", cfg.ChannelCapacity)
	}
	if cfg.LogFormat != "auto" {
		t.Fatalf("LogFormat = %q, want auto", cfg.LogFormat)
	}
}

func TestLoadConfigReadsEnv(t *testing.T) {
	t.Setenv("HASSWS_URL", "ws://hass.local:8123/api/websocket")
	t.Setenv("HASSWS_TOKEN", "secret-token")
	t.Setenv("HASSWS_CHANNEL_CAPACITY", "50")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.URL != "ws://hass.local:8123/api/websocket" {
		t.Fatalf("URL = %q", cfg.URL)
	}
	if cfg.Token != "secret-token" {
		t.Fatalf("Token = %q", cfg.Token)
	}
	if cfg.ChannelCapacity != 50 {
		t.Fatalf("ChannelCapacity = %d, want 50", cfg.ChannelCapacity)
	}
}

func TestLoadConfigYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "url: ws://override.local/api/websocket\ntoken: from-file\nchannel_capacity: 10\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.URL != "ws://override.local/api/websocket" {
		t.Fatalf("URL = %q, want override", cfg.URL)
	}
	if cfg.Token != "from-file" {
		t.Fatalf("Token = %q, want from-file", cfg.Token)
	}
	if cfg.ChannelCapacity != 10 {
		t.Fatalf("ChannelCapacity = %d, want 10", cfg.ChannelCapacity)
	}
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
