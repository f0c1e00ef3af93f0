package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "quick" {
		t.Fatalf("mode = %q, want quick", cfg.Mode)
	}
	if cfg.Concurrency != 50 {
		t.Fatalf("concurrency = %d, want 50", cfg.Concurrency)
	}
	if cfg.Timeout.Duration() != 5*time.Second {
		t.Fatalf("quick timeout = %v, want 5s", cfg.Timeout.Duration())
	}
	if cfg.SampleWindow != 100 || cfg.TopN != 5 {
		t.Fatalf("sample_window/top_n = %d/%d", cfg.SampleWindow, cfg.TopN)
	}
	if cfg.Control.IsEnabled() {
		t.Fatalf("control enabled by default")
	}
	if !cfg.Health.IsEnabled() {
		t.Fatalf("health disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
mode: stable
links_file: /tmp/sub.txt
duration: 45
interval: 500ms
concurrency: 120
timeout: 1.5
bind_ip: 192.168.1.10
control:
  enabled: true
  bind_port: 9100
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "stable" || cfg.LinksFile != "/tmp/sub.txt" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Duration.Duration() != 45*time.Second {
		t.Fatalf("duration = %v, want 45s from bare seconds", cfg.Duration.Duration())
	}
	if cfg.Interval.Duration() != 500*time.Millisecond {
		t.Fatalf("interval = %v", cfg.Interval.Duration())
	}
	if cfg.Timeout.Duration() != 1500*time.Millisecond {
		t.Fatalf("timeout = %v, want 1.5s from float seconds", cfg.Timeout.Duration())
	}
	if !cfg.Control.IsEnabled() || cfg.Control.BindPort != 9100 {
		t.Fatalf("control = %+v", cfg.Control)
	}
	if cfg.Control.BindAddr != "127.0.0.1" {
		t.Fatalf("control bind_addr default = %q", cfg.Control.BindAddr)
	}
	if got := cfg.ParsedBindIP(); got == nil || got.String() != "192.168.1.10" {
		t.Fatalf("bind ip = %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestStableTimeoutDefault(t *testing.T) {
	cfg := Config{Mode: "stable"}
	cfg.ApplyDefaults()
	if cfg.Timeout.Duration() != 3*time.Second {
		t.Fatalf("stable timeout = %v, want 3s", cfg.Timeout.Duration())
	}
	cfg = Config{Mode: "realtime"}
	cfg.ApplyDefaults()
	if cfg.Timeout.Duration() != 2*time.Second {
		t.Fatalf("realtime timeout = %v, want 2s", cfg.Timeout.Duration())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	bad := []Config{
		{Mode: "warp"},
		{Mode: "quick", Concurrency: -1},
		{Mode: "quick", Concurrency: 10, BindIP: "not-an-ip"},
	}
	for i, cfg := range bad {
		if cfg.Concurrency == 0 {
			cfg.Concurrency = 1
		}
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, cfg)
		}
	}
}

func TestNoBindDisablesBindIP(t *testing.T) {
	cfg := Config{Mode: "quick", Concurrency: 1, BindIP: "10.0.0.1", NoBind: true}
	if got := cfg.ParsedBindIP(); got != nil {
		t.Fatalf("ParsedBindIP = %v with no_bind set", got)
	}
}
