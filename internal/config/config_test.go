package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDecodeYAMLKeepsDefaults(t *testing.T) {
	t.Parallel()
	raw := []byte(`
logging:
  level: debug
scheduler:
  enabled: true
  timezone: Europe/Berlin
notifier:
  console: false
`)
	cfg, err := Decode("assistant.yaml", raw)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.Logging.Console {
		t.Fatal("Logging.Console default lost")
	}
	if cfg.Scheduler.Timezone != "Europe/Berlin" {
		t.Fatalf("Scheduler.Timezone = %q", cfg.Scheduler.Timezone)
	}
	if cfg.Notifier.Console {
		t.Fatal("Notifier.Console = true, want false")
	}
	if cfg.Notifier.RatePerSec != Default().Notifier.RatePerSec {
		t.Fatalf("Notifier.RatePerSec = %d, want default", cfg.Notifier.RatePerSec)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		raw  string
	}{
		{name: "json unknown", file: "c.json", raw: `{"loggin": {}}`},
		{name: "yaml unknown", file: "c.yml", raw: "scheduler:\n  workers: 3\n"},
		{name: "json trailing", file: "c.json", raw: `{} {}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.file, []byte(tt.raw)); err == nil {
				t.Fatalf("Decode(%q) expected error", tt.raw)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, wantErr: "scheduler.timezone"},
		{name: "bad duration", mutate: func(c *Config) { c.Notifier.DedupWindow = "soon" }, wantErr: "notifier.dedup_window"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: "storage.driver"},
		{name: "telegram without token", mutate: func(c *Config) { c.Notifier.Telegram.Enabled = true }, wantErr: "token"},
		{name: "memory driver", mutate: func(c *Config) { c.Storage.Driver = "memory"; c.Storage.Path = "" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get() should return the committed config")
	}
	if cfg.Reminders.NotePrefix != "remind" {
		t.Fatalf("NotePrefix = %q, want remind", cfg.Reminders.NotePrefix)
	}
}

func TestSummarizeConfigChangeHidesToken(t *testing.T) {
	t.Parallel()
	oldCfg := Default()
	newCfg := Default()
	newCfg.Notifier.Telegram.Token = "secret-token"
	newCfg.Storage.Path = "/elsewhere.db"

	sections, _ := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(sections, ",") != "notifier,storage" {
		t.Fatalf("sections = %v", sections)
	}
	if got := RequiresRestart(sections); len(got) != 1 || got[0] != "storage" {
		t.Fatalf("RequiresRestart = %v, want [storage]", got)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q, want debug", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config publish")
	}
}
