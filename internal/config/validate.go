package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks bounds, durations and enums. It never mutates cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	durations := []struct{ path, raw string }{
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"task_engine.default_timeout", cfg.TaskEngine.DefaultTimeout},
		{"notifier.retry_base", cfg.Notifier.RetryBase},
		{"notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay},
		{"notifier.dedup_window", cfg.Notifier.DedupWindow},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	if cfg.TaskEngine.Workers < 0 {
		return errors.New("task_engine.workers must be >= 0")
	}
	if cfg.TaskEngine.QueueSize < 0 {
		return errors.New("task_engine.queue_size must be >= 0")
	}
	if cfg.TaskEngine.RetryMax < 0 {
		return errors.New("task_engine.retry_max must be >= 0")
	}
	if cfg.Notifier.Workers < 0 || cfg.Notifier.QueueSize < 0 || cfg.Notifier.RatePerSec < 0 {
		return errors.New("notifier.workers, queue_size and rate_per_sec must be >= 0")
	}
	if cfg.Notifier.Telegram.Enabled {
		if strings.TrimSpace(cfg.Notifier.Telegram.Token) == "" {
			return errors.New("notifier.telegram.token is required when telegram is enabled")
		}
		if cfg.Notifier.Telegram.ChatID == 0 {
			return errors.New("notifier.telegram.chat_id is required when telegram is enabled")
		}
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required when storage.driver=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.driver: %q", cfg.Storage.Driver)
	}

	switch strings.TrimSpace(cfg.HTTP.Mode) {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("http.mode: unknown gin mode %q", cfg.HTTP.Mode)
	}
	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.Addr) == "" {
		return errors.New("http.addr is required when http is enabled")
	}
	if cfg.Reminders.UpcomingDays < 0 {
		return errors.New("reminders.upcoming_days must be >= 0")
	}
	return nil
}
