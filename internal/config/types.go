package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m"). Omitted fields
// keep the values from Default().
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	HTTP       HTTPConfig       `json:"http"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Notifier   NotifierConfig   `json:"notifier"`
	Storage    StorageConfig    `json:"storage"`
	Reminders  RemindersConfig  `json:"reminders"`
	Systemd    SystemdConfig    `json:"systemd"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the REST surface.
//
// Mode is a gin mode: "debug", "release" or "test".
type HTTPConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr"`
	Mode         string `json:"mode"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof. Keep the listener on
	// loopback when enabling it.
	Pprof bool `json:"pprof,omitempty"`
}

// SchedulerConfig controls the reminder job registry.
//
// Timezone is the zone recurring schedules are evaluated in. Empty means UTC.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
}

// TaskEngineConfig controls the worker pool that runs fired jobs.
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// NotifierConfig controls the async notification pipeline and its sinks.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`

	Console  bool                   `json:"console"`
	Telegram NotifierTelegramConfig `json:"telegram"`
}

// NotifierTelegramConfig enables delivery of reminders to a Telegram chat.
// The token is never logged.
type NotifierTelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// StorageConfig selects the record store.
//
// Example:
//
//	storage: { driver: sqlite, path: ./data/assistant.db }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RemindersConfig tunes reminder behavior around the CRUD surface.
type RemindersConfig struct {
	// NotePrefix is matched case-insensitively against a new note's title.
	NotePrefix     string `json:"note_prefix"`
	RecoverOnStart bool   `json:"recover_on_start"`
	UpcomingDays   int    `json:"upcoming_days"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// Default returns the configuration used when no file exists and the base
// that file values are decoded onto.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		HTTP: HTTPConfig{
			Enabled:      true,
			Addr:         "127.0.0.1:8000",
			Mode:         "release",
			ReadTimeout:  "10s",
			WriteTimeout: "10s",
		},
		Scheduler: SchedulerConfig{Enabled: true, Timezone: "UTC"},
		TaskEngine: TaskEngineConfig{
			Workers:        2,
			QueueSize:      256,
			DefaultTimeout: "30s",
			HistorySize:    200,
			RetryMax:       2,
		},
		Notifier: NotifierConfig{
			Enabled:         true,
			Workers:         1,
			QueueSize:       256,
			RatePerSec:      5,
			RetryMax:        2,
			RetryBase:       "500ms",
			RetryMaxDelay:   "10s",
			DedupWindow:     "30s",
			DedupMaxEntries: 2000,
			Console:         true,
		},
		Storage:   StorageConfig{Driver: "sqlite", Path: "./data/assistant.db", BusyTimeout: "2s"},
		Reminders: RemindersConfig{NotePrefix: "remind", RecoverOnStart: true, UpcomingDays: 7},
		Systemd:   SystemdConfig{Notify: true},
	}
}
