package engine

import (
	"context"
	"time"
)

// Config controls the execution engine. The app maps config.task_engine
// into this struct.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// DefaultTimeout is used when Task.Timeout is 0.
	DefaultTimeout time.Duration

	HistorySize int
	RetryMax    int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	return c
}

// RetryPolicy overrides the engine retry defaults for one task.
// RetryMax < 0 disables retries.
type RetryPolicy struct {
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = 20%
}

func (p RetryPolicy) withDefaults(cfg Config) RetryPolicy {
	switch {
	case p.RetryMax < 0:
		p.RetryMax = 0
	case p.RetryMax == 0:
		p.RetryMax = cfg.RetryMax
	}
	if p.RetryBase <= 0 {
		p.RetryBase = 500 * time.Millisecond
	}
	if p.RetryMaxDelay <= 0 {
		p.RetryMaxDelay = 15 * time.Second
	}
	if p.RetryJitter <= 0 {
		p.RetryJitter = 0.2
	}
	return p
}

// Task is one unit of work. ID is assigned on enqueue when empty.
type Task struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Retry   RetryPolicy
}

type HistoryItem struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
}

// TaskEvent is the payload of job.* bus events.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type Snapshot struct {
	Enabled   bool          `json:"enabled"`
	Running   bool          `json:"running"`
	Workers   int           `json:"workers"`
	QueueLen  int           `json:"queue_len"`
	QueueCap  int           `json:"queue_cap"`
	InFlight  int           `json:"in_flight"`
	Completed uint64        `json:"completed"`
	Failed    uint64        `json:"failed"`
	Dropped   uint64        `json:"dropped"`
	History   []HistoryItem `json:"history,omitempty"`
}
