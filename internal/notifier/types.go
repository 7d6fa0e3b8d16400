package notifier

import (
	"context"
	"strings"
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration // 0 disables dedup
	DedupMaxEntries int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 2000
	}
	return c
}

// Notification is a title and body. Key, when set, replaces the content
// hash as the dedup identity.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Key   string `json:"key,omitempty"`
}

// Text renders the notification as one line of plain text.
func (n Notification) Text() string {
	body := strings.TrimSpace(n.Body)
	if body == "" {
		return n.Title
	}
	return n.Title + ": " + body
}

// Sink performs delivery. Send should honor ctx.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type HistoryItem struct {
	At       time.Time `json:"at"`
	Sink     string    `json:"sink"`
	Title    string    `json:"title"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
}

// NotificationEvent is the payload of notify.* bus events.
type NotificationEvent struct {
	Sink  string    `json:"sink,omitempty"`
	Key   string    `json:"key"`
	Title string    `json:"title"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
