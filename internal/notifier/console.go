package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	logx "assistant/pkg/logx"
)

// ConsoleSink prints "🔔 title: body" to a writer and logs the delivery.
type ConsoleSink struct {
	mu  sync.Mutex
	w   io.Writer
	log logx.Logger
}

// NewConsoleSink writes to w, or stdout when w is nil.
func NewConsoleSink(w io.Writer, log logx.Logger) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w, log: log}
}

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.log.Info(fmt.Sprintf("[NOTIFY] %s - %s", n.Title, n.Body))
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "🔔 %s: %s\n", n.Title, n.Body)
	return err
}
