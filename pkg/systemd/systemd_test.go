package systemd

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "assistant/pkg/logx"
)

func TestDisabledIsNoop(t *testing.T) {
	t.Parallel()
	n := New(false, logx.Nop())
	if n.Ready("up") || n.Stopping() || n.Status("x") {
		t.Fatal("disabled notifier should never report a send")
	}
	var nilN *Notifier
	if nilN.Ready("") {
		t.Fatal("nil notifier should be a no-op")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Watchdog(ctx)
}

func TestNotifySocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram unavailable: %v", err)
	}
	defer conn.Close()
	t.Setenv("NOTIFY_SOCKET", sock)
	t.Setenv("WATCHDOG_USEC", "")

	n := New(true, logx.Nop())
	if !n.Ready("serving") {
		t.Fatal("Ready should reach the socket")
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	nr, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := string(buf[:nr])
	if !strings.HasPrefix(got, "READY=1") || !strings.Contains(got, "STATUS=serving") {
		t.Fatalf("message = %q", got)
	}

	// No WATCHDOG_USEC: returns at once.
	n.Watchdog(context.Background())
}
