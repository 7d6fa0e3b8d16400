package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"assistant/internal/model"
	"assistant/internal/storage"
	logx "assistant/pkg/logx"
)

func TestWriteIncludesCompleted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	if _, err := st.CreateNote(ctx, model.Note{Title: "n1", Content: "c", CreatedAt: now}); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	open, err := st.CreateTask(ctx, model.Task{Title: "open", CreatedAt: now})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	done, err := st.CreateTask(ctx, model.Task{Title: "done", CreatedAt: now})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := st.SetTaskCompleted(ctx, done.ID, true); err != nil {
		t.Fatalf("SetTaskCompleted: %v", err)
	}

	var buf bytes.Buffer
	doc, err := Write(ctx, st, &buf)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(doc.Notes) != 1 || len(doc.Tasks) != 2 {
		t.Fatalf("doc = %d notes %d tasks, want 1 and 2", len(doc.Notes), len(doc.Tasks))
	}
	if !strings.Contains(buf.String(), "\n  \"notes\": [") {
		t.Fatalf("output not indented:\n%s", buf.String())
	}

	var back struct {
		Notes []map[string]any `json:"notes"`
		Tasks []map[string]any `json:"tasks"`
	}
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	titles := map[string]bool{}
	for _, tk := range back.Tasks {
		titles[tk["title"].(string)] = tk["completed"].(bool)
	}
	if c, ok := titles["done"]; !ok || !c {
		t.Fatalf("completed task missing from export: %v", titles)
	}
	if c, ok := titles["open"]; !ok || c {
		t.Fatalf("open task = %v, want present and not completed (id %d)", titles, open.ID)
	}
}

func TestWriteEmptyStore(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	var buf bytes.Buffer
	if _, err := Write(context.Background(), st, &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "{\n  \"notes\": [],\n  \"tasks\": []\n}\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}
