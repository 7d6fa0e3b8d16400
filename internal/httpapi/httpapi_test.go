package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"assistant/internal/eventbus"
	"assistant/internal/model"
	"assistant/internal/reminder"
	"assistant/internal/storage"
	"assistant/internal/task/scheduler"
	logx "assistant/pkg/logx"
)

type harness struct {
	srv   *Server
	store storage.Store
	reg   *scheduler.Service
	bus   eventbus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	// Not started: jobs are registered and inspectable but never fire.
	reg := scheduler.New(scheduler.Config{Enabled: true}, nil, nil, logx.Nop(), bus)
	rem := reminder.NewService(reg, nil, reminder.Config{}, logx.Nop())

	srv, err := New(Config{Mode: gin.TestMode}, Deps{Store: st, Reminders: rem, Jobs: reg, Bus: bus}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{srv: srv, store: st, reg: reg, bus: bus}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestNewRequiresDeps(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Mode: gin.TestMode}, Deps{}, logx.Nop()); err == nil {
		t.Fatal("New without store should fail")
	}
}

func TestRootAndHealth(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("GET / = %d %s", w.Code, w.Body.String())
	}
	w = h.do(t, http.MethodGet, "/health", "")
	body := decode[map[string]any](t, w)
	if body["jobs"] != float64(0) {
		t.Fatalf("health jobs = %v, want 0", body["jobs"])
	}
}

func TestTaskLifecycleSchedules(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/tasks", `{"title":"pay rent","due_date":"in 2 hours","reminder_offset":30}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /tasks = %d %s", w.Code, w.Body.String())
	}
	task := decode[model.Task](t, w)
	onceKey := scheduler.TaskOnceKey(task.ID)
	job, ok := h.reg.Get(onceKey)
	if !ok {
		t.Fatalf("job %s not registered", onceKey)
	}
	if want := task.DueDate.Add(-30 * time.Minute); !job.At.Equal(want) {
		t.Fatalf("job.At = %v, want %v", job.At, want)
	}

	// Clearing the due date falls through to the recurrence.
	w = h.do(t, http.MethodPatch, "/tasks/"+itoa(task.ID), `{"due_date":null,"recurrence":"daily"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH = %d %s", w.Code, w.Body.String())
	}
	patched := decode[model.Task](t, w)
	if patched.DueDate != nil || patched.RecurrenceExpr() != "daily" {
		t.Fatalf("patched = %+v", patched)
	}
	if _, ok := h.reg.Get(onceKey); ok {
		t.Fatal("once job should be cancelled after the due date is cleared")
	}
	if _, ok := h.reg.Get(scheduler.TaskRecurringKey(task.ID)); !ok {
		t.Fatal("recurring job missing")
	}

	w = h.do(t, http.MethodGet, "/reminders", "")
	rems := decode[[]reminderResp](t, w)
	if len(rems) != 1 || rems[0].TaskID != task.ID || rems[0].Recurrence != "daily" {
		t.Fatalf("reminders = %+v", rems)
	}
	if rems[0].ETASeconds <= 0 {
		t.Fatalf("eta = %d, want > 0", rems[0].ETASeconds)
	}

	w = h.do(t, http.MethodPost, "/tasks/"+itoa(task.ID)+"/complete", "")
	if w.Code != http.StatusOK || !decode[model.Task](t, w).Completed {
		t.Fatalf("complete = %d %s", w.Code, w.Body.String())
	}
	if h.reg.Len() != 0 {
		t.Fatalf("registry len = %d after complete, want 0", h.reg.Len())
	}

	w = h.do(t, http.MethodGet, "/tasks", "")
	if got := decode[[]model.Task](t, w); len(got) != 0 {
		t.Fatalf("open tasks = %d, want 0", len(got))
	}
	w = h.do(t, http.MethodGet, "/tasks?include_completed=true", "")
	if got := decode[[]model.Task](t, w); len(got) != 1 {
		t.Fatalf("all tasks = %d, want 1", len(got))
	}

	w = h.do(t, http.MethodDelete, "/tasks/"+itoa(task.ID), "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d", w.Code)
	}
	w = h.do(t, http.MethodGet, "/tasks/"+itoa(task.ID), "")
	if w.Code != http.StatusNotFound || decode[errorResp](t, w).Detail != "Task not found" {
		t.Fatalf("GET deleted = %d %s", w.Code, w.Body.String())
	}
}

func TestDeleteTaskCancelsJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	task := decode[model.Task](t, h.do(t, http.MethodPost, "/tasks", `{"title":"x","recurrence":"0 8 * * *"}`))
	if h.reg.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", h.reg.Len())
	}
	h.do(t, http.MethodDelete, "/tasks/"+itoa(task.ID), "")
	if h.reg.Len() != 0 {
		t.Fatalf("registry len = %d after delete, want 0", h.reg.Len())
	}
}

func TestTaskValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	created := decode[model.Task](t, h.do(t, http.MethodPost, "/tasks", `{"title":"ok"}`))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing title", http.MethodPost, "/tasks", `{"description":"d"}`, http.StatusBadRequest},
		{"bad due", http.MethodPost, "/tasks", `{"title":"a","due_date":"someday"}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/tasks", `{`, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/tasks/abc", "", http.StatusBadRequest},
		{"missing", http.MethodGet, "/tasks/999", "", http.StatusNotFound},
		{"patch missing", http.MethodPatch, "/tasks/999", `{"title":"b"}`, http.StatusNotFound},
		{"patch null title", http.MethodPatch, "/tasks/" + itoa(created.ID), `{"title":null}`, http.StatusBadRequest},
		{"patch bad type", http.MethodPatch, "/tasks/" + itoa(created.ID), `{"priority":"high"}`, http.StatusBadRequest},
		{"complete missing", http.MethodPost, "/tasks/999/complete", "", http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/tasks/999", "", http.StatusNotFound},
		{"bad filter", http.MethodGet, "/tasks?include_completed=maybe", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.want, w.Body.String())
			}
			if d := decode[errorResp](t, w); d.Detail == "" {
				t.Fatal("error response should carry detail")
			}
		})
	}
}

func TestPatchKeepsAbsentFields(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	created := decode[model.Task](t, h.do(t, http.MethodPost, "/tasks", `{"title":"a","description":"keep","priority":2}`))

	w := h.do(t, http.MethodPatch, "/tasks/"+itoa(created.ID), `{"priority":null,"title":"b"}`)
	got := decode[model.Task](t, w)
	if got.Title != "b" || got.Priority != nil {
		t.Fatalf("patched = %+v", got)
	}
	if got.Description == nil || *got.Description != "keep" {
		t.Fatal("description should be untouched")
	}
}

func TestNotesAndPing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/notes", `{"title":"Reminder: call mom","content":"ring her in 10 minutes"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /notes = %d %s", w.Code, w.Body.String())
	}
	ping := decode[model.Note](t, w)
	if h.reg.Len() != 1 {
		t.Fatalf("registry len = %d, want 1 note ping", h.reg.Len())
	}

	// No prefix: never scheduled even with a time in the content.
	h.do(t, http.MethodPost, "/notes", `{"title":"groceries","content":"in 5 minutes"}`)
	if h.reg.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", h.reg.Len())
	}

	w = h.do(t, http.MethodGet, "/notes", "")
	if notes := decode[[]model.Note](t, w); len(notes) != 2 {
		t.Fatalf("notes = %d, want 2", len(notes))
	}
	w = h.do(t, http.MethodGet, "/notes/"+itoa(ping.ID), "")
	if w.Code != http.StatusOK || decode[model.Note](t, w).Title != "Reminder: call mom" {
		t.Fatalf("GET note = %d %s", w.Code, w.Body.String())
	}

	if w = h.do(t, http.MethodDelete, "/notes/"+itoa(ping.ID), ""); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE note = %d", w.Code)
	}
	if h.reg.Len() != 0 {
		t.Fatalf("registry len = %d after note delete, want 0", h.reg.Len())
	}
	if w = h.do(t, http.MethodGet, "/notes/"+itoa(ping.ID), ""); w.Code != http.StatusNotFound {
		t.Fatalf("GET deleted note = %d, want 404", w.Code)
	}
	if w = h.do(t, http.MethodPost, "/notes", `{"content":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("POST note without title = %d, want 400", w.Code)
	}
}

func TestBriefingToday(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.srv.now = func() time.Time { return fixed }

	ctx := context.Background()
	due := fixed.Add(2 * time.Hour)
	prio := 1
	if _, err := h.store.CreateTask(ctx, model.Task{Title: "today", DueDate: &due, Priority: &prio}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	w := h.do(t, http.MethodGet, "/briefing/today", "")
	if w.Code != http.StatusOK {
		t.Fatalf("briefing = %d %s", w.Code, w.Body.String())
	}
	var b struct {
		DueToday   []model.Task `json:"due_today"`
		Priorities []model.Task `json:"priorities"`
		Overdue    []model.Task `json:"overdue"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(b.DueToday) != 1 || len(b.Priorities) != 1 || b.Overdue == nil {
		t.Fatalf("briefing = %s", w.Body.String())
	}
}

func TestEventsStream(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ts := httptest.NewServer(h.srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?types=reminder", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	next := func() string {
		for sc.Scan() {
			if ev, ok := strings.CutPrefix(sc.Text(), "event:"); ok {
				return strings.TrimSpace(ev)
			}
		}
		return ""
	}
	if ev := next(); ev != "ready" {
		t.Fatalf("first event = %q, want ready", ev)
	}
	eventbus.Publish(h.bus, eventbus.JobStarted, nil)
	eventbus.Publish(h.bus, eventbus.ReminderCancelled, nil)
	if ev := next(); ev != eventbus.ReminderCancelled {
		t.Fatalf("event = %q, want %q", ev, eventbus.ReminderCancelled)
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.srv.cfg.Addr = "127.0.0.1:0"
	if err := h.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := h.srv.Addr()
	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h.srv.Stop(ctx)
	if h.srv.Addr() != "" {
		t.Fatal("Addr should be empty after Stop")
	}
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
