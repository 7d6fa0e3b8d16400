package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"assistant/internal/model"
	"assistant/internal/timeparse"
)

// createTaskReq mirrors model.NewTask, except due_date is text so relative
// phrases ("in 2 hours") work too.
type createTaskReq struct {
	Title          string  `json:"title"`
	Description    *string `json:"description"`
	DueDate        *string `json:"due_date"`
	Priority       *int    `json:"priority"`
	Recurrence     *string `json:"recurrence"`
	ReminderOffset *int    `json:"reminder_offset"`
}

func (r createTaskReq) toNewTask(now time.Time) (model.NewTask, error) {
	if strings.TrimSpace(r.Title) == "" {
		return model.NewTask{}, fmt.Errorf("title is required")
	}
	due, err := parseDue(r.DueDate, now)
	if err != nil {
		return model.NewTask{}, err
	}
	return model.NewTask{
		Title:          r.Title,
		Description:    r.Description,
		DueDate:        due,
		Priority:       r.Priority,
		Recurrence:     r.Recurrence,
		ReminderOffset: r.ReminderOffset,
	}, nil
}

func parseDue(raw *string, now time.Time) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, ok := timeparse.Parse(*raw, now)
	if !ok {
		return nil, fmt.Errorf("due_date: unrecognized time %q", *raw)
	}
	return &t, nil
}

var jsonNull = []byte("null")

// decodePatch reads a partial update. An explicit null clears a nullable
// field; an absent key leaves it alone. Unknown keys are ignored.
func decodePatch(body []byte, now time.Time) (model.TaskPatch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.TaskPatch{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	var p model.TaskPatch
	isNull := func(v json.RawMessage) bool { return bytes.Equal(bytes.TrimSpace(v), jsonNull) }
	field := func(key string, dst any) error {
		if err := json.Unmarshal(raw[key], dst); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	}

	for key, v := range raw {
		var err error
		switch key {
		case "title":
			if isNull(v) {
				return p, fmt.Errorf("title cannot be null")
			}
			err = field(key, &p.Title)
			if err == nil && strings.TrimSpace(*p.Title) == "" {
				err = fmt.Errorf("title cannot be empty")
			}
		case "completed":
			if isNull(v) {
				return p, fmt.Errorf("completed cannot be null")
			}
			err = field(key, &p.Completed)
		case "description":
			if p.ClearDescription = isNull(v); !p.ClearDescription {
				err = field(key, &p.Description)
			}
		case "priority":
			if p.ClearPriority = isNull(v); !p.ClearPriority {
				err = field(key, &p.Priority)
			}
		case "recurrence":
			if p.ClearRecurrence = isNull(v); !p.ClearRecurrence {
				err = field(key, &p.Recurrence)
			}
		case "reminder_offset":
			if p.ClearReminderOffset = isNull(v); !p.ClearReminderOffset {
				err = field(key, &p.ReminderOffset)
			}
		case "due_date":
			if p.ClearDueDate = isNull(v); p.ClearDueDate {
				continue
			}
			var s string
			if err = field(key, &s); err != nil {
				break
			}
			var due *time.Time
			if due, err = parseDue(&s, now); err == nil {
				if due == nil {
					p.ClearDueDate = true
				}
				p.DueDate = due
			}
		}
		if err != nil {
			return model.TaskPatch{}, err
		}
	}
	return p, nil
}
