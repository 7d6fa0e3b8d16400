package reminder

import (
	"time"

	"assistant/internal/model"
	"assistant/internal/recurrence"
	"assistant/internal/timeparse"
	logx "assistant/pkg/logx"
)

type DecisionKind int

const (
	DecisionNone DecisionKind = iota
	DecisionOnce
	DecisionRecurring
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionOnce:
		return "once"
	case DecisionRecurring:
		return "recurring"
	default:
		return "none"
	}
}

// Decision is the trigger chosen for a record.
type Decision struct {
	Kind     DecisionKind
	At       time.Time           // DecisionOnce
	Schedule recurrence.Schedule // DecisionRecurring
	Expr     string              // DecisionRecurring
}

type Resolver struct {
	log logx.Logger
}

func NewResolver(log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{log: log}
}

// ResolveTask applies the trigger precedence:
//  1. completed tasks get nothing
//  2. due date minus offset, when strictly after now
//  3. otherwise the recurrence, if it parses
//  4. otherwise nothing
//
// A future one-shot wins over a recurrence on the same task.
func (r *Resolver) ResolveTask(t model.Task, now time.Time) Decision {
	if t.Completed {
		return Decision{}
	}
	if at, ok := t.RemindAt(); ok && at.After(now) {
		return Decision{Kind: DecisionOnce, At: at}
	}
	expr := t.RecurrenceExpr()
	if expr == "" {
		return Decision{}
	}
	sched, err := recurrence.Parse(expr)
	if err != nil {
		r.log.Warn("invalid recurrence pattern", logx.Int64("task_id", t.ID), logx.String("recurrence", expr), logx.Err(err))
		return Decision{}
	}
	return Decision{Kind: DecisionRecurring, Schedule: sched, Expr: expr}
}

// ResolveNote looks for a timestamp in the note content. Only a time
// strictly after now yields a ping.
func (r *Resolver) ResolveNote(n model.Note, now time.Time) (Decision, bool) {
	at, ok := timeparse.Parse(n.Content, now)
	if !ok {
		return Decision{}, false
	}
	if !at.After(now) {
		r.log.Debug("note reminder time already passed", logx.Int64("note_id", n.ID), logx.Time("at", at))
		return Decision{}, false
	}
	return Decision{Kind: DecisionOnce, At: at}, true
}
