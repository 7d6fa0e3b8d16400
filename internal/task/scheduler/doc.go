// Package scheduler is the live job registry for reminders.
//
// Jobs are keyed by a stable identity (task-{id}-once, task-{id}-recurring,
// note-{id}-{unix}). Upsert replaces a job atomically, Cancel removes it.
// One supervised loop owns a min-heap of fire times and hands due jobs to
// the execution engine, which runs them through the single Handler.
//
// Pending jobs live only in memory. After a restart the reminder service
// rebuilds them from the store.
package scheduler
