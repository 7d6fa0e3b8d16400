// Package reminder turns task and note records into scheduler jobs and
// handles those jobs when they fire.
//
// Resolver decides the trigger for a record. Service keeps the registry in
// step with CRUD edits and rebuilds it at startup. Dispatcher is the
// registry's handler: it re-reads the record, notifies, and stamps
// last_reminded_at.
package reminder
