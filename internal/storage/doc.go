// Package storage is the record store for tasks and notes.
//
// The reminder core reads tasks and notes through it and writes only the
// reminder bookkeeping columns (last_reminded_at, completed); everything
// else belongs to the CRUD surface.
package storage
