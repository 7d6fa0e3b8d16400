// Package notifier delivers reminder notifications to one or more sinks.
//
// Notify is non-blocking: each notification is deduplicated inside a
// short window, then queued once per sink. Workers drain the queue under a
// shared rate limit and retry failed sends with backoff. A failing sink
// never holds up delivery to the others.
//
// ConsoleSink prints to stdout. The telegram subpackage provides a
// send-only Telegram sink.
package notifier
