// Package progress carries run progress from the audit pipeline to pluggable sinks.
// Events are batched on a background goroutine so reporting never blocks the
// fetch and check workers.
package progress
