// Package logging wraps log/slog with the handlers and typed attribute
// helpers used across the daemon. Console output targets humans watching the
// terminal; JSON output targets log collectors. Context-derived fields keep
// task, stage, and user identifiers consistent across components.
package logging
