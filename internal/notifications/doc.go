// Package notifications sends pipeline lifecycle alerts through ntfy.
//
// Alerts are best effort: failures are logged by callers and never block the
// pipeline. When no topic is configured every notification is a noop, so
// callers depend only on the simple Service interface.
package notifications
