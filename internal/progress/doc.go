// Package progress broadcasts stage events to subscribed clients.
//
// Each user gets a bounded in-memory stream served over long-poll. Events
// are also persisted by the task store before they reach the hub, so a poll
// always observes the latest durable state and a reconnecting subscriber
// replays the per-task snapshot instead of missing a terminal stage.
package progress
