// Package orchestrator drives chunk tasks through the processing pipeline.
//
// A bounded worker pool claims queued tasks and runs the downloading,
// transcribing, filtering, and translating stages strictly in order,
// persisting every transition through the task store so progress events
// reach subscribers and survive restarts. A watchdog marks tasks stalled
// when their workers stop reporting, and a retention sweeper prunes old
// terminal tasks.
package orchestrator
