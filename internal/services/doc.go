// Package services defines the shared error taxonomy and context plumbing
// used by model backends and pipeline stages. Errors are tagged with sentinel
// markers so the orchestrator can decide between automatic retry, backpressure,
// and terminal failure without inspecting message strings.
package services
