// Package watch monitors the ingest directory and turns settled video
// files into chunk tasks.
package watch
