// Package models defines the transcription and translation backend
// contracts and the registry that owns them. Backends register once at
// process start under a logical name; every inference call is mediated by a
// per-backend counting semaphore so a GPU-bound model serves exactly one
// request at a time while CPU-bound models fan out.
package models
