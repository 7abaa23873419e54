// Package whisper wraps the whisperx CLI as a transcription backend.
package whisper
