// Package media wraps the ffmpeg/ffprobe command line tools for duration
// probing and time-range audio extraction. The command runner is injectable
// so tests never shell out.
package media
