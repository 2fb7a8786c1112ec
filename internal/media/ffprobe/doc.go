// Package ffprobe wraps ffprobe's JSON report: stream layout, duration and
// picture size for uploaded media.
package ffprobe
