// Package httpapi serves the repository facade as a JSON API under /api/v1,
// plus /health, /metrics and a websocket stream of log events.
package httpapi
