// Package logging assembles structured slog loggers used across vidrepo.
//
// The console format renders through tint with colour only on terminals; the
// json format is the stdlib JSON handler with UTC timestamps. Context helpers
// tag lines with repository IDs, asset IDs, stages, and correlation IDs, and
// the StreamHub keeps a bounded buffer of recent lines that the HTTP API
// streams to UI clients.
package logging
