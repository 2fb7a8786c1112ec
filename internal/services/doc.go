// Package services defines shared utilities consumed by the repository facade,
// the ingestion pipeline, and the external collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp repository IDs, asset IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. Structural markers
//     (not found, type mismatch, locked) are returned to callers; collaborator
//     and persistence markers are logged and recovered from locally.
//
// Collaborator packages live below this one (transcribe, vision).
package services
