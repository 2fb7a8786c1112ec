// Package config loads, normalizes, and validates vidrepo configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours environment fallbacks such as OPENAI_API_KEY and
// VIDREPO_TRANSCRIBE_TOKEN. Downstream code should obtain settings through
// this package so paths arrive absolute and enum-like values arrive lower-cased.
package config
