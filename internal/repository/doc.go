// Package repository is the facade over the tree, commit engine, stores and
// ingestion pipeline. The CLI and the HTTP API call only this package.
//
// Every mutating call holds the repository's mutex from read to commit, and
// the pipeline takes the same mutex for each stage commit, so edits can land
// between the stages of a running upload. Persistence failures are logged and
// only returned when storage.strict is set; structural errors always are.
package repository
