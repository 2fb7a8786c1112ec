// Package blobstore keeps asset payloads out of the relational store.
//
// Badger is the default backend (on disk, or in memory for tests and
// throwaway sessions); the filesystem backend writes one file per key with
// atomic renames.
package blobstore
