package testsupport

import (
	"context"
	"testing"

	"vidrepo/internal/blobstore"
	"vidrepo/internal/config"
	"vidrepo/internal/store"
	"vidrepo/internal/tree"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewMemoryBlobs opens an in-memory Badger blob store.
func NewMemoryBlobs(t testing.TB) blobstore.Store {
	t.Helper()

	blobs, err := blobstore.OpenBadger(blobstore.InMemoryBadgerConfig(nil))
	if err != nil {
		t.Fatalf("open memory blobs: %v", err)
	}
	t.Cleanup(func() {
		blobs.Close()
	})
	return blobs
}

// NewRepository persists a repository with the canonical skeleton.
func NewRepository(t testing.TB, st *store.Store, name string) *store.Repository {
	t.Helper()

	repo := &store.Repository{Name: name, Tree: tree.Skeleton(`{"assets":[]}`)}
	if err := st.CreateRepository(context.Background(), repo); err != nil {
		t.Fatalf("store.CreateRepository: %v", err)
	}
	return repo
}
