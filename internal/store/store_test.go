package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vidrepo/internal/store"
	"vidrepo/internal/testsupport"
	"vidrepo/internal/tree"
)

func TestRepositoryRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	repo := testsupport.NewRepository(t, st, "demo")
	if repo.ID == 0 {
		t.Fatal("expected id assigned")
	}
	loaded, err := st.GetRepository(ctx, repo.ID)
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}
	if loaded == nil || loaded.Name != "demo" {
		t.Fatalf("unexpected repository %+v", loaded)
	}
	if loaded.Tree.Len() != repo.Tree.Len() {
		t.Fatalf("tree size = %d, want %d", loaded.Tree.Len(), repo.Tree.Len())
	}
	if len(loaded.Commits) != 0 {
		t.Fatalf("expected no commits, got %d", len(loaded.Commits))
	}

	missing, err := st.GetRepository(ctx, 999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing repository, got %+v, %v", missing, err)
	}
	if err := st.CreateRepository(ctx, &store.Repository{Name: "  "}); err == nil {
		t.Fatal("expected blank name to fail")
	}
}

func TestSaveCommitIsAtomic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	repo := testsupport.NewRepository(t, st, "demo")

	media, _ := repo.Tree.TopLevel(tree.FolderMedia)
	next, err := repo.Tree.InsertChild(media.ID, tree.NewFile("a.txt", "hi"))
	if err != nil {
		t.Fatalf("InsertChild: %v", err)
	}
	commit := store.Commit{ID: "0001", Seq: 1, Message: "feat: created a.txt", Author: "tester", Timestamp: time.Now().UTC()}
	if err := st.SaveCommit(ctx, repo.ID, next, commit); err != nil {
		t.Fatalf("SaveCommit: %v", err)
	}

	// A duplicate sequence must fail the whole transaction, tree included.
	later, err := next.InsertChild(media.ID, tree.NewFile("b.txt", "x"))
	if err != nil {
		t.Fatalf("InsertChild: %v", err)
	}
	if err := st.SaveCommit(ctx, repo.ID, later, commit); err == nil {
		t.Fatal("expected duplicate commit to fail")
	}

	loaded, err := st.GetRepository(ctx, repo.ID)
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}
	if len(loaded.Commits) != 1 || loaded.Commits[0].Message != commit.Message {
		t.Fatalf("unexpected commits %+v", loaded.Commits)
	}
	if loaded.Tree.Len() != next.Len() {
		t.Fatalf("tree should match first commit: got %d nodes, want %d", loaded.Tree.Len(), next.Len())
	}

	if err := st.SaveCommit(ctx, 4242, next, store.Commit{ID: "0001", Seq: 1, Message: "m", Author: "a"}); !errors.Is(err, store.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for unknown repository, got %v", err)
	}
}

func TestSaveTreeAndDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	repo := testsupport.NewRepository(t, st, "demo")

	media, _ := repo.Tree.TopLevel(tree.FolderMedia)
	toggled, err := repo.Tree.ToggleOpen(media.ID)
	if err != nil {
		t.Fatalf("ToggleOpen: %v", err)
	}
	if err := st.SaveTree(ctx, repo.ID, toggled); err != nil {
		t.Fatalf("SaveTree: %v", err)
	}
	loaded, _ := st.GetRepository(ctx, repo.ID)
	node, _ := loaded.Tree.Find(media.ID)
	if !node.Open {
		t.Fatal("expected open flag persisted")
	}
	if err := st.SaveCommit(ctx, repo.ID, toggled, store.Commit{ID: "0001", Seq: 1, Message: "m", Author: "a"}); err != nil {
		t.Fatalf("SaveCommit: %v", err)
	}

	deleted, err := st.DeleteRepository(ctx, repo.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteRepository = %v, %v", deleted, err)
	}
	commits, err := st.ListCommits(ctx, repo.ID)
	if err != nil || len(commits) != 0 {
		t.Fatalf("expected commits cascaded, got %d (%v)", len(commits), err)
	}
	again, err := st.DeleteRepository(ctx, repo.ID)
	if err != nil || again {
		t.Fatalf("second delete = %v, %v", again, err)
	}
}

func TestAssetLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	repo := testsupport.NewRepository(t, st, "demo")

	asset := &store.Asset{RepositoryID: repo.ID, Name: "clip.mp4", Kind: store.KindVideo, MimeType: "video/mp4", Size: 10}
	if err := st.CreateAsset(ctx, asset); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if asset.Status != store.StatusPending {
		t.Fatalf("expected pending status, got %s", asset.Status)
	}

	asset.SetProgress(store.StatusTranscribing, 40)
	asset.SetProgress(store.StatusTranscribing, 10)
	asset.Tags = []string{"beach", "dog"}
	if err := st.UpdateAsset(ctx, asset); err != nil {
		t.Fatalf("UpdateAsset: %v", err)
	}
	loaded, err := st.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if loaded.Status != store.StatusTranscribing || loaded.Progress != 40 {
		t.Fatalf("expected monotonic progress 40, got %s/%d", loaded.Status, loaded.Progress)
	}
	if len(loaded.Tags) != 2 || loaded.Tags[1] != "dog" {
		t.Fatalf("unexpected tags %v", loaded.Tags)
	}

	if err := st.CreateAsset(ctx, &store.Asset{RepositoryID: repo.ID, Name: "x", Kind: "hologram"}); err == nil {
		t.Fatal("expected unknown kind to fail")
	}

	if _, err := st.DeleteRepository(ctx, repo.ID); err != nil {
		t.Fatalf("DeleteRepository: %v", err)
	}
	orphans, err := st.ListAssets(ctx, repo.ID)
	if err != nil || len(orphans) != 1 {
		t.Fatalf("expected asset to outlive repository, got %d (%v)", len(orphans), err)
	}
	removed, err := st.DeleteAssetsForRepository(ctx, repo.ID)
	if err != nil || len(removed) != 1 {
		t.Fatalf("DeleteAssetsForRepository = %d, %v", len(removed), err)
	}
	if gone, _ := st.GetAsset(ctx, asset.ID); gone != nil {
		t.Fatal("expected asset removed")
	}
}

func TestStatusOrdering(t *testing.T) {
	if !store.StatusPending.Before(store.StatusTranscribing) || !store.StatusDetecting.Before(store.StatusIndexed) {
		t.Fatal("unexpected status order")
	}
	if store.StatusIndexed.Before(store.StatusDetecting) {
		t.Fatal("indexed must not precede detecting")
	}
	if !store.StatusReady.IsTerminal() || store.StatusDetecting.IsTerminal() {
		t.Fatal("unexpected terminal statuses")
	}
	if _, ok := store.ParseStatus("Indexed"); !ok {
		t.Fatal("expected case-insensitive parse")
	}
}

func TestOpenPathReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	first, err := store.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	repo := &store.Repository{Name: "keep", Tree: tree.Skeleton("{}")}
	if err := first.CreateRepository(context.Background(), repo); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	first.Close()

	second, err := store.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	list, err := second.ListRepositories(context.Background())
	if err != nil || len(list) != 1 || list[0].Name != "keep" {
		t.Fatalf("unexpected repositories %+v (%v)", list, err)
	}
	if err := second.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
