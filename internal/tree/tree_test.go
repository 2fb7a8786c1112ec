package tree_test

import (
	"encoding/json"
	"errors"
	"testing"

	"vidrepo/internal/services"
	"vidrepo/internal/tree"
)

func sampleTree(t *testing.T) (tree.Tree, map[string]tree.Node) {
	t.Helper()
	clip := tree.NewFile("clip.mp4", "stub")
	notes := tree.NewFile("notes.md", "hello")
	nested := tree.NewFolder("drafts", notes)
	media := tree.NewFolder("media", clip, nested)
	builds := tree.NewFolder("builds")
	return tree.FromRoots(media, builds), map[string]tree.Node{
		"clip": clip, "notes": notes, "drafts": nested, "media": media, "builds": builds,
	}
}

func TestFindDepthFirst(t *testing.T) {
	tr, nodes := sampleTree(t)
	got, ok := tr.Find(nodes["notes"].ID)
	if !ok {
		t.Fatal("expected nested node to be found")
	}
	if content, _ := got.Content(); content != "hello" {
		t.Fatalf("unexpected content %q", content)
	}
	if _, ok := tr.Find("missing"); ok {
		t.Fatal("expected missing id to report not found")
	}
}

func TestInsertChildAppendsInOrder(t *testing.T) {
	tr, nodes := sampleTree(t)
	first := tree.NewFile("b.txt", "")
	second := tree.NewFile("a.txt", "")

	next, err := tr.InsertChild(nodes["builds"].ID, first)
	if err != nil {
		t.Fatalf("InsertChild returned error: %v", err)
	}
	next, err = next.InsertChild(nodes["builds"].ID, second)
	if err != nil {
		t.Fatalf("InsertChild returned error: %v", err)
	}

	builds, _ := next.Find(nodes["builds"].ID)
	children := builds.Children()
	if len(children) != 2 || children[0].Name != "b.txt" || children[1].Name != "a.txt" {
		t.Fatalf("expected insertion order, got %+v", children)
	}
	if original, _ := tr.Find(nodes["builds"].ID); len(original.Children()) != 0 {
		t.Fatal("expected original tree to be unchanged")
	}
}

func TestInsertChildRejectsMissingOrFileParent(t *testing.T) {
	tr, nodes := sampleTree(t)
	if _, err := tr.InsertChild("nope", tree.NewFile("x", "")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing parent, got %v", err)
	}
	if _, err := tr.InsertChild(nodes["clip"].ID, tree.NewFile("x", "")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for file parent, got %v", err)
	}
}

func TestInsertChildRejectsDuplicateIDs(t *testing.T) {
	tr, nodes := sampleTree(t)
	dup := tree.NewFile("copy", "")
	dup.ID = nodes["notes"].ID
	if _, err := tr.InsertChild(nodes["builds"].ID, dup); !errors.Is(err, services.ErrDuplicateID) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestRemoveDropsSubtreeOnly(t *testing.T) {
	tr, nodes := sampleTree(t)
	before := tr.Len()

	next, removed, err := tr.Remove(nodes["drafts"].ID)
	if err != nil || !removed {
		t.Fatalf("Remove returned removed=%v err=%v", removed, err)
	}
	if _, ok := next.Find(nodes["notes"].ID); ok {
		t.Fatal("expected descendant to be removed")
	}
	if _, ok := next.Find(nodes["clip"].ID); !ok {
		t.Fatal("expected sibling to survive")
	}
	if next.Len() != before-2 {
		t.Fatalf("expected %d nodes, got %d", before-2, next.Len())
	}
	if _, ok := tr.Find(nodes["notes"].ID); !ok {
		t.Fatal("expected original tree to keep the subtree")
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	tr, _ := sampleTree(t)
	next, removed, err := tr.Remove("missing")
	if err != nil || removed {
		t.Fatalf("expected silent no-op, got removed=%v err=%v", removed, err)
	}
	if next.Len() != tr.Len() {
		t.Fatal("expected tree unchanged")
	}
}

func TestRemoveRefusesLockedSubtree(t *testing.T) {
	locked := tree.NewFile("keep", "").WithLocked(true)
	parent := tree.NewFolder("parent", locked)
	tr := tree.FromRoots(parent)
	if _, _, err := tr.Remove(parent.ID); !errors.Is(err, services.ErrLocked) {
		t.Fatalf("expected locked error, got %v", err)
	}
}

func TestUpdateContent(t *testing.T) {
	tr, nodes := sampleTree(t)
	next, err := tr.UpdateContent(nodes["notes"].ID, "updated")
	if err != nil {
		t.Fatalf("UpdateContent returned error: %v", err)
	}
	got, _ := next.Find(nodes["notes"].ID)
	if content, _ := got.Content(); content != "updated" {
		t.Fatalf("unexpected content %q", content)
	}
	old, _ := tr.Find(nodes["notes"].ID)
	if content, _ := old.Content(); content != "hello" {
		t.Fatalf("expected previous snapshot to keep content, got %q", content)
	}

	if _, err := tr.UpdateContent(nodes["media"].ID, "x"); !errors.Is(err, services.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch for folder, got %v", err)
	}
	if _, err := tr.UpdateContent("missing", "x"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRenameKeepsID(t *testing.T) {
	tr, nodes := sampleTree(t)
	next, err := tr.Rename(nodes["clip"].ID, "  intro.mp4 ")
	if err != nil {
		t.Fatalf("Rename returned error: %v", err)
	}
	got, ok := next.Find(nodes["clip"].ID)
	if !ok || got.Name != "intro.mp4" {
		t.Fatalf("unexpected renamed node %+v", got)
	}
	if _, err := tr.Rename(nodes["clip"].ID, "a/b"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	lockedTree := tree.FromRoots(tree.NewFolder("commits").WithLocked(true))
	if _, err := lockedTree.Rename(lockedTree.Roots()[0].ID, "x"); !errors.Is(err, services.ErrLocked) {
		t.Fatalf("expected locked error, got %v", err)
	}
}

func TestToggleOpen(t *testing.T) {
	tr, nodes := sampleTree(t)
	next, err := tr.ToggleOpen(nodes["drafts"].ID)
	if err != nil {
		t.Fatalf("ToggleOpen returned error: %v", err)
	}
	got, _ := next.Find(nodes["drafts"].ID)
	if !got.Open {
		t.Fatal("expected node to be open")
	}
	if _, err := tr.ToggleOpen("missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPathAndParent(t *testing.T) {
	tr, nodes := sampleTree(t)
	path, ok := tr.Path(nodes["notes"].ID)
	if !ok || len(path) != 3 || path[0] != "media" || path[2] != "notes.md" {
		t.Fatalf("unexpected path %v", path)
	}
	parent, ok := tr.Parent(nodes["notes"].ID)
	if !ok || parent.ID != nodes["drafts"].ID {
		t.Fatalf("unexpected parent %+v", parent)
	}
	if _, ok := tr.Parent(nodes["media"].ID); ok {
		t.Fatal("expected root node to have no parent")
	}
}

func TestSkeletonHasCanonicalFolders(t *testing.T) {
	tr := tree.Skeleton(`{"assets":[]}`)
	roots := tr.Roots()
	want := tree.CanonicalFolders()
	if len(roots) != 8 || len(want) != 8 {
		t.Fatalf("expected 8 top-level folders, got %d", len(roots))
	}
	for i, root := range roots {
		if root.Name != want[i] || !root.IsFolder() || !root.Locked {
			t.Fatalf("unexpected root %d: %+v", i, root)
		}
	}
	commits, _ := tr.TopLevel(tree.FolderCommits)
	if len(commits.Children()) != 0 {
		t.Fatal("expected empty commits folder")
	}
	scenes, _ := tr.TopLevel(tree.FolderScenes)
	if _, ok := tr.ChildByName(scenes.ID, tree.ScenesFile); !ok {
		t.Fatal("expected scenes document")
	}
	if err := tr.Validate(); err != nil {
		t.Fatalf("skeleton should validate: %v", err)
	}
}

func TestUpsertFileCreatesThenUpdates(t *testing.T) {
	tr := tree.Skeleton("{}")
	next, created, err := tr.UpsertFile(tree.FolderMetadata, "7.json", "v1")
	if err != nil {
		t.Fatalf("UpsertFile returned error: %v", err)
	}
	next, updated, err := next.UpsertFile(tree.FolderMetadata, "7.json", "v2")
	if err != nil {
		t.Fatalf("UpsertFile returned error: %v", err)
	}
	if created.ID != updated.ID {
		t.Fatal("expected second upsert to reuse the node")
	}
	if content, _ := updated.Content(); content != "v2" {
		t.Fatalf("unexpected content %q", content)
	}
	if next.Len() != tr.Len()+1 {
		t.Fatalf("expected exactly one new node")
	}
}

func TestJSONRoundTripPreservesVariants(t *testing.T) {
	tr, nodes := sampleTree(t)
	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded tree.Tree
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := decoded.Find(nodes["builds"].ID)
	if !ok || !got.IsFolder() {
		t.Fatalf("expected empty folder to stay a folder, got %+v", got)
	}
	file, _ := decoded.Find(nodes["notes"].ID)
	if content, ok := file.Content(); !ok || content != "hello" {
		t.Fatalf("unexpected file %+v", file)
	}
}

func TestUnmarshalRejectsMixedVariants(t *testing.T) {
	var n tree.Node
	err := json.Unmarshal([]byte(`{"id":"1","name":"x","kind":"folder","content":"oops"}`), &n)
	if err == nil {
		t.Fatal("expected folder with content to be rejected")
	}
	var tr tree.Tree
	err = json.Unmarshal([]byte(`[{"id":"1","name":"a","kind":"file"},{"id":"1","name":"b","kind":"file"}]`), &tr)
	if !errors.Is(err, services.ErrDuplicateID) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}
