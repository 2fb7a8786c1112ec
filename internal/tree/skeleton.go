package tree

// Canonical top-level folder names, in skeleton order.
const (
	FolderMedia        = "media"
	FolderScenes       = "scenes"
	FolderSubtitles    = "subtitles"
	FolderDescriptions = "descriptions"
	FolderMetadata     = "metadata"
	FolderCommits      = "commits"
	FolderBuilds       = "builds"
	FolderAI           = "ai"

	// ScenesFile is the aggregated scenes document inside FolderScenes.
	ScenesFile = "scenes.json"
)

// CanonicalFolders lists the skeleton folders in order.
func CanonicalFolders() []string {
	return []string{
		FolderMedia,
		FolderScenes,
		FolderSubtitles,
		FolderDescriptions,
		FolderMetadata,
		FolderCommits,
		FolderBuilds,
		FolderAI,
	}
}

// Skeleton builds the initial repository tree: locked canonical folders with
// an empty scenes document.
func Skeleton(emptyScenes string) Tree {
	names := CanonicalFolders()
	roots := make([]Node, 0, len(names))
	for _, name := range names {
		folder := NewFolder(name).WithLocked(true)
		if name == FolderScenes {
			folder = NewFolder(name, NewFile(ScenesFile, emptyScenes)).WithLocked(true)
		}
		roots = append(roots, folder)
	}
	return Tree{roots: roots}
}

// EnsureFolder returns the top-level folder called name, appending a locked
// one when missing.
func (t Tree) EnsureFolder(name string) (Tree, Node, error) {
	if existing, ok := t.TopLevel(name); ok && existing.IsFolder() {
		return t, existing, nil
	}
	folder := NewFolder(name).WithLocked(true)
	next, err := t.AppendRoot(folder)
	if err != nil {
		return t, Node{}, err
	}
	return next, folder, nil
}

// UpsertFile replaces the content of the file called name under the
// top-level folder, creating the folder and file as needed. The returned node
// is the file as stored in the new tree.
func (t Tree) UpsertFile(folderName, name, content string) (Tree, Node, error) {
	next, folder, err := t.EnsureFolder(folderName)
	if err != nil {
		return t, Node{}, err
	}
	if existing, ok := next.ChildByName(folder.ID, name); ok && !existing.IsFolder() {
		next, err = next.UpdateContent(existing.ID, content)
		if err != nil {
			return t, Node{}, err
		}
		updated, _ := next.Find(existing.ID)
		return next, updated, nil
	}
	file := NewFile(name, content)
	next, err = next.InsertChild(folder.ID, file)
	if err != nil {
		return t, Node{}, err
	}
	return next, file, nil
}
