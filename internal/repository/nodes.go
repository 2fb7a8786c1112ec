package repository

import (
	"context"
	"fmt"

	"vidrepo/internal/ingest"
	"vidrepo/internal/logging"
	"vidrepo/internal/scenes"
	"vidrepo/internal/services"
	"vidrepo/internal/store"
	"vidrepo/internal/tree"
)

// CreateNode appends a new folder or file under parentID and commits
// "feat: created <name>".
func (s *Service) CreateNode(ctx context.Context, repoID int64, parentID, name string, kind tree.Kind) (tree.Node, error) {
	node, err := tree.New(name, kind)
	if err != nil {
		return tree.Node{}, err
	}
	err = s.mutate(ctx, repoID, func(repo *store.Repository) (tree.Tree, string, error) {
		if err := guardCommitLog(repo.Tree, "create node", parentID); err != nil {
			return repo.Tree, "", err
		}
		next, err := repo.Tree.InsertChild(parentID, node)
		if err != nil {
			return repo.Tree, "", err
		}
		return next, fmt.Sprintf("feat: created %s", node.Name), nil
	})
	if err := s.surface(ctx, err); err != nil {
		return tree.Node{}, err
	}
	return node, nil
}

// EditFileContent replaces a file's content and commits
// "feat: updated <name>".
func (s *Service) EditFileContent(ctx context.Context, repoID int64, nodeID, content string) error {
	err := s.mutate(ctx, repoID, func(repo *store.Repository) (tree.Tree, string, error) {
		if err := guardCommitLog(repo.Tree, "edit content", nodeID); err != nil {
			return repo.Tree, "", err
		}
		next, err := repo.Tree.UpdateContent(nodeID, content)
		if err != nil {
			return repo.Tree, "", err
		}
		node, _ := next.Find(nodeID)
		return next, fmt.Sprintf("feat: updated %s", node.Name), nil
	})
	return s.surface(ctx, err)
}

// RenameNode changes a node's name and commits
// "chore: renamed <old> to <new>".
func (s *Service) RenameNode(ctx context.Context, repoID int64, nodeID, name string) error {
	err := s.mutate(ctx, repoID, func(repo *store.Repository) (tree.Tree, string, error) {
		before, ok := repo.Tree.Find(nodeID)
		if !ok {
			return repo.Tree, "", services.Wrap(services.ErrNotFound, "repository", "rename", fmt.Sprintf("node %q not found", nodeID), nil)
		}
		if err := guardCommitLog(repo.Tree, "rename", nodeID); err != nil {
			return repo.Tree, "", err
		}
		next, err := repo.Tree.Rename(nodeID, name)
		if err != nil {
			return repo.Tree, "", err
		}
		after, _ := next.Find(nodeID)
		return next, fmt.Sprintf("chore: renamed %s to %s", before.Name, after.Name), nil
	})
	return s.surface(ctx, err)
}

// ToggleOpen flips a node's display flag. It is persisted without a commit.
func (s *Service) ToggleOpen(ctx context.Context, repoID int64, nodeID string) error {
	lock := s.lockFor(repoID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.load(ctx, repoID)
	if err != nil {
		return err
	}
	next, err := repo.Tree.ToggleOpen(nodeID)
	if err != nil {
		return err
	}
	repo.Tree = next
	if err := s.store.SaveTree(ctx, repoID, next); err != nil {
		return s.surface(ctx, services.Wrap(services.ErrPersistence, "repository", "toggle open", nodeID, err))
	}
	return nil
}

// DeleteNode removes a node and its subtree and commits
// "chore: deleted <name>". When the subtree holds asset placeholders, their
// metadata and subtitle files and their scenes entries go in the same
// commit. Asset rows and blobs are kept.
func (s *Service) DeleteNode(ctx context.Context, repoID int64, nodeID string) error {
	assets, err := s.store.ListAssets(ctx, repoID)
	if err != nil {
		if err := s.surface(ctx, services.Wrap(services.ErrPersistence, "repository", "delete node", "list assets", err)); err != nil {
			return err
		}
	}
	byNode := make(map[string]*store.Asset, len(assets))
	for _, asset := range assets {
		if asset.NodeID != "" {
			byNode[asset.NodeID] = asset
		}
	}

	logger := logging.WithContext(services.WithRepositoryID(ctx, repoID), s.logger)
	err = s.mutate(ctx, repoID, func(repo *store.Repository) (tree.Tree, string, error) {
		target, ok := repo.Tree.Find(nodeID)
		if !ok {
			return repo.Tree, "", services.Wrap(services.ErrNotFound, "repository", "delete node", fmt.Sprintf("node %q not found", nodeID), nil)
		}
		if err := guardCommitLog(repo.Tree, "delete node", nodeID); err != nil {
			return repo.Tree, "", err
		}
		var owned []*store.Asset
		tree.FromRoots(target).Walk(func(_ []string, n tree.Node) bool {
			if asset, ok := byNode[n.ID]; ok {
				owned = append(owned, asset)
			}
			return true
		})

		next, _, err := repo.Tree.Remove(nodeID)
		if err != nil {
			return repo.Tree, "", err
		}
		for _, asset := range owned {
			next, err = removeAssetArtifacts(next, asset.ID)
			if err != nil {
				return repo.Tree, "", err
			}
			logger.Debug("asset artifacts removed",
				logging.Int64(logging.FieldAssetID, asset.ID),
				logging.String("name", asset.Name),
			)
		}
		return next, fmt.Sprintf("chore: deleted %s", target.Name), nil
	})
	return s.surface(ctx, err)
}

// guardCommitLog rejects user mutations targeting the commits folder or
// anything below it. Only the commit engine appends there.
func guardCommitLog(current tree.Tree, operation, nodeID string) error {
	folder, ok := current.TopLevel(tree.FolderCommits)
	if !ok {
		return nil
	}
	if _, inside := tree.FromRoots(folder).Find(nodeID); inside {
		return services.Wrap(services.ErrLocked, "repository", operation, "commit history is append-only", nil)
	}
	return nil
}

// removeAssetArtifacts drops the colocated metadata and subtitle files of an
// asset and its scenes entry. Missing pieces are skipped.
func removeAssetArtifacts(current tree.Tree, assetID int64) (tree.Tree, error) {
	next := current
	for _, sibling := range []struct{ folder, name string }{
		{tree.FolderMetadata, ingest.MetadataName(assetID)},
		{tree.FolderSubtitles, ingest.SubtitleName(assetID)},
	} {
		folder, ok := next.TopLevel(sibling.folder)
		if !ok {
			continue
		}
		node, ok := next.ChildByName(folder.ID, sibling.name)
		if !ok {
			continue
		}
		var err error
		next, _, err = next.Remove(node.ID)
		if err != nil {
			return current, err
		}
	}

	folder, ok := next.TopLevel(tree.FolderScenes)
	if !ok {
		return next, nil
	}
	file, ok := next.ChildByName(folder.ID, tree.ScenesFile)
	if !ok || file.IsFolder() || file.Locked {
		return next, nil
	}
	doc, _ := file.Content()
	updated, removed, err := scenes.Remove([]byte(doc), assetID)
	if err != nil || !removed {
		return next, nil
	}
	return next.UpdateContent(file.ID, string(updated))
}
