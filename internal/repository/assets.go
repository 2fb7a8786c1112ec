package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vidrepo/internal/blobstore"
	"vidrepo/internal/ingest"
	"vidrepo/internal/logging"
	"vidrepo/internal/services"
	"vidrepo/internal/store"
	"vidrepo/internal/tree"
)

// UploadAssets registers every file and then runs the ingestion pipeline on
// them in submission order. It returns when the batch has finished. A file
// with an unsupported kind rejects the whole call before anything is
// stored.
func (s *Service) UploadAssets(ctx context.Context, repoID int64, files []Upload) ([]store.Asset, error) {
	registered, err := s.register(ctx, repoID, files)
	if err != nil {
		return values(registered), err
	}
	if s.cfg.Ingest.Enabled {
		if err := s.pipeline.RunBatch(ctx, registered); err != nil {
			return values(registered), err
		}
	}
	return values(registered), nil
}

// UploadAssetsAsync registers every file and runs the pipeline in the
// background. Progress is reported through the log stream. Close waits for
// outstanding batches.
func (s *Service) UploadAssetsAsync(ctx context.Context, repoID int64, files []Upload) ([]store.Asset, error) {
	registered, err := s.register(ctx, repoID, files)
	if err != nil {
		return values(registered), err
	}
	snapshot := values(registered)
	if !s.cfg.Ingest.Enabled {
		return snapshot, nil
	}

	runCtx := s.baseCtx
	if id, ok := services.RequestIDFromContext(ctx); ok {
		runCtx = services.WithRequestID(runCtx, id)
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if err := s.pipeline.RunBatch(runCtx, registered); err != nil && !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(logging.WithContext(services.WithRepositoryID(runCtx, repoID), s.logger),
				"background ingest failed", "ingest_batch_failed", logging.Error(err))
		}
	}()
	return snapshot, nil
}

// ReingestAsset runs the pipeline again for one asset of the repository.
func (s *Service) ReingestAsset(ctx context.Context, repoID, assetID int64) (store.Asset, error) {
	if !s.cfg.Ingest.Enabled {
		return store.Asset{}, services.Wrap(services.ErrConfiguration, "repository", "reingest", "ingestion is disabled", nil)
	}
	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		return store.Asset{}, services.Wrap(services.ErrPersistence, "repository", "reingest", fmt.Sprintf("asset %d", assetID), err)
	}
	if asset == nil || asset.RepositoryID != repoID {
		return store.Asset{}, services.Wrap(services.ErrNotFound, "repository", "reingest", fmt.Sprintf("asset %d not found in repository %d", assetID, repoID), nil)
	}
	updated, err := s.pipeline.Reingest(ctx, assetID)
	if updated == nil {
		return store.Asset{}, err
	}
	return *updated, err
}

// ListAssets returns the repository's assets, oldest first.
func (s *Service) ListAssets(ctx context.Context, repoID int64) ([]store.Asset, error) {
	if _, err := s.OpenRepository(ctx, repoID); err != nil {
		return nil, err
	}
	assets, err := s.store.ListAssets(ctx, repoID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "repository", "list assets", "", err)
	}
	return values(assets), nil
}

// register stores each upload as an asset row plus blob and commits a
// placeholder under media/ for it.
func (s *Service) register(ctx context.Context, repoID int64, files []Upload) ([]*store.Asset, error) {
	if _, err := s.OpenRepository(ctx, repoID); err != nil {
		return nil, err
	}

	pending := make([]*store.Asset, 0, len(files))
	for _, file := range files {
		name, err := tree.ValidateName(file.Name)
		if err != nil {
			return nil, err
		}
		kind, mimeType, err := ingest.Classify(name, file.MimeType)
		if err != nil {
			return nil, err
		}
		status := store.StatusPending
		progress := 0
		if !s.cfg.Ingest.Enabled {
			status = store.StatusReady
			progress = 100
		}
		pending = append(pending, &store.Asset{
			RepositoryID: repoID,
			Name:         name,
			Kind:         kind,
			MimeType:     strings.TrimSpace(mimeType),
			Size:         int64(len(file.Data)),
			Status:       status,
			Progress:     progress,
		})
	}

	registered := make([]*store.Asset, 0, len(files))
	for i, asset := range pending {
		actx := services.WithRepositoryID(ctx, repoID)
		if err := s.store.CreateAsset(actx, asset); err != nil {
			return registered, services.Wrap(services.ErrPersistence, "repository", "upload", asset.Name, err)
		}
		actx = services.WithAssetID(actx, asset.ID)
		logger := logging.WithContext(actx, s.logger)

		asset.BlobKey = blobstore.AssetKey(asset.ID)
		if err := s.blobs.Put(actx, asset.BlobKey, files[i].Data); err != nil {
			if err := s.surface(actx, services.Wrap(services.ErrPersistence, "repository", "upload blob", asset.Name, err)); err != nil {
				return registered, err
			}
		}

		placeholder := tree.NewFile(asset.Name, "")
		asset.NodeID = placeholder.ID
		err := s.mutate(actx, repoID, func(repo *store.Repository) (tree.Tree, string, error) {
			media, next, err := mediaFolder(repo.Tree)
			if err != nil {
				return repo.Tree, "", err
			}
			node := placeholder
			node.Body = tree.File{Content: ingest.PlaceholderContent(asset)}
			next, err = next.InsertChild(media.ID, node)
			if err != nil {
				return repo.Tree, "", err
			}
			return next, fmt.Sprintf("feat: uploaded %s", asset.Name), nil
		})
		if err := s.surface(actx, err); err != nil {
			return registered, err
		}
		if err := s.store.UpdateAsset(actx, asset); err != nil {
			if err := s.surface(actx, services.Wrap(services.ErrPersistence, "repository", "upload", asset.Name, err)); err != nil {
				return registered, err
			}
		}
		registered = append(registered, asset)

		logger.Info("asset uploaded",
			logging.String(logging.FieldEventType, "asset_uploaded"),
			logging.String("name", asset.Name),
			logging.String("kind", string(asset.Kind)),
			logging.Int64("size_bytes", asset.Size),
			logging.String(logging.FieldStatus, string(asset.Status)),
			logging.Int(logging.FieldProgress, asset.Progress),
		)
	}
	return registered, nil
}

func mediaFolder(current tree.Tree) (tree.Node, tree.Tree, error) {
	next, media, err := current.EnsureFolder(tree.FolderMedia)
	if err != nil {
		return tree.Node{}, current, err
	}
	return media, next, nil
}

func values(assets []*store.Asset) []store.Asset {
	out := make([]store.Asset, 0, len(assets))
	for _, asset := range assets {
		out = append(out, *asset)
	}
	return out
}
