package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"vidrepo/internal/blobstore"
	"vidrepo/internal/commit"
	"vidrepo/internal/config"
	"vidrepo/internal/ingest"
	"vidrepo/internal/logging"
	"vidrepo/internal/media/extract"
	"vidrepo/internal/metrics"
	"vidrepo/internal/mirror"
	"vidrepo/internal/scenes"
	"vidrepo/internal/services"
	"vidrepo/internal/services/transcribe"
	"vidrepo/internal/services/vision"
	"vidrepo/internal/store"
	"vidrepo/internal/tree"
)

// Upload is one file handed to UploadAssets.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Dependencies wires the service to its stores and collaborators. Mirror and
// Metrics are optional.
type Dependencies struct {
	Store       *store.Store
	Blobs       blobstore.Store
	Extractor   extract.Extractor
	Transcriber transcribe.Transcriber
	Analyzer    vision.Analyzer
	Mirror      *mirror.Mirror
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Service is the only entry point the CLI and HTTP API use to read or
// mutate repositories. Repositories are cached in memory after first use;
// every mutation holds that repository's lock from read to commit.
type Service struct {
	cfg      *config.Config
	store    *store.Store
	blobs    blobstore.Store
	engine   *commit.Engine
	pipeline *ingest.Pipeline
	mirror   *mirror.Mirror
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
	repos map[int64]*store.Repository

	baseCtx    context.Context
	cancelBase context.CancelFunc
	background sync.WaitGroup
}

// New constructs a Service.
func New(cfg *config.Config, deps Dependencies) *Service {
	logger := logging.NewComponentLogger(deps.Logger, "repository")

	opts := []commit.Option{commit.WithObserver(deps.Metrics)}
	if deps.Clock != nil {
		opts = append(opts, commit.WithClock(deps.Clock))
	}
	if deps.Mirror != nil {
		opts = append(opts, commit.WithObserver(deps.Mirror))
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:        cfg,
		store:      deps.Store,
		blobs:      deps.Blobs,
		engine:     commit.NewEngine(deps.Store, cfg.Commit.Author, deps.Logger, opts...),
		mirror:     deps.Mirror,
		logger:     logger,
		locks:      make(map[int64]*sync.Mutex),
		repos:      make(map[int64]*store.Repository),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	s.pipeline = ingest.New(ingest.Dependencies{
		Workspace:   s,
		Assets:      deps.Store,
		Blobs:       deps.Blobs,
		Extractor:   deps.Extractor,
		Transcriber: deps.Transcriber,
		Analyzer:    deps.Analyzer,
		Metrics:     deps.Metrics,
		Logger:      deps.Logger,
	}, ingest.OptionsFromConfig(cfg))
	if deps.Clock != nil {
		s.pipeline.WithClock(deps.Clock)
	}
	return s
}

// Close cancels background ingestion and waits for it to stop.
func (s *Service) Close() {
	s.cancelBase()
	s.background.Wait()
}

func (s *Service) lockFor(repoID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[repoID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[repoID] = lock
	}
	return lock
}

// load returns the cached repository, reading it from the store on first
// use. Callers hold the repository lock.
func (s *Service) load(ctx context.Context, repoID int64) (*store.Repository, error) {
	s.mu.Lock()
	repo, ok := s.repos[repoID]
	s.mu.Unlock()
	if ok {
		return repo, nil
	}
	repo, err := s.store.GetRepository(ctx, repoID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "repository", "load", fmt.Sprintf("repository %d", repoID), err)
	}
	if repo == nil {
		return nil, services.Wrap(services.ErrNotFound, "repository", "load", fmt.Sprintf("repository %d not found", repoID), nil)
	}
	s.mu.Lock()
	s.repos[repoID] = repo
	s.mu.Unlock()
	return repo, nil
}

func (s *Service) forget(repoID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos, repoID)
	delete(s.locks, repoID)
}

// mutate runs fn against the locked repository and commits its result as
// the configured commit author.
func (s *Service) mutate(ctx context.Context, repoID int64, fn ingest.Mutation) error {
	return s.Apply(ctx, repoID, "", fn)
}

// Apply implements ingest.Workspace. An empty author means the configured
// commit author. Persistence failures are returned unfiltered; callers
// decide whether to surface them.
func (s *Service) Apply(ctx context.Context, repoID int64, author string, fn ingest.Mutation) error {
	lock := s.lockFor(repoID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.load(ctx, repoID)
	if err != nil {
		return err
	}
	next, message, err := fn(repo)
	if err != nil {
		return err
	}
	_, err = s.engine.CommitAs(ctx, repo, author, message, "", next)
	return err
}

// surface applies the persistence error policy: structural errors always
// reach the caller, persistence errors only in strict mode.
func (s *Service) surface(ctx context.Context, err error) error {
	if err == nil || !errors.Is(err, services.ErrPersistence) {
		return err
	}
	if s.cfg.Storage.Strict {
		return err
	}
	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "persistence failed; continuing with in-memory state", "persistence_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, services.Hint(err)),
	)
	return nil
}

// CreateRepository builds the canonical skeleton, persists it and uploads
// any initial assets. No commit is recorded for the skeleton itself.
func (s *Service) CreateRepository(ctx context.Context, name, brief string, initial []Upload) (*store.Repository, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "repository", "create", "name is required", nil)
	}
	repo := &store.Repository{
		Name:  name,
		Brief: strings.TrimSpace(brief),
		Tree:  tree.Skeleton(scenes.EmptyDocument),
	}
	if err := s.store.CreateRepository(ctx, repo); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "repository", "create", name, err)
	}
	s.mu.Lock()
	s.repos[repo.ID] = repo
	s.mu.Unlock()

	logger := logging.WithContext(services.WithRepositoryID(ctx, repo.ID), s.logger)
	logger.Info("repository created",
		logging.String(logging.FieldEventType, "repository_created"),
		logging.String("name", repo.Name),
	)

	if len(initial) > 0 {
		if _, err := s.UploadAssets(ctx, repo.ID, initial); err != nil {
			return s.snapshot(repo), err
		}
	}
	return s.OpenRepository(ctx, repo.ID)
}

// ListRepositories returns every repository without commit history. Cached
// repositories report their in-memory tree.
func (s *Service) ListRepositories(ctx context.Context) ([]*store.Repository, error) {
	repos, err := s.store.ListRepositories(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "repository", "list", "", err)
	}
	for i, repo := range repos {
		s.mu.Lock()
		cached, ok := s.repos[repo.ID]
		s.mu.Unlock()
		if !ok {
			continue
		}
		lock := s.lockFor(repo.ID)
		lock.Lock()
		snap := s.snapshot(cached)
		lock.Unlock()
		snap.Commits = nil
		repos[i] = snap
	}
	return repos, nil
}

// OpenRepository returns a snapshot of the repository and its commits.
func (s *Service) OpenRepository(ctx context.Context, repoID int64) (*store.Repository, error) {
	lock := s.lockFor(repoID)
	lock.Lock()
	defer lock.Unlock()
	repo, err := s.load(ctx, repoID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(repo), nil
}

// snapshot copies the mutable parts of repo. Trees are immutable values and
// are shared.
func (s *Service) snapshot(repo *store.Repository) *store.Repository {
	out := *repo
	out.Commits = slices.Clone(repo.Commits)
	return &out
}

// DeleteRepository removes the record and its commits. Assets and blobs are
// removed too when storage.cascade_assets is set.
func (s *Service) DeleteRepository(ctx context.Context, repoID int64) error {
	lock := s.lockFor(repoID)
	lock.Lock()
	defer lock.Unlock()

	ctx = services.WithRepositoryID(ctx, repoID)
	logger := logging.WithContext(ctx, s.logger)

	removed, err := s.store.DeleteRepository(ctx, repoID)
	if err != nil {
		return s.surface(ctx, services.Wrap(services.ErrPersistence, "repository", "delete", fmt.Sprintf("repository %d", repoID), err))
	}
	if !removed {
		s.forget(repoID)
		return services.Wrap(services.ErrNotFound, "repository", "delete", fmt.Sprintf("repository %d not found", repoID), nil)
	}

	assetsRemoved := 0
	if s.cfg.Storage.CascadeAssets {
		assets, err := s.store.DeleteAssetsForRepository(ctx, repoID)
		if err != nil {
			if err := s.surface(ctx, services.Wrap(services.ErrPersistence, "repository", "delete assets", "", err)); err != nil {
				return err
			}
		}
		for _, asset := range assets {
			if asset.BlobKey == "" {
				continue
			}
			if err := s.blobs.Delete(ctx, asset.BlobKey); err != nil {
				logging.WarnWithContext(logger, "asset blob not deleted", "blob_delete_failed",
					logging.Int64(logging.FieldAssetID, asset.ID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "the orphaned blob can be removed by hand"),
				)
			}
		}
		assetsRemoved = len(assets)
	}
	if s.mirror != nil {
		if err := s.mirror.Remove(repoID); err != nil {
			logging.WarnWithContext(logger, "git mirror not removed", "mirror_remove_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete the mirror directory by hand"),
			)
		}
	}
	s.forget(repoID)
	logger.Info("repository deleted",
		logging.String(logging.FieldEventType, "repository_deleted"),
		logging.Bool("cascade", s.cfg.Storage.CascadeAssets),
		logging.Int("assets_removed", assetsRemoved),
	)
	return nil
}

// ListCommits returns the repository's commits in id order.
func (s *Service) ListCommits(ctx context.Context, repoID int64) ([]store.Commit, error) {
	repo, err := s.OpenRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}
	return repo.Commits, nil
}

// GetCommit returns one commit by id. Ids may be given unpadded.
func (s *Service) GetCommit(ctx context.Context, repoID int64, commitID string) (store.Commit, error) {
	commits, err := s.ListCommits(ctx, repoID)
	if err != nil {
		return store.Commit{}, err
	}
	if seq, ok := commit.ParseID(commitID); ok {
		commitID = commit.FormatID(seq)
	}
	for _, c := range commits {
		if c.ID == commitID {
			return c, nil
		}
	}
	return store.Commit{}, services.Wrap(services.ErrNotFound, "repository", "get commit", fmt.Sprintf("commit %q not found", commitID), nil)
}
