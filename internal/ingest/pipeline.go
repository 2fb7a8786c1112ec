package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidrepo/internal/blobstore"
	"vidrepo/internal/config"
	"vidrepo/internal/logging"
	"vidrepo/internal/media/extract"
	"vidrepo/internal/metrics"
	"vidrepo/internal/scenes"
	"vidrepo/internal/services"
	"vidrepo/internal/services/transcribe"
	"vidrepo/internal/services/vision"
	"vidrepo/internal/store"
	"vidrepo/internal/tree"
)

// Mutation edits a repository tree and names the commit recording the edit.
type Mutation func(repo *store.Repository) (next tree.Tree, message string, err error)

// Workspace applies tree mutations to a repository under its lock and
// commits them.
type Workspace interface {
	Apply(ctx context.Context, repoID int64, author string, mutate Mutation) error
}

// AssetStore persists asset rows.
type AssetStore interface {
	GetAsset(ctx context.Context, id int64) (*store.Asset, error)
	UpdateAsset(ctx context.Context, asset *store.Asset) error
}

// Dependencies are the collaborators a Pipeline drives.
type Dependencies struct {
	Workspace   Workspace
	Assets      AssetStore
	Blobs       blobstore.Store
	Extractor   extract.Extractor
	Transcriber transcribe.Transcriber
	Analyzer    vision.Analyzer
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Options tune pipeline behaviour.
type Options struct {
	Author          string
	MaxFrames       int
	ScenesMode      scenes.Mode
	Transcribe      transcribe.Options
	AnalysisEnabled bool
}

// OptionsFromConfig maps the ingest section of the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Author:     cfg.Ingest.Author,
		MaxFrames:  cfg.Ingest.MaxFrames,
		ScenesMode: scenes.ParseMode(cfg.Ingest.ScenesMode),
		Transcribe: transcribe.Options{
			Language:  cfg.Transcription.Language,
			Translate: cfg.Transcription.Translate,
		},
		AnalysisEnabled: cfg.Analysis.Enabled,
	}
}

// Pipeline moves assets from pending to indexed.
type Pipeline struct {
	deps   Dependencies
	opts   Options
	clock  func() time.Time
	logger *slog.Logger
}

// New constructs a pipeline. Missing collaborators behave as if they
// returned empty results.
func New(deps Dependencies, opts Options) *Pipeline {
	if opts.Author == "" {
		opts.Author = config.DefaultIngestAuthor
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = 5
	}
	if opts.ScenesMode == "" {
		opts.ScenesMode = scenes.ModeUpsert
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		clock:  time.Now,
		logger: logging.NewComponentLogger(deps.Logger, "ingest"),
	}
}

// WithClock overrides the time source used for metadata timestamps.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// job carries the intermediate artifacts of one run.
type job struct {
	asset      *store.Asset
	payload    []byte
	frames     [][]byte
	audio      []byte
	transcript transcribe.Result
	analysis   vision.Result
}

// RunBatch ingests assets one after another in submission order. A failing
// asset never stops the batch; cancellation does.
func (p *Pipeline) RunBatch(ctx context.Context, assets []*store.Asset) error {
	var errs []error
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Run(ctx, asset); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("asset %d: %w", asset.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Reingest resets an existing asset to pending and runs it again.
func (p *Pipeline) Reingest(ctx context.Context, assetID int64) (*store.Asset, error) {
	asset, err := p.deps.Assets.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, services.Wrap(services.ErrNotFound, "ingest", "reingest", fmt.Sprintf("asset %d not found", assetID), nil)
	}
	asset.Status = store.StatusPending
	asset.Progress = 0
	ctx = services.WithAssetID(services.WithRepositoryID(ctx, asset.RepositoryID), asset.ID)
	if err := p.transition(ctx, asset); err != nil {
		return asset, err
	}
	return asset, p.Run(ctx, asset)
}

// Run drives asset through every stage that applies to its kind. It returns
// ctx.Err() when cancelled between stages and a structural error when the
// repository can no longer be written; collaborator and persistence failures
// are logged and absorbed.
func (p *Pipeline) Run(ctx context.Context, asset *store.Asset) (err error) {
	ctx = services.WithAssetID(services.WithRepositoryID(ctx, asset.RepositoryID), asset.ID)
	logger := logging.WithContext(ctx, p.logger)

	p.deps.Metrics.AssetStarted()
	started := time.Now()
	defer func() {
		p.deps.Metrics.AssetFinished(asset.Kind, asset.Status)
		if err != nil {
			logger.Info("ingest stopped",
				logging.String(logging.FieldEventType, "ingest_stopped"),
				logging.String(logging.FieldStatus, string(asset.Status)),
				logging.Error(err),
			)
		}
	}()

	logger.Info("ingest started",
		logging.String(logging.FieldEventType, "ingest_start"),
		logging.String("name", asset.Name),
		logging.String("kind", string(asset.Kind)),
	)

	j := &job{asset: asset}
	j.payload = p.loadPayload(ctx, logger, asset)

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !st.appliesTo(asset.Kind) {
			continue
		}
		if err := p.runStage(ctx, j, st); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.finish(ctx, j); err != nil {
		return err
	}

	logger.Info("ingest completed",
		logging.String(logging.FieldEventType, "ingest_complete"),
		logging.String(logging.FieldStatus, string(asset.Status)),
		logging.Int("tags", len(asset.Tags)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, j *job, st stage) error {
	ctx = services.WithStage(ctx, st.name)
	logger := logging.WithContext(ctx, p.logger)

	if j.asset.Status != st.status {
		j.asset.Status = st.status
		j.asset.Progress = 0
		if err := p.transition(ctx, j.asset); err != nil {
			return err
		}
	}

	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	started := time.Now()
	if err := st.execute(ctx, p, j); err != nil {
		p.deps.Metrics.StageFailed(st.name)
		logging.WarnWithContext(logger, "stage failed; continuing with empty result", st.name+"_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, st.impact),
		)
	}
	elapsed := time.Since(started)
	p.deps.Metrics.ObserveStage(st.name, elapsed)
	p.progress(ctx, j.asset, st.status, st.done)
	logger.Debug("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}

// transition persists a status change: asset row, placeholder content and a
// "chore: <name> <status>" commit.
func (p *Pipeline) transition(ctx context.Context, asset *store.Asset) error {
	logger := logging.WithContext(ctx, p.logger)
	p.saveAsset(ctx, asset)
	p.publish(logger, asset)

	err := p.deps.Workspace.Apply(ctx, asset.RepositoryID, p.opts.Author, func(repo *store.Repository) (tree.Tree, string, error) {
		next := refreshPlaceholder(repo.Tree, asset)
		return next, fmt.Sprintf("chore: %s %s", asset.Name, asset.Status), nil
	})
	return p.absorb(logger, "status commit", err)
}

// finish writes metadata, subtitles and the scenes entry in one commit and
// marks the asset indexed.
func (p *Pipeline) finish(ctx context.Context, j *job) error {
	ctx = services.WithStage(ctx, "commit")
	logger := logging.WithContext(ctx, p.logger)
	asset := j.asset

	asset.Tags = j.analysis.Tags
	asset.Status = store.StatusIndexed
	asset.Progress = 100

	err := p.deps.Workspace.Apply(ctx, asset.RepositoryID, p.opts.Author, func(repo *store.Repository) (tree.Tree, string, error) {
		next, err := p.writeDocuments(logger, repo.Tree, j)
		if err != nil {
			return repo.Tree, "", err
		}
		next = refreshPlaceholder(next, asset)
		return next, fmt.Sprintf("feat: ingested %s (AI index)", asset.Name), nil
	})
	if err := p.absorb(logger, "ingest commit", err); err != nil {
		return err
	}
	p.saveAsset(ctx, asset)
	p.publish(logger, asset)
	return nil
}

func (p *Pipeline) writeDocuments(logger *slog.Logger, current tree.Tree, j *job) (tree.Tree, error) {
	asset := j.asset
	now := p.clock().UTC()

	var prior string
	if folder, ok := current.TopLevel(tree.FolderMetadata); ok {
		if node, ok := current.ChildByName(folder.ID, MetadataName(asset.ID)); ok {
			prior, _ = node.Content()
		}
	}
	meta := Metadata{
		AssetID:     asset.ID,
		Name:        asset.Name,
		Kind:        asset.Kind,
		Analysis:    j.analysis,
		Segments:    j.transcript.Segments,
		ProcessedAt: now,
		History:     append(previousHistory(prior), HistoryEntry{Timestamp: now, Action: "ingested"}),
	}
	if asset.Kind != store.KindImage {
		text := j.transcript.Text
		meta.Transcript = &text
	}
	content, err := encodeMetadata(meta)
	if err != nil {
		return current, err
	}
	next, _, err := current.UpsertFile(tree.FolderMetadata, MetadataName(asset.ID), content)
	if err != nil {
		return current, err
	}

	if captions := j.transcript.Captions; captions != "" {
		next, _, err = next.UpsertFile(tree.FolderSubtitles, SubtitleName(asset.ID), captions)
		if err != nil {
			return current, err
		}
	}

	var doc string
	if folder, ok := next.TopLevel(tree.FolderScenes); ok {
		if node, ok := next.ChildByName(folder.ID, tree.ScenesFile); ok {
			doc, _ = node.Content()
		}
	}
	merged, err := scenes.Merge([]byte(doc), scenes.Entry{
		ID:          asset.ID,
		Name:        asset.Name,
		Description: j.analysis.Description,
		Tags:        j.analysis.Tags,
	}, p.opts.ScenesMode)
	if err != nil {
		if !errors.Is(err, scenes.ErrMalformed) {
			return current, err
		}
		logging.WarnWithContext(logger, "scenes document was malformed; rewriting it", "scenes_malformed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect scenes/scenes.json history for the corrupting edit"),
		)
	}
	next, _, err = next.UpsertFile(tree.FolderScenes, tree.ScenesFile, string(merged))
	if err != nil {
		return current, err
	}
	return next, nil
}

// refreshPlaceholder rewrites the asset's media node. A placeholder the user
// removed or locked is left alone.
func refreshPlaceholder(current tree.Tree, asset *store.Asset) tree.Tree {
	node, ok := current.Find(asset.NodeID)
	if !ok || node.IsFolder() || node.Locked {
		return current
	}
	next, err := current.UpdateContent(node.ID, PlaceholderContent(asset))
	if err != nil {
		return current
	}
	return next
}

// absorb logs persistence failures and lets the pipeline continue; any other
// error stops the asset.
func (p *Pipeline) absorb(logger *slog.Logger, what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrPersistence) {
		logging.WarnWithContext(logger, what+" not persisted", "persistence_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
		return nil
	}
	logging.ErrorWithContext(logger, what+" failed", "ingest_failed", logging.Error(err))
	return err
}

func (p *Pipeline) progress(ctx context.Context, asset *store.Asset, status store.AssetStatus, percent int) {
	before := asset.Progress
	asset.SetProgress(status, percent)
	if asset.Progress == before {
		return
	}
	logger := logging.WithContext(ctx, p.logger)
	p.saveAsset(ctx, asset)
	p.publish(logger, asset)
}

func (p *Pipeline) publish(logger *slog.Logger, asset *store.Asset) {
	logger.Info("asset progress",
		logging.String(logging.FieldEventType, "asset_progress"),
		logging.String(logging.FieldStatus, string(asset.Status)),
		logging.Int(logging.FieldProgress, asset.Progress),
	)
}

func (p *Pipeline) saveAsset(ctx context.Context, asset *store.Asset) {
	if p.deps.Assets == nil {
		return
	}
	if err := p.deps.Assets.UpdateAsset(ctx, asset); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "asset row not persisted", "persistence_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(services.ErrPersistence)),
		)
	}
}

func (p *Pipeline) loadPayload(ctx context.Context, logger *slog.Logger, asset *store.Asset) []byte {
	if p.deps.Blobs == nil || asset.BlobKey == "" {
		return nil
	}
	data, err := p.deps.Blobs.Get(ctx, asset.BlobKey)
	if err != nil {
		logging.WarnWithContext(logger, "asset payload unavailable", "blob_missing",
			logging.Error(err),
			logging.String("blob_key", asset.BlobKey),
			logging.String(logging.FieldErrorHint, "re-upload the asset"),
			logging.String(logging.FieldImpact, "analysis runs without media"),
		)
		return nil
	}
	return data
}
