package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"vidrepo/internal/blobstore"
	"vidrepo/internal/commit"
	"vidrepo/internal/ingest"
	"vidrepo/internal/media/extract"
	"vidrepo/internal/scenes"
	"vidrepo/internal/services"
	"vidrepo/internal/services/transcribe"
	"vidrepo/internal/services/vision"
	"vidrepo/internal/store"
	"vidrepo/internal/testsupport"
	"vidrepo/internal/tree"
)

// memoryWorkspace applies mutations to a single repository held in memory
// and commits them through a real engine.
type memoryWorkspace struct {
	mu     sync.Mutex
	repo   *store.Repository
	engine *commit.Engine
}

func (w *memoryWorkspace) Apply(ctx context.Context, repoID int64, author string, mutate ingest.Mutation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if repoID != w.repo.ID {
		return services.Wrap(services.ErrNotFound, "test", "apply", fmt.Sprintf("repository %d", repoID), nil)
	}
	next, message, err := mutate(w.repo)
	if err != nil {
		return err
	}
	_, err = w.engine.CommitAs(ctx, w.repo, author, message, "", next)
	return err
}

func (w *memoryWorkspace) messages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.repo.Commits))
	for _, c := range w.repo.Commits {
		out = append(out, c.Message)
	}
	return out
}

func (w *memoryWorkspace) file(t *testing.T, folder, name string) (string, bool) {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	parent, ok := w.repo.Tree.TopLevel(folder)
	if !ok {
		return "", false
	}
	node, ok := w.repo.Tree.ChildByName(parent.ID, name)
	if !ok {
		return "", false
	}
	content, ok := node.Content()
	return content, ok
}

type harness struct {
	st          *store.Store
	blobs       blobstore.Store
	workspace   *memoryWorkspace
	extractor   *testsupport.StubExtractor
	transcriber *testsupport.StubTranscriber
	analyzer    *testsupport.StubAnalyzer
	pipeline    *ingest.Pipeline
}

func newHarness(t *testing.T, opts ...func(*ingest.Options)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	blobs := testsupport.NewMemoryBlobs(t)
	repo := testsupport.NewRepository(t, st, "demo")

	h := &harness{
		st:    st,
		blobs: blobs,
		workspace: &memoryWorkspace{
			repo:   repo,
			engine: commit.NewEngine(st, cfg.Commit.Author, nil),
		},
		extractor: &testsupport.StubExtractor{Result: extract.Result{
			Frames: [][]byte{[]byte("f1"), []byte("f2"), []byte("f3"), []byte("f4"), []byte("f5"), []byte("f6"), []byte("f7")},
			Audio:  []byte("RIFF"),
		}},
		transcriber: &testsupport.StubTranscriber{Result: transcribe.Result{
			Segments: []transcribe.Segment{{Start: 0, End: 1.5, Text: "hello there"}},
		}},
		analyzer: &testsupport.StubAnalyzer{Result: vision.Result{
			Description: "a beach at sunset",
			Tags:        []string{"Beach", "sunset", "#beach"},
		}},
	}

	options := ingest.OptionsFromConfig(cfg)
	for _, opt := range opts {
		opt(&options)
	}
	h.pipeline = ingest.New(ingest.Dependencies{
		Workspace:   h.workspace,
		Assets:      st,
		Blobs:       blobs,
		Extractor:   h.extractor,
		Transcriber: h.transcriber,
		Analyzer:    h.analyzer,
	}, options).WithClock(func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) })
	return h
}

// upload registers an asset the way the facade does: blob, row, placeholder.
func (h *harness) upload(t *testing.T, name, mimeType string, payload []byte) *store.Asset {
	t.Helper()
	ctx := context.Background()
	kind, mt, err := ingest.Classify(name, mimeType)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	asset := &store.Asset{RepositoryID: h.workspace.repo.ID, Name: name, Kind: kind, MimeType: mt, Size: int64(len(payload))}
	if err := h.st.CreateAsset(ctx, asset); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	asset.BlobKey = blobstore.AssetKey(asset.ID)
	if err := h.blobs.Put(ctx, asset.BlobKey, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	media, _ := h.workspace.repo.Tree.TopLevel(tree.FolderMedia)
	node := tree.NewFile(name, ingest.PlaceholderContent(asset))
	next, err := h.workspace.repo.Tree.InsertChild(media.ID, node)
	if err != nil {
		t.Fatalf("InsertChild: %v", err)
	}
	h.workspace.repo.Tree = next
	asset.NodeID = node.ID
	if err := h.st.UpdateAsset(ctx, asset); err != nil {
		t.Fatalf("UpdateAsset: %v", err)
	}
	return asset
}

func decodeMetadata(t *testing.T, content string) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	return doc
}

func TestRunVideoReachesIndexed(t *testing.T) {
	h := newHarness(t)
	asset := h.upload(t, "clip.mp4", "video/mp4", []byte("video-bytes"))

	if err := h.pipeline.Run(context.Background(), asset); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if asset.Status != store.StatusIndexed || asset.Progress != 100 {
		t.Fatalf("asset = %s/%d, want indexed/100", asset.Status, asset.Progress)
	}

	want := []string{
		"chore: clip.mp4 transcribing",
		"chore: clip.mp4 detecting",
		"feat: ingested clip.mp4 (AI index)",
	}
	got := h.workspace.messages()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("commits = %q, want %q", got, want)
	}

	requests := h.analyzer.Analyzed()
	if len(requests) != 1 || len(requests[0].Images) != 5 {
		t.Fatalf("analysis requests = %+v, want one with 5 frames", requests)
	}
	if string(h.transcriber.Audio[0]) != "RIFF" {
		t.Fatalf("transcriber got %q, want extracted audio", h.transcriber.Audio[0])
	}

	content, ok := h.workspace.file(t, tree.FolderMetadata, ingest.MetadataName(asset.ID))
	if !ok {
		t.Fatal("metadata file missing")
	}
	meta := decodeMetadata(t, content)
	if meta["transcript"] != "hello there" {
		t.Fatalf("transcript = %v", meta["transcript"])
	}
	if history, _ := meta["history"].([]any); len(history) != 1 {
		t.Fatalf("history = %v, want one entry", meta["history"])
	}

	if srt, ok := h.workspace.file(t, tree.FolderSubtitles, ingest.SubtitleName(asset.ID)); !ok || !strings.Contains(srt, "hello there") {
		t.Fatalf("subtitles = %q, %v", srt, ok)
	}

	doc, _ := h.workspace.file(t, tree.FolderScenes, tree.ScenesFile)
	entries, err := scenes.Entries([]byte(doc))
	if err != nil || len(entries) != 1 {
		t.Fatalf("scenes entries = %+v, %v", entries, err)
	}
	if got := strings.Join(entries[0].Tags, ","); got != "beach,sunset" {
		t.Fatalf("scene tags = %q", got)
	}

	placeholder, _ := h.workspace.file(t, tree.FolderMedia, "clip.mp4")
	if !strings.Contains(placeholder, `"status": "indexed"`) {
		t.Fatalf("placeholder = %s", placeholder)
	}

	row, err := h.st.GetAsset(context.Background(), asset.ID)
	if err != nil || row == nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if row.Status != store.StatusIndexed || strings.Join(row.Tags, ",") != "beach,sunset" {
		t.Fatalf("row = %+v", row)
	}
}

func TestRunTranscriptionTimeoutStillIndexes(t *testing.T) {
	h := newHarness(t)
	h.transcriber.Err = services.Wrap(services.ErrTimeout, "transcribe", "poll", "gave up", nil)
	asset := h.upload(t, "talk.mp3", "audio/mpeg", []byte("mp3"))

	if err := h.pipeline.Run(context.Background(), asset); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if asset.Status != store.StatusIndexed {
		t.Fatalf("status = %s", asset.Status)
	}
	if h.extractor.Calls != 0 {
		t.Fatalf("extractor called for audio")
	}
	if string(h.transcriber.Audio[0]) != "mp3" {
		t.Fatalf("audio asset should be transcribed from its payload")
	}
	if got := h.transcriber.Options[0].MimeType; got != "audio/mpeg" {
		t.Fatalf("transcription mime = %q, want audio/mpeg", got)
	}
	if len(h.analyzer.Requests) != 1 || string(h.analyzer.Requests[0].Audio) != "mp3" {
		t.Fatalf("audio asset should be analyzed from its payload: %+v", h.analyzer.Requests)
	}

	content, _ := h.workspace.file(t, tree.FolderMetadata, ingest.MetadataName(asset.ID))
	meta := decodeMetadata(t, content)
	if transcript, ok := meta["transcript"].(string); !ok || transcript != "" {
		t.Fatalf("transcript = %#v, want empty string", meta["transcript"])
	}
	if _, ok := h.workspace.file(t, tree.FolderSubtitles, ingest.SubtitleName(asset.ID)); ok {
		t.Fatal("no subtitles expected without a transcript")
	}
}

func TestRunImageSkipsTranscription(t *testing.T) {
	h := newHarness(t)
	asset := h.upload(t, "shot.png", "image/png", []byte("png"))

	if err := h.pipeline.Run(context.Background(), asset); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.transcriber.Transcribed() != 0 {
		t.Fatal("images must not be transcribed")
	}
	want := "chore: shot.png detecting|feat: ingested shot.png (AI index)"
	if got := strings.Join(h.workspace.messages(), "|"); got != want {
		t.Fatalf("commits = %q", got)
	}
	requests := h.analyzer.Analyzed()
	if len(requests) != 1 || string(requests[0].Images[0]) != "png" {
		t.Fatalf("image analysis should send the raw payload: %+v", requests)
	}

	content, _ := h.workspace.file(t, tree.FolderMetadata, ingest.MetadataName(asset.ID))
	meta := decodeMetadata(t, content)
	if v, present := meta["transcript"]; !present || v != nil {
		t.Fatalf("transcript = %#v, want null", v)
	}
}

func TestRunAnalysisFailureLeavesEmptyTags(t *testing.T) {
	h := newHarness(t)
	h.analyzer.Err = services.Wrap(services.ErrExternalTool, "vision", "analyze", "boom", nil)
	h.extractor.Err = errors.New("ffmpeg missing")
	asset := h.upload(t, "clip.mov", "video/quicktime", []byte("mov"))

	if err := h.pipeline.Run(context.Background(), asset); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if asset.Status != store.StatusIndexed || len(asset.Tags) != 0 {
		t.Fatalf("asset = %+v", asset)
	}
	if h.transcriber.Transcribed() != 0 {
		t.Fatal("no audio should reach the transcriber after a failed extraction")
	}
}

func TestReingestAppendsHistoryAndUpsertsScenes(t *testing.T) {
	h := newHarness(t)
	asset := h.upload(t, "clip.mp4", "video/mp4", []byte("video"))
	ctx := context.Background()

	if err := h.pipeline.Run(ctx, asset); err != nil {
		t.Fatalf("Run: %v", err)
	}
	again, err := h.pipeline.Reingest(ctx, asset.ID)
	if err != nil {
		t.Fatalf("Reingest: %v", err)
	}
	if again.Status != store.StatusIndexed {
		t.Fatalf("status = %s", again.Status)
	}

	messages := h.workspace.messages()
	if messages[3] != "chore: clip.mp4 pending" {
		t.Fatalf("reingest should reset to pending first: %q", messages)
	}

	content, _ := h.workspace.file(t, tree.FolderMetadata, ingest.MetadataName(asset.ID))
	meta := decodeMetadata(t, content)
	if history, _ := meta["history"].([]any); len(history) != 2 {
		t.Fatalf("history = %v, want two entries", meta["history"])
	}
	doc, _ := h.workspace.file(t, tree.FolderScenes, tree.ScenesFile)
	if entries, _ := scenes.Entries([]byte(doc)); len(entries) != 1 {
		t.Fatalf("upsert mode should keep one entry, got %d", len(entries))
	}
}

func TestReingestAppendModeDuplicatesScenes(t *testing.T) {
	h := newHarness(t, func(o *ingest.Options) { o.ScenesMode = scenes.ModeAppend })
	asset := h.upload(t, "clip.mp4", "video/mp4", []byte("video"))
	ctx := context.Background()

	if err := h.pipeline.Run(ctx, asset); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := h.pipeline.Reingest(ctx, asset.ID); err != nil {
		t.Fatalf("Reingest: %v", err)
	}
	doc, _ := h.workspace.file(t, tree.FolderScenes, tree.ScenesFile)
	if entries, _ := scenes.Entries([]byte(doc)); len(entries) != 2 {
		t.Fatalf("append mode should keep both entries, got %d", len(entries))
	}
}

func TestReingestUnknownAsset(t *testing.T) {
	h := newHarness(t)
	if _, err := h.pipeline.Reingest(context.Background(), 999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRunRecreatesDeletedScenesFile(t *testing.T) {
	h := newHarness(t)
	asset := h.upload(t, "shot.jpg", "image/jpeg", []byte("jpg"))

	folder, _ := h.workspace.repo.Tree.TopLevel(tree.FolderScenes)
	file, _ := h.workspace.repo.Tree.ChildByName(folder.ID, tree.ScenesFile)
	next, _, err := h.workspace.repo.Tree.Remove(file.ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	h.workspace.repo.Tree = next

	if err := h.pipeline.Run(context.Background(), asset); err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc, ok := h.workspace.file(t, tree.FolderScenes, tree.ScenesFile)
	if !ok {
		t.Fatal("scenes file was not recreated")
	}
	if entries, _ := scenes.Entries([]byte(doc)); len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
}

type cancellingAnalyzer struct {
	cancel context.CancelFunc
}

func (a cancellingAnalyzer) Analyze(context.Context, vision.Request) (vision.Result, error) {
	a.cancel()
	return vision.Result{Description: "done", Tags: []string{"x"}}, nil
}

func TestRunCancellationStopsAfterCurrentStep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	blobs := testsupport.NewMemoryBlobs(t)
	repo := testsupport.NewRepository(t, st, "demo")
	ws := &memoryWorkspace{repo: repo, engine: commit.NewEngine(st, "tester", nil)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipeline := ingest.New(ingest.Dependencies{
		Workspace: ws,
		Assets:    st,
		Blobs:     blobs,
		Analyzer:  cancellingAnalyzer{cancel: cancel},
	}, ingest.OptionsFromConfig(cfg))

	asset := &store.Asset{RepositoryID: repo.ID, Name: "shot.png", Kind: store.KindImage, MimeType: "image/png"}
	if err := st.CreateAsset(context.Background(), asset); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}

	err := pipeline.Run(ctx, asset)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if asset.Status != store.StatusDetecting {
		t.Fatalf("status = %s, want detecting", asset.Status)
	}
	for _, msg := range ws.messages() {
		if strings.HasPrefix(msg, "feat: ingested") {
			t.Fatalf("cancelled asset was committed as ingested: %q", ws.messages())
		}
	}
}

func TestRunBatchProcessesInOrder(t *testing.T) {
	h := newHarness(t)
	first := h.upload(t, "a.png", "image/png", []byte("a"))
	second := h.upload(t, "b.png", "image/png", []byte("b"))

	if err := h.pipeline.RunBatch(context.Background(), []*store.Asset{first, second}); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	requests := h.analyzer.Analyzed()
	if len(requests) != 2 || requests[0].Name != "a.png" || requests[1].Name != "b.png" {
		t.Fatalf("requests out of order: %+v", requests)
	}

	doc, _ := h.workspace.file(t, tree.FolderScenes, tree.ScenesFile)
	entries, err := scenes.Entries([]byte(doc))
	if err != nil || len(entries) != 2 {
		t.Fatalf("scenes entries = %+v, %v; want one per asset", entries, err)
	}
	for i, asset := range []*store.Asset{first, second} {
		if entries[i].ID != asset.ID || entries[i].Name != asset.Name {
			t.Fatalf("entry %d = %+v, want asset %d", i, entries[i], asset.ID)
		}
		if _, ok := h.workspace.file(t, tree.FolderMetadata, fmt.Sprintf("%d.json", asset.ID)); !ok {
			t.Fatalf("metadata/%d.json missing", asset.ID)
		}
	}
}

func TestRunStopsWhenRepositoryIsGone(t *testing.T) {
	h := newHarness(t)
	asset := h.upload(t, "a.png", "image/png", []byte("a"))
	asset.RepositoryID = 4242

	if err := h.pipeline.Run(context.Background(), asset); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
