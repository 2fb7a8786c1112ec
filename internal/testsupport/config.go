package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidrepo/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory. Blobs
// live in memory, collaborators are pointed at nothing and the git mirror is
// off unless an option turns it on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.MirrorDir = filepath.Join(base, "mirror")
	cfgVal.Storage.BadgerInMemory = true
	cfgVal.Transcription.Backend = config.TranscriptionBackendNone
	cfgVal.Transcription.PollIntervalSeconds = 1
	cfgVal.Transcription.MaxPollAttempts = 3
	cfgVal.Analysis.APIKey = "test"
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Logging.Format = "json"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMirror enables the git commit mirror.
func WithMirror() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mirror.Enabled = true
	}
}

// WithStrictStorage surfaces persistence errors to callers.
func WithStrictStorage() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Strict = true
	}
}

// WithCascade deletes assets together with their repository.
func WithCascade() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.CascadeAssets = true
	}
}

// WithIngestDisabled stores uploads as ready without running the pipeline.
func WithIngestDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.Enabled = false
	}
}

// WithScenesMode overrides the scenes aggregation mode.
func WithScenesMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.ScenesMode = mode
	}
}

// WithFilesystemBlobs stores blobs on disk instead of in memory.
func WithFilesystemBlobs() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.BlobBackend = config.BlobBackendFilesystem
		b.cfg.Storage.BadgerInMemory = false
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg, ffprobe and uvx are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "uvx"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
