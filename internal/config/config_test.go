package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vidrepo/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VIDREPO_CONFIG", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "vidrepo")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "vidrepo.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
	if cfg.Analysis.APIKey != "sk-test" {
		t.Fatalf("expected analysis key from env, got %q", cfg.Analysis.APIKey)
	}
	if cfg.Ingest.FrameIntervalSeconds != 5 || cfg.Ingest.MaxFrames != 5 {
		t.Fatalf("unexpected ingest cadence %+v", cfg.Ingest)
	}
	if cfg.Ingest.ScenesMode != config.ScenesModeUpsert {
		t.Fatalf("expected upsert scenes mode, got %q", cfg.Ingest.ScenesMode)
	}
	if cfg.Storage.CascadeAssets {
		t.Fatal("expected cascade disabled by default")
	}
	if cfg.Ingest.Author != "vidrepo-ingest" {
		t.Fatalf("unexpected ingest author %q", cfg.Ingest.Author)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg := config.Default()
	cfg.Paths.DataDir = "~/media-repos"
	cfg.Storage.BlobBackend = "FILESYSTEM"
	cfg.Ingest.ScenesMode = "append"
	cfg.Transcription.Backend = "whisperx"
	cfg.Logging.Format = "json"

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(tempHome, "custom.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if loaded.Paths.DataDir != filepath.Join(tempHome, "media-repos") {
		t.Fatalf("unexpected data dir %q", loaded.Paths.DataDir)
	}
	if loaded.Storage.BlobBackend != config.BlobBackendFilesystem {
		t.Fatalf("expected backend to be lower-cased, got %q", loaded.Storage.BlobBackend)
	}
	if loaded.Ingest.ScenesMode != config.ScenesModeAppend {
		t.Fatalf("unexpected scenes mode %q", loaded.Ingest.ScenesMode)
	}
	if loaded.Transcription.Backend != config.TranscriptionBackendWhisperX {
		t.Fatalf("unexpected backend %q", loaded.Transcription.Backend)
	}
}

func TestLoadHonoursConfigEnvVar(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "env.toml")
	if err := os.WriteFile(path, []byte("[commit]\nauthor = \"editor\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VIDREPO_CONFIG", path)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected env config path, got %q", resolved)
	}
	if cfg.Commit.Author != "editor" || cfg.Ingest.Author != "vidrepo-ingest" {
		t.Fatalf("unexpected authors %q / %q", cfg.Commit.Author, cfg.Ingest.Author)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "bad.toml")
	if err := os.WriteFile(path, []byte("[commit]\nauthr = \"typo\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"blob backend", func(c *config.Config) { c.Storage.BlobBackend = "s3" }, "storage.blob_backend"},
		{"scenes mode", func(c *config.Config) { c.Ingest.ScenesMode = "merge" }, "ingest.scenes_mode"},
		{"frame interval", func(c *config.Config) { c.Ingest.FrameIntervalSeconds = -1 }, "ingest.frame_interval_seconds"},
		{"poll attempts", func(c *config.Config) { c.Transcription.MaxPollAttempts = -3 }, "transcription.max_poll_attempts"},
		{"transcription backend", func(c *config.Config) { c.Transcription.Backend = "cloud" }, "transcription.backend"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestEnsureDirectoriesCreatesDataAndMirror(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.MirrorDir = filepath.Join(base, "mirror")
	cfg.Mirror.Enabled = true

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.MirrorDir, cfg.BlobDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "config", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil || !exists {
		t.Fatalf("expected sample config to load, exists=%v err=%v", exists, err)
	}
	if cfg.Ingest.ScenesMode != config.ScenesModeUpsert {
		t.Fatalf("sample scenes_mode = %q, want %q", cfg.Ingest.ScenesMode, config.ScenesModeUpsert)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(raw), `"append" adds a second entry`) {
		t.Fatal("sample config should document the append scenes mode")
	}
}
