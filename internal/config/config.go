package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data and mirror directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	MirrorDir string `toml:"mirror_dir"`
}

// Storage controls the record and blob persistence backends.
type Storage struct {
	BlobBackend    string `toml:"blob_backend"`
	BadgerInMemory bool   `toml:"badger_in_memory"`
	// CascadeAssets deletes asset rows and blobs together with their repository.
	CascadeAssets bool `toml:"cascade_assets"`
	// Strict surfaces persistence failures to callers instead of only logging them.
	Strict bool `toml:"strict"`
}

// Commit contains commit authoring settings.
type Commit struct {
	Author string `toml:"author"`
}

// Ingest contains ingestion pipeline settings.
type Ingest struct {
	Enabled              bool   `toml:"enabled"`
	Author               string `toml:"author"`
	FrameIntervalSeconds int    `toml:"frame_interval_seconds"`
	MaxFrames            int    `toml:"max_frames"`
	ScenesMode           string `toml:"scenes_mode"`
}

// Extraction contains ffmpeg/ffprobe settings.
type Extraction struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Transcription contains speech-to-text collaborator settings.
type Transcription struct {
	Backend             string `toml:"backend"`
	BaseURL             string `toml:"base_url"`
	APIToken            string `toml:"api_token"`
	ModelVersion        string `toml:"model_version"`
	Language            string `toml:"language"`
	Translate           bool   `toml:"translate"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxPollAttempts     int    `toml:"max_poll_attempts"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	WhisperXModel       string `toml:"whisperx_model"`
}

// Analysis contains vision/semantic analysis collaborator settings.
type Analysis struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxTokens      int    `toml:"max_tokens"`
}

// Mirror controls exporting commits into a git working tree.
type Mirror struct {
	Enabled bool `toml:"enabled"`
}

// API contains HTTP server settings.
type API struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for vidrepo.
//
// Configuration sections by subsystem:
//   - Paths: data directory (SQLite, blobs, lock) and git mirror directory
//   - Storage: blob backend, cascade and strictness policies
//   - Commit / Ingest: authoring and pipeline behaviour
//   - Extraction / Transcription / Analysis: external collaborators
//   - Mirror, API, Logging
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Commit        Commit        `toml:"commit"`
	Ingest        Ingest        `toml:"ingest"`
	Extraction    Extraction    `toml:"extraction"`
	Transcription Transcription `toml:"transcription"`
	Analysis      Analysis      `toml:"analysis"`
	Mirror        Mirror        `toml:"mirror"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if value, ok := os.LookupEnv("VIDREPO_CONFIG"); ok && strings.TrimSpace(value) != "" {
			path = strings.TrimSpace(value)
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidrepo.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data directory and, when mirroring is on,
// the mirror directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir}
	if c.Mirror.Enabled {
		dirs = append(dirs, c.Paths.MirrorDir)
	}
	if c.Storage.BlobBackend == BlobBackendFilesystem || (c.Storage.BlobBackend == BlobBackendBadger && !c.Storage.BadgerInMemory) {
		dirs = append(dirs, c.BlobDir())
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "vidrepo.db")
}

// BlobDir returns the directory holding asset payloads.
func (c *Config) BlobDir() string {
	return filepath.Join(c.Paths.DataDir, "blobs")
}

// LockPath returns the process lock file guarding the data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidrepo.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
