package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeCommit()
	c.normalizeIngest()
	c.normalizeExtraction()
	c.normalizeTranscription()
	c.normalizeAnalysis()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MirrorDir) == "" {
		c.Paths.MirrorDir = defaultMirrorDir
	}
	if c.Paths.MirrorDir, err = expandPath(c.Paths.MirrorDir); err != nil {
		return fmt.Errorf("paths.mirror_dir: %w", err)
	}
	if c.Logging.File != "" {
		if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.BlobBackend = strings.ToLower(strings.TrimSpace(c.Storage.BlobBackend))
	if c.Storage.BlobBackend == "" {
		c.Storage.BlobBackend = BlobBackendBadger
	}
}

func (c *Config) normalizeCommit() {
	c.Commit.Author = strings.TrimSpace(c.Commit.Author)
	if c.Commit.Author == "" {
		c.Commit.Author = DefaultCommitAuthor
	}
}

func (c *Config) normalizeIngest() {
	c.Ingest.Author = strings.TrimSpace(c.Ingest.Author)
	if c.Ingest.Author == "" {
		c.Ingest.Author = c.Commit.Author
	}
	if c.Ingest.FrameIntervalSeconds == 0 {
		c.Ingest.FrameIntervalSeconds = defaultFrameIntervalSeconds
	}
	if c.Ingest.MaxFrames == 0 {
		c.Ingest.MaxFrames = defaultMaxFrames
	}
	c.Ingest.ScenesMode = strings.ToLower(strings.TrimSpace(c.Ingest.ScenesMode))
	if c.Ingest.ScenesMode == "" {
		c.Ingest.ScenesMode = ScenesModeUpsert
	}
}

func (c *Config) normalizeExtraction() {
	c.Extraction.FFmpegBinary = strings.TrimSpace(c.Extraction.FFmpegBinary)
	if c.Extraction.FFmpegBinary == "" {
		c.Extraction.FFmpegBinary = "ffmpeg"
	}
	c.Extraction.FFprobeBinary = strings.TrimSpace(c.Extraction.FFprobeBinary)
	if c.Extraction.FFprobeBinary == "" {
		c.Extraction.FFprobeBinary = "ffprobe"
	}
	if c.Extraction.TimeoutSeconds == 0 {
		c.Extraction.TimeoutSeconds = defaultExtractionTimeout
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Backend = strings.ToLower(strings.TrimSpace(c.Transcription.Backend))
	if c.Transcription.Backend == "" {
		c.Transcription.Backend = TranscriptionBackendHTTP
	}
	if c.Transcription.APIToken == "" {
		if value, ok := os.LookupEnv("VIDREPO_TRANSCRIBE_TOKEN"); ok {
			c.Transcription.APIToken = strings.TrimSpace(value)
		}
	}
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	if strings.TrimSpace(c.Transcription.Language) == "" {
		c.Transcription.Language = defaultTranscriptionLanguage
	}
	if c.Transcription.PollIntervalSeconds == 0 {
		c.Transcription.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Transcription.MaxPollAttempts == 0 {
		c.Transcription.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.Transcription.TimeoutSeconds == 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeout
	}
	if strings.TrimSpace(c.Transcription.WhisperXModel) == "" {
		c.Transcription.WhisperXModel = defaultWhisperXModel
	}
}

func (c *Config) normalizeAnalysis() {
	if c.Analysis.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Analysis.APIKey = strings.TrimSpace(value)
		}
	}
	c.Analysis.BaseURL = strings.TrimRight(strings.TrimSpace(c.Analysis.BaseURL), "/")
	if c.Analysis.BaseURL == "" {
		c.Analysis.BaseURL = defaultAnalysisBaseURL
	}
	if strings.TrimSpace(c.Analysis.Model) == "" {
		c.Analysis.Model = defaultAnalysisModel
	}
	if c.Analysis.TimeoutSeconds == 0 {
		c.Analysis.TimeoutSeconds = defaultAnalysisTimeout
	}
	if c.Analysis.MaxTokens == 0 {
		c.Analysis.MaxTokens = defaultAnalysisMaxTokens
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
