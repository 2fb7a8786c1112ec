package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	switch c.Storage.BlobBackend {
	case BlobBackendBadger, BlobBackendFilesystem:
		return nil
	default:
		return fmt.Errorf("storage.blob_backend: unsupported value %q (want %s or %s)", c.Storage.BlobBackend, BlobBackendBadger, BlobBackendFilesystem)
	}
}

func (c *Config) validateIngest() error {
	if c.Ingest.FrameIntervalSeconds < 1 {
		return errors.New("ingest.frame_interval_seconds must be positive")
	}
	if c.Ingest.MaxFrames < 1 {
		return errors.New("ingest.max_frames must be positive")
	}
	switch c.Ingest.ScenesMode {
	case ScenesModeAppend, ScenesModeUpsert:
	default:
		return fmt.Errorf("ingest.scenes_mode: unsupported value %q (want %s or %s)", c.Ingest.ScenesMode, ScenesModeAppend, ScenesModeUpsert)
	}
	return nil
}

func (c *Config) validateExtraction() error {
	if c.Extraction.TimeoutSeconds < 1 {
		return errors.New("extraction.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Backend {
	case TranscriptionBackendHTTP:
		if c.Transcription.ModelVersion == "" && c.Transcription.APIToken != "" {
			return errors.New("transcription.model_version must be set when using the http backend")
		}
	case TranscriptionBackendWhisperX, TranscriptionBackendNone:
	default:
		return fmt.Errorf("transcription.backend: unsupported value %q", c.Transcription.Backend)
	}
	if c.Transcription.PollIntervalSeconds < 1 {
		return errors.New("transcription.poll_interval_seconds must be positive")
	}
	if c.Transcription.MaxPollAttempts < 1 {
		return errors.New("transcription.max_poll_attempts must be positive")
	}
	if c.Transcription.TimeoutSeconds < 1 {
		return errors.New("transcription.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.TimeoutSeconds < 1 {
		return errors.New("analysis.timeout_seconds must be positive")
	}
	if c.Analysis.MaxTokens < 1 {
		return errors.New("analysis.max_tokens must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
