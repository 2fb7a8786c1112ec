package config

const (
	defaultConfigPath = "~/.config/vidrepo/config.toml"
	defaultDataDir    = "~/.local/share/vidrepo"
	defaultMirrorDir  = "~/.local/share/vidrepo/mirror"

	BlobBackendBadger     = "badger"
	BlobBackendFilesystem = "filesystem"

	ScenesModeAppend = "append"
	ScenesModeUpsert = "upsert"

	TranscriptionBackendHTTP     = "http"
	TranscriptionBackendWhisperX = "whisperx"
	TranscriptionBackendNone     = "none"

	DefaultCommitAuthor          = "vidrepo"
	DefaultIngestAuthor          = "vidrepo-ingest"
	defaultFrameIntervalSeconds  = 5
	defaultMaxFrames             = 5
	defaultExtractionTimeout     = 600
	defaultTranscriptionBaseURL  = "https://api.replicate.com/v1"
	defaultTranscriptionLanguage = "auto"
	defaultPollIntervalSeconds   = 3
	defaultMaxPollAttempts       = 100
	defaultTranscriptionTimeout  = 900
	defaultWhisperXModel         = "large-v3-turbo"
	defaultAnalysisBaseURL       = "https://api.openai.com/v1"
	defaultAnalysisModel         = "gpt-4o-mini"
	defaultAnalysisTimeout       = 120
	defaultAnalysisMaxTokens     = 600
	defaultAPIBind               = "127.0.0.1:7613"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			MirrorDir: defaultMirrorDir,
		},
		Storage: Storage{
			BlobBackend: BlobBackendBadger,
		},
		Commit: Commit{
			Author: DefaultCommitAuthor,
		},
		Ingest: Ingest{
			Enabled:              true,
			Author:               DefaultIngestAuthor,
			FrameIntervalSeconds: defaultFrameIntervalSeconds,
			MaxFrames:            defaultMaxFrames,
			ScenesMode:           ScenesModeUpsert,
		},
		Extraction: Extraction{
			FFmpegBinary:   "ffmpeg",
			FFprobeBinary:  "ffprobe",
			TimeoutSeconds: defaultExtractionTimeout,
		},
		Transcription: Transcription{
			Backend:             TranscriptionBackendHTTP,
			BaseURL:             defaultTranscriptionBaseURL,
			Language:            defaultTranscriptionLanguage,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			MaxPollAttempts:     defaultMaxPollAttempts,
			TimeoutSeconds:      defaultTranscriptionTimeout,
			WhisperXModel:       defaultWhisperXModel,
		},
		Analysis: Analysis{
			Enabled:        true,
			BaseURL:        defaultAnalysisBaseURL,
			Model:          defaultAnalysisModel,
			TimeoutSeconds: defaultAnalysisTimeout,
			MaxTokens:      defaultAnalysisMaxTokens,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
