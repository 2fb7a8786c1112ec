package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidrepo/internal/config"
	"vidrepo/internal/services"
)

// Segment is one timed span of speech.
type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is a finished transcription. Captions holds an SRT track.
type Result struct {
	Text     string
	Segments []Segment
	Captions string
}

// Options tune a single transcription request.
type Options struct {
	// Language is an ISO code or "auto".
	Language  string
	Translate bool
	// MimeType describes the audio payload. Empty means WAV.
	MimeType string
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error)
}

// New builds the backend selected in cfg.
func New(cfg *config.Config, logger *slog.Logger) (Transcriber, error) {
	switch cfg.Transcription.Backend {
	case config.TranscriptionBackendHTTP:
		return NewHTTPClient(HTTPConfig{
			BaseURL:      cfg.Transcription.BaseURL,
			APIToken:     cfg.Transcription.APIToken,
			ModelVersion: cfg.Transcription.ModelVersion,
			PollInterval: time.Duration(cfg.Transcription.PollIntervalSeconds) * time.Second,
			MaxAttempts:  cfg.Transcription.MaxPollAttempts,
			Timeout:      time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second,
		}, logger), nil
	case config.TranscriptionBackendWhisperX:
		return NewWhisperX(WhisperXConfig{
			Model:   cfg.Transcription.WhisperXModel,
			Timeout: time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second,
		}, logger), nil
	case config.TranscriptionBackendNone:
		return Disabled{}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "new", fmt.Sprintf("unsupported backend %q", cfg.Transcription.Backend), nil)
	}
}

// Disabled returns an empty transcript for every request.
type Disabled struct{}

// Transcribe implements Transcriber.
func (Disabled) Transcribe(context.Context, []byte, Options) (Result, error) {
	return Result{}, nil
}

// Finalize fills Text and Captions from segments when a backend left them
// empty.
func Finalize(result Result) Result {
	for i := range result.Segments {
		result.Segments[i].Index = i + 1
		result.Segments[i].Text = strings.TrimSpace(result.Segments[i].Text)
	}
	if strings.TrimSpace(result.Text) == "" {
		parts := make([]string, 0, len(result.Segments))
		for _, seg := range result.Segments {
			if seg.Text != "" {
				parts = append(parts, seg.Text)
			}
		}
		result.Text = strings.Join(parts, " ")
	}
	result.Text = strings.TrimSpace(result.Text)
	if strings.TrimSpace(result.Captions) == "" {
		result.Captions = FormatSRT(result.Segments)
	}
	return result
}

// FormatSRT renders segments as a SubRip track. Segments without text are
// skipped and cues are renumbered from 1.
func FormatSRT(segments []Segment) string {
	var b strings.Builder
	cue := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		cue++
		end := seg.End
		if end < seg.Start {
			end = seg.Start
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", cue, srtTimestamp(seg.Start), srtTimestamp(end), text)
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
	h := total / time.Hour
	total -= h * time.Hour
	m := total / time.Minute
	total -= m * time.Minute
	s := total / time.Second
	total -= s * time.Second
	ms := total / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
