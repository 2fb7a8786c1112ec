package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"vidrepo/internal/config"
	"vidrepo/internal/logging"
	"vidrepo/internal/media/ffprobe"
	"vidrepo/internal/services"
)

// Result holds the artifacts pulled out of a video.
type Result struct {
	Frames   [][]byte
	Audio    []byte
	Duration float64
}

// Extractor pulls keyframes and an audio track out of a video payload.
type Extractor interface {
	Extract(ctx context.Context, name string, video []byte) (Result, error)
}

// FFmpeg extracts with ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpeg        string
	ffprobe       string
	frameInterval int
	timeout       time.Duration
	run           ffprobe.Runner
	logger        *slog.Logger
}

var _ Extractor = (*FFmpeg)(nil)

// NewFFmpeg builds an extractor from configuration.
func NewFFmpeg(cfg *config.Config, logger *slog.Logger) *FFmpeg {
	interval := cfg.Ingest.FrameIntervalSeconds
	if interval <= 0 {
		interval = 5
	}
	return &FFmpeg{
		ffmpeg:        cfg.Extraction.FFmpegBinary,
		ffprobe:       cfg.Extraction.FFprobeBinary,
		frameInterval: interval,
		timeout:       time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second,
		run:           ffprobe.ExecRunner,
		logger:        logging.NewComponentLogger(logger, "extract"),
	}
}

// WithRunner swaps the command runner (for testing).
func (f *FFmpeg) WithRunner(run ffprobe.Runner) *FFmpeg {
	f.run = run
	return f
}

// Extract writes the payload to a scratch directory and runs ffmpeg twice:
// once for keyframes every frame interval, once for mono 16 kHz WAV audio.
// The two steps are independent. A failing step leaves its own artifact
// empty, keeps the other one and is reported in the returned error. The
// audio step is skipped when ffprobe finds no audio stream.
func (f *FFmpeg) Extract(ctx context.Context, name string, video []byte) (Result, error) {
	if len(video) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "extract", "input", "empty video payload", nil)
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	workDir, err := os.MkdirTemp("", "vidrepo-extract-")
	if err != nil {
		return Result{}, fmt.Errorf("extract: scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	source := filepath.Join(workDir, "source"+sourceExt(name))
	if err := os.WriteFile(source, video, 0o600); err != nil {
		return Result{}, fmt.Errorf("extract: write source: %w", err)
	}

	var result Result
	wantAudio := true
	if probe, err := ffprobe.Inspect(ctx, f.run, f.ffprobe, source); err != nil {
		f.logger.Debug("ffprobe failed; continuing without duration", logging.Error(err))
	} else {
		result.Duration = probe.DurationSeconds()
		wantAudio = probe.HasAudio()
	}

	var errs []error
	frames, err := f.extractFrames(ctx, source, workDir)
	if err != nil {
		errs = append(errs, err)
	}
	result.Frames = frames

	if wantAudio {
		audio, err := f.extractAudio(ctx, source, workDir)
		if err != nil {
			errs = append(errs, err)
		}
		result.Audio = audio
	} else {
		f.logger.Debug("no audio stream; skipping audio extraction")
	}

	f.logger.Debug("extraction complete",
		logging.Int("frames", len(result.Frames)),
		logging.Int("audio_bytes", len(result.Audio)),
		slog.Float64("duration_seconds", result.Duration),
	)
	return result, errors.Join(errs...)
}

func (f *FFmpeg) extractFrames(ctx context.Context, source, workDir string) ([][]byte, error) {
	frameDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(frameDir, 0o755); err != nil {
		return nil, fmt.Errorf("extract: frame dir: %w", err)
	}
	if _, err := f.run(ctx, f.binary(), frameArgs(source, frameDir, f.frameInterval)...); err != nil {
		return nil, f.toolError(ctx, "frames", err)
	}
	frames, err := readFrames(frameDir)
	if err != nil {
		return nil, fmt.Errorf("extract: read frames: %w", err)
	}
	return frames, nil
}

func (f *FFmpeg) extractAudio(ctx context.Context, source, workDir string) ([]byte, error) {
	audioPath := filepath.Join(workDir, "audio.wav")
	if _, err := f.run(ctx, f.binary(), audioArgs(source, audioPath)...); err != nil {
		return nil, f.toolError(ctx, "audio", err)
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("extract: read audio: %w", err)
	}
	return audio, nil
}

func (f *FFmpeg) binary() string {
	if strings.TrimSpace(f.ffmpeg) == "" {
		return "ffmpeg"
	}
	return f.ffmpeg
}

func (f *FFmpeg) toolError(ctx context.Context, step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "extract", step, "ffmpeg timed out", err)
	}
	return services.Wrap(services.ErrExternalTool, "extract", step, "ffmpeg failed", err)
}

func frameArgs(source, dir string, interval int) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vf", "fps=1/" + strconv.Itoa(interval),
		"-q:v", "3",
		filepath.Join(dir, "frame_%04d.jpg"),
	}
}

func audioArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

func readFrames(dir string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jpg") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	frames := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}
	return frames, nil
}

func sourceExt(name string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if ext == "" || len(ext) > 6 || strings.ContainsAny(ext, `\:*?"<>|`) {
		return ".bin"
	}
	return ext
}

// Sample picks at most n frames spread evenly across frames, always keeping
// the first one.
func Sample(frames [][]byte, n int) [][]byte {
	if n <= 0 || len(frames) == 0 {
		return nil
	}
	if len(frames) <= n {
		return frames
	}
	out := make([][]byte, 0, n)
	step := float64(len(frames)) / float64(n)
	for i := range n {
		out = append(out, frames[int(float64(i)*step)])
	}
	return out
}
