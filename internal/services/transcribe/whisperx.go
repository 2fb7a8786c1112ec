package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"vidrepo/internal/logging"
	"vidrepo/internal/services"
)

// WhisperX invocation constants.
const (
	DefaultWhisperXModel = "large-v3-turbo"
	uvxCommand           = "uvx"
	pypiIndexURL         = "https://pypi.org/simple"
	whisperXBatchSize    = "4"
	whisperXChunkSize    = "15"
	whisperXVADMethod    = "silero"
	cpuDevice            = "cpu"
	cpuComputeType       = "float32"
)

// WhisperXConfig configures the local WhisperX runner.
type WhisperXConfig struct {
	Model   string
	Timeout time.Duration
}

// CommandRunner executes name with args in the current environment.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// WhisperX transcribes by shelling out to `uvx whisperx` on a scratch WAV.
type WhisperX struct {
	cfg    WhisperXConfig
	run    CommandRunner
	logger *slog.Logger
}

var _ Transcriber = (*WhisperX)(nil)

// NewWhisperX builds a runner using os/exec.
func NewWhisperX(cfg WhisperXConfig, logger *slog.Logger) *WhisperX {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultWhisperXModel
	}
	return &WhisperX{cfg: cfg, run: execCommand, logger: logging.NewComponentLogger(logger, "whisperx")}
}

// WithCommandRunner sets a custom command runner (for testing).
func (w *WhisperX) WithCommandRunner(run CommandRunner) *WhisperX {
	if run != nil {
		w.run = run
	}
	return w
}

func execCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	// Torch 2.6 flipped torch.load to weights_only; WhisperX checkpoints need the old behaviour.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Transcribe writes audio to a scratch directory and reads back the JSON and
// SRT files WhisperX leaves next to it.
func (w *WhisperX) Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error) {
	if len(audio) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "whisperx", "input", "empty audio payload", nil)
	}
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}
	workDir, err := os.MkdirTemp("", "vidrepo-whisperx-")
	if err != nil {
		return Result{}, fmt.Errorf("whisperx: scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	source := filepath.Join(workDir, "audio.wav")
	if err := os.WriteFile(source, audio, 0o600); err != nil {
		return Result{}, fmt.Errorf("whisperx: write audio: %w", err)
	}
	started := time.Now()
	if err := w.run(ctx, uvxCommand, w.buildArgs(source, workDir, opts)...); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, services.Wrap(services.ErrTimeout, "whisperx", "run", "whisperx timed out", err)
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "whisperx", "run", "whisperx failed", err)
	}

	segments, err := loadSegments(filepath.Join(workDir, "audio.json"))
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "whisperx", "parse", "read transcript", err)
	}
	captions, _ := os.ReadFile(filepath.Join(workDir, "audio.srt"))
	w.logger.Debug("whisperx transcription complete",
		logging.String("model", w.cfg.Model),
		logging.Int("segments", len(segments)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Finalize(Result{Segments: segments, Captions: string(captions)}), nil
}

func (w *WhisperX) buildArgs(source, outputDir string, opts Options) []string {
	args := []string{
		"--index-url", pypiIndexURL,
		"whisperx",
		source,
		"--model", w.cfg.Model,
		"--batch_size", whisperXBatchSize,
		"--output_dir", outputDir,
		"--output_format", "all",
		"--segment_resolution", "sentence",
		"--chunk_size", whisperXChunkSize,
		"--vad_method", whisperXVADMethod,
		"--device", cpuDevice,
		"--compute_type", cpuComputeType,
	}
	if lang := strings.ToLower(strings.TrimSpace(opts.Language)); lang != "" && lang != "auto" {
		args = append(args, "--language", lang)
	}
	if opts.Translate {
		args = append(args, "--task", "translate")
	}
	return args
}

func loadSegments(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Segments []Segment `json:"segments"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, nil
}
