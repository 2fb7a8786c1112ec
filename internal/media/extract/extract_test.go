package extract_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"vidrepo/internal/config"
	"vidrepo/internal/media/extract"
	"vidrepo/internal/services"
)

const (
	probeVideoAudio = `{"streams":[{"codec_type":"video"},{"codec_type":"audio"}],"format":{"duration":"11.0"}}`
	probeVideoOnly  = `{"streams":[{"codec_type":"video"}],"format":{"duration":"11.0"}}`
)

func fakeRunner(t *testing.T, probe, failOn string, calls *[]string) func(context.Context, string, ...string) ([]byte, error) {
	t.Helper()
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		joined := strings.Join(args, " ")
		if name == "ffprobe" {
			return []byte(probe), nil
		}
		if calls != nil {
			*calls = append(*calls, joined)
		}
		if failOn != "" && strings.Contains(joined, failOn) {
			return []byte("boom"), errors.New("exit status 1")
		}
		out := args[len(args)-1]
		if strings.Contains(out, "%04d") {
			for i := 1; i <= 3; i++ {
				path := strings.Replace(out, "%04d", "000"+string(rune('0'+i)), 1)
				if err := os.WriteFile(path, []byte{'f', byte('0' + i)}, 0o644); err != nil {
					t.Fatalf("write frame: %v", err)
				}
			}
			return nil, nil
		}
		if err := os.WriteFile(out, []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("write audio: %v", err)
		}
		return nil, nil
	}
}

func newExtractor(t *testing.T, failOn string) *extract.FFmpeg {
	cfg := config.Default()
	return extract.NewFFmpeg(&cfg, nil).WithRunner(fakeRunner(t, probeVideoAudio, failOn, nil))
}

func TestExtractCollectsFramesAndAudio(t *testing.T) {
	result, err := newExtractor(t, "").Extract(context.Background(), "clip.mp4", []byte("video"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(result.Frames))
	}
	if string(result.Frames[0]) != "f1" || string(result.Frames[2]) != "f3" {
		t.Fatalf("frames out of order: %q", result.Frames)
	}
	if string(result.Audio) != "RIFF" {
		t.Fatalf("unexpected audio %q", result.Audio)
	}
	if result.Duration != 11.0 {
		t.Fatalf("unexpected duration %v", result.Duration)
	}
}

func TestExtractFramesFailureKeepsAudio(t *testing.T) {
	result, err := newExtractor(t, "fps=1/5").Extract(context.Background(), "clip.mp4", []byte("video"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if len(result.Frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(result.Frames))
	}
	if string(result.Audio) != "RIFF" {
		t.Fatalf("audio should survive a frame failure, got %q", result.Audio)
	}
}

func TestExtractAudioFailureKeepsFrames(t *testing.T) {
	result, err := newExtractor(t, "pcm_s16le").Extract(context.Background(), "clip.mp4", []byte("video"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if len(result.Frames) != 3 {
		t.Fatalf("frames should survive an audio failure, got %d", len(result.Frames))
	}
	if len(result.Audio) != 0 {
		t.Fatalf("expected no audio, got %q", result.Audio)
	}
}

func TestExtractSkipsAudioForSilentVideo(t *testing.T) {
	var calls []string
	cfg := config.Default()
	ex := extract.NewFFmpeg(&cfg, nil).WithRunner(fakeRunner(t, probeVideoOnly, "", &calls))
	result, err := ex.Extract(context.Background(), "screen.mp4", []byte("video"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Frames) != 3 || len(result.Audio) != 0 {
		t.Fatalf("unexpected result: %d frames, %d audio bytes", len(result.Frames), len(result.Audio))
	}
	if len(calls) != 1 || strings.Contains(calls[0], "pcm_s16le") {
		t.Fatalf("expected only the frame step, got %q", calls)
	}
}

func TestExtractRejectsEmptyPayload(t *testing.T) {
	if _, err := newExtractor(t, "").Extract(context.Background(), "clip.mp4", nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSampleSpreadsFrames(t *testing.T) {
	frames := make([][]byte, 12)
	for i := range frames {
		frames[i] = []byte{byte(i)}
	}
	got := extract.Sample(frames, 5)
	if len(got) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(got))
	}
	want := []byte{0, 2, 4, 7, 9}
	for i, frame := range got {
		if frame[0] != want[i] {
			t.Fatalf("frame %d = %d, want %d", i, frame[0], want[i])
		}
	}
	if len(extract.Sample(frames[:3], 5)) != 3 {
		t.Fatal("expected short input returned unchanged")
	}
	if extract.Sample(frames, 0) != nil {
		t.Fatal("expected nil for n=0")
	}
}
