package testsupport

import (
	"context"
	"sync"

	"vidrepo/internal/media/extract"
	"vidrepo/internal/services/transcribe"
	"vidrepo/internal/services/vision"
)

// StubExtractor returns a canned result or error and counts calls.
type StubExtractor struct {
	mu     sync.Mutex
	Result extract.Result
	Err    error
	Calls  int
}

// Extract implements extract.Extractor.
func (s *StubExtractor) Extract(ctx context.Context, _ string, _ []byte) (extract.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return extract.Result{}, s.Err
	}
	return s.Result, nil
}

// StubTranscriber returns a canned result or error and records the audio it
// was given.
type StubTranscriber struct {
	mu     sync.Mutex
	Result transcribe.Result
	Err     error
	Audio   [][]byte
	Options []transcribe.Options
}

// Transcribe implements transcribe.Transcriber.
func (s *StubTranscriber) Transcribe(_ context.Context, audio []byte, opts transcribe.Options) (transcribe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Audio = append(s.Audio, audio)
	s.Options = append(s.Options, opts)
	if s.Err != nil {
		return transcribe.Result{}, s.Err
	}
	return s.Result, nil
}

// StubAnalyzer returns a canned result or error and records requests.
type StubAnalyzer struct {
	mu       sync.Mutex
	Result   vision.Result
	Err      error
	Requests []vision.Request
}

// Analyze implements vision.Analyzer.
func (s *StubAnalyzer) Analyze(_ context.Context, req vision.Request) (vision.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return vision.Result{}, s.Err
	}
	return s.Result, nil
}

// Transcribed reports how many transcription calls were made.
func (s *StubTranscriber) Transcribed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Audio)
}

// Analyzed returns a copy of the recorded analysis requests.
func (s *StubAnalyzer) Analyzed() []vision.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vision.Request(nil), s.Requests...)
}
