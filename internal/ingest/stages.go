package ingest

import (
	"context"
	"slices"

	"vidrepo/internal/media/extract"
	"vidrepo/internal/services/transcribe"
	"vidrepo/internal/services/vision"
	"vidrepo/internal/store"
)

// stage is one step of the per-asset state machine. execute errors are
// collaborator failures: the job keeps the empty result and moves on.
type stage struct {
	name    string
	status  store.AssetStatus
	kinds   []store.AssetKind
	done    int
	impact  string
	execute func(ctx context.Context, p *Pipeline, j *job) error
}

func (s stage) appliesTo(kind store.AssetKind) bool {
	return slices.Contains(s.kinds, kind)
}

var stages = []stage{
	{
		name:    "extract",
		status:  store.StatusTranscribing,
		kinds:   []store.AssetKind{store.KindVideo},
		done:    40,
		impact:  "keyframes or audio track missing for this asset",
		execute: runExtract,
	},
	{
		name:    "transcribe",
		status:  store.StatusTranscribing,
		kinds:   []store.AssetKind{store.KindVideo, store.KindAudio},
		done:    100,
		impact:  "transcript is empty",
		execute: runTranscribe,
	},
	{
		name:    "analyze",
		status:  store.StatusDetecting,
		kinds:   []store.AssetKind{store.KindVideo, store.KindAudio, store.KindImage},
		done:    80,
		impact:  "description and tags are empty",
		execute: runAnalyze,
	},
}

func runExtract(ctx context.Context, p *Pipeline, j *job) error {
	if p.deps.Extractor == nil || len(j.payload) == 0 {
		return nil
	}
	// Partial results survive a failing step.
	result, err := p.deps.Extractor.Extract(ctx, j.asset.Name, j.payload)
	j.frames = result.Frames
	j.audio = result.Audio
	return err
}

func runTranscribe(ctx context.Context, p *Pipeline, j *job) error {
	audio, opts := j.audio, p.opts.Transcribe
	opts.MimeType = "audio/wav"
	if j.asset.Kind == store.KindAudio {
		audio, opts.MimeType = j.payload, j.asset.MimeType
	}
	if p.deps.Transcriber == nil || len(audio) == 0 {
		return nil
	}
	result, err := p.deps.Transcriber.Transcribe(ctx, audio, opts)
	if err != nil {
		j.transcript = transcribe.Result{}
		return err
	}
	j.transcript = transcribe.Finalize(result)
	return nil
}

func runAnalyze(ctx context.Context, p *Pipeline, j *job) error {
	if p.deps.Analyzer == nil || !p.opts.AnalysisEnabled {
		return nil
	}
	req := vision.Request{
		MimeType:   j.asset.MimeType,
		Name:       j.asset.Name,
		Transcript: j.transcript.Text,
	}
	switch j.asset.Kind {
	case store.KindVideo:
		req.Images = extract.Sample(j.frames, p.opts.MaxFrames)
		req.MimeType = "image/jpeg"
	case store.KindImage:
		if len(j.payload) > 0 {
			req.Images = [][]byte{j.payload}
		}
	case store.KindAudio:
		req.Audio = j.payload
	}
	result, err := p.deps.Analyzer.Analyze(ctx, req)
	if err != nil {
		j.analysis = vision.Result{}
		return err
	}
	result.Tags = vision.NormalizeTags(result.Tags)
	j.analysis = result
	return nil
}
