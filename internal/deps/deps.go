package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"vidrepo/internal/config"
)

// Requirement defines an external binary vidrepo shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries the configured pipeline needs. Extraction
// tools are optional when ingestion is disabled; uvx is only required for
// the whisperx transcription backend.
func Requirements(cfg *config.Config) []Requirement {
	ingestOff := !cfg.Ingest.Enabled
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Extraction.FFmpegBinary,
			Description: "keyframe and audio extraction",
			Optional:    ingestOff,
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Extraction.FFprobeBinary,
			Description: "media inspection",
			Optional:    ingestOff,
		},
		{
			Name:        "uvx",
			Command:     "uvx",
			Description: "runs the local whisperx transcriber",
			Optional:    ingestOff || cfg.Transcription.Backend != config.TranscriptionBackendWhisperX,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		if path != cmd {
			status.Command = path
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required (non-optional) dependencies that are absent.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
