package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidrepo/internal/config"
	"vidrepo/internal/deps"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failures := 0

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
				kind, msg := statusOK, status.Command
				if !status.Available {
					msg = status.Detail
					kind = statusError
					if status.Optional {
						kind = statusWarn
						msg += " (optional)"
					} else {
						failures++
					}
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, msg, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Collaborators", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range collaboratorChecks(cfg) {
				fmt.Fprintln(out, renderStatusLine(check.label, check.kind, check.message, colorize))
				if check.kind == statusError {
					failures++
				}
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Storage", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Data directory", statusInfo, cfg.Paths.DataDir, colorize))
			fmt.Fprintln(out, renderStatusLine("Blob backend", statusInfo, cfg.Storage.BlobBackend, colorize))
			fmt.Fprintln(out, renderStatusLine("Strict storage", statusInfo, yesNo(cfg.Storage.Strict), colorize))
			defer ctx.close()
			if a, err := ctx.open(); err != nil {
				failures++
				fmt.Fprintln(out, renderStatusLine("Database", statusError, err.Error(), colorize))
			} else if err := a.store.Ping(context.Background()); err != nil {
				failures++
				fmt.Fprintln(out, renderStatusLine("Database", statusError, err.Error(), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Database", statusOK, cfg.DatabasePath(), colorize))
			}

			if failures > 0 {
				return fmt.Errorf("doctor found %d problem(s)", failures)
			}
			return nil
		},
	}
}

type collaboratorCheck struct {
	label   string
	kind    statusKind
	message string
}

func collaboratorChecks(cfg *config.Config) []collaboratorCheck {
	checks := []collaboratorCheck{}
	if !cfg.Ingest.Enabled {
		return append(checks, collaboratorCheck{"Ingestion", statusInfo, "disabled; uploads are stored as ready"})
	}

	switch cfg.Transcription.Backend {
	case config.TranscriptionBackendNone:
		checks = append(checks, collaboratorCheck{"Transcription", statusWarn, "disabled; transcripts will be empty"})
	case config.TranscriptionBackendWhisperX:
		checks = append(checks, collaboratorCheck{"Transcription", statusOK, "whisperx " + cfg.Transcription.WhisperXModel})
	default:
		if strings.TrimSpace(cfg.Transcription.BaseURL) == "" {
			checks = append(checks, collaboratorCheck{"Transcription", statusError, "transcription.base_url is not set"})
		} else {
			checks = append(checks, collaboratorCheck{"Transcription", statusOK, cfg.Transcription.BaseURL})
		}
	}

	switch {
	case !cfg.Analysis.Enabled:
		checks = append(checks, collaboratorCheck{"Analysis", statusWarn, "disabled; tags will be empty"})
	case strings.TrimSpace(cfg.Analysis.APIKey) == "":
		checks = append(checks, collaboratorCheck{"Analysis", statusError, "analysis.api_key is not set"})
	default:
		checks = append(checks, collaboratorCheck{"Analysis", statusOK, cfg.Analysis.Model})
	}
	return checks
}
