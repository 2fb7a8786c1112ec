package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vidrepo/internal/repository"
	"vidrepo/internal/store"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <repo> <files...>",
		Short: "Upload media and run ingestion",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			uploads, err := readUploads(args[1:])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				if _, err := svc.UploadAssets(cmd.Context(), repoID, uploads); err != nil {
					return err
				}
				// Re-read so the table shows the post-pipeline state.
				assets, err := svc.ListAssets(cmd.Context(), repoID)
				if err != nil {
					return err
				}
				return printAssets(ctx, cmd, assets)
			})
		},
	}
}

func newReingestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reingest <repo> <asset-id>",
		Short: "Run the ingestion pipeline again for one asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			assetID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid asset id %q", args[1])
			}
			return ctx.withService(func(svc *repository.Service) error {
				asset, err := svc.ReingestAsset(cmd.Context(), repoID, assetID)
				if err != nil {
					return err
				}
				return printAssets(ctx, cmd, []store.Asset{asset})
			})
		},
	}
}

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assets <repo>",
		Short: "List a repository's assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				assets, err := svc.ListAssets(cmd.Context(), repoID)
				if err != nil {
					return err
				}
				return printAssets(ctx, cmd, assets)
			})
		},
	}
}

func printAssets(ctx *commandContext, cmd *cobra.Command, assets []store.Asset) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, assets)
	}
	out := cmd.OutOrStdout()
	if len(assets) == 0 {
		fmt.Fprintln(out, "No assets")
		return nil
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(assets))
	for _, asset := range assets {
		rows = append(rows, []string{
			strconv.FormatInt(asset.ID, 10),
			asset.Name,
			string(asset.Kind),
			humanize.IBytes(uint64(max(asset.Size, 0))),
			assetStatusLabel(asset, colorize),
			strings.Join(asset.Tags, ", "),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Name", "Kind", "Size", "Status", "Tags"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	))
	return nil
}
