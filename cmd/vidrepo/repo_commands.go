package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"vidrepo/internal/repository"
	"vidrepo/internal/store"
)

func newRepoCommand(ctx *commandContext) *cobra.Command {
	repoCmd := &cobra.Command{
		Use:   "repo",
		Short: "Create, inspect and delete repositories",
	}
	repoCmd.AddCommand(newRepoCreateCommand(ctx))
	repoCmd.AddCommand(newRepoListCommand(ctx))
	repoCmd.AddCommand(newRepoShowCommand(ctx))
	repoCmd.AddCommand(newRepoDeleteCommand(ctx))
	return repoCmd
}

func newRepoCreateCommand(ctx *commandContext) *cobra.Command {
	var brief string
	cmd := &cobra.Command{
		Use:   "create <name> [media files...]",
		Short: "Create a repository, optionally uploading initial media",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uploads, err := readUploads(args[1:])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				repo, err := svc.CreateRepository(cmd.Context(), args[0], brief, uploads)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, repoSummary(repo))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created repository %d (%s)\n", repo.ID, repo.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&brief, "brief", "", "Short project brief")
	return cmd
}

func newRepoListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *repository.Service) error {
				repos, err := svc.ListRepositories(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					out := make([]map[string]any, 0, len(repos))
					for _, repo := range repos {
						out = append(out, repoSummary(repo))
					}
					return writeJSON(cmd, out)
				}
				if len(repos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No repositories")
					return nil
				}
				rows := make([][]string, 0, len(repos))
				for _, repo := range repos {
					rows = append(rows, []string{
						strconv.FormatInt(repo.ID, 10),
						repo.Name,
						repo.Updated.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Updated"}, rows, []columnAlignment{alignRight}))
				return nil
			})
		},
	}
}

func newRepoShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <repo>",
		Short: "Show repository details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				repo, err := svc.OpenRepository(cmd.Context(), repoID)
				if err != nil {
					return err
				}
				assets, err := svc.ListAssets(cmd.Context(), repoID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					summary := repoSummary(repo)
					summary["nodes"] = repo.Tree.Len()
					summary["assets"] = len(assets)
					return writeJSON(cmd, summary)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader(repo.Name, colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintf(out, "%sID:      %d\n", statusIndent, repo.ID)
				if repo.Brief != "" {
					fmt.Fprintf(out, "%sBrief:   %s\n", statusIndent, repo.Brief)
				}
				fmt.Fprintf(out, "%sNodes:   %d\n", statusIndent, repo.Tree.Len())
				fmt.Fprintf(out, "%sCommits: %d\n", statusIndent, len(repo.Commits))
				fmt.Fprintf(out, "%sAssets:  %d\n", statusIndent, len(assets))
				if n := len(repo.Commits); n > 0 {
					last := repo.Commits[n-1]
					fmt.Fprintf(out, "%sLatest:  %s %s\n", statusIndent, last.ID, last.Message)
				}
				return nil
			})
		},
	}
}

func newRepoDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <repo>",
		Short: "Delete a repository and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				if err := svc.DeleteRepository(cmd.Context(), repoID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted repository %d\n", repoID)
				return nil
			})
		},
	}
}

func repoSummary(repo *store.Repository) map[string]any {
	return map[string]any{
		"id":      repo.ID,
		"name":    repo.Name,
		"brief":   repo.Brief,
		"created": repo.Created,
		"updated": repo.Updated,
		"commits": len(repo.Commits),
	}
}

func readUploads(paths []string) ([]repository.Upload, error) {
	uploads := make([]repository.Upload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		uploads = append(uploads, repository.Upload{Name: filepath.Base(path), Data: data})
	}
	return uploads, nil
}
