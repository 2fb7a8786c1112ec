package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vidrepo/internal/repository"
)

func newCommitsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "commits <repo>",
		Short: "Show commit history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				commits, err := svc.ListCommits(cmd.Context(), repoID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, commits)
				}
				out := cmd.OutOrStdout()
				if len(commits) == 0 {
					fmt.Fprintln(out, "No commits")
					return nil
				}
				rows := make([][]string, 0, len(commits))
				for i := len(commits) - 1; i >= 0; i-- {
					c := commits[i]
					rows = append(rows, []string{c.ID, c.Author, humanize.Time(c.Timestamp), c.Message})
					if limit > 0 && len(rows) >= limit {
						break
					}
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "Author", "When", "Message"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most n commits")
	return cmd
}

func newCommitCommand(ctx *commandContext) *cobra.Command {
	commitCmd := &cobra.Command{
		Use:   "commit",
		Short: "Inspect individual commits",
	}
	commitCmd.AddCommand(&cobra.Command{
		Use:   "show <repo> <commit-id>",
		Short: "Show one commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				c, err := svc.GetCommit(cmd.Context(), repoID, args[1])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, c)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "commit %s (seq %d)\n", c.ID, c.Seq)
				fmt.Fprintf(out, "Author: %s\n", c.Author)
				fmt.Fprintf(out, "Date:   %s\n\n", c.Timestamp.Local().Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "    %s\n", c.Message)
				if c.Changes != "" {
					fmt.Fprintf(out, "\nChanged: %s\n", c.Changes)
				}
				return nil
			})
		},
	})
	return commitCmd
}
