package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"vidrepo/internal/repository"
	"vidrepo/internal/services"
	"vidrepo/internal/tree"
)

func newTreeCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tree <repo>",
		Short: "Print the repository file tree",
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
				if ctx.jsonOutput() {
					return writeJSON(cmd, repo.Tree)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTree(repo.Tree, all))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Expand closed folders")
	return cmd
}

func newNodeCommand(ctx *commandContext) *cobra.Command {
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Create, edit and remove tree nodes",
	}
	nodeCmd.AddCommand(newNodeCreateCommand(ctx))
	nodeCmd.AddCommand(newNodeRemoveCommand(ctx))
	nodeCmd.AddCommand(newNodeRenameCommand(ctx))
	nodeCmd.AddCommand(newNodeEditCommand(ctx))
	nodeCmd.AddCommand(newNodeCatCommand(ctx))
	nodeCmd.AddCommand(newNodeToggleCommand(ctx))
	return nodeCmd
}

func newNodeCreateCommand(ctx *commandContext) *cobra.Command {
	var folder bool
	cmd := &cobra.Command{
		Use:   "create <repo> <parent-id> <name>",
		Short: "Create an empty file (or folder with --folder)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			kind := tree.KindFile
			if folder {
				kind = tree.KindFolder
			}
			return ctx.withService(func(svc *repository.Service) error {
				node, err := svc.CreateNode(cmd.Context(), repoID, args[1], args[2], kind)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, node)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (%s)\n", kind, node.Name, node.ID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&folder, "folder", false, "Create a folder instead of a file")
	return cmd
}

func newNodeRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <repo> <node-id>",
		Short: "Delete a node and its subtree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				if err := svc.DeleteNode(cmd.Context(), repoID, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[1])
				return nil
			})
		},
	}
}

func newNodeRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <repo> <node-id> <new-name>",
		Short: "Rename a node",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				if err := svc.RenameNode(cmd.Context(), repoID, args[1], args[2]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", args[1], args[2])
				return nil
			})
		},
	}
}

func newNodeEditCommand(ctx *commandContext) *cobra.Command {
	var content string
	var fromFile string
	cmd := &cobra.Command{
		Use:   "edit <repo> <node-id>",
		Short: "Replace a file's content (--content, --file, or stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			body, err := editContent(cmd, content, fromFile)
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				if err := svc.EditFileContent(cmd.Context(), repoID, args[1], body); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%d bytes)\n", args[1], len(body))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "New content")
	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "Read new content from a local file")
	return cmd
}

func editContent(cmd *cobra.Command, content, fromFile string) (string, error) {
	switch {
	case cmd.Flags().Changed("content") && fromFile != "":
		return "", services.Wrap(services.ErrValidation, "cli", "edit", "use either --content or --file", nil)
	case cmd.Flags().Changed("content"):
		return content, nil
	case fromFile != "":
		data, err := os.ReadFile(fromFile)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", fromFile, err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}

func newNodeCatCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <repo> <node-id>",
		Short: "Print a file's content",
		Args:  cobra.ExactArgs(2),
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
				node, ok := repo.Tree.Find(args[1])
				if !ok {
					return services.Wrap(services.ErrNotFound, "cli", "cat", fmt.Sprintf("node %q not found", args[1]), nil)
				}
				content, ok := node.Content()
				if !ok {
					return services.Wrap(services.ErrTypeMismatch, "cli", "cat", fmt.Sprintf("%q is a folder", node.Name), nil)
				}
				_, err = io.WriteString(cmd.OutOrStdout(), content)
				return err
			})
		},
	}
}

func newNodeToggleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <repo> <node-id>",
		Short: "Flip a folder's open flag (not committed)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := parseRepoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *repository.Service) error {
				return svc.ToggleOpen(cmd.Context(), repoID, args[1])
			})
		},
	}
}
