package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"vidrepo/internal/commit"
	"vidrepo/internal/logging"
	"vidrepo/internal/store"
	"vidrepo/internal/tree"
)

const (
	keepFile    = ".gitkeep"
	emailDomain = "vidrepo.local"
)

// Mirror exports every commit of a repository into a git working tree under
// <root>/<repository id>, one git commit per repository commit.
type Mirror struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	repos map[int64]*gogit.Repository
}

var _ commit.Observer = (*Mirror)(nil)

// New returns a mirror rooted at root.
func New(root string, logger *slog.Logger) *Mirror {
	return &Mirror{
		root:   root,
		logger: logging.NewComponentLogger(logger, "mirror"),
		repos:  make(map[int64]*gogit.Repository),
	}
}

// Dir returns the working tree of a repository's mirror.
func (m *Mirror) Dir(repoID int64) string {
	return filepath.Join(m.root, strconv.FormatInt(repoID, 10))
}

// CommitCreated writes repo.Tree into the working tree and commits it with
// the same message, author and timestamp.
func (m *Mirror) CommitCreated(ctx context.Context, repo *store.Repository, c store.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.Dir(repo.ID)
	gitRepo, err := m.open(repo.ID, dir)
	if err != nil {
		return err
	}
	if err := resetWorktree(dir); err != nil {
		return err
	}
	if err := materialize(dir, repo.Tree.Roots()); err != nil {
		return err
	}

	w, err := gitRepo.Worktree()
	if err != nil {
		return fmt.Errorf("mirror worktree: %w", err)
	}
	if err := w.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return fmt.Errorf("mirror stage: %w", err)
	}
	sig := &object.Signature{
		Name:  c.Author,
		Email: emailFor(c.Author),
		When:  c.Timestamp,
	}
	hash, err := w.Commit(fmt.Sprintf("%s\n\nvidrepo-commit: %s\n%s", c.Message, c.ID, c.Changes), &gogit.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return fmt.Errorf("mirror commit: %w", err)
	}
	m.logger.Debug("commit mirrored",
		logging.Int64(logging.FieldRepositoryID, repo.ID),
		logging.String("commit_id", c.ID),
		logging.String("git_hash", hash.String()),
	)
	return nil
}

// Entry is one mirrored git commit.
type Entry struct {
	Hash    string
	Subject string
	Author  string
}

// Log returns up to n mirrored commits for a repository, newest first.
func (m *Mirror) Log(repoID int64, n int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gitRepo, err := gogit.PlainOpen(m.Dir(repoID))
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mirror open: %w", err)
	}
	iter, err := gitRepo.Log(&gogit.LogOptions{})
	if err != nil {
		// No HEAD yet.
		return nil, nil
	}
	defer iter.Close()

	if n <= 0 {
		n = 1000
	}
	var out []Entry
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		out = append(out, Entry{Hash: c.Hash.String(), Subject: subject, Author: c.Author.Name})
	}
	return out, nil
}

// Remove deletes a repository's mirror directory.
func (m *Mirror) Remove(repoID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.repos, repoID)
	if err := os.RemoveAll(m.Dir(repoID)); err != nil {
		return fmt.Errorf("mirror remove: %w", err)
	}
	return nil
}

func (m *Mirror) open(repoID int64, dir string) (*gogit.Repository, error) {
	if repo, ok := m.repos[repoID]; ok {
		return repo, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mirror dir: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("mirror open: %w", err)
	}
	m.repos[repoID] = repo
	return repo, nil
}

// resetWorktree removes everything except .git so deletions in the tree
// become deletions in git.
func resetWorktree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("mirror read: %w", err)
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("mirror clean: %w", err)
		}
	}
	return nil
}

func materialize(dir string, nodes []tree.Node) error {
	used := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		name := fileName(n, used)
		path := filepath.Join(dir, name)
		if n.IsFolder() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return fmt.Errorf("mirror mkdir: %w", err)
			}
			children := n.Children()
			if len(children) == 0 {
				if err := os.WriteFile(filepath.Join(path, keepFile), nil, 0o644); err != nil {
					return fmt.Errorf("mirror keep file: %w", err)
				}
				continue
			}
			if err := materialize(path, children); err != nil {
				return err
			}
			continue
		}
		content, _ := n.Content()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("mirror write: %w", err)
		}
	}
	return nil
}

// fileName maps a node name to a unique, git-safe entry name within its
// directory. Sibling name clashes get the node id appended.
func fileName(n tree.Node, used map[string]struct{}) string {
	name := n.Name
	if name == ".git" || name == keepFile {
		name = "_" + name
	}
	if _, clash := used[name]; clash {
		name = name + "~" + n.ID
	}
	used[name] = struct{}{}
	return name
}

func emailFor(author string) string {
	local := strings.ToLower(strings.Join(strings.Fields(author), "."))
	if local == "" {
		local = "vidrepo"
	}
	return local + "@" + emailDomain
}
