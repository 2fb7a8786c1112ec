package commit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"vidrepo/internal/logging"
	"vidrepo/internal/services"
	"vidrepo/internal/store"
	"vidrepo/internal/tree"
)

// idWidth is the zero-padding applied to commit ids.
const idWidth = 4

// Persister writes a tree and its new commit in one transaction.
type Persister interface {
	SaveCommit(ctx context.Context, repoID int64, t tree.Tree, commit store.Commit) error
}

// Observer is told about every persisted commit. Observer failures are
// logged and never undo the commit.
type Observer interface {
	CommitCreated(ctx context.Context, repo *store.Repository, commit store.Commit) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, repo *store.Repository, commit store.Commit) error

// CommitCreated implements Observer.
func (f ObserverFunc) CommitCreated(ctx context.Context, repo *store.Repository, commit store.Commit) error {
	return f(ctx, repo, commit)
}

// Engine snapshots repository trees into commits under commits/.
type Engine struct {
	store     Persister
	author    string
	clock     func() time.Time
	observers []Observer
	logger    *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithObserver registers an observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) {
		if obs != nil {
			e.observers = append(e.observers, obs)
		}
	}
}

// NewEngine builds an engine that authors commits as author.
func NewEngine(persister Persister, author string, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  persister,
		author: strings.TrimSpace(author),
		clock:  func() time.Time { return time.Now().UTC() },
		logger: logging.NewComponentLogger(logger, "commit"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commit records next as the repository's new state using the engine's
// default author.
func (e *Engine) Commit(ctx context.Context, repo *store.Repository, message, changes string, next tree.Tree) (store.Commit, error) {
	return e.CommitAs(ctx, repo, e.author, message, changes, next)
}

// CommitAs appends commits/<id>.json to next, persists tree and commit
// atomically and updates repo. When persistence fails the commit does not
// exist, repo.Tree still takes next (without the commit node) and the error
// wraps services.ErrPersistence. Callers must serialise commits per
// repository.
func (e *Engine) CommitAs(ctx context.Context, repo *store.Repository, author, message, changes string, next tree.Tree) (store.Commit, error) {
	if repo == nil {
		return store.Commit{}, services.Wrap(services.ErrValidation, "commit", "commit", "repository is nil", nil)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return store.Commit{}, services.Wrap(services.ErrValidation, "commit", "commit", "message required", nil)
	}
	if strings.TrimSpace(author) == "" {
		author = e.author
	}

	withFolder, folder, err := next.EnsureFolder(tree.FolderCommits)
	if err != nil {
		return store.Commit{}, err
	}
	seq := NextSeq(withFolder)
	commit := store.Commit{
		ID:        FormatID(seq),
		Seq:       seq,
		Message:   message,
		Author:    author,
		Timestamp: e.clock().UTC(),
		Changes:   strings.TrimSpace(changes),
	}
	payload, err := json.MarshalIndent(commit, "", "  ")
	if err != nil {
		return store.Commit{}, fmt.Errorf("encode commit: %w", err)
	}
	node := tree.NewFile(commit.ID+".json", string(payload)).WithLocked(true)
	committed, err := withFolder.InsertChild(folder.ID, node)
	if err != nil {
		return store.Commit{}, err
	}

	logger := logging.WithContext(services.WithRepositoryID(ctx, repo.ID), e.logger)
	if err := e.store.SaveCommit(ctx, repo.ID, committed, commit); err != nil {
		repo.Tree = next
		logging.ErrorWithContext(logger, "commit not persisted", "commit_persist_failed",
			logging.String("commit_id", commit.ID),
			logging.String("message", message),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database permissions and free disk space"),
		)
		return store.Commit{}, services.Wrap(services.ErrPersistence, "commit", "persist", fmt.Sprintf("commit %s", commit.ID), err)
	}

	repo.Tree = committed
	repo.Updated = commit.Timestamp
	repo.Commits = append(repo.Commits, commit)
	logger.Info("commit created",
		logging.String(logging.FieldEventType, "commit_created"),
		logging.String("commit_id", commit.ID),
		logging.String("message", message),
		logging.String("author", author),
	)

	for _, obs := range e.observers {
		if err := obs.CommitCreated(ctx, repo, commit); err != nil {
			logging.WarnWithContext(logger, "commit observer failed", "commit_observer_failed",
				logging.String("commit_id", commit.ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the commit is stored; only the side effect was skipped"),
			)
		}
	}
	return commit, nil
}

// NextSeq returns max(existing commit sequence) + 1 from the names under
// commits/. Names that do not parse are ignored.
func NextSeq(t tree.Tree) int {
	folder, ok := t.TopLevel(tree.FolderCommits)
	if !ok {
		return 1
	}
	highest := 0
	for _, child := range folder.Children() {
		if seq, ok := ParseID(strings.TrimSuffix(child.Name, ".json")); ok && seq > highest {
			highest = seq
		}
	}
	return highest + 1
}

// FormatID zero-pads seq to the commit id width.
func FormatID(seq int) string {
	return fmt.Sprintf("%0*d", idWidth, seq)
}

// ParseID converts a commit id back to its sequence number.
func ParseID(id string) (int, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.Atoi(id)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}
