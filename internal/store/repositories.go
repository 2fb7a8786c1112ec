package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidrepo/internal/tree"
)

const repositoryColumns = "id, name, brief, tree_json, created_at, updated_at"

// CreateRepository inserts repo and assigns its ID.
func (s *Store) CreateRepository(ctx context.Context, repo *Repository) error {
	if repo == nil {
		return errors.New("repository is nil")
	}
	if strings.TrimSpace(repo.Name) == "" {
		return errors.New("repository name is required")
	}
	treeJSON, err := json.Marshal(repo.Tree)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	now := time.Now().UTC()
	if repo.Created.IsZero() {
		repo.Created = now
	}
	repo.Updated = now
	res, err := s.execWithRetry(ctx,
		`INSERT INTO repositories (name, brief, tree_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		repo.Name, repo.Brief, string(treeJSON), formatTime(repo.Created), formatTime(repo.Updated),
	)
	if err != nil {
		return fmt.Errorf("insert repository: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("repository id: %w", err)
	}
	repo.ID = id
	return nil
}

// GetRepository loads a repository with its commits. It returns nil when the
// repository does not exist.
func (s *Store) GetRepository(ctx context.Context, id int64) (*Repository, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+repositoryColumns+" FROM repositories WHERE id = ?", id)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %d: %w", id, err)
	}
	commits, err := s.ListCommits(ctx, id)
	if err != nil {
		return nil, err
	}
	repo.Commits = commits
	return repo, nil
}

// ListRepositories returns all repositories ordered by id, without commits.
func (s *Store) ListRepositories(ctx context.Context) ([]*Repository, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT "+repositoryColumns+" FROM repositories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var out []*Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		out = append(out, repo)
	}
	return out, rows.Err()
}

// SaveTree persists a tree without recording a commit. It is used for
// display-only changes such as toggling a folder open.
func (s *Store) SaveTree(ctx context.Context, repoID int64, t tree.Tree) error {
	treeJSON, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE repositories SET tree_json = ?, updated_at = ? WHERE id = ?`,
		string(treeJSON), formatTime(time.Now()), repoID,
	)
	if err != nil {
		return fmt.Errorf("save tree: %w", err)
	}
	return expectRow(res, "repository", repoID)
}

// SaveCommit writes the tree and appends the commit in one transaction. A
// commit id that already exists for the repository fails the whole write.
func (s *Store) SaveCommit(ctx context.Context, repoID int64, t tree.Tree, commit Commit) error {
	treeJSON, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE repositories SET tree_json = ?, updated_at = ? WHERE id = ?`,
			string(treeJSON), formatTime(commit.Timestamp), repoID,
		)
		if err != nil {
			return fmt.Errorf("save tree: %w", err)
		}
		if err := expectRow(res, "repository", repoID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO commits (repository_id, seq, commit_id, message, author, changes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			repoID, commit.Seq, commit.ID, commit.Message, commit.Author, commit.Changes, formatTime(commit.Timestamp),
		); err != nil {
			return fmt.Errorf("insert commit %s: %w", commit.ID, err)
		}
		return nil
	})
}

// ListCommits returns the commits of a repository in sequence order.
func (s *Store) ListCommits(ctx context.Context, repoID int64) ([]Commit, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, commit_id, message, author, changes, created_at FROM commits WHERE repository_id = ? ORDER BY seq`,
		repoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var out []Commit
	for rows.Next() {
		var (
			commit  Commit
			created string
		)
		if err := rows.Scan(&commit.Seq, &commit.ID, &commit.Message, &commit.Author, &commit.Changes, &created); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commit.Timestamp = parseTimeString(created)
		out = append(out, commit)
	}
	return out, rows.Err()
}

// DeleteRepository removes the repository and its commits. Asset rows are
// left alone; see DeleteAssetsForRepository.
func (s *Store) DeleteRepository(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete repository: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanRepository(scanner interface{ Scan(dest ...any) error }) (*Repository, error) {
	var (
		repo     Repository
		treeJSON string
		created  string
		updated  string
	)
	if err := scanner.Scan(&repo.ID, &repo.Name, &repo.Brief, &treeJSON, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(treeJSON), &repo.Tree); err != nil {
		return nil, fmt.Errorf("decode tree of repository %d: %w", repo.ID, err)
	}
	repo.Created = parseTimeString(created)
	repo.Updated = parseTimeString(updated)
	return &repo, nil
}

func expectRow(res sql.Result, what string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %d", ErrNoRows, what, id)
	}
	return nil
}
