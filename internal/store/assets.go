package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const assetColumns = "id, repository_id, name, kind, mime_type, size, status, progress, tags_json, node_id, blob_key, created_at, updated_at"

// CreateAsset inserts asset and assigns its ID. A blank status becomes pending.
func (s *Store) CreateAsset(ctx context.Context, asset *Asset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	if _, ok := ParseKind(string(asset.Kind)); !ok {
		return fmt.Errorf("asset kind %q is not supported", asset.Kind)
	}
	if asset.Status == "" {
		asset.Status = StatusPending
	}
	now := time.Now().UTC()
	if asset.Created.IsZero() {
		asset.Created = now
	}
	asset.Updated = now
	tags, err := encodeTags(asset.Tags)
	if err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO assets (repository_id, name, kind, mime_type, size, status, progress, tags_json, node_id, blob_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.RepositoryID, asset.Name, string(asset.Kind), asset.MimeType, asset.Size, string(asset.Status), asset.Progress,
		tags, asset.NodeID, asset.BlobKey, formatTime(asset.Created), formatTime(asset.Updated),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("asset id: %w", err)
	}
	asset.ID = id
	return nil
}

// UpdateAsset persists the mutable asset fields.
func (s *Store) UpdateAsset(ctx context.Context, asset *Asset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	tags, err := encodeTags(asset.Tags)
	if err != nil {
		return err
	}
	asset.Updated = time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE assets SET name = ?, status = ?, progress = ?, tags_json = ?, node_id = ?, blob_key = ?, updated_at = ? WHERE id = ?`,
		asset.Name, string(asset.Status), asset.Progress, tags, asset.NodeID, asset.BlobKey, formatTime(asset.Updated), asset.ID,
	)
	if err != nil {
		return fmt.Errorf("update asset %d: %w", asset.ID, err)
	}
	return expectRow(res, "asset", asset.ID)
}

// GetAsset returns the asset with id, or nil when it does not exist.
func (s *Store) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE id = ?", id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %d: %w", id, err)
	}
	return asset, nil
}

// ListAssets returns the assets registered against a repository, oldest first.
func (s *Store) ListAssets(ctx context.Context, repoID int64) ([]*Asset, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE repository_id = ? ORDER BY id", repoID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, asset)
	}
	return out, rows.Err()
}

// DeleteAsset removes one asset row.
func (s *Store) DeleteAsset(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteAssetsForRepository removes every asset row of a repository and
// returns the removed rows so callers can drop their blobs.
func (s *Store) DeleteAssetsForRepository(ctx context.Context, repoID int64) ([]*Asset, error) {
	assets, err := s.ListAssets(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, nil
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM assets WHERE repository_id = ?`, repoID); err != nil {
		return nil, fmt.Errorf("delete assets of repository %d: %w", repoID, err)
	}
	return assets, nil
}

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		asset    Asset
		kind     string
		status   string
		tagsJSON sql.NullString
		created  string
		updated  string
	)
	if err := scanner.Scan(
		&asset.ID,
		&asset.RepositoryID,
		&asset.Name,
		&kind,
		&asset.MimeType,
		&asset.Size,
		&status,
		&asset.Progress,
		&tagsJSON,
		&asset.NodeID,
		&asset.BlobKey,
		&created,
		&updated,
	); err != nil {
		return nil, err
	}
	asset.Kind = AssetKind(kind)
	asset.Status = AssetStatus(status)
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &asset.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of asset %d: %w", asset.ID, err)
		}
	}
	asset.Created = parseTimeString(created)
	asset.Updated = parseTimeString(updated)
	return &asset, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}
