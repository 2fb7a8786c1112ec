package httpapi

import (
	"time"

	"vidrepo/internal/store"
	"vidrepo/internal/tree"
)

// CreateRepositoryRequest is the body of POST /repositories.
type CreateRepositoryRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Brief string `json:"brief" validate:"max=4000"`
}

// CreateNodeRequest is the body of POST /repositories/{id}/nodes.
type CreateNodeRequest struct {
	ParentID string `json:"parent_id" validate:"required"`
	Name     string `json:"name" validate:"required,max=255,excludesall=/"`
	Kind     string `json:"kind" validate:"required,oneof=folder file"`
}

// UpdateContentRequest is the body of PUT /nodes/{id}/content.
type UpdateContentRequest struct {
	Content string `json:"content"`
}

// RenameNodeRequest is the body of POST /nodes/{id}/rename.
type RenameNodeRequest struct {
	Name string `json:"name" validate:"required,max=255,excludesall=/"`
}

// RepositoryResponse describes one repository.
type RepositoryResponse struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Brief   string       `json:"brief,omitempty"`
	Created time.Time    `json:"created"`
	Updated time.Time    `json:"updated"`
	Tree    *tree.Tree   `json:"tree,omitempty"`
	Commits []store.Commit `json:"commits,omitempty"`
}

// AssetResponse describes one asset.
type AssetResponse struct {
	ID           int64    `json:"id"`
	RepositoryID int64    `json:"repository_id"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	MimeType     string   `json:"mime_type"`
	Size         int64    `json:"size"`
	Status       string   `json:"status"`
	Progress     int      `json:"progress"`
	Tags         []string `json:"tags"`
	NodeID       string   `json:"node_id,omitempty"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func fromRepository(repo *store.Repository, withTree bool) RepositoryResponse {
	out := RepositoryResponse{
		ID:      repo.ID,
		Name:    repo.Name,
		Brief:   repo.Brief,
		Created: repo.Created,
		Updated: repo.Updated,
	}
	if withTree {
		t := repo.Tree
		out.Tree = &t
		out.Commits = repo.Commits
	}
	return out
}

func fromAsset(asset store.Asset) AssetResponse {
	tags := asset.Tags
	if tags == nil {
		tags = []string{}
	}
	return AssetResponse{
		ID:           asset.ID,
		RepositoryID: asset.RepositoryID,
		Name:         asset.Name,
		Kind:         string(asset.Kind),
		MimeType:     asset.MimeType,
		Size:         asset.Size,
		Status:       string(asset.Status),
		Progress:     asset.Progress,
		Tags:         tags,
		NodeID:       asset.NodeID,
		Created:      asset.Created,
		Updated:      asset.Updated,
	}
}

func fromAssets(assets []store.Asset) []AssetResponse {
	out := make([]AssetResponse, 0, len(assets))
	for _, asset := range assets {
		out = append(out, fromAsset(asset))
	}
	return out
}
