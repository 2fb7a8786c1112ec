package services

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	repositoryIDKey contextKey = "repository_id"
	assetIDKey      contextKey = "asset_id"
	stageKey        contextKey = "stage"
	requestIDKey    contextKey = "request_id"
)

// WithRepositoryID annotates context with the repository identifier.
func WithRepositoryID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, repositoryIDKey, id)
}

// RepositoryIDFromContext extracts the repository identifier if present.
func RepositoryIDFromContext(ctx context.Context) (int64, bool) {
	return int64Value(ctx, repositoryIDKey)
}

// WithAssetID annotates context with the asset identifier.
func WithAssetID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, assetIDKey, id)
}

// AssetIDFromContext extracts the asset identifier if present.
func AssetIDFromContext(ctx context.Context) (int64, bool) {
	return int64Value(ctx, assetIDKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// NewRequestID returns a fresh correlation identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

func int64Value(ctx context.Context, key contextKey) (int64, bool) {
	v := ctx.Value(key)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}
