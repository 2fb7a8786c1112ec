package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"vidrepo/internal/services/transcribe"
	"vidrepo/internal/services/vision"
	"vidrepo/internal/store"
)

// Placeholder is the content of an asset's node under media/.
type Placeholder struct {
	AssetID  int64             `json:"assetId"`
	Kind     store.AssetKind   `json:"kind"`
	MimeType string            `json:"mimeType"`
	Size     int64             `json:"size"`
	Status   store.AssetStatus `json:"status"`
	Progress int               `json:"progress"`
	BlobKey  string            `json:"blobKey"`
}

// PlaceholderContent renders the placeholder JSON for asset.
func PlaceholderContent(asset *store.Asset) string {
	data, _ := json.MarshalIndent(Placeholder{
		AssetID:  asset.ID,
		Kind:     asset.Kind,
		MimeType: asset.MimeType,
		Size:     asset.Size,
		Status:   asset.Status,
		Progress: asset.Progress,
		BlobKey:  asset.BlobKey,
	}, "", "  ")
	return string(data)
}

// HistoryEntry is one line of a metadata document's audit log.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
}

// Metadata is the document written to metadata/<assetId>.json.
type Metadata struct {
	AssetID     int64                `json:"assetId"`
	Name        string               `json:"name"`
	Kind        store.AssetKind      `json:"kind"`
	Analysis    vision.Result        `json:"analysis"`
	Transcript  *string              `json:"transcript"`
	Segments    []transcribe.Segment `json:"segments"`
	ProcessedAt time.Time            `json:"processedAt"`
	History     []HistoryEntry       `json:"history"`
}

// MetadataName is the metadata file name for an asset.
func MetadataName(assetID int64) string {
	return fmt.Sprintf("%d.json", assetID)
}

// SubtitleName is the caption file name for an asset.
func SubtitleName(assetID int64) string {
	return fmt.Sprintf("%d.srt", assetID)
}

// previousHistory recovers the history of an earlier metadata document.
// Unreadable documents contribute nothing.
func previousHistory(content string) []HistoryEntry {
	if content == "" {
		return nil
	}
	var prior struct {
		History []HistoryEntry `json:"history"`
	}
	if err := json.Unmarshal([]byte(content), &prior); err != nil {
		return nil
	}
	return prior.History
}

func encodeMetadata(meta Metadata) (string, error) {
	if meta.Segments == nil {
		meta.Segments = []transcribe.Segment{}
	}
	if meta.Analysis.Tags == nil {
		meta.Analysis.Tags = []string{}
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}
