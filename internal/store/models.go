package store

import (
	"slices"
	"strings"
	"time"

	"vidrepo/internal/tree"
)

// AssetKind is the declared media type of an asset.
type AssetKind string

const (
	KindVideo AssetKind = "video"
	KindAudio AssetKind = "audio"
	KindImage AssetKind = "image"
)

// ParseKind converts a string into a known AssetKind.
func ParseKind(value string) (AssetKind, bool) {
	switch kind := AssetKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case KindVideo, KindAudio, KindImage:
		return kind, true
	default:
		return "", false
	}
}

// AssetStatus represents the lifecycle of an asset in the ingestion pipeline.
type AssetStatus string

const (
	StatusPending      AssetStatus = "pending"
	StatusTranscribing AssetStatus = "transcribing"
	StatusDetecting    AssetStatus = "detecting"
	StatusIndexed      AssetStatus = "indexed"
	// StatusReady marks assets stored while ingestion is disabled.
	StatusReady AssetStatus = "ready"
)

var allStatuses = []AssetStatus{
	StatusPending,
	StatusTranscribing,
	StatusDetecting,
	StatusIndexed,
	StatusReady,
}

var statusRank = func() map[AssetStatus]int {
	ranks := make(map[AssetStatus]int, len(allStatuses))
	for i, status := range allStatuses {
		ranks[status] = i
	}
	return ranks
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []AssetStatus {
	return slices.Clone(allStatuses)
}

// ParseStatus converts a string into a known AssetStatus.
func ParseStatus(value string) (AssetStatus, bool) {
	normalized := AssetStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusRank[normalized]
	return normalized, ok
}

// Before reports whether s comes strictly earlier in the pipeline than other.
func (s AssetStatus) Before(other AssetStatus) bool {
	return statusRank[s] < statusRank[other]
}

// IsTerminal reports whether no further pipeline stage will touch the asset.
func (s AssetStatus) IsTerminal() bool {
	return s == StatusIndexed || s == StatusReady
}

// Repository is one versioned media project.
type Repository struct {
	ID      int64
	Name    string
	Brief   string
	Created time.Time
	Updated time.Time
	Tree    tree.Tree
	Commits []Commit
}

// Commit is an append-only snapshot record for one mutation.
type Commit struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Changes   string    `json:"changes,omitempty"`
}

// Asset is an uploaded media object tracked through ingestion. The payload
// lives in the blob store under BlobKey.
type Asset struct {
	ID           int64
	RepositoryID int64
	Name         string
	Kind         AssetKind
	MimeType     string
	Size         int64
	Status       AssetStatus
	Progress     int
	Tags         []string
	NodeID       string
	BlobKey      string
	Created      time.Time
	Updated      time.Time
}

// SetProgress records progress within the current status. Progress only moves
// forward within a stage; a status change resets it.
func (a *Asset) SetProgress(status AssetStatus, percent int) {
	percent = min(max(percent, 0), 100)
	if status != a.Status {
		a.Status = status
		a.Progress = percent
		return
	}
	if percent > a.Progress {
		a.Progress = percent
	}
}
