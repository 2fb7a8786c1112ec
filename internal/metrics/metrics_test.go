package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vidrepo/internal/store"
)

func TestCollectorsRecord(t *testing.T) {
	m := New()
	_ = m.CommitCreated(context.Background(), nil, store.Commit{Author: "alice"})
	_ = m.CommitCreated(context.Background(), nil, store.Commit{Author: "alice"})
	m.ObserveStage("extract", 2*time.Second)
	m.StageFailed("transcribe")
	m.AssetStarted()
	m.AssetFinished(store.KindVideo, store.StatusIndexed)
	m.AssetStarted()
	m.AssetFinished(store.KindAudio, store.StatusTranscribing)

	if got := testutil.ToFloat64(m.Commits.WithLabelValues("alice")); got != 2 {
		t.Fatalf("commits = %v", got)
	}
	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("transcribe")); got != 1 {
		t.Fatalf("failures = %v", got)
	}
	if got := testutil.ToFloat64(m.AssetsInFlight); got != 0 {
		t.Fatalf("in flight = %v", got)
	}
	if got := testutil.ToFloat64(m.AssetsIngested.WithLabelValues("video")); got != 1 {
		t.Fatalf("ingested video = %v", got)
	}
	if got := testutil.ToFloat64(m.AssetsIngested.WithLabelValues("audio")); got != 0 {
		t.Fatalf("non-terminal audio should not count, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	_ = m.CommitCreated(context.Background(), nil, store.Commit{Author: "bob"})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `vidrepo_commits_total{author="bob"} 1`) {
		t.Fatalf("expected commit counter in output:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage("x", time.Second)
	m.StageFailed("x")
	m.AssetStarted()
	m.AssetFinished(store.KindImage, store.StatusIndexed)
	if err := m.CommitCreated(context.Background(), nil, store.Commit{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
