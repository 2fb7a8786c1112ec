package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	logger := slog.New(newStreamHandler(base, hub)).With(slog.Int64(FieldAssetID, 42))

	logger.Info("asset progress", slog.String(FieldStatus, "transcribing"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].AssetID != 42 {
		t.Errorf("expected asset_id=42, got %d", events[0].AssetID)
	}
	if events[0].Status != "transcribing" {
		t.Errorf("expected status, got %+v", events[0])
	}
}

func TestStreamHandlerNestedWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	logger := slog.New(newStreamHandler(base, hub)).
		With(slog.Int64(FieldRepositoryID, 3)).
		With(slog.Int64(FieldAssetID, 99)).
		With(slog.String(FieldStage, "analyze"))

	logger.Info("stage started")

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.RepositoryID != 3 || evt.AssetID != 99 || evt.Stage != "analyze" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestStreamHandlerCallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	logger := slog.New(newStreamHandler(base, hub)).With(slog.String(FieldStage, "original"))

	logger.Info("message", slog.String(FieldStage, "overridden"))

	events, _ := hub.Tail(10)
	if len(events) != 1 || events[0].Stage != "overridden" {
		t.Fatalf("expected overridden stage, got %+v", events)
	}
}

func TestStreamHandlerNilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Errorf("expected base handler when hub is nil")
	}
}

func TestStreamHubCapacityDropsOldest(t *testing.T) {
	hub := NewStreamHub(2)
	hub.Publish(LogEvent{Message: "one"})
	hub.Publish(LogEvent{Message: "two"})
	hub.Publish(LogEvent{Message: "three"})

	events, next := hub.Tail(10)
	if len(events) != 2 || events[0].Message != "two" || events[1].Message != "three" {
		t.Fatalf("unexpected tail %+v", events)
	}
	if next != 3 {
		t.Fatalf("expected next sequence 3, got %d", next)
	}

	// A reader that fell behind resumes at the oldest retained event.
	fetched, resume, err := hub.Fetch(context.Background(), 0, 10, false, EventFilter{})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(fetched) != 2 || fetched[0].Sequence != 2 || resume != 3 {
		t.Fatalf("unexpected fetch %+v resume=%d", fetched, resume)
	}
}

func TestStreamHubFetchFiltersAndAdvances(t *testing.T) {
	hub := NewStreamHub(10)
	progress := 40
	hub.Publish(LogEvent{Message: "other repo", RepositoryID: 2, Status: "transcribing", Progress: &progress})
	hub.Publish(LogEvent{Message: "plain", RepositoryID: 1})
	hub.Publish(LogEvent{Message: "mine", RepositoryID: 1, Status: "detecting", Progress: &progress})

	filter := EventFilter{RepositoryID: 1, ProgressOnly: true}
	events, next, err := hub.Fetch(context.Background(), 0, 10, false, filter)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(events) != 1 || events[0].Message != "mine" || next != 3 {
		t.Fatalf("unexpected filtered fetch %+v next=%d", events, next)
	}

	events, next, _ = hub.Fetch(context.Background(), next, 10, false, filter)
	if len(events) != 0 || next != 3 {
		t.Fatalf("expected nothing new, got %+v next=%d", events, next)
	}
}

func TestStreamHandlerLiftsProgressFields(t *testing.T) {
	hub := NewStreamHub(10)
	logger := slog.New(newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub))

	logger.Info("asset progress",
		slog.String(FieldEventType, "asset_progress"),
		slog.String(FieldStatus, "detecting"),
		slog.Int(FieldProgress, 80),
		slog.String("name", "clip.mp4"),
	)

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.EventType != "asset_progress" || evt.Status != "detecting" || evt.Progress == nil || *evt.Progress != 80 {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Fields["name"] != "clip.mp4" {
		t.Fatalf("expected name in fields, got %v", evt.Fields)
	}
}

func TestStreamHubFetchWaitsForEvents(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish(LogEvent{Message: "late"})
	}()

	events, next, err := hub.Fetch(ctx, 0, 10, true, EventFilter{})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(events) != 1 || events[0].Message != "late" || next != 1 {
		t.Fatalf("unexpected fetch result %+v next=%d", events, next)
	}
}

func TestStreamHubFetchHonoursCancel(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := hub.Fetch(ctx, 0, 10, true, EventFilter{}); err == nil {
		t.Fatal("expected context error")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
