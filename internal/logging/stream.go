package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent is one log line as seen by stream subscribers. Pipeline progress
// lines fill Status and Progress so a UI can render bars without parsing
// Fields.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	EventType     string            `json:"event_type,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	RepositoryID  int64             `json:"repository_id,omitempty"`
	AssetID       int64             `json:"asset_id,omitempty"`
	Status        string            `json:"status,omitempty"`
	Progress      *int              `json:"progress,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// EventFilter selects events for a subscriber. Zero values match everything.
type EventFilter struct {
	RepositoryID int64
	AssetID      int64
	// ProgressOnly keeps only lines that carry an asset status.
	ProgressOnly bool
}

// Match reports whether evt passes the filter.
func (f EventFilter) Match(evt LogEvent) bool {
	if f.RepositoryID != 0 && evt.RepositoryID != f.RepositoryID {
		return false
	}
	if f.AssetID != 0 && evt.AssetID != f.AssetID {
		return false
	}
	if f.ProgressOnly && evt.Status == "" {
		return false
	}
	return true
}

// StreamHub keeps the most recent events in a ring and wakes blocked
// readers when new ones arrive. Sequence numbers start at 1 and are never
// reused, so a reader resumes with the last sequence it saw.
type StreamHub struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ring    []LogEvent
	head    int // index of the oldest event
	count   int
	lastSeq uint64
}

// NewStreamHub builds a hub holding up to capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &StreamHub{ring: make([]LogEvent, capacity)}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish stamps evt with the next sequence and stores it, evicting the
// oldest event when full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastSeq++
	evt.Sequence = h.lastSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if h.count < len(h.ring) {
		h.ring[(h.head+h.count)%len(h.ring)] = evt
		h.count++
	} else {
		h.ring[h.head] = evt
		h.head = (h.head + 1) % len(h.ring)
	}
	h.cond.Broadcast()
}

// Fetch returns up to limit events after since that pass filter, plus the
// sequence to resume from. With wait set it blocks until something matches
// or ctx ends. Events evicted before the reader caught up are skipped.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool, filter EventFilter) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > len(h.ring) {
		limit = len(h.ring)
	}

	if wait {
		stop := context.AfterFunc(ctx, func() {
			h.mu.Lock()
			h.cond.Broadcast()
			h.mu.Unlock()
		})
		defer stop()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return nil, since, err
		}
		events, next := h.collectLocked(since, limit, filter)
		since = next
		if len(events) > 0 || !wait {
			return events, since, nil
		}
		h.cond.Wait()
	}
}

// Tail returns the newest limit events without blocking.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > h.count {
		limit = h.count
	}
	out := make([]LogEvent, 0, limit)
	for i := h.count - limit; i < h.count; i++ {
		out = append(out, h.at(i))
	}
	return out, h.lastSeq
}

func (h *StreamHub) at(i int) LogEvent {
	return h.ring[(h.head+i)%len(h.ring)]
}

// collectLocked scans forward from since. The returned sequence is the last
// one examined, so filtered-out events are not rescanned.
func (h *StreamHub) collectLocked(since uint64, limit int, filter EventFilter) ([]LogEvent, uint64) {
	if h.count == 0 || since >= h.lastSeq {
		return nil, since
	}
	oldest := h.lastSeq - uint64(h.count) + 1
	start := 0
	if since >= oldest {
		start = int(since - oldest + 1)
	}
	var out []LogEvent
	next := since
	for i := start; i < h.count && len(out) < limit; i++ {
		evt := h.at(i)
		next = evt.Sequence
		if filter.Match(evt) {
			out = append(out, evt)
		}
	}
	return out, next
}

type streamHandler struct {
	next  slog.Handler
	hub   *StreamHub
	attrs []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(eventFromRecord(record, h.attrs))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &streamHandler{next: h.next.WithAttrs(attrs), hub: h.hub, attrs: merged}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub}
}

// eventFromRecord lifts the well-known keys into LogEvent fields. Logger
// attrs are applied first so call-site attrs win.
func eventFromRecord(record slog.Record, loggerAttrs []slog.Attr) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	apply := func(attr slog.Attr) {
		key := strings.TrimSpace(attr.Key)
		switch key {
		case "":
		case FieldRepositoryID:
			event.RepositoryID = valueInt64(attr.Value)
		case FieldAssetID:
			event.AssetID = valueInt64(attr.Value)
		case FieldStage:
			event.Stage = valueString(attr.Value)
		case FieldCorrelationID:
			event.CorrelationID = valueString(attr.Value)
		case FieldComponent:
			event.Component = valueString(attr.Value)
		case FieldEventType:
			event.EventType = valueString(attr.Value)
		case FieldStatus:
			event.Status = valueString(attr.Value)
		case FieldProgress:
			progress := int(valueInt64(attr.Value))
			event.Progress = &progress
		default:
			if event.Fields == nil {
				event.Fields = make(map[string]string)
			}
			event.Fields[key] = valueString(attr.Value)
		}
	}
	for _, attr := range loggerAttrs {
		apply(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		apply(attr)
		return true
	})
	return event
}

func valueString(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return fmt.Sprint(v.Any())
}

func valueInt64(v slog.Value) int64 {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return int64(v.Uint64())
	case slog.KindFloat64:
		return int64(v.Float64())
	default:
		return 0
	}
}
