package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"vidrepo/internal/logging"
	"vidrepo/internal/services"
)

const (
	eventBatch   = 200
	writeTimeout = 10 * time.Second
)

// handleEvents upgrades to a websocket and streams log events as JSON
// messages. Query parameters: since (sequence to resume after), repository
// and asset (id filters) and progress=true (status lines only).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.fail(w, r, services.Wrap(services.ErrConfiguration, "api", "events", "event stream unavailable", nil))
		return
	}
	query := r.URL.Query()
	var since uint64
	if raw := query.Get("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.fail(w, r, services.Wrap(services.ErrValidation, "api", "events", "invalid since", err))
			return
		}
		since = parsed
	}
	var filter logging.EventFilter
	for key, dst := range map[string]*int64{"repository": &filter.RepositoryID, "asset": &filter.AssetID} {
		raw := query.Get(key)
		if raw == "" {
			continue
		}
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.fail(w, r, services.Wrap(services.ErrValidation, "api", "events", "invalid "+key, err))
			return
		}
		*dst = parsed
	}
	filter.ProgressOnly, _ = strconv.ParseBool(query.Get("progress"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.EventSubscribed.Inc()
		defer s.metrics.EventSubscribed.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads are only used to notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		events, next, err := s.hub.Fetch(ctx, since, eventBatch, true, filter)
		for _, evt := range events {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if werr := conn.WriteJSON(evt); werr != nil {
				return
			}
		}
		since = next
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
