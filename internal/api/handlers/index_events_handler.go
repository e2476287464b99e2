package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
)

const defaultHeartbeat = 30 * time.Second

// IndexEventsHandler streams index lifecycle events to operators over SSE.
type IndexEventsHandler struct {
	eventBus  providers.EventBus
	heartbeat time.Duration
	clients   atomic.Int64
}

// NewIndexEventsHandler creates a new index events handler
func NewIndexEventsHandler(eventBus providers.EventBus) *IndexEventsHandler {
	return &IndexEventsHandler{eventBus: eventBus, heartbeat: defaultHeartbeat}
}

// Stream handles GET /api/admin/index/events
func (h *IndexEventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := h.eventBus.Subscribe(r.Context(), providers.EventChannelIndexUpdates)
	if err != nil {
		log.Error().Err(err).Str("channel", providers.EventChannelIndexUpdates).Msg("Failed to subscribe to index events")
		respondWithError(w, http.StatusServiceUnavailable, "index events unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	connected := h.clients.Add(1)
	defer h.clients.Add(-1)
	log.Debug().Int64("clients", connected).Msg("Index event stream opened")

	h.sendEvent(w, "connected", map[string]interface{}{"timestamp": time.Now().UTC()})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{"timestamp": time.Now().UTC()})
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			h.sendEvent(w, string(event.Type), event)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of open streams
func (h *IndexEventsHandler) ClientCount() int64 {
	return h.clients.Load()
}

func (h *IndexEventsHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("Failed to marshal index event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
}
