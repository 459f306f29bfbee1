package notifications

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	httpmiddleware "github.com/careloop/booking-platform/internal/http/middleware"
	"github.com/careloop/booking-platform/pkg/logging"
)

// SSEHandler serves the long-lived push stream. One event per write,
// event name "notification", payload the serialized record.
type SSEHandler struct {
	hub       *Hub
	store     Store
	logger    *logging.Logger
	heartbeat time.Duration
}

// NewSSEHandler creates the stream handler. heartbeat keeps idle
// connections alive through proxies; zero selects the default.
func NewSSEHandler(hub *Hub, store Store, heartbeat time.Duration, logger *logging.Logger) *SSEHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &SSEHandler{hub: hub, store: store, logger: logger, heartbeat: heartbeat}
}

// Stream handles GET /notifications/sse. The connection authenticates via
// query token (middleware), subscribes, replays an unread backlog
// snapshot, then pushes live events until the client goes away. Live
// delivery is at-least-once; the polling API is the source of truth.
func (h *SSEHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user, ok := httpmiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return
	}
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Subscribe before reading the backlog so nothing falls between the
	// snapshot and the live stream. A duplicate across the boundary is
	// fine; deduplication is not the stream's job.
	sub := h.hub.Subscribe(userID)
	defer sub.Close()

	backlog, err := h.store.ListByUser(r.Context(), userID, true, 100)
	if err != nil {
		h.logger.Error("failed to load backlog", "error", err, "user_id", userID)
	} else {
		// Oldest first so the client applies them in order.
		for i := len(backlog) - 1; i >= 0; i-- {
			if err := writeEvent(w, backlog[i]); err != nil {
				return
			}
		}
		flusher.Flush()
	}

	h.logger.Info("stream connected", "user_id", userID)
	defer h.logger.Info("stream disconnected", "user_id", userID)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n := <-sub.C:
			if err := writeEvent(w, n); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
	return err
}
