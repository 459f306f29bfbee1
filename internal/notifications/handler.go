package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpmiddleware "github.com/careloop/booking-platform/internal/http/middleware"
	"github.com/careloop/booking-platform/pkg/logging"
)

const defaultListLimit = 50

// Handler exposes the polling API for notifications.
type Handler struct {
	store   Store
	counter *UnreadCounter
	logger  *logging.Logger
}

func NewHandler(store Store, counter *UnreadCounter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, counter: counter, logger: logger}
}

// ListMine handles GET /notifications/my?unread=true&limit=20.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			http.Error(w, "limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}

	items, err := h.store.ListByUser(r.Context(), userID, unreadOnly, limit)
	if err != nil {
		h.logger.Error("failed to list notifications", "error", err, "user_id", userID)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

// UnreadCount handles GET /notifications/unread-count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}

	count, err := h.counter.Count(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count unread", "error", err, "user_id", userID)
		http.Error(w, "failed to count unread", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": count})
}

// MarkRead handles PATCH /notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}

	flipped, err := h.store.MarkRead(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			http.Error(w, "notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to mark read", "error", err, "notification_id", id)
		http.Error(w, "failed to mark read", http.StatusInternalServerError)
		return
	}
	// Only an actual flip moves the unread count; repeats are no-ops.
	if flipped {
		h.counter.OnRead(r.Context(), userID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles PATCH /notifications/read-all.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}

	updated, err := h.store.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to mark all read", "error", err, "user_id", userID)
		http.Error(w, "failed to mark all read", http.StatusInternalServerError)
		return
	}
	h.counter.OnAllRead(r.Context(), userID)
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// Delete handles DELETE /notifications/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}

	if err := h.store.Delete(r.Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			http.Error(w, "notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete notification", "error", err, "notification_id", id)
		http.Error(w, "failed to delete notification", http.StatusInternalServerError)
		return
	}
	// The deleted record may have been unread. Recompute on next read.
	if err := h.counter.Invalidate(r.Context(), userID); err != nil {
		h.logger.Warn("failed to invalidate unread cache", "error", err, "user_id", userID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func requestUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	user, ok := httpmiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(user.ID)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
