package schedule

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	httpmiddleware "github.com/careloop/booking-platform/internal/http/middleware"
	"github.com/careloop/booking-platform/internal/rules"
	"github.com/careloop/booking-platform/pkg/logging"
)

const dateLayout = "2006-01-02"

// Handler serves slot generation and slot CRUD.
type Handler struct {
	store            *Store
	ruleRepo         *rules.Repository
	validate         *validator.Validate
	logger           *logging.Logger
	maxExpansionDays int
}

// NewHandler creates a schedule handler. maxExpansionDays bounds how far a
// single generate request may reach.
func NewHandler(store *Store, ruleRepo *rules.Repository, maxExpansionDays int, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if maxExpansionDays <= 0 {
		maxExpansionDays = 92
	}
	return &Handler{
		store:            store,
		ruleRepo:         ruleRepo,
		validate:         validator.New(),
		logger:           logger,
		maxExpansionDays: maxExpansionDays,
	}
}

// GenerateRequest is the POST /timeslots/generate payload.
type GenerateRequest struct {
	RuleID       string `json:"ruleId" validate:"required,uuid"`
	SlotDuration int    `json:"slotDuration" validate:"required,min=5,max=480"`
	FromDate     string `json:"fromDate" validate:"required"`
	ToDate       string `json:"toDate" validate:"required"`
}

// GenerateResponse reports how many slots a generate call materialized.
type GenerateResponse struct {
	Created int64 `json:"created"`
}

// Generate handles POST /timeslots/generate. Re-invocation over the same
// range is idempotent and reports created: 0 for already-present slots.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	user, ok := httpmiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ruleID := uuid.MustParse(req.RuleID)
	fromDate, err := time.Parse(dateLayout, req.FromDate)
	if err != nil {
		http.Error(w, "fromDate must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	toDate, err := time.Parse(dateLayout, req.ToDate)
	if err != nil {
		http.Error(w, "toDate must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if toDate.Sub(fromDate) > time.Duration(h.maxExpansionDays)*24*time.Hour {
		http.Error(w, "date range exceeds expansion horizon", http.StatusBadRequest)
		return
	}

	rule, err := h.ruleRepo.Get(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load rule", "error", err, "rule_id", ruleID)
		http.Error(w, "failed to generate slots", http.StatusInternalServerError)
		return
	}
	if rule.ProviderID.String() != user.ID {
		http.Error(w, "rule not found", http.StatusNotFound)
		return
	}
	if !rule.IsActive {
		http.Error(w, "rule is inactive", http.StatusBadRequest)
		return
	}

	candidates, err := Expand(rule, fromDate, toDate, time.Duration(req.SlotDuration)*time.Minute)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) || errors.Is(err, ErrInvalidDuration) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("expansion failed", "error", err, "rule_id", ruleID)
		http.Error(w, "failed to generate slots", http.StatusInternalServerError)
		return
	}

	created, err := h.store.Materialize(r.Context(), candidates)
	if err != nil {
		if errors.Is(err, ErrSlotOverlap) {
			http.Error(w, "generation raced a concurrent slot write, retry", http.StatusConflict)
			return
		}
		h.logger.Error("failed to materialize slots", "error", err, "rule_id", ruleID)
		http.Error(w, "failed to generate slots", http.StatusInternalServerError)
		return
	}

	h.logger.Info("slots generated",
		"rule_id", ruleID,
		"candidates", len(candidates),
		"created", created,
	)
	writeJSON(w, http.StatusOK, GenerateResponse{Created: created})
}

// ListByProvider handles GET /timeslots/host/{id}.
func (h *Handler) ListByProvider(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid provider id", http.StatusBadRequest)
		return
	}

	slots, err := h.store.ListByProvider(r.Context(), providerID)
	if err != nil {
		h.logger.Error("failed to list slots", "error", err, "provider_id", providerID)
		http.Error(w, "failed to list slots", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, slots)
}

// CreateSlotRequest is the POST /timeslots payload for a manual slot.
type CreateSlotRequest struct {
	StartTime time.Time `json:"startTime" validate:"required"`
	EndTime   time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
}

// CreateManual handles POST /timeslots.
func (h *Handler) CreateManual(w http.ResponseWriter, r *http.Request) {
	user, ok := httpmiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return
	}
	providerID, err := uuid.Parse(user.ID)
	if err != nil {
		http.Error(w, "invalid provider id", http.StatusBadRequest)
		return
	}

	var req CreateSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	slot, err := h.store.CreateManual(r.Context(), providerID, req.StartTime, req.EndTime)
	if err != nil {
		if errors.Is(err, ErrSlotOverlap) {
			http.Error(w, "slot overlaps an existing slot", http.StatusConflict)
			return
		}
		h.logger.Error("failed to create slot", "error", err, "provider_id", providerID)
		http.Error(w, "failed to create slot", http.StatusInternalServerError)
		return
	}

	h.logger.Info("manual slot created", "slot_id", slot.ID, "provider_id", providerID)
	writeJSON(w, http.StatusCreated, slot)
}

// Delete handles DELETE /timeslots/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := httpmiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return
	}
	slotID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid slot id", http.StatusBadRequest)
		return
	}
	providerID, err := uuid.Parse(user.ID)
	if err != nil {
		http.Error(w, "invalid provider id", http.StatusBadRequest)
		return
	}

	retired, err := h.store.Delete(r.Context(), slotID, providerID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			http.Error(w, "slot not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete slot", "error", err, "slot_id", slotID)
		http.Error(w, "failed to delete slot", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"retired": retired})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
