package rules

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	httpmiddleware "github.com/careloop/booking-platform/internal/http/middleware"
	"github.com/careloop/booking-platform/pkg/logging"
)

// Handler serves availability rule CRUD for providers.
type Handler struct {
	repo     *Repository
	validate *validator.Validate
	logger   *logging.Logger
}

// NewHandler creates a rules handler.
func NewHandler(repo *Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateRuleRequest is the POST /availability-rules payload.
type CreateRuleRequest struct {
	DaysOfWeek []Weekday `json:"daysOfWeek" validate:"required,min=1,dive,min=1,max=7"`
	StartHour  int       `json:"startHour" validate:"min=0,max=23"`
	EndHour    int       `json:"endHour" validate:"min=1,max=23,gtfield=StartHour"`
}

// Create handles POST /availability-rules.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := httpmiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	providerID, err := uuid.Parse(user.ID)
	if err != nil {
		http.Error(w, "invalid provider id", http.StatusBadRequest)
		return
	}

	rule, err := h.repo.Create(r.Context(), &AvailabilityRule{
		ProviderID: providerID,
		DaysOfWeek: req.DaysOfWeek,
		StartHour:  req.StartHour,
		EndHour:    req.EndHour,
		IsActive:   true,
	})
	if err != nil {
		h.logger.Error("failed to create rule", "error", err, "provider_id", providerID)
		http.Error(w, "failed to create rule", http.StatusInternalServerError)
		return
	}

	h.logger.Info("availability rule created", "rule_id", rule.ID, "provider_id", providerID)
	writeJSON(w, http.StatusCreated, rule)
}

// UpdateRuleRequest is the PATCH /availability-rules/{id} payload.
type UpdateRuleRequest struct {
	DaysOfWeek *[]Weekday `json:"daysOfWeek,omitempty" validate:"omitempty,min=1,dive,min=1,max=7"`
	StartHour  *int       `json:"startHour,omitempty" validate:"omitempty,min=0,max=23"`
	EndHour    *int       `json:"endHour,omitempty" validate:"omitempty,min=1,max=23"`
	IsActive   *bool      `json:"isActive,omitempty"`
}

// Update handles PATCH /availability-rules/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := httpmiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return
	}
	ruleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return
	}

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	providerID, err := uuid.Parse(user.ID)
	if err != nil {
		http.Error(w, "invalid provider id", http.StatusBadRequest)
		return
	}

	// A lone hour patch can invert the window, so ordering is checked
	// against the effective values, not just the payload.
	current, err := h.repo.Get(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load rule", "error", err, "rule_id", ruleID)
		http.Error(w, "failed to update rule", http.StatusInternalServerError)
		return
	}
	startHour, endHour := current.StartHour, current.EndHour
	if req.StartHour != nil {
		startHour = *req.StartHour
	}
	if req.EndHour != nil {
		endHour = *req.EndHour
	}
	if startHour >= endHour {
		http.Error(w, "startHour must be before endHour", http.StatusBadRequest)
		return
	}

	rule, err := h.repo.Update(r.Context(), ruleID, providerID, UpdatePatch{
		DaysOfWeek: req.DaysOfWeek,
		StartHour:  req.StartHour,
		EndHour:    req.EndHour,
		IsActive:   req.IsActive,
	})
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to update rule", "error", err, "rule_id", ruleID)
		http.Error(w, "failed to update rule", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// Delete handles DELETE /availability-rules/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := httpmiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return
	}
	ruleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return
	}
	providerID, err := uuid.Parse(user.ID)
	if err != nil {
		http.Error(w, "invalid provider id", http.StatusBadRequest)
		return
	}

	pruned, err := h.repo.Delete(r.Context(), ruleID, providerID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete rule", "error", err, "rule_id", ruleID)
		http.Error(w, "failed to delete rule", http.StatusInternalServerError)
		return
	}

	h.logger.Info("availability rule deleted", "rule_id", ruleID, "pruned_slots", pruned)
	writeJSON(w, http.StatusOK, map[string]int64{"prunedSlots": pruned})
}

// ListMine handles GET /availability-rules/my.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
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

	ruleList, err := h.repo.ListByProvider(r.Context(), providerID)
	if err != nil {
		h.logger.Error("failed to list rules", "error", err, "provider_id", providerID)
		http.Error(w, "failed to list rules", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ruleList)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
