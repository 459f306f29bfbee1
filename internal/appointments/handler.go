package appointments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/careloop/booking-platform/internal/events"
	httpmiddleware "github.com/careloop/booking-platform/internal/http/middleware"
	"github.com/careloop/booking-platform/pkg/logging"
)

// Handler serves booking and lifecycle endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   *logging.Logger
}

// NewHandler creates an appointments handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateRequest is the POST /appointments payload.
type CreateRequest struct {
	HostID     string `json:"hostId" validate:"required,uuid"`
	TimeslotID string `json:"timeslotId" validate:"required,uuid"`
	PatientID  string `json:"patientId" validate:"required,uuid"`
	Reason     string `json:"reason" validate:"required"`
}

// Create handles POST /appointments: the guest-initiated reservation.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := httpmiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return
	}
	guestID, err := uuid.Parse(user.ID)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Reserve(r.Context(), ReserveParams{
		SlotID:    uuid.MustParse(req.TimeslotID),
		GuestID:   guestID,
		PatientID: uuid.MustParse(req.PatientID),
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeReserveError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, appt)
}

// Confirm handles PATCH /appointments/{id}/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(apptID uuid.UUID, actor Actor) (*Appointment, error) {
		return h.svc.Confirm(r.Context(), apptID, actor)
	})
}

// CancelRequest is the PATCH /appointments/{id}/cancel payload.
type CancelRequest struct {
	CancelReason string `json:"cancelReason" validate:"required"`
}

// Cancel handles PATCH /appointments/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "cancelReason is required", http.StatusBadRequest)
		return
	}

	h.applyTransition(w, r, func(apptID uuid.UUID, actor Actor) (*Appointment, error) {
		return h.svc.Cancel(r.Context(), apptID, actor, req.CancelReason)
	})
}

// Complete handles PATCH /appointments/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(apptID uuid.UUID, actor Actor) (*Appointment, error) {
		return h.svc.Complete(r.Context(), apptID, actor)
	})
}

// ListMine handles GET /appointments/my.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
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

	appts, err := h.svc.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err, "user_id", userID)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request, apply func(uuid.UUID, Actor) (*Appointment, error)) {
	user, ok := httpmiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return
	}
	actorID, err := uuid.Parse(user.ID)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	apptID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	appt, err := apply(apptID, Actor{ID: actorID, Role: events.ActorRole(user.Role)})
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) writeReserveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSlotNotFound):
		http.Error(w, "slot not found", http.StatusNotFound)
	case errors.Is(err, ErrSlotUnavailable):
		http.Error(w, "slot is no longer available", http.StatusConflict)
	case errors.Is(err, ErrSlotInPast):
		http.Error(w, "slot is in the past", http.StatusBadRequest)
	case errors.Is(err, ErrReasonRequired):
		http.Error(w, "reason is required", http.StatusBadRequest)
	default:
		h.logger.Error("reservation failed", "error", err)
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
	}
}

func (h *Handler) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition):
		http.Error(w, "transition not allowed from current status", http.StatusConflict)
	case errors.Is(err, ErrStaleState):
		http.Error(w, "appointment changed concurrently, refresh and retry", http.StatusConflict)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "not allowed", http.StatusForbidden)
	case errors.Is(err, ErrReasonRequired):
		http.Error(w, "cancelReason is required", http.StatusBadRequest)
	default:
		h.logger.Error("transition failed", "error", err)
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
