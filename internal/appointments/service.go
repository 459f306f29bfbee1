package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/careloop/booking-platform/internal/events"
	"github.com/careloop/booking-platform/internal/observability/metrics"
	"github.com/careloop/booking-platform/pkg/logging"
)

var tracer = otel.Tracer("careloop.internal.appointments")

// Publisher receives one domain event per successful transition. Delivery
// is fire-and-forget from the state machine's perspective.
type Publisher interface {
	Publish(event events.AppointmentTransitionedV1)
}

// Actor is the authenticated principal attempting a transition.
type Actor struct {
	ID   uuid.UUID
	Role events.ActorRole
}

// Service owns the appointment lifecycle: reservation and every guarded
// transition. All writes are conditional single statements; the service
// holds no locks.
type Service struct {
	repo      Repository
	publisher Publisher
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewService constructs the appointment service. publisher and m may be nil.
func NewService(repo Repository, publisher Publisher, m *metrics.BookingMetrics, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// ReserveParams carries a guest's booking request.
type ReserveParams struct {
	SlotID    uuid.UUID
	GuestID   uuid.UUID
	PatientID uuid.UUID
	Reason    string
}

// Reserve books a slot into a PENDING appointment. Exactly one concurrent
// caller per slot succeeds; the rest get ErrSlotUnavailable.
func (s *Service) Reserve(ctx context.Context, p ReserveParams) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.reserve")
	defer span.End()
	span.SetAttributes(attribute.String("careloop.slot_id", p.SlotID.String()))

	if strings.TrimSpace(p.Reason) == "" {
		return nil, ErrReasonRequired
	}

	appt, err := s.repo.Reserve(ctx, p.SlotID, p.GuestID, p.PatientID, p.Reason, s.now().UTC())
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveReservation(reservationOutcome(err))
		return nil, err
	}
	s.metrics.ObserveReservation("created")

	s.logger.Info("slot reserved",
		"appointment_id", appt.ID,
		"slot_id", appt.SlotID,
		"guest_id", appt.GuestID,
	)
	s.emit(appt, "", StatusPending, Actor{ID: p.GuestID, Role: events.ActorGuest}, "")
	return appt, nil
}

// Confirm moves PENDING → CONFIRMED. Only the owning provider may confirm.
func (s *Service) Confirm(ctx context.Context, apptID uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, apptID, StatusConfirmed, actor, "")
}

// Cancel moves PENDING or CONFIRMED → CANCELLED. Either the owning guest
// or the owning provider may cancel; a free-text reason is mandatory.
// Cancelling releases the slot the instant the update lands.
func (s *Service) Cancel(ctx context.Context, apptID uuid.UUID, actor Actor, reason string) (*Appointment, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	return s.transition(ctx, apptID, StatusCancelled, actor, reason)
}

// Complete moves CONFIRMED → COMPLETED. Provider action, typically post-hoc.
func (s *Service) Complete(ctx context.Context, apptID uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, apptID, StatusCompleted, actor, "")
}

// Get loads one appointment, visible only to its guest or provider.
func (s *Service) Get(ctx context.Context, apptID uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if appt.GuestID != actor.ID && appt.ProviderID != actor.ID {
		return nil, ErrForbidden
	}
	return appt, nil
}

// ListForUser returns the actor's appointments, both roles.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Appointment, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) transition(ctx context.Context, apptID uuid.UUID, to Status, actor Actor, cancelReason string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("careloop.appointment_id", apptID.String()),
		attribute.String("careloop.to_status", string(to)),
	)

	current, err := s.repo.Get(ctx, apptID)
	if err != nil {
		return nil, err
	}

	if err := authorize(current, to, actor); err != nil {
		s.metrics.ObserveTransition(string(to), "forbidden")
		return nil, err
	}
	if !CanTransition(current.Status, to) {
		s.metrics.ObserveTransition(string(to), "invalid")
		return nil, ErrInvalidTransition
	}

	var reasonArg *string
	if to == StatusCancelled {
		reasonArg = &cancelReason
	}

	// The update is guarded by the status just observed. If a concurrent
	// actor landed first, zero rows match and the caller must refresh.
	updated, err := s.repo.UpdateStatus(ctx, apptID, current.Status, to, reasonArg)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveTransition(string(to), transitionOutcome(err))
		return nil, err
	}
	s.metrics.ObserveTransition(string(to), "ok")

	s.logger.Info("appointment transitioned",
		"appointment_id", apptID,
		"from", current.Status,
		"to", to,
		"actor_id", actor.ID,
		"actor_role", actor.Role,
	)
	s.emit(updated, current.Status, to, actor, cancelReason)
	return updated, nil
}

// authorize enforces the actor rules: only the owning provider confirms or
// completes; either owning party cancels.
func authorize(appt *Appointment, to Status, actor Actor) error {
	switch to {
	case StatusConfirmed, StatusCompleted:
		if actor.ID != appt.ProviderID {
			return ErrForbidden
		}
	case StatusCancelled:
		if actor.ID != appt.ProviderID && actor.ID != appt.GuestID {
			return ErrForbidden
		}
	default:
		return ErrInvalidTransition
	}
	return nil
}

func (s *Service) emit(appt *Appointment, from, to Status, actor Actor, reason string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.AppointmentTransitionedV1{
		EventID:       uuid.NewString(),
		AppointmentID: appt.ID.String(),
		SlotID:        appt.SlotID.String(),
		ProviderID:    appt.ProviderID.String(),
		GuestID:       appt.GuestID.String(),
		FromStatus:    string(from),
		ToStatus:      string(to),
		ActorID:       actor.ID.String(),
		ActorRole:     actor.Role,
		Reason:        reason,
		SlotStart:     appt.SlotStart,
		OccurredAt:    s.now().UTC(),
	})
}

func reservationOutcome(err error) string {
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return "conflict"
	case errors.Is(err, ErrSlotNotFound):
		return "not_found"
	case errors.Is(err, ErrSlotInPast):
		return "past"
	default:
		return "error"
	}
}

func transitionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrStaleState):
		return "stale"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	default:
		return "error"
	}
}
