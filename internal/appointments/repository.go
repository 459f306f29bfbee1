package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the persistence surface the state machine runs on. The
// in-memory implementation backs the service tests.
type Repository interface {
	Reserve(ctx context.Context, slotID, guestID, patientID uuid.UUID, reason string, now time.Time) (*Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next Status, cancelReason *string) (*Appointment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Appointment, error)
}

// DB is the pgx surface the repository needs; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgRepository persists appointments in Postgres.
type PgRepository struct {
	db DB
}

// NewPgRepository creates the Postgres-backed repository.
func NewPgRepository(db DB) *PgRepository {
	if db == nil {
		panic("appointments: db required")
	}
	return &PgRepository{db: db}
}

const apptColumns = `a.id, a.slot_id, a.provider_id, a.guest_id, a.patient_id, a.status,
	a.reason, a.cancel_reason, ts.start_time, a.created_at, a.updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.SlotID, &a.ProviderID, &a.GuestID, &a.PatientID, &a.Status,
		&a.Reason, &a.CancelReason, &a.SlotStart, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Reserve atomically binds a slot to a new PENDING appointment. The partial
// unique index on active slot_id is the serialization point: of two
// concurrent callers exactly one insert lands, the other sees a unique
// violation and gets ErrSlotUnavailable.
func (r *PgRepository) Reserve(ctx context.Context, slotID, guestID, patientID uuid.UUID, reason string, now time.Time) (*Appointment, error) {
	var providerID uuid.UUID
	var start time.Time
	var retired bool
	err := r.db.QueryRow(ctx, `
		SELECT provider_id, start_time, retired FROM time_slots WHERE id = $1`, slotID).
		Scan(&providerID, &start, &retired)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("appointments: load slot: %w", err)
	}
	if retired {
		return nil, ErrSlotUnavailable
	}
	if !start.After(now) {
		return nil, ErrSlotInPast
	}

	id := uuid.New()
	_, err = r.db.Exec(ctx, `
		INSERT INTO appointments (id, slot_id, provider_id, guest_id, patient_id, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, slotID, providerID, guestID, patientID, StatusPending, reason)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("appointments: insert: %w", err)
	}

	return r.Get(ctx, id)
}

// Get loads an appointment joined with its slot start.
func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := scanAppointment(r.db.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments a JOIN time_slots ts ON ts.id = a.slot_id
		WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("appointments: load: %w", err)
	}
	return appt, nil
}

// UpdateStatus applies a transition guarded by the expected current status.
// Zero rows means someone else moved the appointment first (StaleState) or
// it never existed (NotFound); the follow-up lookup tells the two apart.
func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next Status, cancelReason *string) (*Appointment, error) {
	appt, err := scanAppointment(r.db.QueryRow(ctx, `
		WITH updated AS (
			UPDATE appointments SET status = $3, cancel_reason = COALESCE($4, cancel_reason), updated_at = now()
			WHERE id = $1 AND status = $2
			RETURNING *
		)
		SELECT `+apptColumns+`
		FROM updated a JOIN time_slots ts ON ts.id = a.slot_id`,
		id, expected, next, cancelReason))
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("appointments: transition: %w", err)
	}

	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStaleState
}

// ListByUser returns appointments where the user is the guest or provider,
// newest slot first.
func (r *PgRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments a JOIN time_slots ts ON ts.id = a.slot_id
		WHERE a.guest_id = $1 OR a.provider_id = $1
		ORDER BY ts.start_time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	out := []Appointment{}
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

var _ Repository = (*PgRepository)(nil)
