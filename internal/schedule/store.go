package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Slot store errors.
var (
	ErrSlotNotFound = errors.New("schedule: slot not found")
	ErrSlotOverlap  = errors.New("schedule: slot overlaps an existing slot")
)

// TimeSlot is a materialized bookable interval. IsAvailable is computed
// from appointment existence on read, never stored.
type TimeSlot struct {
	ID          uuid.UUID  `json:"id"`
	ProviderID  uuid.UUID  `json:"providerId"`
	RuleID      *uuid.UUID `json:"ruleId,omitempty"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	Retired     bool       `json:"retired"`
	IsAvailable bool       `json:"isAvailable"`
}

// DB is the pgx surface the store needs; pgxmock satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists time slots.
type Store struct {
	db DB
}

// NewStore creates a slot store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("schedule: db required")
	}
	return &Store{db: db}
}

// isExclusionViolation reports whether err is the ex_time_slots_no_overlap
// constraint firing, which happens when two writers race the NOT EXISTS
// guard with overlapping intervals.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

// Materialize bulk-inserts candidate slots, skipping any interval that
// overlaps a live slot for the provider. The same guard as CreateManual, so
// expansions from different rules cannot interleave overlapping slots.
// Returns the number actually created; re-running an expansion over the
// same range reports zero because every candidate overlaps itself.
func (s *Store) Materialize(ctx context.Context, candidates []CandidateSlot) (int64, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("schedule: begin materialize: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var created int64
	for _, c := range candidates {
		tag, err := tx.Exec(ctx, `
			INSERT INTO time_slots (id, provider_id, rule_id, start_time, end_time)
			SELECT $1, $2, $3, $4, $5
			WHERE NOT EXISTS (
				SELECT 1 FROM time_slots
				WHERE provider_id = $2 AND NOT retired
				  AND start_time < $5 AND end_time > $4
			)
			ON CONFLICT (provider_id, start_time) DO NOTHING`,
			uuid.New(), c.ProviderID, c.RuleID, c.Start, c.End)
		if err != nil {
			if isExclusionViolation(err) {
				return 0, ErrSlotOverlap
			}
			return 0, fmt.Errorf("schedule: insert slot: %w", err)
		}
		created += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("schedule: commit materialize: %w", err)
	}
	return created, nil
}

const slotSelect = `
	SELECT ts.id, ts.provider_id, ts.rule_id, ts.start_time, ts.end_time, ts.retired,
	       NOT ts.retired AND NOT EXISTS (
	           SELECT 1 FROM appointments a
	           WHERE a.slot_id = ts.id AND a.status <> 'CANCELLED'
	       ) AS is_available
	FROM time_slots ts`

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var t TimeSlot
	err := row.Scan(&t.ID, &t.ProviderID, &t.RuleID, &t.StartTime, &t.EndTime, &t.Retired, &t.IsAvailable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Get loads one slot with its computed availability.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	slot, err := scanSlot(s.db.QueryRow(ctx, slotSelect+` WHERE ts.id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("schedule: load slot: %w", err)
	}
	return slot, nil
}

// ListByProvider returns a provider's slots ordered by start time.
func (s *Store) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]TimeSlot, error) {
	rows, err := s.db.Query(ctx, slotSelect+`
		WHERE ts.provider_id = $1 ORDER BY ts.start_time`, providerID)
	if err != nil {
		return nil, fmt.Errorf("schedule: list slots: %w", err)
	}
	defer rows.Close()

	out := []TimeSlot{}
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("schedule: scan slot: %w", err)
		}
		out = append(out, *slot)
	}
	return out, rows.Err()
}

// CreateManual inserts a single provider-created slot (no rule linkage).
// The insert itself refuses any interval overlapping an existing live slot
// for the provider, keeping the non-overlap invariant a creation-time check.
func (s *Store) CreateManual(ctx context.Context, providerID uuid.UUID, start, end time.Time) (*TimeSlot, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("schedule: start must be before end")
	}

	id := uuid.New()
	tag, err := s.db.Exec(ctx, `
		INSERT INTO time_slots (id, provider_id, rule_id, start_time, end_time)
		SELECT $1, $2, NULL, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM time_slots
			WHERE provider_id = $2 AND NOT retired
			  AND start_time < $4 AND end_time > $3
		)`, id, providerID, start, end)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrSlotOverlap
		}
		if isExclusionViolation(err) {
			return nil, ErrSlotOverlap
		}
		return nil, fmt.Errorf("schedule: create slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrSlotOverlap
	}

	return s.Get(ctx, id)
}

// Delete removes a never-booked slot outright, or soft-retires it when any
// appointment (active or cancelled) references it. Reports whether the slot
// was retired rather than deleted.
func (s *Store) Delete(ctx context.Context, id, providerID uuid.UUID) (retired bool, err error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM time_slots
		WHERE id = $1 AND provider_id = $2
		  AND NOT EXISTS (SELECT 1 FROM appointments a WHERE a.slot_id = time_slots.id)`,
		id, providerID)
	if err != nil {
		return false, fmt.Errorf("schedule: delete slot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}

	tag, err = s.db.Exec(ctx, `
		UPDATE time_slots SET retired = TRUE
		WHERE id = $1 AND provider_id = $2`, id, providerID)
	if err != nil {
		return false, fmt.Errorf("schedule: retire slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, ErrSlotNotFound
	}
	return true, nil
}
