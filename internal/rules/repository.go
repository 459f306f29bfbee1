package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrRuleNotFound is returned when a rule does not exist or is not owned by
// the requesting provider.
var ErrRuleNotFound = errors.New("rules: rule not found")

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository persists availability rules.
type Repository struct {
	db DB
}

// NewRepository creates a rule repository.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("rules: db required")
	}
	return &Repository{db: db}
}

const ruleColumns = `id, provider_id, days_of_week, start_hour, end_hour, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*AvailabilityRule, error) {
	var r AvailabilityRule
	var days []int16
	err := row.Scan(&r.ID, &r.ProviderID, &days, &r.StartHour, &r.EndHour, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	r.DaysOfWeek = make([]Weekday, len(days))
	for i, d := range days {
		r.DaysOfWeek[i] = Weekday(d)
	}
	return &r, nil
}

func daysToInt16(days []Weekday) []int16 {
	out := make([]int16, len(days))
	for i, d := range days {
		out[i] = int16(d)
	}
	return out
}

// Create inserts a new rule.
func (r *Repository) Create(ctx context.Context, rule *AvailabilityRule) (*AvailabilityRule, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO availability_rules (id, provider_id, days_of_week, start_hour, end_hour, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+ruleColumns,
		rule.ID, rule.ProviderID, daysToInt16(rule.DaysOfWeek), rule.StartHour, rule.EndHour, rule.IsActive)
	created, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("rules: insert: %w", err)
	}
	return created, nil
}

// Get loads a rule by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*AvailabilityRule, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+ruleColumns+` FROM availability_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("rules: load: %w", err)
	}
	return rule, nil
}

// ListByProvider returns all rules owned by a provider, newest first.
func (r *Repository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]AvailabilityRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+ruleColumns+` FROM availability_rules
		WHERE provider_id = $1 ORDER BY created_at DESC`, providerID)
	if err != nil {
		return nil, fmt.Errorf("rules: list: %w", err)
	}
	defer rows.Close()

	out := []AvailabilityRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("rules: scan: %w", err)
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

// UpdatePatch carries the mutable rule fields; nil means leave unchanged.
type UpdatePatch struct {
	DaysOfWeek *[]Weekday
	StartHour  *int
	EndHour    *int
	IsActive   *bool
}

// Update applies a partial update scoped to the owning provider.
func (r *Repository) Update(ctx context.Context, id, providerID uuid.UUID, patch UpdatePatch) (*AvailabilityRule, error) {
	var days any
	if patch.DaysOfWeek != nil {
		days = daysToInt16(*patch.DaysOfWeek)
	}
	row := r.db.QueryRow(ctx, `
		UPDATE availability_rules SET
			days_of_week = COALESCE($3, days_of_week),
			start_hour   = COALESCE($4, start_hour),
			end_hour     = COALESCE($5, end_hour),
			is_active    = COALESCE($6, is_active),
			updated_at   = now()
		WHERE id = $1 AND provider_id = $2
		RETURNING `+ruleColumns,
		id, providerID, days, patch.StartHour, patch.EndHour, patch.IsActive)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("rules: update: %w", err)
	}
	return rule, nil
}

// Delete removes a rule and prunes its future unbooked slots. Slots that
// ever carried an appointment are kept, in which case the rule row must
// survive for their rule_id linkage and is deactivated instead of deleted.
// Returns the number of pruned slots.
func (r *Repository) Delete(ctx context.Context, id, providerID uuid.UUID, now time.Time) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("rules: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM time_slots
		WHERE rule_id = $1 AND start_time > $2
		  AND NOT EXISTS (SELECT 1 FROM appointments a WHERE a.slot_id = time_slots.id)`,
		id, now)
	if err != nil {
		return 0, fmt.Errorf("rules: prune slots: %w", err)
	}
	pruned := tag.RowsAffected()

	var referenced bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM time_slots WHERE rule_id = $1)`, id).Scan(&referenced)
	if err != nil {
		return 0, fmt.Errorf("rules: check references: %w", err)
	}

	if referenced {
		tag, err = tx.Exec(ctx, `
			UPDATE availability_rules SET is_active = FALSE, updated_at = now()
			WHERE id = $1 AND provider_id = $2`, id, providerID)
	} else {
		tag, err = tx.Exec(ctx, `
			DELETE FROM availability_rules WHERE id = $1 AND provider_id = $2`, id, providerID)
	}
	if err != nil {
		return 0, fmt.Errorf("rules: delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrRuleNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("rules: commit delete: %w", err)
	}
	return pruned, nil
}
