package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var ruleCols = []string{"id", "provider_id", "days_of_week", "start_hour", "end_hour", "is_active", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func ruleRow(id, providerID uuid.UUID) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(ruleCols).
		AddRow(id, providerID, []int16{1, 3}, 9, 17, true, now, now)
}

func TestRepositoryCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, providerID := uuid.New(), uuid.New()

	mock.ExpectQuery("INSERT INTO availability_rules").
		WithArgs(id, providerID, []int16{1, 3}, 9, 17, true).
		WillReturnRows(ruleRow(id, providerID))

	created, err := repo.Create(context.Background(), &AvailabilityRule{
		ID:         id,
		ProviderID: providerID,
		DaysOfWeek: []Weekday{Monday, Wednesday},
		StartHour:  9,
		EndHour:    17,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != id || len(created.DaysOfWeek) != 2 || created.DaysOfWeek[1] != Wednesday {
		t.Fatalf("unexpected rule back: %+v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM availability_rules WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(ruleCols))

	_, err := repo.Get(context.Background(), id)
	if !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryUpdateScopedToProvider(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, providerID := uuid.New(), uuid.New()
	start := 10

	mock.ExpectQuery("UPDATE availability_rules SET").
		WithArgs(id, providerID, nil, pgxmock.AnyArg(), (*int)(nil), (*bool)(nil)).
		WillReturnRows(pgxmock.NewRows(ruleCols))

	_, err := repo.Update(context.Background(), id, providerID, UpdatePatch{StartHour: &start})
	if !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound for foreign rule, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryDeleteHardDeletesUnreferencedRule(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, providerID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM time_slots").
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("DELETE", 6))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("DELETE FROM availability_rules").
		WithArgs(id, providerID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	pruned, err := repo.Delete(context.Background(), id, providerID, now)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if pruned != 6 {
		t.Fatalf("expected 6 pruned slots, got %d", pruned)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryDeleteDeactivatesReferencedRule(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, providerID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM time_slots").
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("UPDATE availability_rules SET is_active = FALSE").
		WithArgs(id, providerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	pruned, err := repo.Delete(context.Background(), id, providerID, now)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if pruned != 0 {
		t.Fatalf("expected 0 pruned slots, got %d", pruned)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryDeleteForeignRule(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, providerID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM time_slots").
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("DELETE FROM availability_rules").
		WithArgs(id, providerID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	_, err := repo.Delete(context.Background(), id, providerID, now)
	if !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
