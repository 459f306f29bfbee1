package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func notificationRows(n Notification) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "user_id", "appointment_id", "type", "message", "is_read", "created_at"}).
		AddRow(n.ID, n.UserID, n.AppointmentID, n.Type, n.Message, n.IsRead, n.CreatedAt)
}

func TestRepositoryInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	want := Notification{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		AppointmentID: uuid.New(),
		Type:          TypeBooked,
		Message:       "New booking request",
		CreatedAt:     time.Now(),
	}

	mock.ExpectQuery("INSERT INTO notifications").
		WithArgs(want.ID, want.UserID, want.AppointmentID, want.Type, want.Message).
		WillReturnRows(notificationRows(want))

	got, err := repo.Insert(context.Background(), &Notification{
		ID:            want.ID,
		UserID:        want.UserID,
		AppointmentID: want.AppointmentID,
		Type:          want.Type,
		Message:       want.Message,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got.ID != want.ID || got.Message != want.Message {
		t.Fatalf("unexpected row back: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryListByUserUnreadOnly(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()
	row := Notification{ID: uuid.New(), UserID: userID, AppointmentID: uuid.New(), Type: TypeConfirmed, Message: "m", CreatedAt: time.Now()}

	mock.ExpectQuery("SELECT (.+) FROM notifications WHERE user_id = \\$1 AND NOT is_read").
		WithArgs(userID, 50).
		WillReturnRows(notificationRows(row))

	got, err := repo.ListByUser(context.Background(), userID, true, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != row.ID {
		t.Fatalf("unexpected result: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryMarkReadNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, userID := uuid.New(), uuid.New()

	mock.ExpectExec(`(?s)UPDATE notifications SET is_read = TRUE.*AND NOT is_read`).
		WithArgs(id, userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id, userID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	if _, err := repo.MarkRead(context.Background(), id, userID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryMarkReadFlipsOnce(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, userID := uuid.New(), uuid.New()

	mock.ExpectExec(`(?s)UPDATE notifications SET is_read = TRUE.*AND NOT is_read`).
		WithArgs(id, userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	flipped, err := repo.MarkRead(context.Background(), id, userID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !flipped {
		t.Fatal("first mark should report a flip")
	}

	// The repeat matches nothing, but the row exists, so it is a quiet
	// success rather than an error or a second flip.
	mock.ExpectExec(`(?s)UPDATE notifications SET is_read = TRUE.*AND NOT is_read`).
		WithArgs(id, userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id, userID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	flipped, err = repo.MarkRead(context.Background(), id, userID)
	if err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	if flipped {
		t.Fatal("repeat mark must not report a flip")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryMarkAllRead(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectExec("UPDATE notifications SET is_read = TRUE WHERE user_id").
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	updated, err := repo.MarkAllRead(context.Background(), userID)
	if err != nil || updated != 4 {
		t.Fatalf("expected 4 updated, got %d err=%v", updated, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryDeleteScoped(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, userID := uuid.New(), uuid.New()

	mock.ExpectExec("DELETE FROM notifications WHERE id").
		WithArgs(id, userID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), id, userID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryCountUnread(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM notifications").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	count, err := repo.CountUnread(context.Background(), userID)
	if err != nil || count != 7 {
		t.Fatalf("expected 7, got %d err=%v", count, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
