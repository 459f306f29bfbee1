package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotificationNotFound is returned for absent or foreign rows.
var ErrNotificationNotFound = errors.New("notifications: notification not found")

// Store is the persistence surface the hub and handlers run on.
type Store interface {
	Insert(ctx context.Context, n *Notification) (*Notification, error)
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}

// DB is the pgx surface the repository needs; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists notifications in Postgres.
type Repository struct {
	db DB
}

// NewRepository creates a notification repository.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("notifications: db required")
	}
	return &Repository{db: db}
}

const columns = `id, user_id, appointment_id, type, message, is_read, created_at`

func scan(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.AppointmentID, &n.Type, &n.Message, &n.IsRead, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

// Insert appends a notification row.
func (r *Repository) Insert(ctx context.Context, n *Notification) (*Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	created, err := scan(r.db.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, appointment_id, type, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+columns,
		n.ID, n.UserID, n.AppointmentID, n.Type, n.Message))
	if err != nil {
		return nil, fmt.Errorf("notifications: insert: %w", err)
	}
	return created, nil
}

// ListByUser returns a user's notifications, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + columns + ` FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notifications: list: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("notifications: scan: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// MarkRead flips one notification to read, scoped to its recipient. Returns
// whether the row actually changed: a repeat call on an already-read row
// succeeds without flipping, so callers adjust unread counts at most once.
func (r *Repository) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2 AND NOT is_read`, id, userID)
	if err != nil {
		return false, fmt.Errorf("notifications: mark read: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	err = r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)`,
		id, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("notifications: mark read: %w", err)
	}
	if !exists {
		return false, ErrNotificationNotFound
	}
	return false, nil
}

// MarkAllRead flips every unread notification for the user, returning how
// many changed.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("notifications: mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes one notification, scoped to its recipient.
func (r *Repository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("notifications: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// CountUnread is the authoritative unread count for a user.
func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("notifications: count unread: %w", err)
	}
	return count, nil
}

var _ Store = (*Repository)(nil)
