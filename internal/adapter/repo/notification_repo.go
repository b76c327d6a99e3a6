package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// NotificationRepo is the durable outbox of customer notifications.
type NotificationRepo struct{ q dbtx }

func (r *NotificationRepo) Enqueue(ctx context.Context, items ...domain.NotificationItem) error {
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if it.Status == "" {
			it.Status = domain.NotificationPending
		}
		data, err := encodeMap(it.Data)
		if err != nil {
			return err
		}
		now := it.CreatedAt
		if now.IsZero() {
			now = time.Now()
		}
		if _, err := r.q.ExecContext(ctx, `
INSERT INTO notification_queue (id,recipient,template,data,status,scheduled_at,attempts,last_error,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
			it.ID, it.Recipient, it.Template, data, string(it.Status), it.ScheduledAt.UTC(),
			it.Attempts, it.LastError, now.UTC(), now.UTC()); err != nil {
			return err
		}
	}
	return nil
}

func (r *NotificationRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.NotificationItem, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT id,recipient,template,data,status,scheduled_at,attempts,last_error,created_at,updated_at
FROM notification_queue
WHERE status = ? AND scheduled_at <= ?
ORDER BY scheduled_at, id
LIMIT ?`, string(domain.NotificationPending), now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NotificationItem
	for rows.Next() {
		it, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *NotificationRepo) Get(ctx context.Context, id string) (*domain.NotificationItem, error) {
	row := r.q.QueryRowContext(ctx, `
SELECT id,recipient,template,data,status,scheduled_at,attempts,last_error,created_at,updated_at
FROM notification_queue WHERE id=?`, id)
	it, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

func (r *NotificationRepo) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
UPDATE notification_queue
SET status = ?, attempts = attempts + 1, updated_at = ?
WHERE id = ? AND status = ?`,
		string(domain.NotificationProcessing), now.UTC(), id, string(domain.NotificationPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *NotificationRepo) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
UPDATE notification_queue SET status = ?, last_error = '', updated_at = ?
WHERE id = ? AND status = ?`,
		string(domain.NotificationCompleted), now.UTC(), id, string(domain.NotificationProcessing))
	return err
}

func (r *NotificationRepo) MarkFailed(ctx context.Context, id, lastErr string, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
UPDATE notification_queue SET status = ?, last_error = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(domain.NotificationFailed), lastErr, now.UTC(), id, string(domain.NotificationProcessing))
	return err
}

func (r *NotificationRepo) Reschedule(ctx context.Context, id, lastErr string, at, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
UPDATE notification_queue SET status = ?, scheduled_at = ?, last_error = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(domain.NotificationPending), at.UTC(), lastErr, now.UTC(), id, string(domain.NotificationProcessing))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(s rowScanner) (*domain.NotificationItem, error) {
	var (
		it            domain.NotificationItem
		data, lastErr sql.NullString
		status        string
	)
	if err := s.Scan(&it.ID, &it.Recipient, &it.Template, &data, &status, &it.ScheduledAt,
		&it.Attempts, &lastErr, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.Status = domain.NotificationStatus(status)
	it.LastError = lastErr.String
	var err error
	if it.Data, err = decodeMap(data.String); err != nil {
		return nil, err
	}
	return &it, nil
}

var _ usecase.NotificationQueue = (*NotificationRepo)(nil)
