package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/model"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationColumns = `id, business_id, user_phone, title, body, type, data, is_read, read_at, created_at`

func scanNotification(row pgx.Row) (model.Notification, error) {
	var n model.Notification
	var data []byte
	if err := row.Scan(&n.ID, &n.BusinessID, &n.UserPhone, &n.Title, &n.Body, &n.Type, &data, &n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
		return model.Notification{}, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return model.Notification{}, err
		}
	}
	return n, nil
}

func (r *Repository) Insert(ctx context.Context, n model.Notification) (model.Notification, error) {
	data := n.Data
	if data == nil {
		data = map[string]string{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return model.Notification{}, err
	}
	return scanNotification(r.pool.QueryRow(ctx, `
		INSERT INTO notifications (business_id, user_phone, title, body, type, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationColumns,
		n.BusinessID, n.UserPhone, n.Title, n.Body, n.Type, raw))
}

// ListForPhone returns the newest notifications of one user first.
func (r *Repository) ListForPhone(ctx context.Context, businessID, phone string, unreadOnly bool, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE business_id = $1 AND user_phone = $2 AND (NOT $3 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $4
	`, businessID, phone, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) UnreadCount(ctx context.Context, businessID, phone string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE business_id = $1 AND user_phone = $2 AND NOT is_read
	`, businessID, phone).Scan(&n)
	return n, err
}

// MarkRead is scoped to the owner's phone so one user cannot clear another's inbox.
func (r *Repository) MarkRead(ctx context.Context, businessID, phone, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = true, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND business_id = $2 AND user_phone = $3
	`, id, businessID, phone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, businessID, phone string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = true, read_at = now()
		WHERE business_id = $1 AND user_phone = $2 AND NOT is_read
	`, businessID, phone)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
