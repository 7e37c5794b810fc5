package storage

import (
	"context"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type WaitlistRepository struct {
	pool *db.Pool
}

func NewWaitlistRepository(pool *db.Pool) *WaitlistRepository {
	return &WaitlistRepository{pool: pool}
}

const waitlistColumns = `id, business_id, client_name, client_phone, service_name, requested_date, time_period,
	COALESCE(staff_id, ''), status, created_at, updated_at`

func scanEntry(row rowScanner) (model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	var period, status string
	err := row.Scan(
		&e.ID,
		&e.BusinessID,
		&e.ClientName,
		&e.ClientPhone,
		&e.ServiceName,
		&e.RequestedDate,
		&period,
		&e.StaffID,
		&status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	e.TimePeriod = model.TimePeriod(period)
	e.Status = model.WaitlistStatus(status)
	return e, err
}

func collectEntries(rows pgx.Rows) ([]model.WaitlistEntry, error) {
	defer rows.Close()
	var out []model.WaitlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *WaitlistRepository) FindWaiting(ctx context.Context, businessID, phone string, date time.Time) (model.WaitlistEntry, bool, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE business_id = $1 AND client_phone = $2 AND requested_date = $3 AND status = 'waiting'
		LIMIT 1
	`, businessID, phone, date))
	if db.IsNotFound(err) {
		return model.WaitlistEntry{}, false, nil
	}
	if err != nil {
		return model.WaitlistEntry{}, false, err
	}
	return e, true, nil
}

func (r *WaitlistRepository) Insert(ctx context.Context, e model.WaitlistEntry) (model.WaitlistEntry, error) {
	created, err := scanEntry(r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries
			(business_id, client_name, client_phone, service_name, requested_date, time_period, staff_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), 'waiting')
		RETURNING `+waitlistColumns,
		e.BusinessID, e.ClientName, e.ClientPhone, e.ServiceName, e.RequestedDate, string(e.TimePeriod), e.StaffID))
	return created, mapErr(err)
}

type WaitlistFilter struct {
	Date   *time.Time
	Status model.WaitlistStatus
	Phone  string
}

func (r *WaitlistRepository) List(ctx context.Context, businessID string, f WaitlistFilter) ([]model.WaitlistEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE business_id = $1
			AND ($2::date IS NULL OR requested_date = $2)
			AND ($3 = '' OR status = $3)
			AND ($4 = '' OR client_phone = $4)
		ORDER BY requested_date, created_at
	`, businessID, f.Date, string(f.Status), f.Phone)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// ListWaitingForDate returns the queue for one day, oldest first.
func (r *WaitlistRepository) ListWaitingForDate(ctx context.Context, businessID string, date time.Time) ([]model.WaitlistEntry, error) {
	return r.List(ctx, businessID, WaitlistFilter{Date: &date, Status: model.WaitlistWaiting})
}

func (r *WaitlistRepository) UpdateStatus(ctx context.Context, businessID, id string, status model.WaitlistStatus) (model.WaitlistEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $3, updated_at = now()
		WHERE id = $1 AND business_id = $2
		RETURNING `+waitlistColumns,
		id, businessID, string(status)))
	return e, mapErr(err)
}

// MarkContacted moves still-waiting entries to contacted and returns the ids it changed.
func (r *WaitlistRepository) MarkContacted(ctx context.Context, businessID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		UPDATE waitlist_entries
		SET status = 'contacted', updated_at = now()
		WHERE business_id = $1 AND id::text = ANY($2) AND status = 'waiting'
		RETURNING id
	`, businessID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var changed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		changed = append(changed, id)
	}
	return changed, rows.Err()
}

func (r *WaitlistRepository) Delete(ctx context.Context, businessID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM waitlist_entries
		WHERE id = $1 AND business_id = $2
	`, id, businessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
