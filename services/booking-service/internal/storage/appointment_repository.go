package storage

import (
	"context"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `id, business_id, slot_date, slot_time, COALESCE(staff_id, ''), is_available,
	COALESCE(client_name, ''), COALESCE(client_phone, ''), COALESCE(service_name, ''), duration_minutes,
	COALESCE(recurring_rule_id::text, ''), created_at, updated_at`

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.BusinessID,
		&a.SlotDate,
		&a.SlotTime,
		&a.StaffID,
		&a.IsAvailable,
		&a.ClientName,
		&a.ClientPhone,
		&a.ServiceName,
		&a.DurationMinutes,
		&a.RecurringRuleID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AppointmentRepository) FindSlot(ctx context.Context, key model.SlotKey) (model.Appointment, bool, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND slot_date = $2
			AND slot_time = $3
			AND COALESCE(staff_id, '') = $4
	`, key.BusinessID, key.Date, key.Time, key.StaffID))
	if db.IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

// BookedAt reports whether a taken slot exists at the key's date and time.
// An empty StaffID matches any staff member.
func (r *AppointmentRepository) BookedAt(ctx context.Context, key model.SlotKey) (bool, error) {
	var booked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE business_id = $1
				AND slot_date = $2
				AND slot_time = $3
				AND NOT is_available
				AND ($4 = '' OR COALESCE(staff_id, '') = $4)
		)
	`, key.BusinessID, key.Date, key.Time, key.StaffID).Scan(&booked)
	return booked, err
}

// InsertBooked creates a slot that is already taken. A concurrent insert for
// the same key surfaces as ErrConflict.
func (r *AppointmentRepository) InsertBooked(ctx context.Context, appt model.Appointment) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(business_id, slot_date, slot_time, staff_id, is_available, client_name, client_phone,
			 service_name, duration_minutes, recurring_rule_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), false, $5, $6, $7, $8, NULLIF($9, '')::uuid)
		RETURNING id
	`, appt.BusinessID, appt.SlotDate, appt.SlotTime, appt.StaffID, appt.ClientName, appt.ClientPhone,
		appt.ServiceName, durationOrDefault(appt.DurationMinutes), appt.RecurringRuleID).Scan(&id)
	return id, mapErr(err)
}

// Claim books an available slot. It reports false when the slot was taken
// between the read and this write.
func (r *AppointmentRepository) Claim(ctx context.Context, businessID, id string, b model.Booking) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET is_available = false,
			client_name = $3,
			client_phone = $4,
			service_name = $5,
			recurring_rule_id = NULLIF($6, '')::uuid,
			updated_at = now()
		WHERE id = $1 AND business_id = $2 AND is_available = true
	`, id, businessID, b.ClientName, b.ClientPhone, b.ServiceName, b.RecurringRuleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseRuleSlots frees future slots that were seeded for a rule.
func (r *AppointmentRepository) ReleaseRuleSlots(ctx context.Context, businessID, ruleID string, from time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET is_available = true,
			client_name = NULL,
			client_phone = NULL,
			service_name = NULL,
			recurring_rule_id = NULL,
			updated_at = now()
		WHERE business_id = $1 AND recurring_rule_id = $2::uuid AND slot_date >= $3
	`, businessID, ruleID, from)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertAvailable creates open slots, leaving existing ones untouched.
func (r *AppointmentRepository) InsertAvailable(ctx context.Context, slots []model.Appointment) (int64, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(`
			INSERT INTO appointments (business_id, slot_date, slot_time, staff_id, is_available, duration_minutes)
			VALUES ($1, $2, $3, NULLIF($4, ''), true, $5)
			ON CONFLICT DO NOTHING
		`, s.BusinessID, s.SlotDate, s.SlotTime, s.StaffID, durationOrDefault(s.DurationMinutes))
	}
	res := r.pool.SendBatch(ctx, batch)
	defer res.Close()

	var inserted int64
	for range slots {
		tag, err := res.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

type SlotFilter struct {
	Date          time.Time
	StaffID       string
	OnlyAvailable bool
}

func (r *AppointmentRepository) ListByDate(ctx context.Context, businessID string, f SlotFilter) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND slot_date = $2
			AND ($3 = '' OR COALESCE(staff_id, '') = $3)
			AND (NOT $4 OR is_available)
		ORDER BY slot_time, staff_id
	`, businessID, f.Date, f.StaffID, f.OnlyAvailable)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListBookedForClient returns upcoming booked slots of one client.
func (r *AppointmentRepository) ListBookedForClient(ctx context.Context, businessID, phone string, from time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND client_phone = $2 AND slot_date >= $3 AND NOT is_available
		ORDER BY slot_date, slot_time
	`, businessID, phone, from)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Book claims an open slot by id for a walk-in or online client.
func (r *AppointmentRepository) Book(ctx context.Context, businessID, id string, b model.Booking) (model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET is_available = false,
			client_name = $3,
			client_phone = $4,
			service_name = $5,
			updated_at = now()
		WHERE id = $1 AND business_id = $2 AND is_available = true
		RETURNING `+appointmentColumns,
		id, businessID, b.ClientName, b.ClientPhone, b.ServiceName))
	if db.IsNotFound(err) {
		if _, getErr := r.Get(ctx, businessID, id); getErr != nil {
			return model.Appointment{}, getErr
		}
		return model.Appointment{}, ErrConflict
	}
	return a, mapErr(err)
}

func (r *AppointmentRepository) Get(ctx context.Context, businessID, id string) (model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2
	`, id, businessID))
	return a, mapErr(err)
}

func (r *AppointmentRepository) getForUpdate(ctx context.Context, tx pgx.Tx, businessID, id string) (model.Appointment, error) {
	a, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, id, businessID))
	return a, mapErr(err)
}

func (r *AppointmentRepository) release(ctx context.Context, tx pgx.Tx, businessID, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET is_available = true,
			client_name = NULL,
			client_phone = NULL,
			service_name = NULL,
			recurring_rule_id = NULL,
			updated_at = now()
		WHERE id = $1 AND business_id = $2
	`, id, businessID)
	return err
}

// CancelBooked reopens a booked slot and runs within in the same
// transaction, so an outbox event written there commits with the release.
// It returns the slot as it was before the release.
func (r *AppointmentRepository) CancelBooked(ctx context.Context, businessID, id string, within func(pgx.Tx, model.Appointment) error) (model.Appointment, error) {
	var booked model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		a, err := r.getForUpdate(ctx, tx, businessID, id)
		if err != nil {
			return err
		}
		if a.IsAvailable {
			return ErrNotBooked
		}
		if err := r.release(ctx, tx, businessID, id); err != nil {
			return err
		}
		booked = a
		if within != nil {
			return within(tx, a)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return booked, nil
}

func durationOrDefault(minutes int) int {
	if minutes <= 0 {
		return 30
	}
	return minutes
}
