package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/model"
)

type RuleRepository struct {
	pool *db.Pool
}

func NewRuleRepository(pool *db.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

const ruleColumns = `id, business_id, client_name, client_phone, day_of_week, time_of_day, service_name,
	repeat_interval_weeks, start_date, end_date, COALESCE(staff_id, ''), created_at, updated_at`

func scanRule(row rowScanner) (model.RecurringRule, error) {
	var rule model.RecurringRule
	err := row.Scan(
		&rule.ID,
		&rule.BusinessID,
		&rule.ClientName,
		&rule.ClientPhone,
		&rule.DayOfWeek,
		&rule.TimeOfDay,
		&rule.ServiceName,
		&rule.RepeatIntervalWeeks,
		&rule.StartDate,
		&rule.EndDate,
		&rule.StaffID,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	return rule, err
}

// FindBySlot returns the rule occupying the weekly slot, ignoring excludeID.
// An empty staffID matches a rule for any staff member.
func (r *RuleRepository) FindBySlot(ctx context.Context, businessID string, dayOfWeek int, timeOfDay, staffID, excludeID string) (model.RecurringRule, bool, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM recurring_appointments
		WHERE business_id = $1
			AND day_of_week = $2
			AND time_of_day = $3
			AND ($4 = '' OR COALESCE(staff_id, '') = $4)
			AND ($5 = '' OR id::text <> $5)
		LIMIT 1
	`, businessID, dayOfWeek, timeOfDay, staffID, excludeID))
	if db.IsNotFound(err) {
		return model.RecurringRule{}, false, nil
	}
	if err != nil {
		return model.RecurringRule{}, false, err
	}
	return rule, true, nil
}

// lockSlot serializes writers of one weekly slot for the rest of tx. A rule
// without staff conflicts with every rule at its day and time, which the
// unique index cannot express, so that case is checked under the lock.
func lockSlot(ctx context.Context, tx pgx.Tx, rule model.RecurringRule) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		"recurring:"+rule.BusinessID+":"+strconv.Itoa(rule.DayOfWeek)+":"+rule.TimeOfDay); err != nil {
		return err
	}
	if rule.StaffID != "" {
		return nil
	}
	var taken bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM recurring_appointments
			WHERE business_id = $1
				AND day_of_week = $2
				AND time_of_day = $3
				AND ($4 = '' OR id::text <> $4)
		)
	`, rule.BusinessID, rule.DayOfWeek, rule.TimeOfDay, rule.ID).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return ErrConflict
	}
	return nil
}

func (r *RuleRepository) Insert(ctx context.Context, rule model.RecurringRule) (model.RecurringRule, error) {
	var created model.RecurringRule
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		rule.ID = ""
		if err := lockSlot(ctx, tx, rule); err != nil {
			return err
		}
		var err error
		created, err = scanRule(tx.QueryRow(ctx, `
			INSERT INTO recurring_appointments
				(business_id, client_name, client_phone, day_of_week, time_of_day, service_name,
				 repeat_interval_weeks, start_date, end_date, staff_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
			RETURNING `+ruleColumns,
			rule.BusinessID, rule.ClientName, rule.ClientPhone, rule.DayOfWeek, rule.TimeOfDay, rule.ServiceName,
			rule.RepeatIntervalWeeks, rule.StartDate, rule.EndDate, rule.StaffID))
		return err
	})
	return created, mapErr(err)
}

func (r *RuleRepository) Update(ctx context.Context, rule model.RecurringRule) (model.RecurringRule, error) {
	var updated model.RecurringRule
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockSlot(ctx, tx, rule); err != nil {
			return err
		}
		var err error
		updated, err = scanRule(tx.QueryRow(ctx, `
			UPDATE recurring_appointments
			SET client_name = $3,
				client_phone = $4,
				day_of_week = $5,
				time_of_day = $6,
				service_name = $7,
				repeat_interval_weeks = $8,
				start_date = $9,
				end_date = $10,
				staff_id = NULLIF($11, ''),
				updated_at = now()
			WHERE id = $1 AND business_id = $2
			RETURNING `+ruleColumns,
			rule.ID, rule.BusinessID, rule.ClientName, rule.ClientPhone, rule.DayOfWeek, rule.TimeOfDay, rule.ServiceName,
			rule.RepeatIntervalWeeks, rule.StartDate, rule.EndDate, rule.StaffID))
		return err
	})
	return updated, mapErr(err)
}

func (r *RuleRepository) Get(ctx context.Context, businessID, id string) (model.RecurringRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM recurring_appointments
		WHERE id = $1 AND business_id = $2
	`, id, businessID))
	return rule, mapErr(err)
}

func (r *RuleRepository) Delete(ctx context.Context, businessID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM recurring_appointments
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

func (r *RuleRepository) ListByBusiness(ctx context.Context, businessID string) ([]model.RecurringRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM recurring_appointments
		WHERE business_id = $1
		ORDER BY day_of_week, time_of_day, created_at
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.RecurringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListActivePage pages through rules of every business whose end date has
// not passed, ordered by id, for the seeding worker.
func (r *RuleRepository) ListActivePage(ctx context.Context, afterID string, limit int, today time.Time) ([]model.RecurringRule, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM recurring_appointments
		WHERE ($1 = '' OR id::text > $1)
			AND (end_date IS NULL OR end_date >= $3)
		ORDER BY id::text
		LIMIT $2
	`, afterID, limit, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.RecurringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
