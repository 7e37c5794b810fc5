package storage

import (
	"context"

	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/model"
)

// UpsertToken moves a device token to the phone that registered it last.
func (r *Repository) UpsertToken(ctx context.Context, t model.PushToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO push_tokens (business_id, user_phone, token, platform)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id, token)
		DO UPDATE SET user_phone = EXCLUDED.user_phone, platform = EXCLUDED.platform, updated_at = now()
	`, t.BusinessID, t.UserPhone, t.Token, t.Platform)
	return err
}

func (r *Repository) DeleteTokens(ctx context.Context, businessID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		DELETE FROM push_tokens WHERE business_id = $1 AND token = ANY($2)
	`, businessID, tokens)
	return err
}

func (r *Repository) TokensFor(ctx context.Context, businessID, phone string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT token FROM push_tokens
		WHERE business_id = $1 AND user_phone = $2
		ORDER BY updated_at DESC
	`, businessID, phone)
	if err != nil {
		return nil, err
	}
	return collectStrings(rows)
}

// StaffPhone resolves a staff member id to the phone their app is signed in with.
func (r *Repository) StaffPhone(ctx context.Context, businessID, staffID string) (string, bool, error) {
	var phone string
	err := r.pool.QueryRow(ctx, `
		SELECT phone FROM staff_members
		WHERE business_id = $1 AND id::text = $2 AND phone <> ''
	`, businessID, staffID).Scan(&phone)
	if db.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return phone, true, nil
}

func (r *Repository) AdminPhones(ctx context.Context, businessID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT phone FROM staff_members
		WHERE business_id = $1 AND is_admin AND phone <> ''
	`, businessID)
	if err != nil {
		return nil, err
	}
	return collectStrings(rows)
}

type stringRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

func collectStrings(rows stringRows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
