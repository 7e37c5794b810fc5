package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/itaybe6/barber-English-sub002/libs/db"
)

var ErrNotFound = errors.New("not found")

// User is a staff or admin account of one salon.
type User struct {
	ID           string
	BusinessID   string
	Email        string
	PasswordHash string
	Role         string
}

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const selectUser = `SELECT id, business_id, email, password_hash, role FROM users `

// GetByEmail matches case-insensitively, like users_email_uidx.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.one(ctx, selectUser+`WHERE lower(email) = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	return r.one(ctx, selectUser+`WHERE id = $1`, id)
}

func (r *UserRepository) one(ctx context.Context, query string, arg any) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.BusinessID, &u.Email, &u.PasswordHash, &u.Role)
	switch {
	case db.IsNotFound(err):
		return User{}, ErrNotFound
	case err != nil:
		return User{}, err
	}
	return u, nil
}
