// Package accounts signs staff in and runs the one-time password reset flow.
package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itaybe6/barber-English-sub002/services/auth-service/internal/audit"
	"github.com/itaybe6/barber-English-sub002/services/auth-service/internal/mail"
	"github.com/itaybe6/barber-English-sub002/services/auth-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

type Users interface {
	GetByEmail(ctx context.Context, email string) (storage.User, error)
}

type ResetTokens interface {
	Issue(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	Redeem(ctx context.Context, tokenHash string, check func(storage.ResetToken) (string, error)) error
}

type Auditor interface {
	Record(ctx context.Context, businessID, eventType, actorID string, metadata map[string]any) error
}

type TokenSigner interface {
	Sign(userID, businessID, role string) (string, time.Time, error)
}

type Config struct {
	// ResetURL is the page that receives ?token=.
	ResetURL          string
	ResetTTL          time.Duration
	MinPasswordLength int
	BcryptCost        int
	Now               func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ResetTTL <= 0 {
		c.ResetTTL = 30 * time.Minute
	}
	if c.MinPasswordLength <= 0 {
		c.MinPasswordLength = 8
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type Service struct {
	users  Users
	tokens ResetTokens
	mailer mail.Mailer
	signer TokenSigner
	audit  Auditor
	logger *slog.Logger
	cfg    Config
}

func NewService(users Users, tokens ResetTokens, mailer mail.Mailer, signer TokenSigner, auditor Auditor, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		mailer: mailer,
		signer: signer,
		audit:  auditor,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	UserID      string
	BusinessID  string
	Role        string
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		// Keep timing close to the found-user path.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.record(ctx, "", audit.EventLoginFailed, "", map[string]any{"reason": "unknown_email"})
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.record(ctx, user.BusinessID, audit.EventLoginFailed, user.ID, map[string]any{"reason": "bad_password"})
		return Session{}, ErrInvalidCredentials
	}
	token, exp, err := s.signer.Sign(user.ID, user.BusinessID, user.Role)
	if err != nil {
		return Session{}, err
	}
	s.record(ctx, user.BusinessID, audit.EventLoginSucceeded, user.ID, nil)
	return Session{AccessToken: token, ExpiresAt: exp, UserID: user.ID, BusinessID: user.BusinessID, Role: user.Role}, nil
}

// RequestReset mails a one-time link when the email belongs to a user.
// Unknown emails are not an error so callers cannot enumerate accounts.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	raw, err := newResetToken()
	if err != nil {
		return err
	}
	expiresAt := s.cfg.Now().Add(s.cfg.ResetTTL)
	if err := s.tokens.Issue(ctx, user.ID, HashToken(raw), expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if err := s.mailer.SendResetLink(ctx, user.Email, s.resetLink(raw), s.cfg.ResetTTL); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	s.record(ctx, user.BusinessID, audit.EventResetRequested, user.ID, nil)
	return nil
}

// ConfirmReset replaces the password of the token's owner. A token works once
// and only before it expires.
func (s *Service) ConfirmReset(ctx context.Context, rawToken, newPassword string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ErrInvalidResetToken
	}
	if utf8.RuneCountInString(newPassword) < s.cfg.MinPasswordLength {
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, s.cfg.MinPasswordLength)
	}

	var userID, businessID string
	err := s.tokens.Redeem(ctx, HashToken(rawToken), func(tok storage.ResetToken) (string, error) {
		userID, businessID = tok.UserID, tok.BusinessID
		if tok.UsedAt != nil || !s.cfg.Now().Before(tok.ExpiresAt) {
			return "", ErrInvalidResetToken
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
		if err != nil {
			return "", err
		}
		return string(hash), nil
	})
	switch {
	case errors.Is(err, storage.ErrTokenUnknown), errors.Is(err, ErrInvalidResetToken):
		s.record(ctx, businessID, audit.EventResetRejected, userID, nil)
		return ErrInvalidResetToken
	case err != nil:
		return fmt.Errorf("redeem reset token: %w", err)
	}
	s.record(ctx, businessID, audit.EventResetCompleted, userID, nil)
	return nil
}

func (s *Service) resetLink(raw string) string {
	u, err := url.Parse(s.cfg.ResetURL)
	if err != nil || s.cfg.ResetURL == "" {
		return "?token=" + url.QueryEscape(raw)
	}
	q := u.Query()
	q.Set("token", raw)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Service) record(ctx context.Context, businessID, eventType, actorID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, businessID, eventType, actorID, metadata); err != nil {
		s.logger.Error("audit record failed", "err", err, "event_type", eventType)
	}
}

// HashToken is the form a reset token is stored in.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
