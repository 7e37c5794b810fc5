package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/auth"
	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	"github.com/itaybe6/barber-English-sub002/services/auth-service/internal/accounts"
	"github.com/itaybe6/barber-English-sub002/services/auth-service/internal/audit"
)

type Accounts interface {
	Login(ctx context.Context, email, password string) (accounts.Session, error)
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, token, newPassword string) error
}

type AuditLog interface {
	ListRecent(ctx context.Context, businessID string, limit int) ([]audit.Event, error)
}

type AuthHandler struct {
	accounts Accounts
	audit    AuditLog
	logger   *slog.Logger
}

func NewAuthHandler(acc Accounts, auditLog AuditLog, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: acc, audit: auditLog, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
	UserID      string `json:"user_id"`
	BusinessID  string `json:"business_id"`
	Role        string `json:"role"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type meResponse struct {
	UserID     string `json:"user_id"`
	BusinessID string `json:"business_id"`
	Role       string `json:"role"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	sess, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("login failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: sess.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   sess.ExpiresAt.UTC().Format(time.RFC3339),
		UserID:      sess.UserID,
		BusinessID:  sess.BusinessID,
		Role:        sess.Role,
	})
}

// RequestReset answers 202 whether or not the email is registered.
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	err := h.accounts.RequestReset(r.Context(), req.Email)
	if errors.Is(err, accounts.ErrInvalidEmail) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("password reset request failed", "err", err)
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the email is registered, a reset link is on its way",
	})
}

func (h *AuthHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	err := h.accounts.ConfirmReset(r.Context(), req.Token, req.NewPassword)
	switch {
	case errors.Is(err, accounts.ErrWeakPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, accounts.ErrInvalidResetToken):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		h.logger.Error("password reset confirm failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Me echoes the verified token claims. Mounted behind auth.RequireStaff.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meResponse{
		UserID:     claims.UserID(),
		BusinessID: claims.BusinessID,
		Role:       claims.Role,
	})
}

// Audit lists recent sign-in events of the caller's business. Admins only.
func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	events, err := h.audit.ListRecent(r.Context(), httpx.BusinessIDFromContext(r.Context()), limit)
	if err != nil {
		h.logger.Error("list audit events failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
