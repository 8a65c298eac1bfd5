// Package auth persists the agent's authenticated session in the
// durable key-value map and answers permission checks.
package auth

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/fieldcrm/callgate/internal/models"
	"github.com/fieldcrm/callgate/internal/store"
)

// Durable map keys owned by the auth service.
const (
	keyAuthToken       = "user_token"
	keyAuthUser        = "auth_user"
	keyRememberedEmail = "remembered_email"
)

// Backend is the slice of the CRM gateway the auth service needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
	Logout(ctx context.Context) error
}

// Service manages the local auth session. Reads fail open: an unreadable
// session is treated as logged out.
type Service struct {
	kv      store.KV
	backend Backend
}

// NewService creates an auth service over the given KV.
func NewService(kv store.KV) *Service {
	return &Service{kv: kv}
}

// SetBackend wires the CRM gateway after construction (the gateway
// itself needs this service as its token source).
func (s *Service) SetBackend(b Backend) {
	s.backend = b
}

// Token returns the stored bearer token, or "" when logged out.
func (s *Service) Token() string {
	token, ok, err := s.kv.Get(keyAuthToken)
	if err != nil {
		slog.Error("auth: failed to read token", "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return token
}

// User returns the stored session user, or nil when logged out or the
// record is unreadable.
func (s *Service) User() *models.AuthUser {
	raw, ok, err := s.kv.Get(keyAuthUser)
	if err != nil {
		slog.Error("auth: failed to read user", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var user models.AuthUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		slog.Warn("auth: corrupt stored user, treating as logged out", "error", err)
		return nil
	}
	return &user
}

// Login authenticates against the backend and persists the session.
func (s *Service) Login(ctx context.Context, email, password string) error {
	resp, err := s.backend.Login(ctx, email, password)
	if err != nil {
		slog.Error("auth: login failed", "error", err)
		return err
	}
	if err := s.SaveSession(resp.AccessToken, resp.User); err != nil {
		return err
	}
	slog.Info("auth: login succeeded", "user", resp.User.Email)
	return nil
}

// SaveSession persists the token and the flattened user.
func (s *Service) SaveSession(token string, user models.BackendUser) error {
	if err := s.kv.Set(keyAuthToken, token); err != nil {
		slog.Error("auth: failed to save token", "error", err)
		return err
	}

	flattened := FlattenUser(user)
	payload, err := json.Marshal(flattened)
	if err != nil {
		slog.Error("auth: failed to marshal user", "error", err)
		return err
	}
	if err := s.kv.Set(keyAuthUser, string(payload)); err != nil {
		slog.Error("auth: failed to save user", "error", err)
		return err
	}
	return nil
}

// Logout invalidates the session server-side (best effort) and always
// clears local state.
func (s *Service) Logout(ctx context.Context) {
	if s.backend != nil {
		if err := s.backend.Logout(ctx); err != nil {
			slog.Warn("auth: backend logout failed, clearing locally anyway", "error", err)
		}
	}
	s.ClearSession()
}

// ClearSession removes the stored token and user.
func (s *Service) ClearSession() {
	if err := s.kv.Delete(keyAuthToken); err != nil {
		slog.Error("auth: failed to remove token", "error", err)
	}
	if err := s.kv.Delete(keyAuthUser); err != nil {
		slog.Error("auth: failed to remove user", "error", err)
	}
	slog.Debug("auth: session cleared")
}

// HasPermission reports whether the session user may perform
// module:action. Admin roles bypass explicit grants.
func (s *Service) HasPermission(module, action string) bool {
	user := s.User()
	if user == nil {
		return false
	}
	if user.Role == "admin" || user.Role == "super_admin" {
		return true
	}
	required := module + ":" + action
	for _, p := range user.Permissions {
		if p == required {
			return true
		}
	}
	return false
}

// RememberedEmail returns the last remembered login email.
func (s *Service) RememberedEmail() string {
	email, _, err := s.kv.Get(keyRememberedEmail)
	if err != nil {
		slog.Error("auth: failed to read remembered email", "error", err)
		return ""
	}
	return email
}

// RememberEmail stores (or clears, when empty) the login email.
func (s *Service) RememberEmail(email string) {
	var err error
	if email == "" {
		err = s.kv.Delete(keyRememberedEmail)
	} else {
		err = s.kv.Set(keyRememberedEmail, email)
	}
	if err != nil {
		slog.Error("auth: failed to update remembered email", "error", err)
	}
}

// FlattenUser maps the backend user shape to the locally stored session
// user, flattening permissions to "module:action" strings.
func FlattenUser(user models.BackendUser) models.AuthUser {
	flattened := models.AuthUser{
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         user.Role.Name,
		RoleRealName: user.Role.RoleRealName,
		IsSuperAdmin: user.Role.IsSuperAdmin,
	}
	if flattened.Role == "" {
		flattened.Role = "user"
	}
	for _, p := range user.Permissions {
		for _, action := range p.Actions {
			flattened.Permissions = append(flattened.Permissions, p.Module+":"+action)
		}
	}
	return flattened
}
