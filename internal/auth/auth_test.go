package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/fieldcrm/callgate/internal/models"
	"github.com/fieldcrm/callgate/internal/store"
)

// fakeBackend records auth calls and returns canned responses.
type fakeBackend struct {
	loginResp *models.LoginResponse
	loginErr  error
	logoutErr error
	logouts   int
}

func (b *fakeBackend) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	if b.loginErr != nil {
		return nil, b.loginErr
	}
	return b.loginResp, nil
}

func (b *fakeBackend) Logout(ctx context.Context) error {
	b.logouts++
	return b.logoutErr
}

func testBackendUser() models.BackendUser {
	return models.BackendUser{
		ID:    "user-9",
		Name:  "Agent",
		Email: "agent@fieldcrm.example",
		Role:  models.BackendRole{Name: "user"},
		Permissions: []models.Permission{
			{Module: "leads", Actions: []string{"read", "update"}},
			{Module: "call-logs", Actions: []string{"create"}},
		},
	}
}

func TestLoginPersistsSession(t *testing.T) {
	kv := store.NewInMemoryStore()
	svc := NewService(kv)
	svc.SetBackend(&fakeBackend{loginResp: &models.LoginResponse{
		AccessToken: "tok-123",
		User:        testBackendUser(),
	}})

	if err := svc.Login(context.Background(), "agent@fieldcrm.example", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if got := svc.Token(); got != "tok-123" {
		t.Errorf("expected stored token, got %q", got)
	}
	user := svc.User()
	if user == nil {
		t.Fatal("expected stored user")
	}
	if user.UserID != "user-9" || user.Role != "user" {
		t.Errorf("user mismatch: %+v", user)
	}

	// Session survives service recreation over the same map.
	if got := NewService(kv).Token(); got != "tok-123" {
		t.Errorf("expected token to survive recreation, got %q", got)
	}
}

func TestLoginFailureLeavesNoSession(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	svc.SetBackend(&fakeBackend{loginErr: errors.New("invalid credentials")})

	if err := svc.Login(context.Background(), "agent@fieldcrm.example", "wrong"); err == nil {
		t.Fatal("expected login error")
	}
	if svc.Token() != "" || svc.User() != nil {
		t.Error("failed login must not persist a session")
	}
}

func TestLogoutClearsLocalStateDespiteBackendFailure(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	backend := &fakeBackend{
		loginResp: &models.LoginResponse{AccessToken: "tok", User: testBackendUser()},
		logoutErr: errors.New("backend down"),
	}
	svc.SetBackend(backend)

	if err := svc.Login(context.Background(), "a", "b"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	svc.Logout(context.Background())

	if backend.logouts != 1 {
		t.Errorf("expected one backend logout attempt, got %d", backend.logouts)
	}
	if svc.Token() != "" || svc.User() != nil {
		t.Error("local session must be cleared even when backend logout fails")
	}
}

func TestUserFailsOpenOnCorruptRecord(t *testing.T) {
	kv := store.NewInMemoryStore()
	if err := kv.Set(keyAuthUser, "{broken"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if got := NewService(kv).User(); got != nil {
		t.Errorf("expected nil for corrupt user record, got %+v", got)
	}
}

func TestHasPermission(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	svc.SetBackend(&fakeBackend{loginResp: &models.LoginResponse{AccessToken: "t", User: testBackendUser()}})
	if err := svc.Login(context.Background(), "a", "b"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	tests := []struct {
		module, action string
		expected       bool
	}{
		{"leads", "read", true},
		{"leads", "update", true},
		{"leads", "delete", false},
		{"call-logs", "create", true},
		{"users", "read", false},
	}
	for _, tt := range tests {
		if got := svc.HasPermission(tt.module, tt.action); got != tt.expected {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.module, tt.action, got, tt.expected)
		}
	}
}

func TestHasPermissionAdminBypass(t *testing.T) {
	user := testBackendUser()
	user.Role.Name = "admin"
	user.Permissions = nil

	svc := NewService(store.NewInMemoryStore())
	if err := svc.SaveSession("t", user); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	if !svc.HasPermission("anything", "at-all") {
		t.Error("admin role must bypass explicit grants")
	}
}

func TestHasPermissionLoggedOut(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	if svc.HasPermission("leads", "read") {
		t.Error("no permissions expected when logged out")
	}
}

func TestRememberEmail(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())

	if got := svc.RememberedEmail(); got != "" {
		t.Errorf("expected empty remembered email, got %q", got)
	}

	svc.RememberEmail("agent@fieldcrm.example")
	if got := svc.RememberedEmail(); got != "agent@fieldcrm.example" {
		t.Errorf("expected remembered email to round-trip, got %q", got)
	}

	svc.RememberEmail("")
	if got := svc.RememberedEmail(); got != "" {
		t.Errorf("expected remembered email to be cleared, got %q", got)
	}
}

func TestFlattenUser(t *testing.T) {
	user := testBackendUser()
	flattened := FlattenUser(user)

	if flattened.UserID != "user-9" || flattened.Role != "user" {
		t.Errorf("flattened identity wrong: %+v", flattened)
	}
	expected := []string{"leads:read", "leads:update", "call-logs:create"}
	if len(flattened.Permissions) != len(expected) {
		t.Fatalf("expected %d permissions, got %d", len(expected), len(flattened.Permissions))
	}
	for i, p := range expected {
		if flattened.Permissions[i] != p {
			t.Errorf("permission %d = %q, want %q", i, flattened.Permissions[i], p)
		}
	}
}

func TestFlattenUserDefaultsRole(t *testing.T) {
	user := testBackendUser()
	user.Role = models.BackendRole{}

	if got := FlattenUser(user).Role; got != "user" {
		t.Errorf("expected default role user, got %q", got)
	}
}
