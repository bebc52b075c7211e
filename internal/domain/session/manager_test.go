package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"classbank/internal/domain/ledger"
	"classbank/internal/domain/user"
	"classbank/internal/store"
)

func newTestManager() (*Manager, *store.Memory) {
	mem := store.NewMemory()
	clock := func() time.Time {
		return time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	}
	users := user.NewRegistry(mem).WithClock(clock)
	ledgers := ledger.NewService(mem, 100).WithClock(clock)
	return NewManager(mem, users, ledgers, "teacher123").WithClock(clock), mem
}

func TestLogin_DemoAccounts(t *testing.T) {
	ctx := context.Background()
	m, mem := newTestManager()

	sess, err := m.Login(ctx, user.RoleStudent, "student", "demo123")
	if err != nil {
		t.Fatalf("Login(demo student) failed: %v", err)
	}
	if sess.UserID != "student1" || sess.Name != "Demo Student" {
		t.Errorf("Login() session = %+v, want student1 / Demo Student", sess)
	}
	if sess.TeacherID != "admin1" {
		t.Errorf("demo student teacher = %q, want admin1", sess.TeacherID)
	}

	if _, err := mem.Get(ctx, "currentUser"); err != nil {
		t.Errorf("session was not persisted: %v", err)
	}

	sess, err = m.Login(ctx, user.RoleAdmin, "admin", "admin123")
	if err != nil {
		t.Fatalf("Login(demo admin) failed: %v", err)
	}
	if sess.UserID != "admin1" || sess.Role != user.RoleAdmin {
		t.Errorf("Login() session = %+v, want admin1", sess)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	tests := []struct {
		name     string
		role     string
		username string
		password string
		wantErr  error
	}{
		{"wrong demo password", user.RoleStudent, "student", "wrong", ErrInvalidCredentials},
		{"unknown user", user.RoleStudent, "nobody", "secret1", ErrInvalidCredentials},
		{"role mismatch on demo", user.RoleAdmin, "student", "demo123", ErrInvalidCredentials},
		{"bad role", "superuser", "student", "demo123", ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Login(ctx, tt.role, tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignup_StudentGetsWelcomeBonus(t *testing.T) {
	ctx := context.Background()
	m, mem := newTestManager()

	sess, err := m.Signup(ctx, SignupParams{
		Role:            user.RoleStudent,
		Username:        "alice",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		TeacherID:       "admin1",
	})
	if err != nil {
		t.Fatalf("Signup() failed: %v", err)
	}
	if sess.UserID != "student_alice" || sess.Name != "Alice" {
		t.Errorf("Signup() session = %+v, want student_alice / Alice", sess)
	}

	ledgers := ledger.NewService(mem, 100)
	l, err := ledgers.Load(ctx, "student_alice")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if l.Balance != 100 || len(l.Transactions) != 1 {
		t.Fatalf("starter ledger = balance %v, %d txs; want 100, 1", l.Balance, len(l.Transactions))
	}
	if l.Transactions[0].Description != "Welcome bonus - New student signup" {
		t.Errorf("welcome description = %q", l.Transactions[0].Description)
	}

	// The new user can log back in with the same credentials.
	if _, err := m.Login(ctx, user.RoleStudent, "alice", "secret1"); err != nil {
		t.Errorf("Login() after signup failed: %v", err)
	}
	if _, err := m.Login(ctx, user.RoleStudent, "alice", "wrong00"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() wrong password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestSignup_AdminCode(t *testing.T) {
	ctx := context.Background()
	m, mem := newTestManager()

	_, err := m.Signup(ctx, SignupParams{
		Role:            user.RoleAdmin,
		Username:        "jones",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		AdminCode:       "wrong",
	})
	if !errors.Is(err, ErrInvalidAdminCode) {
		t.Fatalf("Signup() bad code error = %v, want ErrInvalidAdminCode", err)
	}

	sess, err := m.Signup(ctx, SignupParams{
		Role:            user.RoleAdmin,
		Username:        "jones",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		AdminCode:       "teacher123",
	})
	if err != nil {
		t.Fatalf("Signup() failed: %v", err)
	}
	if sess.UserID != "admin_jones" {
		t.Errorf("Signup() id = %q, want admin_jones", sess.UserID)
	}

	// Admins do not get a seeded ledger.
	if _, err := mem.Get(ctx, "userData_admin_jones"); err == nil {
		t.Error("admin signup seeded a ledger; it must not")
	}
}

func TestSignup_Validation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	base := SignupParams{
		Role:            user.RoleStudent,
		Username:        "carol",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		TeacherID:       "admin1",
	}

	tests := []struct {
		name    string
		mutate  func(p SignupParams) SignupParams
		wantErr error
	}{
		{"too short username", func(p SignupParams) SignupParams { p.Username = "ab"; return p }, ErrInvalidUsername},
		{"too long username", func(p SignupParams) SignupParams { p.Username = "abcdefghijklmnopqrstu"; return p }, ErrInvalidUsername},
		{"bad characters", func(p SignupParams) SignupParams { p.Username = "car ol"; return p }, ErrInvalidUsername},
		{"reserved student", func(p SignupParams) SignupParams { p.Username = "Student"; return p }, ErrReservedUsername},
		{"reserved admin", func(p SignupParams) SignupParams { p.Username = "admin"; return p }, ErrReservedUsername},
		{"short password", func(p SignupParams) SignupParams { p.Password = "abc"; p.ConfirmPassword = "abc"; return p }, ErrPasswordTooShort},
		{"mismatched passwords", func(p SignupParams) SignupParams { p.ConfirmPassword = "secret2"; return p }, ErrPasswordMismatch},
		{"no teacher", func(p SignupParams) SignupParams { p.TeacherID = ""; return p }, ErrTeacherRequired},
		{"bad role", func(p SignupParams) SignupParams { p.Role = "wizard"; return p }, ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Signup(ctx, tt.mutate(base))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Signup() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignup_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	params := SignupParams{
		Role:            user.RoleStudent,
		Username:        "dave",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		TeacherID:       "admin1",
	}
	if _, err := m.Signup(ctx, params); err != nil {
		t.Fatalf("Signup() failed: %v", err)
	}
	if _, err := m.Signup(ctx, params); !errors.Is(err, user.ErrUsernameTaken) {
		t.Errorf("Signup() duplicate error = %v, want ErrUsernameTaken", err)
	}
}

func TestCurrentAndLogout(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	if _, err := m.Current(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Current() with no session error = %v, want ErrNoSession", err)
	}

	m.Login(ctx, user.RoleStudent, "student", "demo123")

	sess, err := m.Current(ctx)
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if sess.UserID != "student1" {
		t.Errorf("Current() = %+v, want student1", sess)
	}

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}
	if _, err := m.Current(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Current() after logout error = %v, want ErrNoSession", err)
	}

	// Logging out again stays quiet.
	if err := m.Logout(ctx); err != nil {
		t.Errorf("second Logout() error = %v, want nil", err)
	}
}
