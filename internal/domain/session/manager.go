package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"classbank/internal/domain/ledger"
	"classbank/internal/domain/user"
	"classbank/internal/shared/auth"
	"classbank/internal/store"
)

// currentUserKey holds the active session document. The single-slot
// layout comes from the stored schema and is kept as-is.
const currentUserKey = "currentUser"

const (
	minSignupPasswordLength = 6
	welcomeDescription      = "Welcome bonus - New student signup"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("username must be 3-20 letters or digits")
	ErrReservedUsername   = errors.New("username is reserved")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidAdminCode   = errors.New("invalid admin signup code")
	ErrTeacherRequired    = errors.New("students must pick a teacher")
	ErrInvalidRole        = errors.New("unknown role")
	ErrNoSession          = errors.New("no active session")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,20}$`)

// Session is the currentUser document: who is signed in and, for
// students, which teacher they belong to.
type Session struct {
	UserID    string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	TeacherID string    `json:"teacherId,omitempty"`
	LoginTime time.Time `json:"loginTime"`
}

// Manager handles login, signup and the persisted current session.
type Manager struct {
	store     store.Store
	users     *user.Registry
	ledgers   *ledger.Service
	adminCode string
	clock     func() time.Time
}

func NewManager(s store.Store, users *user.Registry, ledgers *ledger.Service, adminCode string) *Manager {
	return &Manager{
		store:     s,
		users:     users,
		ledgers:   ledgers,
		adminCode: adminCode,
		clock:     time.Now,
	}
}

// WithClock overrides the manager clock for tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Login authenticates a user and persists the session. The demo
// accounts are checked before the registry so they work on an empty
// store.
func (m *Manager) Login(ctx context.Context, role, username, password string) (*Session, error) {
	if role != user.RoleStudent && role != user.RoleAdmin {
		return nil, ErrInvalidRole
	}

	sess, err := m.authenticate(ctx, role, username, password)
	if err != nil {
		return nil, err
	}

	sess.LoginTime = m.clock()
	if err := m.persist(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) authenticate(ctx context.Context, role, username, password string) (*Session, error) {
	if demo, ok := user.DemoFor(role); ok && demo.Username == username {
		if subtle.ConstantTimeCompare([]byte(demo.Password), []byte(password)) != 1 {
			return nil, ErrInvalidCredentials
		}
		sess := &Session{
			UserID:   demo.ID,
			Username: demo.Username,
			Name:     demo.Name,
			Role:     demo.Role,
		}
		if role == user.RoleStudent {
			sess.TeacherID = user.DemoAdmin.ID
		}
		return sess, nil
	}

	rec, err := m.users.Get(ctx, user.ID(role, username))
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if auth.VerifyPassword(rec.Password, password) != nil {
		return nil, ErrInvalidCredentials
	}

	return &Session{
		UserID:    user.ID(role, username),
		Username:  rec.Username,
		Name:      rec.Name,
		Role:      rec.Role,
		TeacherID: rec.TeacherID,
	}, nil
}

// SignupParams carry everything the signup form collects.
type SignupParams struct {
	Role            string
	Username        string
	Password        string
	ConfirmPassword string
	AdminCode       string
	TeacherID       string
}

// Signup validates and registers a new account, seeds the student's
// ledger with the welcome bonus, and logs the new user in.
func (m *Manager) Signup(ctx context.Context, params SignupParams) (*Session, error) {
	if err := m.validateSignup(ctx, params); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	rec := user.Record{
		Username: params.Username,
		Name:     displayName(params.Username),
		Password: hash,
		Role:     params.Role,
	}
	if params.Role == user.RoleStudent {
		rec.TeacherID = params.TeacherID
	}

	id, err := m.users.Register(ctx, rec)
	if err != nil {
		return nil, err
	}

	if params.Role == user.RoleStudent {
		if _, err := m.ledgers.CreateStarter(ctx, id, welcomeDescription); err != nil {
			return nil, err
		}
	}

	sess := &Session{
		UserID:    id,
		Username:  rec.Username,
		Name:      rec.Name,
		Role:      rec.Role,
		TeacherID: rec.TeacherID,
		LoginTime: m.clock(),
	}
	if err := m.persist(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) validateSignup(ctx context.Context, params SignupParams) error {
	if params.Role != user.RoleStudent && params.Role != user.RoleAdmin {
		return ErrInvalidRole
	}
	if !usernamePattern.MatchString(params.Username) {
		return ErrInvalidUsername
	}
	lowered := strings.ToLower(params.Username)
	if lowered == user.DemoStudent.Username || lowered == user.DemoAdmin.Username {
		return ErrReservedUsername
	}
	if len(params.Password) < minSignupPasswordLength {
		return ErrPasswordTooShort
	}
	if params.Password != params.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if params.Role == user.RoleAdmin && params.AdminCode != m.adminCode {
		return ErrInvalidAdminCode
	}
	if params.Role == user.RoleStudent && params.TeacherID == "" {
		return ErrTeacherRequired
	}

	available, err := m.users.UsernameAvailable(ctx, params.Role, params.Username)
	if err != nil {
		return err
	}
	if !available {
		return user.ErrUsernameTaken
	}
	return nil
}

// Current returns the persisted session, or ErrNoSession when nobody is
// signed in.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	data, err := m.store.Get(ctx, currentUserKey)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode current session: %w", err)
	}
	return &sess, nil
}

// Logout clears the persisted session. Logging out twice is not an
// error.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.store.Delete(ctx, currentUserKey)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to clear current session: %w", err)
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.Set(ctx, currentUserKey, data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// displayName derives the account's display name from the username,
// capitalizing the first letter.
func displayName(username string) string {
	if username == "" {
		return ""
	}
	return strings.ToUpper(username[:1]) + username[1:]
}
