package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"classbank/internal/store"
)

const registryKey = "registeredUsers"

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
)

// Registry manages the registeredUsers map in the store. The whole map
// is read and written as one document, matching the original storage
// layout.
type Registry struct {
	store store.Store
	clock func() time.Time
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s, clock: time.Now}
}

// WithClock overrides the registry clock; tests use it to pin createdAt.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

func (r *Registry) load(ctx context.Context) (map[string]Record, error) {
	data, err := r.store.Get(ctx, registryKey)
	if errors.Is(err, store.ErrKeyNotFound) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load registered users: %w", err)
	}

	var users map[string]Record
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to decode registered users: %w", err)
	}
	if users == nil {
		users = map[string]Record{}
	}
	return users, nil
}

func (r *Registry) save(ctx context.Context, users map[string]Record) error {
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("failed to encode registered users: %w", err)
	}
	if err := r.store.Set(ctx, registryKey, data); err != nil {
		return fmt.Errorf("failed to save registered users: %w", err)
	}
	return nil
}

// Get returns the registration record for a user id.
func (r *Registry) Get(ctx context.Context, userID string) (*Record, error) {
	users, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Register stores a new record under ID(role, username). The caller is
// responsible for validation and password hashing.
func (r *Registry) Register(ctx context.Context, rec Record) (string, error) {
	users, err := r.load(ctx)
	if err != nil {
		return "", err
	}

	id := ID(rec.Role, rec.Username)
	if _, exists := users[id]; exists {
		return "", ErrUsernameTaken
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock()
	}
	users[id] = rec

	if err := r.save(ctx, users); err != nil {
		return "", err
	}
	return id, nil
}

// SetPassword replaces the stored password hash for a registered user.
// Demo accounts are not in the registry; their credentials never change.
func (r *Registry) SetPassword(ctx context.Context, userID, passwordHash string) error {
	users, err := r.load(ctx)
	if err != nil {
		return err
	}

	rec, ok := users[userID]
	if !ok {
		return ErrNotFound
	}
	rec.Password = passwordHash
	users[userID] = rec

	return r.save(ctx, users)
}

// UsernameAvailable reports whether a username can still be registered
// for the role. The demo usernames are always reserved.
func (r *Registry) UsernameAvailable(ctx context.Context, role, username string) (bool, error) {
	if username == DemoStudent.Username || username == DemoAdmin.Username {
		return false, nil
	}
	users, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	_, exists := users[ID(role, username)]
	return !exists, nil
}

// Teachers lists every admin a student can pick at signup. The demo
// admin is always offered first.
func (r *Registry) Teachers(ctx context.Context) ([]Teacher, error) {
	users, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	teachers := []Teacher{{
		ID:       DemoAdmin.ID,
		Name:     DemoAdmin.Name,
		Username: DemoAdmin.Username,
	}}

	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := users[id]
		if rec.Role == RoleAdmin {
			teachers = append(teachers, Teacher{ID: id, Name: rec.Name, Username: rec.Username})
		}
	}
	return teachers, nil
}
