package store

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when no value exists for the key.
var ErrKeyNotFound = errors.New("store: key not found")

// Store is a key-value store holding the application's persisted state.
// The key schema mirrors the original browser storage layout:
//
//	registeredUsers     map of userID -> registration record
//	userData_<userId>   a student's ledger
//	currentUser         the active session, absent when logged out
//
// Implementations must treat a single Set as atomic; no cross-key
// transaction is provided.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
