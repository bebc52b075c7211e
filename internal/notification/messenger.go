package notification

import "context"

// Messenger delivers short status messages to a user's devices.
// Implemented by the Firebase client and by Noop when push delivery is
// not configured.
type Messenger interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string) error
}

// Noop discards every message. Used when no credentials are configured
// so callers never have to nil-check the messenger.
type Noop struct{}

func (Noop) Notify(context.Context, string, string, string, map[string]string) error {
	return nil
}

// Message templates for the transaction review flow.

// Approved builds the notification for an approved transaction.
func Approved(description string) (title, body string) {
	return "Transaction approved", description + " was approved by your teacher"
}

// Rejected builds the notification for a rejected transaction.
func Rejected(description string) (title, body string) {
	return "Transaction rejected", description + " was rejected by your teacher"
}

// Issued builds the notification for an admin-issued transaction.
func Issued(description string) (title, body string) {
	return "New transaction", description
}
