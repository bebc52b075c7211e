package notification

import (
	"context"
	"fmt"
	"log"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCM sends messages through Firebase Cloud Messaging. Each user is
// addressed by a per-user topic instead of stored device tokens, so the
// server keeps no token state; clients subscribe to their own topic
// after login.
type FCM struct {
	client *messaging.Client
}

// NewFCM initializes a Firebase app from a credentials file.
func NewFCM(ctx context.Context, credentialsFile string) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &FCM{client: client}, nil
}

// Notify publishes a message to the user's topic. Delivery failures are
// logged and returned; callers treat them as non-fatal.
func (f *FCM) Notify(ctx context.Context, userID, title, body string, data map[string]string) error {
	msg := &messaging.Message{
		Topic: Topic(userID),
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	if _, err := f.client.Send(ctx, msg); err != nil {
		log.Printf("FCM send to %s failed: %v", Topic(userID), err)
		return fmt.Errorf("failed to send FCM message: %w", err)
	}
	return nil
}

// Topic maps a user id to its FCM topic name. Topic names only allow
// [a-zA-Z0-9-_.~%], so anything else in the id is replaced.
func Topic(userID string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == '~':
			return r
		}
		return '_'
	}, userID)
	return "user-" + sanitized
}
