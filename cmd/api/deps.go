package main

import (
	"context"
	"log"

	"classbank/internal/domain/ledger"
	"classbank/internal/domain/roster"
	"classbank/internal/domain/session"
	"classbank/internal/domain/user"
	httphandlers "classbank/internal/interfaces/http"
	"classbank/internal/notification"
	"classbank/internal/shared/auth"
	"classbank/internal/shared/config"
	"classbank/internal/store"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Store store.Store

	// Handlers
	AuthHandler   *httphandlers.AuthHandler
	LedgerHandler *httphandlers.LedgerHandler
	AdminHandler  *httphandlers.AdminHandler

	// Auth
	Tokens *auth.Tokens

	// Services (for the audit scheduler)
	Ledgers *ledger.Service
	Users   *user.Registry
}

// NewDependencies wires the application together: store backend,
// domain services, messenger and handlers.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	var s store.Store
	switch cfg.Store.Backend {
	case "memory":
		s = store.NewMemory()
		log.Println("Using in-memory store")
	default:
		pg, err := store.NewPostgres(cfg.Store.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		s = pg
		log.Println("Connected to database")
	}

	users := user.NewRegistry(s)
	ledgers := ledger.NewService(s, cfg.Classroom.WelcomeBonus)
	sessions := session.NewManager(s, users, ledgers, cfg.Classroom.AdminSignupCode)
	agg := roster.NewAggregator(s, users, ledgers)

	var messenger notification.Messenger = notification.Noop{}
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := notification.NewFCM(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase, notifications disabled: %v", err)
		} else {
			messenger = fcm
			log.Println("Firebase messaging initialized")
		}
	}

	tokens := auth.NewTokens(cfg.JWT.Secret)

	return &Dependencies{
		Store:         s,
		AuthHandler:   httphandlers.NewAuthHandler(sessions, users, tokens),
		LedgerHandler: httphandlers.NewLedgerHandler(ledgers),
		AdminHandler:  httphandlers.NewAdminHandler(agg, ledgers, users, messenger),
		Tokens:        tokens,
		Ledgers:       ledgers,
		Users:         users,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if pg, ok := d.Store.(*store.Postgres); ok {
		pg.Close()
	}
}
