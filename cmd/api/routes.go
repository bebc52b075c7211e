package main

import (
	"log"
	"net/http"

	"classbank/internal/domain/user"
	"classbank/internal/shared/config"
	"classbank/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler
// with middleware applied.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", handleHealth)

	// Public auth routes
	mux.HandleFunc("/api/auth/login", deps.AuthHandler.HandleLogin)
	mux.HandleFunc("/api/auth/signup", deps.AuthHandler.HandleSignup)
	mux.HandleFunc("/api/auth/logout", deps.AuthHandler.HandleLogout)
	mux.HandleFunc("/api/auth/teachers", deps.AuthHandler.HandleTeachers)
	mux.HandleFunc("/api/auth/check-username", deps.AuthHandler.HandleCheckUsername)

	// Authenticated routes
	authMiddleware := middleware.Auth(deps.Tokens)

	mux.Handle("/api/auth/me", authMiddleware(http.HandlerFunc(deps.AuthHandler.HandleMe)))
	mux.Handle("/api/ledger", authMiddleware(http.HandlerFunc(deps.LedgerHandler.HandleLedger)))
	mux.Handle("/api/ledger/stats", authMiddleware(http.HandlerFunc(deps.LedgerHandler.HandleStats)))
	mux.Handle("/api/transactions", authMiddleware(http.HandlerFunc(deps.LedgerHandler.HandleSubmit)))

	// Admin routes
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(middleware.RequireRole(user.RoleAdmin)(h))
	}

	mux.Handle("/api/admin/students", adminOnly(deps.AdminHandler.HandleStudents))
	mux.Handle("/api/admin/students/reset-password", adminOnly(deps.AdminHandler.HandleResetPassword))
	mux.Handle("/api/admin/overview", adminOnly(deps.AdminHandler.HandleOverview))
	mux.Handle("/api/admin/transactions", adminOnly(deps.AdminHandler.HandleTransactions))
	mux.Handle("/api/admin/transactions/pending", adminOnly(deps.AdminHandler.HandlePending))
	mux.Handle("/api/admin/transactions/approve", adminOnly(deps.AdminHandler.HandleApprove))
	mux.Handle("/api/admin/transactions/reject", adminOnly(deps.AdminHandler.HandleReject))
	mux.Handle("/api/admin/transactions/approve-all", adminOnly(deps.AdminHandler.HandleApproveAll))
	mux.Handle("/api/admin/transactions/reject-all", adminOnly(deps.AdminHandler.HandleRejectAll))
	mux.Handle("/api/admin/issue", adminOnly(deps.AdminHandler.HandleIssue))
	mux.Handle("/api/admin/issue-all", adminOnly(deps.AdminHandler.HandleIssueAll))

	// Global middleware
	handler := middleware.Logging(middleware.CORS(mux))
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(handler)
	}
	if cfg.Server.SecureHeaders {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("Security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
