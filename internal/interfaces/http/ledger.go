package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"classbank/internal/domain/ledger"
	"classbank/internal/shared/middleware"
)

// LedgerHandler serves the student-facing ledger endpoints. The
// authenticated user can only see and touch their own ledger.
type LedgerHandler struct {
	ledgers *ledger.Service
}

func NewLedgerHandler(ledgers *ledger.Service) *LedgerHandler {
	return &LedgerHandler{ledgers: ledgers}
}

type SubmitTransactionRequest struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// HandleLedger returns the caller's ledger, creating it with the
// welcome bonus on first access.
func (h *LedgerHandler) HandleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := middleware.UserID(r.Context())
	l, err := h.ledgers.Load(r.Context(), userID)
	if err != nil {
		log.Printf("Error loading ledger for %s: %v", userID, err)
		http.Error(w, "Failed to load ledger", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, l)
}

// HandleStats returns the caller's dashboard aggregates.
func (h *LedgerHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := middleware.UserID(r.Context())
	l, err := h.ledgers.Load(r.Context(), userID)
	if err != nil {
		log.Printf("Error loading ledger for %s: %v", userID, err)
		http.Error(w, "Failed to load ledger", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ledger.ComputeStats(l.Transactions))
}

// HandleSubmit records a pending transaction for teacher review.
func (h *LedgerHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SubmitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID := middleware.UserID(r.Context())
	tx, err := h.ledgers.Submit(r.Context(), userID, middleware.UserName(r.Context()), ledger.SubmitParams{
		Type:        ledger.Type(req.Type),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if isLedgerValidationError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("Error submitting transaction for %s: %v", userID, err)
		http.Error(w, "Failed to submit transaction", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

func isLedgerValidationError(err error) bool {
	return errors.Is(err, ledger.ErrInvalidAmount) ||
		errors.Is(err, ledger.ErrInvalidType) ||
		errors.Is(err, ledger.ErrMissingDescription)
}
