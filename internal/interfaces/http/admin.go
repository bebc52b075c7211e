package http

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"classbank/internal/domain/ledger"
	"classbank/internal/domain/roster"
	"classbank/internal/domain/user"
	"classbank/internal/notification"
	"classbank/internal/shared/auth"
	"classbank/internal/shared/middleware"
)

// Default descriptions for quick admin adjustments, used when the
// request leaves the description empty.
const (
	defaultCreditDescription = "Admin credit"
	defaultDebitDescription  = "Admin deduction"
)

const minResetPasswordLength = 3

// AdminHandler serves the teacher dashboard: roster views, transaction
// review, balance adjustments and account management. Every endpoint is
// scoped to the calling admin's own students.
type AdminHandler struct {
	roster    *roster.Aggregator
	ledgers   *ledger.Service
	users     *user.Registry
	messenger notification.Messenger
}

func NewAdminHandler(r *roster.Aggregator, ledgers *ledger.Service, users *user.Registry, messenger notification.Messenger) *AdminHandler {
	return &AdminHandler{roster: r, ledgers: ledgers, users: users, messenger: messenger}
}

// HandleStudents lists the roster on GET and creates a student account
// on POST.
func (h *AdminHandler) HandleStudents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListStudents(w, r)
	case http.MethodPost:
		h.handleCreateStudent(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	teacherID := middleware.UserID(r.Context())
	students, err := h.roster.Students(r.Context(), teacherID)
	if err != nil {
		log.Printf("Error listing students for %s: %v", teacherID, err)
		http.Error(w, "Failed to list students", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

type CreateStudentRequest struct {
	Username       string  `json:"username"`
	Password       string  `json:"password"`
	InitialBalance float64 `json:"initialBalance"`
}

type CreateStudentResponse struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	TempPassword string `json:"tempPassword,omitempty"`
}

// handleCreateStudent registers a student under the calling admin. An
// empty password gets a generated temporary one, returned once in the
// response.
func (h *AdminHandler) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		http.Error(w, "Username is required", http.StatusBadRequest)
		return
	}
	if req.InitialBalance < 0 {
		http.Error(w, "Initial balance cannot be negative", http.StatusBadRequest)
		return
	}

	teacherID := middleware.UserID(r.Context())

	password := req.Password
	tempPassword := ""
	if password == "" {
		tempPassword = generateTempPassword()
		password = tempPassword
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Printf("Error hashing password for new student: %v", err)
		http.Error(w, "Failed to create student", http.StatusInternalServerError)
		return
	}

	name := strings.ToUpper(req.Username[:1]) + req.Username[1:]

	id, err := h.users.Register(r.Context(), user.Record{
		Username:  req.Username,
		Name:      name,
		Password:  hash,
		Role:      user.RoleStudent,
		TeacherID: teacherID,
	})
	if errors.Is(err, user.ErrUsernameTaken) {
		http.Error(w, "Username already exists", http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("Error registering student %s: %v", req.Username, err)
		http.Error(w, "Failed to create student", http.StatusInternalServerError)
		return
	}

	if _, err := h.ledgers.CreateWithBalance(r.Context(), id, req.InitialBalance); err != nil {
		log.Printf("Error creating ledger for %s: %v", id, err)
		http.Error(w, "Failed to create student ledger", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, CreateStudentResponse{
		UserID:       id,
		Username:     req.Username,
		Name:         name,
		TempPassword: tempPassword,
	})
}

// HandleOverview returns class-wide totals.
func (h *AdminHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	teacherID := middleware.UserID(r.Context())
	overview, err := h.roster.Summary(r.Context(), teacherID)
	if err != nil {
		log.Printf("Error building overview for %s: %v", teacherID, err)
		http.Error(w, "Failed to build overview", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// HandleTransactions returns the class-wide transaction feed, newest
// first.
func (h *AdminHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	teacherID := middleware.UserID(r.Context())
	feed, err := h.roster.Transactions(r.Context(), teacherID)
	if err != nil {
		log.Printf("Error building feed for %s: %v", teacherID, err)
		http.Error(w, "Failed to load transactions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// HandlePending returns only the transactions awaiting review.
func (h *AdminHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	teacherID := middleware.UserID(r.Context())
	pending, err := h.roster.Pending(r.Context(), teacherID)
	if err != nil {
		log.Printf("Error listing pending for %s: %v", teacherID, err)
		http.Error(w, "Failed to load pending transactions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

type ReviewRequest struct {
	UserID        string `json:"userId"`
	TransactionID string `json:"transactionId"`
}

// HandleApprove approves one pending transaction and notifies the
// student.
func (h *AdminHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, h.ledgers.Approve, notification.Approved)
}

// HandleReject rejects one pending transaction and notifies the
// student.
func (h *AdminHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, h.ledgers.Reject, notification.Rejected)
}

func (h *AdminHandler) handleReview(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, userID, transactionID string) (*ledger.Transaction, error),
	message func(description string) (string, string),
) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	teacherID := middleware.UserID(r.Context())
	owns, err := h.ownsStudent(r, teacherID, req.UserID)
	if err != nil {
		log.Printf("Error checking roster for %s: %v", teacherID, err)
		http.Error(w, "Failed to review transaction", http.StatusInternalServerError)
		return
	}
	if !owns {
		http.Error(w, "Student not found", http.StatusNotFound)
		return
	}

	tx, err := apply(r.Context(), req.UserID, req.TransactionID)
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, ledger.ErrTransactionNotPending) {
		http.Error(w, "Transaction already reviewed", http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("Error reviewing transaction %s for %s: %v", req.TransactionID, req.UserID, err)
		http.Error(w, "Failed to review transaction", http.StatusInternalServerError)
		return
	}

	title, body := message(tx.Description)
	if err := h.messenger.Notify(r.Context(), req.UserID, title, body, map[string]string{
		"transactionId": tx.ID,
		"status":        string(tx.Status),
	}); err != nil {
		log.Printf("Notification for %s failed: %v", req.UserID, err)
	}

	writeJSON(w, http.StatusOK, tx)
}

// HandleApproveAll approves every pending transaction on the roster.
func (h *AdminHandler) HandleApproveAll(w http.ResponseWriter, r *http.Request) {
	h.handleBulkReview(w, r, h.roster.BulkApprove)
}

// HandleRejectAll rejects every pending transaction on the roster.
func (h *AdminHandler) HandleRejectAll(w http.ResponseWriter, r *http.Request) {
	h.handleBulkReview(w, r, h.roster.BulkReject)
}

func (h *AdminHandler) handleBulkReview(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, teacherID string) (int, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	teacherID := middleware.UserID(r.Context())
	count, err := apply(r.Context(), teacherID)
	if err != nil {
		log.Printf("Error bulk reviewing for %s: %v", teacherID, err)
		http.Error(w, "Failed to review transactions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reviewed": count})
}

type IssueRequest struct {
	UserID      string  `json:"userId"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// HandleIssue records an approved transaction on one student's ledger.
// An empty description falls back to "Admin credit" or "Admin
// deduction" depending on direction.
func (h *AdminHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	teacherID := middleware.UserID(r.Context())
	owns, err := h.ownsStudent(r, teacherID, req.UserID)
	if err != nil {
		log.Printf("Error checking roster for %s: %v", teacherID, err)
		http.Error(w, "Failed to issue transaction", http.StatusInternalServerError)
		return
	}
	if !owns {
		http.Error(w, "Student not found", http.StatusNotFound)
		return
	}

	name, err := h.studentName(r, req.UserID)
	if err != nil {
		log.Printf("Error resolving student %s: %v", req.UserID, err)
		http.Error(w, "Failed to issue transaction", http.StatusInternalServerError)
		return
	}

	tx, err := h.ledgers.Issue(r.Context(), req.UserID, ledger.IssueParams{
		Type:        ledger.Type(req.Type),
		Amount:      req.Amount,
		Description: defaultDescription(req.Description, ledger.Type(req.Type)),
		Recipient:   name,
	})
	if isLedgerValidationError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("Error issuing transaction for %s: %v", req.UserID, err)
		http.Error(w, "Failed to issue transaction", http.StatusInternalServerError)
		return
	}

	title, body := notification.Issued(tx.Description)
	if err := h.messenger.Notify(r.Context(), req.UserID, title, body, map[string]string{
		"transactionId": tx.ID,
	}); err != nil {
		log.Printf("Notification for %s failed: %v", req.UserID, err)
	}

	writeJSON(w, http.StatusCreated, tx)
}

type IssueAllRequest struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// HandleIssueAll records the same approved transaction for every
// student on the roster.
func (h *AdminHandler) HandleIssueAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req IssueAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t := ledger.Type(req.Type)
	if !t.Valid() {
		http.Error(w, ledger.ErrInvalidType.Error(), http.StatusBadRequest)
		return
	}

	teacherID := middleware.UserID(r.Context())
	count, err := h.roster.IssueToAll(r.Context(), teacherID, ledger.IssueParams{
		Type:        t,
		Amount:      req.Amount,
		Description: defaultDescription(req.Description, t),
	})
	if isLedgerValidationError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("Error issuing to roster of %s: %v", teacherID, err)
		http.Error(w, "Failed to issue transactions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"issued": count})
}

type ResetPasswordRequest struct {
	UserID      string `json:"userId"`
	NewPassword string `json:"newPassword"`
}

type ResetPasswordResponse struct {
	UserID       string `json:"userId"`
	TempPassword string `json:"tempPassword,omitempty"`
}

// HandleResetPassword sets a new password for one of the admin's
// students. The demo student's password is fixed. An empty password
// gets a generated temporary one, returned once.
func (h *AdminHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID == user.DemoStudent.ID {
		http.Error(w, "Demo account password cannot be changed", http.StatusBadRequest)
		return
	}

	teacherID := middleware.UserID(r.Context())
	owns, err := h.ownsStudent(r, teacherID, req.UserID)
	if err != nil {
		log.Printf("Error checking roster for %s: %v", teacherID, err)
		http.Error(w, "Failed to reset password", http.StatusInternalServerError)
		return
	}
	if !owns {
		http.Error(w, "Student not found", http.StatusNotFound)
		return
	}

	password := req.NewPassword
	tempPassword := ""
	if password == "" {
		tempPassword = generateTempPassword()
		password = tempPassword
	}
	if len(password) < minResetPasswordLength {
		http.Error(w, fmt.Sprintf("Password must be at least %d characters", minResetPasswordLength), http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Printf("Error hashing password for %s: %v", req.UserID, err)
		http.Error(w, "Failed to reset password", http.StatusInternalServerError)
		return
	}

	if err := h.users.SetPassword(r.Context(), req.UserID, hash); err != nil {
		log.Printf("Error resetting password for %s: %v", req.UserID, err)
		http.Error(w, "Failed to reset password", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ResetPasswordResponse{
		UserID:       req.UserID,
		TempPassword: tempPassword,
	})
}

// ownsStudent reports whether the student belongs to the calling admin.
func (h *AdminHandler) ownsStudent(r *http.Request, teacherID, studentID string) (bool, error) {
	if studentID == user.DemoStudent.ID {
		return teacherID == user.DemoAdmin.ID, nil
	}

	rec, err := h.users.Get(r.Context(), studentID)
	if errors.Is(err, user.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Role == user.RoleStudent && rec.TeacherID == teacherID, nil
}

func (h *AdminHandler) studentName(r *http.Request, studentID string) (string, error) {
	if studentID == user.DemoStudent.ID {
		return user.DemoStudent.Name, nil
	}
	rec, err := h.users.Get(r.Context(), studentID)
	if err != nil {
		return "", err
	}
	return rec.Name, nil
}

func defaultDescription(description string, t ledger.Type) string {
	if description != "" {
		return description
	}
	if t == ledger.TypePurchase {
		return defaultDebitDescription
	}
	return defaultCreditDescription
}

// generateTempPassword builds a short temporary password: "temp" plus
// four digits.
func generateTempPassword() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "temp0000"
	}
	n := binary.BigEndian.Uint32(b[:4])%9000 + 1000
	return fmt.Sprintf("temp%d", n)
}
