package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classbank/internal/store"
)

// KeyPrefix is the store prefix for ledger documents.
const KeyPrefix = "userData_"

const (
	// AdminActor labels transactions issued by a teacher.
	AdminActor = "Admin"
	// SystemActor labels welcome bonus transactions.
	SystemActor = "System"
	// StudentRecipient is the recipient label on student submissions.
	StudentRecipient = "Teacher"
)

var (
	ErrInvalidAmount         = errors.New("amount must be greater than 0")
	ErrInvalidType           = errors.New("unknown transaction type")
	ErrMissingDescription    = errors.New("description is required")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrTransactionNotPending = errors.New("transaction is not pending")
)

// Key returns the store key for a user's ledger.
func Key(userID string) string {
	return KeyPrefix + userID
}

// UserIDFromKey strips the ledger prefix from a store key.
func UserIDFromKey(key string) string {
	if len(key) <= len(KeyPrefix) {
		return ""
	}
	return key[len(KeyPrefix):]
}

// Service owns all reads and writes of ledger documents. Balance is
// treated as a pure function of the approved transaction log: loads
// recompute it, and every write stores the recomputed value so the
// persisted document stays self-consistent for other readers.
type Service struct {
	store        store.Store
	welcomeBonus float64
	clock        func() time.Time
	newID        func() string
}

func NewService(s store.Store, welcomeBonus float64) *Service {
	return &Service{
		store:        s,
		welcomeBonus: welcomeBonus,
		clock:        time.Now,
		newID:        uuid.NewString,
	}
}

// WithClock overrides the service clock for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithIDGenerator overrides transaction id generation for tests.
func (s *Service) WithIDGenerator(newID func() string) *Service {
	s.newID = newID
	return s
}

// Load reads a user's ledger. A missing ledger is initialized with the
// welcome bonus and persisted immediately. The returned balance is
// always recomputed from the approved transactions.
func (s *Service) Load(ctx context.Context, userID string) (*Ledger, error) {
	l, err := s.read(ctx, userID)
	if errors.Is(err, store.ErrKeyNotFound) {
		return s.CreateStarter(ctx, userID, "Welcome bonus")
	}
	if err != nil {
		return nil, err
	}
	l.Balance = ComputeBalance(l.Transactions)
	return l, nil
}

// Exists reports whether a ledger document is present without creating one.
func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := s.store.Get(ctx, Key(userID))
	if errors.Is(err, store.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ledger for %s: %w", userID, err)
	}
	return true, nil
}

// CreateStarter writes a fresh ledger holding one approved welcome
// bonus transaction. Used at signup, on lazy load, and for the demo
// student fallback; only the description differs between those paths.
func (s *Service) CreateStarter(ctx context.Context, userID, description string) (*Ledger, error) {
	now := s.clock()
	l := &Ledger{
		Transactions: []Transaction{{
			ID:          "welcome_" + s.newID(),
			Type:        TypeEarning,
			Amount:      s.welcomeBonus,
			Description: description,
			Date:        now,
			Status:      StatusApproved,
			From:        SystemActor,
		}},
	}
	if err := s.write(ctx, userID, l, now); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateWithBalance writes a fresh ledger for an admin-created student.
// A positive starting balance becomes an approved "Initial balance"
// earning; zero starts the ledger empty.
func (s *Service) CreateWithBalance(ctx context.Context, userID string, balance float64) (*Ledger, error) {
	if balance < 0 {
		return nil, ErrInvalidAmount
	}

	now := s.clock()
	l := &Ledger{Transactions: []Transaction{}}
	if balance > 0 {
		l.Transactions = []Transaction{{
			ID:          s.newID(),
			Type:        TypeEarning,
			Amount:      balance,
			Description: "Initial balance",
			Date:        now,
			Status:      StatusApproved,
			From:        AdminActor,
		}}
	}
	if err := s.write(ctx, userID, l, now); err != nil {
		return nil, err
	}
	return l, nil
}

// SubmitParams describe a student-submitted transaction.
type SubmitParams struct {
	Type        Type
	Amount      float64
	Description string
}

// Submit records a student transaction in pending state. The balance
// does not move until an admin approves it.
func (s *Service) Submit(ctx context.Context, userID, from string, params SubmitParams) (*Transaction, error) {
	if err := validate(params.Type, params.Amount, params.Description); err != nil {
		return nil, err
	}

	l, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	tx := Transaction{
		ID:          s.newID(),
		Type:        params.Type,
		Amount:      params.Amount,
		Description: params.Description,
		Date:        now,
		Status:      StatusPending,
		From:        from,
		Recipient:   StudentRecipient,
	}
	l.Transactions = append([]Transaction{tx}, l.Transactions...)

	if err := s.write(ctx, userID, l, now); err != nil {
		return nil, err
	}
	return &tx, nil
}

// IssueParams describe an admin-issued transaction.
type IssueParams struct {
	Type        Type
	Amount      float64
	Description string
	Recipient   string
}

// Issue records an admin transaction directly in approved state and
// moves the balance. Negative balances are allowed.
func (s *Service) Issue(ctx context.Context, userID string, params IssueParams) (*Transaction, error) {
	if err := validate(params.Type, params.Amount, params.Description); err != nil {
		return nil, err
	}

	l, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	tx := Transaction{
		ID:          s.newID(),
		Type:        params.Type,
		Amount:      params.Amount,
		Description: params.Description,
		Date:        now,
		Status:      StatusApproved,
		From:        AdminActor,
		Recipient:   params.Recipient,
	}
	l.Transactions = append([]Transaction{tx}, l.Transactions...)

	if err := s.write(ctx, userID, l, now); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Approve moves a pending transaction to approved and adjusts the
// balance. Approved and rejected are terminal; anything else returns
// ErrTransactionNotPending.
func (s *Service) Approve(ctx context.Context, userID, transactionID string) (*Transaction, error) {
	return s.transition(ctx, userID, transactionID, StatusApproved)
}

// Reject moves a pending transaction to rejected. The balance is
// untouched.
func (s *Service) Reject(ctx context.Context, userID, transactionID string) (*Transaction, error) {
	return s.transition(ctx, userID, transactionID, StatusRejected)
}

func (s *Service) transition(ctx context.Context, userID, transactionID string, target Status) (*Transaction, error) {
	l, err := s.read(ctx, userID)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range l.Transactions {
		if l.Transactions[i].ID == transactionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrTransactionNotFound
	}
	if l.Transactions[idx].Status != StatusPending {
		return nil, ErrTransactionNotPending
	}

	l.Transactions[idx].Status = target
	if err := s.write(ctx, userID, l, s.clock()); err != nil {
		return nil, err
	}
	tx := l.Transactions[idx]
	return &tx, nil
}

// Audit recomputes the stored balance from the approved log and
// rewrites the document when the two disagree. Returns the drift found
// (computed minus stored) and whether a repair was written.
func (s *Service) Audit(ctx context.Context, userID string) (float64, bool, error) {
	l, err := s.read(ctx, userID)
	if errors.Is(err, store.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	computed := ComputeBalance(l.Transactions)
	drift := computed - l.Balance
	if drift == 0 {
		return 0, false, nil
	}

	if err := s.write(ctx, userID, l, l.LastUpdated); err != nil {
		return drift, false, err
	}
	return drift, true, nil
}

func validate(t Type, amount float64, description string) error {
	if !t.Valid() {
		return ErrInvalidType
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if description == "" {
		return ErrMissingDescription
	}
	return nil
}

func (s *Service) read(ctx context.Context, userID string) (*Ledger, error) {
	data, err := s.store.Get(ctx, Key(userID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load ledger for %s: %w", userID, err)
	}

	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to decode ledger for %s: %w", userID, err)
	}
	return &l, nil
}

// write persists the ledger with its balance recomputed, keeping the
// stored balance field in lockstep with the transaction log.
func (s *Service) write(ctx context.Context, userID string, l *Ledger, updated time.Time) error {
	l.Balance = ComputeBalance(l.Transactions)
	l.LastUpdated = updated

	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to encode ledger for %s: %w", userID, err)
	}
	if err := s.store.Set(ctx, Key(userID), data); err != nil {
		return fmt.Errorf("failed to save ledger for %s: %w", userID, err)
	}
	return nil
}
