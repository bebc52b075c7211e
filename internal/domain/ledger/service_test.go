package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"classbank/internal/store"
)

func newTestService(s *store.Memory) *Service {
	n := 0
	return NewService(s, 100).
		WithClock(func() time.Time {
			return time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
		}).
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("tx-%d", n)
		})
}

func TestLoad_InitializesMissingLedger(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newTestService(mem)

	l, err := svc.Load(ctx, "student_alice")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if l.Balance != 100 {
		t.Errorf("starter balance = %v, want 100", l.Balance)
	}
	if len(l.Transactions) != 1 {
		t.Fatalf("starter ledger has %d transactions, want 1", len(l.Transactions))
	}
	welcome := l.Transactions[0]
	if welcome.Type != TypeEarning || welcome.Status != StatusApproved || welcome.Amount != 100 {
		t.Errorf("welcome transaction = %+v, want approved earning of 100", welcome)
	}
	if welcome.From != "System" {
		t.Errorf("welcome transaction from = %q, want System", welcome.From)
	}

	// The lazy initialization must have been persisted.
	if _, err := mem.Get(ctx, "userData_student_alice"); err != nil {
		t.Errorf("starter ledger was not persisted: %v", err)
	}
}

func TestLoad_RecomputesBalanceFromApprovedLog(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newTestService(mem)

	// Stored balance drifted from the log; the log wins.
	doc := `{
		"balance": 999,
		"transactions": [
			{"id":"a","type":"earning","amount":100,"description":"w","date":"2025-09-01T08:00:00Z","status":"approved"},
			{"id":"b","type":"purchase","amount":30,"description":"p","date":"2025-09-01T09:00:00Z","status":"approved"},
			{"id":"c","type":"purchase","amount":50,"description":"q","date":"2025-09-01T10:00:00Z","status":"pending"},
			{"id":"d","type":"request","amount":10,"description":"r","date":"2025-09-01T11:00:00Z","status":"rejected"}
		],
		"lastUpdated": "2025-09-01T11:00:00Z"
	}`
	mem.Set(ctx, "userData_student_bob", []byte(doc))

	l, err := svc.Load(ctx, "student_bob")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if l.Balance != 70 {
		t.Errorf("Load() balance = %v, want 70 (approved only)", l.Balance)
	}
}

func TestSubmit_PendingAndBalanceUnchanged(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newTestService(mem)

	svc.Load(ctx, "student_alice") // starter ledger, balance 100

	tx, err := svc.Submit(ctx, "student_alice", "Alice", SubmitParams{
		Type:        TypePurchase,
		Amount:      30,
		Description: "Pencil from class store",
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	if tx.Status != StatusPending {
		t.Errorf("Submit() status = %q, want pending", tx.Status)
	}
	if tx.Recipient != "Teacher" || tx.From != "Alice" {
		t.Errorf("Submit() from/recipient = %q/%q, want Alice/Teacher", tx.From, tx.Recipient)
	}

	l, _ := svc.Load(ctx, "student_alice")
	if l.Balance != 100 {
		t.Errorf("balance after submit = %v, want 100 (unchanged)", l.Balance)
	}
	if l.Transactions[0].ID != tx.ID {
		t.Errorf("submitted transaction not newest-first: got %q", l.Transactions[0].ID)
	}
}

func TestSubmit_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())

	tests := []struct {
		name    string
		params  SubmitParams
		wantErr error
	}{
		{"zero amount", SubmitParams{TypeEarning, 0, "chores"}, ErrInvalidAmount},
		{"negative amount", SubmitParams{TypePurchase, -5, "refund"}, ErrInvalidAmount},
		{"missing description", SubmitParams{TypeEarning, 10, ""}, ErrMissingDescription},
		{"unknown type", SubmitParams{Type("transfer"), 10, "swap"}, ErrInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, "student_alice", "Alice", tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApprove_MovesBalance(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newTestService(mem)

	svc.Load(ctx, "student_alice")
	tx, _ := svc.Submit(ctx, "student_alice", "Alice", SubmitParams{TypePurchase, 30, "Snack"})

	approved, err := svc.Approve(ctx, "student_alice", tx.ID)
	if err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Errorf("Approve() status = %q, want approved", approved.Status)
	}

	l, _ := svc.Load(ctx, "student_alice")
	if l.Balance != 70 {
		t.Errorf("balance after approving 30 purchase = %v, want 70", l.Balance)
	}
}

func TestApprove_RequestCredits(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())

	svc.Load(ctx, "student_alice")
	tx, _ := svc.Submit(ctx, "student_alice", "Alice", SubmitParams{TypeRequest, 25, "Helped clean up"})
	svc.Approve(ctx, "student_alice", tx.ID)

	l, _ := svc.Load(ctx, "student_alice")
	if l.Balance != 125 {
		t.Errorf("balance after approving 25 request = %v, want 125", l.Balance)
	}
}

func TestReject_BalanceUnchangedAndTerminal(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())

	svc.Load(ctx, "student_alice")
	tx, _ := svc.Submit(ctx, "student_alice", "Alice", SubmitParams{TypeEarning, 40, "Extra credit"})

	rejected, err := svc.Reject(ctx, "student_alice", tx.ID)
	if err != nil {
		t.Fatalf("Reject() failed: %v", err)
	}
	if rejected.Status != StatusRejected {
		t.Errorf("Reject() status = %q, want rejected", rejected.Status)
	}

	l, _ := svc.Load(ctx, "student_alice")
	if l.Balance != 100 {
		t.Errorf("balance after reject = %v, want 100", l.Balance)
	}

	// Terminal: neither approve nor reject may fire again.
	if _, err := svc.Approve(ctx, "student_alice", tx.ID); !errors.Is(err, ErrTransactionNotPending) {
		t.Errorf("Approve() after reject error = %v, want ErrTransactionNotPending", err)
	}
	if _, err := svc.Reject(ctx, "student_alice", tx.ID); !errors.Is(err, ErrTransactionNotPending) {
		t.Errorf("Reject() after reject error = %v, want ErrTransactionNotPending", err)
	}
}

func TestApprove_TwiceIsRejected(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())

	svc.Load(ctx, "student_alice")
	tx, _ := svc.Submit(ctx, "student_alice", "Alice", SubmitParams{TypeEarning, 10, "Homework"})
	svc.Approve(ctx, "student_alice", tx.ID)

	if _, err := svc.Approve(ctx, "student_alice", tx.ID); !errors.Is(err, ErrTransactionNotPending) {
		t.Errorf("second Approve() error = %v, want ErrTransactionNotPending", err)
	}

	l, _ := svc.Load(ctx, "student_alice")
	if l.Balance != 110 {
		t.Errorf("balance after double approve attempt = %v, want 110", l.Balance)
	}
}

func TestTransition_UnknownTransaction(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())

	svc.Load(ctx, "student_alice")
	if _, err := svc.Approve(ctx, "student_alice", "nope"); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("Approve(unknown) error = %v, want ErrTransactionNotFound", err)
	}
	if _, err := svc.Approve(ctx, "student_ghost", "nope"); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("Approve(unknown user) error = %v, want ErrTransactionNotFound", err)
	}
}

func TestIssue_AutoApproved(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())

	svc.Load(ctx, "student_alice")
	tx, err := svc.Issue(ctx, "student_alice", IssueParams{
		Type:        TypeEarning,
		Amount:      50,
		Description: "Quiz winner",
		Recipient:   "Alice",
	})
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	if tx.Status != StatusApproved || tx.From != "Admin" {
		t.Errorf("Issue() = %+v, want approved from Admin", tx)
	}

	l, _ := svc.Load(ctx, "student_alice")
	if l.Balance != 150 {
		t.Errorf("balance after issuing 50 earning = %v, want 150", l.Balance)
	}
}

func TestIssue_PurchaseAllowsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())

	svc.Load(ctx, "student_alice")
	if _, err := svc.Issue(ctx, "student_alice", IssueParams{
		Type: TypePurchase, Amount: 140, Description: "Field trip fee", Recipient: "Alice",
	}); err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}

	l, _ := svc.Load(ctx, "student_alice")
	if l.Balance != -40 {
		t.Errorf("balance = %v, want -40 (negative allowed)", l.Balance)
	}
}

func TestCreateWithBalance(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())

	l, err := svc.CreateWithBalance(ctx, "student_new", 25)
	if err != nil {
		t.Fatalf("CreateWithBalance() failed: %v", err)
	}
	if l.Balance != 25 || len(l.Transactions) != 1 {
		t.Errorf("CreateWithBalance(25) = balance %v, %d txs; want 25, 1", l.Balance, len(l.Transactions))
	}
	if l.Transactions[0].Description != "Initial balance" {
		t.Errorf("initial transaction description = %q", l.Transactions[0].Description)
	}

	empty, err := svc.CreateWithBalance(ctx, "student_zero", 0)
	if err != nil {
		t.Fatalf("CreateWithBalance(0) failed: %v", err)
	}
	if empty.Balance != 0 || len(empty.Transactions) != 0 {
		t.Errorf("CreateWithBalance(0) = balance %v, %d txs; want 0, 0", empty.Balance, len(empty.Transactions))
	}

	if _, err := svc.CreateWithBalance(ctx, "student_neg", -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("CreateWithBalance(-1) error = %v, want ErrInvalidAmount", err)
	}
}

func TestAudit_RepairsDrift(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newTestService(mem)

	doc := `{
		"balance": 40,
		"transactions": [
			{"id":"a","type":"earning","amount":100,"description":"w","date":"2025-09-01T08:00:00Z","status":"approved"}
		],
		"lastUpdated": "2025-09-01T08:00:00Z"
	}`
	mem.Set(ctx, "userData_student_drift", []byte(doc))

	drift, repaired, err := svc.Audit(ctx, "student_drift")
	if err != nil {
		t.Fatalf("Audit() failed: %v", err)
	}
	if drift != 60 || !repaired {
		t.Errorf("Audit() = (%v, %v), want (60, true)", drift, repaired)
	}

	var l Ledger
	data, _ := mem.Get(ctx, "userData_student_drift")
	json.Unmarshal(data, &l)
	if l.Balance != 100 {
		t.Errorf("stored balance after audit = %v, want 100", l.Balance)
	}

	drift, repaired, err = svc.Audit(ctx, "student_drift")
	if err != nil || drift != 0 || repaired {
		t.Errorf("second Audit() = (%v, %v, %v), want clean", drift, repaired, err)
	}

	// Missing ledgers are not created by the audit.
	if _, _, err := svc.Audit(ctx, "student_absent"); err != nil {
		t.Errorf("Audit(absent) error = %v, want nil", err)
	}
	if _, err := mem.Get(ctx, "userData_student_absent"); err == nil {
		t.Error("Audit(absent) created a ledger; it must not")
	}
}

func TestComputeStats(t *testing.T) {
	txs := []Transaction{
		{Type: TypeEarning, Amount: 100, Status: StatusApproved},
		{Type: TypeRequest, Amount: 25, Status: StatusApproved},
		{Type: TypePurchase, Amount: 30, Status: StatusApproved},
		{Type: TypeEarning, Amount: 500, Status: StatusPending},
		{Type: TypePurchase, Amount: 500, Status: StatusRejected},
	}

	stats := ComputeStats(txs)
	if stats.TotalEarned != 125 {
		t.Errorf("TotalEarned = %v, want 125 (earning + request)", stats.TotalEarned)
	}
	if stats.TotalSpent != 30 {
		t.Errorf("TotalSpent = %v, want 30", stats.TotalSpent)
	}
	if stats.ApprovedCount != 3 {
		t.Errorf("ApprovedCount = %d, want 3", stats.ApprovedCount)
	}
}

func TestUserIDFromKey(t *testing.T) {
	if got := UserIDFromKey("userData_student_alice"); got != "student_alice" {
		t.Errorf("UserIDFromKey() = %q, want student_alice", got)
	}
	if got := UserIDFromKey("userData_"); got != "" {
		t.Errorf("UserIDFromKey(prefix only) = %q, want empty", got)
	}
}
