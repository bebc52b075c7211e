package ledger

import "time"

// Type classifies a transaction. Earnings and requests credit the
// student, purchases debit. The amount itself is always positive; the
// direction is derived from the type and never stored as a sign.
type Type string

const (
	TypeEarning  Type = "earning"
	TypePurchase Type = "purchase"
	TypeRequest  Type = "request"
)

// Valid reports whether t is one of the known transaction types.
func (t Type) Valid() bool {
	switch t {
	case TypeEarning, TypePurchase, TypeRequest:
		return true
	}
	return false
}

// Credit reports whether an approved transaction of this type increases
// the balance.
func (t Type) Credit() bool {
	return t == TypeEarning || t == TypeRequest
}

// Status is the workflow state of a transaction. pending is the only
// non-terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Transaction is one entry in a student's ledger. JSON field names match
// the stored schema.
type Transaction struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Status      Status    `json:"status"`
	From        string    `json:"from,omitempty"`
	Recipient   string    `json:"recipient,omitempty"`
}

// Ledger is a student's transaction history, newest first. Balance is
// derived from the approved transactions; it is persisted for schema
// compatibility but recomputed on every load.
type Ledger struct {
	Balance      float64       `json:"balance"`
	Transactions []Transaction `json:"transactions"`
	LastUpdated  time.Time     `json:"lastUpdated"`
}

// Stats are the aggregates shown on dashboards. Both earning and
// request transactions count toward TotalEarned once approved.
type Stats struct {
	TotalEarned   float64 `json:"totalEarned"`
	TotalSpent    float64 `json:"totalSpent"`
	ApprovedCount int     `json:"approvedCount"`
}

// ComputeBalance sums the approved transactions: credits minus debits.
func ComputeBalance(transactions []Transaction) float64 {
	var balance float64
	for _, tx := range transactions {
		if tx.Status != StatusApproved {
			continue
		}
		if tx.Type.Credit() {
			balance += tx.Amount
		} else {
			balance -= tx.Amount
		}
	}
	return balance
}

// ComputeStats aggregates the approved transactions.
func ComputeStats(transactions []Transaction) Stats {
	var stats Stats
	for _, tx := range transactions {
		if tx.Status != StatusApproved {
			continue
		}
		stats.ApprovedCount++
		if tx.Type.Credit() {
			stats.TotalEarned += tx.Amount
		} else {
			stats.TotalSpent += tx.Amount
		}
	}
	return stats
}
