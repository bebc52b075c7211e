package scheduler

import (
	"context"
	"fmt"
	"log"

	"classbank/internal/domain/ledger"
	"classbank/internal/store"
)

// BalanceAuditJob recomputes one student's balance from their approved
// transaction log and repairs the stored value when the two disagree.
type BalanceAuditJob struct {
	userID  string
	ledgers *ledger.Service
}

func NewBalanceAuditJob(userID string, ledgers *ledger.Service) *BalanceAuditJob {
	return &BalanceAuditJob{userID: userID, ledgers: ledgers}
}

// Execute runs the audit. Drift is logged even when the repair
// succeeds, so operators can spot writers that bypass the service.
func (j *BalanceAuditJob) Execute(ctx context.Context) error {
	drift, repaired, err := j.ledgers.Audit(ctx, j.userID)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	if repaired {
		log.Printf("Balance audit for %s: drift of %.2f repaired", j.userID, drift)
	}
	return nil
}

func (j *BalanceAuditJob) UserID() string {
	return j.userID
}

func (j *BalanceAuditJob) Description() string {
	return fmt.Sprintf("Balance audit for %s", j.userID)
}

// AuditJobProvider builds one audit job per stored ledger. Plugged into
// the scheduler's JobProvider.
func AuditJobProvider(s store.Store, ledgers *ledger.Service) func(context.Context) ([]Job, error) {
	return func(ctx context.Context) ([]Job, error) {
		keys, err := s.Keys(ctx, ledger.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list ledgers: %w", err)
		}

		jobs := make([]Job, 0, len(keys))
		for _, key := range keys {
			userID := ledger.UserIDFromKey(key)
			if userID == "" {
				continue
			}
			jobs = append(jobs, NewBalanceAuditJob(userID, ledgers))
		}
		return jobs, nil
	}
}
