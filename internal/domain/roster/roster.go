package roster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"classbank/internal/domain/ledger"
	"classbank/internal/domain/user"
	"classbank/internal/store"
)

// Student is one row of a teacher's roster view.
type Student struct {
	UserID       string       `json:"userId"`
	Username     string       `json:"username"`
	Name         string       `json:"name"`
	Balance      float64      `json:"balance"`
	Stats        ledger.Stats `json:"stats"`
	PendingCount int          `json:"pendingCount"`
}

// TaggedTransaction is a ledger entry annotated with its owner, used in
// the merged class-wide feeds.
type TaggedTransaction struct {
	ledger.Transaction
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Overview aggregates the roster for the admin dashboard header.
type Overview struct {
	TotalStudents     int     `json:"totalStudents"`
	TotalBalance      float64 `json:"totalBalance"`
	TotalEarned       float64 `json:"totalEarned"`
	TotalSpent        float64 `json:"totalSpent"`
	PendingCount      int     `json:"pendingCount"`
	TodayTransactions int     `json:"todayTransactions"`
}

// Aggregator builds teacher-scoped views over the per-student ledgers.
// Roster membership comes from the registry's teacher assignment; the
// demo student always belongs to the demo admin and is materialized on
// first roster load so a fresh store still shows a working classroom.
type Aggregator struct {
	store   store.Store
	users   *user.Registry
	ledgers *ledger.Service
	clock   func() time.Time
}

func NewAggregator(s store.Store, users *user.Registry, ledgers *ledger.Service) *Aggregator {
	return &Aggregator{store: s, users: users, ledgers: ledgers, clock: time.Now}
}

// WithClock replaces the time source, used by tests.
func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	a.clock = clock
	return a
}

// memberIDs lists the ids of the teacher's students, demo student
// included for the demo admin. Ledger keys belonging to admins are
// skipped.
func (a *Aggregator) memberIDs(ctx context.Context, teacherID string) ([]string, error) {
	keys, err := a.store.Keys(ctx, ledger.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledgers: %w", err)
	}

	var ids []string
	seenDemo := false
	for _, key := range keys {
		id := ledger.UserIDFromKey(key)
		if id == "" || strings.HasPrefix(id, "admin") {
			continue
		}

		if id == user.DemoStudent.ID {
			if teacherID == user.DemoAdmin.ID {
				ids = append(ids, id)
				seenDemo = true
			}
			continue
		}

		rec, err := a.users.Get(ctx, id)
		if errors.Is(err, user.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.TeacherID == teacherID {
			ids = append(ids, id)
		}
	}

	// A fresh store has no ledger for the demo student yet.
	if teacherID == user.DemoAdmin.ID && !seenDemo {
		if _, err := a.ledgers.CreateStarter(ctx, user.DemoStudent.ID, "Welcome bonus"); err != nil {
			return nil, err
		}
		ids = append(ids, user.DemoStudent.ID)
	}

	sort.Strings(ids)
	return ids, nil
}

func (a *Aggregator) names(ctx context.Context, id string) (username, name string, err error) {
	if id == user.DemoStudent.ID {
		return user.DemoStudent.Username, user.DemoStudent.Name, nil
	}
	rec, err := a.users.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	return rec.Username, rec.Name, nil
}

// Students returns the teacher's roster sorted by display name.
func (a *Aggregator) Students(ctx context.Context, teacherID string) ([]Student, error) {
	ids, err := a.memberIDs(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	students := make([]Student, 0, len(ids))
	for _, id := range ids {
		username, name, err := a.names(ctx, id)
		if err != nil {
			return nil, err
		}
		l, err := a.ledgers.Load(ctx, id)
		if err != nil {
			return nil, err
		}

		pending := 0
		for _, tx := range l.Transactions {
			if tx.Status == ledger.StatusPending {
				pending++
			}
		}

		students = append(students, Student{
			UserID:       id,
			Username:     username,
			Name:         name,
			Balance:      l.Balance,
			Stats:        ledger.ComputeStats(l.Transactions),
			PendingCount: pending,
		})
	}

	sort.SliceStable(students, func(i, j int) bool {
		return students[i].Name < students[j].Name
	})
	return students, nil
}

// Transactions merges every student's history into one feed, newest
// first. Entries with equal timestamps keep their per-student order.
func (a *Aggregator) Transactions(ctx context.Context, teacherID string) ([]TaggedTransaction, error) {
	ids, err := a.memberIDs(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	var merged []TaggedTransaction
	for _, id := range ids {
		_, name, err := a.names(ctx, id)
		if err != nil {
			return nil, err
		}
		l, err := a.ledgers.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, tx := range l.Transactions {
			merged = append(merged, TaggedTransaction{
				Transaction: tx,
				UserID:      id,
				UserName:    name,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})
	return merged, nil
}

// Pending filters the merged feed down to transactions awaiting review.
func (a *Aggregator) Pending(ctx context.Context, teacherID string) ([]TaggedTransaction, error) {
	all, err := a.Transactions(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	pending := make([]TaggedTransaction, 0, len(all))
	for _, tx := range all {
		if tx.Status == ledger.StatusPending {
			pending = append(pending, tx)
		}
	}
	return pending, nil
}

// Summary aggregates the roster into dashboard totals.
func (a *Aggregator) Summary(ctx context.Context, teacherID string) (*Overview, error) {
	students, err := a.Students(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	overview := &Overview{TotalStudents: len(students)}
	for _, s := range students {
		overview.TotalBalance += s.Balance
		overview.TotalEarned += s.Stats.TotalEarned
		overview.TotalSpent += s.Stats.TotalSpent
		overview.PendingCount += s.PendingCount
	}

	feed, err := a.Transactions(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	now := a.clock()
	for _, tx := range feed {
		if sameDay(tx.Date, now) {
			overview.TodayTransactions++
		}
	}
	return overview, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// BulkApprove approves every pending transaction across the roster and
// returns how many were approved.
func (a *Aggregator) BulkApprove(ctx context.Context, teacherID string) (int, error) {
	return a.bulkTransition(ctx, teacherID, a.ledgers.Approve)
}

// BulkReject rejects every pending transaction across the roster and
// returns how many were rejected.
func (a *Aggregator) BulkReject(ctx context.Context, teacherID string) (int, error) {
	return a.bulkTransition(ctx, teacherID, a.ledgers.Reject)
}

func (a *Aggregator) bulkTransition(ctx context.Context, teacherID string, apply func(context.Context, string, string) (*ledger.Transaction, error)) (int, error) {
	pending, err := a.Pending(ctx, teacherID)
	if err != nil {
		return 0, err
	}

	// Items are independent: a failure on one transaction must not
	// abandon the rest of the batch.
	count := 0
	for _, tx := range pending {
		if _, err := apply(ctx, tx.UserID, tx.ID); err != nil {
			log.Printf("Bulk review skipped transaction %s for %s: %v", tx.ID, tx.UserID, err)
			continue
		}
		count++
	}
	return count, nil
}

// IssueToAll records the same approved transaction on every roster
// member and returns how many students were credited or debited.
func (a *Aggregator) IssueToAll(ctx context.Context, teacherID string, params ledger.IssueParams) (int, error) {
	students, err := a.Students(ctx, teacherID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, s := range students {
		p := params
		p.Recipient = s.Name
		if _, err := a.ledgers.Issue(ctx, s.UserID, p); err != nil {
			log.Printf("Issue to %s skipped: %v", s.UserID, err)
			continue
		}
		count++
	}
	return count, nil
}
