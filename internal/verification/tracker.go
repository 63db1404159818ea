// Package verification tracks which cashiers have counted their drawer for
// the current business day.
package verification

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"tillclose/backend/internal/domain"
	"tillclose/backend/internal/events"
)

// Tracker holds the day's counts and the active-cashier set under a single
// lock so progress is always computed from a consistent view.
type Tracker struct {
	mu      sync.RWMutex
	day     string
	storeID string
	active  map[string]struct{}
	counts  map[string]domain.CashierCount

	now func() time.Time
	bus *events.Bus
}

func NewTracker(storeID, day string, now func() time.Time, bus *events.Bus) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		day:     day,
		storeID: storeID,
		active:  make(map[string]struct{}),
		counts:  make(map[string]domain.CashierCount),
		now:     now,
		bus:     bus,
	}
}

func (t *Tracker) Day() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.day
}

// Reset starts a fresh day. Counts and the active set are dropped.
func (t *Tracker) Reset(day string) {
	t.mu.Lock()
	t.day = day
	t.active = make(map[string]struct{})
	t.counts = make(map[string]domain.CashierCount)
	t.mu.Unlock()

	t.publish("")
}

// SetActiveCashiers replaces the denominator. Cashiers with no activity today
// are never part of it.
func (t *Tracker) SetActiveCashiers(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			next[id] = struct{}{}
		}
	}

	t.mu.Lock()
	t.active = next
	t.mu.Unlock()
}

// RecordCount stores a completed count, overwriting any earlier one.
func (t *Tracker) RecordCount(cashierID string, counted domain.MoneyAmount, notes string) (domain.CashierCount, error) {
	return t.put(cashierID, counted, notes, domain.CountStatusCompleted)
}

// SaveDraft stores a partial count. Drafts do not count as verified.
func (t *Tracker) SaveDraft(cashierID string, counted domain.MoneyAmount, notes string) (domain.CashierCount, error) {
	return t.put(cashierID, counted, notes, domain.CountStatusInProgress)
}

func (t *Tracker) put(cashierID string, counted domain.MoneyAmount, notes, status string) (domain.CashierCount, error) {
	cashierID = strings.TrimSpace(cashierID)
	if cashierID == "" {
		return domain.CashierCount{}, fmt.Errorf("%w: cashier id required", domain.ErrInvalidRequest)
	}
	if err := counted.Validate(); err != nil {
		return domain.CashierCount{}, err
	}

	t.mu.Lock()
	count := domain.CashierCount{
		CashierID: cashierID,
		StoreID:   t.storeID,
		Date:      t.day,
		Counted:   counted,
		Notes:     strings.TrimSpace(notes),
		Status:    status,
		UpdatedAt: t.now().UTC(),
	}
	t.counts[cashierID] = count
	t.mu.Unlock()

	t.publish(cashierID)
	return count, nil
}

func (t *Tracker) Progress() domain.VerificationProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	verified := 0
	for id := range t.active {
		if count, ok := t.counts[id]; ok && count.Status == domain.CountStatusCompleted {
			verified++
		}
	}
	progress := domain.VerificationProgress{Verified: verified, Total: len(t.active)}
	if progress.Total > 0 {
		progress.Ratio = float64(verified) / float64(progress.Total)
	}
	return progress
}

// IsComplete is true when every active cashier has a completed count. A day
// nobody worked is trivially complete.
func (t *Tracker) IsComplete() bool {
	p := t.Progress()
	return p.Verified == p.Total
}

// Counts returns the day's counts ordered by cashier id.
func (t *Tracker) Counts() []domain.CashierCount {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.CashierCount, 0, len(t.counts))
	for _, count := range t.counts {
		out = append(out, count)
	}
	slices.SortFunc(out, func(a, b domain.CashierCount) int {
		return strings.Compare(a.CashierID, b.CashierID)
	})
	return out
}

func (t *Tracker) Count(cashierID string) (domain.CashierCount, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count, ok := t.counts[cashierID]
	return count, ok
}

// CompletedCount returns the counted amount only when the count is final.
func (t *Tracker) CompletedCount(cashierID string) *domain.MoneyAmount {
	count, ok := t.Count(cashierID)
	if !ok || count.Status != domain.CountStatusCompleted {
		return nil
	}
	counted := count.Counted
	return &counted
}

func (t *Tracker) publish(cashierID string) {
	t.bus.Publish(events.Event{
		Type:      events.VerificationChanged,
		StoreID:   t.storeID,
		Day:       t.Day(),
		SubjectID: cashierID,
		At:        t.now().UTC(),
	})
}
