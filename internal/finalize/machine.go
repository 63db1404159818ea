// Package finalize closes a business day: it persists the counts, removes the
// day's sales and resets drawers, then records the closure.
//
// States move Open -> Verifying -> Finalizing -> Closed. A failure while
// Finalizing returns the day to Open so the manager can retry; nothing is
// deleted unless every count was stored first.
package finalize

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tillclose/backend/internal/domain"
	"tillclose/backend/internal/events"
	"tillclose/backend/internal/retry"
)

const DefaultTimeout = 2 * time.Minute

type CountPersister interface {
	PersistCashierCount(ctx context.Context, count domain.CashierCount) error
}

// Store is the durable side of finalization.
type Store interface {
	CountPersister
	DeleteDaySales(ctx context.Context, storeID, day string) (domain.DeleteResult, error)
	SaveReconciliationSession(ctx context.Context, session domain.ReconciliationSession) error
}

type Verifier interface {
	IsComplete() bool
	Progress() domain.VerificationProgress
	Counts() []domain.CashierCount
	Reset(day string)
}

type LedgerClearer interface {
	ClearAll(ctx context.Context) error
}

type Options struct {
	StoreID     string
	Timeout     time.Duration
	Concurrency int
	// Prepare runs once the machine is Finalizing and before the completeness
	// check, so writes refused from that point on cannot slip past the gate.
	Prepare     func(ctx context.Context, day string) error
	Now         func() time.Time
	Bus         *events.Bus
	Logger      *zap.Logger
}

type Machine struct {
	mu         sync.Mutex
	state      string
	day        string
	inProgress bool
	startedAt  time.Time
	generation int
	cancelRun  context.CancelFunc
	resumeTo   string

	store    Store
	verifier Verifier
	ledger   LedgerClearer
	closer   Closer

	storeID     string
	timeout     time.Duration
	concurrency int
	prepare     func(ctx context.Context, day string) error
	now         func() time.Time
	bus         *events.Bus
	logger      *zap.Logger
}

func New(store Store, verifier Verifier, ledger LedgerClearer, closer Closer, opts Options) *Machine {
	if closer == nil {
		closer = NoopCloser{}
	}
	if opts.StoreID == "" {
		opts.StoreID = "main-store"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Machine{
		state:       domain.DayStateOpen,
		store:       store,
		verifier:    verifier,
		ledger:      ledger,
		closer:      closer,
		storeID:     opts.StoreID,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		prepare:     opts.Prepare,
		now:         opts.Now,
		bus:         opts.Bus,
		logger:      opts.Logger.Named("finalize"),
	}
}

func (m *Machine) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Day is the business day the current state refers to.
func (m *Machine) Day() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.day
}

func (m *Machine) InProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inProgress
}

// OpenDay moves to a new business day. A closed earlier day is left behind;
// the day being finalized is never touched.
func (m *Machine) OpenDay(day string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inProgress || m.day == day {
		return
	}
	m.day = day
	m.state = domain.DayStateOpen
}

// Restore puts the machine back into a persisted state after a restart.
func (m *Machine) Restore(session domain.ReconciliationSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.day = session.Day
	if session.State == domain.DayStateClosed {
		m.state = domain.DayStateClosed
		return
	}
	m.state = domain.DayStateOpen
}

// BeginVerification marks that counting has started for the day.
func (m *Machine) BeginVerification() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.state == domain.DayStateClosed:
		return fmt.Errorf("%w: %s", domain.ErrDayClosed, m.day)
	case m.inProgress:
		return domain.ErrAlreadyInProgress
	case m.state == domain.DayStateOpen:
		m.state = domain.DayStateVerifying
	}
	return nil
}

// AbortIfStuck clears a finalization that has outlived the timeout and
// reports whether it did. The abandoned run is cancelled and its outcome
// ignored.
func (m *Machine) AbortIfStuck() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abortIfStuckLocked()
}

func (m *Machine) abortIfStuckLocked() bool {
	if !m.inProgress {
		return false
	}
	elapsed := m.now().Sub(m.startedAt)
	if elapsed < m.timeout {
		return false
	}
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
	m.inProgress = false
	m.generation++
	m.state = domain.DayStateOpen
	m.logger.Warn("stuck finalization aborted", zap.String("day", m.day), zap.Duration("elapsed", elapsed))
	return true
}

// Finalize closes day. It fails without side effects unless every active
// cashier has a completed count once Prepare has run.
func (m *Machine) Finalize(ctx context.Context, day, notes string) (domain.FinalizeResult, error) {
	runCtx, generation, err := m.begin(ctx, day)
	if err != nil {
		return domain.FinalizeResult{}, err
	}
	if err := m.admit(runCtx, day); err != nil {
		m.release(generation)
		return domain.FinalizeResult{}, err
	}

	result, err := m.run(runCtx, day, notes)
	m.finish(generation, err)
	if err != nil {
		return domain.FinalizeResult{}, err
	}
	m.bus.Publish(events.Event{Type: events.DayClosed, StoreID: m.storeID, Day: day, At: result.ClosedAt})
	return result, nil
}

func (m *Machine) begin(ctx context.Context, day string) (context.Context, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inProgress && !m.abortIfStuckLocked() {
		return nil, 0, domain.ErrAlreadyInProgress
	}
	if m.state == domain.DayStateClosed && m.day == day {
		return nil, 0, fmt.Errorf("%w: %s", domain.ErrDayClosed, day)
	}

	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	m.resumeTo = m.state
	if m.day != day {
		m.resumeTo = domain.DayStateOpen
	}
	m.day = day
	m.inProgress = true
	m.startedAt = m.now()
	m.generation++
	m.cancelRun = cancel
	m.state = domain.DayStateFinalizing
	m.logger.Info("finalization started", zap.String("day", day))
	return runCtx, m.generation, nil
}

// admit refreshes the caller's view of the day and refuses to go further
// unless every active cashier has a completed count.
func (m *Machine) admit(ctx context.Context, day string) error {
	if m.prepare != nil {
		if err := m.prepare(ctx, day); err != nil {
			return err
		}
	}
	if !m.verifier.IsComplete() {
		p := m.verifier.Progress()
		return fmt.Errorf("%w: %d of %d cashiers verified", domain.ErrIncompleteVerification, p.Verified, p.Total)
	}
	return nil
}

// release undoes begin for a run that was refused before touching storage.
func (m *Machine) release(generation int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if generation != m.generation {
		return
	}
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
	m.inProgress = false
	m.state = m.resumeTo
}

func (m *Machine) finish(generation int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if generation != m.generation {
		// Aborted as stuck while running; a newer state owns the machine.
		return
	}
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
	m.inProgress = false
	if err != nil {
		m.state = domain.DayStateOpen
		return
	}
	m.state = domain.DayStateClosed
}

func (m *Machine) run(ctx context.Context, day, notes string) (domain.FinalizeResult, error) {
	counts := m.verifier.Counts()
	verified := m.verifier.Progress().Verified
	logger := m.logger.With(zap.String("day", day))

	batch := persistWithRetry(ctx, m.store, counts, m.concurrency)
	if err := batch.Err(); err != nil {
		logger.Error("count persistence failed", zap.Strings("cashiers", batch.FailedIDs()), zap.Error(err))
		return domain.FinalizeResult{}, err
	}

	var deleted domain.DeleteResult
	err := retry.Once(ctx, func(ctx context.Context) error {
		var delErr error
		deleted, delErr = m.store.DeleteDaySales(ctx, m.storeID, day)
		return delErr
	})
	if err != nil {
		logger.Error("sales deletion failed", zap.Error(err))
		return domain.FinalizeResult{}, fmt.Errorf("%w: %v", domain.ErrDeletionFailure, err)
	}

	closedAt := m.now().UTC()
	result := domain.FinalizeResult{
		StoreID:         m.storeID,
		Day:             day,
		State:           domain.DayStateClosed,
		PersistedCounts: len(batch.Succeeded),
		DeletedCount:    deleted.DeletedCount,
		DrawersReset:    deleted.DrawersReset,
		ClosedAt:        closedAt,
	}

	// The sales are gone; from here on failures are reported, never reversed,
	// and the remaining steps outlive the caller.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	session := domain.ReconciliationSession{
		StoreID:          m.storeID,
		Day:              day,
		State:            domain.DayStateClosed,
		Notes:            strings.TrimSpace(notes),
		VerifiedCashiers: verified,
		DeletedSales:     deleted.DeletedCount,
		ClosedAt:         &closedAt,
	}
	err = retry.Once(ctx, func(ctx context.Context) error {
		return m.store.SaveReconciliationSession(ctx, session)
	})
	if err != nil {
		logger.Error("session record not saved", zap.Error(err))
		result.Warnings = append(result.Warnings, "reconciliation session not saved: "+err.Error())
	}

	if m.ledger != nil {
		if err := m.ledger.ClearAll(ctx); err != nil {
			logger.Error("refund ledger not cleared", zap.Error(err))
			result.Warnings = append(result.Warnings, "refund ledger not cleared: "+err.Error())
		}
	}
	m.verifier.Reset(day)

	if err := m.closer.SignalDayClosed(ctx, m.storeID, day); err != nil {
		logger.Error("day-closed signal failed", zap.Error(err))
		result.ShutdownError = err.Error()
	}

	logger.Info("day closed",
		zap.Int("persisted_counts", result.PersistedCounts),
		zap.Int("deleted_sales", result.DeletedCount),
		zap.Int("drawers_reset", result.DrawersReset))
	return result, nil
}
