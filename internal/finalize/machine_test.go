package finalize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tillclose/backend/internal/domain"
	"tillclose/backend/internal/events"
	"tillclose/backend/internal/verification"
)

const testDay = "2026-10-15"

type fakeStore struct {
	mu           sync.Mutex
	persisted    map[string]domain.CashierCount
	sales        map[string]int
	sessions     []domain.ReconciliationSession
	failPersist  map[string]int
	failDeletes  int
	failSessions int
	deleteCalls  int
	deleteGate   chan struct{}
	afterDelete  func()
}

func newFakeStore(sales int) *fakeStore {
	return &fakeStore{
		persisted:   make(map[string]domain.CashierCount),
		sales:       map[string]int{testDay: sales},
		failPersist: make(map[string]int),
	}
}

func (s *fakeStore) PersistCashierCount(_ context.Context, count domain.CashierCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPersist[count.CashierID] > 0 {
		s.failPersist[count.CashierID]--
		return errors.New("pq: connection reset")
	}
	s.persisted[count.CashierID] = count
	return nil
}

func (s *fakeStore) DeleteDaySales(ctx context.Context, _ string, day string) (domain.DeleteResult, error) {
	if s.deleteGate != nil {
		select {
		case <-s.deleteGate:
		case <-ctx.Done():
			return domain.DeleteResult{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	if s.failDeletes > 0 {
		s.failDeletes--
		return domain.DeleteResult{}, errors.New("pq: deadlock detected")
	}
	n := s.sales[day]
	s.sales[day] = 0
	if s.afterDelete != nil {
		s.afterDelete()
	}
	return domain.DeleteResult{DeletedCount: n, DrawersReset: 3}, nil
}

func (s *fakeStore) SaveReconciliationSession(ctx context.Context, session domain.ReconciliationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failSessions > 0 {
		s.failSessions--
		return errors.New("pq: disk full")
	}
	s.sessions = append(s.sessions, session)
	return nil
}

func (s *fakeStore) deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCalls
}

func (s *fakeStore) remaining(day string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sales[day]
}

func (s *fakeStore) persistedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.persisted))
	for id := range s.persisted {
		ids = append(ids, id)
	}
	return ids
}

func (s *fakeStore) savedSessions() []domain.ReconciliationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ReconciliationSession(nil), s.sessions...)
}

type fakeLedger struct{ cleared int }

func (l *fakeLedger) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.cleared++
	return nil
}

type fakeCloser struct {
	calls int
	err   error
}

func (c *fakeCloser) SignalDayClosed(ctx context.Context, _ string, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.calls++
	return c.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store   *fakeStore
	tracker *verification.Tracker
	ledger  *fakeLedger
	closer  *fakeCloser
	clock   *clock
	bus     *events.Bus
	machine *Machine
}

func newFixture(t *testing.T, cashiers ...string) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, cashiers...)
}

func newFixtureWith(t *testing.T, prepare func(context.Context, string) error, cashiers ...string) *fixture {
	t.Helper()
	f := &fixture{
		store:  newFakeStore(5),
		ledger: &fakeLedger{},
		closer: &fakeCloser{},
		clock:  &clock{now: time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC)},
		bus:    events.NewBus(zap.NewNop()),
	}
	f.tracker = verification.NewTracker("main-store", testDay, f.clock.Now, f.bus)
	f.tracker.SetActiveCashiers(cashiers)
	f.machine = New(f.store, f.tracker, f.ledger, f.closer, Options{
		StoreID: "main-store",
		Timeout: time.Minute,
		Prepare: prepare,
		Now:     f.clock.Now,
		Bus:     f.bus,
		Logger:  zap.NewNop(),
	})
	f.machine.OpenDay(testDay)
	return f
}

func (f *fixture) countAll(t *testing.T, cashiers ...string) {
	t.Helper()
	for _, id := range cashiers {
		_, err := f.tracker.RecordCount(id, domain.NewUSD(decimal.NewFromInt(100)), "")
		require.NoError(t, err)
	}
}

func TestFinalizeRefusesIncompleteVerification(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	f.countAll(t, "a", "b")

	_, err := f.machine.Finalize(context.Background(), testDay, "")

	require.ErrorIs(t, err, domain.ErrIncompleteVerification)
	assert.Equal(t, 0, f.store.deletes())
	assert.Empty(t, f.store.persistedIDs())
	assert.Equal(t, 5, f.store.remaining(testDay))
	assert.Equal(t, domain.DayStateOpen, f.machine.State())
	assert.False(t, f.machine.InProgress())
}

func TestFinalizeGatesOnCashiersFoundByPrepare(t *testing.T) {
	var f *fixture
	f = newFixtureWith(t, func(context.Context, string) error {
		// A sale by "b" landed before the run started.
		f.tracker.SetActiveCashiers([]string{"a", "b"})
		return nil
	}, "a")
	require.NoError(t, f.machine.BeginVerification())
	f.countAll(t, "a")
	require.True(t, f.tracker.IsComplete())

	_, err := f.machine.Finalize(context.Background(), testDay, "")

	require.ErrorIs(t, err, domain.ErrIncompleteVerification)
	assert.Equal(t, 0, f.store.deletes())
	assert.Equal(t, domain.DayStateVerifying, f.machine.State())
	assert.False(t, f.machine.InProgress())
}

func TestFinalizePrepareFailureLeavesDayUntouched(t *testing.T) {
	f := newFixtureWith(t, func(context.Context, string) error {
		return errors.New("pq: connection refused")
	}, "a")
	f.countAll(t, "a")

	_, err := f.machine.Finalize(context.Background(), testDay, "")

	require.Error(t, err)
	assert.Equal(t, 0, f.store.deletes())
	assert.Empty(t, f.store.persistedIDs())
	assert.Equal(t, domain.DayStateOpen, f.machine.State())
	assert.False(t, f.machine.InProgress())
}

func TestFinalizeCompletesAfterCallerGoesAway(t *testing.T) {
	f := newFixture(t, "a")
	f.countAll(t, "a")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.afterDelete = cancel

	result, err := f.machine.Finalize(ctx, testDay, "")

	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.ShutdownError)
	assert.Len(t, f.store.savedSessions(), 1)
	assert.Equal(t, 1, f.ledger.cleared)
	assert.Equal(t, 1, f.closer.calls)
	assert.Equal(t, domain.DayStateClosed, f.machine.State())
}

func TestFinalizeClosesDay(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.countAll(t, "a", "b")
	var closed []events.Event
	f.bus.Subscribe(func(evt events.Event) {
		if evt.Type == events.DayClosed {
			closed = append(closed, evt)
		}
	})

	result, err := f.machine.Finalize(context.Background(), testDay, " all good ")

	require.NoError(t, err)
	assert.Equal(t, domain.DayStateClosed, result.State)
	assert.Equal(t, 2, result.PersistedCounts)
	assert.Equal(t, 5, result.DeletedCount)
	assert.Equal(t, 3, result.DrawersReset)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.ShutdownError)
	assert.Equal(t, domain.DayStateClosed, f.machine.State())

	sessions := f.store.savedSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "all good", sessions[0].Notes)
	assert.Equal(t, 2, sessions[0].VerifiedCashiers)
	assert.Equal(t, 1, f.ledger.cleared)
	assert.Empty(t, f.tracker.Counts())
	assert.Equal(t, 1, f.closer.calls)
	require.Len(t, closed, 1)
	assert.Equal(t, testDay, closed[0].Day)

	_, err = f.machine.Finalize(context.Background(), testDay, "")
	require.ErrorIs(t, err, domain.ErrDayClosed)
}

func TestFinalizePersistFailureDeletesNothing(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	f.countAll(t, "a", "b", "c")
	f.store.failPersist["b"] = 2

	_, err := f.machine.Finalize(context.Background(), testDay, "")

	require.ErrorIs(t, err, domain.ErrPersistenceFailure)
	var failed *domain.FailedCashierError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, []string{"b"}, failed.CashierIDs)
	assert.Equal(t, 0, f.store.deletes())
	assert.Equal(t, domain.DayStateOpen, f.machine.State())
	assert.Len(t, f.tracker.Counts(), 3, "counts survive a failed finalize")
}

func TestFinalizeRetriesFailedCountsOnce(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.countAll(t, "a", "b")
	f.store.failPersist["a"] = 1

	result, err := f.machine.Finalize(context.Background(), testDay, "")

	require.NoError(t, err)
	assert.Equal(t, 2, result.PersistedCounts)
	assert.Contains(t, f.store.persistedIDs(), "a")
}

func TestFinalizeDeletionFailureReopensDay(t *testing.T) {
	f := newFixture(t, "a")
	f.countAll(t, "a")
	f.store.failDeletes = 2

	_, err := f.machine.Finalize(context.Background(), testDay, "")

	require.ErrorIs(t, err, domain.ErrDeletionFailure)
	assert.Contains(t, err.Error(), "day NOT closed")
	assert.Equal(t, domain.DayStateOpen, f.machine.State())
	assert.Equal(t, 2, f.store.deletes())
	assert.Zero(t, f.ledger.cleared)
	assert.Zero(t, f.closer.calls)

	result, err := f.machine.Finalize(context.Background(), testDay, "")
	require.NoError(t, err)
	assert.Equal(t, 5, result.DeletedCount)
	assert.Equal(t, domain.DayStateClosed, f.machine.State())
}

func TestFinalizeReportsButKeepsClosureOnLateFailures(t *testing.T) {
	f := newFixture(t, "a")
	f.countAll(t, "a")
	f.store.failSessions = 2
	f.closer.err = errors.New("logout service unavailable")

	result, err := f.machine.Finalize(context.Background(), testDay, "")

	require.NoError(t, err)
	assert.Equal(t, domain.DayStateClosed, result.State)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "reconciliation session not saved")
	assert.Equal(t, "logout service unavailable", result.ShutdownError)
	assert.Equal(t, domain.DayStateClosed, f.machine.State())
}

func TestConcurrentFinalizeIsRejected(t *testing.T) {
	f := newFixture(t, "a")
	f.countAll(t, "a")
	f.store.deleteGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.machine.Finalize(context.Background(), testDay, "")
		done <- err
	}()
	require.Eventually(t, f.machine.InProgress, time.Second, 5*time.Millisecond)

	_, err := f.machine.Finalize(context.Background(), testDay, "")
	require.ErrorIs(t, err, domain.ErrAlreadyInProgress)
	assert.Equal(t, domain.DayStateFinalizing, f.machine.State())

	close(f.store.deleteGate)
	require.NoError(t, <-done)
	assert.Equal(t, domain.DayStateClosed, f.machine.State())
}

func TestStuckFinalizeIsRecovered(t *testing.T) {
	f := newFixture(t, "a")
	f.countAll(t, "a")
	f.store.deleteGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.machine.Finalize(context.Background(), testDay, "")
		done <- err
	}()
	require.Eventually(t, f.machine.InProgress, time.Second, 5*time.Millisecond)

	assert.False(t, f.machine.AbortIfStuck(), "not stuck before the timeout")

	f.clock.Advance(2 * time.Minute)
	assert.True(t, f.machine.AbortIfStuck())
	assert.False(t, f.machine.InProgress())
	assert.Equal(t, domain.DayStateOpen, f.machine.State())

	// The abandoned run sees its context cancelled and must not clobber state.
	require.Error(t, <-done)
	assert.Equal(t, domain.DayStateOpen, f.machine.State())

	f.store.deleteGate = nil
	_, err := f.machine.Finalize(context.Background(), testDay, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DayStateClosed, f.machine.State())
}

func TestBeginVerificationTransitions(t *testing.T) {
	f := newFixture(t, "a")

	require.NoError(t, f.machine.BeginVerification())
	assert.Equal(t, domain.DayStateVerifying, f.machine.State())

	f.machine.Restore(domain.ReconciliationSession{Day: testDay, State: domain.DayStateClosed})
	require.ErrorIs(t, f.machine.BeginVerification(), domain.ErrDayClosed)

	f.machine.OpenDay("2026-10-16")
	assert.Equal(t, domain.DayStateOpen, f.machine.State())
	assert.Equal(t, "2026-10-16", f.machine.Day())
}

func TestPersistBatchReportsEveryFailure(t *testing.T) {
	store := newFakeStore(0)
	store.failPersist["b"] = 1
	store.failPersist["d"] = 1
	counts := []domain.CashierCount{{CashierID: "a"}, {CashierID: "b"}, {CashierID: "c"}, {CashierID: "d"}}

	result := persistBatch(context.Background(), store, counts, 2)

	assert.Equal(t, []string{"a", "c"}, result.Succeeded)
	assert.Equal(t, []string{"b", "d"}, result.FailedIDs())
	require.ErrorIs(t, result.Err(), domain.ErrPersistenceFailure)
}
