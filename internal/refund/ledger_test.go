package refund

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
	"tillclose/backend/internal/kvstore"
)

// flakyStore fails the next failSaves saves before delegating.
type flakyStore struct {
	*kvstore.MemoryLedgerStore
	mu        sync.Mutex
	failSaves int
	saves     int
}

func (s *flakyStore) SaveRefundLedger(ctx context.Context, storeID string, snapshot domain.RefundLedgerSnapshot) error {
	s.mu.Lock()
	s.saves++
	if s.failSaves > 0 {
		s.failSaves--
		s.mu.Unlock()
		return errors.New("redis: connection refused")
	}
	s.mu.Unlock()
	return s.MemoryLedgerStore.SaveRefundLedger(ctx, storeID, snapshot)
}

var fixedNow = time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)

func newTestLedger(t *testing.T, kv kvstore.RefundLedgerStore, bus *events.Bus) *Ledger {
	t.Helper()
	l := New(kv, Options{
		StoreID: "main-store",
		Now:     func() time.Time { return fixedNow },
		Bus:     bus,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, l.Init(context.Background()))
	return l
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRecordRefundTwiceKeepsSingleEntry(t *testing.T) {
	l := newTestLedger(t, kvstore.NewMemoryLedgerStore(), nil)
	ctx := context.Background()

	entry, err := l.RecordRefund(ctx, "sale-1", dec("15.00"), "wrong size")
	require.NoError(t, err)
	assert.True(t, entry.RefundedAmount.Equal(dec("15")))

	_, err = l.RecordRefund(ctx, "sale-1", dec("15.00"), "wrong size")
	require.ErrorIs(t, err, domain.ErrAlreadyRefunded)

	stats := l.AggregateStats()
	assert.Equal(t, 1, stats.RefundCount)
	assert.True(t, stats.TotalRefunded.Equal(dec("15")))
}

func TestRecordRefundRejectsNonPositiveAmounts(t *testing.T) {
	l := newTestLedger(t, kvstore.NewMemoryLedgerStore(), nil)
	ctx := context.Background()

	for _, amount := range []string{"0", "-5", "1.005"} {
		_, err := l.RecordRefund(ctx, "sale-9", dec(amount), "reason")
		require.ErrorIs(t, err, domain.ErrInvalidAmount, "amount %s", amount)
	}
	assert.False(t, l.IsRefunded("sale-9"))
	_, ok := l.Entry("sale-9")
	assert.False(t, ok)
}

func TestRecordRefundPersistsBeforeCaching(t *testing.T) {
	kv := &flakyStore{MemoryLedgerStore: kvstore.NewMemoryLedgerStore()}
	l := newTestLedger(t, kv, nil)
	ctx := context.Background()

	kv.failSaves = 2
	_, err := l.RecordRefund(ctx, "sale-1", dec("10"), "damaged")
	require.ErrorIs(t, err, domain.ErrPersistenceFailure)
	assert.Equal(t, 2, kv.saves, "save is retried exactly once")
	assert.False(t, l.IsRefunded("sale-1"))

	kv.failSaves = 1
	_, err = l.RecordRefund(ctx, "sale-1", dec("10"), "damaged")
	require.NoError(t, err)
	assert.True(t, l.IsRefunded("sale-1"))

	reloaded := newTestLedger(t, kv, nil)
	entry, ok := reloaded.Entry("sale-1")
	require.True(t, ok)
	assert.Equal(t, "damaged", entry.Reason)
}

func TestRecordRefundRequiresInit(t *testing.T) {
	l := New(kvstore.NewMemoryLedgerStore(), Options{})
	_, err := l.RecordRefund(context.Background(), "sale-1", dec("1"), "x")
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestApplyRefundsDoesNotMutateInput(t *testing.T) {
	l := newTestLedger(t, kvstore.NewMemoryLedgerStore(), nil)
	_, err := l.RecordRefund(context.Background(), "sale-2", dec("7.25"), "returned")
	require.NoError(t, err)

	tender := domain.MoneyAmount{USD: dec("20")}
	sales := []domain.SaleRecord{
		{ID: "sale-1", TotalAmount: dec("5"), Status: domain.SaleStatusCompleted},
		{ID: "sale-2", TotalAmount: dec("20"), Status: domain.SaleStatusCompleted, Tender: &tender},
	}

	applied := l.ApplyRefunds(sales)

	require.Len(t, applied, 2)
	assert.Equal(t, domain.SaleStatusCompleted, applied[0].Status)
	assert.Equal(t, domain.SaleStatusRefunded, applied[1].Status)
	assert.True(t, applied[1].RefundedAmount.Equal(dec("7.25")))
	assert.Equal(t, domain.SaleStatusCompleted, sales[1].Status)
	assert.True(t, sales[1].RefundedAmount.IsZero())

	applied[1].Tender.USD = dec("0")
	assert.True(t, sales[1].Tender.USD.Equal(dec("20")))
}

func TestAggregateStatsSkipsCorruptEntries(t *testing.T) {
	kv := kvstore.NewMemoryLedgerStore()
	require.NoError(t, kv.SaveRefundLedger(context.Background(), "main-store", domain.RefundLedgerSnapshot{
		Version: 1,
		Entries: map[string]domain.RefundEntry{
			"sale-1": {SaleID: "sale-1", RefundedAmount: dec("4.00"), Timestamp: fixedNow},
			"sale-2": {SaleID: "sale-2", RefundedAmount: dec("0"), Timestamp: fixedNow},
			"sale-3": {SaleID: "sale-3", RefundedAmount: dec("-3"), Timestamp: fixedNow},
			"sale-4": {SaleID: "sale-4", RefundedAmount: dec("6.50"), Timestamp: fixedNow.Add(-24 * time.Hour)},
		},
	}))
	l := newTestLedger(t, kv, nil)

	stats := l.AggregateStats()

	assert.Equal(t, 2, stats.RefundCount)
	assert.Equal(t, 2, stats.SkippedCount)
	assert.True(t, stats.TotalRefunded.Equal(dec("10.5")))
	assert.True(t, stats.ByDate["2026-10-15"].Equal(dec("4")))
	assert.True(t, stats.ByDate["2026-10-14"].Equal(dec("6.5")))
	assert.NotContains(t, stats.BySale, "sale-2")
}

func TestClearAllNotifiesSubscribers(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	var seen []events.Event
	bus.Subscribe(func(evt events.Event) { seen = append(seen, evt) })

	l := newTestLedger(t, kvstore.NewMemoryLedgerStore(), bus)
	_, err := l.RecordRefund(context.Background(), "sale-1", dec("3"), "x")
	require.NoError(t, err)
	require.NoError(t, l.ClearAll(context.Background()))

	assert.False(t, l.IsRefunded("sale-1"))
	require.Len(t, seen, 2)
	assert.Equal(t, events.RefundLedgerChanged, seen[0].Type)
	assert.Equal(t, "sale-1", seen[0].SubjectID)
	assert.Equal(t, events.RefundLedgerChanged, seen[1].Type)
}

func TestConcurrentDuplicateRefundsRecordOnce(t *testing.T) {
	l := newTestLedger(t, kvstore.NewMemoryLedgerStore(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, duplicates := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RecordRefund(ctx, "sale-1", dec("2"), "double tap")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, domain.ErrAlreadyRefunded) {
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, duplicates)
}
