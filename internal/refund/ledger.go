// Package refund holds the authoritative record of which sales were refunded,
// for how much and why.
package refund

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tillclose/backend/internal/domain"
	"tillclose/backend/internal/events"
	"tillclose/backend/internal/kvstore"
	"tillclose/backend/internal/retry"
)

var ErrNotInitialized = errors.New("refund ledger not initialized")

type Options struct {
	StoreID  string
	Location *time.Location
	Now      func() time.Time
	Bus      *events.Bus
	Logger   *zap.Logger
}

// Ledger caches the persisted snapshot in memory. Mutations are serialized by
// writeMu and reach the cache only after the key-value store accepted them,
// so readers never see a refund that is not durable.
type Ledger struct {
	writeMu sync.Mutex

	mu      sync.RWMutex
	entries map[string]domain.RefundEntry
	version int
	loaded  bool

	kv      kvstore.RefundLedgerStore
	storeID string
	loc     *time.Location
	now     func() time.Time
	bus     *events.Bus
	logger  *zap.Logger
}

func New(kv kvstore.RefundLedgerStore, opts Options) *Ledger {
	if opts.StoreID == "" {
		opts.StoreID = "main-store"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Ledger{
		entries: make(map[string]domain.RefundEntry),
		kv:      kv,
		storeID: opts.StoreID,
		loc:     opts.Location,
		now:     opts.Now,
		bus:     opts.Bus,
		logger:  opts.Logger.Named("refund"),
	}
}

// Init loads the persisted ledger into the cache.
func (l *Ledger) Init(ctx context.Context) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	var snapshot domain.RefundLedgerSnapshot
	err := retry.Once(ctx, func(ctx context.Context) error {
		var loadErr error
		snapshot, loadErr = l.kv.LoadRefundLedger(ctx, l.storeID)
		return loadErr
	})
	if err != nil {
		return fmt.Errorf("%w: load refund ledger: %v", domain.ErrPersistenceFailure, err)
	}

	l.mu.Lock()
	l.entries = maps.Clone(snapshot.Entries)
	if l.entries == nil {
		l.entries = make(map[string]domain.RefundEntry)
	}
	l.version = snapshot.Version
	l.loaded = true
	l.mu.Unlock()

	l.logger.Info("refund ledger loaded", zap.Int("entries", len(snapshot.Entries)), zap.Int("version", snapshot.Version))
	return nil
}

// Dispose drops the cache. The ledger must be re-initialized before reuse.
func (l *Ledger) Dispose() {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	l.entries = make(map[string]domain.RefundEntry)
	l.loaded = false
	l.mu.Unlock()
}

func (l *Ledger) RecordRefund(ctx context.Context, saleID string, amount decimal.Decimal, reason string) (domain.RefundEntry, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.RefundEntry{}, fmt.Errorf("%w: sale id required", domain.ErrInvalidRequest)
	}
	if !amount.IsPositive() {
		return domain.RefundEntry{}, fmt.Errorf("%w: refund amount must be positive, got %s", domain.ErrInvalidAmount, amount.String())
	}
	if !domain.HasMoneyPrecision(amount) {
		return domain.RefundEntry{}, fmt.Errorf("%w: refund amount %s has more than %d decimal places", domain.ErrInvalidAmount, amount.String(), domain.MoneyPlaces)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.RLock()
	loaded := l.loaded
	_, exists := l.entries[saleID]
	next := maps.Clone(l.entries)
	version := l.version
	l.mu.RUnlock()

	if !loaded {
		return domain.RefundEntry{}, ErrNotInitialized
	}
	if exists {
		l.logger.Warn("duplicate refund rejected", zap.String("sale_id", saleID), zap.String("amount", amount.String()))
		return domain.RefundEntry{}, fmt.Errorf("%w: %s", domain.ErrAlreadyRefunded, saleID)
	}

	entry := domain.RefundEntry{
		SaleID:         saleID,
		RefundedAmount: amount,
		Reason:         strings.TrimSpace(reason),
		Timestamp:      l.now().UTC(),
	}
	next[saleID] = entry

	if err := l.persist(ctx, next, version+1); err != nil {
		return domain.RefundEntry{}, err
	}

	l.mu.Lock()
	l.entries = next
	l.version = version + 1
	l.mu.Unlock()

	l.logger.Info("refund recorded", zap.String("sale_id", saleID), zap.String("amount", amount.StringFixed(domain.MoneyPlaces)))
	l.publish(saleID)
	return entry, nil
}

func (l *Ledger) IsRefunded(saleID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[saleID]
	return ok
}

func (l *Ledger) Entry(saleID string) (domain.RefundEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[saleID]
	return entry, ok
}

// ApplyRefunds returns copies of sales with refunded ones marked. The input
// slice and its records are left untouched.
func (l *Ledger) ApplyRefunds(sales []domain.SaleRecord) []domain.SaleRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.SaleRecord, 0, len(sales))
	for _, sale := range sales {
		dup := cloneSale(sale)
		if entry, ok := l.entries[sale.ID]; ok {
			dup.Status = domain.SaleStatusRefunded
			dup.RefundedAmount = entry.RefundedAmount
		}
		out = append(out, dup)
	}
	return out
}

// AggregateStats totals the ledger. Entries with a non-positive amount point
// at an upstream data bug; they are logged and skipped.
func (l *Ledger) AggregateStats() domain.RefundStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := domain.RefundStats{
		TotalRefunded: decimal.Zero,
		ByDate:        make(map[string]decimal.Decimal),
		BySale:        make(map[string]decimal.Decimal),
	}
	for saleID, entry := range l.entries {
		if !entry.RefundedAmount.IsPositive() {
			stats.SkippedCount++
			l.logger.Warn("skipping refund entry with non-positive amount",
				zap.String("sale_id", saleID),
				zap.String("amount", entry.RefundedAmount.String()))
			continue
		}
		day := entry.Timestamp.In(l.loc).Format(domain.DayLayout)
		stats.TotalRefunded = stats.TotalRefunded.Add(entry.RefundedAmount)
		stats.RefundCount++
		stats.ByDate[day] = stats.ByDate[day].Add(entry.RefundedAmount)
		stats.BySale[saleID] = entry.RefundedAmount
	}
	return stats
}

// ClearAll is the administrative reset. It also runs when a day is finalized.
func (l *Ledger) ClearAll(ctx context.Context) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.RLock()
	loaded := l.loaded
	version := l.version
	cleared := len(l.entries)
	l.mu.RUnlock()
	if !loaded {
		return ErrNotInitialized
	}

	empty := make(map[string]domain.RefundEntry)
	if err := l.persist(ctx, empty, version+1); err != nil {
		return err
	}

	l.mu.Lock()
	l.entries = empty
	l.version = version + 1
	l.mu.Unlock()

	l.logger.Info("refund ledger cleared", zap.Int("entries", cleared))
	l.publish("")
	return nil
}

func (l *Ledger) persist(ctx context.Context, entries map[string]domain.RefundEntry, version int) error {
	snapshot := domain.RefundLedgerSnapshot{
		Version:   version,
		UpdatedAt: l.now().UTC(),
		Entries:   entries,
	}
	err := retry.Once(ctx, func(ctx context.Context) error {
		return l.kv.SaveRefundLedger(ctx, l.storeID, snapshot)
	})
	if err != nil {
		l.logger.Error("refund ledger save failed", zap.Int("version", version), zap.Error(err))
		return fmt.Errorf("%w: save refund ledger: %v", domain.ErrPersistenceFailure, err)
	}
	return nil
}

func (l *Ledger) publish(saleID string) {
	l.bus.Publish(events.Event{
		Type:      events.RefundLedgerChanged,
		StoreID:   l.storeID,
		SubjectID: saleID,
		At:        l.now().UTC(),
	})
}

func cloneSale(src domain.SaleRecord) domain.SaleRecord {
	dup := src
	if src.Tender != nil {
		tender := *src.Tender
		dup.Tender = &tender
	}
	if src.CostTotal != nil {
		cost := *src.CostTotal
		dup.CostTotal = &cost
	}
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
