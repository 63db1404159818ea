package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tillclose/backend/internal/domain"
	"tillclose/backend/internal/drawer"
	"tillclose/backend/internal/events"
	"tillclose/backend/internal/finalize"
	"tillclose/backend/internal/kvstore"
	"tillclose/backend/internal/margin"
	"tillclose/backend/internal/refund"
	"tillclose/backend/internal/store"
	"tillclose/backend/internal/variance"
	"tillclose/backend/internal/verification"
	"tillclose/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultStoreID  string
	Location        *time.Location
	Rates           domain.RateTable
	FinalizeTimeout time.Duration
	Closer          finalize.Closer
	Now             func() time.Time
	Logger          *zap.Logger
}

// Service is the reconciliation engine for one store. It owns the refund
// ledger cache and the current day's counts; callers reach them only through
// its methods.
type Service struct {
	repo     store.Repository
	ledger   *refund.Ledger
	calc     *drawer.Calculator
	variance *variance.Engine
	tracker  *verification.Tracker
	machine  *finalize.Machine
	bus      *events.Bus

	// gate is held shared by writes that add to the day and exclusively while
	// finalization takes its view of the active cashiers.
	gate sync.RWMutex

	storeID string
	loc     *time.Location
	rates   domain.RateTable
	now     func() time.Time
	logger  *zap.Logger
}

func New(repo store.Repository, kv kvstore.RefundLedgerStore, opts Options) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
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

	s := &Service{
		repo:    repo,
		storeID: opts.DefaultStoreID,
		loc:     opts.Location,
		rates:   opts.Rates,
		now:     opts.Now,
		logger:  opts.Logger.Named("service"),
	}
	s.bus = events.NewBus(opts.Logger)
	s.ledger = refund.New(kv, refund.Options{
		StoreID:  s.storeID,
		Location: s.loc,
		Now:      s.now,
		Bus:      s.bus,
		Logger:   opts.Logger,
	})
	s.calc = drawer.NewCalculator(s.ledger)
	s.variance = variance.NewEngine(opts.Rates)
	s.tracker = verification.NewTracker(s.storeID, s.today(), s.now, s.bus)
	s.machine = finalize.New(&finalizeStore{repo: repo, loc: s.loc}, s.tracker, s.ledger, opts.Closer, finalize.Options{
		StoreID: s.storeID,
		Timeout: opts.FinalizeTimeout,
		Prepare: s.sealDay,
		Now:     s.now,
		Bus:     s.bus,
		Logger:  opts.Logger,
	})
	return s
}

// Init loads the refund ledger and restores a day that was already closed
// before a restart.
func (s *Service) Init(ctx context.Context) error {
	if err := s.ledger.Init(ctx); err != nil {
		return err
	}

	day := s.today()
	session, err := s.repo.GetReconciliationSession(ctx, s.storeID, day)
	switch {
	case err == nil:
		s.machine.Restore(*session)
	case errors.Is(err, domain.ErrNotFound):
		s.machine.OpenDay(day)
	default:
		return fmt.Errorf("%w: load reconciliation session: %v", domain.ErrPersistenceFailure, err)
	}

	if err := s.refreshActive(ctx, day); err != nil {
		return err
	}
	s.logger.Info("engine ready", zap.String("store_id", s.storeID), zap.String("day", day), zap.String("state", s.machine.State()))
	return nil
}

// Dispose releases the ledger cache and drops subscribers.
func (s *Service) Dispose() {
	s.ledger.Dispose()
	s.bus.Close()
}

func (s *Service) StoreID() string {
	return s.storeID
}

// Subscribe registers fn for ledger, verification and day-closed changes.
func (s *Service) Subscribe(fn events.Handler) func() {
	return s.bus.Subscribe(fn)
}

func (s *Service) RecordSale(ctx context.Context, sale domain.SaleRecord) (domain.SaleRecord, error) {
	if err := s.checkTender(sale); err != nil {
		return domain.SaleRecord{}, err
	}
	day := s.ensureDay()
	s.gate.RLock()
	defer s.gate.RUnlock()
	if err := s.requireOpen(); err != nil {
		return domain.SaleRecord{}, err
	}
	if strings.TrimSpace(sale.ID) == "" {
		sale.ID = xid.New("sale")
	}
	sale.StoreID = s.storeID
	sale.CashierID = strings.TrimSpace(sale.CashierID)
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now().UTC()
	}
	sale.Status = domain.SaleStatusCompleted
	sale.RefundedAmount = decimal.Zero

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	if err := s.refreshActive(ctx, day); err != nil {
		s.logger.Warn("active cashier refresh failed", zap.Error(err))
	}
	return *created, nil
}

// SessionSales returns the cashier's sales for the current day with refunds
// applied.
func (s *Service) SessionSales(ctx context.Context, cashierID string) ([]domain.SaleRecord, error) {
	day := s.ensureDay()
	from, to, err := s.dayWindow(day)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSessionSales(ctx, s.storeID, cashierID, from, to)
	if err != nil {
		return nil, err
	}
	return s.ledger.ApplyRefunds(sales), nil
}

// RecordRefund refunds a sale once. The amount must be positive and may not
// exceed the sale total.
func (s *Service) RecordRefund(ctx context.Context, req domain.RefundRequest) (domain.RefundEntry, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" {
		return domain.RefundEntry{}, fmt.Errorf("%w: sale_id is required", domain.ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return domain.RefundEntry{}, fmt.Errorf("%w: refund amount must be positive", domain.ErrInvalidAmount)
	}
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.machine.InProgress() {
		return domain.RefundEntry{}, domain.ErrAlreadyInProgress
	}

	sale, err := s.repo.FindSale(ctx, req.SaleID)
	if err != nil {
		return domain.RefundEntry{}, err
	}
	if sale.StoreID != s.storeID {
		return domain.RefundEntry{}, fmt.Errorf("%w: sale %s", domain.ErrNotFound, req.SaleID)
	}
	if req.Amount.GreaterThan(sale.TotalAmount) {
		return domain.RefundEntry{}, fmt.Errorf("%w: refund %s exceeds sale total %s", domain.ErrInvalidAmount,
			req.Amount.StringFixed(domain.MoneyPlaces), sale.TotalAmount.StringFixed(domain.MoneyPlaces))
	}

	entry, err := s.ledger.RecordRefund(ctx, req.SaleID, req.Amount, req.Reason)
	if err != nil {
		return domain.RefundEntry{}, err
	}
	s.logAudit(ctx, "refund.create", "sale", entry.SaleID,
		fmt.Sprintf("amount=%s reason=%s", entry.RefundedAmount.StringFixed(domain.MoneyPlaces), entry.Reason))
	return entry, nil
}

func (s *Service) IsRefunded(saleID string) bool {
	return s.ledger.IsRefunded(saleID)
}

func (s *Service) RefundEntry(saleID string) (domain.RefundEntry, error) {
	entry, ok := s.ledger.Entry(saleID)
	if !ok {
		return domain.RefundEntry{}, fmt.Errorf("%w: no refund for sale %s", domain.ErrNotFound, saleID)
	}
	return entry, nil
}

func (s *Service) RefundStats() domain.RefundStats {
	return s.ledger.AggregateStats()
}

// ClearRefunds is the administrative reset of the refund ledger.
func (s *Service) ClearRefunds(ctx context.Context) error {
	before := s.ledger.AggregateStats().RefundCount
	if err := s.ledger.ClearAll(ctx); err != nil {
		return err
	}
	s.logAudit(ctx, "refund.clear_all", "refund_ledger", s.storeID, fmt.Sprintf("entries=%d", before))
	return nil
}

func (s *Service) SetOpeningFloat(ctx context.Context, cashierID string, req domain.DrawerFloatRequest) (domain.Drawer, error) {
	cashierID = strings.TrimSpace(cashierID)
	if cashierID == "" {
		return domain.Drawer{}, fmt.Errorf("%w: cashier_id is required", domain.ErrInvalidRequest)
	}
	s.ensureDay()
	s.gate.RLock()
	defer s.gate.RUnlock()
	if err := s.requireOpen(); err != nil {
		return domain.Drawer{}, err
	}
	d := domain.Drawer{StoreID: s.storeID, CashierID: cashierID, OpeningFloat: req.OpeningFloat, UpdatedAt: s.now().UTC()}
	if err := s.repo.SetDrawerFloat(ctx, d); err != nil {
		return domain.Drawer{}, err
	}
	s.logAudit(ctx, "drawer.set_float", "drawer", cashierID, fmt.Sprintf("usd=%s zig=%s rand=%s card=%s",
		d.OpeningFloat.USD.String(), d.OpeningFloat.ZIG.String(), d.OpeningFloat.Rand.String(), d.OpeningFloat.Card.String()))
	return d, nil
}

func (s *Service) RecordStaffDeduction(ctx context.Context, req domain.StaffDeductionRequest) (domain.StaffDeduction, error) {
	req.CashierID = strings.TrimSpace(req.CashierID)
	if req.CashierID == "" {
		return domain.StaffDeduction{}, fmt.Errorf("%w: cashier_id is required", domain.ErrInvalidRequest)
	}
	if !req.AmountUSD.IsPositive() || !domain.HasMoneyPrecision(req.AmountUSD) {
		return domain.StaffDeduction{}, fmt.Errorf("%w: deduction %s", domain.ErrInvalidAmount, req.AmountUSD.String())
	}
	day := s.ensureDay()
	s.gate.RLock()
	defer s.gate.RUnlock()
	if err := s.requireOpen(); err != nil {
		return domain.StaffDeduction{}, err
	}

	created, err := s.repo.CreateStaffDeduction(ctx, domain.StaffDeduction{
		ID:          xid.New("ded"),
		StoreID:     s.storeID,
		CashierID:   req.CashierID,
		AmountUSD:   req.AmountUSD,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return domain.StaffDeduction{}, err
	}
	if err := s.refreshActive(ctx, day); err != nil {
		s.logger.Warn("active cashier refresh failed", zap.Error(err))
	}
	s.logAudit(ctx, "deduction.create", "staff_deduction", created.ID,
		fmt.Sprintf("cashier=%s amount_usd=%s", created.CashierID, created.AmountUSD.StringFixed(domain.MoneyPlaces)))
	return *created, nil
}

// DrawerExpectation computes what the cashier's drawer should hold now.
func (s *Service) DrawerExpectation(ctx context.Context, cashierID string) (domain.DrawerExpectation, error) {
	cashierID = strings.TrimSpace(cashierID)
	if cashierID == "" {
		return domain.DrawerExpectation{}, fmt.Errorf("%w: cashier_id is required", domain.ErrInvalidRequest)
	}
	day := s.ensureDay()
	from, to, err := s.dayWindow(day)
	if err != nil {
		return domain.DrawerExpectation{}, err
	}

	sales, err := s.repo.ListSessionSales(ctx, s.storeID, cashierID, from, to)
	if err != nil {
		return domain.DrawerExpectation{}, err
	}
	deductions, err := s.repo.SumStaffDeductions(ctx, s.storeID, cashierID, from, to)
	if err != nil {
		return domain.DrawerExpectation{}, err
	}
	openingFloat, err := s.openingFloat(ctx, cashierID)
	if err != nil {
		return domain.DrawerExpectation{}, err
	}

	result, err := s.calc.Expectation(cashierID, sales, openingFloat, deductions)
	if err != nil {
		return domain.DrawerExpectation{}, err
	}
	if result.DeductionExceedsExpected {
		s.logger.Warn("deductions exceed expected cash",
			zap.String("cashier_id", cashierID), zap.String("deductions_usd", deductions.String()))
	}
	if len(result.UnclassifiedSaleIDs) > 0 {
		s.logger.Warn("sales without tender breakdown need review",
			zap.String("cashier_id", cashierID), zap.Strings("sale_ids", result.UnclassifiedSaleIDs))
	}
	return result, nil
}

// RecordCount saves a cashier's drawer count. Draft counts are kept but do
// not verify the cashier.
func (s *Service) RecordCount(ctx context.Context, req domain.CountRequest) (domain.CashierCount, error) {
	req.CashierID = strings.TrimSpace(req.CashierID)
	if req.CashierID == "" {
		return domain.CashierCount{}, fmt.Errorf("%w: cashier_id is required", domain.ErrInvalidRequest)
	}
	if req.Counted == nil {
		return domain.CashierCount{}, fmt.Errorf("%w: counted amount is required", domain.ErrInvalidAmount)
	}
	day := s.ensureDay()
	if err := s.machine.BeginVerification(); err != nil {
		return domain.CashierCount{}, err
	}
	if err := s.refreshActive(ctx, day); err != nil {
		return domain.CashierCount{}, err
	}

	var (
		count domain.CashierCount
		err   error
	)
	if req.Draft {
		count, err = s.tracker.SaveDraft(req.CashierID, *req.Counted, req.Notes)
	} else {
		count, err = s.tracker.RecordCount(req.CashierID, *req.Counted, req.Notes)
	}
	if err != nil {
		return domain.CashierCount{}, err
	}
	s.logAudit(ctx, "count.save", "cashier_count", count.CashierID,
		fmt.Sprintf("status=%s usd=%s zig=%s rand=%s card=%s", count.Status,
			count.Counted.USD.String(), count.Counted.ZIG.String(), count.Counted.Rand.String(), count.Counted.Card.String()))
	return count, nil
}

func (s *Service) Progress(ctx context.Context) (domain.VerificationProgress, error) {
	day := s.ensureDay()
	if err := s.refreshActive(ctx, day); err != nil {
		return domain.VerificationProgress{}, err
	}
	return s.tracker.Progress(), nil
}

func (s *Service) IsComplete(ctx context.Context) (bool, error) {
	day := s.ensureDay()
	if err := s.refreshActive(ctx, day); err != nil {
		return false, err
	}
	return s.tracker.IsComplete(), nil
}

func (s *Service) Counts() []domain.CashierCount {
	return s.tracker.Counts()
}

func (s *Service) CashierVariance(ctx context.Context, cashierID string) (domain.VarianceResult, error) {
	expectation, err := s.DrawerExpectation(ctx, cashierID)
	if err != nil {
		return domain.VarianceResult{}, err
	}
	return s.variance.ComputeVariance(expectation.CashierID, expectation.Expected, s.tracker.CompletedCount(expectation.CashierID)), nil
}

// DayVariance reports every cashier that was active today or has counted.
func (s *Service) DayVariance(ctx context.Context) (domain.DayVarianceReport, error) {
	day := s.ensureDay()
	active, err := s.activeCashiers(ctx, day)
	if err != nil {
		return domain.DayVarianceReport{}, err
	}
	s.tracker.SetActiveCashiers(active)

	ids := slices.Clone(active)
	for _, count := range s.tracker.Counts() {
		if !slices.Contains(ids, count.CashierID) {
			ids = append(ids, count.CashierID)
		}
	}
	slices.Sort(ids)

	results := make([]domain.VarianceResult, 0, len(ids))
	for _, id := range ids {
		result, err := s.CashierVariance(ctx, id)
		if err != nil {
			return domain.DayVarianceReport{}, err
		}
		results = append(results, result)
	}

	return domain.DayVarianceReport{
		StoreID:  s.storeID,
		Date:     day,
		Summary:  s.variance.ComputeDayVariance(results),
		Cashiers: results,
	}, nil
}

// Finalize closes the current business day.
func (s *Service) Finalize(ctx context.Context, req domain.FinalizeRequest) (domain.FinalizeResult, error) {
	day := s.ensureDay()
	result, err := s.machine.Finalize(ctx, day, req.Notes)
	if err != nil {
		s.logger.Warn("finalize refused or failed", zap.String("day", day), zap.String("kind", domain.KindOf(err)), zap.Error(err))
		return domain.FinalizeResult{}, err
	}
	s.logAudit(ctx, "day.finalize", "reconciliation_session", day,
		fmt.Sprintf("deleted=%d drawers_reset=%d counts=%d", result.DeletedCount, result.DrawersReset, result.PersistedCounts))
	return result, nil
}

func (s *Service) AbortIfStuck(ctx context.Context) domain.AbortResponse {
	aborted := s.machine.AbortIfStuck()
	if aborted {
		s.logAudit(ctx, "day.finalize_abort", "reconciliation_session", s.machine.Day(), "stuck finalization aborted")
	}
	return domain.AbortResponse{Aborted: aborted, Status: s.DayStatus()}
}

func (s *Service) DayStatus() domain.DayStatus {
	day := s.ensureDay()
	return domain.DayStatus{
		StoreID:    s.storeID,
		Day:        day,
		State:      s.machine.State(),
		InProgress: s.machine.InProgress(),
		Progress:   s.tracker.Progress(),
		Complete:   s.tracker.IsComplete(),
	}
}

// MarginReport aggregates sales between two business days, both inclusive.
// Empty bounds default to the current day.
func (s *Service) MarginReport(ctx context.Context, fromDay string, toDay string) (domain.MarginSummary, error) {
	today := s.ensureDay()
	fromDay = defaultString(fromDay, today)
	toDay = defaultString(toDay, fromDay)

	from, _, err := s.dayWindow(fromDay)
	if err != nil {
		return domain.MarginSummary{}, err
	}
	_, to, err := s.dayWindow(toDay)
	if err != nil {
		return domain.MarginSummary{}, err
	}
	if !from.Before(to) {
		return domain.MarginSummary{}, fmt.Errorf("%w: from must not be after to", domain.ErrInvalidRequest)
	}

	sales, err := s.repo.ListSales(ctx, s.storeID, from, to)
	if err != nil {
		return domain.MarginSummary{}, err
	}
	return margin.Aggregate(s.ledger.ApplyRefunds(sales)), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	from, to, err := s.dayWindow(defaultString(date, s.ensureDay()))
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, s.storeID, from, to, limit)
}

func (s *Service) today() string {
	return s.now().In(s.loc).Format(domain.DayLayout)
}

// ensureDay rolls the tracker and state machine over to a new calendar day.
// A day that still holds counts and is not closed stays current, so counting
// past midnight finishes the day it started on.
func (s *Service) ensureDay() string {
	today := s.today()
	current := s.tracker.Day()
	if current == today || s.machine.InProgress() {
		return current
	}
	if s.machine.State() != domain.DayStateClosed && len(s.tracker.Counts()) > 0 {
		return current
	}
	s.tracker.Reset(today)
	s.machine.OpenDay(today)
	s.logger.Info("business day rolled over", zap.String("from", current), zap.String("to", today))
	return today
}

// requireOpen refuses writes to a closed day and to a day being finalized.
// Callers hold gate shared.
func (s *Service) requireOpen() error {
	if s.machine.InProgress() {
		return domain.ErrAlreadyInProgress
	}
	if s.machine.State() == domain.DayStateClosed {
		return fmt.Errorf("%w: %s", domain.ErrDayClosed, s.machine.Day())
	}
	return nil
}

// sealDay runs inside finalization after the machine entered Finalizing.
// Writes already past requireOpen finish first; the active set read here is
// final for the run.
func (s *Service) sealDay(ctx context.Context, day string) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	return s.refreshActive(ctx, day)
}

// checkTender requires a sale's tender breakdown to add up to its total, so
// drawer expectations reconcile with sales. USD cash and card are compared
// exactly. ZIG and Rand need the rate table and may differ by one cent of
// conversion rounding; without rates they cannot be compared.
func (s *Service) checkTender(sale domain.SaleRecord) error {
	if sale.Tender == nil {
		return nil
	}
	tender := *sale.Tender
	if tender.ZIG.IsZero() && tender.Rand.IsZero() {
		if sum := tender.USD.Add(tender.Card); !sum.Equal(sale.TotalAmount) {
			return fmt.Errorf("%w: tender %s does not match sale total %s", domain.ErrInvalidAmount,
				sum.StringFixed(domain.MoneyPlaces), sale.TotalAmount.StringFixed(domain.MoneyPlaces))
		}
		return nil
	}
	if s.rates.IsEmpty() {
		return nil
	}
	equivalent := tender.USDEquivalent(s.rates)
	if equivalent.Sub(sale.TotalAmount).Abs().GreaterThan(tenderTolerance) {
		return fmt.Errorf("%w: tender worth %s USD does not match sale total %s", domain.ErrInvalidAmount,
			equivalent.StringFixed(domain.MoneyPlaces), sale.TotalAmount.StringFixed(domain.MoneyPlaces))
	}
	return nil
}

var tenderTolerance = decimal.New(1, -domain.MoneyPlaces)

func (s *Service) dayWindow(day string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(domain.DayLayout, strings.TrimSpace(day), s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrInvalidRequest)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// activeCashiers lists everyone with a sale (refunded or not) or a staff
// deduction on day.
func (s *Service) activeCashiers(ctx context.Context, day string) ([]string, error) {
	from, to, err := s.dayWindow(day)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, s.storeID, from, to)
	if err != nil {
		return nil, err
	}
	deductions, err := s.repo.ListStaffDeductions(ctx, s.storeID, from, to)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(sales))
	for _, sale := range sales {
		seen[sale.CashierID] = struct{}{}
	}
	for _, d := range deductions {
		seen[d.CashierID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Service) refreshActive(ctx context.Context, day string) error {
	ids, err := s.activeCashiers(ctx, day)
	if err != nil {
		return err
	}
	s.tracker.SetActiveCashiers(ids)
	return nil
}

func (s *Service) openingFloat(ctx context.Context, cashierID string) (domain.MoneyAmount, error) {
	drawers, err := s.repo.ListDrawers(ctx, s.storeID)
	if err != nil {
		return domain.MoneyAmount{}, err
	}
	for _, d := range drawers {
		if d.CashierID == cashierID {
			return d.OpeningFloat, nil
		}
	}
	return domain.MoneyAmount{}, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       s.storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action), zap.String("entity", entityType+"/"+entityID), zap.Error(err))
	}
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

var _ finalize.Store = (*finalizeStore)(nil)

// finalizeStore adapts the repository to the finalize package, which works in
// business days rather than time windows.
type finalizeStore struct {
	repo store.Repository
	loc  *time.Location
}

func (f *finalizeStore) PersistCashierCount(ctx context.Context, count domain.CashierCount) error {
	return f.repo.PersistCashierCount(ctx, count)
}

func (f *finalizeStore) DeleteDaySales(ctx context.Context, storeID, day string) (domain.DeleteResult, error) {
	start, err := time.ParseInLocation(domain.DayLayout, day, f.loc)
	if err != nil {
		return domain.DeleteResult{}, fmt.Errorf("%w: bad business day %q", domain.ErrInvalidRequest, day)
	}
	return f.repo.DeleteDaySales(ctx, storeID, start, start.AddDate(0, 0, 1))
}

func (f *finalizeStore) SaveReconciliationSession(ctx context.Context, session domain.ReconciliationSession) error {
	return f.repo.SaveReconciliationSession(ctx, session)
}
