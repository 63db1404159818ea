package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tillclose/backend/internal/domain"
	"tillclose/backend/internal/store"
	"tillclose/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	mu              sync.RWMutex
	salesByID       map[string]domain.SaleRecord
	drawers         map[string]map[string]domain.Drawer
	deductions      []domain.StaffDeduction
	counts          map[string]domain.CashierCount
	sessions        map[string]domain.ReconciliationSession
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		salesByID:       make(map[string]domain.SaleRecord),
		drawers:         make(map[string]map[string]domain.Drawer),
		deductions:      make([]domain.StaffDeduction, 0, 16),
		counts:          make(map[string]domain.CashierCount),
		sessions:        make(map[string]domain.ReconciliationSession),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded builds a store for dev/demo mode with login accounts and an
// opening float for two tills. Credentials come from SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD; unset variables fall back to dev defaults with a
// warning. Production runs against PostgreSQL when DATABASE_URL is set.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	s.usersByUsername = seedUsers(logger)

	now := time.Now().UTC()
	s.drawers["main-store"] = map[string]domain.Drawer{
		"cashier": {StoreID: "main-store", CashierID: "cashier", OpeningFloat: domain.MoneyAmount{USD: decimal.NewFromInt(50), ZIG: decimal.NewFromInt(500)}, UpdatedAt: now},
		"admin":   {StoreID: "main-store", CashierID: "admin", OpeningFloat: domain.NewUSD(decimal.NewFromInt(20)), UpdatedAt: now},
	}
	return s
}

func seedUsers(logger *zap.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListSales(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.SaleRecord, error) {
	return s.filterSales(storeID, "", from, to), nil
}

func (s *Store) ListSessionSales(_ context.Context, storeID string, cashierID string, from time.Time, to time.Time) ([]domain.SaleRecord, error) {
	return s.filterSales(storeID, cashierID, from, to), nil
}

func (s *Store) filterSales(storeID, cashierID string, from, to time.Time) []domain.SaleRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SaleRecord, 0, 32)
	for _, sale := range s.salesByID {
		if sale.StoreID != storeID || !inWindow(sale.CreatedAt, from, to) {
			continue
		}
		if cashierID != "" && sale.CashierID != cashierID {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.SaleRecord) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result
}

func (s *Store) FindSale(_ context.Context, id string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.SaleRecord) (*domain.SaleRecord, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	if err := store.ValidateSale(sale); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrInvalidRecord
	}
	s.salesByID[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) ListDrawers(_ context.Context, storeID string) ([]domain.Drawer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drawers := make([]domain.Drawer, 0, len(s.drawers[storeID]))
	for _, drawer := range s.drawers[storeID] {
		drawers = append(drawers, drawer)
	}
	slices.SortFunc(drawers, func(a, b domain.Drawer) int {
		return strings.Compare(a.CashierID, b.CashierID)
	})
	return drawers, nil
}

func (s *Store) SetDrawerFloat(_ context.Context, drawer domain.Drawer) error {
	if strings.TrimSpace(drawer.StoreID) == "" || strings.TrimSpace(drawer.CashierID) == "" {
		return store.ErrInvalidRecord
	}
	if err := drawer.OpeningFloat.Validate(); err != nil {
		return err
	}
	if drawer.UpdatedAt.IsZero() {
		drawer.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drawers[drawer.StoreID]; !ok {
		s.drawers[drawer.StoreID] = make(map[string]domain.Drawer)
	}
	s.drawers[drawer.StoreID][drawer.CashierID] = drawer
	return nil
}

func (s *Store) CreateStaffDeduction(_ context.Context, deduction domain.StaffDeduction) (*domain.StaffDeduction, error) {
	if strings.TrimSpace(deduction.StoreID) == "" || strings.TrimSpace(deduction.CashierID) == "" {
		return nil, store.ErrInvalidRecord
	}
	if !deduction.AmountUSD.IsPositive() || !domain.HasMoneyPrecision(deduction.AmountUSD) {
		return nil, domain.ErrInvalidAmount
	}
	if deduction.ID == "" {
		deduction.ID = xid.New("ded")
	}
	if deduction.CreatedAt.IsZero() {
		deduction.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deductions = append(s.deductions, deduction)
	created := deduction
	return &created, nil
}

func (s *Store) ListStaffDeductions(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.StaffDeduction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StaffDeduction, 0, 8)
	for _, d := range s.deductions {
		if d.StoreID == storeID && inWindow(d.CreatedAt, from, to) {
			result = append(result, d)
		}
	}
	return result, nil
}

func (s *Store) SumStaffDeductions(ctx context.Context, storeID string, cashierID string, from time.Time, to time.Time) (decimal.Decimal, error) {
	list, err := s.ListStaffDeductions(ctx, storeID, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, d := range list {
		if d.CashierID == cashierID {
			total = total.Add(d.AmountUSD)
		}
	}
	return total, nil
}

func (s *Store) PersistCashierCount(_ context.Context, count domain.CashierCount) error {
	if count.StoreID == "" || count.CashierID == "" || count.Date == "" {
		return store.ErrInvalidRecord
	}
	if err := count.Counted.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[countKey(count.StoreID, count.Date, count.CashierID)] = count
	return nil
}

func (s *Store) ListCashierCounts(_ context.Context, storeID string, day string) ([]domain.CashierCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashierCount, 0, 8)
	for _, count := range s.counts {
		if count.StoreID == storeID && count.Date == day {
			result = append(result, count)
		}
	}
	slices.SortFunc(result, func(a, b domain.CashierCount) int {
		return strings.Compare(a.CashierID, b.CashierID)
	})
	return result, nil
}

func (s *Store) DeleteDaySales(_ context.Context, storeID string, from time.Time, to time.Time) (domain.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result domain.DeleteResult
	for id, sale := range s.salesByID {
		if sale.StoreID == storeID && inWindow(sale.CreatedAt, from, to) {
			delete(s.salesByID, id)
			result.DeletedCount++
		}
	}

	now := time.Now().UTC()
	for cashierID, drawer := range s.drawers[storeID] {
		drawer.OpeningFloat = domain.MoneyAmount{}
		drawer.UpdatedAt = now
		s.drawers[storeID][cashierID] = drawer
		result.DrawersReset++
	}
	return result, nil
}

func (s *Store) SaveReconciliationSession(_ context.Context, session domain.ReconciliationSession) error {
	if session.StoreID == "" || session.Day == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(session.StoreID, session.Day)] = cloneSession(session)
	return nil
}

func (s *Store) GetReconciliationSession(_ context.Context, storeID string, day string) (*domain.ReconciliationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionKey(storeID, day)]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSession(session)
	return &dup, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if !inWindow(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidRecord
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func inWindow(at, from, to time.Time) bool {
	return !at.Before(from) && at.Before(to)
}

func countKey(storeID, day, cashierID string) string {
	return storeID + "|" + day + "|" + cashierID
}

func sessionKey(storeID, day string) string {
	return storeID + "|" + day
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

func cloneSession(src domain.ReconciliationSession) domain.ReconciliationSession {
	dup := src
	if src.ClosedAt != nil {
		at := src.ClosedAt.UTC()
		dup.ClosedAt = &at
	}
	return dup
}
