package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tillclose/backend/internal/domain"
	"tillclose/backend/internal/store"
	"tillclose/backend/internal/xid"
)

//go:embed schema.sql
var schema string

var _ store.Repository = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates any missing tables. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

const saleColumns = `
	id, store_id, cashier_id, created_at, total_amount,
	tender_zig, tender_usd, tender_rand, tender_card,
	cost_total, status, refunded_amount`

func (s *Store) ListSales(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.SaleRecord, error) {
	return s.querySales(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC, id ASC
	`, storeID, from, to)
}

func (s *Store) ListSessionSales(ctx context.Context, storeID string, cashierID string, from time.Time, to time.Time) ([]domain.SaleRecord, error) {
	return s.querySales(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE store_id = $1 AND cashier_id = $2 AND created_at >= $3 AND created_at < $4
		ORDER BY created_at ASC, id ASC
	`, storeID, cashierID, from, to)
}

func (s *Store) FindSale(ctx context.Context, id string) (*domain.SaleRecord, error) {
	sales, err := s.querySales(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrNotFound
	}
	return &sales[0], nil
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
		index[sale.ID] = i
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, sku, name, quantity, unit_price, unit_cost
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var saleID string
		var item domain.SaleItem
		var unitCost decimal.NullDecimal
		if err := itemRows.Scan(&saleID, &item.SKU, &item.Name, &item.Quantity, &item.UnitPrice, &unitCost); err != nil {
			return nil, err
		}
		if unitCost.Valid {
			cost := unitCost.Decimal
			item.UnitCost = &cost
		}
		i := index[saleID]
		sales[i].Items = append(sales[i].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSale(row scanner) (domain.SaleRecord, error) {
	var sale domain.SaleRecord
	var zig, usd, rand, card, cost decimal.NullDecimal
	err := row.Scan(
		&sale.ID,
		&sale.StoreID,
		&sale.CashierID,
		&sale.CreatedAt,
		&sale.TotalAmount,
		&zig,
		&usd,
		&rand,
		&card,
		&cost,
		&sale.Status,
		&sale.RefundedAmount,
	)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	// A tender is stored whole or not at all; a partial row is unclassified.
	if zig.Valid && usd.Valid && rand.Valid && card.Valid {
		sale.Tender = &domain.MoneyAmount{ZIG: zig.Decimal, USD: usd.Decimal, Rand: rand.Decimal, Card: card.Decimal}
	}
	if cost.Valid {
		c := cost.Decimal
		sale.CostTotal = &c
	}
	sale.Items = []domain.SaleItem{}
	return sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.SaleRecord) (*domain.SaleRecord, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var zig, usd, rand, card any
	if sale.Tender != nil {
		zig, usd, rand, card = sale.Tender.ZIG, sale.Tender.USD, sale.Tender.Rand, sale.Tender.Card
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.StoreID, sale.CashierID, sale.CreatedAt, sale.TotalAmount,
		zig, usd, rand, card, nullDecimal(sale.CostTotal), sale.Status, sale.RefundedAmount)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRecord
		}
		return nil, err
	}

	for _, item := range sale.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, sku, name, quantity, unit_price, unit_cost)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, item.SKU, item.Name, item.Quantity, item.UnitPrice, nullDecimal(item.UnitCost)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) ListDrawers(ctx context.Context, storeID string) ([]domain.Drawer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, cashier_id, float_zig, float_usd, float_rand, float_card, updated_at
		FROM drawers
		WHERE store_id = $1
		ORDER BY cashier_id ASC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drawers := make([]domain.Drawer, 0, 8)
	for rows.Next() {
		var d domain.Drawer
		f := &d.OpeningFloat
		if err := rows.Scan(&d.StoreID, &d.CashierID, &f.ZIG, &f.USD, &f.Rand, &f.Card, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.UpdatedAt = d.UpdatedAt.UTC()
		drawers = append(drawers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drawers, nil
}

func (s *Store) SetDrawerFloat(ctx context.Context, drawer domain.Drawer) error {
	if strings.TrimSpace(drawer.StoreID) == "" || strings.TrimSpace(drawer.CashierID) == "" {
		return store.ErrInvalidRecord
	}
	if err := drawer.OpeningFloat.Validate(); err != nil {
		return err
	}
	if drawer.UpdatedAt.IsZero() {
		drawer.UpdatedAt = time.Now().UTC()
	}

	f := drawer.OpeningFloat
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drawers (store_id, cashier_id, float_zig, float_usd, float_rand, float_card, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (store_id, cashier_id)
		DO UPDATE SET float_zig = EXCLUDED.float_zig, float_usd = EXCLUDED.float_usd,
			float_rand = EXCLUDED.float_rand, float_card = EXCLUDED.float_card,
			updated_at = EXCLUDED.updated_at
	`, drawer.StoreID, drawer.CashierID, f.ZIG, f.USD, f.Rand, f.Card, drawer.UpdatedAt)
	return err
}

func (s *Store) CreateStaffDeduction(ctx context.Context, deduction domain.StaffDeduction) (*domain.StaffDeduction, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_deductions (id, store_id, cashier_id, amount_usd, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, deduction.ID, deduction.StoreID, deduction.CashierID, deduction.AmountUSD, deduction.Description, deduction.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := deduction
	return &created, nil
}

func (s *Store) ListStaffDeductions(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.StaffDeduction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, cashier_id, amount_usd, description, created_at
		FROM staff_deductions
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`, storeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]domain.StaffDeduction, 0, 8)
	for rows.Next() {
		var d domain.StaffDeduction
		if err := rows.Scan(&d.ID, &d.StoreID, &d.CashierID, &d.AmountUSD, &d.Description, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) SumStaffDeductions(ctx context.Context, storeID string, cashierID string, from time.Time, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_usd), 0)
		FROM staff_deductions
		WHERE store_id = $1 AND cashier_id = $2 AND created_at >= $3 AND created_at < $4
	`, storeID, cashierID, from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Store) PersistCashierCount(ctx context.Context, count domain.CashierCount) error {
	if count.StoreID == "" || count.CashierID == "" || count.Date == "" {
		return store.ErrInvalidRecord
	}
	if err := count.Counted.Validate(); err != nil {
		return err
	}
	if count.UpdatedAt.IsZero() {
		count.UpdatedAt = time.Now().UTC()
	}

	c := count.Counted
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cashier_counts (
			store_id, day, cashier_id, counted_zig, counted_usd, counted_rand, counted_card,
			notes, status, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (store_id, day, cashier_id)
		DO UPDATE SET counted_zig = EXCLUDED.counted_zig, counted_usd = EXCLUDED.counted_usd,
			counted_rand = EXCLUDED.counted_rand, counted_card = EXCLUDED.counted_card,
			notes = EXCLUDED.notes, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`, count.StoreID, count.Date, count.CashierID, c.ZIG, c.USD, c.Rand, c.Card, count.Notes, count.Status, count.UpdatedAt)
	return err
}

func (s *Store) ListCashierCounts(ctx context.Context, storeID string, day string) ([]domain.CashierCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, day, cashier_id, counted_zig, counted_usd, counted_rand, counted_card,
			notes, status, updated_at
		FROM cashier_counts
		WHERE store_id = $1 AND day = $2
		ORDER BY cashier_id ASC
	`, storeID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]domain.CashierCount, 0, 8)
	for rows.Next() {
		var count domain.CashierCount
		c := &count.Counted
		if err := rows.Scan(&count.StoreID, &count.Date, &count.CashierID, &c.ZIG, &c.USD, &c.Rand, &c.Card,
			&count.Notes, &count.Status, &count.UpdatedAt); err != nil {
			return nil, err
		}
		count.UpdatedAt = count.UpdatedAt.UTC()
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Store) DeleteDaySales(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DeleteResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.DeleteResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM sales
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
	`, storeID, from, to)
	if err != nil {
		return domain.DeleteResult{}, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return domain.DeleteResult{}, err
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE drawers
		SET float_zig = 0, float_usd = 0, float_rand = 0, float_card = 0, updated_at = now()
		WHERE store_id = $1
	`, storeID)
	if err != nil {
		return domain.DeleteResult{}, err
	}
	reset, err := res.RowsAffected()
	if err != nil {
		return domain.DeleteResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.DeleteResult{}, err
	}
	return domain.DeleteResult{DeletedCount: int(deleted), DrawersReset: int(reset)}, nil
}

func (s *Store) SaveReconciliationSession(ctx context.Context, session domain.ReconciliationSession) error {
	if session.StoreID == "" || session.Day == "" {
		return store.ErrInvalidRecord
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_sessions (store_id, day, state, notes, verified_cashiers, deleted_sales, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (store_id, day)
		DO UPDATE SET state = EXCLUDED.state, notes = EXCLUDED.notes,
			verified_cashiers = EXCLUDED.verified_cashiers, deleted_sales = EXCLUDED.deleted_sales,
			closed_at = EXCLUDED.closed_at
	`, session.StoreID, session.Day, session.State, session.Notes, session.VerifiedCashiers, session.DeletedSales, nullTime(session.ClosedAt))
	return err
}

func (s *Store) GetReconciliationSession(ctx context.Context, storeID string, day string) (*domain.ReconciliationSession, error) {
	var session domain.ReconciliationSession
	var closedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT store_id, day, state, notes, verified_cashiers, deleted_sales, closed_at
		FROM reconciliation_sessions
		WHERE store_id = $1 AND day = $2
	`, storeID, day).Scan(&session.StoreID, &session.Day, &session.State, &session.Notes,
		&session.VerifiedCashiers, &session.DeletedSales, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosedAt = &at
	}
	return &session, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRecord
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
