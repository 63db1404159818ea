package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tillclose/backend/internal/domain"
)

func TestDeleteDaySalesRemovesSalesAndResetsDrawers(t *testing.T) {
	databaseURL := os.Getenv("TILLCLOSE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TILLCLOSE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("store-it-%d", stamp)
	from := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM drawers WHERE store_id = $1`, storeID)
	})

	if err := s.SetDrawerFloat(ctx, domain.Drawer{
		StoreID:      storeID,
		CashierID:    "cashier-it",
		OpeningFloat: domain.NewUSD(decimal.NewFromInt(50)),
	}); err != nil {
		t.Fatalf("set drawer float: %v", err)
	}

	tender := domain.MoneyAmount{USD: decimal.RequireFromString("12.50"), ZIG: decimal.NewFromInt(27)}
	cost := decimal.RequireFromString("4.10")
	if _, err := s.CreateSale(ctx, domain.SaleRecord{
		ID:          fmt.Sprintf("sale-it-%d", stamp),
		StoreID:     storeID,
		CashierID:   "cashier-it",
		CreatedAt:   from.Add(10 * time.Hour),
		TotalAmount: decimal.RequireFromString("13.50"),
		Tender:      &tender,
		Items: []domain.SaleItem{
			{SKU: "SKU-IT", Name: "Bread", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("6.75"), UnitCost: &cost},
		},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := s.CreateSale(ctx, domain.SaleRecord{
		ID:          fmt.Sprintf("sale-legacy-it-%d", stamp),
		StoreID:     storeID,
		CashierID:   "cashier-it",
		CreatedAt:   from.Add(11 * time.Hour),
		TotalAmount: decimal.NewFromInt(3),
	}); err != nil {
		t.Fatalf("create legacy sale: %v", err)
	}

	sales, err := s.ListSessionSales(ctx, storeID, "cashier-it", from, to)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales, got %d", len(sales))
	}
	if sales[0].Tender == nil || !sales[0].Tender.USD.Equal(tender.USD) {
		t.Fatalf("expected tender round trip, got %+v", sales[0].Tender)
	}
	if len(sales[0].Items) != 1 || sales[0].Items[0].UnitCost == nil {
		t.Fatalf("expected one costed item, got %+v", sales[0].Items)
	}
	if sales[1].Tender != nil {
		t.Fatalf("expected legacy sale to stay unclassified, got %+v", sales[1].Tender)
	}

	result, err := s.DeleteDaySales(ctx, storeID, from, to)
	if err != nil {
		t.Fatalf("delete day sales: %v", err)
	}
	if result.DeletedCount != 2 || result.DrawersReset != 1 {
		t.Fatalf("unexpected delete result %+v", result)
	}

	again, err := s.DeleteDaySales(ctx, storeID, from, to)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if again.DeletedCount != 0 {
		t.Fatalf("expected empty day to delete nothing, got %d", again.DeletedCount)
	}

	drawers, err := s.ListDrawers(ctx, storeID)
	if err != nil {
		t.Fatalf("list drawers: %v", err)
	}
	if len(drawers) != 1 || !drawers[0].OpeningFloat.IsZero() {
		t.Fatalf("expected drawer float reset, got %+v", drawers)
	}
}
