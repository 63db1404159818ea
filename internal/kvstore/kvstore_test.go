package kvstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillclose/backend/internal/domain"
)

func sampleSnapshot() domain.RefundLedgerSnapshot {
	return domain.RefundLedgerSnapshot{
		Version:   3,
		UpdatedAt: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
		Entries: map[string]domain.RefundEntry{
			"sale-1": {
				SaleID:         "sale-1",
				RefundedAmount: decimal.RequireFromString("12.50"),
				Reason:         "damaged",
				Timestamp:      time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
			},
		},
	}
}

func TestMemoryLedgerStoreIsolatesSnapshots(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLedgerStore()

	empty, err := s.LoadRefundLedger(ctx, "main-store")
	require.NoError(t, err)
	assert.NotNil(t, empty.Entries)
	assert.Empty(t, empty.Entries)

	snapshot := sampleSnapshot()
	require.NoError(t, s.SaveRefundLedger(ctx, "main-store", snapshot))
	snapshot.Entries["sale-2"] = domain.RefundEntry{SaleID: "sale-2"}

	loaded, err := s.LoadRefundLedger(ctx, "main-store")
	require.NoError(t, err)
	assert.Len(t, loaded.Entries, 1)
	assert.True(t, loaded.Entries["sale-1"].RefundedAmount.Equal(decimal.RequireFromString("12.5")))
}

func TestRedisLedgerStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("TILLCLOSE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TILLCLOSE_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	s := NewRedisLedgerStore(addr, "", 0)
	t.Cleanup(func() {
		_ = s.client.Del(ctx, ledgerKey("it-store")).Err()
		_ = s.Close()
	})
	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.SaveRefundLedger(ctx, "it-store", sampleSnapshot()))
	loaded, err := s.LoadRefundLedger(ctx, "it-store")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Version)
	assert.Equal(t, "damaged", loaded.Entries["sale-1"].Reason)
}
