package kvstore

import (
	"context"
	"encoding/json"
	"errors"

	redis "github.com/redis/go-redis/v9"

	"tillclose/backend/internal/domain"
)

const ledgerKeyPrefix = "tillclose:refund-ledger:"

type RedisLedgerStore struct {
	client *redis.Client
}

func NewRedisLedgerStore(addr string, password string, db int) *RedisLedgerStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisLedgerStore{client: client}
}

func (s *RedisLedgerStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisLedgerStore) Close() error {
	return s.client.Close()
}

func (s *RedisLedgerStore) LoadRefundLedger(ctx context.Context, storeID string) (domain.RefundLedgerSnapshot, error) {
	val, err := s.client.Get(ctx, ledgerKey(storeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return domain.RefundLedgerSnapshot{}, err
	}
	return decodeSnapshot(val)
}

// SaveRefundLedger writes without expiry; the ledger lives until it is
// cleared explicitly or the day is finalized.
func (s *RedisLedgerStore) SaveRefundLedger(ctx context.Context, storeID string, snapshot domain.RefundLedgerSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, ledgerKey(storeID), payload, 0).Err()
}

func ledgerKey(storeID string) string {
	return ledgerKeyPrefix + storeID
}
