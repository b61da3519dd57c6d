package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dexsurveil/internal/model"
)

// WatchlistStore is the persisted `watchlist_tokens` table (spec §6):
// tokens the Scanner has seen, keyed by address.
type WatchlistStore interface {
	All(ctx context.Context) ([]model.TokenRecord, error)
	Get(ctx context.Context, address string) (model.TokenRecord, bool, error)
	Upsert(ctx context.Context, record model.TokenRecord) error
}

// MemoryWatchlistStore is an in-process WatchlistStore, used in tests and
// when the cache backend is anything other than "redis".
type MemoryWatchlistStore struct {
	mu      sync.Mutex
	records map[string]model.TokenRecord
}

func NewMemoryWatchlistStore() *MemoryWatchlistStore {
	return &MemoryWatchlistStore{records: make(map[string]model.TokenRecord)}
}

func (s *MemoryWatchlistStore) All(ctx context.Context) ([]model.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TokenRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *MemoryWatchlistStore) Get(ctx context.Context, address string) (model.TokenRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[address]
	return r, ok, nil
}

func (s *MemoryWatchlistStore) Upsert(ctx context.Context, record model.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Address] = record
	return nil
}

// RedisWatchlistStore persists TokenRecords as JSON values in a Redis hash
// (`watchlist`), field = token address. Grounded on RedisZoneStateStore's
// hash-of-JSON shape.
type RedisWatchlistStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisWatchlistStore(rdb *redis.Client, logger *zap.Logger) *RedisWatchlistStore {
	return &RedisWatchlistStore{rdb: rdb, logger: logger}
}

const watchlistKey = "watchlist"

func (s *RedisWatchlistStore) All(ctx context.Context) ([]model.TokenRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, watchlistKey).Result()
	if err != nil {
		return nil, fmt.Errorf("state: HGetAll watchlist: %w", err)
	}
	out := make([]model.TokenRecord, 0, len(fields))
	for addr, raw := range fields {
		var r model.TokenRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			s.logger.Warn("state: skipping malformed watchlist record", zap.String("address", addr), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *RedisWatchlistStore) Get(ctx context.Context, address string) (model.TokenRecord, bool, error) {
	raw, err := s.rdb.HGet(ctx, watchlistKey, address).Result()
	if err == redis.Nil {
		return model.TokenRecord{}, false, nil
	}
	if err != nil {
		return model.TokenRecord{}, false, fmt.Errorf("state: HGet watchlist %s: %w", address, err)
	}
	var r model.TokenRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return model.TokenRecord{}, false, fmt.Errorf("state: unmarshaling watchlist record %s: %w", address, err)
	}
	return r, true, nil
}

func (s *RedisWatchlistStore) Upsert(ctx context.Context, record model.TokenRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("state: marshaling watchlist record: %w", err)
	}
	if err := s.rdb.HSet(ctx, watchlistKey, record.Address, data).Err(); err != nil {
		return fmt.Errorf("state: HSet watchlist %s: %w", record.Address, err)
	}
	return nil
}
