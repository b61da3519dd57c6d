package state

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dexsurveil/internal/model"
)

// RedisZoneStateStore persists zone states in a Redis hash per token
// (`zonestate:{token}`), field = zone price formatted to a fixed
// precision, value = JSON-encoded state. The 0.1% collapse tolerance
// requires scanning the token's fields on every write, same as the
// in-memory store's linear scan.
type RedisZoneStateStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisZoneStateStore wraps an existing *redis.Client.
func NewRedisZoneStateStore(rdb *redis.Client, logger *zap.Logger) *RedisZoneStateStore {
	return &RedisZoneStateStore{rdb: rdb, logger: logger}
}

func zoneStateKey(token string) string { return fmt.Sprintf("zonestate:%s", token) }

func (s *RedisZoneStateStore) Get(ctx context.Context, token string, zonePrice float64) (model.ZoneState, error) {
	fields, err := s.rdb.HGetAll(ctx, zoneStateKey(token)).Result()
	if err != nil {
		return model.ZoneState{}, fmt.Errorf("state: HGetAll %s: %w", zoneStateKey(token), err)
	}
	for _, raw := range fields {
		var zs model.ZoneState
		if err := json.Unmarshal([]byte(raw), &zs); err != nil {
			continue
		}
		if zs.ZonePrice != 0 && math.Abs(zonePrice-zs.ZonePrice)/zs.ZonePrice < zonePriceTolerance {
			return zs, nil
		}
	}
	return model.ZoneState{TokenAddress: token, ZonePrice: zonePrice, CurrentState: model.StateIdle}, nil
}

func (s *RedisZoneStateStore) Set(ctx context.Context, token string, zonePrice float64, newState model.ZoneMachineState, signalType model.SignalKind, currentPrice float64, now time.Time) error {
	key := zoneStateKey(token)
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("state: HGetAll %s: %w", key, err)
	}

	field := fmt.Sprintf("%.12g", zonePrice)
	canonicalPrice := zonePrice
	for f, raw := range fields {
		var zs model.ZoneState
		if err := json.Unmarshal([]byte(raw), &zs); err != nil {
			continue
		}
		if zs.ZonePrice != 0 && math.Abs(zonePrice-zs.ZonePrice)/zs.ZonePrice < zonePriceTolerance {
			field = f
			canonicalPrice = zs.ZonePrice
			break
		}
	}

	entry := model.ZoneState{
		TokenAddress:   token,
		ZonePrice:      canonicalPrice,
		CurrentState:   newState,
		LastSignalType: signalType,
		LastSignalTime: now,
		LastPrice:      currentPrice,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("state: marshaling zone state: %w", err)
	}
	if err := s.rdb.HSet(ctx, key, field, data).Err(); err != nil {
		return fmt.Errorf("state: HSet %s: %w", key, err)
	}
	return nil
}

// RedisAlertHistoryStore persists AlertRecords in a Redis sorted set per
// token (`alerthistory:{token}`), scored by unix timestamp, grounded on
// internal/analytics/historical_data_fetcher.go's ZAdd/ZRemRangeByRank
// history-trimming pattern.
type RedisAlertHistoryStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisAlertHistoryStore wraps an existing *redis.Client.
func NewRedisAlertHistoryStore(rdb *redis.Client, logger *zap.Logger) *RedisAlertHistoryStore {
	return &RedisAlertHistoryStore{rdb: rdb, logger: logger}
}

const alertHistoryMaxPerToken = 500
const alertHistoryScanWindow = 200

func alertHistoryKey(token string) string { return fmt.Sprintf("alerthistory:%s", token) }

func (s *RedisAlertHistoryStore) Append(ctx context.Context, record model.AlertRecord) error {
	key := alertHistoryKey(record.TokenAddress)
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("state: marshaling alert record: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(record.Timestamp.Unix()), Member: data})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-alertHistoryMaxPerToken-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("state: appending alert record for %s: %w", record.TokenAddress, err)
	}
	return nil
}

func (s *RedisAlertHistoryStore) recent(ctx context.Context, token string) ([]model.AlertRecord, error) {
	raw, err := s.rdb.ZRevRange(ctx, alertHistoryKey(token), 0, alertHistoryScanWindow-1).Result()
	if err != nil {
		return nil, fmt.Errorf("state: ZRevRange %s: %w", alertHistoryKey(token), err)
	}
	out := make([]model.AlertRecord, 0, len(raw))
	for _, r := range raw {
		var rec model.AlertRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			s.logger.Warn("state: skipping malformed alert record", zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisAlertHistoryStore) MostRecentByLevel(ctx context.Context, token string, levelPrice float64) (model.AlertRecord, bool, error) {
	records, err := s.recent(ctx, token)
	if err != nil {
		return model.AlertRecord{}, false, err
	}
	for _, r := range records { // already newest-first
		if r.LevelPrice == 0 {
			continue
		}
		if math.Abs(levelPrice-r.LevelPrice)/r.LevelPrice < levelTolerance {
			return r, true, nil
		}
	}
	return model.AlertRecord{}, false, nil
}

func (s *RedisAlertHistoryStore) MostRecentBySignalType(ctx context.Context, token string, signalType model.SignalKind) (model.AlertRecord, bool, error) {
	records, err := s.recent(ctx, token)
	if err != nil {
		return model.AlertRecord{}, false, err
	}
	for _, r := range records {
		if r.SignalType == signalType {
			return r, true, nil
		}
	}
	return model.AlertRecord{}, false, nil
}
