// Package state implements ZoneStateStore and AlertHistoryStore per spec
// §4.11 and the zone_states/alert_history tables in §6. Each store has an
// in-memory implementation (used directly by tests and as the Scanner's
// default single-process backing) and a Redis-backed implementation
// grounded on internal/analytics/historical_data_fetcher.go's
// pipeline/ZAdd/Expire pattern, generalized from a candle-history sorted
// set to the zone-state hash and alert-history sorted set this package
// needs.
package state

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"dexsurveil/internal/model"
)

const zonePriceTolerance = 0.001 // spec §4.11: collapse within 0.1%

// ZoneStateStore persists the per-(token, zone_price) finite-state machine.
type ZoneStateStore interface {
	Get(ctx context.Context, token string, zonePrice float64) (model.ZoneState, error)
	Set(ctx context.Context, token string, zonePrice float64, newState model.ZoneMachineState, signalType model.SignalKind, currentPrice float64, now time.Time) error
}

// MemoryZoneStateStore is a mutex-guarded, single-process ZoneStateStore.
// Set is idempotent and last-write-wins, matching the spec's concurrency
// requirement without any additional locking scheme.
type MemoryZoneStateStore struct {
	mu    sync.Mutex
	byTok map[string][]model.ZoneState
}

// NewMemoryZoneStateStore builds an empty store.
func NewMemoryZoneStateStore() *MemoryZoneStateStore {
	return &MemoryZoneStateStore{byTok: make(map[string][]model.ZoneState)}
}

// Get returns the collapsed state for (token, zonePrice), defaulting to
// StateIdle if no matching entry exists.
func (s *MemoryZoneStateStore) Get(ctx context.Context, token string, zonePrice float64) (model.ZoneState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.find(token, zonePrice); idx >= 0 {
		return s.byTok[token][idx], nil
	}
	return model.ZoneState{TokenAddress: token, ZonePrice: zonePrice, CurrentState: model.StateIdle}, nil
}

// Set upserts the state for (token, zonePrice), collapsing into an
// existing entry within 0.1% tolerance if one exists.
func (s *MemoryZoneStateStore) Set(ctx context.Context, token string, zonePrice float64, newState model.ZoneMachineState, signalType model.SignalKind, currentPrice float64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := model.ZoneState{
		TokenAddress:   token,
		ZonePrice:      zonePrice,
		CurrentState:   newState,
		LastSignalType: signalType,
		LastSignalTime: now,
		LastPrice:      currentPrice,
	}

	if idx := s.find(token, zonePrice); idx >= 0 {
		entry.ZonePrice = s.byTok[token][idx].ZonePrice // keep the canonical collapsed price
		s.byTok[token][idx] = entry
		return nil
	}
	s.byTok[token] = append(s.byTok[token], entry)
	return nil
}

func (s *MemoryZoneStateStore) find(token string, zonePrice float64) int {
	for i, zs := range s.byTok[token] {
		if zs.ZonePrice == 0 {
			continue
		}
		if math.Abs(zonePrice-zs.ZonePrice)/zs.ZonePrice < zonePriceTolerance {
			return i
		}
	}
	return -1
}

// AlertHistoryStore is the append-only log of emitted signals used for
// cooldown lookups.
type AlertHistoryStore interface {
	Append(ctx context.Context, record model.AlertRecord) error
	MostRecentByLevel(ctx context.Context, token string, levelPrice float64) (model.AlertRecord, bool, error)
	MostRecentBySignalType(ctx context.Context, token string, signalType model.SignalKind) (model.AlertRecord, bool, error)
}

const levelTolerance = 0.005 // spec §6: level_price ± 0.5%

// MemoryAlertHistoryStore is a mutex-guarded, single-process
// AlertHistoryStore. Appends are totally ordered per (token, signal_type)
// by insertion order, which here is also chronological order.
type MemoryAlertHistoryStore struct {
	mu      sync.Mutex
	records []model.AlertRecord
}

// NewMemoryAlertHistoryStore builds an empty store.
func NewMemoryAlertHistoryStore() *MemoryAlertHistoryStore {
	return &MemoryAlertHistoryStore{}
}

// Append records a signal. Never fails for the in-memory backing.
func (s *MemoryAlertHistoryStore) Append(ctx context.Context, record model.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// MostRecentByLevel returns the most recent record for token whose
// level_price is within ±0.5% of levelPrice.
func (s *MemoryAlertHistoryStore) MostRecentByLevel(ctx context.Context, token string, levelPrice float64) (model.AlertRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best model.AlertRecord
	found := false
	for _, r := range s.records {
		if r.TokenAddress != token || r.LevelPrice == 0 {
			continue
		}
		if math.Abs(levelPrice-r.LevelPrice)/r.LevelPrice >= levelTolerance {
			continue
		}
		if !found || r.Timestamp.After(best.Timestamp) {
			best = r
			found = true
		}
	}
	return best, found, nil
}

// MostRecentBySignalType returns the most recent record for
// (token, signalType), for gem signals that carry no level.
func (s *MemoryAlertHistoryStore) MostRecentBySignalType(ctx context.Context, token string, signalType model.SignalKind) (model.AlertRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best model.AlertRecord
	found := false
	for _, r := range s.records {
		if r.TokenAddress != token || r.SignalType != signalType {
			continue
		}
		if !found || r.Timestamp.After(best.Timestamp) {
			best = r
			found = true
		}
	}
	return best, found, nil
}

// Snapshot returns all records sorted newest-first, for inspection by the
// control surface and tests.
func (s *MemoryAlertHistoryStore) Snapshot() []model.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.AlertRecord{}, s.records...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}
