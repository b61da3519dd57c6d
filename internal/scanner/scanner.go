// Package scanner implements the Scanner scheduling loop (spec §4.14):
// refresh the trending list, merge it with the persisted watchlist, and
// run the Health -> TimeframeRouter -> AnalysisEngine -> StrategyEngine ->
// CooldownGate pipeline per token, publishing accepted signals to the chat
// sink. Grounded on internal/supervisor/supervisor.go's retry-with-backoff
// worker loop, generalized from a fixed worker set to one long-lived tick
// loop over a dynamic token list.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dexsurveil/internal/analysis"
	"dexsurveil/internal/chatsink"
	"dexsurveil/internal/config"
	"dexsurveil/internal/cooldown"
	"dexsurveil/internal/health"
	"dexsurveil/internal/holder"
	"dexsurveil/internal/marketdata"
	"dexsurveil/internal/metrics"
	"dexsurveil/internal/model"
	"dexsurveil/internal/router"
	"dexsurveil/internal/state"
	"dexsurveil/internal/strategy"
	"dexsurveil/pkg/broadcaster"
)

const (
	trendingRefreshInterval = 10 * time.Minute
	criticalErrorBackoff    = 60 * time.Second
	gemAgeThresholdSeconds  = 5 * 24 * 3600
	healthProbeAggregate    = 1
	healthProbeLimit        = 100
	defaultTrendingNetwork  = "solana"
)

// Market is the subset of marketdata.Client the Scanner drives directly
// (trending refresh plus the health/router probe); router and analysis
// take narrower interfaces of the same concrete client.
type Market interface {
	FetchOHLCV(ctx context.Context, poolID model.PoolID, tf model.Timeframe, aggregate, limit int) (model.CandleSeries, error)
	FetchPoolMeta(ctx context.Context, poolID model.PoolID) (marketdata.PoolMeta, error)
	FetchTrendingPools(ctx context.Context, network string, limit int) ([]marketdata.TrendingPool, error)
}

// Status is a point-in-time snapshot of the Scanner's run state, exposed
// over the /scanner-status control endpoint.
type Status struct {
	Running       bool
	LastTickAt    time.Time
	LastTickError string
	TokensTracked int
}

// Scanner is the top-level scheduling loop.
type Scanner struct {
	cfg    config.Config
	logger *zap.Logger

	market Market
	holder *holder.Client

	analysisEngine *analysis.Engine
	strategyEngine *strategy.Engine
	cooldownGate   *cooldown.Gate

	watchlist state.WatchlistStore
	alerts    state.AlertHistoryStore

	sink chatsink.Sink

	// broadcaster fans emitted signals out to /ws/signals control-surface
	// viewers. Optional: a nil broadcaster silently skips the fan-out.
	broadcaster *broadcaster.Broadcaster

	// metrics is optional; a nil value silently skips instrumentation.
	metrics *metrics.ScanMetrics

	mu                sync.RWMutex
	trending          []marketdata.TrendingPool
	lastTrendingFetch time.Time
	status            Status
}

// New builds a Scanner over its fully-wired collaborators.
func New(
	cfg config.Config,
	logger *zap.Logger,
	market Market,
	holderClient *holder.Client,
	analysisEngine *analysis.Engine,
	strategyEngine *strategy.Engine,
	cooldownGate *cooldown.Gate,
	watchlist state.WatchlistStore,
	alerts state.AlertHistoryStore,
	sink chatsink.Sink,
) *Scanner {
	return &Scanner{
		cfg:            cfg,
		logger:         logger,
		market:         market,
		holder:         holderClient,
		analysisEngine: analysisEngine,
		strategyEngine: strategyEngine,
		cooldownGate:   cooldownGate,
		watchlist:      watchlist,
		alerts:         alerts,
		sink:           sink,
	}
}

// WithBroadcaster attaches an optional live-feed broadcaster, returning
// the Scanner for chaining at wiring time.
func (s *Scanner) WithBroadcaster(b *broadcaster.Broadcaster) *Scanner {
	s.broadcaster = b
	return s
}

// WithMetrics attaches optional Prometheus instrumentation, returning the
// Scanner for chaining at wiring time.
func (s *Scanner) WithMetrics(m *metrics.ScanMetrics) *Scanner {
	s.metrics = m
	return s
}

// Status returns the last-observed run status.
func (s *Scanner) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Trending returns the most recently fetched trending pool list.
func (s *Scanner) Trending() []marketdata.TrendingPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]marketdata.TrendingPool, len(s.trending))
	copy(out, s.trending)
	return out
}

// Run executes scan ticks until ctx is cancelled. A tick-level error is
// treated as critical: the loop waits criticalErrorBackoff and resumes.
// Per-token errors never reach here; Tick handles and logs them itself.
func (s *Scanner) Run(ctx context.Context) error {
	s.setRunning(true)
	defer s.setRunning(false)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.Tick(ctx)
		s.recordTick(err)

		if err != nil {
			s.logger.Error("scanner: tick failed, backing off", zap.Error(err))
			if !s.sleep(ctx, criticalErrorBackoff) {
				return ctx.Err()
			}
			continue
		}

		if !s.sleep(ctx, s.cfg.ScanInterval()) {
			return ctx.Err()
		}
	}
}

func (s *Scanner) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Scanner) setRunning(running bool) {
	s.mu.Lock()
	s.status.Running = running
	s.mu.Unlock()
}

func (s *Scanner) recordTick(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastTickAt = time.Now()
	if err != nil {
		s.status.LastTickError = err.Error()
	} else {
		s.status.LastTickError = ""
	}
}

// Tick runs one scanning pass: refresh trending, merge with the
// watchlist, process each token in order.
func (s *Scanner) Tick(ctx context.Context) error {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordScanTick(time.Since(start), outcome)
		}
	}()

	if err := s.refreshTrending(ctx); err != nil {
		s.logger.Warn("scanner: trending refresh failed, continuing with cached list", zap.Error(err))
	}

	tokens, err := s.mergedTokens(ctx)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("scanner: merging watchlist: %w", err)
	}

	s.mu.Lock()
	s.status.TokensTracked = len(tokens)
	s.mu.Unlock()

	for _, tok := range tokens {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.processToken(ctx, tok)

		if !s.sleep(ctx, s.cfg.InterTokenPause()) {
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scanner) refreshTrending(ctx context.Context) error {
	s.mu.RLock()
	stale := time.Since(s.lastTrendingFetch) >= trendingRefreshInterval
	s.mu.RUnlock()
	if !stale {
		return nil
	}

	pools, err := s.market.FetchTrendingPools(ctx, defaultTrendingNetwork, s.cfg.TrendingTokensLimit)
	if err != nil {
		return fmt.Errorf("fetching trending pools: %w", err)
	}

	s.mu.Lock()
	s.trending = pools
	s.lastTrendingFetch = time.Now()
	s.mu.Unlock()
	return nil
}

// mergedTokens de-duplicates the persisted watchlist and the trending
// list by address, preferring the trending record's symbol/pool id (it
// reflects the aggregator's current view) while keeping the watchlist's
// history (first_seen, status, health_score, last_message_id).
func (s *Scanner) mergedTokens(ctx context.Context) ([]model.TokenRecord, error) {
	persisted, err := s.watchlist.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading watchlist: %w", err)
	}

	byAddr := make(map[string]model.TokenRecord, len(persisted))
	for _, r := range persisted {
		byAddr[r.Address] = r
	}

	now := time.Now()
	s.mu.RLock()
	trending := make([]marketdata.TrendingPool, len(s.trending))
	copy(trending, s.trending)
	s.mu.RUnlock()

	for _, pool := range trending {
		addr := pool.TokenAddress
		existing, ok := byAddr[addr]
		if !ok {
			existing = model.TokenRecord{
				Address:   addr,
				FirstSeen: now,
				Status:    model.TokenActive,
			}
		}
		existing.Symbol = pool.Symbol
		existing.PoolID = pool.PoolID
		existing.LastActive = now
		byAddr[addr] = existing
	}

	out := make([]model.TokenRecord, 0, len(byAddr))
	for _, r := range byAddr {
		out = append(out, r)
	}
	return out, nil
}

func (s *Scanner) processToken(ctx context.Context, tok model.TokenRecord) {
	logger := s.logger.With(zap.String("token", tok.Address), zap.String("symbol", tok.Symbol))

	probe, err := s.market.FetchOHLCV(ctx, tok.PoolID, model.TimeframeHour, healthProbeAggregate, healthProbeLimit)
	if err != nil {
		logger.Warn("scanner: probe fetch failed, skipping token this tick", zap.Error(err))
		s.recordSkip("probe_fetch_failed")
		return
	}
	if probe.Len() == 0 {
		logger.Debug("scanner: empty probe, skipping")
		s.recordSkip("empty_probe")
		return
	}

	snapshot := s.buildHealthSnapshot(ctx, tok, probe)
	result := health.Score(snapshot)
	tok.HealthScore = result.Score
	tok.Status = result.Status
	tok.LastActive = time.Now()
	if err := s.watchlist.Upsert(ctx, tok); err != nil {
		logger.Warn("scanner: persisting health result failed", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.SetTokenHealthScore(tok.Address, string(result.Status), result.Score)
	}
	if result.Status != model.TokenActive {
		logger.Info("scanner: token not active, skipping", zap.String("status", string(result.Status)))
		s.recordSkip("health_" + string(result.Status))
		return
	}

	tf, aggregate, routedCandles, ok := router.PickTimeframe(ctx, s.market, tok.PoolID)
	if !ok {
		logger.Debug("scanner: timeframe router found no usable series, skipping")
		s.recordSkip("no_usable_timeframe")
		return
	}

	now := time.Now()
	ageSeconds := int64(0)
	if len(routedCandles) >= 2 {
		ageSeconds = routedCandles[len(routedCandles)-1].Timestamp - routedCandles[0].Timestamp
	}

	analysisResult, ok, err := s.analysisEngine.PerformAnalysis(ctx, tok.PoolID, tf, aggregate, tok.Symbol, now)
	if err != nil {
		logger.Warn("scanner: analysis failed, skipping token this tick", zap.Error(err))
		s.recordSkip("analysis_failed")
		return
	}
	if !ok {
		logger.Debug("scanner: insufficient data for analysis, skipping")
		s.recordSkip("analysis_insufficient_data")
		return
	}

	var sig model.Signal
	var fires bool
	if ageSeconds < gemAgeThresholdSeconds {
		sig, fires = strategy.EvaluateGemStrategies(tok.Address, tok.PoolID, tok.Symbol, analysisResult.Raw.Series.Candles, now)
	} else {
		sig, fires, err = s.strategyEngine.Evaluate(ctx, tok.Address, analysisResult, now)
		if err != nil {
			logger.Warn("scanner: strategy evaluation failed, skipping token this tick", zap.Error(err))
			s.recordSkip("strategy_failed")
			return
		}
	}
	if !fires {
		return
	}
	sig.AnalysisResult = &analysisResult

	suppress, err := s.cooldownGate.ShouldSuppress(ctx, sig)
	if err != nil {
		logger.Warn("scanner: cooldown lookup failed, emitting without suppression", zap.Error(err))
	} else if suppress {
		logger.Debug("scanner: signal suppressed by cooldown", zap.String("kind", string(sig.Kind)))
		if s.metrics != nil {
			s.metrics.RecordSignalSuppressed(string(sig.Kind))
		}
		return
	}

	record := model.AlertRecord{
		TokenAddress: sig.TokenAddress,
		SignalType:   sig.Kind,
		LevelPrice:   sig.Level,
		PriceAtAlert: sig.CurrentPrice,
		Timestamp:    now,
	}
	if err := s.alerts.Append(ctx, record); err != nil {
		logger.Error("scanner: failed to record alert, skipping publish", zap.Error(err))
		s.recordSkip("alert_persist_failed")
		return
	}

	caption := formatSignal(sig)
	messageID, err := chatsink.PublishSignalText(ctx, s.sink, s.cfg.ChatID, caption, nil, tok.LastMessageID)
	if err != nil {
		logger.Warn("scanner: publish to chat sink failed", zap.Error(err))
		s.recordSkip("publish_failed")
		return
	}

	tok.LastMessageID = messageID
	if err := s.watchlist.Upsert(ctx, tok); err != nil {
		logger.Warn("scanner: persisting message id failed", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RecordSignalEmitted(string(sig.Kind))
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSignal(sig)
	}
}

func (s *Scanner) recordSkip(reason string) {
	if s.metrics != nil {
		s.metrics.RecordTokenSkipped(reason)
	}
}

func (s *Scanner) buildHealthSnapshot(ctx context.Context, tok model.TokenRecord, probe model.CandleSeries) health.Snapshot {
	ath := probe.Candles[0].Close
	for _, c := range probe.Candles {
		if c.Close > ath {
			ath = c.Close
		}
	}
	current, _ := probe.CurrentPrice()

	volume24h := 0.0
	if meta, err := s.market.FetchPoolMeta(ctx, tok.PoolID); err == nil {
		volume24h = meta.Volume24h
	} else {
		s.logger.Debug("scanner: pool meta fetch failed, using zero volume", zap.String("token", tok.Address), zap.Error(err))
	}

	snapshot := health.Snapshot{
		AllTimeHigh:  ath,
		CurrentPrice: current,
		Volume24h:    volume24h,
		AgeHours:     float64(probe.AgeSeconds()) / 3600,
	}

	if s.holder != nil && s.holder.Enabled() {
		network, address, _ := tok.PoolID.Split()
		deltas, found, err := s.holder.GetHolderDeltas(ctx, network, address)
		if err == nil && found {
			snapshot.HolderEnabled = true
			snapshot.Holder1hDelta = deltas.OneHour
			snapshot.Holder24hDelta = deltas.OneDay
		}
	}

	return snapshot
}

func formatSignal(sig model.Signal) string {
	if sig.HasLevel {
		return fmt.Sprintf("*%s* `%s`\nKind: %s\nLevel: %.8g\nPrice: %.8g\nScore: %.1f",
			sig.Symbol, sig.TokenAddress, sig.Kind, sig.Level, sig.CurrentPrice, sig.FinalScore)
	}
	return fmt.Sprintf("*%s* `%s`\nKind: %s\nPrice: %.8g",
		sig.Symbol, sig.TokenAddress, sig.Kind, sig.CurrentPrice)
}
