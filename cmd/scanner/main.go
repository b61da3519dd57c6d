package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"dexsurveil/internal/analysis"
	"dexsurveil/internal/chatsink"
	"dexsurveil/internal/config"
	"dexsurveil/internal/cooldown"
	"dexsurveil/internal/holder"
	"dexsurveil/internal/marketdata"
	"dexsurveil/internal/metrics"
	"dexsurveil/internal/model"
	"dexsurveil/internal/scanner"
	"dexsurveil/internal/state"
	"dexsurveil/internal/strategy"
	"dexsurveil/internal/supervisor"
	"dexsurveil/pkg/broadcaster"
	"dexsurveil/pkg/redisx"
)

// telegramMaxMessagesPerSecond throttles chat-sink publishes independent
// of the upstream aggregator's rate limit, which governs a different API.
const telegramMaxMessagesPerSecond = 20

// DexSurveil is the top-level application: owns every long-lived
// collaborator the Scanner is built from, plus the control-surface HTTP
// server and the optional live-signal WebSocket feed.
type DexSurveil struct {
	cfg    config.Config
	logger *zap.Logger

	redis       *redisx.Client
	scanner     *scanner.Scanner
	broadcaster *broadcaster.Broadcaster
	metrics     *metrics.ScanMetrics
	supervisor  *supervisor.Supervisor

	watchlist state.WatchlistStore

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	fmt.Println("dexsurveil: starting scanner service")

	app := &DexSurveil{}

	if err := app.initialize(); err != nil {
		fmt.Printf("dexsurveil: failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := app.start(); err != nil {
		fmt.Printf("dexsurveil: failed to start: %v\n", err)
		os.Exit(1)
	}

	app.waitForShutdown()

	if err := app.shutdown(); err != nil {
		fmt.Printf("dexsurveil: error during shutdown: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("dexsurveil: stopped gracefully")
}

// initialize wires every collaborator. Fatal configuration problems (spec
// §7: missing bot credentials, an unreachable database) exit the process
// here rather than surfacing later as a degraded run.
func (app *DexSurveil) initialize() error {
	var err error
	app.ctx, app.cancel = context.WithCancel(context.Background())

	app.logger, err = app.setupLogger()
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}

	app.cfg = config.Load()
	app.logger.Info("dexsurveil: configuration loaded",
		zap.Int("scan_interval_seconds", app.cfg.ScanIntervalSeconds),
		zap.String("cache_backend", app.cfg.CacheBackend),
	)

	if !app.cfg.ChatConfigured() {
		return fmt.Errorf("fatal: missing bot credentials (TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID)")
	}

	var (
		watchlist state.WatchlistStore
		zoneStore state.ZoneStateStore
		alerts    state.AlertHistoryStore
		sink      chatsink.Sink
	)

	switch app.cfg.CacheBackend {
	case "redis":
		rdb, err := redisx.NewClient(redisx.Config{URL: app.cfg.RedisURL}, app.logger)
		if err != nil {
			return fmt.Errorf("fatal: unreadable database on startup: %w", err)
		}
		app.redis = rdb

		watchlist = state.NewRedisWatchlistStore(rdb.Raw(), app.logger)
		zoneStore = state.NewRedisZoneStateStore(rdb.Raw(), app.logger)
		alerts = state.NewRedisAlertHistoryStore(rdb.Raw(), app.logger)
		sink = chatsink.NewRedisSink(rdb, app.logger, telegramMaxMessagesPerSecond)
	default:
		watchlist = state.NewMemoryWatchlistStore()
		zoneStore = state.NewMemoryZoneStateStore()
		alerts = state.NewMemoryAlertHistoryStore()
		sink = chatsink.Noop{}
		app.logger.Warn("dexsurveil: running with in-memory state, nothing survives a restart")
	}
	app.watchlist = watchlist

	if app.cfg.WatchlistSeedPath != "" {
		if err := app.seedWatchlist(app.cfg.WatchlistSeedPath); err != nil {
			app.logger.Warn("dexsurveil: watchlist seed failed", zap.Error(err))
		}
	}

	market := marketdata.New(app.logger, app.cfg.GeckoTerminalRateLimit)
	holderClient := holder.New(app.logger, app.cfg.HolderAPIKey)
	analysisEngine := analysis.New(market)
	strategyEngine := strategy.New(zoneStore)
	cooldownGate := cooldown.New(alerts)

	app.metrics = metrics.New()
	app.broadcaster = broadcaster.NewBroadcaster(app.logger)
	app.supervisor = supervisor.NewSupervisor(app.logger)

	app.scanner = scanner.New(
		app.cfg,
		app.logger,
		market,
		holderClient,
		analysisEngine,
		strategyEngine,
		cooldownGate,
		watchlist,
		alerts,
		sink,
	).WithBroadcaster(app.broadcaster).WithMetrics(app.metrics)

	app.logger.Info("dexsurveil: core components initialized")
	return nil
}

func (app *DexSurveil) setupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.OutputPaths = []string{"stdout"}
	return cfg.Build()
}

// seedWatchlist loads a YAML list of tokens to track on first boot. Only
// addresses absent from the store are inserted; an existing record's
// history is never overwritten by the seed file.
func (app *DexSurveil) seedWatchlist(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}

	var seed []struct {
		Address string `yaml:"address"`
		Symbol  string `yaml:"symbol"`
		PoolID  string `yaml:"pool_id"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}

	now := time.Now()
	for _, tok := range seed {
		if _, ok, _ := app.watchlist.Get(app.ctx, tok.Address); ok {
			continue
		}
		rec := model.TokenRecord{
			Address:   tok.Address,
			Symbol:    tok.Symbol,
			PoolID:    model.PoolID(tok.PoolID),
			FirstSeen: now,
			Status:    model.TokenActive,
		}
		if err := app.watchlist.Upsert(app.ctx, rec); err != nil {
			app.logger.Warn("dexsurveil: seeding token failed", zap.String("address", tok.Address), zap.Error(err))
		}
	}
	app.logger.Info("dexsurveil: watchlist seeded", zap.Int("count", len(seed)))
	return nil
}

func (app *DexSurveil) start() error {
	app.logger.Info("dexsurveil: starting scan loop and control surface")

	go app.broadcaster.Run()

	if err := app.metrics.Start(":9090"); err != nil {
		return fmt.Errorf("starting metrics server: %w", err)
	}

	scanWorker := supervisor.WorkerConfig{
		Name:           "scan-loop",
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     60 * time.Second,
		BackoffFactor:  2.0,
	}
	if err := app.supervisor.AddWorker(scanWorker, func(ctx context.Context) error {
		return app.scanner.Run(ctx)
	}); err != nil {
		return fmt.Errorf("registering scan-loop worker: %w", err)
	}

	controlWorker := supervisor.WorkerConfig{
		Name:           "control-surface",
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
	if err := app.supervisor.AddWorker(controlWorker, func(ctx context.Context) error {
		return app.runControlSurface(ctx)
	}); err != nil {
		return fmt.Errorf("registering control-surface worker: %w", err)
	}

	if err := app.supervisor.Start(); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}

	app.logger.Info("dexsurveil: service operational", zap.String("control_addr", app.cfg.ControlAddr))
	return nil
}

// runControlSurface serves the ops-visibility endpoints named in spec §6:
// /health, /scanner-status, /trending-list, /fetch-tokens,
// /webhook/telegram, plus a /ws/signals live feed riding the adapted
// broadcaster. Blocks until ctx is cancelled, so the supervisor can
// restart it if it ever exits on its own.
func (app *DexSurveil) runControlSurface(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"service": "dexsurveil-scanner",
		})
	})

	mux.HandleFunc("/scanner-status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.scanner.Status())
	})

	mux.HandleFunc("/trending-list", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.scanner.Trending())
	})

	mux.HandleFunc("/fetch-tokens", func(w http.ResponseWriter, r *http.Request) {
		tokens, err := app.watchlist.All(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, tokens)
	})

	mux.HandleFunc("/webhook/telegram", func(w http.ResponseWriter, r *http.Request) {
		// Inbound Telegram updates (command acks, button callbacks) are
		// consumed by the external bot worker reading outboundStream; this
		// endpoint only needs to acknowledge receipt so Telegram stops retrying.
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/supervisor-status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.supervisor.GetSupervisorStats())
	})

	upgrader := websocket.Upgrader{
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: true,
	}
	mux.HandleFunc("/ws/signals", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			app.logger.Error("dexsurveil: failed to upgrade websocket connection", zap.Error(err))
			return
		}
		app.broadcaster.Register(conn)
		defer app.broadcaster.Unregister(conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	})

	srv := &http.Server{Addr: app.cfg.ControlAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("dexsurveil: control surface listening", zap.String("addr", app.cfg.ControlAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("control surface listener: %w", err)
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (app *DexSurveil) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	app.logger.Info("dexsurveil: received shutdown signal", zap.String("signal", sig.String()))
}

func (app *DexSurveil) shutdown() error {
	app.logger.Info("dexsurveil: shutting down")
	app.cancel()

	if err := app.supervisor.Stop(); err != nil {
		app.logger.Error("dexsurveil: error stopping supervisor", zap.Error(err))
	}

	if err := app.metrics.Stop(); err != nil {
		app.logger.Error("dexsurveil: error stopping metrics server", zap.Error(err))
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("dexsurveil: error closing redis connection", zap.Error(err))
		}
	}

	app.logger.Info("dexsurveil: shutdown complete")
	return nil
}
