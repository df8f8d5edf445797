package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/MahyudeenShahid/trade-analysis/internal/api"
	"github.com/MahyudeenShahid/trade-analysis/internal/engine"
	"github.com/MahyudeenShahid/trade-analysis/internal/events"
	"github.com/MahyudeenShahid/trade-analysis/internal/market"
	"github.com/MahyudeenShahid/trade-analysis/internal/monitor"
	"github.com/MahyudeenShahid/trade-analysis/internal/persistence"
	"github.com/MahyudeenShahid/trade-analysis/internal/state"
	"github.com/MahyudeenShahid/trade-analysis/pkg/cache"
	"github.com/MahyudeenShahid/trade-analysis/pkg/config"
	"github.com/MahyudeenShahid/trade-analysis/pkg/db"
	"github.com/MahyudeenShahid/trade-analysis/pkg/instance"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg)
	log.Info().Str("port", cfg.Port).Str("db", cfg.DBPath).Msg("starting")

	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadsDir).Msg("failed to create uploads dir")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	// In-memory state seeded from DB, then overlaid with the YAML seed.
	store := state.NewManager(database)
	if err := store.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load bot state")
	}
	defs, err := state.LoadDefinitions(cfg.BotsConfig)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.BotsConfig).Msg("failed to load window seed")
	}
	if len(defs) > 0 {
		if err := store.Seed(ctx, defs); err != nil {
			log.Fatal().Err(err).Msg("failed to seed windows")
		}
		log.Info().Int("windows", len(defs)).Str("path", cfg.BotsConfig).Msg("seeded windows")
	}

	bus := events.NewBus()
	metrics := monitor.NewMetrics()

	recorder := persistence.NewRecorder(persistence.RecorderConfig{
		DB:            database,
		Bus:           bus,
		Metrics:       metrics,
		Logger:        log.With().Str("component", "recorder").Logger(),
		QueueSize:     cfg.WriteQueueSize,
		BatchSize:     cfg.BatchSize,
		BatchInterval: time.Duration(cfg.BatchIntervalMs) * time.Millisecond,
		RetentionDays: cfg.RetentionDays,
	})
	recorder.Start(ctx)

	eng := engine.New(engine.Config{
		Store:    store,
		DB:       database,
		Recorder: recorder,
		Bus:      bus,
		Metrics:  metrics,
		Logger:   log.With().Str("component", "engine").Logger(),
	})

	tickCache := cache.NewTickCache()

	var feed *market.MockFeed
	feedCtx, feedCancel := context.WithCancel(ctx)
	defer feedCancel()
	if cfg.UseMockFeed {
		feed = &market.MockFeed{
			Engine:     eng,
			Recorder:   recorder,
			Cache:      tickCache,
			Windows:    mockWindows(cfg.MockWindows),
			StartPrice: cfg.MockStartPrice,
			Step:       cfg.MockStepAmount,
			Interval:   time.Duration(cfg.MockIntervalMs) * time.Millisecond,
			Logger:     log.With().Str("component", "mock_feed").Logger(),
		}
		feed.Start(feedCtx)
	}

	nodeID, err := instance.ID()
	if err != nil {
		log.Warn().Err(err).Msg("machine id unavailable, node id unset")
		nodeID = "unknown"
	}
	version := os.Getenv("APP_VERSION")
	if version == "" {
		version = "dev"
	}

	server := api.NewServer(eng, database, bus, tickCache, metrics, recorder, cfg, api.SystemMeta{
		NodeID:      nodeID,
		Version:     version,
		UseMockFeed: cfg.UseMockFeed,
		StartedAt:   time.Now().UTC(),
	}, log.With().Str("component", "api").Logger())

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router,
	}
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Str("node_id", nodeID).Msg("api listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("api server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	feedCancel()
	if feed != nil {
		feed.Wait()
	}

	// Pair every open buy with an INCOMPLETE sell before the queue drains.
	eng.CloseAll()

	if err := recorder.Close(); err != nil {
		log.Error().Err(err).Msg("recorder close error")
	}
	log.Info().Msg("bye")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr)
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// mockWindows parses MOCK_WINDOWS entries of the form "window-id:TICKER".
func mockWindows(raw []string) []market.Window {
	var out []market.Window
	for _, entry := range raw {
		id, ticker, _ := strings.Cut(entry, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, market.Window{
			WindowID: id,
			Ticker:   strings.ToUpper(strings.TrimSpace(ticker)),
		})
	}
	return out
}
