// Package engine turns price/trend ticks into trade decisions. Evaluation
// and state mutation for one window run atomically under that window's
// lock; persistence and event fanout happen outside it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/MahyudeenShahid/trade-analysis/internal/events"
	"github.com/MahyudeenShahid/trade-analysis/internal/monitor"
	"github.com/MahyudeenShahid/trade-analysis/internal/persistence"
	"github.com/MahyudeenShahid/trade-analysis/internal/state"
	"github.com/MahyudeenShahid/trade-analysis/pkg/db"
)

// ErrNoPrice is returned when a manual trade has no price to execute at.
var ErrNoPrice = errors.New("no known price for window")

// Engine ties the evaluator and ledger to the store and the downstream
// sinks. ProcessTick is safe for concurrent use; ticks for different
// windows proceed in parallel.
type Engine struct {
	store    *state.Manager
	db       *db.Database
	recorder *persistence.Recorder
	bus      *events.Bus
	metrics  *monitor.Metrics
	log      zerolog.Logger
}

// Config holds the collaborators for building an Engine. Recorder, Bus
// and Metrics may be nil (useful in tests); Store must not be.
type Config struct {
	Store    *state.Manager
	DB       *db.Database
	Recorder *persistence.Recorder
	Bus      *events.Bus
	Metrics  *monitor.Metrics
	Logger   zerolog.Logger
}

func New(cfg Config) *Engine {
	return &Engine{
		store:    cfg.Store,
		db:       cfg.DB,
		recorder: cfg.Recorder,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
	}
}

// Store exposes the bot state store for read-side consumers.
func (e *Engine) Store() *state.Manager {
	return e.store
}

// ProcessTick evaluates and applies one tick, then hands the produced
// records to the recorder and publishes the outcome. The hand-off never
// blocks tick processing.
func (e *Engine) ProcessTick(tick Tick) Outcome {
	start := time.Now()
	if tick.TS.IsZero() {
		tick.TS = start.UTC()
	}

	var (
		d          Decision
		records    []state.TradeRecord
		violations []string
	)
	snap := e.store.Update(tick.WindowID, func(bs *state.BotState) {
		d = Evaluate(bs, tick)
		records, violations = Apply(bs, tick, d)
	})

	for _, v := range violations {
		if e.metrics != nil {
			e.metrics.CountGuardViolation()
		}
		e.log.Error().Str("window_id", tick.WindowID).Msg(v)
	}
	e.emit(records)

	out := Outcome{Tick: tick, Decision: d, Records: records, Snapshot: snap}
	if e.bus != nil {
		e.bus.Publish(events.EventTick, out)
	}
	if e.metrics != nil {
		e.metrics.ObserveTick(time.Since(start))
		e.metrics.CountDecision(string(d.Action))
		if len(records) > 0 {
			e.metrics.CountTrades(len(records))
		}
	}
	if d.Action != ActionNone {
		e.log.Info().
			Str("window_id", tick.WindowID).
			Str("action", string(d.Action)).
			Str("reason", d.Reason).
			Float64("price", d.Price).
			Msg("decision")
	}
	return out
}

// ManualTrade toggles the window's position by hand: buy when flat, sell
// with no win reason when holding. A zero price executes at the last
// observed price.
func (e *Engine) ManualTrade(windowID string, price float64) (Outcome, error) {
	now := time.Now().UTC()
	var (
		d       Decision
		records []state.TradeRecord
		tick    = Tick{WindowID: windowID, Trend: state.TrendFlat, TS: now}
		err     error
	)
	snap, uerr := e.store.UpdateExisting(windowID, func(bs *state.BotState) {
		p := price
		if p <= 0 {
			if !bs.HasLast {
				err = ErrNoPrice
				return
			}
			p = bs.LastPrice
		}
		tick.Price = p
		action := ActionBuy
		if bs.Position == state.PositionOpen {
			action = ActionSell
		}
		d = Decision{Action: action, Price: p, Rules: bs.Rules}
		records, _ = Apply(bs, tick, d)
	})
	if uerr != nil {
		return Outcome{}, uerr
	}
	if err != nil {
		return Outcome{}, err
	}

	e.emit(records)
	out := Outcome{Tick: tick, Decision: d, Records: records, Snapshot: snap}
	if e.bus != nil {
		e.bus.Publish(events.EventSnapshot, snap)
	}
	e.log.Info().
		Str("window_id", windowID).
		Str("action", string(d.Action)).
		Float64("price", d.Price).
		Msg("manual trade")
	return out, nil
}

// CloseAll force-sells every open position at its entry price, tagging the
// legs INCOMPLETE with zero profit. Used before shutdown so buys are never
// left dangling without a matching sell.
func (e *Engine) CloseAll() []state.TradeRecord {
	var all []state.TradeRecord
	for _, id := range e.store.WindowIDs() {
		all = append(all, e.closeWindow(id, ReasonIncomplete)...)
	}
	if len(all) > 0 {
		e.log.Info().Int("closed", len(all)).Msg("closed all open positions")
	}
	return all
}

// closeWindow force-sells the window's position if one is open.
func (e *Engine) closeWindow(windowID, reason string) []state.TradeRecord {
	var records []state.TradeRecord
	now := time.Now().UTC()
	snap, err := e.store.UpdateExisting(windowID, func(bs *state.BotState) {
		if rec, ok := ForceClose(bs, reason, now); ok {
			records = append(records, rec)
		}
	})
	if err != nil || len(records) == 0 {
		return nil
	}

	e.emit(records)
	if e.bus != nil {
		e.bus.Publish(events.EventSnapshot, snap)
	}
	return records
}

// ApplyConfig validates and applies a config patch under the window's
// lock, persists the result, and notifies listeners. An invalid patch
// leaves the prior config in effect.
func (e *Engine) ApplyConfig(ctx context.Context, windowID, name, ticker string, p state.ConfigPatch) (state.RuleConfig, error) {
	cfg, err := e.store.ApplyPatch(windowID, p)
	if err != nil {
		return cfg, err
	}
	if name != "" || ticker != "" {
		e.store.Update(windowID, func(bs *state.BotState) {
			if name != "" {
				bs.Name = name
			}
			if ticker != "" {
				bs.Ticker = ticker
			}
		})
	}
	if e.db != nil {
		if err := e.db.UpsertBot(ctx, state.BotFromConfig(windowID, name, ticker, cfg)); err != nil {
			return cfg, fmt.Errorf("persist config: %w", err)
		}
	}
	if e.bus != nil {
		e.bus.Publish(events.EventConfigUpdate, map[string]any{
			"window_id": windowID,
			"config":    cfg,
		})
	}
	e.log.Info().Str("window_id", windowID).Msg("config updated")
	return cfg, nil
}

// RemoveWindow force-closes any open position, then drops the window from
// the store and the database.
func (e *Engine) RemoveWindow(ctx context.Context, windowID string) ([]state.TradeRecord, error) {
	records := e.closeWindow(windowID, ReasonIncomplete)
	if !e.store.Remove(windowID) {
		return records, state.ErrUnknownWindow
	}
	if e.db != nil {
		if err := e.db.DeleteBot(ctx, windowID); err != nil {
			return records, fmt.Errorf("delete bot: %w", err)
		}
	}
	if e.bus != nil {
		e.bus.Publish(events.EventBotRemoved, map[string]any{"window_id": windowID})
	}
	e.log.Info().Str("window_id", windowID).Msg("window removed")
	return records, nil
}

func (e *Engine) emit(records []state.TradeRecord) {
	if e.recorder == nil {
		return
	}
	for _, r := range records {
		e.recorder.RecordTrade(r)
	}
}
