package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MahyudeenShahid/trade-analysis/internal/state"
)

// Apply executes a Decision against a window's state and returns the trade
// records it produced. Guard violations (BUY while holding, SELL while
// flat) discard the offending action and are reported back for the caller
// to log; per-tick bookkeeping still runs and last_price is written last,
// so the next evaluation compares against this tick.
func Apply(s *state.BotState, tick Tick, d Decision) ([]state.TradeRecord, []string) {
	var (
		records    []state.TradeRecord
		violations []string
	)

	if tick.Ticker != "" {
		s.Ticker = tick.Ticker
	}
	if tick.Name != "" {
		s.Name = tick.Name
	}

	// Streak and peak advance against the previous tick before any action
	// lands.
	if s.Position == state.PositionOpen {
		if s.HasLast {
			s.DropStreak = nextDropStreak(s.DropStreak, s.LastPrice, tick.Price)
		}
		if tick.Price > s.PeakPrice {
			s.PeakPrice = tick.Price
		}
	}

	s.Rules = d.Rules

	switch d.Action {
	case ActionBuy:
		rec, err := openPosition(s, tick, d.Price)
		if err != nil {
			violations = append(violations, err.Error())
			break
		}
		records = append(records, rec)
		if d.ScalpExit != 0 {
			exit, err := closePosition(s, tick, d.ScalpExit, d.Reason)
			if err != nil {
				violations = append(violations, err.Error())
				break
			}
			records = append(records, exit)
		}
	case ActionSell:
		rec, err := closePosition(s, tick, d.Price, d.Reason)
		if err != nil {
			violations = append(violations, err.Error())
			break
		}
		records = append(records, rec)
	}

	s.LastPrice = tick.Price
	s.HasLast = true
	return records, violations
}

// ForceClose sells an open position at its entry price so the closing leg
// carries zero profit, keeping buy/sell legs paired in history. It skips
// tick bookkeeping and leaves last_price untouched. Returns false when the
// window holds no position.
func ForceClose(s *state.BotState, reason string, ts time.Time) (state.TradeRecord, bool) {
	if s.Position != state.PositionOpen {
		return state.TradeRecord{}, false
	}
	rec, err := closePosition(s, Tick{WindowID: s.WindowID, TS: ts}, s.EntryPrice, reason)
	if err != nil {
		return state.TradeRecord{}, false
	}
	return rec, true
}

func openPosition(s *state.BotState, tick Tick, price float64) (state.TradeRecord, error) {
	if s.Position == state.PositionOpen {
		return state.TradeRecord{}, fmt.Errorf("window %s: BUY while position already open", s.WindowID)
	}
	s.Position = state.PositionOpen
	s.EntryPrice = price
	s.PeakPrice = price
	s.DropStreak = 0
	s.TradeID = uuid.NewString()
	s.OpenedAt = tick.TS

	rec := state.TradeRecord{
		ID:       uuid.NewString(),
		TradeID:  s.TradeID,
		WindowID: s.WindowID,
		Ticker:   s.Ticker,
		Side:     state.SideBuy,
		Price:    price,
		TS:       tick.TS,
	}
	s.RecordTrade(rec)
	return rec, nil
}

func closePosition(s *state.BotState, tick Tick, price float64, reason string) (state.TradeRecord, error) {
	if s.Position != state.PositionOpen {
		return state.TradeRecord{}, fmt.Errorf("window %s: SELL with no open position", s.WindowID)
	}
	rec := state.TradeRecord{
		ID:        uuid.NewString(),
		TradeID:   s.TradeID,
		WindowID:  s.WindowID,
		Ticker:    s.Ticker,
		Side:      state.SideSell,
		Price:     price,
		Profit:    price - s.EntryPrice,
		WinReason: reason,
		TS:        tick.TS,
	}
	s.Position = state.PositionNone
	s.EntryPrice = 0
	s.PeakPrice = 0
	s.DropStreak = 0
	s.TradeID = ""
	s.OpenedAt = time.Time{}
	s.RecordTrade(rec)
	return rec, nil
}
