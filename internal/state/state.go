package state

import (
	"strconv"
	"strings"
	"time"
)

// Position is the simulated holding state for a window.
type Position string

const (
	PositionNone Position = "NONE"
	PositionOpen Position = "OPEN"
)

// Trend is the direction label attached to a tick.
type Trend string

const (
	TrendUp   Trend = "UP"
	TrendDown Trend = "DOWN"
	TrendFlat Trend = "FLAT"
)

// Trade sides as stored on trade records.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// ParseTrend normalizes a raw trend label. Unrecognized labels map to
// FLAT; the second return reports whether the input was a known label so
// the caller can log the original value.
func ParseTrend(raw string) (Trend, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "UP":
		return TrendUp, true
	case "DOWN":
		return TrendDown, true
	case "FLAT", "":
		return TrendFlat, true
	}
	return TrendFlat, false
}

// ParsePrice accepts the price formats capture payloads carry, e.g.
// "1,234.56" or "$12.50".
func ParsePrice(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

// TradeRecord is one executed leg. BUY and SELL legs of the same position
// share a TradeID; Profit is meaningful on SELL legs only.
type TradeRecord struct {
	ID        string    `json:"id"`
	TradeID   string    `json:"trade_id"`
	WindowID  string    `json:"window_id"`
	Ticker    string    `json:"ticker,omitempty"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Profit    float64   `json:"profit"`
	WinReason string    `json:"win_reason,omitempty"`
	TS        time.Time `json:"ts"`
}

// RuleState carries the evaluator's per-window bookkeeping between ticks
// for the stateful rules (5, 6, 7 and 9).
type RuleState struct {
	Rule5DownSince     time.Time
	Rule5Ready         bool
	Rule5ReversalPrice float64
	Rule5ReversalArmed bool
	Rule5ScalpActive   bool

	Rule6DownSince time.Time
	Rule6Ready     bool
	Rule6Active    bool

	Rule7UpSince time.Time
	Rule7Ready   bool
	Rule7Active  bool

	Rule9WindowStart time.Time
	Rule9FlipCount   int
	Rule9LastTrend   Trend
}

// BotState is the full mutable record for one window. It is owned by the
// Manager and must only be touched inside Manager.Update.
type BotState struct {
	WindowID string
	Name     string
	Ticker   string

	Position   Position
	EntryPrice float64
	PeakPrice  float64
	DropStreak int
	LastPrice  float64
	HasLast    bool
	TradeID    string
	OpenedAt   time.Time

	Config RuleConfig
	Rules  RuleState

	TotalPnL   float64
	TradeCount int
	Wins       int
	Losses     int
	LastTrade  *TradeRecord

	UpdatedAt time.Time
}

// RecordTrade folds an executed leg into the running aggregates.
func (b *BotState) RecordTrade(rec TradeRecord) {
	b.TradeCount++
	if rec.Side == SideSell {
		b.TotalPnL += rec.Profit
		if rec.Profit > 0 {
			b.Wins++
		} else {
			b.Losses++
		}
	}
	r := rec
	b.LastTrade = &r
}

// Snapshot is the read-only view published to clients on every tick.
type Snapshot struct {
	WindowID   string    `json:"window_id"`
	Name       string    `json:"name,omitempty"`
	Ticker     string    `json:"ticker,omitempty"`
	Position   Position  `json:"position"`
	EntryPrice float64   `json:"entry_price"`
	PeakPrice  float64   `json:"peak_price"`
	DropStreak int       `json:"drop_streak"`
	LastPrice  float64   `json:"last_price"`
	TotalPnL   float64   `json:"total_pnl"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (b *BotState) Snapshot() Snapshot {
	return Snapshot{
		WindowID:   b.WindowID,
		Name:       b.Name,
		Ticker:     b.Ticker,
		Position:   b.Position,
		EntryPrice: b.EntryPrice,
		PeakPrice:  b.PeakPrice,
		DropStreak: b.DropStreak,
		LastPrice:  b.LastPrice,
		TotalPnL:   b.TotalPnL,
		UpdatedAt:  b.UpdatedAt,
	}
}

// Summary is the lifetime accounting view for one window.
type Summary struct {
	WindowID   string       `json:"window_id"`
	Name       string       `json:"name,omitempty"`
	Ticker     string       `json:"ticker,omitempty"`
	Position   Position     `json:"position"`
	EntryPrice float64      `json:"entry_price"`
	TotalPnL   float64      `json:"total_pnl"`
	Trades     int          `json:"trades"`
	Wins       int          `json:"wins"`
	Losses     int          `json:"losses"`
	WinRate    float64      `json:"win_rate"`
	LastTrade  *TradeRecord `json:"last_trade,omitempty"`
}

func (b *BotState) Summary() Summary {
	s := Summary{
		WindowID:   b.WindowID,
		Name:       b.Name,
		Ticker:     b.Ticker,
		Position:   b.Position,
		EntryPrice: b.EntryPrice,
		TotalPnL:   b.TotalPnL,
		Trades:     b.TradeCount,
		Wins:       b.Wins,
		Losses:     b.Losses,
	}
	if n := b.Wins + b.Losses; n > 0 {
		s.WinRate = float64(b.Wins) / float64(n)
	}
	if b.LastTrade != nil {
		r := *b.LastTrade
		s.LastTrade = &r
	}
	return s
}
