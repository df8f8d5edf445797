package engine

import (
	"testing"
	"time"

	"github.com/MahyudeenShahid/trade-analysis/internal/state"
)

var testBase = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

func tickAt(price float64, trend state.Trend, offset time.Duration) Tick {
	return Tick{WindowID: "w-1", Price: price, Trend: trend, TS: testBase.Add(offset)}
}

func testState(cfg state.RuleConfig) *state.BotState {
	return &state.BotState{WindowID: "w-1", Position: state.PositionNone, Config: cfg}
}

// advance runs one tick through evaluate-then-apply, the same sequence the
// engine runs under the window lock.
func advance(s *state.BotState, tk Tick) (Decision, []state.TradeRecord) {
	d := Evaluate(s, tk)
	records, _ := Apply(s, tk, d)
	return d, records
}

// Ensures the stop loss closes a position on the first tick at or below the
// stop distance, and holds above it, even with the take profit armed too.
func TestStopLossFiresAtThreshold(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.DefaultTradeEnabled = true
	cfg.Rule1Enabled = true
	cfg.TakeProfitAmount = 0.5
	cfg.Rule2Enabled = true
	cfg.StopLossAmount = 0.05
	s := testState(cfg)

	d, records := advance(s, tickAt(100, state.TrendUp, 0))
	if d.Action != ActionBuy || len(records) != 1 {
		t.Fatalf("action=%s records=%d, expected an opening BUY", d.Action, len(records))
	}

	d, records = advance(s, tickAt(99.97, state.TrendFlat, time.Second))
	if d.Action != ActionNone || len(records) != 0 {
		t.Fatalf("action=%s at 99.97, expected NONE above the stop", d.Action)
	}

	d, records = advance(s, tickAt(99.94, state.TrendFlat, 2*time.Second))
	if d.Action != ActionSell || d.Reason != ReasonStopLoss {
		t.Fatalf("action=%s reason=%s, expected SELL %s", d.Action, d.Reason, ReasonStopLoss)
	}
	if len(records) != 1 || records[0].Price != 99.94 {
		t.Fatalf("records=%+v, expected one SELL leg at 99.94", records)
	}
	if s.Position != state.PositionNone {
		t.Fatalf("position=%s, expected NONE after the stop loss", s.Position)
	}
}

// Exit rules fire in a fixed order when several are ready on the same tick:
// stop loss, then drop streak, then take profit.
func TestExitRuleOrder(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*state.RuleConfig)
		streak     int
		lastPrice  float64
		tick       Tick
		wantReason string
	}{
		{
			name: "stop loss beats take profit at entry when both amounts are zero",
			mutate: func(c *state.RuleConfig) {
				c.Rule1Enabled = true
				c.Rule2Enabled = true
			},
			lastPrice:  100,
			tick:       tickAt(100, state.TrendFlat, time.Second),
			wantReason: ReasonStopLoss,
		},
		{
			name: "drop streak beats take profit",
			mutate: func(c *state.RuleConfig) {
				c.Rule1Enabled = true
				c.TakeProfitAmount = 0.1
				c.Rule3Enabled = true
				c.Rule3DropCount = 2
			},
			streak:     1,
			lastPrice:  100.5,
			tick:       tickAt(100.3, state.TrendFlat, time.Second),
			wantReason: ReasonConsecutiveDrops,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := state.DefaultConfig()
			tt.mutate(&cfg)
			s := testState(cfg)
			s.Position = state.PositionOpen
			s.EntryPrice = 100
			s.PeakPrice = tt.lastPrice
			s.LastPrice = tt.lastPrice
			s.HasLast = true
			s.DropStreak = tt.streak
			s.TradeID = "t-1"

			d := Evaluate(s, tt.tick)
			if d.Action != ActionSell || d.Reason != tt.wantReason {
				t.Fatalf("action=%s reason=%s, expected SELL %s", d.Action, d.Reason, tt.wantReason)
			}
		})
	}
}

// Walks the drop-streak exit: entry at 100, a peak tick, then two
// consecutive drops with rule_3_drop_count=2 sell on the second drop.
func TestConsecutiveDropsSellOnSecondDrop(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.DefaultTradeEnabled = true
	cfg.Rule3Enabled = true
	cfg.Rule3DropCount = 2
	s := testState(cfg)

	d, _ := advance(s, tickAt(100, state.TrendUp, 0))
	if d.Action != ActionBuy {
		t.Fatalf("action=%s, expected BUY", d.Action)
	}

	d, _ = advance(s, tickAt(100.75, state.TrendFlat, time.Second))
	if d.Action != ActionNone {
		t.Fatalf("action=%s, expected NONE on the peak tick", d.Action)
	}
	if s.PeakPrice != 100.75 {
		t.Fatalf("PeakPrice=%v, expected 100.75", s.PeakPrice)
	}
	if s.DropStreak != 0 {
		t.Fatalf("DropStreak=%d, expected 0 after an up move", s.DropStreak)
	}

	d, _ = advance(s, tickAt(100.45, state.TrendFlat, 2*time.Second))
	if d.Action != ActionNone {
		t.Fatalf("action=%s, expected NONE on the first drop", d.Action)
	}
	if s.DropStreak != 1 {
		t.Fatalf("DropStreak=%d, expected 1", s.DropStreak)
	}

	d, records := advance(s, tickAt(100.35, state.TrendFlat, 3*time.Second))
	if d.Action != ActionSell || d.Reason != ReasonConsecutiveDrops {
		t.Fatalf("action=%s reason=%s, expected SELL %s", d.Action, d.Reason, ReasonConsecutiveDrops)
	}
	if len(records) != 1 || records[0].Price != 100.35 {
		t.Fatalf("records=%+v, expected one SELL leg at 100.35", records)
	}
}

// Any up move, and an unchanged price, reset the drop streak; a further
// drop extends it.
func TestDropStreakReset(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		want  int
	}{
		{"small uptick", 99.81, 0},
		{"unchanged price", 99.8, 0},
		{"further drop", 99.79, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := state.DefaultConfig()
			cfg.DefaultTradeEnabled = true
			cfg.Rule3Enabled = true
			cfg.Rule3DropCount = 10
			s := testState(cfg)

			advance(s, tickAt(100, state.TrendUp, 0))
			advance(s, tickAt(99.9, state.TrendFlat, time.Second))
			advance(s, tickAt(99.8, state.TrendFlat, 2*time.Second))
			if s.DropStreak != 2 {
				t.Fatalf("DropStreak=%d, expected 2 before the probe tick", s.DropStreak)
			}

			advance(s, tickAt(tt.price, state.TrendFlat, 3*time.Second))
			if s.DropStreak != tt.want {
				t.Fatalf("DropStreak=%d, expected %d", s.DropStreak, tt.want)
			}
		})
	}
}

// A zero take_profit_amount sells at or above the entry price.
func TestTakeProfitZeroAmount(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule1Enabled = true
	s := testState(cfg)
	s.Position = state.PositionOpen
	s.EntryPrice = 100
	s.PeakPrice = 100
	s.TradeID = "t-1"

	if d := Evaluate(s, tickAt(99.99, state.TrendFlat, 0)); d.Action != ActionNone {
		t.Fatalf("action=%s below entry, expected NONE", d.Action)
	}
	d := Evaluate(s, tickAt(100, state.TrendFlat, time.Second))
	if d.Action != ActionSell || d.Reason != ReasonTakeProfit {
		t.Fatalf("action=%s reason=%s, expected SELL %s", d.Action, d.Reason, ReasonTakeProfit)
	}
}

// Walks the reversal scalp through a full cycle: downtrend wait, buy on the
// flip, armed sell at the reversal target, then instant pairs while the
// uptrend lasts.
func TestReversalScalpLifecycle(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule5Enabled = true
	cfg.Rule5DownMinutes = 1
	cfg.Rule5ReversalAmount = 0.5
	cfg.Rule5ScalpAmount = 0.25
	s := testState(cfg)

	advance(s, tickAt(100, state.TrendDown, 0))
	d, _ := advance(s, tickAt(99, state.TrendDown, 61*time.Second))
	if d.Action != ActionNone {
		t.Fatalf("action=%s, expected NONE while waiting out the downtrend", d.Action)
	}
	if !s.Rules.Rule5Ready {
		t.Fatalf("Rule5Ready=false, expected true after the wait elapsed")
	}

	d, records := advance(s, tickAt(99.5, state.TrendUp, 70*time.Second))
	if d.Action != ActionBuy || d.Reason != ReasonRule5 {
		t.Fatalf("action=%s reason=%s, expected BUY %s on the flip", d.Action, d.Reason, ReasonRule5)
	}
	if len(records) != 1 || records[0].Price != 99.5 {
		t.Fatalf("records=%+v, expected one BUY leg at 99.5", records)
	}
	if !s.Rules.Rule5ReversalArmed || s.Rules.Rule5ReversalPrice != 99.5 {
		t.Fatalf("armed=%v reversal=%v, expected armed at 99.5", s.Rules.Rule5ReversalArmed, s.Rules.Rule5ReversalPrice)
	}

	d, _ = advance(s, tickAt(99.8, state.TrendUp, 80*time.Second))
	if d.Action != ActionNone {
		t.Fatalf("action=%s below the reversal target, expected NONE", d.Action)
	}

	d, records = advance(s, tickAt(100.05, state.TrendUp, 90*time.Second))
	if d.Action != ActionSell || d.Reason != ReasonRule5 {
		t.Fatalf("action=%s reason=%s, expected SELL %s at target", d.Action, d.Reason, ReasonRule5)
	}
	if len(records) != 1 || records[0].Profit != 100.05-99.5 {
		t.Fatalf("records=%+v, expected profit %v", records, 100.05-99.5)
	}
	if !s.Rules.Rule5ScalpActive {
		t.Fatalf("Rule5ScalpActive=false, expected scalp mode after the reversal sell")
	}

	d, records = advance(s, tickAt(100.2, state.TrendUp, 100*time.Second))
	if d.Action != ActionBuy || len(records) != 2 {
		t.Fatalf("action=%s records=%d, expected an instant scalp pair", d.Action, len(records))
	}
	if records[0].Price != 100.2-0.25 || records[1].Price != 100.2+0.25 {
		t.Fatalf("pair prices %v/%v, expected %v/%v",
			records[0].Price, records[1].Price, 100.2-0.25, 100.2+0.25)
	}
	if records[0].TradeID != records[1].TradeID {
		t.Fatalf("trade ids %q/%q, expected one shared id", records[0].TradeID, records[1].TradeID)
	}
	if s.Position != state.PositionNone {
		t.Fatalf("position=%s, expected NONE after the pair", s.Position)
	}

	d, _ = advance(s, tickAt(100, state.TrendDown, 110*time.Second))
	if d.Action != ActionNone {
		t.Fatalf("action=%s, expected NONE once the trend turns", d.Action)
	}
	if s.Rules.Rule5ScalpActive {
		t.Fatalf("Rule5ScalpActive=true, expected scalp mode ended on the down trend")
	}
	if s.Rules.Rule5DownSince.IsZero() {
		t.Fatalf("Rule5DownSince unset, expected downtrend tracking to restart")
	}
}

// Downtrend readiness survives flat ticks until an up tick spends it.
func TestReversalReadinessSurvivesFlatTicks(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule5Enabled = true
	cfg.Rule5DownMinutes = 1
	s := testState(cfg)

	advance(s, tickAt(100, state.TrendDown, 0))
	advance(s, tickAt(99, state.TrendDown, 61*time.Second))
	advance(s, tickAt(99, state.TrendFlat, 90*time.Second))
	advance(s, tickAt(99, state.TrendFlat, 5*time.Minute))
	if !s.Rules.Rule5Ready {
		t.Fatalf("Rule5Ready=false, expected readiness kept through flat ticks")
	}

	d, _ := advance(s, tickAt(99.3, state.TrendUp, 6*time.Minute))
	if d.Action != ActionBuy || d.Reason != ReasonRule5 {
		t.Fatalf("action=%s reason=%s, expected the up tick to spend readiness", d.Action, d.Reason)
	}
	if s.Rules.Rule5Ready {
		t.Fatalf("Rule5Ready=true, expected it spent")
	}
}

// An armed reversal target fires even when the position is already gone;
// the ledger guard discards the sell so no orphan leg is recorded.
func TestArmedReversalSellWhileFlatIsDiscarded(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule5Enabled = true
	s := testState(cfg)
	s.Rules.Rule5ReversalArmed = true
	s.Rules.Rule5ReversalPrice = 99

	tk := tickAt(101.5, state.TrendUp, 0)
	d := Evaluate(s, tk)
	if d.Action != ActionSell || d.Reason != ReasonRule5 {
		t.Fatalf("action=%s reason=%s, expected the armed SELL", d.Action, d.Reason)
	}

	records, violations := Apply(s, tk, d)
	if len(records) != 0 {
		t.Fatalf("records=%+v, expected the flat sell discarded", records)
	}
	if len(violations) != 1 {
		t.Fatalf("violations=%v, expected one guard violation", violations)
	}
	if s.Rules.Rule5ReversalArmed || !s.Rules.Rule5ScalpActive {
		t.Fatalf("rules=%+v, expected disarm and scalp mode recorded despite the discard", s.Rules)
	}
}

// The downtrend hold buys the flip, claims ticks while below target so no
// later rule can close early, sells at target, then hands ticks back.
func TestDowntrendHoldLifecycle(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.DefaultTradeEnabled = true
	cfg.Rule6Enabled = true
	cfg.Rule6DownMinutes = 1
	cfg.Rule6ProfitAmount = 0.5
	s := testState(cfg)

	advance(s, tickAt(100, state.TrendDown, 0))
	advance(s, tickAt(99, state.TrendDown, 61*time.Second))

	d, _ := advance(s, tickAt(99.2, state.TrendUp, 70*time.Second))
	if d.Action != ActionBuy || d.Reason != ReasonRule6 {
		t.Fatalf("action=%s reason=%s, expected BUY %s on the flip", d.Action, d.Reason, ReasonRule6)
	}

	// A down tick below target: the hold claims it, so the default trade
	// cannot sell the position out from under it.
	d, _ = advance(s, tickAt(99.4, state.TrendDown, 80*time.Second))
	if d.Action != ActionNone {
		t.Fatalf("action=%s while holding below target, expected NONE", d.Action)
	}
	if s.Position != state.PositionOpen {
		t.Fatalf("position=%s, expected the hold to keep the position", s.Position)
	}

	d, records := advance(s, tickAt(99.8, state.TrendUp, 90*time.Second))
	if d.Action != ActionSell || d.Reason != ReasonRule6 {
		t.Fatalf("action=%s reason=%s, expected SELL %s at target", d.Action, d.Reason, ReasonRule6)
	}
	if len(records) != 1 || records[0].Profit != 99.8-99.2 {
		t.Fatalf("records=%+v, expected profit %v", records, 99.8-99.2)
	}
	if s.Rules.Rule6Active {
		t.Fatalf("Rule6Active=true, expected the hold ended at target")
	}

	// Deactivated: later rules see ticks again.
	advance(s, tickAt(99.5, state.TrendDown, 100*time.Second))
	d, _ = advance(s, tickAt(99.6, state.TrendUp, 110*time.Second))
	if d.Action != ActionBuy || d.Reason != ReasonDefaultTrade {
		t.Fatalf("action=%s reason=%s, expected the default trade to take over", d.Action, d.Reason)
	}
}

// With only the momentum entry enabled, an opened position never closes no
// matter what follows.
func TestMomentumEntryNeverSells(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule7Enabled = true
	cfg.Rule7UpMinutes = 1
	s := testState(cfg)

	d, _ := advance(s, tickAt(100, state.TrendUp, 0))
	if d.Action != ActionNone {
		t.Fatalf("action=%s, expected NONE while the up timer runs", d.Action)
	}

	d, records := advance(s, tickAt(101, state.TrendUp, 61*time.Second))
	if d.Action != ActionBuy || d.Reason != ReasonRule7 {
		t.Fatalf("action=%s reason=%s, expected BUY %s", d.Action, d.Reason, ReasonRule7)
	}
	if len(records) != 1 || records[0].Side != state.SideBuy {
		t.Fatalf("records=%+v, expected one BUY leg", records)
	}

	probes := []Tick{
		tickAt(90, state.TrendDown, 2*time.Minute),
		tickAt(80, state.TrendDown, 10*time.Minute),
		tickAt(120, state.TrendUp, 20*time.Minute),
		tickAt(120, state.TrendFlat, 30*time.Minute),
		tickAt(60, state.TrendDown, 40*time.Minute),
	}
	for _, tk := range probes {
		d, records := advance(s, tk)
		if d.Action != ActionNone || len(records) != 0 {
			t.Fatalf("tick %.0f %s: action=%s, expected NONE", tk.Price, tk.Trend, d.Action)
		}
	}
	if s.Position != state.PositionOpen {
		t.Fatalf("position=%s, expected the position held forever", s.Position)
	}
}

// The offset rule alternates: buy below market when flat, sell above when
// holding, claiming every tick regardless of trend.
func TestOffsetFlowAlternates(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule8Enabled = true
	cfg.Rule8BuyOffset = 0.25
	cfg.Rule8SellOffset = 0.1
	s := testState(cfg)

	d, records := advance(s, tickAt(100, state.TrendFlat, 0))
	if d.Action != ActionBuy || d.Reason != ReasonRule8 {
		t.Fatalf("action=%s reason=%s, expected BUY %s", d.Action, d.Reason, ReasonRule8)
	}
	if len(records) != 1 || records[0].Price != 100-0.25 {
		t.Fatalf("records=%+v, expected a BUY at %v", records, 100-0.25)
	}

	d, records = advance(s, tickAt(100, state.TrendDown, time.Second))
	if d.Action != ActionSell || d.Reason != ReasonRule8 {
		t.Fatalf("action=%s reason=%s, expected SELL %s", d.Action, d.Reason, ReasonRule8)
	}
	if len(records) != 1 || records[0].Price != 100+0.1 {
		t.Fatalf("records=%+v, expected a SELL at %v", records, 100+0.1)
	}
	if records[0].Profit != (100+0.1)-(100-0.25) {
		t.Fatalf("Profit=%v, expected %v", records[0].Profit, (100+0.1)-(100-0.25))
	}

	d, _ = advance(s, tickAt(100, state.TrendUp, 2*time.Second))
	if d.Action != ActionBuy {
		t.Fatalf("action=%s, expected the flow to buy again once flat", d.Action)
	}
}

// Explicit zero offsets trade at the observed price instead of being
// replaced by defaults.
func TestOffsetFlowZeroOffsets(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule8Enabled = true
	cfg.Rule8BuyOffset = 0
	cfg.Rule8SellOffset = 0
	s := testState(cfg)

	_, records := advance(s, tickAt(50, state.TrendFlat, 0))
	if len(records) != 1 || records[0].Price != 50 {
		t.Fatalf("records=%+v, expected a BUY at 50", records)
	}
	_, records = advance(s, tickAt(50, state.TrendFlat, time.Second))
	if len(records) != 1 || records[0].Price != 50 || records[0].Profit != 0 {
		t.Fatalf("records=%+v, expected a SELL at 50 with zero profit", records)
	}
}

// Reaching the flip count while flat produces an instant pair whose exit
// sits one scalp amount above the discounted buy, i.e. at the observed
// price.
func TestRapidFlipScalpPair(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule9Enabled = true
	cfg.Rule9FlipCount = 2
	cfg.Rule9WindowMinutes = 3
	cfg.Rule9ScalpAmount = 0.25
	s := testState(cfg)

	d, _ := advance(s, tickAt(100, state.TrendUp, 0))
	if d.Action != ActionNone {
		t.Fatalf("action=%s, expected NONE on the first trend sample", d.Action)
	}

	advance(s, tickAt(100, state.TrendDown, 10*time.Second))
	if s.Rules.Rule9FlipCount != 1 {
		t.Fatalf("Rule9FlipCount=%d, expected 1", s.Rules.Rule9FlipCount)
	}

	d, records := advance(s, tickAt(100, state.TrendUp, 20*time.Second))
	if d.Action != ActionBuy || d.Reason != ReasonRule9 {
		t.Fatalf("action=%s reason=%s, expected BUY %s", d.Action, d.Reason, ReasonRule9)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, expected an instant pair", len(records))
	}
	if records[0].Price != 100-0.25 || records[1].Price != 100 {
		t.Fatalf("pair prices %v/%v, expected %v/100", records[0].Price, records[1].Price, 100-0.25)
	}
	if records[1].Profit != 0.25 {
		t.Fatalf("Profit=%v, expected 0.25", records[1].Profit)
	}
	if s.Rules.Rule9FlipCount != 0 || !s.Rules.Rule9WindowStart.IsZero() || s.Rules.Rule9LastTrend != "" {
		t.Fatalf("rules=%+v, expected flip bookkeeping fully reset after firing", s.Rules)
	}
}

// Flat ticks neither count as flips nor touch the flip window.
func TestRapidFlipScalpIgnoresFlatTicks(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule9Enabled = true
	cfg.Rule9FlipCount = 3
	s := testState(cfg)

	advance(s, tickAt(100, state.TrendUp, 0))
	advance(s, tickAt(100, state.TrendDown, 10*time.Second))
	before := s.Rules

	advance(s, tickAt(100, state.TrendFlat, 20*time.Second))
	if s.Rules != before {
		t.Fatalf("bookkeeping changed on a flat tick: %+v -> %+v", before, s.Rules)
	}
}

// A tick past the window starts a fresh window and flip count.
func TestRapidFlipScalpWindowExpiry(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule9Enabled = true
	cfg.Rule9FlipCount = 3
	cfg.Rule9WindowMinutes = 1
	s := testState(cfg)

	advance(s, tickAt(100, state.TrendUp, 0))
	advance(s, tickAt(100, state.TrendDown, 10*time.Second))
	advance(s, tickAt(100, state.TrendUp, 61*time.Second))
	if s.Rules.Rule9FlipCount != 0 {
		t.Fatalf("Rule9FlipCount=%d, expected 0 after the window elapsed", s.Rules.Rule9FlipCount)
	}
	if !s.Rules.Rule9WindowStart.Equal(testBase.Add(61 * time.Second)) {
		t.Fatalf("Rule9WindowStart=%v, expected the expiring tick to start the new window", s.Rules.Rule9WindowStart)
	}
}

// Enough flips while a position is open resets the counter without firing
// and without claiming the tick.
func TestRapidFlipScalpWhileHolding(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule9Enabled = true
	cfg.Rule9FlipCount = 2
	s := testState(cfg)
	s.Position = state.PositionOpen
	s.EntryPrice = 99
	s.PeakPrice = 99
	s.TradeID = "t-held"

	advance(s, tickAt(100, state.TrendUp, 0))
	advance(s, tickAt(100, state.TrendDown, 10*time.Second))
	d, records := advance(s, tickAt(100, state.TrendUp, 20*time.Second))
	if d.Action != ActionNone || len(records) != 0 {
		t.Fatalf("action=%s records=%d, expected no pair while holding", d.Action, len(records))
	}
	if s.Rules.Rule9FlipCount != 0 {
		t.Fatalf("Rule9FlipCount=%d, expected the threshold to reset the counter", s.Rules.Rule9FlipCount)
	}
	if s.Position != state.PositionOpen {
		t.Fatalf("position=%s, expected OPEN untouched", s.Position)
	}
}

// The default trade buys up trends while flat and sells down trends while
// holding, ignoring flat ticks.
func TestDefaultTrade(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.DefaultTradeEnabled = true
	s := testState(cfg)

	if d, _ := advance(s, tickAt(100, state.TrendFlat, 0)); d.Action != ActionNone {
		t.Fatalf("action=%s on a flat tick, expected NONE", d.Action)
	}
	if d, _ := advance(s, tickAt(100, state.TrendDown, time.Second)); d.Action != ActionNone {
		t.Fatalf("action=%s on a down tick while flat, expected NONE", d.Action)
	}

	d, _ := advance(s, tickAt(100, state.TrendUp, 2*time.Second))
	if d.Action != ActionBuy || d.Reason != ReasonDefaultTrade {
		t.Fatalf("action=%s reason=%s, expected BUY %s", d.Action, d.Reason, ReasonDefaultTrade)
	}

	if d, _ := advance(s, tickAt(101, state.TrendUp, 3*time.Second)); d.Action != ActionNone {
		t.Fatalf("action=%s on an up tick while open, expected NONE", d.Action)
	}

	d, records := advance(s, tickAt(99, state.TrendDown, 4*time.Second))
	if d.Action != ActionSell || d.Reason != ReasonDefaultTrade {
		t.Fatalf("action=%s reason=%s, expected SELL %s", d.Action, d.Reason, ReasonDefaultTrade)
	}
	if len(records) != 1 || records[0].Profit != 99.0-100.0 {
		t.Fatalf("records=%+v, expected the loss carried on the sell leg", records)
	}
}

// A claim earlier in the rule order leaves later rules' bookkeeping
// untouched, so their windows never advance on ticks they did not see.
func TestClaimFreezesLaterRuleBookkeeping(t *testing.T) {
	cfg := state.DefaultConfig()
	cfg.Rule8Enabled = true
	cfg.Rule9Enabled = true
	cfg.Rule9FlipCount = 2
	s := testState(cfg)

	advance(s, tickAt(100, state.TrendUp, 0))
	advance(s, tickAt(100, state.TrendDown, 10*time.Second))
	if s.Rules.Rule9FlipCount != 0 || !s.Rules.Rule9WindowStart.IsZero() {
		t.Fatalf("rules=%+v, expected no flip bookkeeping while the offset flow claims every tick", s.Rules)
	}
}

// Unset or out-of-range parameters fall back to the documented defaults
// and floors at evaluation time.
func TestParameterFallbacks(t *testing.T) {
	if got := minutesOr(0, 3); got != 3*time.Minute {
		t.Fatalf("minutesOr(0, 3)=%v, expected 3m", got)
	}
	if got := minutesOr(-5, 3); got != 3*time.Minute {
		t.Fatalf("minutesOr(-5, 3)=%v, expected 3m", got)
	}
	if got := minutesOr(7, 3); got != 7*time.Minute {
		t.Fatalf("minutesOr(7, 3)=%v, expected 7m", got)
	}
	if got := amountOr(0, 2.0, 0.1); got != 2.0 {
		t.Fatalf("amountOr(0, 2, 0.1)=%v, expected 2", got)
	}
	if got := amountOr(0.05, 2.0, 0.1); got != 0.1 {
		t.Fatalf("amountOr(0.05, 2, 0.1)=%v, expected the 0.1 floor", got)
	}
	if got := amountOr(1.5, 2.0, 0.1); got != 1.5 {
		t.Fatalf("amountOr(1.5, 2, 0.1)=%v, expected 1.5", got)
	}
	if got := countOr(0, 3); got != 3 {
		t.Fatalf("countOr(0, 3)=%d, expected 3", got)
	}
	if got := countOr(4, 3); got != 4 {
		t.Fatalf("countOr(4, 3)=%d, expected 4", got)
	}
}
