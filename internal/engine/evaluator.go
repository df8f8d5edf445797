package engine

import (
	"time"

	"github.com/MahyudeenShahid/trade-analysis/internal/state"
)

// evalCtx is the scratch space for one tick's evaluation. next starts as a
// copy of the stored rule bookkeeping and is advanced by each rule that
// runs; the ledger persists it afterwards.
type evalCtx struct {
	s    *state.BotState
	cfg  state.RuleConfig
	tick Tick
	next state.RuleState
}

type ruleFn func(*evalCtx) (Decision, bool)

// evalOrder is the precedence policy as data: rules run top to bottom and
// the first one to claim the tick decides it. Rules after the claim do not
// run, so their bookkeeping does not advance on that tick either. Exit
// rules go first (stop loss and drop streak ahead of take profit), then
// the self-contained rules, then the momentum entry, then the default
// trade as the fallback.
var evalOrder = []ruleFn{
	evalStopLoss,
	evalConsecutiveDrops,
	evalTakeProfit,
	evalReversalScalp,
	evalDowntrendHold,
	evalOffsetFlow,
	evalRapidFlipScalp,
	evalMomentumEntry,
	evalDefaultTrade,
}

// Evaluate decides one tick against the window's current state. It reads
// but never mutates the state; the returned Decision carries the advanced
// rule bookkeeping for the ledger to apply.
func Evaluate(s *state.BotState, tick Tick) Decision {
	c := &evalCtx{s: s, cfg: s.Config, tick: tick, next: s.Rules}
	for _, fn := range evalOrder {
		if d, claimed := fn(c); claimed {
			d.Rules = c.next
			return d
		}
	}
	return Decision{Action: ActionNone, Rules: c.next}
}

// evalStopLoss sells as soon as the price falls to the stop distance below
// entry. A zero stop_loss_amount means "sell at or below entry".
func evalStopLoss(c *evalCtx) (Decision, bool) {
	if !c.cfg.Rule2Enabled || c.s.Position != state.PositionOpen {
		return Decision{}, false
	}
	if c.tick.Price <= c.s.EntryPrice-c.cfg.StopLossAmount {
		return Decision{Action: ActionSell, Reason: ReasonStopLoss, Price: c.tick.Price}, true
	}
	return Decision{}, false
}

// evalConsecutiveDrops sells once the running downtick streak, extended by
// this tick, reaches the configured count.
func evalConsecutiveDrops(c *evalCtx) (Decision, bool) {
	if !c.cfg.Rule3Enabled || c.s.Position != state.PositionOpen {
		return Decision{}, false
	}
	if !c.s.HasLast {
		return Decision{}, false
	}
	if nextDropStreak(c.s.DropStreak, c.s.LastPrice, c.tick.Price) >= c.cfg.Rule3DropCount {
		return Decision{Action: ActionSell, Reason: ReasonConsecutiveDrops, Price: c.tick.Price}, true
	}
	return Decision{}, false
}

// nextDropStreak advances the consecutive-downtick count: a price below
// the previous tick extends the streak, anything at or above it resets.
func nextDropStreak(streak int, lastPrice, price float64) int {
	if price < lastPrice {
		return streak + 1
	}
	return 0
}

// evalTakeProfit sells once the price reaches the profit distance above
// entry.
func evalTakeProfit(c *evalCtx) (Decision, bool) {
	if !c.cfg.Rule1Enabled || c.s.Position != state.PositionOpen {
		return Decision{}, false
	}
	if c.tick.Price >= c.s.EntryPrice+c.cfg.TakeProfitAmount {
		return Decision{Action: ActionSell, Reason: ReasonTakeProfit, Price: c.tick.Price}, true
	}
	return Decision{}, false
}

// evalReversalScalp (rule 5) trades the bounce after a sustained
// downtrend: on the flip up it buys and arms a reversal target; hitting
// the target sells and switches to scalp mode, where every up tick while
// flat produces an instant buy/sell pair until the trend turns.
func evalReversalScalp(c *evalCtx) (Decision, bool) {
	if !c.cfg.Rule5Enabled {
		return Decision{}, false
	}
	wait := minutesOr(c.cfg.Rule5DownMinutes, 3)
	reversal := amountOr(c.cfg.Rule5ReversalAmount, 2.0, 0.1)
	scalp := amountOr(c.cfg.Rule5ScalpAmount, 0.25, 0.01)
	r := &c.next

	// Waiting on the reversal target. Claim every tick so no other rule
	// closes the position early.
	if r.Rule5ReversalArmed {
		if c.tick.Price >= r.Rule5ReversalPrice+reversal {
			r.Rule5ReversalArmed = false
			r.Rule5ReversalPrice = 0
			r.Rule5ScalpActive = true
			return Decision{Action: ActionSell, Reason: ReasonRule5, Price: c.tick.Price}, true
		}
		return Decision{Action: ActionNone}, true
	}

	// Scalp mode lasts while the uptrend does.
	if r.Rule5ScalpActive {
		if c.tick.Trend != state.TrendUp {
			r.Rule5ScalpActive = false
		} else {
			if c.s.Position == state.PositionNone {
				buy := c.tick.Price - scalp
				return Decision{
					Action:    ActionBuy,
					Reason:    ReasonRule5,
					Price:     buy,
					ScalpExit: c.tick.Price + scalp,
				}, true
			}
			return Decision{Action: ActionNone}, true
		}
	}

	// Track how long the downtrend has run. Readiness survives flat ticks
	// until an up tick spends it.
	if c.tick.Trend == state.TrendDown {
		if r.Rule5DownSince.IsZero() {
			r.Rule5DownSince = c.tick.TS
		} else if c.tick.TS.Sub(r.Rule5DownSince) >= wait {
			r.Rule5Ready = true
		}
	} else if !r.Rule5Ready {
		r.Rule5DownSince = time.Time{}
	}

	if r.Rule5Ready && c.tick.Trend == state.TrendUp {
		r.Rule5Ready = false
		r.Rule5DownSince = time.Time{}
		r.Rule5ReversalPrice = c.tick.Price
		r.Rule5ReversalArmed = true
		if c.s.Position == state.PositionNone {
			return Decision{Action: ActionBuy, Reason: ReasonRule5, Price: c.tick.Price}, true
		}
		return Decision{Action: ActionNone}, true
	}

	return Decision{}, false
}

// evalDowntrendHold (rule 6) buys the flip after a longer downtrend and
// holds until a fixed profit target, claiming ticks in between.
func evalDowntrendHold(c *evalCtx) (Decision, bool) {
	if !c.cfg.Rule6Enabled {
		return Decision{}, false
	}
	wait := minutesOr(c.cfg.Rule6DownMinutes, 5)
	target := amountOr(c.cfg.Rule6ProfitAmount, 2.0, 0.1)
	r := &c.next

	if r.Rule6Active && c.s.Position == state.PositionOpen {
		if c.tick.Price >= c.s.EntryPrice+target {
			r.Rule6Active = false
			return Decision{Action: ActionSell, Reason: ReasonRule6, Price: c.tick.Price}, true
		}
		return Decision{Action: ActionNone}, true
	}

	if c.tick.Trend == state.TrendDown {
		if r.Rule6DownSince.IsZero() {
			r.Rule6DownSince = c.tick.TS
		} else if c.tick.TS.Sub(r.Rule6DownSince) >= wait {
			r.Rule6Ready = true
		}
	} else if !r.Rule6Ready {
		r.Rule6DownSince = time.Time{}
	}

	if r.Rule6Ready && c.tick.Trend == state.TrendUp {
		r.Rule6Ready = false
		r.Rule6DownSince = time.Time{}
		r.Rule6Active = true
		if c.s.Position == state.PositionNone {
			return Decision{Action: ActionBuy, Reason: ReasonRule6, Price: c.tick.Price}, true
		}
		return Decision{Action: ActionNone}, true
	}

	return Decision{}, false
}

// evalOffsetFlow (rule 8) claims every tick while enabled: buy below
// market when flat, sell above market when holding.
func evalOffsetFlow(c *evalCtx) (Decision, bool) {
	if !c.cfg.Rule8Enabled {
		return Decision{}, false
	}
	if c.s.Position == state.PositionNone {
		return Decision{
			Action: ActionBuy,
			Reason: ReasonRule8,
			Price:  c.tick.Price - c.cfg.Rule8BuyOffset,
		}, true
	}
	return Decision{
		Action: ActionSell,
		Reason: ReasonRule8,
		Price:  c.tick.Price + c.cfg.Rule8SellOffset,
	}, true
}

// evalRapidFlipScalp (rule 9) counts up/down flips inside a rolling time
// window; enough flips while flat trigger an instant buy/sell pair. Flat
// ticks neither count nor claim.
func evalRapidFlipScalp(c *evalCtx) (Decision, bool) {
	if !c.cfg.Rule9Enabled {
		return Decision{}, false
	}
	if c.tick.Trend != state.TrendUp && c.tick.Trend != state.TrendDown {
		return Decision{}, false
	}
	amt := amountOr(c.cfg.Rule9ScalpAmount, 0.25, 0.01)
	flipsNeeded := countOr(c.cfg.Rule9FlipCount, 3)
	window := minutesOr(c.cfg.Rule9WindowMinutes, 3)
	r := &c.next

	if r.Rule9WindowStart.IsZero() || c.tick.TS.Sub(r.Rule9WindowStart) > window {
		r.Rule9WindowStart = c.tick.TS
		r.Rule9FlipCount = 0
		r.Rule9LastTrend = c.tick.Trend
	}

	if r.Rule9LastTrend != "" && c.tick.Trend != r.Rule9LastTrend {
		r.Rule9FlipCount++
		r.Rule9LastTrend = c.tick.Trend
	}

	if r.Rule9FlipCount >= flipsNeeded {
		r.Rule9WindowStart = time.Time{}
		r.Rule9FlipCount = 0
		r.Rule9LastTrend = ""
		if c.s.Position == state.PositionNone {
			buy := c.tick.Price - amt
			return Decision{
				Action:    ActionBuy,
				Reason:    ReasonRule9,
				Price:     buy,
				ScalpExit: buy + amt,
			}, true
		}
	}

	return Decision{}, false
}

// evalMomentumEntry (rule 7) buys after a sustained uptrend. It has no
// exit of its own: once holding, it stands aside and only exit-capable
// rules or the default trade can close the position.
func evalMomentumEntry(c *evalCtx) (Decision, bool) {
	if !c.cfg.Rule7Enabled {
		return Decision{}, false
	}
	r := &c.next
	if r.Rule7Active && c.s.Position == state.PositionOpen {
		return Decision{}, false
	}
	wait := minutesOr(c.cfg.Rule7UpMinutes, 3)

	if c.tick.Trend == state.TrendUp {
		if r.Rule7UpSince.IsZero() {
			r.Rule7UpSince = c.tick.TS
		} else if c.tick.TS.Sub(r.Rule7UpSince) >= wait {
			r.Rule7Ready = true
		}
	} else if !r.Rule7Ready {
		r.Rule7UpSince = time.Time{}
	}

	if r.Rule7Ready && c.tick.Trend == state.TrendUp {
		r.Rule7Ready = false
		r.Rule7UpSince = time.Time{}
		r.Rule7Active = true
		if c.s.Position == state.PositionNone {
			return Decision{Action: ActionBuy, Reason: ReasonRule7, Price: c.tick.Price}, true
		}
		return Decision{Action: ActionNone}, true
	}

	return Decision{}, false
}

// evalDefaultTrade is the baseline fallback: buy on an up trend while
// flat, sell on a down trend while holding.
func evalDefaultTrade(c *evalCtx) (Decision, bool) {
	if !c.cfg.DefaultTradeEnabled {
		return Decision{}, false
	}
	switch {
	case c.tick.Trend == state.TrendUp && c.s.Position == state.PositionNone:
		return Decision{Action: ActionBuy, Reason: ReasonDefaultTrade, Price: c.tick.Price}, true
	case c.tick.Trend == state.TrendDown && c.s.Position == state.PositionOpen:
		return Decision{Action: ActionSell, Reason: ReasonDefaultTrade, Price: c.tick.Price}, true
	}
	return Decision{}, false
}

// minutesOr converts a configured minute count to a duration, substituting
// def when the value is unset.
func minutesOr(m, def int) time.Duration {
	if m <= 0 {
		m = def
	}
	return time.Duration(m) * time.Minute
}

// amountOr substitutes def for an unset amount and floors the result.
func amountOr(v, def, floor float64) float64 {
	if v <= 0 {
		v = def
	}
	if v < floor {
		v = floor
	}
	return v
}

func countOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
