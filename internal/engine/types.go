package engine

import (
	"time"

	"github.com/MahyudeenShahid/trade-analysis/internal/state"
)

// Action is what a tick decided.
type Action string

const (
	ActionNone Action = "NONE"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Reason tags attached to decisions. SELL legs persist them as the trade's
// win reason; BUY decisions carry one for logging only, the stored BUY leg
// has none. RULE_7 never appears as a win reason because the momentum rule
// has no exit of its own.
const (
	ReasonTakeProfit       = "TAKE_PROFIT_RULE_1"
	ReasonStopLoss         = "STOP_LOSS_RULE_2"
	ReasonConsecutiveDrops = "CONSECUTIVE_DROPS_RULE_3"
	ReasonRule5            = "RULE_5"
	ReasonRule6            = "RULE_6"
	ReasonRule7            = "RULE_7"
	ReasonRule8            = "RULE_8"
	ReasonRule9            = "RULE_9"
	ReasonDefaultTrade     = "DEFAULT_TRADE"
	ReasonIncomplete       = "INCOMPLETE"
)

// Tick is one price/trend observation for a window. Ticker and Name ride
// along from the capture payload and refresh the window's identity.
type Tick struct {
	WindowID string      `json:"window_id"`
	Ticker   string      `json:"ticker,omitempty"`
	Name     string      `json:"name,omitempty"`
	Price    float64     `json:"price"`
	Trend    state.Trend `json:"trend"`
	TS       time.Time   `json:"ts"`
}

// Decision is the outcome of evaluating one tick: at most one action, the
// rule tag that triggered it, and the price the action executes at (offset
// rules buy below and sell above the observed price). ScalpExit, when set,
// is the paired instant-sell price for scalp entries. Rules carries the
// advanced rule bookkeeping for the ledger to store back.
type Decision struct {
	Action    Action          `json:"action"`
	Reason    string          `json:"reason,omitempty"`
	Price     float64         `json:"price,omitempty"`
	ScalpExit float64         `json:"-"`
	Rules     state.RuleState `json:"-"`
}

// Outcome bundles everything one processed tick produced.
type Outcome struct {
	Tick     Tick                `json:"tick"`
	Decision Decision            `json:"decision"`
	Records  []state.TradeRecord `json:"records,omitempty"`
	Snapshot state.Snapshot      `json:"snapshot"`
}
