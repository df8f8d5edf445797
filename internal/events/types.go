package events

// Event enumerates high-level topics inside the decision engine.
type Event string

const (
	// EventTick fires for every accepted observation, after the engine
	// has processed it. Payload: engine.Outcome.
	EventTick Event = "tick.observed"
	// EventTradeRecord fires once per trade leg. Payload: state.TradeRecord.
	EventTradeRecord Event = "trade.record"
	// EventSnapshot fires whenever a window's state changes. Payload:
	// state.Snapshot.
	EventSnapshot Event = "bot.snapshot"
	// EventConfigUpdate fires after a window's rule config is replaced.
	// Payload: window id.
	EventConfigUpdate Event = "bot.config_update"
	// EventBotRemoved fires when a window is explicitly removed. Payload:
	// window id.
	EventBotRemoved Event = "bot.removed"
)
