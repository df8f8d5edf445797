package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/MahyudeenShahid/trade-analysis/pkg/db"
)

// ErrInvalidConfig is wrapped by every validation failure so callers can
// map it to a 400 without string matching.
var ErrInvalidConfig = errors.New("invalid rule configuration")

// RuleConfig is the per-window rule switchboard. The zero value leaves
// every rule disabled; DefaultConfig supplies the documented parameter
// defaults.
type RuleConfig struct {
	DefaultTradeEnabled bool    `json:"default_trade_enabled"`
	Rule1Enabled        bool    `json:"rule_1_enabled"`
	TakeProfitAmount    float64 `json:"take_profit_amount"`
	Rule2Enabled        bool    `json:"rule_2_enabled"`
	StopLossAmount      float64 `json:"stop_loss_amount"`
	Rule3Enabled        bool    `json:"rule_3_enabled"`
	Rule3DropCount      int     `json:"rule_3_drop_count"`
	Rule5Enabled        bool    `json:"rule_5_enabled"`
	Rule5DownMinutes    int     `json:"rule_5_down_minutes"`
	Rule5ReversalAmount float64 `json:"rule_5_reversal_amount"`
	Rule5ScalpAmount    float64 `json:"rule_5_scalp_amount"`
	Rule6Enabled        bool    `json:"rule_6_enabled"`
	Rule6DownMinutes    int     `json:"rule_6_down_minutes"`
	Rule6ProfitAmount   float64 `json:"rule_6_profit_amount"`
	Rule7Enabled        bool    `json:"rule_7_enabled"`
	Rule7UpMinutes      int     `json:"rule_7_up_minutes"`
	Rule8Enabled        bool    `json:"rule_8_enabled"`
	Rule8BuyOffset      float64 `json:"rule_8_buy_offset"`
	Rule8SellOffset     float64 `json:"rule_8_sell_offset"`
	Rule9Enabled        bool    `json:"rule_9_enabled"`
	Rule9ScalpAmount    float64 `json:"rule_9_scalp_amount"`
	Rule9FlipCount      int     `json:"rule_9_flip_count"`
	Rule9WindowMinutes  int     `json:"rule_9_window_minutes"`
}

// DefaultConfig mirrors the schema defaults for a window that has never
// been configured: all rules off, documented parameter defaults in place.
func DefaultConfig() RuleConfig {
	return RuleConfig{
		Rule3DropCount:      1,
		Rule5DownMinutes:    3,
		Rule5ReversalAmount: 2.0,
		Rule5ScalpAmount:    0.25,
		Rule6DownMinutes:    5,
		Rule6ProfitAmount:   2.0,
		Rule7UpMinutes:      3,
		Rule8BuyOffset:      0.25,
		Rule8SellOffset:     0.25,
		Rule9ScalpAmount:    0.25,
		Rule9FlipCount:      3,
		Rule9WindowMinutes:  3,
	}
}

// Validate rejects configurations the evaluator is not defined for:
// negative amounts and a rule 3 streak threshold below 1.
func (c RuleConfig) Validate() error {
	amounts := []struct {
		name  string
		value float64
	}{
		{"take_profit_amount", c.TakeProfitAmount},
		{"stop_loss_amount", c.StopLossAmount},
		{"rule_5_reversal_amount", c.Rule5ReversalAmount},
		{"rule_5_scalp_amount", c.Rule5ScalpAmount},
		{"rule_6_profit_amount", c.Rule6ProfitAmount},
		{"rule_8_buy_offset", c.Rule8BuyOffset},
		{"rule_8_sell_offset", c.Rule8SellOffset},
		{"rule_9_scalp_amount", c.Rule9ScalpAmount},
	}
	for _, a := range amounts {
		if a.value < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %v", ErrInvalidConfig, a.name, a.value)
		}
	}
	counts := []struct {
		name  string
		value int
	}{
		{"rule_5_down_minutes", c.Rule5DownMinutes},
		{"rule_6_down_minutes", c.Rule6DownMinutes},
		{"rule_7_up_minutes", c.Rule7UpMinutes},
		{"rule_9_flip_count", c.Rule9FlipCount},
		{"rule_9_window_minutes", c.Rule9WindowMinutes},
	}
	for _, n := range counts {
		if n.value < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %d", ErrInvalidConfig, n.name, n.value)
		}
	}
	if c.Rule3DropCount < 1 {
		return fmt.Errorf("%w: rule_3_drop_count must be >= 1, got %d", ErrInvalidConfig, c.Rule3DropCount)
	}
	return nil
}

// ConfigPatch is a partial configuration update; nil fields keep the
// current value. It is the shape accepted by the config endpoint and by
// entries in the bots.yaml seed file.
type ConfigPatch struct {
	DefaultTradeEnabled *bool    `json:"default_trade_enabled" yaml:"default_trade_enabled"`
	Rule1Enabled        *bool    `json:"rule_1_enabled" yaml:"rule_1_enabled"`
	TakeProfitAmount    *float64 `json:"take_profit_amount" yaml:"take_profit_amount"`
	Rule2Enabled        *bool    `json:"rule_2_enabled" yaml:"rule_2_enabled"`
	StopLossAmount      *float64 `json:"stop_loss_amount" yaml:"stop_loss_amount"`
	Rule3Enabled        *bool    `json:"rule_3_enabled" yaml:"rule_3_enabled"`
	Rule3DropCount      *int     `json:"rule_3_drop_count" yaml:"rule_3_drop_count"`
	Rule5Enabled        *bool    `json:"rule_5_enabled" yaml:"rule_5_enabled"`
	Rule5DownMinutes    *int     `json:"rule_5_down_minutes" yaml:"rule_5_down_minutes"`
	Rule5ReversalAmount *float64 `json:"rule_5_reversal_amount" yaml:"rule_5_reversal_amount"`
	Rule5ScalpAmount    *float64 `json:"rule_5_scalp_amount" yaml:"rule_5_scalp_amount"`
	Rule6Enabled        *bool    `json:"rule_6_enabled" yaml:"rule_6_enabled"`
	Rule6DownMinutes    *int     `json:"rule_6_down_minutes" yaml:"rule_6_down_minutes"`
	Rule6ProfitAmount   *float64 `json:"rule_6_profit_amount" yaml:"rule_6_profit_amount"`
	Rule7Enabled        *bool    `json:"rule_7_enabled" yaml:"rule_7_enabled"`
	Rule7UpMinutes      *int     `json:"rule_7_up_minutes" yaml:"rule_7_up_minutes"`
	Rule8Enabled        *bool    `json:"rule_8_enabled" yaml:"rule_8_enabled"`
	Rule8BuyOffset      *float64 `json:"rule_8_buy_offset" yaml:"rule_8_buy_offset"`
	Rule8SellOffset     *float64 `json:"rule_8_sell_offset" yaml:"rule_8_sell_offset"`
	Rule9Enabled        *bool    `json:"rule_9_enabled" yaml:"rule_9_enabled"`
	Rule9ScalpAmount    *float64 `json:"rule_9_scalp_amount" yaml:"rule_9_scalp_amount"`
	Rule9FlipCount      *int     `json:"rule_9_flip_count" yaml:"rule_9_flip_count"`
	Rule9WindowMinutes  *int     `json:"rule_9_window_minutes" yaml:"rule_9_window_minutes"`
}

// Apply overlays the patch on base and returns the result.
func (p ConfigPatch) Apply(base RuleConfig) RuleConfig {
	out := base
	if p.DefaultTradeEnabled != nil {
		out.DefaultTradeEnabled = *p.DefaultTradeEnabled
	}
	if p.Rule1Enabled != nil {
		out.Rule1Enabled = *p.Rule1Enabled
	}
	if p.TakeProfitAmount != nil {
		out.TakeProfitAmount = *p.TakeProfitAmount
	}
	if p.Rule2Enabled != nil {
		out.Rule2Enabled = *p.Rule2Enabled
	}
	if p.StopLossAmount != nil {
		out.StopLossAmount = *p.StopLossAmount
	}
	if p.Rule3Enabled != nil {
		out.Rule3Enabled = *p.Rule3Enabled
	}
	if p.Rule3DropCount != nil {
		out.Rule3DropCount = *p.Rule3DropCount
	}
	if p.Rule5Enabled != nil {
		out.Rule5Enabled = *p.Rule5Enabled
	}
	if p.Rule5DownMinutes != nil {
		out.Rule5DownMinutes = *p.Rule5DownMinutes
	}
	if p.Rule5ReversalAmount != nil {
		out.Rule5ReversalAmount = *p.Rule5ReversalAmount
	}
	if p.Rule5ScalpAmount != nil {
		out.Rule5ScalpAmount = *p.Rule5ScalpAmount
	}
	if p.Rule6Enabled != nil {
		out.Rule6Enabled = *p.Rule6Enabled
	}
	if p.Rule6DownMinutes != nil {
		out.Rule6DownMinutes = *p.Rule6DownMinutes
	}
	if p.Rule6ProfitAmount != nil {
		out.Rule6ProfitAmount = *p.Rule6ProfitAmount
	}
	if p.Rule7Enabled != nil {
		out.Rule7Enabled = *p.Rule7Enabled
	}
	if p.Rule7UpMinutes != nil {
		out.Rule7UpMinutes = *p.Rule7UpMinutes
	}
	if p.Rule8Enabled != nil {
		out.Rule8Enabled = *p.Rule8Enabled
	}
	if p.Rule8BuyOffset != nil {
		out.Rule8BuyOffset = *p.Rule8BuyOffset
	}
	if p.Rule8SellOffset != nil {
		out.Rule8SellOffset = *p.Rule8SellOffset
	}
	if p.Rule9Enabled != nil {
		out.Rule9Enabled = *p.Rule9Enabled
	}
	if p.Rule9ScalpAmount != nil {
		out.Rule9ScalpAmount = *p.Rule9ScalpAmount
	}
	if p.Rule9FlipCount != nil {
		out.Rule9FlipCount = *p.Rule9FlipCount
	}
	if p.Rule9WindowMinutes != nil {
		out.Rule9WindowMinutes = *p.Rule9WindowMinutes
	}
	return out
}

// ConfigFromBot lifts a persisted bots row into a RuleConfig.
func ConfigFromBot(b db.Bot) RuleConfig {
	return RuleConfig{
		DefaultTradeEnabled: b.DefaultTradeEnabled,
		Rule1Enabled:        b.Rule1Enabled,
		TakeProfitAmount:    b.TakeProfitAmount,
		Rule2Enabled:        b.Rule2Enabled,
		StopLossAmount:      b.StopLossAmount,
		Rule3Enabled:        b.Rule3Enabled,
		Rule3DropCount:      b.Rule3DropCount,
		Rule5Enabled:        b.Rule5Enabled,
		Rule5DownMinutes:    b.Rule5DownMinutes,
		Rule5ReversalAmount: b.Rule5ReversalAmount,
		Rule5ScalpAmount:    b.Rule5ScalpAmount,
		Rule6Enabled:        b.Rule6Enabled,
		Rule6DownMinutes:    b.Rule6DownMinutes,
		Rule6ProfitAmount:   b.Rule6ProfitAmount,
		Rule7Enabled:        b.Rule7Enabled,
		Rule7UpMinutes:      b.Rule7UpMinutes,
		Rule8Enabled:        b.Rule8Enabled,
		Rule8BuyOffset:      b.Rule8BuyOffset,
		Rule8SellOffset:     b.Rule8SellOffset,
		Rule9Enabled:        b.Rule9Enabled,
		Rule9ScalpAmount:    b.Rule9ScalpAmount,
		Rule9FlipCount:      b.Rule9FlipCount,
		Rule9WindowMinutes:  b.Rule9WindowMinutes,
	}
}

// BotFromConfig builds the persistable bots row for a window's config.
// Meta is left empty; the upsert keeps whatever identity metadata the row
// already carries.
func BotFromConfig(windowID, name, ticker string, c RuleConfig) db.Bot {
	return db.Bot{
		WindowID:            windowID,
		Name:                name,
		Ticker:              ticker,
		DefaultTradeEnabled: c.DefaultTradeEnabled,
		Rule1Enabled:        c.Rule1Enabled,
		TakeProfitAmount:    c.TakeProfitAmount,
		Rule2Enabled:        c.Rule2Enabled,
		StopLossAmount:      c.StopLossAmount,
		Rule3Enabled:        c.Rule3Enabled,
		Rule3DropCount:      c.Rule3DropCount,
		Rule5Enabled:        c.Rule5Enabled,
		Rule5DownMinutes:    c.Rule5DownMinutes,
		Rule5ReversalAmount: c.Rule5ReversalAmount,
		Rule5ScalpAmount:    c.Rule5ScalpAmount,
		Rule6Enabled:        c.Rule6Enabled,
		Rule6DownMinutes:    c.Rule6DownMinutes,
		Rule6ProfitAmount:   c.Rule6ProfitAmount,
		Rule7Enabled:        c.Rule7Enabled,
		Rule7UpMinutes:      c.Rule7UpMinutes,
		Rule8Enabled:        c.Rule8Enabled,
		Rule8BuyOffset:      c.Rule8BuyOffset,
		Rule8SellOffset:     c.Rule8SellOffset,
		Rule9Enabled:        c.Rule9Enabled,
		Rule9ScalpAmount:    c.Rule9ScalpAmount,
		Rule9FlipCount:      c.Rule9FlipCount,
		Rule9WindowMinutes:  c.Rule9WindowMinutes,
	}
}

// RecordFromTrade converts a persisted trades row back into the in-memory
// record shape, used when seeding last-trade pointers at startup.
func RecordFromTrade(t db.Trade) TradeRecord {
	return TradeRecord{
		ID:        t.ID,
		TradeID:   t.TradeID,
		WindowID:  t.WindowID,
		Ticker:    t.Ticker,
		Side:      t.Side,
		Price:     t.Price,
		Profit:    nullFloat(t.Profit),
		WinReason: t.WinReason,
		TS:        t.TS,
	}
}

func nullFloat(v sql.NullFloat64) float64 {
	if v.Valid {
		return v.Float64
	}
	return 0
}
