package db

import (
	"context"
	"database/sql"
	"time"
)

// Bot represents a tracked window and its rule configuration row.
type Bot struct {
	WindowID string
	Name     string
	Ticker   string
	Meta     string

	DefaultTradeEnabled bool
	Rule1Enabled        bool
	TakeProfitAmount    float64
	Rule2Enabled        bool
	StopLossAmount      float64
	Rule3Enabled        bool
	Rule3DropCount      int
	Rule5Enabled        bool
	Rule5DownMinutes    int
	Rule5ReversalAmount float64
	Rule5ScalpAmount    float64
	Rule6Enabled        bool
	Rule6DownMinutes    int
	Rule6ProfitAmount   float64
	Rule7Enabled        bool
	Rule7UpMinutes      int
	Rule8Enabled        bool
	Rule8BuyOffset      float64
	Rule8SellOffset     float64
	Rule9Enabled        bool
	Rule9ScalpAmount    float64
	Rule9FlipCount      int
	Rule9WindowMinutes  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Trade is one leg of a simulated trade. BUY and SELL legs of the same
// position share a TradeID; profit is set on the SELL leg only.
type Trade struct {
	ID        string
	TradeID   string
	WindowID  string
	Ticker    string
	Side      string
	Price     float64
	Profit    sql.NullFloat64
	WinReason string
	TS        time.Time
	CreatedAt time.Time
}

// Observation is one ingested price/trend tick, kept for history queries.
type Observation struct {
	ID        string
	WindowID  string
	Ticker    string
	Name      string
	Price     float64
	Trend     string
	ImagePath string
	Meta      string
	TS        time.Time
}

const botColumns = `window_id, name, ticker, COALESCE(meta, ''),
	default_trade_enabled, rule_1_enabled, take_profit_amount,
	rule_2_enabled, stop_loss_amount, rule_3_enabled, rule_3_drop_count,
	rule_5_enabled, rule_5_down_minutes, rule_5_reversal_amount, rule_5_scalp_amount,
	rule_6_enabled, rule_6_down_minutes, rule_6_profit_amount,
	rule_7_enabled, rule_7_up_minutes,
	rule_8_enabled, rule_8_buy_offset, rule_8_sell_offset,
	rule_9_enabled, rule_9_scalp_amount, rule_9_flip_count, rule_9_window_minutes,
	created_at, updated_at`

func scanBot(row interface{ Scan(...any) error }) (Bot, error) {
	var b Bot
	err := row.Scan(
		&b.WindowID, &b.Name, &b.Ticker, &b.Meta,
		&b.DefaultTradeEnabled, &b.Rule1Enabled, &b.TakeProfitAmount,
		&b.Rule2Enabled, &b.StopLossAmount, &b.Rule3Enabled, &b.Rule3DropCount,
		&b.Rule5Enabled, &b.Rule5DownMinutes, &b.Rule5ReversalAmount, &b.Rule5ScalpAmount,
		&b.Rule6Enabled, &b.Rule6DownMinutes, &b.Rule6ProfitAmount,
		&b.Rule7Enabled, &b.Rule7UpMinutes,
		&b.Rule8Enabled, &b.Rule8BuyOffset, &b.Rule8SellOffset,
		&b.Rule9Enabled, &b.Rule9ScalpAmount, &b.Rule9FlipCount, &b.Rule9WindowMinutes,
		&b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

// UpsertBot inserts or fully replaces a bot row, rule configuration included.
func (d *Database) UpsertBot(ctx context.Context, b Bot) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO bots (
			window_id, name, ticker, meta,
			default_trade_enabled, rule_1_enabled, take_profit_amount,
			rule_2_enabled, stop_loss_amount, rule_3_enabled, rule_3_drop_count,
			rule_5_enabled, rule_5_down_minutes, rule_5_reversal_amount, rule_5_scalp_amount,
			rule_6_enabled, rule_6_down_minutes, rule_6_profit_amount,
			rule_7_enabled, rule_7_up_minutes,
			rule_8_enabled, rule_8_buy_offset, rule_8_sell_offset,
			rule_9_enabled, rule_9_scalp_amount, rule_9_flip_count, rule_9_window_minutes,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(window_id) DO UPDATE SET
			name = COALESCE(NULLIF(excluded.name, ''), bots.name),
			ticker = COALESCE(NULLIF(excluded.ticker, ''), bots.ticker),
			meta = COALESCE(NULLIF(excluded.meta, ''), bots.meta),
			default_trade_enabled = excluded.default_trade_enabled,
			rule_1_enabled = excluded.rule_1_enabled,
			take_profit_amount = excluded.take_profit_amount,
			rule_2_enabled = excluded.rule_2_enabled,
			stop_loss_amount = excluded.stop_loss_amount,
			rule_3_enabled = excluded.rule_3_enabled,
			rule_3_drop_count = excluded.rule_3_drop_count,
			rule_5_enabled = excluded.rule_5_enabled,
			rule_5_down_minutes = excluded.rule_5_down_minutes,
			rule_5_reversal_amount = excluded.rule_5_reversal_amount,
			rule_5_scalp_amount = excluded.rule_5_scalp_amount,
			rule_6_enabled = excluded.rule_6_enabled,
			rule_6_down_minutes = excluded.rule_6_down_minutes,
			rule_6_profit_amount = excluded.rule_6_profit_amount,
			rule_7_enabled = excluded.rule_7_enabled,
			rule_7_up_minutes = excluded.rule_7_up_minutes,
			rule_8_enabled = excluded.rule_8_enabled,
			rule_8_buy_offset = excluded.rule_8_buy_offset,
			rule_8_sell_offset = excluded.rule_8_sell_offset,
			rule_9_enabled = excluded.rule_9_enabled,
			rule_9_scalp_amount = excluded.rule_9_scalp_amount,
			rule_9_flip_count = excluded.rule_9_flip_count,
			rule_9_window_minutes = excluded.rule_9_window_minutes,
			updated_at = CURRENT_TIMESTAMP
	`,
		b.WindowID, b.Name, b.Ticker, b.Meta,
		b.DefaultTradeEnabled, b.Rule1Enabled, b.TakeProfitAmount,
		b.Rule2Enabled, b.StopLossAmount, b.Rule3Enabled, b.Rule3DropCount,
		b.Rule5Enabled, b.Rule5DownMinutes, b.Rule5ReversalAmount, b.Rule5ScalpAmount,
		b.Rule6Enabled, b.Rule6DownMinutes, b.Rule6ProfitAmount,
		b.Rule7Enabled, b.Rule7UpMinutes,
		b.Rule8Enabled, b.Rule8BuyOffset, b.Rule8SellOffset,
		b.Rule9Enabled, b.Rule9ScalpAmount, b.Rule9FlipCount, b.Rule9WindowMinutes,
	)
	return err
}

// TouchBot registers a window on first ingest or refreshes its identity
// metadata, leaving rule configuration columns alone.
func (d *Database) TouchBot(ctx context.Context, windowID, name, ticker, meta string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO bots (window_id, name, ticker, meta, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(window_id) DO UPDATE SET
			name = COALESCE(NULLIF(excluded.name, ''), bots.name),
			ticker = COALESCE(NULLIF(excluded.ticker, ''), bots.ticker),
			meta = COALESCE(NULLIF(excluded.meta, ''), bots.meta),
			updated_at = CURRENT_TIMESTAMP
	`, windowID, name, ticker, meta)
	return err
}

// GetBot returns a single bot row or ErrNotFound.
func (d *Database) GetBot(ctx context.Context, windowID string) (*Bot, error) {
	row := d.DB.QueryRowContext(ctx,
		`SELECT `+botColumns+` FROM bots WHERE window_id = ?`, windowID)
	b, err := scanBot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBots returns all bot rows ordered by creation.
func (d *Database) ListBots(ctx context.Context) ([]Bot, error) {
	rows, err := d.DB.QueryContext(ctx,
		`SELECT `+botColumns+` FROM bots ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// DeleteBot removes a bot row.
func (d *Database) DeleteBot(ctx context.Context, windowID string) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM bots WHERE window_id = ?`, windowID)
	return err
}
