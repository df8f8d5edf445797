// Package db persists bots, trade records and tick observations in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("record not found")

const insertTradeSQL = `
	INSERT INTO trades (id, trade_id, window_id, ticker, side, price, profit, win_reason, ts)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertObservationSQL = `
	INSERT INTO observations (id, window_id, ticker, name, price, trend, image_path, meta, ts)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertTradeOp returns the query/args pair for batched trade writes.
func InsertTradeOp(t Trade) (string, []any) {
	var profit any
	if t.Profit.Valid {
		profit = t.Profit.Float64
	}
	return insertTradeSQL, []any{t.ID, t.TradeID, t.WindowID, t.Ticker, t.Side, t.Price, profit, t.WinReason, t.TS}
}

// InsertObservationOp returns the query/args pair for batched observation writes.
func InsertObservationOp(o Observation) (string, []any) {
	var image any
	if o.ImagePath != "" {
		image = o.ImagePath
	}
	return insertObservationSQL, []any{o.ID, o.WindowID, o.Ticker, o.Name, o.Price, o.Trend, image, o.Meta, o.TS}
}

// InsertTrade writes a single trade leg synchronously (tests, manual ops).
func (d *Database) InsertTrade(ctx context.Context, t Trade) error {
	query, args := InsertTradeOp(t)
	_, err := d.DB.ExecContext(ctx, query, args...)
	return err
}

// InsertObservation writes a single observation synchronously.
func (d *Database) InsertObservation(ctx context.Context, o Observation) error {
	query, args := InsertObservationOp(o)
	_, err := d.DB.ExecContext(ctx, query, args...)
	return err
}

// TradeFilter narrows ListTrades; zero values mean "no constraint".
type TradeFilter struct {
	WindowID  string
	Ticker    string
	Side      string
	WinReason string
	Days      int
	StartTS   time.Time
	EndTS     time.Time
	Limit     int
	Offset    int
}

func (f TradeFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.WindowID != "" {
		clauses = append(clauses, "window_id = ?")
		args = append(args, f.WindowID)
	}
	if f.Ticker != "" {
		clauses = append(clauses, "ticker = ?")
		args = append(args, strings.ToUpper(f.Ticker))
	}
	if f.Side != "" {
		clauses = append(clauses, "side = ?")
		args = append(args, strings.ToUpper(f.Side))
	}
	if f.WinReason != "" {
		clauses = append(clauses, "win_reason = ?")
		args = append(args, f.WinReason)
	}
	if f.Days > 0 {
		clauses = append(clauses, "ts >= ?")
		args = append(args, time.Now().UTC().AddDate(0, 0, -f.Days))
	}
	if !f.StartTS.IsZero() {
		clauses = append(clauses, "ts >= ?")
		args = append(args, f.StartTS)
	}
	if !f.EndTS.IsZero() {
		clauses = append(clauses, "ts <= ?")
		args = append(args, f.EndTS)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListTrades returns matching trade legs, newest first, plus the total
// match count before limit/offset (for the X-Total-Count header).
func (d *Database) ListTrades(ctx context.Context, f TradeFilter) ([]Trade, int, error) {
	where, args := f.where()

	var total int
	if err := d.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count trades: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, trade_id, window_id, ticker, side, price, profit, win_reason, ts, created_at
		FROM trades` + where + ` ORDER BY ts DESC, created_at DESC LIMIT ? OFFSET ?`
	rows, err := d.DB.QueryContext(ctx, query, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.TradeID, &t.WindowID, &t.Ticker, &t.Side, &t.Price, &t.Profit, &t.WinReason, &t.TS, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan trade: %w", err)
		}
		res = append(res, t)
	}
	return res, total, rows.Err()
}

// ObservationFilter narrows ListObservations.
type ObservationFilter struct {
	WindowID string
	Ticker   string
	Trend    string
	Days     int
	Limit    int
	Offset   int
}

// ListObservations returns matching observations, newest first, plus the
// total match count before limit/offset.
func (d *Database) ListObservations(ctx context.Context, f ObservationFilter) ([]Observation, int, error) {
	var clauses []string
	var args []any
	if f.WindowID != "" {
		clauses = append(clauses, "window_id = ?")
		args = append(args, f.WindowID)
	}
	if f.Ticker != "" {
		clauses = append(clauses, "ticker = ?")
		args = append(args, strings.ToUpper(f.Ticker))
	}
	if f.Trend != "" {
		clauses = append(clauses, "trend = ?")
		args = append(args, strings.ToUpper(f.Trend))
	}
	if f.Days > 0 {
		clauses = append(clauses, "ts >= ?")
		args = append(args, time.Now().UTC().AddDate(0, 0, -f.Days))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := d.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM observations"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count observations: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := `SELECT id, window_id, ticker, name, price, trend, COALESCE(image_path, ''), COALESCE(meta, ''), ts
		FROM observations` + where + ` ORDER BY ts DESC LIMIT ? OFFSET ?`
	rows, err := d.DB.QueryContext(ctx, query, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var res []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.ID, &o.WindowID, &o.Ticker, &o.Name, &o.Price, &o.Trend, &o.ImagePath, &o.Meta, &o.TS); err != nil {
			return nil, 0, fmt.Errorf("scan observation: %w", err)
		}
		res = append(res, o)
	}
	return res, total, rows.Err()
}

// LatestObservations returns the most recent observation per window,
// used to warm the tick cache at startup.
func (d *Database) LatestObservations(ctx context.Context) ([]Observation, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT o.id, o.window_id, o.ticker, o.name, o.price, o.trend, COALESCE(o.image_path, ''), COALESCE(o.meta, ''), o.ts
		FROM observations o
		WHERE o.ts = (SELECT MAX(ts) FROM observations WHERE window_id = o.window_id)
		GROUP BY o.window_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query latest observations: %w", err)
	}
	defer rows.Close()

	var res []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.ID, &o.WindowID, &o.Ticker, &o.Name, &o.Price, &o.Trend, &o.ImagePath, &o.Meta, &o.TS); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// PruneObservations deletes observations older than cutoff and returns the
// number of rows removed.
func (d *Database) PruneObservations(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `DELETE FROM observations WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune observations: %w", err)
	}
	return res.RowsAffected()
}

// TradeStats aggregates persisted trade legs for one window, used to seed
// per-window summaries after a restart.
type TradeStats struct {
	WindowID string
	Ticker   string
	TotalPnL float64
	Wins     int
	Losses   int
	Trades   int
}

// LoadTradeStats aggregates the trades table per window.
func (d *Database) LoadTradeStats(ctx context.Context) ([]TradeStats, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT window_id,
		       MAX(ticker),
		       COALESCE(SUM(profit), 0),
		       SUM(CASE WHEN side = 'SELL' AND profit > 0 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN side = 'SELL' AND profit <= 0 THEN 1 ELSE 0 END),
		       COUNT(*)
		FROM trades
		GROUP BY window_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query trade stats: %w", err)
	}
	defer rows.Close()

	var res []TradeStats
	for rows.Next() {
		var s TradeStats
		if err := rows.Scan(&s.WindowID, &s.Ticker, &s.TotalPnL, &s.Wins, &s.Losses, &s.Trades); err != nil {
			return nil, fmt.Errorf("scan trade stats: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// LastTrades returns each window's most recent trade leg.
func (d *Database) LastTrades(ctx context.Context) (map[string]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT t.id, t.trade_id, t.window_id, t.ticker, t.side, t.price, t.profit, t.win_reason, t.ts, t.created_at
		FROM trades t
		WHERE t.created_at = (SELECT MAX(created_at) FROM trades WHERE window_id = t.window_id)
		GROUP BY t.window_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query last trades: %w", err)
	}
	defer rows.Close()

	res := make(map[string]Trade)
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.TradeID, &t.WindowID, &t.Ticker, &t.Side, &t.Price, &t.Profit, &t.WinReason, &t.TS, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		res[t.WindowID] = t
	}
	return res, rows.Err()
}

// NullProfit builds the profit column value for a trade leg; only SELL
// legs carry one.
func NullProfit(side string, profit float64) sql.NullFloat64 {
	if strings.ToUpper(side) == "SELL" {
		return sql.NullFloat64{Float64: profit, Valid: true}
	}
	return sql.NullFloat64{}
}
