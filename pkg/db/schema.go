package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS bots (
    window_id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    ticker TEXT NOT NULL DEFAULT '',
    meta TEXT,
    default_trade_enabled INTEGER DEFAULT 0,
    rule_1_enabled INTEGER DEFAULT 0,
    take_profit_amount REAL DEFAULT 0,
    rule_2_enabled INTEGER DEFAULT 0,
    stop_loss_amount REAL DEFAULT 0,
    rule_3_enabled INTEGER DEFAULT 0,
    rule_3_drop_count INTEGER DEFAULT 1,
    rule_5_enabled INTEGER DEFAULT 0,
    rule_5_down_minutes INTEGER DEFAULT 3,
    rule_5_reversal_amount REAL DEFAULT 2.0,
    rule_5_scalp_amount REAL DEFAULT 0.25,
    rule_6_enabled INTEGER DEFAULT 0,
    rule_6_down_minutes INTEGER DEFAULT 5,
    rule_6_profit_amount REAL DEFAULT 2.0,
    rule_7_enabled INTEGER DEFAULT 0,
    rule_7_up_minutes INTEGER DEFAULT 3,
    rule_8_enabled INTEGER DEFAULT 0,
    rule_8_buy_offset REAL DEFAULT 0.25,
    rule_8_sell_offset REAL DEFAULT 0.25,
    rule_9_enabled INTEGER DEFAULT 0,
    rule_9_scalp_amount REAL DEFAULT 0.25,
    rule_9_flip_count INTEGER DEFAULT 3,
    rule_9_window_minutes INTEGER DEFAULT 3,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    trade_id TEXT NOT NULL,
    window_id TEXT NOT NULL,
    ticker TEXT NOT NULL DEFAULT '',
    side TEXT NOT NULL,
    price REAL NOT NULL,
    profit REAL,
    win_reason TEXT NOT NULL DEFAULT '',
    ts DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_trades_window_ts ON trades(window_id, ts);
CREATE INDEX IF NOT EXISTS idx_trades_trade_id ON trades(trade_id);

CREATE TABLE IF NOT EXISTS observations (
    id TEXT PRIMARY KEY,
    window_id TEXT NOT NULL,
    ticker TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    price REAL NOT NULL,
    trend TEXT NOT NULL,
    image_path TEXT,
    meta TEXT,
    ts DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observations_window_ts ON observations(window_id, ts);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "bots", "meta", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "bots", "rule_8_enabled", "INTEGER DEFAULT 0"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "bots", "rule_8_buy_offset", "REAL DEFAULT 0.25"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "bots", "rule_8_sell_offset", "REAL DEFAULT 0.25"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "bots", "rule_9_enabled", "INTEGER DEFAULT 0"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "bots", "rule_9_scalp_amount", "REAL DEFAULT 0.25"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "bots", "rule_9_flip_count", "INTEGER DEFAULT 3"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "bots", "rule_9_window_minutes", "INTEGER DEFAULT 3"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trades", "trade_id", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trades", "ticker", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "observations", "image_path", "TEXT"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
