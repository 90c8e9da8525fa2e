package tradelog

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// SQLite persists orders and closed trades to a SQLite database so dashboards
// can read while the bot writes.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for concurrent reads against a live writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLite{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			instrument   TEXT NOT NULL,
			side         TEXT NOT NULL,
			units        INTEGER,
			order_id     TEXT,
			entry        REAL,
			stop_loss    REAL,
			take_profit  REAL,
			atr          REAL,
			session_hour INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_ts ON orders(timestamp)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			instrument  TEXT NOT NULL,
			side        TEXT NOT NULL,
			units       INTEGER,
			entry       REAL,
			exit        REAL,
			entry_bar   INTEGER,
			exit_bar    INTEGER,
			reason      TEXT,
			pnl         REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(timestamp)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:30], err)
		}
	}
	return nil
}

// RecordOrder inserts one placed order.
func (r *SQLite) RecordOrder(o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(`INSERT INTO orders
		(timestamp, instrument, side, units, order_id, entry, stop_loss, take_profit, atr, session_hour)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		o.Timestamp.Unix(), o.Instrument, o.Side, o.Units, o.OrderID,
		o.Entry, o.StopLoss, o.TakeProfit, o.ATR, o.SessionHour,
	)
	return err
}

// RecordTrade inserts one closed trade.
func (r *SQLite) RecordTrade(t market.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(`INSERT INTO trades
		(timestamp, instrument, side, units, entry, exit, entry_bar, exit_bar, reason, pnl)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ClosedAt.Unix(), t.Instrument, string(t.Side), t.Units,
		t.EntryPrice, t.ExitPrice, t.EntryBarIndex, t.ExitBarIndex,
		string(t.ExitReason), t.PnL,
	)
	return err
}

// TradeCount reports the number of recorded trades, mainly for tooling.
func (r *SQLite) TradeCount() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (r *SQLite) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}
