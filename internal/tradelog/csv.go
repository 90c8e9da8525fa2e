package tradelog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

var orderHeader = []string{
	"timestamp", "instrument", "side", "units", "order_id",
	"entry", "stop_loss", "take_profit", "atr", "session_hour",
}

var tradeHeader = []string{
	"timestamp", "instrument", "side", "units",
	"entry", "exit", "entry_bar", "exit_bar", "reason", "pnl",
}

// CSV appends orders and closed trades to two flat files next to each other:
// <base>.csv for orders and <base>_closed.csv for trades.
type CSV struct {
	mu     sync.Mutex
	orders *csvFile
	trades *csvFile
}

type csvFile struct {
	file *os.File
	w    *csv.Writer
}

// NewCSV opens (or creates) both files, writing headers on first use.
func NewCSV(path string) (*CSV, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	orders, err := openCSV(path, orderHeader)
	if err != nil {
		return nil, err
	}
	trades, err := openCSV(base+"_closed.csv", tradeHeader)
	if err != nil {
		orders.file.Close()
		return nil, err
	}
	return &CSV{orders: orders, trades: trades}, nil
}

func openCSV(path string, header []string) (*csvFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir trade log dir: %w", err)
		}
	}
	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	cf := &csvFile{file: f, w: csv.NewWriter(f)}
	if statErr != nil || info.Size() == 0 {
		if err := cf.write(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return cf, nil
}

func (cf *csvFile) write(record []string) error {
	if err := cf.w.Write(record); err != nil {
		return err
	}
	cf.w.Flush()
	return cf.w.Error()
}

// RecordOrder appends one placed order.
func (c *CSV) RecordOrder(o Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orders.write([]string{
		o.Timestamp.UTC().Format(time.RFC3339),
		o.Instrument,
		o.Side,
		strconv.Itoa(o.Units),
		o.OrderID,
		fmt.Sprintf("%.5f", o.Entry),
		fmt.Sprintf("%.5f", o.StopLoss),
		fmt.Sprintf("%.5f", o.TakeProfit),
		fmt.Sprintf("%.5f", o.ATR),
		strconv.Itoa(o.SessionHour),
	})
}

// RecordTrade appends one closed trade.
func (c *CSV) RecordTrade(t market.Trade) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trades.write([]string{
		t.ClosedAt.UTC().Format(time.RFC3339),
		t.Instrument,
		string(t.Side),
		strconv.Itoa(t.Units),
		fmt.Sprintf("%.5f", t.EntryPrice),
		fmt.Sprintf("%.5f", t.ExitPrice),
		strconv.Itoa(t.EntryBarIndex),
		strconv.Itoa(t.ExitBarIndex),
		string(t.ExitReason),
		fmt.Sprintf("%.5f", t.PnL),
	})
}

// Close flushes and closes both files.
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.orders.file.Close()
	if terr := c.trades.file.Close(); err == nil {
		err = terr
	}
	return err
}
