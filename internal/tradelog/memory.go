package tradelog

import (
	"sync"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// Memory stores records in memory for quick inspection, mostly in tests and
// dry runs.
type Memory struct {
	mu     sync.Mutex
	orders []Order
	trades []market.Trade
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory { return &Memory{} }

// RecordOrder appends a placed order.
func (m *Memory) RecordOrder(o Order) error {
	m.mu.Lock()
	m.orders = append(m.orders, o)
	m.mu.Unlock()
	return nil
}

// RecordTrade appends a closed trade.
func (m *Memory) RecordTrade(t market.Trade) error {
	m.mu.Lock()
	m.trades = append(m.trades, t)
	m.mu.Unlock()
	return nil
}

// Orders returns a copy of the recorded orders.
func (m *Memory) Orders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, len(m.orders))
	copy(out, m.orders)
	return out
}

// Trades returns a copy of the recorded trades.
func (m *Memory) Trades() []market.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]market.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// Reset clears all stored records.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.orders = m.orders[:0]
	m.trades = m.trades[:0]
	m.mu.Unlock()
}

// Close is a no-op for the in-memory recorder.
func (m *Memory) Close() error { return nil }
