// Package tradelog persists placed orders and closed trades for later analysis.
package tradelog

import (
	"time"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// Order is the record appended when a risk-managed order is placed.
type Order struct {
	Timestamp   time.Time `json:"timestamp"`
	Instrument  string    `json:"instrument"`
	Side        string    `json:"side"`
	Units       int       `json:"units"`
	OrderID     string    `json:"order_id"`
	Entry       float64   `json:"entry"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit  float64   `json:"take_profit"`
	ATR         float64   `json:"atr"`
	SessionHour int       `json:"session_hour"`
}

// Recorder captures orders and closed trades. Implementations must not lose a
// trade silently: they return the error and the caller logs it.
type Recorder interface {
	RecordOrder(Order) error
	RecordTrade(market.Trade) error
	Close() error
}

// Noop discards everything; useful when persistence is disabled.
type Noop struct{}

func (Noop) RecordOrder(Order) error        { return nil }
func (Noop) RecordTrade(market.Trade) error { return nil }
func (Noop) Close() error                   { return nil }
