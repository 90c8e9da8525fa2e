// Package perf accumulates realized results and tracks equity drawdown.
package perf

import (
	"sync"
	"time"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

const recentWindow = 100

// Tracker accumulates realized PnL and rolling win/loss counts. Updates are
// synchronous with trade emission; there is no eventual-consistency window
// between a closed trade and its effect on the stats.
type Tracker struct {
	mu        sync.Mutex
	wins      int
	losses    int
	totalWin  float64
	totalLoss float64
	recent    []bool
}

// Stats is a point-in-time view of accumulated performance.
type Stats struct {
	Trades        int     `json:"trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	Expectancy    float64 `json:"expectancy"`
	TotalPnL      float64 `json:"total_pnl"`
	RecentWinRate float64 `json:"recent_win_rate"`
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{recent: make([]bool, 0, recentWindow)}
}

// Record folds one closed trade into the totals.
func (t *Tracker) Record(tr market.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tr.Win() {
		t.wins++
		t.totalWin += tr.PnL
	} else {
		t.losses++
		t.totalLoss += -tr.PnL
	}
	t.recent = append(t.recent, tr.Win())
	if len(t.recent) > recentWindow {
		t.recent = t.recent[len(t.recent)-recentWindow:]
	}
}

// Stats returns the current totals.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		Trades:   t.wins + t.losses,
		Wins:     t.wins,
		Losses:   t.losses,
		TotalPnL: t.totalWin - t.totalLoss,
	}
	if s.Trades > 0 {
		s.WinRate = float64(t.wins) / float64(s.Trades)
	}
	if t.wins > 0 {
		s.AvgWin = t.totalWin / float64(t.wins)
	}
	if t.losses > 0 {
		s.AvgLoss = t.totalLoss / float64(t.losses)
	}
	s.Expectancy = s.WinRate*s.AvgWin - (1-s.WinRate)*s.AvgLoss
	if n := len(t.recent); n > 0 {
		wins := 0
		for _, w := range t.recent {
			if w {
				wins++
			}
		}
		s.RecentWinRate = float64(wins) / float64(n)
	}
	return s
}

// Equity tracks current and peak account equity. Refresh has a single writer
// (the engine's periodic equity poll); Snapshot readers tolerate a staleness
// window bounded by the refresh interval.
type Equity struct {
	mu        sync.RWMutex
	current   float64
	peak      float64
	refreshed time.Time
}

// EquitySnapshot is a consistent read of the equity state.
type EquitySnapshot struct {
	Current     float64
	Peak        float64
	DrawdownPct float64
	Refreshed   time.Time
}

// NewEquity seeds the state with the starting balance.
func NewEquity(initial float64) *Equity {
	return &Equity{current: initial, peak: initial}
}

// Refresh records a freshly fetched equity value, advancing the peak.
func (e *Equity) Refresh(current float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = current
	if current > e.peak {
		e.peak = current
	}
	e.refreshed = time.Now()
}

// Snapshot returns the current equity view including drawdown from peak.
func (e *Equity) Snapshot() EquitySnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := EquitySnapshot{Current: e.current, Peak: e.peak, Refreshed: e.refreshed}
	if e.peak > 0 {
		snap.DrawdownPct = (e.peak - e.current) / e.peak
	}
	return snap
}
