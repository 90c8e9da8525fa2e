package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/market"
	"github.com/niickyg/oanda-trading-bot/internal/metrics"
	"github.com/niickyg/oanda-trading-bot/internal/perf"
	"github.com/niickyg/oanda-trading-bot/internal/risk"
	"github.com/niickyg/oanda-trading-bot/internal/strategy"
	"github.com/niickyg/oanda-trading-bot/internal/tradelog"
)

const historyLen = 300

// Broker is the slice of the broker client the engine needs.
type Broker interface {
	PlaceRiskManagedOrder(ctx context.Context, instrument string, side market.Side, entry, stop, takeProfit float64, units int) (string, error)
	AccountEquity(ctx context.Context) (float64, error)
	ClosePosition(ctx context.Context, instrument string, side market.Side) error
}

// Marker is implemented by brokers that fill protective levels off the bar
// stream instead of venue-side triggers (the paper ledger). The engine feeds
// every bar through it so the broker's book realizes exits in step with its
// own.
type Marker interface {
	MarkBar(bar market.Bar)
}

// Config tunes the engine's sizing, exits, and trigger policy.
type Config struct {
	BaseRiskPct       float64
	SLMult            float64
	TPMult            float64
	ATRPeriod         int
	MaxHoldBars       int
	Cooldown          time.Duration
	DrawdownThreshold float64
	EquityRefresh     time.Duration
}

// Engine consumes bars, asks the active strategies for signals, and owns
// every instrument's position lifecycle. It is single-threaded per run loop;
// only the equity refresh and the optimizer trigger touch shared state, and
// both go through their own synchronization.
type Engine struct {
	log     zerolog.Logger
	cfg     Config
	reg     *strategy.Registry
	broker  Broker
	rec     tradelog.Recorder
	tracker *perf.Tracker
	equity  *perf.Equity

	lifecycles  map[string]*Lifecycle
	history     map[string][]market.Bar
	posStrategy map[string]strategy.Strategy

	lastOrder       time.Time
	lastEquityFetch time.Time
	now             func() time.Time

	reoptimize func(context.Context) error
	optimizing atomic.Bool
}

// New wires an engine. broker and rec may not be nil; pass a paper broker
// and a Noop recorder to dry-run.
func New(log zerolog.Logger, cfg Config, reg *strategy.Registry, b Broker, rec tradelog.Recorder, tracker *perf.Tracker, equity *perf.Equity) *Engine {
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.SLMult <= 0 {
		cfg.SLMult = 1.0
	}
	if cfg.TPMult <= 0 {
		cfg.TPMult = 2.0
	}
	if cfg.DrawdownThreshold <= 0 {
		cfg.DrawdownThreshold = 0.05
	}
	if cfg.EquityRefresh <= 0 {
		cfg.EquityRefresh = 30 * time.Second
	}
	return &Engine{
		log:         log,
		cfg:         cfg,
		reg:         reg,
		broker:      b,
		rec:         rec,
		tracker:     tracker,
		equity:      equity,
		lifecycles:  make(map[string]*Lifecycle),
		history:     make(map[string][]market.Bar),
		posStrategy: make(map[string]strategy.Strategy),
		now:         time.Now,
	}
}

// SetReoptimize installs the bandit trigger invoked when drawdown crosses the
// threshold. The callback runs on its own goroutine; a failure is logged and
// the previously active strategy set keeps trading.
func (e *Engine) SetReoptimize(fn func(context.Context) error) { e.reoptimize = fn }

// Run consumes bars until the context is canceled or the channel closes.
func (e *Engine) Run(ctx context.Context, bars <-chan market.Bar) {
	e.log.Info().Msg("engine started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopped")
			return
		case bar, ok := <-bars:
			if !ok {
				e.log.Info().Msg("bar stream closed")
				return
			}
			e.OnBar(ctx, bar)
		}
	}
}

// OnBar runs one full step for one instrument: exit evaluation first, then,
// only when no transition happened, entry evaluation. Exactly one state
// transition per bar per instrument.
func (e *Engine) OnBar(ctx context.Context, bar market.Bar) {
	lc := e.lifecycle(bar.Instrument)
	defer lc.Advance()

	e.appendHistory(bar)
	metrics.BarsTotal.WithLabelValues(bar.Instrument).Inc()
	if m, ok := e.broker.(Marker); ok {
		m.MarkBar(bar)
	}
	e.maybeRefreshEquity(ctx)

	if trade, closed := lc.CheckExit(bar); closed {
		e.closeTrade(ctx, trade)
		return
	}
	if lc.Position() != nil {
		return
	}
	e.tryEnter(ctx, lc, bar)
}

// OpenPositions returns the instruments with a live position, for inspection.
func (e *Engine) OpenPositions() []market.Position {
	var out []market.Position
	for _, lc := range e.lifecycles {
		if p := lc.Position(); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (e *Engine) lifecycle(instrument string) *Lifecycle {
	lc, ok := e.lifecycles[instrument]
	if !ok {
		lc = NewLifecycle()
		e.lifecycles[instrument] = lc
	}
	return lc
}

func (e *Engine) appendHistory(bar market.Bar) {
	h := append(e.history[bar.Instrument], bar)
	if len(h) > historyLen {
		h = h[len(h)-historyLen:]
	}
	e.history[bar.Instrument] = h
}

func (e *Engine) tryEnter(ctx context.Context, lc *Lifecycle, bar market.Bar) {
	hist := e.history[bar.Instrument]
	sig, strat := e.firstSignal(bar.Instrument, hist)
	if sig == market.None {
		return
	}
	if e.cfg.Cooldown > 0 && e.now().Sub(e.lastOrder) < e.cfg.Cooldown {
		return
	}

	entry := bar.Close
	atr := strategy.ATR(hist, e.cfg.ATRPeriod)
	stop, target := 0.0, 0.0
	maxHold := e.cfg.MaxHoldBars
	if lv, ok := strat.(strategy.Leveler); ok {
		stop, target, maxHold = lv.Levels(hist, sig)
	} else {
		stop, target = strategy.Levels(bar.Instrument, entry, sig, atr, e.cfg.SLMult, e.cfg.TPMult)
	}

	side := market.SideFor(sig)
	snap := e.equity.Snapshot()
	riskPct := ScaledRisk(e.cfg.BaseRiskPct, snap.DrawdownPct)
	order := risk.Size(bar.Instrument, side, entry, stop, target, snap.Current, riskPct)

	orderID, err := e.broker.PlaceRiskManagedOrder(ctx, bar.Instrument, side, entry, order.StopLoss, order.TakeProfit, order.Units)
	if err != nil {
		e.log.Error().Err(err).Str("instrument", bar.Instrument).Str("side", string(side)).Msg("order placement failed, staying flat")
		return
	}

	lc.Open(market.Position{
		Instrument:  bar.Instrument,
		Side:        side,
		EntryPrice:  entry,
		StopLoss:    order.StopLoss,
		TakeProfit:  order.TakeProfit,
		MaxHoldBars: maxHold,
		Units:       order.Units,
	})
	e.posStrategy[bar.Instrument] = strat
	e.lastOrder = e.now()
	metrics.OrdersTotal.WithLabelValues(bar.Instrument, string(side)).Inc()

	sessionHour := bar.OpenTime.UTC().Hour()
	e.log.Info().
		Str("instrument", bar.Instrument).
		Str("side", string(side)).
		Int("units", order.Units).
		Float64("entry", entry).
		Float64("stop_loss", order.StopLoss).
		Float64("take_profit", order.TakeProfit).
		Float64("atr", atr).
		Int("session_hour", sessionHour).
		Str("order_id", orderID).
		Str("strategy", strat.Name()).
		Msg("trade executed")

	if err := e.rec.RecordOrder(tradelog.Order{
		Timestamp:   e.now().UTC(),
		Instrument:  bar.Instrument,
		Side:        string(sig),
		Units:       order.Units,
		OrderID:     orderID,
		Entry:       entry,
		StopLoss:    order.StopLoss,
		TakeProfit:  order.TakeProfit,
		ATR:         atr,
		SessionHour: sessionHour,
	}); err != nil {
		e.log.Error().Err(err).Str("instrument", bar.Instrument).Msg("order record write failed")
	}
}

// firstSignal polls the active strategies in registry order and returns the
// first non-NONE answer. A panicking strategy is isolated: logged, treated as
// NONE for this bar, and the loop moves on.
func (e *Engine) firstSignal(instrument string, hist []market.Bar) (market.Signal, strategy.Strategy) {
	for _, s := range e.reg.Active() {
		sig := e.safeSignal(s, instrument, hist)
		if sig == market.Buy || sig == market.Sell {
			return sig, s
		}
	}
	return market.None, nil
}

func (e *Engine) safeSignal(s strategy.Strategy, instrument string, hist []market.Bar) (sig market.Signal) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Interface("panic", r).
				Str("strategy", s.Name()).
				Str("instrument", instrument).
				Msg("strategy fault isolated, treating signal as NONE")
			sig = market.None
		}
	}()
	return s.Signal(hist)
}

func (e *Engine) closeTrade(ctx context.Context, trade market.Trade) {
	e.tracker.Record(trade)
	metrics.TradesTotal.WithLabelValues(trade.Instrument, string(trade.ExitReason)).Inc()

	e.log.Info().
		Str("instrument", trade.Instrument).
		Str("side", string(trade.Side)).
		Str("reason", string(trade.ExitReason)).
		Float64("entry", trade.EntryPrice).
		Float64("exit", trade.ExitPrice).
		Float64("pnl", trade.PnL).
		Msg("trade closed")

	// SL and TP exits fill at the venue through the protective orders attached
	// on entry; a time exit has no venue-side trigger, so the engine must
	// flatten the position itself.
	if trade.ExitReason == market.ExitTime {
		if err := e.broker.ClosePosition(ctx, trade.Instrument, trade.Side); err != nil {
			e.log.Error().Err(err).Str("instrument", trade.Instrument).Msg("venue close after time exit failed")
		}
	}

	if err := e.rec.RecordTrade(trade); err != nil {
		// A closed trade must never disappear silently.
		e.log.Error().Err(err).Str("instrument", trade.Instrument).Msg("trade record write failed")
	}

	// Feedback goes to the exact instance that opened the position, even if a
	// registry swap replaced it while the position was open.
	if s, ok := e.posStrategy[trade.Instrument]; ok {
		delete(e.posStrategy, trade.Instrument)
		if fb, adapts := s.(strategy.TradeFeedback); adapts {
			fb.OnTradeClosed(trade.Win(), trade.PnL)
		}
	}
}

// maybeRefreshEquity polls the account on the configured interval. Drawdown
// is evaluated against the previously known equity before the fresh fetch,
// matching how the stats were when the trades happened.
func (e *Engine) maybeRefreshEquity(ctx context.Context) {
	if e.now().Sub(e.lastEquityFetch) < e.cfg.EquityRefresh {
		return
	}
	e.lastEquityFetch = e.now()

	snap := e.equity.Snapshot()
	metrics.DrawdownPct.Set(snap.DrawdownPct)
	if snap.DrawdownPct > e.cfg.DrawdownThreshold {
		e.log.Warn().Float64("drawdown_pct", snap.DrawdownPct).Msg("drawdown over threshold")
		e.triggerReoptimize(ctx)
	}
	if snap.DrawdownPct > 0.10 {
		e.log.Error().Float64("drawdown_pct", snap.DrawdownPct).Msg("drawdown over 10%")
	}

	eq, err := e.broker.AccountEquity(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("equity fetch failed")
		return
	}
	e.equity.Refresh(eq)
	metrics.Equity.Set(eq)
}

// TriggerReoptimize forces a re-optimization pass, used by the scheduled
// recalibration. At most one pass runs at a time.
func (e *Engine) TriggerReoptimize(ctx context.Context) { e.triggerReoptimize(ctx) }

func (e *Engine) triggerReoptimize(ctx context.Context) {
	if e.reoptimize == nil {
		return
	}
	if !e.optimizing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer e.optimizing.Store(false)
		e.log.Info().Msg("meta-bandit re-optimization triggered")
		if err := e.reoptimize(ctx); err != nil {
			metrics.OptimizeRunsTotal.WithLabelValues("error").Inc()
			e.log.Error().Err(err).Msg("re-optimization failed, keeping active strategy set")
			return
		}
		metrics.OptimizeRunsTotal.WithLabelValues("ok").Inc()
	}()
}

// ScaledRisk applies the drawdown policy: the base risk fraction is halved
// past 5% drawdown and halved again past 10%.
func ScaledRisk(base, drawdownPct float64) float64 {
	if drawdownPct > 0.05 {
		base *= 0.5
	}
	if drawdownPct > 0.10 {
		base *= 0.5
	}
	return base
}
