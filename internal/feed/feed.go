// Package feed hosts pricing stream connectors and the quote-to-bar aggregator.
package feed

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/market"
	"github.com/niickyg/oanda-trading-bot/internal/metrics"
)

const (
	// ProviderStub emits deterministic synthetic bars (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderStream consumes a live broker pricing stream over websockets.
	ProviderStream = "stream"
)

const (
	defaultBarSeconds = 5
	defaultTimeout    = 300 * time.Second
	maxBackoff        = 60 * time.Second
)

// PriceConn is one live connection to a pricing stream. ReadPrice blocks until
// the next record arrives, the read deadline passes, or the connection dies.
type PriceConn interface {
	ReadPrice() (market.PriceUpdate, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// DialFunc establishes a fresh PriceConn. The feed owns the returned
// connection and closes it when the stream drops.
type DialFunc func(ctx context.Context) (PriceConn, error)

// Feed turns a raw quote stream into completed bars on a channel.
type Feed struct {
	provider    string
	instruments []string
	barSeconds  int
	timeout     time.Duration
	log         zerolog.Logger
	dial        DialFunc

	agg          *aggregator
	retryCount   int
	pendingReset bool
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithDial overrides how stream connections are established.
func WithDial(dial DialFunc) Option {
	return func(f *Feed) { f.dial = dial }
}

// WithTimeout overrides the staleness timeout after which a silent connection
// is torn down and re-dialed.
func WithTimeout(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFeed constructs a feed backed by the requested provider. Instruments are
// deduplicated and sorted so downstream consumers see a stable order.
func NewFeed(provider string, instruments []string, barSeconds int, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	if barSeconds <= 0 {
		barSeconds = defaultBarSeconds
	}
	f := &Feed{
		provider:   strings.ToLower(provider),
		barSeconds: barSeconds,
		timeout:    defaultTimeout,
		log:        log,
		agg:        newAggregator(int64(barSeconds)),
		sleep:      sleepCtx,
	}
	f.setInstruments(instruments)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feed) setInstruments(instruments []string) {
	unique := make(map[string]struct{}, len(instruments))
	for _, in := range instruments {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		unique[in] = struct{}{}
	}
	f.instruments = f.instruments[:0]
	for in := range unique {
		f.instruments = append(f.instruments, in)
	}
	sort.Strings(f.instruments)
}

func (f *Feed) tracked(instrument string) bool {
	for _, in := range f.instruments {
		if in == instrument {
			return true
		}
	}
	return false
}

// Run pushes completed bars onto the provided channel until the context is
// canceled. A bar still being built when the context ends is discarded, never
// emitted partially.
func (f *Feed) Run(ctx context.Context, out chan<- market.Bar) error {
	switch f.provider {
	case ProviderStream:
		return f.runStream(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) runStream(ctx context.Context, out chan<- market.Bar) error {
	if f.dial == nil {
		f.dial = func(context.Context) (PriceConn, error) {
			return nil, errNoDialer
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := f.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Int("retry", f.retryCount).Msg("pricing stream dial failed")
			if err := f.backoffWait(ctx); err != nil {
				return err
			}
			continue
		}

		f.log.Info().Strs("instruments", f.instruments).Msg("pricing stream connected")
		err = f.consume(ctx, conn, out)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.ReconnectsTotal.Inc()
		f.log.Warn().Err(err).Int("retry", f.retryCount).Msg("pricing stream dropped, reconnecting")
		if err := f.backoffWait(ctx); err != nil {
			return err
		}
	}
}

// consume reads one connection to exhaustion. Heartbeats refresh the read
// deadline but never reach the aggregator. The retry counter resets only once
// a complete bar has made it through post-reconnect, so a connection that
// dies before producing data keeps escalating the backoff.
func (f *Feed) consume(ctx context.Context, conn PriceConn, out chan<- market.Bar) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.SetReadDeadline(time.Now().Add(f.timeout)); err != nil {
			return err
		}
		u, err := conn.ReadPrice()
		if err != nil {
			return err
		}
		if u.Type != market.UpdateTypePrice {
			continue
		}
		if !f.tracked(u.Instrument) {
			continue
		}
		bar, done := f.agg.Add(u)
		if !done {
			continue
		}
		select {
		case out <- bar:
			if f.pendingReset || f.retryCount > 0 {
				f.retryCount = 0
				f.pendingReset = false
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feed) backoffWait(ctx context.Context) error {
	f.retryCount++
	f.pendingReset = true
	return f.sleep(ctx, backoffDelay(f.retryCount))
}

// backoffDelay grows exponentially with the retry count and is capped at one
// minute.
func backoffDelay(retry int) time.Duration {
	secs := math.Min(math.Pow(2, float64(retry)), maxBackoff.Seconds())
	return time.Duration(secs * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
