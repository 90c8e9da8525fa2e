package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

const (
	retryAttempts = 5
	retryBase     = 2 * time.Second
	retryMax      = 30 * time.Second
)

// Retrying wraps a Client and retries read-only calls on transient failure.
// Order placement and position closes pass through exactly once: retrying a
// write whose outcome is unknown risks a duplicate fill.
type Retrying struct {
	inner Client
	log   zerolog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps the given client.
func NewRetrying(inner Client, log zerolog.Logger) *Retrying {
	return &Retrying{inner: inner, log: log, sleep: sleepCtx}
}

func (r *Retrying) PlaceRiskManagedOrder(ctx context.Context, instrument string, side market.Side, entry, stop, takeProfit float64, units int) (string, error) {
	return r.inner.PlaceRiskManagedOrder(ctx, instrument, side, entry, stop, takeProfit, units)
}

func (r *Retrying) ClosePosition(ctx context.Context, instrument string, side market.Side) error {
	return r.inner.ClosePosition(ctx, instrument, side)
}

func (r *Retrying) AccountEquity(ctx context.Context) (float64, error) {
	var out float64
	err := r.retry(ctx, "account equity", func() error {
		var err error
		out, err = r.inner.AccountEquity(ctx)
		return err
	})
	return out, err
}

func (r *Retrying) OpenPositions(ctx context.Context) ([]OpenPosition, error) {
	var out []OpenPosition
	err := r.retry(ctx, "open positions", func() error {
		var err error
		out, err = r.inner.OpenPositions(ctx)
		return err
	})
	return out, err
}

func (r *Retrying) Candles(ctx context.Context, instrument, granularity string, count int) ([]market.Bar, error) {
	var out []market.Bar
	err := r.retry(ctx, "candles", func() error {
		var err error
		out, err = r.inner.Candles(ctx, instrument, granularity, count)
		return err
	})
	return out, err
}

func (r *Retrying) retry(ctx context.Context, op string, fn func() error) error {
	delay := retryBase
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == retryAttempts {
			break
		}
		r.log.Warn().Err(lastErr).Str("op", op).Int("attempt", attempt).Msg("request failed, retrying")
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > retryMax {
			delay = retryMax
		}
	}
	return lastErr
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
