// Package broker talks to the trading venue: order placement, account state,
// and historical candles, over REST in live mode or an in-memory ledger in
// paper mode.
package broker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// Client is the full venue surface. The engine consumes only the order and
// equity methods; the optimizer consumes Candles.
type Client interface {
	PlaceRiskManagedOrder(ctx context.Context, instrument string, side market.Side, entry, stop, takeProfit float64, units int) (string, error)
	AccountEquity(ctx context.Context) (float64, error)
	OpenPositions(ctx context.Context) ([]OpenPosition, error)
	ClosePosition(ctx context.Context, instrument string, side market.Side) error
	Candles(ctx context.Context, instrument, granularity string, count int) ([]market.Bar, error)
}

// OpenPosition is a venue-side position snapshot.
type OpenPosition struct {
	Instrument    string
	Side          market.Side
	Units         int
	UnrealizedPnL float64
}

// CloseProfitablePositions closes every venue position currently in profit,
// used on shutdown so unrealized gains are banked rather than left exposed.
func CloseProfitablePositions(ctx context.Context, c Client, log zerolog.Logger) error {
	positions, err := c.OpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if p.UnrealizedPnL <= 0 {
			continue
		}
		if err := c.ClosePosition(ctx, p.Instrument, p.Side); err != nil {
			log.Error().Err(err).Str("instrument", p.Instrument).Msg("failed to close profitable position")
			continue
		}
		log.Info().
			Str("instrument", p.Instrument).
			Str("side", string(p.Side)).
			Float64("unrealized_pnl", p.UnrealizedPnL).
			Msg("closed profitable position")
	}
	return nil
}
