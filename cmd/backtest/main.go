package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/niickyg/oanda-trading-bot/internal/backtest"
	"github.com/niickyg/oanda-trading-bot/internal/broker"
	"github.com/niickyg/oanda-trading-bot/internal/config"
	"github.com/niickyg/oanda-trading-bot/internal/strategy"
	"github.com/niickyg/oanda-trading-bot/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	name := flag.String("strategy", "trendma", "strategy to backtest")
	instrument := flag.String("instrument", "EUR_USD", "instrument to fetch history for")
	granularity := flag.String("granularity", "H1", "candle granularity")
	count := flag.Int("count", 2000, "number of candles to fetch")
	warmup := flag.Int("warmup", 50, "bars to skip before the first entry")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	creds, err := config.LoadCredentials()
	if err != nil {
		log.Fatal().Err(err).Msg("load credentials")
	}
	client := broker.NewRetrying(broker.NewREST(cfg.Broker.APIURL, creds.Token, creds.AccountID, log), log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	bars, err := client.Candles(ctx, *instrument, *granularity, *count)
	if err != nil {
		log.Fatal().Err(err).Str("instrument", *instrument).Msg("fetch candles")
	}
	log.Info().Int("bars", len(bars)).Str("instrument", *instrument).Str("granularity", *granularity).Msg("history loaded")

	strat, err := strategy.Build(*name, strategy.Params(cfg.Strategies.Params[*name]))
	if err != nil {
		log.Fatal().Err(err).Str("strategy", *name).Msg("build strategy")
	}

	res := backtest.Run(strat, bars, backtest.Config{
		Warmup:      *warmup,
		SLMult:      cfg.Risk.SLMult,
		TPMult:      cfg.Risk.TPMult,
		ATRPeriod:   cfg.Risk.ATRPeriod,
		MaxHoldBars: cfg.Risk.MaxHoldBars,
	})

	out := struct {
		Strategy   string  `json:"strategy"`
		Instrument string  `json:"instrument"`
		Bars       int     `json:"bars"`
		Trades     int     `json:"trades"`
		WinRate    float64 `json:"win_rate"`
		Expectancy float64 `json:"expectancy"`
		TotalPnL   float64 `json:"total_pnl"`
	}{
		Strategy:   res.Strategy,
		Instrument: *instrument,
		Bars:       len(bars),
		Trades:     res.Stats.Trades,
		WinRate:    res.Stats.WinRate,
		Expectancy: res.Stats.Expectancy,
		TotalPnL:   res.Stats.TotalPnL,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("encode result")
	}
}
