package main

import (
	"context"
	"flag"
	"time"

	"github.com/niickyg/oanda-trading-bot/internal/backtest"
	"github.com/niickyg/oanda-trading-bot/internal/bandit"
	"github.com/niickyg/oanda-trading-bot/internal/broker"
	"github.com/niickyg/oanda-trading-bot/internal/config"
	"github.com/niickyg/oanda-trading-bot/internal/strategy"
	"github.com/niickyg/oanda-trading-bot/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	rounds := flag.Int("rounds", 0, "bandit rounds (0 uses the config value)")
	topN := flag.Int("top", 1, "how many winners to enable")
	write := flag.Bool("write", true, "persist winners back to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if *rounds <= 0 {
		*rounds = cfg.Bandit.Rounds
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		log.Fatal().Err(err).Msg("load credentials")
	}
	client := broker.NewRetrying(broker.NewREST(cfg.Broker.APIURL, creds.Token, creds.AccountID, log), log)

	reg := strategy.NewRegistry(log, strategy.BuildSet(cfg, log))
	eval := bandit.NewBacktestEvaluator(client, cfg.Feed.Instruments[0], cfg.Bandit.Granularity, cfg.Bandit.CandleCount, backtest.Config{
		Warmup:      cfg.Bandit.Warmup,
		SLMult:      cfg.Risk.SLMult,
		TPMult:      cfg.Risk.TPMult,
		ATRPeriod:   cfg.Risk.ATRPeriod,
		MaxHoldBars: cfg.Risk.MaxHoldBars,
	})

	arms := make([]*bandit.Arm, 0, len(cfg.Strategies.Enabled))
	for _, name := range cfg.Strategies.Enabled {
		arms = append(arms, &bandit.Arm{Name: name, Params: strategy.Params(cfg.Strategies.Params[name])})
	}

	opts := []bandit.Option{bandit.WithTopN(*topN)}
	if *write {
		opts = append(opts, bandit.WithCommit(func(winners []bandit.Arm) error {
			enabled := make([]string, len(winners))
			for i, w := range winners {
				enabled[i] = w.Name
			}
			cfg.Strategies.Enabled = enabled
			return config.Save(*configPath, cfg)
		}))
	}

	opt := bandit.New(util.Component(log, "bandit"), reg, eval, arms, *rounds, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := opt.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("optimization failed")
	}

	for _, arm := range opt.Arms() {
		log.Info().
			Str("strategy", arm.Name).
			Int("pulls", arm.PullCount).
			Float64("cumulative_pnl", arm.CumulativePnL).
			Msg("arm results")
	}
}
