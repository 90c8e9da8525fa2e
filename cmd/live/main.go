package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/backtest"
	"github.com/niickyg/oanda-trading-bot/internal/bandit"
	"github.com/niickyg/oanda-trading-bot/internal/broker"
	"github.com/niickyg/oanda-trading-bot/internal/config"
	"github.com/niickyg/oanda-trading-bot/internal/engine"
	"github.com/niickyg/oanda-trading-bot/internal/feed"
	"github.com/niickyg/oanda-trading-bot/internal/market"
	"github.com/niickyg/oanda-trading-bot/internal/metrics"
	"github.com/niickyg/oanda-trading-bot/internal/perf"
	"github.com/niickyg/oanda-trading-bot/internal/strategy"
	"github.com/niickyg/oanda-trading-bot/internal/tradelog"
	"github.com/niickyg/oanda-trading-bot/internal/util"
)

const paperBalance = 10000

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
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

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var creds config.Credentials
	needsVenue := cfg.Broker.Mode == "live" || cfg.Feed.Provider == feed.ProviderStream
	if needsVenue {
		creds, err = config.LoadCredentials()
		if err != nil {
			log.Fatal().Err(err).Msg("load credentials")
		}
	}

	var client broker.Client
	if cfg.Broker.Mode == "live" {
		client = broker.NewRetrying(broker.NewREST(cfg.Broker.APIURL, creds.Token, creds.AccountID, util.Component(log, "broker")), log)
		log.Info().Str("env", creds.Env).Msg("live broker client ready")
	} else {
		client = broker.NewPaper(paperBalance, util.Component(log, "paper"))
		log.Info().Msg("paper broker ready")
	}

	rec := newRecorder(cfg, log)
	defer rec.Close()

	reg := strategy.NewRegistry(util.Component(log, "registry"), strategy.BuildSet(cfg, log))
	if len(reg.Active()) == 0 {
		log.Fatal().Msg("no strategies could be built from config")
	}

	tracker := perf.NewTracker()
	equity := perf.NewEquity(startingEquity(ctx, client, log))

	eng := engine.New(util.Component(log, "engine"), engine.Config{
		BaseRiskPct:       cfg.Risk.BasePct,
		SLMult:            cfg.Risk.SLMult,
		TPMult:            cfg.Risk.TPMult,
		ATRPeriod:         cfg.Risk.ATRPeriod,
		MaxHoldBars:       cfg.Risk.MaxHoldBars,
		Cooldown:          time.Duration(cfg.Risk.CooldownSeconds) * time.Second,
		DrawdownThreshold: cfg.Risk.DrawdownThreshold,
		EquityRefresh:     time.Duration(cfg.EquityRefreshSeconds) * time.Second,
	}, reg, client, rec, tracker, equity)

	eng.SetReoptimize(func(ctx context.Context) error {
		eval := bandit.NewBacktestEvaluator(client, cfg.Feed.Instruments[0], cfg.Bandit.Granularity, cfg.Bandit.CandleCount, backtest.Config{
			Warmup:      cfg.Bandit.Warmup,
			SLMult:      cfg.Risk.SLMult,
			TPMult:      cfg.Risk.TPMult,
			ATRPeriod:   cfg.Risk.ATRPeriod,
			MaxHoldBars: cfg.Risk.MaxHoldBars,
		})
		opt := bandit.New(util.Component(log, "bandit"), reg, eval, armsFromConfig(cfg), cfg.Bandit.Rounds,
			bandit.WithCommit(winnersCommit(cfg, *configPath)))
		return opt.Run(ctx)
	})

	if expr := cfg.Bandit.RecalibrateCron; expr != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(expr, func() { eng.TriggerReoptimize(ctx) }); err != nil {
			log.Fatal().Err(err).Str("cron", expr).Msg("invalid recalibration schedule")
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Info().Str("cron", expr).Msg("scheduled recalibration armed")
	}

	go config.Watch(ctx, *configPath, time.Duration(cfg.WatchSeconds)*time.Second, util.Component(log, "watch"), func(next *config.Config) {
		reg.Reload(next)
	})

	var opts []feed.Option
	if cfg.Feed.Provider == feed.ProviderStream {
		opts = append(opts,
			feed.WithDial(feed.DialStream(cfg.Broker.StreamURL, creds.Token, creds.AccountID, cfg.Feed.Instruments, util.Component(log, "stream"))),
			feed.WithTimeout(time.Duration(cfg.Feed.TimeoutSeconds)*time.Second),
		)
	}
	f := feed.NewFeed(cfg.Feed.Provider, cfg.Feed.Instruments, cfg.Feed.BarSeconds, util.Component(log, "feed"), opts...)

	bars := make(chan market.Bar, 1024)
	go func() {
		if err := f.Run(ctx, bars); err != nil {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()

	eng.Run(ctx, bars)

	// Bank winners before the process exits.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := broker.CloseProfitablePositions(shutdownCtx, client, log); err != nil {
		log.Error().Err(err).Msg("shutdown position sweep failed")
	}
	log.Info().Msg("shutdown complete")
}

func newRecorder(cfg *config.Config, log zerolog.Logger) tradelog.Recorder {
	switch cfg.TradeLog.Driver {
	case "csv":
		rec, err := tradelog.NewCSV(cfg.TradeLog.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.TradeLog.Path).Msg("open csv trade log")
		}
		return rec
	case "sqlite":
		rec, err := tradelog.NewSQLite(cfg.TradeLog.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.TradeLog.Path).Msg("open sqlite trade log")
		}
		return rec
	default:
		return tradelog.Noop{}
	}
}

func startingEquity(ctx context.Context, client broker.Client, log zerolog.Logger) float64 {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	eq, err := client.AccountEquity(fetchCtx)
	if err != nil {
		log.Warn().Err(err).Float64("fallback", paperBalance).Msg("initial equity fetch failed")
		return paperBalance
	}
	return eq
}

// winnersCommit persists a re-optimization result before the registry swap,
// so a config reload or a restart comes back with the winners instead of the
// old set.
func winnersCommit(cfg *config.Config, path string) func([]bandit.Arm) error {
	return func(winners []bandit.Arm) error {
		enabled := make([]string, len(winners))
		for i, w := range winners {
			enabled[i] = w.Name
		}
		cfg.Strategies.Enabled = enabled
		return config.Save(path, cfg)
	}
}

func armsFromConfig(cfg *config.Config) []*bandit.Arm {
	arms := make([]*bandit.Arm, 0, len(cfg.Strategies.Enabled))
	for _, name := range cfg.Strategies.Enabled {
		arms = append(arms, &bandit.Arm{Name: name, Params: strategy.Params(cfg.Strategies.Params[name])})
	}
	return arms
}
