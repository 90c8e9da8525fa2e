// Package bandit selects strategy configurations with a UCB1 multi-armed
// bandit over calibration backtests.
package bandit

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/strategy"
)

// Arm is one candidate strategy configuration and its accumulated evidence.
type Arm struct {
	Name          string
	Params        strategy.Params
	PullCount     int
	CumulativePnL float64
}

func (a *Arm) avg() float64 {
	if a.PullCount == 0 {
		return 0
	}
	return a.CumulativePnL / float64(a.PullCount)
}

// SelectUCB returns the index of the arm to pull next. Any arm never pulled
// is selected first, in slice order. Otherwise the UCB1 score
// avg + sqrt(2*ln(totalPulls)/pullCount) decides, with totalPulls taken
// before this pull.
func SelectUCB(arms []*Arm) int {
	totalPulls := 0
	for i, a := range arms {
		if a.PullCount == 0 {
			return i
		}
		totalPulls += a.PullCount
	}

	best, bestScore := 0, math.Inf(-1)
	for i, a := range arms {
		score := a.avg() + math.Sqrt(2*math.Log(float64(totalPulls))/float64(a.PullCount))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// Evaluator scores one configuration over the calibration window. Evaluations
// must be repeatable within a single optimization run.
type Evaluator interface {
	Evaluate(ctx context.Context, name string, params strategy.Params) (float64, error)
}

// Optimizer runs bandit rounds and swaps the winning configurations into the
// registry. A failed run leaves the active set untouched.
type Optimizer struct {
	log    zerolog.Logger
	reg    *strategy.Registry
	eval   Evaluator
	arms   []*Arm
	rounds int
	topN   int
	commit func(winners []Arm) error
}

// Option configures optimizer construction.
type Option func(*Optimizer)

// WithTopN sets how many winning arms become the active strategy set.
func WithTopN(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.topN = n
		}
	}
}

// WithCommit installs a callback invoked with the winners before the registry
// swap, typically to persist them to the config file. A commit error aborts
// the swap.
func WithCommit(fn func(winners []Arm) error) Option {
	return func(o *Optimizer) { o.commit = fn }
}

// New builds an optimizer over the given arms.
func New(log zerolog.Logger, reg *strategy.Registry, eval Evaluator, arms []*Arm, rounds int, opts ...Option) *Optimizer {
	o := &Optimizer{log: log, reg: reg, eval: eval, arms: arms, rounds: rounds, topN: 1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Arms exposes the accumulated evidence, for reporting.
func (o *Optimizer) Arms() []Arm {
	out := make([]Arm, len(o.arms))
	for i, a := range o.arms {
		out[i] = *a
	}
	return out
}

// Run executes the bandit rounds and swaps the winners in. The whole pass
// holds the registry's swap gate so a config reload cannot interleave with
// arm evaluation. Any evaluation or commit error aborts before the swap.
func (o *Optimizer) Run(ctx context.Context) error {
	if len(o.arms) == 0 {
		return fmt.Errorf("no arms to optimize")
	}

	var runErr error
	o.reg.Freeze(func() {
		for round := 0; round < o.rounds; round++ {
			if err := ctx.Err(); err != nil {
				runErr = err
				return
			}
			idx := SelectUCB(o.arms)
			arm := o.arms[idx]
			pnl, err := o.eval.Evaluate(ctx, arm.Name, arm.Params)
			if err != nil {
				runErr = fmt.Errorf("evaluate %s: %w", arm.Name, err)
				return
			}
			arm.PullCount++
			arm.CumulativePnL += pnl
			o.log.Debug().
				Int("round", round).
				Str("arm", arm.Name).
				Float64("pnl", pnl).
				Float64("cumulative", arm.CumulativePnL).
				Msg("bandit pull")
		}

		winners := o.winners()
		if o.commit != nil {
			if err := o.commit(winners); err != nil {
				runErr = fmt.Errorf("commit winners: %w", err)
				return
			}
		}

		next := make([]strategy.Strategy, 0, len(winners))
		for _, w := range winners {
			s, err := strategy.Build(w.Name, w.Params)
			if err != nil {
				runErr = fmt.Errorf("build winner %s: %w", w.Name, err)
				return
			}
			next = append(next, s)
		}
		o.reg.Swap(next)

		names := make([]string, len(winners))
		for i, w := range winners {
			names[i] = w.Name
		}
		o.log.Info().Strs("winners", names).Int("rounds", o.rounds).Msg("optimization complete")
	})
	return runErr
}

// winners returns the topN arms by cumulative PnL, stable for equal scores.
func (o *Optimizer) winners() []Arm {
	ranked := o.Arms()
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CumulativePnL > ranked[j].CumulativePnL
	})
	if len(ranked) > o.topN {
		ranked = ranked[:o.topN]
	}
	return ranked
}
