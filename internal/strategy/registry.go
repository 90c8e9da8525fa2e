package strategy

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/config"
)

// Registry holds the ordered set of active strategies. Swap replaces the set
// atomically; callers never observe a partially updated list. A separate swap
// gate lets the optimizer freeze config-driven swaps while it mutates arm
// state.
type Registry struct {
	log zerolog.Logger

	mu     sync.RWMutex
	active []Strategy

	swapGate sync.Mutex
}

// NewRegistry builds a registry with the given initial set.
func NewRegistry(log zerolog.Logger, initial []Strategy) *Registry {
	return &Registry{log: log, active: initial}
}

// Active returns a copy of the active strategy slice, in priority order.
func (r *Registry) Active() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, len(r.active))
	copy(out, r.active)
	return out
}

// Swap atomically replaces the active set.
func (r *Registry) Swap(next []Strategy) {
	r.mu.Lock()
	r.active = next
	r.mu.Unlock()

	names := make([]string, len(next))
	for i, s := range next {
		names[i] = s.Name()
	}
	r.log.Info().Strs("strategies", names).Msg("active strategy set swapped")
}

// Find returns the active strategy with the given name, if any.
func (r *Registry) Find(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.active {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Freeze runs fn while holding the swap gate, keeping an optimization pass
// mutually exclusive with config-driven swaps. fn may still call Swap.
func (r *Registry) Freeze(fn func()) {
	r.swapGate.Lock()
	defer r.swapGate.Unlock()
	fn()
}

// Reload builds strategies from the config's enabled list and swaps them in.
// Strategies that fail to build are skipped with a log line; an empty result
// leaves the previous set in place.
func (r *Registry) Reload(cfg *config.Config) {
	r.swapGate.Lock()
	defer r.swapGate.Unlock()

	next := BuildSet(cfg, r.log)
	if len(next) == 0 {
		r.log.Warn().Msg("config reload produced no strategies, keeping previous set")
		return
	}
	r.Swap(next)
}

// BuildSet instantiates every enabled strategy from the config, preserving
// the configured order.
func BuildSet(cfg *config.Config, log zerolog.Logger) []Strategy {
	var out []Strategy
	for _, name := range cfg.Strategies.Enabled {
		params := Params(cfg.Strategies.Params[name])
		s, err := Build(name, params)
		if err != nil {
			log.Error().Err(err).Str("strategy", name).Msg("skipping unknown strategy")
			continue
		}
		out = append(out, s)
	}
	return out
}
