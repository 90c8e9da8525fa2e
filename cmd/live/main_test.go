package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/niickyg/oanda-trading-bot/internal/bandit"
	"github.com/niickyg/oanda-trading-bot/internal/config"
)

func TestWinnersCommitPersistsEnabledStrategies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	seed := []byte(`
app:
  log_level: info
feed:
  instruments: [EUR_USD]
strategies:
  enabled: [macdtrend, rsireversion, trendma]
  params:
    trendma:
      fast: 50
      slow: 200
`)
	if err := os.WriteFile(path, seed, 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	commit := winnersCommit(cfg, path)
	if err := commit([]bandit.Arm{{Name: "trendma"}, {Name: "macdtrend"}}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A reload from disk, as the config watcher would do, must see the winners.
	reloaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	want := []string{"trendma", "macdtrend"}
	if !reflect.DeepEqual(reloaded.Strategies.Enabled, want) {
		t.Fatalf("expected enabled %v after commit, got %v", want, reloaded.Strategies.Enabled)
	}
	if reloaded.Strategies.Params["trendma"]["fast"] != 50 {
		t.Fatalf("commit must not drop strategy params")
	}
}

func TestArmsFromConfigKeepsOrderAndParams(t *testing.T) {
	cfg := &config.Config{}
	cfg.Strategies.Enabled = []string{"rsireversion", "trendma"}
	cfg.Strategies.Params = map[string]map[string]float64{
		"trendma": {"fast": 20, "slow": 100},
	}

	arms := armsFromConfig(cfg)
	if len(arms) != 2 {
		t.Fatalf("expected one arm per enabled strategy, got %d", len(arms))
	}
	if arms[0].Name != "rsireversion" || arms[1].Name != "trendma" {
		t.Fatalf("arms must follow the enabled order, got %q, %q", arms[0].Name, arms[1].Name)
	}
	if arms[1].Params["slow"] != 100 {
		t.Fatalf("arm params must come from config, got %v", arms[1].Params)
	}
}
