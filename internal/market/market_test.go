package market

import (
	"math"
	"testing"
)

func TestPipSize(t *testing.T) {
	if got := PipSize("USD_JPY"); got != 0.01 {
		t.Fatalf("expected 0.01 pip for USD_JPY, got %v", got)
	}
	if got := PipSize("EUR_USD"); got != 0.0001 {
		t.Fatalf("expected 0.0001 pip for EUR_USD, got %v", got)
	}
	if got := PipSize("GBP_JPY"); got != 0.01 {
		t.Fatalf("expected 0.01 pip for GBP_JPY, got %v", got)
	}
}

func TestRoundPrice(t *testing.T) {
	if got := RoundPrice("EUR_USD", 1.123456789); got != 1.12346 {
		t.Fatalf("expected 1.12346, got %v", got)
	}
	if got := RoundPrice("USD_JPY", 161.44721); got != 161.45 {
		t.Fatalf("expected 161.45, got %v", got)
	}
}

func TestMid(t *testing.T) {
	u := PriceUpdate{Bid: 1.1000, Ask: 1.1002}
	if math.Abs(u.Mid()-1.1001) > 1e-9 {
		t.Fatalf("expected mid 1.1001, got %v", u.Mid())
	}
}

func TestSideFor(t *testing.T) {
	if SideFor(Buy) != Long {
		t.Fatalf("BUY should open a long")
	}
	if SideFor(Sell) != Short {
		t.Fatalf("SELL should open a short")
	}
}

func TestTradeWin(t *testing.T) {
	if (Trade{PnL: 0.001}).Win() != true {
		t.Fatalf("positive pnl should be a win")
	}
	if (Trade{PnL: -0.001}).Win() {
		t.Fatalf("negative pnl should not be a win")
	}
	if (Trade{PnL: 0}).Win() {
		t.Fatalf("flat pnl should not be a win")
	}
}
