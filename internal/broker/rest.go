package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// REST is a v3-style forex broker API client. All prices cross the wire as
// strings at the instrument's quoted precision.
type REST struct {
	baseURL   string
	token     string
	accountID string
	http      *http.Client
	log       zerolog.Logger
}

// NewREST builds a client for the given API host and account.
func NewREST(baseURL, token, accountID string, log zerolog.Logger) *REST {
	return &REST{
		baseURL:   baseURL,
		token:     token,
		accountID: accountID,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

type marketOrderRequest struct {
	Order marketOrder `json:"order"`
}

type marketOrder struct {
	Type         string      `json:"type"`
	Instrument   string      `json:"instrument"`
	Units        string      `json:"units"`
	TimeInForce  string      `json:"timeInForce"`
	PositionFill string      `json:"positionFill"`
	StopLoss     *priceLevel `json:"stopLossOnFill,omitempty"`
	TakeProfit   *priceLevel `json:"takeProfitOnFill,omitempty"`
}

type priceLevel struct {
	Price string `json:"price"`
}

type transactionRef struct {
	ID string `json:"id"`
}

type orderResponse struct {
	OrderFillTransaction   *transactionRef `json:"orderFillTransaction"`
	OrderCreateTransaction *transactionRef `json:"orderCreateTransaction"`
	ErrorMessage           string          `json:"errorMessage"`
}

// PlaceRiskManagedOrder submits a market order with stop-loss and take-profit
// attached on fill, so the position is never naked at the venue.
func (c *REST) PlaceRiskManagedOrder(ctx context.Context, instrument string, side market.Side, entry, stop, takeProfit float64, units int) (string, error) {
	prec := market.Precision(instrument)
	req := marketOrderRequest{Order: marketOrder{
		Type:         "MARKET",
		Instrument:   instrument,
		Units:        strconv.Itoa(units),
		TimeInForce:  "FOK",
		PositionFill: "DEFAULT",
		StopLoss:     &priceLevel{Price: strconv.FormatFloat(stop, 'f', prec, 64)},
		TakeProfit:   &priceLevel{Price: strconv.FormatFloat(takeProfit, 'f', prec, 64)},
	}}

	var resp orderResponse
	path := fmt.Sprintf("/v3/accounts/%s/orders", c.accountID)
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	if resp.OrderFillTransaction != nil {
		return resp.OrderFillTransaction.ID, nil
	}
	if resp.OrderCreateTransaction != nil {
		return resp.OrderCreateTransaction.ID, nil
	}
	return "", fmt.Errorf("order not filled: %s", resp.ErrorMessage)
}

// AccountEquity returns the account's net asset value.
func (c *REST) AccountEquity(ctx context.Context) (float64, error) {
	var resp struct {
		Account struct {
			NAV string `json:"NAV"`
		} `json:"account"`
	}
	path := fmt.Sprintf("/v3/accounts/%s/summary", c.accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	nav, err := strconv.ParseFloat(resp.Account.NAV, 64)
	if err != nil {
		return 0, fmt.Errorf("parse NAV %q: %w", resp.Account.NAV, err)
	}
	return nav, nil
}

// OpenPositions lists the venue's open positions for the account.
func (c *REST) OpenPositions(ctx context.Context) ([]OpenPosition, error) {
	var resp struct {
		Positions []struct {
			Instrument string `json:"instrument"`
			Long       struct {
				Units        string `json:"units"`
				UnrealizedPL string `json:"unrealizedPL"`
			} `json:"long"`
			Short struct {
				Units        string `json:"units"`
				UnrealizedPL string `json:"unrealizedPL"`
			} `json:"short"`
		} `json:"positions"`
	}
	path := fmt.Sprintf("/v3/accounts/%s/openPositions", c.accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	var out []OpenPosition
	for _, p := range resp.Positions {
		if units, _ := strconv.Atoi(p.Long.Units); units != 0 {
			pnl, _ := strconv.ParseFloat(p.Long.UnrealizedPL, 64)
			out = append(out, OpenPosition{Instrument: p.Instrument, Side: market.Long, Units: units, UnrealizedPnL: pnl})
		}
		if units, _ := strconv.Atoi(p.Short.Units); units != 0 {
			pnl, _ := strconv.ParseFloat(p.Short.UnrealizedPL, 64)
			out = append(out, OpenPosition{Instrument: p.Instrument, Side: market.Short, Units: -units, UnrealizedPnL: pnl})
		}
	}
	return out, nil
}

// ClosePosition flattens one side of an instrument's position.
func (c *REST) ClosePosition(ctx context.Context, instrument string, side market.Side) error {
	body := map[string]string{"longUnits": "ALL"}
	if side == market.Short {
		body = map[string]string{"shortUnits": "ALL"}
	}
	path := fmt.Sprintf("/v3/accounts/%s/positions/%s/close", c.accountID, instrument)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// Candles fetches the most recent historical mid-price candles.
func (c *REST) Candles(ctx context.Context, instrument, granularity string, count int) ([]market.Bar, error) {
	var resp struct {
		Candles []struct {
			Time     time.Time `json:"time"`
			Volume   int       `json:"volume"`
			Complete bool      `json:"complete"`
			Mid      struct {
				O string `json:"o"`
				H string `json:"h"`
				L string `json:"l"`
				C string `json:"c"`
			} `json:"mid"`
		} `json:"candles"`
	}
	path := fmt.Sprintf("/v3/instruments/%s/candles?granularity=%s&count=%d&price=M", instrument, granularity, count)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	bars := make([]market.Bar, 0, len(resp.Candles))
	for _, cd := range resp.Candles {
		o, err1 := strconv.ParseFloat(cd.Mid.O, 64)
		h, err2 := strconv.ParseFloat(cd.Mid.H, 64)
		l, err3 := strconv.ParseFloat(cd.Mid.L, 64)
		cl, err4 := strconv.ParseFloat(cd.Mid.C, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			c.log.Warn().Str("instrument", instrument).Time("time", cd.Time).Msg("skipping unparsable candle")
			continue
		}
		bars = append(bars, market.Bar{
			Instrument: instrument,
			OpenTime:   cd.Time,
			Open:       o,
			High:       h,
			Low:        l,
			Close:      cl,
			Volume:     cd.Volume,
			Complete:   cd.Complete,
		})
	}
	return bars, nil
}

func (c *REST) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
