package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

var errNoDialer = errors.New("stream provider requires a dialer")

type pricePayload struct {
	Type       string        `json:"type"`
	Instrument string        `json:"instrument"`
	Time       time.Time     `json:"time"`
	Bids       []priceBucket `json:"bids"`
	Asks       []priceBucket `json:"asks"`
}

type priceBucket struct {
	Price string `json:"price"`
}

// wsConn adapts a websocket connection to PriceConn, decoding one pricing
// record per message. Undecodable messages are logged and skipped rather than
// tearing the connection down.
type wsConn struct {
	conn *websocket.Conn
	log  zerolog.Logger
}

// DialStream returns a DialFunc for a broker pricing stream. The account's
// subscribed instruments are fixed at dial time.
func DialStream(streamURL, token, accountID string, instruments []string, log zerolog.Logger) DialFunc {
	return func(ctx context.Context) (PriceConn, error) {
		url := fmt.Sprintf("%s/v3/accounts/%s/pricing/stream?instruments=%s",
			strings.TrimSuffix(streamURL, "/"), accountID, strings.Join(instruments, "%2C"))
		header := http.Header{"Authorization": {"Bearer " + token}}

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, fmt.Errorf("dial pricing stream: %w", err)
		}
		conn.SetReadLimit(1 << 20)
		return &wsConn{conn: conn, log: log}, nil
	}
}

func (c *wsConn) ReadPrice() (market.PriceUpdate, error) {
	for {
		var payload pricePayload
		if err := c.conn.ReadJSON(&payload); err != nil {
			return market.PriceUpdate{}, err
		}
		if payload.Type != market.UpdateTypePrice {
			return market.PriceUpdate{Type: payload.Type, Time: payload.Time}, nil
		}
		bid, err := bestPrice(payload.Bids)
		if err != nil {
			c.log.Warn().Err(err).Str("instrument", payload.Instrument).Msg("invalid bid in pricing record")
			continue
		}
		ask, err := bestPrice(payload.Asks)
		if err != nil {
			c.log.Warn().Err(err).Str("instrument", payload.Instrument).Msg("invalid ask in pricing record")
			continue
		}
		return market.PriceUpdate{
			Instrument: payload.Instrument,
			Bid:        bid,
			Ask:        ask,
			Time:       payload.Time,
			Type:       payload.Type,
		}, nil
	}
}

func (c *wsConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

func (c *wsConn) Close() error { return c.conn.Close() }

func bestPrice(buckets []priceBucket) (float64, error) {
	if len(buckets) == 0 {
		return 0, errors.New("empty price ladder")
	}
	return strconv.ParseFloat(buckets[0].Price, 64)
}
