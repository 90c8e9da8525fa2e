package feed

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

func quote(instrument string, sec int64, mid float64) market.PriceUpdate {
	return market.PriceUpdate{
		Instrument: instrument,
		Bid:        mid - 0.0001,
		Ask:        mid + 0.0001,
		Time:       time.Unix(sec, 0).UTC(),
		Type:       market.UpdateTypePrice,
	}
}

func heartbeat(sec int64) market.PriceUpdate {
	return market.PriceUpdate{Type: "HEARTBEAT", Time: time.Unix(sec, 0).UTC()}
}

type scriptEvent struct {
	update market.PriceUpdate
	err    error
}

// scriptConn replays a fixed sequence of reads, then blocks until closed.
type scriptConn struct {
	events []scriptEvent
	idx    int
	done   chan struct{}
}

func newScriptConn(events ...scriptEvent) *scriptConn {
	return &scriptConn{events: events, done: make(chan struct{})}
}

func (c *scriptConn) ReadPrice() (market.PriceUpdate, error) {
	if c.idx >= len(c.events) {
		<-c.done
		return market.PriceUpdate{}, errors.New("connection closed")
	}
	ev := c.events[c.idx]
	c.idx++
	return ev.update, ev.err
}

func (c *scriptConn) SetReadDeadline(time.Time) error { return nil }

func (c *scriptConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

func TestAggregatorCompletesBarOnNextBucket(t *testing.T) {
	agg := newAggregator(5)

	for _, u := range []market.PriceUpdate{
		quote("EUR_USD", 0, 1.1000),
		quote("EUR_USD", 2, 1.1004),
		quote("EUR_USD", 4, 1.0998),
	} {
		if _, done := agg.Add(u); done {
			t.Fatalf("no bar may complete inside its own bucket")
		}
	}

	bar, done := agg.Add(quote("EUR_USD", 5, 1.1010))
	if !done {
		t.Fatalf("first quote of the next bucket must complete the previous bar")
	}
	if !bar.Complete {
		t.Fatalf("emitted bar must be marked complete")
	}
	if got := bar.OpenTime.Unix(); got != 0 {
		t.Fatalf("expected bucket-aligned open time 0, got %d", got)
	}
	if bar.Open != 1.1000 || bar.High != 1.1004 || bar.Low != 1.0998 || bar.Close != 1.0998 {
		t.Fatalf("unexpected OHLC %+v", bar)
	}
	if bar.Volume != 3 {
		t.Fatalf("expected 3 quotes folded, got %d", bar.Volume)
	}
}

func TestAggregatorDropsLateQuotes(t *testing.T) {
	agg := newAggregator(5)
	agg.Add(quote("EUR_USD", 10, 1.1010))
	if _, done := agg.Add(quote("EUR_USD", 4, 1.2000)); done {
		t.Fatalf("late quote must not complete a bar")
	}
	bar, done := agg.Add(quote("EUR_USD", 15, 1.1011))
	if !done {
		t.Fatalf("expected bucket-10 bar")
	}
	if bar.High != 1.1010 {
		t.Fatalf("late quote leaked into the bar: %+v", bar)
	}
}

func TestAggregatorKeepsInstrumentsIndependent(t *testing.T) {
	agg := newAggregator(5)
	agg.Add(quote("EUR_USD", 0, 1.1000))
	agg.Add(quote("USD_JPY", 0, 155.00))

	bar, done := agg.Add(quote("EUR_USD", 5, 1.1005))
	if !done || bar.Instrument != "EUR_USD" {
		t.Fatalf("EUR_USD roll must not touch USD_JPY: %+v done=%v", bar, done)
	}
	bar, done = agg.Add(quote("USD_JPY", 5, 155.10))
	if !done || bar.Instrument != "USD_JPY" || bar.Close != 155.00 {
		t.Fatalf("unexpected USD_JPY bar %+v done=%v", bar, done)
	}
}

func TestStreamReconnectKeepsBarsContinuous(t *testing.T) {
	conn1 := newScriptConn(
		scriptEvent{update: quote("EUR_USD", 0, 1.1000)},
		scriptEvent{update: heartbeat(1)},
		scriptEvent{update: quote("EUR_USD", 2, 1.1004)},
		scriptEvent{update: quote("EUR_USD", 5, 1.1010)},
		scriptEvent{err: errors.New("stream reset by peer")},
	)
	conn2 := newScriptConn(
		scriptEvent{update: heartbeat(6)},
		scriptEvent{update: quote("EUR_USD", 7, 1.1012)},
		scriptEvent{update: quote("EUR_USD", 10, 1.1020)},
		scriptEvent{err: errors.New("stream reset by peer")},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conns := []*scriptConn{conn1, conn2}
	dial := func(ctx context.Context) (PriceConn, error) {
		if len(conns) == 0 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		c := conns[0]
		conns = conns[1:]
		return c, nil
	}

	f := NewFeed(ProviderStream, []string{"EUR_USD"}, 5, zerolog.Nop(), WithDial(dial))
	var sleeps []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	out := make(chan market.Bar, 8)
	runDone := make(chan error, 1)
	go func() { runDone <- f.Run(ctx, out) }()

	var bars []market.Bar
	timeout := time.After(3 * time.Second)
	for len(bars) < 2 {
		select {
		case b := <-out:
			bars = append(bars, b)
		case <-timeout:
			t.Fatalf("timed out with %d bars", len(bars))
		}
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}

	// Continuity across the reconnect: bucket 0 from the first connection,
	// bucket 5 stitched together from quotes on both sides of the drop.
	if bars[0].OpenTime.Unix() != 0 || bars[1].OpenTime.Unix() != 5 {
		t.Fatalf("unexpected bucket times %d, %d", bars[0].OpenTime.Unix(), bars[1].OpenTime.Unix())
	}
	if bars[1].Open != 1.1010 || bars[1].Close != 1.1012 || bars[1].Volume != 2 {
		t.Fatalf("bucket 5 must stitch across the reconnect: %+v", bars[1])
	}
	if !bars[0].OpenTime.Before(bars[1].OpenTime) {
		t.Fatalf("bars must be in order")
	}

	// The retry counter reset once the first post-reconnect bar went out, so
	// both drops backed off from the same starting point.
	if len(sleeps) != 2 || sleeps[0] != sleeps[1] {
		t.Fatalf("expected two identical backoff waits, got %v", sleeps)
	}

	// The quote at t=10 opened a new bucket that never completed; it must be
	// discarded on shutdown, not emitted partially.
	select {
	case b := <-out:
		t.Fatalf("unexpected extra bar %+v", b)
	default:
	}
}

// staleConn simulates a stream that goes silent: once its scripted quotes run
// out, the next read fails with the deadline error, the way a websocket read
// surfaces an expired read deadline. Deadlines are recorded for inspection.
type staleConn struct {
	events    []market.PriceUpdate
	idx       int
	deadlines []time.Time
	closed    bool
}

func (c *staleConn) ReadPrice() (market.PriceUpdate, error) {
	if c.idx >= len(c.events) {
		return market.PriceUpdate{}, os.ErrDeadlineExceeded
	}
	u := c.events[c.idx]
	c.idx++
	return u, nil
}

func (c *staleConn) SetReadDeadline(t time.Time) error {
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *staleConn) Close() error { c.closed = true; return nil }

func TestStaleConnectionTearsDownAndReconnects(t *testing.T) {
	conn1 := &staleConn{events: []market.PriceUpdate{
		quote("EUR_USD", 0, 1.1000),
		quote("EUR_USD", 5, 1.1004),
	}}
	conn2 := newScriptConn(
		scriptEvent{update: quote("EUR_USD", 10, 1.1008)},
		scriptEvent{update: quote("EUR_USD", 15, 1.1012)},
		scriptEvent{err: errors.New("stream reset by peer")},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dials := 0
	dial := func(ctx context.Context) (PriceConn, error) {
		dials++
		switch dials {
		case 1:
			return conn1, nil
		case 2:
			return conn2, nil
		default:
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}

	f := NewFeed(ProviderStream, []string{"EUR_USD"}, 5, zerolog.Nop(), WithDial(dial), WithTimeout(42*time.Second))
	var sleeps []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	start := time.Now()
	out := make(chan market.Bar, 8)
	runDone := make(chan error, 1)
	go func() { runDone <- f.Run(ctx, out) }()

	var bars []market.Bar
	timeout := time.After(3 * time.Second)
	for len(bars) < 2 {
		select {
		case b := <-out:
			bars = append(bars, b)
		case <-timeout:
			t.Fatalf("timed out with %d bars after stale teardown", len(bars))
		}
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}

	if !conn1.closed {
		t.Fatalf("silent connection must be torn down after the deadline fires")
	}
	if dials < 2 {
		t.Fatalf("expected a re-dial after the stale teardown, got %d dial(s)", dials)
	}
	if bars[0].OpenTime.Unix() != 0 || bars[1].OpenTime.Unix() != 10 {
		t.Fatalf("expected buckets 0 and 10 across the reconnect, got %d and %d",
			bars[0].OpenTime.Unix(), bars[1].OpenTime.Unix())
	}
	if len(sleeps) == 0 || sleeps[0] != 2*time.Second {
		t.Fatalf("stale drop must back off like any other drop, got %v", sleeps)
	}

	// Every read on the stale connection was guarded by the configured
	// staleness deadline: two quote reads plus the read that timed out.
	if len(conn1.deadlines) != 3 {
		t.Fatalf("expected a deadline per read, got %d", len(conn1.deadlines))
	}
	for i, d := range conn1.deadlines {
		if d.Before(start.Add(41 * time.Second)) {
			t.Fatalf("deadline %d not derived from the staleness timeout: %v", i, d)
		}
	}
}

func TestDialFailuresEscalateBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dial := func(context.Context) (PriceConn, error) {
		return nil, errors.New("connection refused")
	}
	f := NewFeed(ProviderStream, []string{"EUR_USD"}, 5, zerolog.Nop(), WithDial(dial))

	var sleeps []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	out := make(chan market.Bar)
	if err := f.Run(ctx, out); err == nil {
		t.Fatalf("expected run to stop with the canceled context")
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(sleeps) != 3 {
		t.Fatalf("expected 3 waits, got %v", sleeps)
	}
	for i, w := range want {
		if sleeps[i] != w {
			t.Fatalf("wait %d: expected %v, got %v", i, w, sleeps[i])
		}
	}
}

func TestBackoffDelayCap(t *testing.T) {
	if got := backoffDelay(1); got != 2*time.Second {
		t.Fatalf("expected 2s, got %v", got)
	}
	if got := backoffDelay(5); got != 32*time.Second {
		t.Fatalf("expected 32s, got %v", got)
	}
	if got := backoffDelay(6); got != 60*time.Second {
		t.Fatalf("expected 60s cap, got %v", got)
	}
	if got := backoffDelay(30); got != 60*time.Second {
		t.Fatalf("expected 60s cap, got %v", got)
	}
}

func TestUntrackedInstrumentIgnored(t *testing.T) {
	conn := newScriptConn(
		scriptEvent{update: quote("GBP_USD", 0, 1.2500)},
		scriptEvent{update: quote("GBP_USD", 5, 1.2510)},
		scriptEvent{err: errors.New("stream reset by peer")},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialed := false
	dial := func(ctx context.Context) (PriceConn, error) {
		if dialed {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		dialed = true
		return conn, nil
	}
	f := NewFeed(ProviderStream, []string{"EUR_USD"}, 5, zerolog.Nop(), WithDial(dial))
	f.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	out := make(chan market.Bar, 4)
	f.Run(ctx, out)

	select {
	case b := <-out:
		t.Fatalf("untracked instrument produced bar %+v", b)
	default:
	}
}

func TestStubBarsDeterministic(t *testing.T) {
	ts := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	a := stubBar("EUR_USD", 4, ts)
	b := stubBar("EUR_USD", 4, ts)
	if a != b {
		t.Fatalf("stub bars must be reproducible: %+v vs %+v", a, b)
	}
	if a.High < a.Open || a.High < a.Close || a.Low > a.Open || a.Low > a.Close {
		t.Fatalf("inconsistent stub OHLC %+v", a)
	}
	jpy := stubBar("USD_JPY", 4, ts)
	if jpy.Close < 100 {
		t.Fatalf("JPY stub must quote around 110, got %v", jpy.Close)
	}
}
