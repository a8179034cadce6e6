package binance

import (
	"context"
	"sync"
	"testing"
	"time"

	"crypto_monitor/internal/domain"
)

// fakeSink collects enqueued records.
type fakeSink struct {
	mu      sync.Mutex
	records []domain.Record
}

func (f *fakeSink) Enqueue(r domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func newTestWorker(symbols ...string) (*Worker, *domain.MarketState, *fakeSink) {
	market := domain.NewMarketState(symbols, 100)
	sink := &fakeSink{}
	w := NewWorker("wss://example.com/stream", symbols, market, sink)
	return w, market, sink
}

func TestWorker_HandleTrade(t *testing.T) {
	w, market, sink := newTestWorker("BTCUSDT")
	now := time.Now()

	frame := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":1700000000000,"s":"BTCUSDT","p":"50000.5","q":"0.25","T":1700000000000,"m":false}}`)
	w.handleMessage(frame, now)

	snap, err := market.Snapshot("BTCUSDT")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Trades) != 1 {
		t.Fatalf("expected 1 trade in market state, got %d", len(snap.Trades))
	}
	trade := snap.Trades[0]
	if trade.Price.String() != "50000.5" || trade.Side != domain.SideBuy {
		t.Errorf("unexpected trade: %+v", trade)
	}
	if sink.count() != 1 {
		t.Errorf("expected 1 record enqueued, got %d", sink.count())
	}
}

func TestWorker_TakerSide(t *testing.T) {
	w, market, _ := newTestWorker("BTCUSDT")

	// m=true means the buyer was the maker, so the taker sold.
	frame := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"1","q":"1","T":0,"m":true}}`)
	w.handleMessage(frame, time.Now())

	snap, _ := market.Snapshot("BTCUSDT")
	if len(snap.Trades) != 1 || snap.Trades[0].Side != domain.SideSell {
		t.Errorf("expected SELL side, got %+v", snap.Trades)
	}
}

func TestWorker_HandleDepth(t *testing.T) {
	w, market, sink := newTestWorker("ETHUSDT")

	frame := []byte(`{"stream":"ethusdt@depth20@100ms","data":{"lastUpdateId":5,"bids":[["3000.1","2"],["3000.0","1"]],"asks":[["3000.5","4"]]}}`)
	w.handleMessage(frame, time.Now())

	if got := market.BookSequence("ETHUSDT"); got != 5 {
		t.Fatalf("expected book seq 5, got %d", got)
	}
	snap, _ := market.Snapshot("ETHUSDT")
	if snap.Book.BestBid().Price.String() != "3000.1" {
		t.Errorf("unexpected best bid: %v", snap.Book.BestBid())
	}
	if sink.count() != 1 {
		t.Errorf("expected 1 record enqueued, got %d", sink.count())
	}
}

func TestWorker_SequenceRegression(t *testing.T) {
	w, market, sink := newTestWorker("ETHUSDT")
	now := time.Now()

	// Sequences arrive as 5, 6, 4, 7. Without a snapshot client the
	// regression drops the book best-effort and ingestion continues.
	for _, frame := range []string{
		`{"stream":"ethusdt@depth20@100ms","data":{"lastUpdateId":5,"bids":[["1","1"]],"asks":[["2","1"]]}}`,
		`{"stream":"ethusdt@depth20@100ms","data":{"lastUpdateId":6,"bids":[["1","1"]],"asks":[["2","1"]]}}`,
		`{"stream":"ethusdt@depth20@100ms","data":{"lastUpdateId":4,"bids":[["1","1"]],"asks":[["2","1"]]}}`,
		`{"stream":"ethusdt@depth20@100ms","data":{"lastUpdateId":7,"bids":[["1","1"]],"asks":[["2","1"]]}}`,
	} {
		w.handleMessage([]byte(frame), now)
	}

	if got := market.BookSequence("ETHUSDT"); got != 7 {
		t.Errorf("expected final seq 7, got %d", got)
	}
	// Seq 4 was rejected; 5, 6 and 7 were enqueued.
	if sink.count() != 3 {
		t.Errorf("expected 3 enqueued book updates, got %d", sink.count())
	}
}

func TestWorker_DecodeErrorsSkipMessage(t *testing.T) {
	w, market, sink := newTestWorker("BTCUSDT")
	now := time.Now()

	frames := []string{
		`not json at all`,
		`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"garbage","q":"1","T":0,"m":false}}`,
		`{"stream":"btcusdt@depth20@100ms","data":{"lastUpdateId":1,"bids":[["x","1"]],"asks":[]}}`,
		`{"result":null,"id":1}`, // Subscribe ack
	}
	for _, f := range frames {
		w.handleMessage([]byte(f), now)
	}

	// A good message afterwards still goes through.
	w.handleMessage([]byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"10","q":"1","T":0,"m":false}}`), now)

	if market.TradeCount("BTCUSDT") != 1 {
		t.Errorf("expected exactly 1 recorded trade, got %d", market.TradeCount("BTCUSDT"))
	}
	if sink.count() != 1 {
		t.Errorf("expected 1 enqueued record, got %d", sink.count())
	}
}

func TestWorker_UntrackedSymbolDropped(t *testing.T) {
	w, _, sink := newTestWorker("BTCUSDT")

	frame := []byte(`{"stream":"dogeusdt@trade","data":{"e":"trade","s":"DOGEUSDT","p":"0.1","q":"100","T":0,"m":false}}`)
	w.handleMessage(frame, time.Now())

	if sink.count() != 0 {
		t.Errorf("untracked symbol must not be enqueued, got %d records", sink.count())
	}
}

func TestWorker_StateLifecycle(t *testing.T) {
	w, _, _ := newTestWorker("BTCUSDT")

	if w.State() != domain.StateDisconnected {
		t.Errorf("initial state should be DISCONNECTED, got %s", w.State())
	}

	w.setState(domain.StateConnected)
	if w.State() != domain.StateConnected {
		t.Errorf("expected CONNECTED, got %s", w.State())
	}

	// Close is idempotent and lands on DISCONNECTED.
	w.Close()
	w.Close()
	if w.State() != domain.StateDisconnected {
		t.Errorf("expected DISCONNECTED after Close, got %s", w.State())
	}
}

func TestStreamSymbol(t *testing.T) {
	tests := []struct {
		stream string
		want   string
	}{
		{"btcusdt@trade", "BTCUSDT"},
		{"ethusdt@depth20@100ms", "ETHUSDT"},
		{"noseparator", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := streamSymbol(tt.stream); got != tt.want {
			t.Errorf("streamSymbol(%q) = %q, want %q", tt.stream, got, tt.want)
		}
	}
}

func TestWorker_ReconnectInterruptsBackoff(t *testing.T) {
	w, _, _ := newTestWorker("BTCUSDT")

	type result struct {
		kicked, ok bool
	}
	done := make(chan result, 1)
	go func() {
		kicked, ok := w.sleepBackoff(context.Background(), time.Minute)
		done <- result{kicked, ok}
	}()

	w.Reconnect()
	select {
	case r := <-done:
		if !r.kicked || !r.ok {
			t.Errorf("expected kicked wait, got kicked=%v ok=%v", r.kicked, r.ok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backoff wait did not return after Reconnect")
	}
}

func TestWorker_SleepBackoff(t *testing.T) {
	t.Run("Elapsed Delay", func(t *testing.T) {
		w, _, _ := newTestWorker("BTCUSDT")
		kicked, ok := w.sleepBackoff(context.Background(), time.Millisecond)
		if kicked || !ok {
			t.Errorf("expected plain expiry, got kicked=%v ok=%v", kicked, ok)
		}
	})

	t.Run("Context Cancelled", func(t *testing.T) {
		w, _, _ := newTestWorker("BTCUSDT")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, ok := w.sleepBackoff(ctx, time.Minute); ok {
			t.Error("expected ok=false on cancelled context")
		}
	})
}

func TestWorker_ReconnectNeverBlocks(t *testing.T) {
	w, _, _ := newTestWorker("BTCUSDT")

	// Second call finds the kick already pending and must not block.
	w.Reconnect()
	w.Reconnect()

	select {
	case <-w.kick:
	default:
		t.Error("expected a pending kick after Reconnect")
	}
}
