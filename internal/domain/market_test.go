package domain

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTrade(symbol string, price int64) *TradeRecord {
	return &TradeRecord{
		Symbol:     symbol,
		Price:      decimal.NewFromInt(price),
		Quantity:   decimal.NewFromInt(1),
		Side:       SideBuy,
		TradeTime:  time.Now(),
		ReceivedAt: time.Now(),
	}
}

func newBook(symbol string, seq uint64) *OrderBookUpdate {
	return &OrderBookUpdate{
		Symbol:   symbol,
		Sequence: seq,
		Bids:     []BookLevel{{Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(2)}},
		Asks:     []BookLevel{{Price: decimal.NewFromInt(101), Quantity: decimal.NewFromInt(3)}},
	}
}

func TestMarketState_RecordTrade(t *testing.T) {
	t.Run("History Never Exceeds Capacity", func(t *testing.T) {
		m := NewMarketState([]string{"BTCUSDT"}, 5)

		for i := 0; i < 20; i++ {
			if err := m.RecordTrade(newTrade("BTCUSDT", int64(i))); err != nil {
				t.Fatalf("RecordTrade failed: %v", err)
			}
		}

		snap, err := m.Snapshot("BTCUSDT")
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(snap.Trades) != 5 {
			t.Fatalf("expected 5 trades, got %d", len(snap.Trades))
		}
		// Most recent 5 in arrival order: 15..19
		for i, tr := range snap.Trades {
			want := decimal.NewFromInt(int64(15 + i))
			if !tr.Price.Equal(want) {
				t.Errorf("trade %d: expected price %s, got %s", i, want, tr.Price)
			}
		}
		if m.TradeCount("BTCUSDT") != 20 {
			t.Errorf("expected total 20, got %d", m.TradeCount("BTCUSDT"))
		}
	})

	t.Run("Unknown Symbol Rejected", func(t *testing.T) {
		m := NewMarketState([]string{"BTCUSDT"}, 5)

		err := m.RecordTrade(newTrade("DOGEUSDT", 1))
		var unknown *UnknownSymbolError
		if !errors.As(err, &unknown) {
			t.Fatalf("expected UnknownSymbolError, got %v", err)
		}
	})

	t.Run("Partial Fill Preserves Order", func(t *testing.T) {
		m := NewMarketState([]string{"ETHUSDT"}, 10)
		for i := 0; i < 3; i++ {
			m.RecordTrade(newTrade("ETHUSDT", int64(i)))
		}
		snap, _ := m.Snapshot("ETHUSDT")
		if len(snap.Trades) != 3 {
			t.Fatalf("expected 3 trades, got %d", len(snap.Trades))
		}
		if !snap.Trades[0].Price.Equal(decimal.NewFromInt(0)) || !snap.Trades[2].Price.Equal(decimal.NewFromInt(2)) {
			t.Error("trades out of arrival order")
		}
	})
}

func TestMarketState_ReplaceBook(t *testing.T) {
	t.Run("Sequence Regression Rejected", func(t *testing.T) {
		m := NewMarketState([]string{"ETHUSDT"}, 5)

		// Feed delivers sequences 5, 6, 4, 7.
		for _, seq := range []uint64{5, 6} {
			if err := m.ReplaceBook(newBook("ETHUSDT", seq)); err != nil {
				t.Fatalf("seq %d should be accepted: %v", seq, err)
			}
		}

		err := m.ReplaceBook(newBook("ETHUSDT", 4))
		var desync *SequenceDesyncError
		if !errors.As(err, &desync) {
			t.Fatalf("expected SequenceDesyncError, got %v", err)
		}
		if m.BookSequence("ETHUSDT") != 6 {
			t.Errorf("stored book changed on rejection: seq %d", m.BookSequence("ETHUSDT"))
		}

		if err := m.ReplaceBook(newBook("ETHUSDT", 7)); err != nil {
			t.Fatalf("seq 7 should be accepted: %v", err)
		}
		if m.BookSequence("ETHUSDT") != 7 {
			t.Errorf("expected final seq 7, got %d", m.BookSequence("ETHUSDT"))
		}
	})

	t.Run("Equal Sequence Accepted", func(t *testing.T) {
		m := NewMarketState([]string{"BTCUSDT"}, 5)
		m.ReplaceBook(newBook("BTCUSDT", 10))
		if err := m.ReplaceBook(newBook("BTCUSDT", 10)); err != nil {
			t.Errorf("equal sequence should be accepted: %v", err)
		}
	})

	t.Run("Drop Resets Sequence Guard", func(t *testing.T) {
		m := NewMarketState([]string{"BTCUSDT"}, 5)
		m.ReplaceBook(newBook("BTCUSDT", 100))
		m.DropBook("BTCUSDT")
		if m.BookSequence("BTCUSDT") != 0 {
			t.Error("expected no book after drop")
		}
		if err := m.ReplaceBook(newBook("BTCUSDT", 3)); err != nil {
			t.Errorf("fresh snapshot after drop should be accepted: %v", err)
		}
	})
}

func TestMarketState_Snapshot(t *testing.T) {
	t.Run("Consistent View", func(t *testing.T) {
		m := NewMarketState([]string{"BTCUSDT"}, 5)
		m.ReplaceBook(newBook("BTCUSDT", 1))
		m.RecordTrade(newTrade("BTCUSDT", 100))

		snap, err := m.Snapshot("BTCUSDT")
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if snap.Book == nil || snap.Book.Sequence != 1 {
			t.Error("snapshot missing book")
		}
		if len(snap.Trades) != 1 {
			t.Errorf("expected 1 trade, got %d", len(snap.Trades))
		}
	})

	t.Run("Unknown Symbol", func(t *testing.T) {
		m := NewMarketState([]string{"BTCUSDT"}, 5)
		if _, err := m.Snapshot("NOPE"); err == nil {
			t.Error("expected error for untracked symbol")
		}
	})
}

func TestMarketState_ConcurrentAccess(t *testing.T) {
	m := NewMarketState([]string{"BTCUSDT", "ETHUSDT"}, 100)

	var wg sync.WaitGroup
	wg.Add(3)

	// Writer (the ingest path)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			m.RecordTrade(newTrade("BTCUSDT", int64(i)))
			m.ReplaceBook(newBook("ETHUSDT", uint64(i+1)))
		}
	}()

	// Readers (command loop, visualization)
	for r := 0; r < 2; r++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				snap, err := m.Snapshot("BTCUSDT")
				if err != nil {
					t.Errorf("Snapshot failed: %v", err)
					return
				}
				if len(snap.Trades) > 100 {
					t.Errorf("history exceeded capacity: %d", len(snap.Trades))
					return
				}
				m.Symbols()
			}
		}()
	}

	wg.Wait()

	if got := m.TradeCount("BTCUSDT"); got != 500 {
		t.Errorf("expected 500 trades recorded, got %d", got)
	}
}

func TestMarketState_Symbols(t *testing.T) {
	m := NewMarketState([]string{"ETHUSDT", "BTCUSDT"}, 5)
	syms := m.Symbols()
	want := fmt.Sprintf("%v", []string{"BTCUSDT", "ETHUSDT"})
	if fmt.Sprintf("%v", syms) != want {
		t.Errorf("expected sorted %s, got %v", want, syms)
	}
}

func TestMarketState_Book(t *testing.T) {
	m := NewMarketState([]string{"BTCUSDT"}, 5)

	t.Run("No Book Before First Update", func(t *testing.T) {
		if _, err := m.Book("BTCUSDT"); !errors.Is(err, ErrNoBook) {
			t.Errorf("expected ErrNoBook, got %v", err)
		}
	})

	t.Run("Unknown Symbol", func(t *testing.T) {
		_, err := m.Book("DOGEUSDT")
		var unknown *UnknownSymbolError
		if !errors.As(err, &unknown) {
			t.Errorf("expected UnknownSymbolError, got %v", err)
		}
	})

	t.Run("Returns Stored Book", func(t *testing.T) {
		if err := m.ReplaceBook(newBook("BTCUSDT", 9)); err != nil {
			t.Fatalf("ReplaceBook failed: %v", err)
		}
		book, err := m.Book("BTCUSDT")
		if err != nil {
			t.Fatalf("Book failed: %v", err)
		}
		if book.Sequence != 9 {
			t.Errorf("expected seq 9, got %d", book.Sequence)
		}
	})

	t.Run("No Book After Drop", func(t *testing.T) {
		m.DropBook("BTCUSDT")
		if _, err := m.Book("BTCUSDT"); !errors.Is(err, ErrNoBook) {
			t.Errorf("expected ErrNoBook after DropBook, got %v", err)
		}
	})
}
