package domain

import (
	"sort"
	"sync"
)

// symbolEntry holds the per-symbol market data: the latest accepted
// book and a fixed-capacity FIFO ring of recent trades.
type symbolEntry struct {
	book   *OrderBookUpdate
	trades []*TradeRecord // Ring buffer, capacity fixed at construction
	head   int            // Index of the oldest trade
	count  int
	total  uint64 // All trades ever recorded for the symbol
}

// MarketState is the in-memory market cache shared between the ingest
// path (sole writer) and the command/visualization readers. The tracked
// symbol set is fixed at construction; all access goes through the
// synchronized accessors. It is a cache, not a store: nothing here is
// persisted.
type MarketState struct {
	mu      sync.RWMutex
	entries map[string]*symbolEntry
	cap     int
}

// MarketSnapshot is a read-only consistent view of one symbol: the
// latest book (nil until one arrives) and the recent trades oldest
// first. Slices are copies; callers may hold them freely.
type MarketSnapshot struct {
	Symbol string
	Book   *OrderBookUpdate
	Trades []*TradeRecord
}

// NewMarketState creates the state for a fixed symbol set with the
// given per-symbol trade history capacity.
func NewMarketState(symbols []string, historyCap int) *MarketState {
	if historyCap < 1 {
		historyCap = 1
	}
	entries := make(map[string]*symbolEntry, len(symbols))
	for _, s := range symbols {
		entries[s] = &symbolEntry{trades: make([]*TradeRecord, historyCap)}
	}
	return &MarketState{entries: entries, cap: historyCap}
}

// RecordTrade appends a trade to the symbol's history, evicting the
// oldest entry when at capacity. Untracked symbols are rejected with
// UnknownSymbolError.
func (m *MarketState) RecordTrade(t *TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[t.Symbol]
	if !ok {
		return &UnknownSymbolError{Symbol: t.Symbol}
	}

	if e.count < m.cap {
		e.trades[(e.head+e.count)%m.cap] = t
		e.count++
	} else {
		e.trades[e.head] = t
		e.head = (e.head + 1) % m.cap
	}
	e.total++
	return nil
}

// ReplaceBook installs a new book for the symbol. Updates with a
// sequence below the stored one are rejected with SequenceDesyncError
// and leave the stored book unchanged; equal sequences are accepted.
func (m *MarketState) ReplaceBook(b *OrderBookUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[b.Symbol]
	if !ok {
		return &UnknownSymbolError{Symbol: b.Symbol}
	}
	if e.book != nil && b.Sequence < e.book.Sequence {
		return &SequenceDesyncError{Symbol: b.Symbol, Expected: e.book.Sequence, Got: b.Sequence}
	}
	e.book = b
	return nil
}

// DropBook clears the stored book for a symbol so a fresh snapshot can
// reseed it after a desync. No-op for untracked symbols.
func (m *MarketState) DropBook(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[symbol]; ok {
		e.book = nil
	}
}

// Snapshot returns a consistent (book, trades) view for one symbol.
// Trades are copied oldest first.
func (m *MarketState) Snapshot(symbol string) (MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[symbol]
	if !ok {
		return MarketSnapshot{}, &UnknownSymbolError{Symbol: symbol}
	}

	snap := MarketSnapshot{Symbol: symbol, Book: e.book}
	snap.Trades = make([]*TradeRecord, 0, e.count)
	for i := 0; i < e.count; i++ {
		snap.Trades = append(snap.Trades, e.trades[(e.head+i)%m.cap])
	}
	return snap, nil
}

// Book returns the stored book for a tracked symbol. ErrNoBook is
// returned until the first depth update arrives (or after DropBook).
func (m *MarketState) Book(symbol string) (*OrderBookUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[symbol]
	if !ok {
		return nil, &UnknownSymbolError{Symbol: symbol}
	}
	if e.book == nil {
		return nil, ErrNoBook
	}
	return e.book, nil
}

// Symbols returns the tracked symbol set, sorted.
func (m *MarketState) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.entries))
	for s := range m.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// TradeCount returns the total trades recorded for a symbol since
// startup (not bounded by the history capacity).
func (m *MarketState) TradeCount(symbol string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[symbol]; ok {
		return e.total
	}
	return 0
}

// BookSequence returns the stored book sequence for a symbol, or 0
// when no book is held.
func (m *MarketState) BookSequence(symbol string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[symbol]; ok && e.book != nil {
		return e.book.Sequence
	}
	return 0
}

// HistoryCap returns the configured per-symbol trade history capacity.
func (m *MarketState) HistoryCap() int {
	return m.cap
}
