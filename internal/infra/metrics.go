package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	tradesIngested atomic.Uint64
	booksIngested  atomic.Uint64
	decodeErrors   atomic.Uint64
	desyncs        atomic.Uint64
	unknownSymbols atomic.Uint64
	reconnects     atomic.Uint64
	flushes        atomic.Uint64
	flushFailures  atomic.Uint64

	// Gauges
	connected atomic.Int32 // 1 = connected, 0 = not
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTrade counts a decoded trade message.
func (m *Metrics) RecordTrade() {
	m.tradesIngested.Add(1)
}

// RecordBook counts a decoded book update.
func (m *Metrics) RecordBook() {
	m.booksIngested.Add(1)
}

// RecordDecodeError counts a skipped malformed message.
func (m *Metrics) RecordDecodeError() {
	m.decodeErrors.Add(1)
}

// RecordDesync counts a book sequence regression.
func (m *Metrics) RecordDesync() {
	m.desyncs.Add(1)
}

// RecordUnknownSymbol counts a dropped untracked-symbol message.
func (m *Metrics) RecordUnknownSymbol() {
	m.unknownSymbols.Add(1)
}

// RecordReconnect counts a feed reconnect attempt.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// RecordFlush counts a successful batch flush.
func (m *Metrics) RecordFlush() {
	m.flushes.Add(1)
}

// RecordFlushFailure counts an exhausted flush retry cycle.
func (m *Metrics) RecordFlushFailure() {
	m.flushFailures.Add(1)
}

// SetConnected sets the feed connection gauge.
func (m *Metrics) SetConnected(up bool) {
	if up {
		m.connected.Store(1)
	} else {
		m.connected.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TradesIngested uint64
	BooksIngested  uint64
	DecodeErrors   uint64
	Desyncs        uint64
	UnknownSymbols uint64
	Reconnects     uint64
	Flushes        uint64
	FlushFailures  uint64
	Connected      bool
	Timestamp      time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TradesIngested: m.tradesIngested.Load(),
		BooksIngested:  m.booksIngested.Load(),
		DecodeErrors:   m.decodeErrors.Load(),
		Desyncs:        m.desyncs.Load(),
		UnknownSymbols: m.unknownSymbols.Load(),
		Reconnects:     m.reconnects.Load(),
		Flushes:        m.flushes.Load(),
		FlushFailures:  m.flushFailures.Load(),
		Connected:      m.connected.Load() == 1,
		Timestamp:      time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.tradesIngested.Store(0)
	m.booksIngested.Store(0)
	m.decodeErrors.Store(0)
	m.desyncs.Store(0)
	m.unknownSymbols.Store(0)
	m.reconnects.Store(0)
	m.flushes.Store(0)
	m.flushFailures.Store(0)
	m.connected.Store(0)
}
