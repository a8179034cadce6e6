package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// RecordKind discriminates persisted record types.
type RecordKind string

const (
	KindTrade RecordKind = "TRADE"
	KindBook  RecordKind = "BOOK"
)

// Record is what the batch writer carries: either a trade or an
// order-book update, ready for durable storage.
type Record interface {
	Kind() RecordKind
	RecordSymbol() string
}

// TradeRecord represents a single executed trade from the feed.
// Immutable once constructed.
type TradeRecord struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Side       Side            `json:"side"`
	TradeTime  time.Time       `json:"trade_time"`  // Exchange timestamp
	ReceivedAt time.Time       `json:"received_at"` // Local receipt timestamp
}

func (t *TradeRecord) Kind() RecordKind     { return KindTrade }
func (t *TradeRecord) RecordSymbol() string { return t.Symbol }

// Notional returns price * quantity.
func (t *TradeRecord) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}
