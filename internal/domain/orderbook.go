package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookLevel is a single price level on one side of the book.
type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBookUpdate represents an order-book state for a symbol at a
// feed-assigned sequence number. Sequence numbers are monotonic per
// symbol; a regression signals a desynchronized book.
type OrderBookUpdate struct {
	Symbol     string      `json:"symbol"`
	Sequence   uint64      `json:"sequence"`
	Bids       []BookLevel `json:"bids"` // Best (highest) first
	Asks       []BookLevel `json:"asks"` // Best (lowest) first
	EventTime  time.Time   `json:"event_time"`
	ReceivedAt time.Time   `json:"received_at"`
}

func (b *OrderBookUpdate) Kind() RecordKind     { return KindBook }
func (b *OrderBookUpdate) RecordSymbol() string { return b.Symbol }

// BestBid returns the highest bid level, or nil if the bid side is empty.
func (b *OrderBookUpdate) BestBid() *BookLevel {
	if len(b.Bids) == 0 {
		return nil
	}
	return &b.Bids[0]
}

// BestAsk returns the lowest ask level, or nil if the ask side is empty.
func (b *OrderBookUpdate) BestAsk() *BookLevel {
	if len(b.Asks) == 0 {
		return nil
	}
	return &b.Asks[0]
}

// Mid returns the bid/ask midpoint, or nil when either side is empty.
func (b *OrderBookUpdate) Mid() *decimal.Decimal {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return nil
	}
	mid := bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
	return &mid
}

// SpreadPct returns 100 * (ask - bid) / mid, or nil when either side
// is empty or the midpoint is zero.
func (b *OrderBookUpdate) SpreadPct() *decimal.Decimal {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return nil
	}
	mid := bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return nil
	}
	spread := ask.Price.Sub(bid.Price).Div(mid).Mul(decimal.NewFromInt(100))
	return &spread
}

// TotalDepth sums quantities across both sides.
func (b *OrderBookUpdate) TotalDepth() decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range b.Bids {
		total = total.Add(lvl.Quantity)
	}
	for _, lvl := range b.Asks {
		total = total.Add(lvl.Quantity)
	}
	return total
}
