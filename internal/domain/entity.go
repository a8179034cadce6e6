package domain

import (
	"encoding/json"
	"time"
)

// TradeRow is the persistence shape of a TradeRecord.
type TradeRow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Symbol     string    `gorm:"index" json:"symbol"`
	Price      string    `json:"price"`
	Quantity   string    `json:"quantity"`
	Side       string    `json:"side"`
	TradeTime  time.Time `json:"trade_time"`
	ReceivedAt time.Time `json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// BookUpdateRow is the persistence shape of an OrderBookUpdate.
// Levels are stored JSON-encoded; the monitor replays books whole,
// never queries inside a side.
type BookUpdateRow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Symbol     string    `gorm:"index" json:"symbol"`
	Sequence   uint64    `gorm:"index" json:"sequence"`
	Bids       string    `json:"bids"`
	Asks       string    `json:"asks"`
	EventTime  time.Time `json:"event_time"`
	ReceivedAt time.Time `json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTradeRow converts a trade record for storage.
func NewTradeRow(t *TradeRecord) TradeRow {
	return TradeRow{
		Symbol:     t.Symbol,
		Price:      t.Price.String(),
		Quantity:   t.Quantity.String(),
		Side:       string(t.Side),
		TradeTime:  t.TradeTime,
		ReceivedAt: t.ReceivedAt,
	}
}

// NewBookUpdateRow converts a book update for storage.
func NewBookUpdateRow(b *OrderBookUpdate) BookUpdateRow {
	bids, _ := json.Marshal(b.Bids)
	asks, _ := json.Marshal(b.Asks)
	return BookUpdateRow{
		Symbol:     b.Symbol,
		Sequence:   b.Sequence,
		Bids:       string(bids),
		Asks:       string(asks),
		EventTime:  b.EventTime,
		ReceivedAt: b.ReceivedAt,
	}
}
