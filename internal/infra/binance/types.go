package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"crypto_monitor/internal/domain"

	"github.com/shopspring/decimal"
)

// combinedFrame wraps every message on the combined-stream endpoint.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tradeMessage is the <symbol>@trade stream payload.
type tradeMessage struct {
	EventType string `json:"e"` // "trade"
	EventTime int64  `json:"E"` // Milliseconds
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
	IsMaker   bool   `json:"m"` // Buyer is market maker -> taker sold
}

// depthMessage is the <symbol>@depth<N> partial book payload. The
// symbol is not in the payload; it comes from the stream name.
type depthMessage struct {
	LastUpdateID uint64      `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"` // [price, quantity]
	Asks         [][2]string `json:"asks"`
}

// subscribeRequest is the JSON-RPC subscribe frame.
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// streamSymbol extracts the uppercase symbol from a combined stream
// name such as "btcusdt@depth20@100ms".
func streamSymbol(stream string) string {
	if i := strings.IndexByte(stream, '@'); i > 0 {
		return strings.ToUpper(stream[:i])
	}
	return ""
}

// decodeTrade converts a trade payload into a domain record.
func decodeTrade(data []byte, now time.Time) (*domain.TradeRecord, error) {
	var msg tradeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &domain.DecodeError{Stream: "trade", Err: err}
	}
	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return nil, &domain.DecodeError{Stream: "trade", Err: fmt.Errorf("price %q: %w", msg.Price, err)}
	}
	qty, err := decimal.NewFromString(msg.Quantity)
	if err != nil {
		return nil, &domain.DecodeError{Stream: "trade", Err: fmt.Errorf("quantity %q: %w", msg.Quantity, err)}
	}

	side := domain.SideBuy
	if msg.IsMaker {
		side = domain.SideSell
	}
	return &domain.TradeRecord{
		Symbol:     strings.ToUpper(msg.Symbol),
		Price:      price,
		Quantity:   qty,
		Side:       side,
		TradeTime:  time.UnixMilli(msg.TradeTime),
		ReceivedAt: now,
	}, nil
}

// decodeDepth converts a depth payload into a domain book update.
func decodeDepth(symbol string, data []byte, now time.Time) (*domain.OrderBookUpdate, error) {
	var msg depthMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &domain.DecodeError{Stream: "depth", Err: err}
	}
	bids, err := decodeLevels(msg.Bids)
	if err != nil {
		return nil, &domain.DecodeError{Stream: "depth", Err: err}
	}
	asks, err := decodeLevels(msg.Asks)
	if err != nil {
		return nil, &domain.DecodeError{Stream: "depth", Err: err}
	}
	return &domain.OrderBookUpdate{
		Symbol:     symbol,
		Sequence:   msg.LastUpdateID,
		Bids:       bids,
		Asks:       asks,
		EventTime:  now,
		ReceivedAt: now,
	}, nil
}

func decodeLevels(raw [][2]string) ([]domain.BookLevel, error) {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("level price %q: %w", pair[0], err)
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("level quantity %q: %w", pair[1], err)
		}
		levels = append(levels, domain.BookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}
