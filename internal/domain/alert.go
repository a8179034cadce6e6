package domain

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// AlertConfig represents a price alert configuration
type AlertConfig struct {
	Symbol       string          `json:"symbol"`
	TargetPrice  decimal.Decimal `json:"target"`
	Direction    string          `json:"direction"` // "UP" or "DOWN"
	IsPersistent bool            `json:"is_persistent"`
	active       bool
}

// NewAlertConfig creates a new alert configuration.
// Direction is automatically determined based on currentPrice:
// - UP: targetPrice > currentPrice (waiting for price to rise)
// - DOWN: targetPrice < currentPrice (waiting for price to fall)
func NewAlertConfig(symbol string, targetPrice, currentPrice decimal.Decimal, isPersistent bool) *AlertConfig {
	direction := "UP"
	if targetPrice.LessThan(currentPrice) {
		direction = "DOWN"
	}
	return &AlertConfig{
		Symbol:       symbol,
		TargetPrice:  targetPrice,
		Direction:    direction,
		IsPersistent: isPersistent,
		active:       true,
	}
}

// IsActive returns whether the alert is active
func (a *AlertConfig) IsActive() bool {
	return a.active
}

// SetActive sets the alert's active state
func (a *AlertConfig) SetActive(active bool) {
	a.active = active
}

// CheckCondition checks if alert condition is met.
// Returns true when:
// - Direction is UP and currentPrice >= targetPrice
// - Direction is DOWN and currentPrice <= targetPrice
func (a *AlertConfig) CheckCondition(currentPrice decimal.Decimal) bool {
	if !a.active {
		return false
	}
	if a.Direction == "UP" {
		return currentPrice.GreaterThanOrEqual(a.TargetPrice)
	}
	return currentPrice.LessThanOrEqual(a.TargetPrice)
}

// AlertBook holds active alerts. Registered from the command loop,
// checked from the ingest loop, so all access is synchronized.
type AlertBook struct {
	mu     sync.Mutex
	alerts []*AlertConfig
}

// NewAlertBook creates an empty alert book.
func NewAlertBook() *AlertBook {
	return &AlertBook{}
}

// Add registers an alert.
func (b *AlertBook) Add(a *AlertConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, a)
}

// CheckPrice evaluates active alerts for a symbol against a trade
// price. Tripped one-shot alerts are deactivated; persistent alerts
// stay armed. Returns the alerts that fired.
func (b *AlertBook) CheckPrice(symbol string, price decimal.Decimal) []*AlertConfig {
	b.mu.Lock()
	defer b.mu.Unlock()

	var fired []*AlertConfig
	for _, a := range b.alerts {
		if a.Symbol != symbol {
			continue
		}
		if a.CheckCondition(price) {
			fired = append(fired, a)
			if !a.IsPersistent {
				a.SetActive(false)
			}
		}
	}
	return fired
}

// Active returns copies of the currently armed alerts, sorted by symbol.
func (b *AlertBook) Active() []AlertConfig {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]AlertConfig, 0, len(b.alerts))
	for _, a := range b.alerts {
		if a.active {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
