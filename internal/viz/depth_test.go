package viz

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"crypto_monitor/internal/domain"

	"github.com/shopspring/decimal"
)

func seededMarket(t *testing.T) *domain.MarketState {
	t.Helper()
	m := domain.NewMarketState([]string{"BTCUSDT"}, 10)
	err := m.ReplaceBook(&domain.OrderBookUpdate{
		Symbol:   "BTCUSDT",
		Sequence: 1,
		Bids: []domain.BookLevel{
			{Price: decimal.NewFromInt(49999), Quantity: decimal.NewFromInt(3)},
			{Price: decimal.NewFromInt(49998), Quantity: decimal.NewFromInt(5)},
		},
		Asks: []domain.BookLevel{
			{Price: decimal.NewFromInt(50001), Quantity: decimal.NewFromInt(2)},
			{Price: decimal.NewFromInt(50002), Quantity: decimal.NewFromInt(4)},
		},
	})
	if err != nil {
		t.Fatalf("ReplaceBook failed: %v", err)
	}
	return m
}

func TestDepthView_RenderWritesPNG(t *testing.T) {
	dir := t.TempDir()
	v := NewDepthView(seededMarket(t), dir, time.Second)

	// Render directly, without the refresh loop.
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	v.renderAll()

	path := filepath.Join(dir, "btcusdt_depth.png")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected PNG at %s: %v", path, err)
	}
	if info.Size() == 0 {
		t.Error("rendered PNG is empty")
	}
}

func TestDepthView_SkipsSymbolsWithoutBook(t *testing.T) {
	dir := t.TempDir()
	m := domain.NewMarketState([]string{"ETHUSDT"}, 10)
	v := NewDepthView(m, dir, time.Second)

	v.renderAll()

	if _, err := os.Stat(filepath.Join(dir, "ethusdt_depth.png")); !os.IsNotExist(err) {
		t.Error("no PNG expected for a symbol without a book")
	}
}

func TestDepthView_StartStop(t *testing.T) {
	dir := t.TempDir()
	v := NewDepthView(seededMarket(t), dir, 10*time.Millisecond)

	if !v.Start() {
		t.Fatal("Start failed")
	}
	if !v.Running() {
		t.Error("expected running after Start")
	}
	if !v.Start() {
		t.Error("second Start should be a no-op success")
	}

	v.Stop()
	if v.Running() {
		t.Error("expected stopped after Stop")
	}
	v.Stop() // Idempotent
}
