package viz

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"crypto_monitor/internal/domain"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
)

const (
	renderWidth  = 480
	renderHeight = 240
	outputWidth  = 960 // Upscaled on save for readability
)

var (
	bidColor = color.NRGBA{R: 46, G: 160, B: 67, A: 255}
	askColor = color.NRGBA{R: 218, G: 54, B: 51, A: 255}
	bgColor  = color.NRGBA{R: 13, G: 17, B: 23, A: 255}
)

// DepthView periodically renders each tracked symbol's order book as
// a depth-profile PNG. It is a read-only consumer of market snapshots
// and implements the domain.View contract.
type DepthView struct {
	market    *domain.MarketState
	outputDir string
	interval  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDepthView creates a view writing PNGs into outputDir.
func NewDepthView(market *domain.MarketState, outputDir string, interval time.Duration) *DepthView {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &DepthView{
		market:    market,
		outputDir: outputDir,
		interval:  interval,
	}
}

// Start launches the refresh loop. Returns false when the output
// directory cannot be created.
func (v *DepthView) Start() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		return true
	}

	if err := os.MkdirAll(v.outputDir, 0755); err != nil {
		slog.Error("Failed to create viz output directory", slog.Any("error", err))
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.running = true

	v.wg.Add(1)
	go v.refreshLoop(ctx)
	return true
}

// Stop terminates the refresh loop. Idempotent.
func (v *DepthView) Stop() {
	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return
	}
	v.running = false
	cancel := v.cancel
	v.mu.Unlock()

	cancel()
	v.wg.Wait()
}

// Running reports whether the refresh loop is active.
func (v *DepthView) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

func (v *DepthView) refreshLoop(ctx context.Context) {
	defer v.wg.Done()

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.renderAll()
		}
	}
}

func (v *DepthView) renderAll() {
	for _, sym := range v.market.Symbols() {
		snap, err := v.market.Snapshot(sym)
		if err != nil || snap.Book == nil {
			continue
		}
		if err := v.renderSymbol(snap); err != nil {
			slog.Warn("Depth render failed", slog.String("symbol", sym), slog.Any("error", err))
		}
	}
}

// renderSymbol draws cumulative depth bars (bids left, asks right)
// and saves the upscaled PNG.
func (v *DepthView) renderSymbol(snap domain.MarketSnapshot) error {
	book := snap.Book
	img := image.NewNRGBA(image.Rect(0, 0, renderWidth, renderHeight))
	fill(img, bgColor)

	maxDepth := cumulativeMax(book.Bids, book.Asks)
	if maxDepth.IsZero() {
		return nil
	}

	half := renderWidth / 2
	drawSide(img, book.Bids, maxDepth, half-1, -1, bidColor)
	drawSide(img, book.Asks, maxDepth, half, 1, askColor)

	out := imaging.Resize(img, outputWidth, 0, imaging.Lanczos)
	name := strings.ToLower(snap.Symbol) + "_depth.png"
	return imaging.Save(out, filepath.Join(v.outputDir, name))
}

func fill(img *image.NRGBA, c color.NRGBA) {
	for y := 0; y < img.Rect.Dy(); y++ {
		for x := 0; x < img.Rect.Dx(); x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// drawSide renders one book side outward from the center column.
// step is -1 for bids (leftward) and +1 for asks (rightward).
func drawSide(img *image.NRGBA, levels []domain.BookLevel, maxDepth decimal.Decimal, start, step int, c color.NRGBA) {
	if len(levels) == 0 {
		return
	}
	half := renderWidth / 2
	colsPerLevel := half / len(levels)
	if colsPerLevel < 1 {
		colsPerLevel = 1
	}

	cum := decimal.Zero
	x := start
	for _, lvl := range levels {
		cum = cum.Add(lvl.Quantity)
		ratio, _ := cum.Div(maxDepth).Float64()
		barHeight := int(ratio * float64(renderHeight))
		if barHeight > renderHeight {
			barHeight = renderHeight
		}
		for i := 0; i < colsPerLevel; i++ {
			if x < 0 || x >= renderWidth {
				return
			}
			for y := renderHeight - barHeight; y < renderHeight; y++ {
				img.SetNRGBA(x, y, c)
			}
			x += step
		}
	}
}

// cumulativeMax returns the larger of the two sides' total depth.
func cumulativeMax(bids, asks []domain.BookLevel) decimal.Decimal {
	sum := func(levels []domain.BookLevel) decimal.Decimal {
		total := decimal.Zero
		for _, lvl := range levels {
			total = total.Add(lvl.Quantity)
		}
		return total
	}
	b, a := sum(bids), sum(asks)
	if b.GreaterThan(a) {
		return b
	}
	return a
}

// OutputPath returns the PNG path for a symbol (status reporting).
func (v *DepthView) OutputPath(symbol string) string {
	return filepath.Join(v.outputDir, fmt.Sprintf("%s_depth.png", strings.ToLower(symbol)))
}
