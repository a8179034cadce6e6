package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"crypto_monitor/internal/domain"
	"crypto_monitor/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	maxRetries       = 10
	readTimeout      = 60 * time.Second
	handshakeTimeout = 10 * time.Second
)

// RecordSink receives decoded records for durable persistence.
type RecordSink interface {
	Enqueue(domain.Record) error
}

// Worker owns the feed WebSocket session: it decodes inbound trade and
// depth messages, updates the shared market state and forwards every
// accepted record to the sink. Connection loss is never fatal; the
// loop redials with exponential backoff until Close is requested.
type Worker struct {
	symbols []string
	wsURL   string
	market  *domain.MarketState
	sink    RecordSink
	console domain.Console    // Optional
	alerts  *domain.AlertBook // Optional
	rest    *SnapshotClient   // Optional; nil degrades resync to best-effort

	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex
	state   atomic.Int32 // domain.ConnectionState
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	resyncMu sync.Mutex
	resyncs  map[string]bool // In-flight snapshot fetches per symbol

	kick chan struct{} // Manual reconnect wakes a sleeping backoff

	closeOnce sync.Once
}

// NewWorker creates a feed worker for the configured symbols.
func NewWorker(wsURL string, symbols []string, market *domain.MarketState, sink RecordSink) *Worker {
	return &Worker{
		symbols: symbols,
		wsURL:   wsURL,
		market:  market,
		sink:    sink,
		resyncs: make(map[string]bool),
		kick:    make(chan struct{}, 1),
	}
}

// WithConsole attaches the command console for user-facing reports.
func (w *Worker) WithConsole(c domain.Console) *Worker {
	w.console = c
	return w
}

// WithAlerts attaches the alert book checked on every trade.
func (w *Worker) WithAlerts(b *domain.AlertBook) *Worker {
	w.alerts = b
	return w
}

// WithSnapshots attaches the REST snapshot client used for book resync.
func (w *Worker) WithSnapshots(c *SnapshotClient) *Worker {
	w.rest = c
	return w
}

// State returns the current connection state.
func (w *Worker) State() domain.ConnectionState {
	return domain.ConnectionState(w.state.Load())
}

func (w *Worker) setState(s domain.ConnectionState) {
	w.state.Store(int32(s))
	infra.GlobalMetrics.SetConnected(s == domain.StateConnected)
}

// Connect starts the connection loop.
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("Feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			infra.GlobalMetrics.RecordReconnect()
			w.setState(domain.StateDisconnected)
			kicked, ok := w.sleepBackoff(ctx, delay)
			if !ok {
				return
			}
			if kicked {
				retryCount = 0
			}
		} else {
			retryCount = 0
			// A kick raised while connecting is satisfied by this session.
			select {
			case <-w.kick:
			default:
			}
			w.readLoop(ctx)
			w.setState(domain.StateDisconnected)
		}
	}
}

// sleepBackoff waits out the reconnect delay. kicked reports an early
// wake from a manual reconnect; ok is false when ctx ended.
func (w *Worker) sleepBackoff(ctx context.Context, delay time.Duration) (kicked, ok bool) {
	select {
	case <-ctx.Done():
		return false, false
	case <-w.kick:
		return true, true
	case <-time.After(delay):
		return false, true
	}
}

func (w *Worker) connect(ctx context.Context) error {
	w.setState(domain.StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return domain.NewNetworkError("dial", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return domain.NewNetworkError("subscribe", err)
	}

	w.setState(domain.StateConnected)
	slog.Info("Feed connected", slog.Int("symbols", len(w.symbols)))
	return nil
}

func (w *Worker) subscribe() error {
	params := make([]string, 0, len(w.symbols)*2)
	for _, s := range w.symbols {
		lower := strings.ToLower(s)
		params = append(params, lower+"@trade", lower+"@depth20@100ms")
	}

	req := subscribeRequest{
		Method: "SUBSCRIBE",
		Params: params,
		ID:     int(time.Now().Unix()),
	}
	b, _ := json.Marshal(req)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *Worker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg, time.Now())
	}
}

// handleMessage decodes one inbound frame and routes it through the
// market state and the sink. Decode failures skip the message only;
// they never terminate the session.
func (w *Worker) handleMessage(msg []byte, now time.Time) {
	var frame combinedFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Debug("Undecodable frame skipped", slog.Any("error", err))
		return
	}
	if frame.Stream == "" {
		// Subscribe ack or control frame.
		return
	}

	switch {
	case strings.Contains(frame.Stream, "@trade"):
		w.handleTrade(frame.Data, now)
	case strings.Contains(frame.Stream, "@depth"):
		w.handleDepth(streamSymbol(frame.Stream), frame.Data, now)
	}
}

func (w *Worker) handleTrade(data []byte, now time.Time) {
	trade, err := decodeTrade(data, now)
	if err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Warn("Trade decode failed", slog.Any("error", err))
		return
	}

	if err := w.market.RecordTrade(trade); err != nil {
		var unknown *domain.UnknownSymbolError
		if errors.As(err, &unknown) {
			infra.GlobalMetrics.RecordUnknownSymbol()
			slog.Debug("Untracked symbol dropped", slog.String("symbol", trade.Symbol))
		}
		return
	}
	infra.GlobalMetrics.RecordTrade()

	if err := w.sink.Enqueue(trade); err != nil {
		slog.Warn("Trade enqueue failed", slog.Any("error", err))
	}

	w.checkAlerts(trade)
}

func (w *Worker) handleDepth(symbol string, data []byte, now time.Time) {
	if symbol == "" {
		infra.GlobalMetrics.RecordDecodeError()
		return
	}
	book, err := decodeDepth(symbol, data, now)
	if err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Warn("Depth decode failed", slog.Any("error", err))
		return
	}

	if err := w.market.ReplaceBook(book); err != nil {
		var desync *domain.SequenceDesyncError
		if errors.As(err, &desync) {
			infra.GlobalMetrics.RecordDesync()
			w.report(fmt.Sprintf("Book desync on %s (seq %d < %d), resynchronizing",
				symbol, desync.Got, desync.Expected), domain.SeverityWarn)
			w.market.DropBook(symbol)
			w.resyncBook(symbol)
			return
		}
		var unknown *domain.UnknownSymbolError
		if errors.As(err, &unknown) {
			infra.GlobalMetrics.RecordUnknownSymbol()
		}
		return
	}
	infra.GlobalMetrics.RecordBook()

	if err := w.sink.Enqueue(book); err != nil {
		slog.Warn("Book enqueue failed", slog.Any("error", err))
	}
}

// resyncBook reseeds a symbol's book from a REST snapshot. Without a
// snapshot client the feed keeps going best-effort and the next depth
// frame reseeds the dropped book.
func (w *Worker) resyncBook(symbol string) {
	if w.rest == nil {
		slog.Warn("No snapshot source, continuing best-effort", slog.String("symbol", symbol))
		return
	}

	w.resyncMu.Lock()
	if w.resyncs[symbol] {
		w.resyncMu.Unlock()
		return
	}
	w.resyncs[symbol] = true
	w.resyncMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.resyncMu.Lock()
			delete(w.resyncs, symbol)
			w.resyncMu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		book, err := w.rest.FetchBook(ctx, symbol)
		if err != nil {
			slog.Warn("Book snapshot fetch failed, continuing best-effort",
				slog.String("symbol", symbol), slog.Any("error", err))
			return
		}
		if err := w.market.ReplaceBook(book); err != nil {
			slog.Warn("Snapshot rejected", slog.String("symbol", symbol), slog.Any("error", err))
			return
		}
		if err := w.sink.Enqueue(book); err != nil {
			slog.Warn("Snapshot enqueue failed", slog.Any("error", err))
		}
		w.report(fmt.Sprintf("Book resynchronized for %s at seq %d", symbol, book.Sequence), domain.SeveritySuccess)
	}()
}

func (w *Worker) checkAlerts(trade *domain.TradeRecord) {
	if w.alerts == nil {
		return
	}
	for _, a := range w.alerts.CheckPrice(trade.Symbol, trade.Price) {
		w.report(fmt.Sprintf("🔔 ALERT %s %s %s (last %s)",
			a.Symbol, a.Direction, a.TargetPrice.String(), trade.Price.String()),
			domain.SeverityWarn)
	}
}

func (w *Worker) report(msg string, sev domain.Severity) {
	if w.console != nil {
		w.console.Report(msg, sev, sev >= domain.SeverityWarn)
	}
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

// Reconnect forces the current session closed and wakes a connection
// loop sleeping in its backoff, so the redial starts immediately.
// Callable in any state.
func (w *Worker) Reconnect() {
	slog.Info("Manual reconnect requested")
	infra.GlobalMetrics.RecordReconnect()
	w.closeConnection()
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Close terminates the session and the connection loop. Idempotent.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		w.setState(domain.StateClosing)
		if w.cancel != nil {
			w.cancel()
		}
		w.closeConnection()
		w.wg.Wait()
		w.setState(domain.StateDisconnected)
	})
}
