package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"crypto_monitor/internal/domain"
	"crypto_monitor/internal/infra"
	"crypto_monitor/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// commandFunc executes one parsed command. args excludes the verb.
type commandFunc func(args []string)

// command pairs a handler with its help line.
type command struct {
	run  commandFunc
	help string
}

// CommandService runs the interactive command loop against the
// console collaborator. It only reads market state and invokes
// control operations; it never writes market data.
type CommandService struct {
	console  domain.Console
	market   *domain.MarketState
	ingestor domain.Ingestor
	writer   *storage.BatchWriter
	alerts   *domain.AlertBook
	view     domain.View // Optional
	shutdown func()      // Invoked by the quit command

	commands map[string]command

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// NewCommandService wires the command loop. shutdown is called once
// when the user quits; the coordinator owns what happens next.
func NewCommandService(
	console domain.Console,
	market *domain.MarketState,
	ingestor domain.Ingestor,
	writer *storage.BatchWriter,
	alerts *domain.AlertBook,
	view domain.View,
	shutdown func(),
) *CommandService {
	s := &CommandService{
		console:  console,
		market:   market,
		ingestor: ingestor,
		writer:   writer,
		alerts:   alerts,
		view:     view,
		shutdown: shutdown,
	}
	s.commands = map[string]command{
		"status":    {s.cmdStatus, "show connection state, per-symbol counts and batch progress"},
		"symbols":   {s.cmdSymbols, "list tracked symbols"},
		"book":      {s.cmdBook, "book <SYMBOL> - show best bid/ask and spread"},
		"trades":    {s.cmdTrades, "trades <SYMBOL> - show recent trades"},
		"alert":     {s.cmdAlert, "alert <SYMBOL> <PRICE> [keep] - register a price alert"},
		"alerts":    {s.cmdAlerts, "list active alerts"},
		"viz":       {s.cmdViz, "toggle the visualization view"},
		"reconnect": {s.cmdReconnect, "force a feed reconnect"},
		"flush":     {s.cmdFlush, "force a storage flush"},
		"help":      {s.cmdHelp, "show this help"},
		"quit":      {s.cmdQuit, "shut down the monitor"},
	}
	return s
}

// Start launches the read loop goroutine.
func (s *CommandService) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(ctx)
}

// Stop terminates the read loop. Idempotent. The blocking read is
// abandoned rather than interrupted; the loop exits on its next
// iteration or when the input source closes.
func (s *CommandService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *CommandService) readLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.console.ReadCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("Command read failed", slog.Any("error", err))
			}
			return
		}
		if line == "" {
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		s.dispatch(line)
	}
}

func (s *CommandService) dispatch(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		// Console implementations are not required to trim input.
		return
	}
	verb := strings.ToLower(fields[0])

	cmd, ok := s.commands[verb]
	if !ok {
		s.console.Report(fmt.Sprintf("Unknown command %q. Type 'help' for available commands.", verb), domain.SeverityError, false)
		return
	}
	cmd.run(fields[1:])
}

func (s *CommandService) cmdStatus(_ []string) {
	snap := infra.GlobalMetrics.Snapshot()
	s.console.Report(fmt.Sprintf("Connection: %s", s.ingestor.State()), domain.SeverityInfo, false)
	for _, sym := range s.market.Symbols() {
		s.console.Report(fmt.Sprintf("  %-10s trades=%d book_seq=%d",
			sym, s.market.TradeCount(sym), s.market.BookSequence(sym)), domain.SeverityInfo, false)
	}
	s.console.Report(fmt.Sprintf("Batch: pending=%d flushed=%d flush_failures=%d",
		s.writer.Pending(), s.writer.Flushed(), snap.FlushFailures), domain.SeverityInfo, false)
	s.console.Report(fmt.Sprintf("Feed: decode_errors=%d desyncs=%d reconnects=%d",
		snap.DecodeErrors, snap.Desyncs, snap.Reconnects), domain.SeverityInfo, false)
}

func (s *CommandService) cmdSymbols(_ []string) {
	s.console.Report(strings.Join(s.market.Symbols(), ", "), domain.SeverityInfo, false)
}

func (s *CommandService) cmdBook(args []string) {
	if len(args) < 1 {
		s.console.Report("Usage: book <SYMBOL>", domain.SeverityError, false)
		return
	}
	sym := strings.ToUpper(args[0])
	book, err := s.market.Book(sym)
	if err != nil {
		if errors.Is(err, domain.ErrNoBook) {
			s.console.Report(fmt.Sprintf("No book yet for %s", sym), domain.SeverityWarn, false)
			return
		}
		s.console.Report(err.Error(), domain.SeverityError, false)
		return
	}
	bid, ask := book.BestBid(), book.BestAsk()
	line := fmt.Sprintf("%s seq=%d", sym, book.Sequence)
	if bid != nil {
		line += fmt.Sprintf(" bid=%s(%s)", bid.Price, bid.Quantity)
	}
	if ask != nil {
		line += fmt.Sprintf(" ask=%s(%s)", ask.Price, ask.Quantity)
	}
	if spread := book.SpreadPct(); spread != nil {
		line += fmt.Sprintf(" spread=%s%%", spread.StringFixed(4))
	}
	s.console.Report(line, domain.SeverityInfo, false)
}

func (s *CommandService) cmdTrades(args []string) {
	if len(args) < 1 {
		s.console.Report("Usage: trades <SYMBOL>", domain.SeverityError, false)
		return
	}
	sym := strings.ToUpper(args[0])
	snap, err := s.market.Snapshot(sym)
	if err != nil {
		s.console.Report(err.Error(), domain.SeverityError, false)
		return
	}
	if len(snap.Trades) == 0 {
		s.console.Report(fmt.Sprintf("No trades yet for %s", sym), domain.SeverityWarn, false)
		return
	}
	// Newest last; show at most the 10 most recent.
	start := 0
	if len(snap.Trades) > 10 {
		start = len(snap.Trades) - 10
	}
	for _, t := range snap.Trades[start:] {
		s.console.Report(fmt.Sprintf("  %s %-4s %s @ %s",
			t.TradeTime.Format("15:04:05.000"), t.Side, t.Quantity, t.Price), domain.SeverityInfo, false)
	}
}

func (s *CommandService) cmdAlert(args []string) {
	if len(args) < 2 {
		s.console.Report("Usage: alert <SYMBOL> <PRICE> [keep]", domain.SeverityError, false)
		return
	}
	sym := strings.ToUpper(args[0])
	target, err := decimal.NewFromString(args[1])
	if err != nil {
		s.console.Report(fmt.Sprintf("Invalid price %q", args[1]), domain.SeverityError, false)
		return
	}

	snap, err := s.market.Snapshot(sym)
	if err != nil {
		s.console.Report(err.Error(), domain.SeverityError, false)
		return
	}
	current := decimal.Zero
	if n := len(snap.Trades); n > 0 {
		current = snap.Trades[n-1].Price
	}

	persistent := len(args) > 2 && strings.EqualFold(args[2], "keep")
	alert := domain.NewAlertConfig(sym, target, current, persistent)
	s.alerts.Add(alert)
	s.console.Report(fmt.Sprintf("Alert registered: %s %s %s", sym, alert.Direction, target), domain.SeveritySuccess, false)
}

func (s *CommandService) cmdAlerts(_ []string) {
	active := s.alerts.Active()
	if len(active) == 0 {
		s.console.Report("No active alerts", domain.SeverityInfo, false)
		return
	}
	for _, a := range active {
		kind := "once"
		if a.IsPersistent {
			kind = "keep"
		}
		s.console.Report(fmt.Sprintf("  %s %s %s (%s)", a.Symbol, a.Direction, a.TargetPrice, kind), domain.SeverityInfo, false)
	}
}

func (s *CommandService) cmdViz(_ []string) {
	if s.view == nil {
		s.console.Report("Visualization is not configured", domain.SeverityWarn, false)
		return
	}
	if s.view.Running() {
		s.view.Stop()
		s.console.Report("Visualization stopped", domain.SeveritySuccess, false)
		return
	}
	if s.view.Start() {
		s.console.Report("Visualization started", domain.SeveritySuccess, false)
	} else {
		s.console.Report("Failed to start visualization", domain.SeverityError, false)
	}
}

func (s *CommandService) cmdReconnect(_ []string) {
	s.console.Report("Reconnecting feed...", domain.SeverityInfo, false)
	s.ingestor.Reconnect()
}

func (s *CommandService) cmdFlush(_ []string) {
	if err := s.writer.Flush(); err != nil {
		s.console.Report(fmt.Sprintf("Flush failed: %v (records retained)", err), domain.SeverityError, true)
		return
	}
	s.console.Report(fmt.Sprintf("Flushed. Total written: %d", s.writer.Flushed()), domain.SeveritySuccess, false)
}

func (s *CommandService) cmdHelp(_ []string) {
	verbs := make([]string, 0, len(s.commands))
	for v := range s.commands {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	for _, v := range verbs {
		s.console.Report(fmt.Sprintf("  %-10s %s", v, s.commands[v].help), domain.SeverityInfo, false)
	}
}

func (s *CommandService) cmdQuit(_ []string) {
	s.console.Report("Shutting down...", domain.SeverityInfo, true)
	if s.shutdown != nil {
		go s.shutdown()
	}
}
