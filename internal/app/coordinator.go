package app

import (
	"fmt"
	"log/slog"
	"sync"

	"crypto_monitor/internal/domain"
	"crypto_monitor/internal/infra/storage"
)

// Stopper is the minimal control surface the coordinator needs from
// the command loop.
type Stopper interface {
	Stop()
}

// Coordinator owns the single shutdown path. Every trigger (interrupt
// signal, quit command, normal exit) funnels into Shutdown, which runs
// the teardown sequence exactly once.
type Coordinator struct {
	console  domain.Console
	commands Stopper
	ingestor domain.Ingestor
	view     domain.View // Optional
	writer   *storage.BatchWriter

	once sync.Once
	done chan struct{}
}

// NewCoordinator wires the teardown participants.
func NewCoordinator(console domain.Console, commands Stopper, ingestor domain.Ingestor, view domain.View, writer *storage.BatchWriter) *Coordinator {
	return &Coordinator{
		console:  console,
		commands: commands,
		ingestor: ingestor,
		view:     view,
		writer:   writer,
		done:     make(chan struct{}),
	}
}

// Done is closed once teardown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Shutdown executes the teardown sequence exactly once; concurrent and
// repeated calls return after the first run completes. Order matters:
// the producers of records (command loop, feed, view) stop first, so
// the final flush persists everything they produced. A failed step is
// reported and never aborts the remaining steps.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		defer close(c.done)

		c.report("Cleaning up application resources...", domain.SeverityInfo)

		// 1. Stop the command read loop.
		c.commands.Stop()

		// 2. Close the feed; no new records after this point.
		c.ingestor.Close()

		// 3. Stop the visualization collaborator.
		if c.view != nil && c.view.Running() {
			c.view.Stop()
		}

		// 4. Final flush, then release storage.
		c.report("Flushing remaining database records...", domain.SeverityInfo)
		if err := c.writer.Flush(); err != nil {
			c.report(fmt.Sprintf("Final flush failed, data-loss risk: %v", err), domain.SeverityError)
			slog.Error("Final flush failed", slog.Any("error", err))
		}
		if err := c.writer.Close(); err != nil {
			c.report(fmt.Sprintf("Storage close failed: %v", err), domain.SeverityError)
			slog.Error("Storage close failed", slog.Any("error", err))
		} else {
			c.report("Database closed successfully.", domain.SeveritySuccess)
		}

		c.report("Application shutdown complete.", domain.SeverityInfo)
	})

	<-c.done
}

func (c *Coordinator) report(msg string, sev domain.Severity) {
	if c.console != nil {
		c.console.Report(msg, sev, true)
	}
}
