package infra

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"crypto_monitor/internal/domain"
)

// StdConsole implements the domain.Console collaborator over an input
// reader and an output writer (stdin/stdout in production, buffers in
// tests). Persistent messages are prefixed so they stand out in the
// scrollback; transient ones render plainly.
type StdConsole struct {
	reader *bufio.Reader
	out    io.Writer
	mu     sync.Mutex // Serializes Report against the ingest goroutine
}

// NewStdConsole creates a console on stdin/stdout.
func NewStdConsole() *StdConsole {
	return NewConsole(os.Stdin, os.Stdout)
}

// NewConsole creates a console on explicit streams.
func NewConsole(in io.Reader, out io.Writer) *StdConsole {
	return &StdConsole{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// ReadCommand blocks for one trimmed input line. io.EOF is returned
// when the input source closes.
func (c *StdConsole) ReadCommand() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Report writes a severity-colored message.
func (c *StdConsole) Report(msg string, sev domain.Severity, persistent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	color := ColorReset
	tag := "INFO"
	switch sev {
	case domain.SeveritySuccess:
		color, tag = ColorGreen, "OK"
	case domain.SeverityWarn:
		color, tag = ColorYellow, "WARN"
	case domain.SeverityError:
		color, tag = ColorRed, "ERROR"
	}

	if persistent {
		fmt.Fprintf(c.out, "%s[%s]%s %s\n", color, tag, ColorReset, msg)
		return
	}
	fmt.Fprintf(c.out, "%s%s%s\n", color, msg, ColorReset)
}
