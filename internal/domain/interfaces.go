package domain

import "context"

// Severity classifies console messages for rendering.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarn
	SeverityError
)

// BatchStorage is the durable write target for the batch writer.
// Implementations own the physical engine; the core only requires
// an all-or-nothing batch write.
type BatchStorage interface {
	WriteBatch(ctx context.Context, records []Record) error
	Close() error
}

// Console is the command I/O collaborator: a blocking line reader plus
// a severity-tagged reporter. Persistent messages must survive screen
// refreshes (startup banner, shutdown progress); transient ones may be
// overwritten.
type Console interface {
	ReadCommand() (string, error)
	Report(msg string, sev Severity, persistent bool)
}

// Ingestor is the control surface the command service holds on the
// feed connection. It never exposes the underlying session.
type Ingestor interface {
	Connect(ctx context.Context) error
	Reconnect()
	Close()
	State() ConnectionState
}

// View is the optional visualization collaborator. Implementations
// only read market snapshots, never write.
type View interface {
	Start() bool
	Stop()
	Running() bool
}

// ConnectionState describes the feed session lifecycle. Written only
// by the ingestor; safe for concurrent reads via Ingestor.State().
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}
