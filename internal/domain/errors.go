package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "read", "subscribe")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// DecodeError represents a malformed inbound feed message. The message
// is skipped; ingestion continues. Never retriable.
type DecodeError struct {
	Stream string // Stream name or message type, when known
	Err    error
}

func (e *DecodeError) Error() string {
	return "decode [" + e.Stream + "]: " + e.Err.Error()
}

func (e *DecodeError) IsRetriable() bool {
	return false
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// SequenceDesyncError signals an order-book sequence regression or gap
// for a symbol. The book must be resynchronized from a full snapshot.
type SequenceDesyncError struct {
	Symbol   string
	Expected uint64 // Lowest acceptable sequence
	Got      uint64
}

func (e *SequenceDesyncError) Error() string {
	return fmt.Sprintf("book desync [%s]: sequence %d behind %d", e.Symbol, e.Got, e.Expected)
}

func (e *SequenceDesyncError) IsRetriable() bool {
	return false
}

// StorageWriteError represents a failed durable write after bounded
// retries. The pending batch is retained, so a later flush can retry.
type StorageWriteError struct {
	Attempts int
	Err      error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage write failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *StorageWriteError) IsRetriable() bool {
	return true
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

// UnknownSymbolError is returned when the feed delivers data for a
// symbol outside the configured tracked set.
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	return "unknown symbol: " + e.Symbol
}

func (e *UnknownSymbolError) IsRetriable() bool {
	return false
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("already closed")

	// ErrNoBook is returned when a book is requested before any depth update arrived.
	ErrNoBook = errors.New("no book yet")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
