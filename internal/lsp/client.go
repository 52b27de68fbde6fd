// Package lsp defines the capability surface of the SourceKit-LSP backend
// consumed by the analysis engine, plus the subprocess client that speaks
// the protocol. The engine depends only on the interfaces so it can be
// exercised against fakes.
package lsp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client is a live session with the analysis backend for one project root.
// A Client is expensive to create (process startup plus indexing, on the
// order of seconds) and cheap to reuse. Clients are not safe for
// concurrent use; the engine confines each one to a single worker.
type Client interface {
	// IsAlive reports whether the backend process behind this client is
	// still usable. A dead client must be Closed and replaced.
	IsAlive() bool

	// AnalyzeSymbols returns the hierarchical symbol tree of a Swift file.
	AnalyzeSymbols(ctx context.Context, path string) ([]Symbol, error)

	// FindReferences returns every reference to symbolName found in the
	// given file.
	FindReferences(ctx context.Context, path string, symbolName string) ([]Reference, error)

	// Close terminates the backend session. Safe to call more than once.
	Close() error
}

// Factory produces Clients. Implementations wrap the actual backend
// launcher; tests substitute counting fakes.
type Factory interface {
	NewClient(ctx context.Context, projectRoot string, timeout time.Duration) (Client, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, projectRoot string, timeout time.Duration) (Client, error)

func (f FactoryFunc) NewClient(ctx context.Context, projectRoot string, timeout time.Duration) (Client, error) {
	return f(ctx, projectRoot, timeout)
}

// Backend failure sentinels. The engine classifies operation errors with
// errors.Is against these.
var (
	// ErrTimeout indicates the backend did not answer within the
	// operation's deadline.
	ErrTimeout = errors.New("lsp: operation timed out")

	// ErrConnection indicates the transport to the backend process failed.
	ErrConnection = errors.New("lsp: connection failed")
)

// OperationError is a semantic failure reported by a live backend, e.g. a
// malformed response or an internal server error.
type OperationError struct {
	Op  string
	Msg string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("lsp: %s: %s", e.Op, e.Msg)
}
