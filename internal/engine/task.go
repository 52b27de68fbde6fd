package engine

import (
	"errors"
	"fmt"
	"log"

	"github.com/swiftlens/swiftlens-go/internal/lsp"
	"github.com/swiftlens/swiftlens-go/internal/validate"
)

// OpKind selects which backend capability a batch exercises.
type OpKind int

const (
	// OpAnalyzeSymbols extracts each file's symbol tree.
	OpAnalyzeSymbols OpKind = iota
	// OpFindReferences finds references to one symbol in each file.
	OpFindReferences
)

// Operation describes what a batch does to every file.
type Operation struct {
	Kind       OpKind
	SymbolName string // OpFindReferences only
}

// FileTask is one unit of work: a validated, canonical file path plus the
// operation to run against it. Immutable once built; consumed by exactly
// one worker.
type FileTask struct {
	// Path is the canonical absolute path handed to the backend.
	Path string
	// ProjectRoot identifies the backend session this file belongs to.
	ProjectRoot string
	// Originals holds every input string that resolved to Path. The
	// task's result is recorded under each of them.
	Originals []string
	// Op is the batch operation.
	Op Operation
}

// ErrorKind is the closed taxonomy of per-file failures. Every error a
// task can produce is classified into exactly one of these at the worker
// boundary.
type ErrorKind string

const (
	// ErrorValidation marks an invalid path that reached a task despite
	// the upstream pre-pass.
	ErrorValidation ErrorKind = "validation_error"
	// ErrorClientCreation means the backend client could not be started
	// or connected for the task's project root.
	ErrorClientCreation ErrorKind = "client_creation_failed"
	// ErrorTimeout means the backend call exceeded its deadline.
	ErrorTimeout ErrorKind = "backend_timeout"
	// ErrorConnection means the transport to the backend broke mid-call.
	ErrorConnection ErrorKind = "backend_connection_failed"
	// ErrorOperation means the backend ran but reported a semantic
	// failure (malformed response, internal error).
	ErrorOperation ErrorKind = "backend_operation_failed"
	// ErrorUnexpected catches everything else; always logged.
	ErrorUnexpected ErrorKind = "unexpected_error"
)

// FileResult is the outcome for one task: either a success payload or a
// classified failure. Never mutated after creation.
type FileResult struct {
	Success bool
	Path    string // canonical path that was analyzed

	// Success payload. Exactly one of Symbols/References is populated,
	// matching the batch operation; UnitCount is its size.
	Symbols    []lsp.Symbol
	References []lsp.Reference
	UnitCount  int

	// Failure payload.
	ErrKind ErrorKind
	ErrMsg  string
}

// BatchResult maps every original input path to its FileResult.
// TotalUnits is maintained so that it always equals the sum of UnitCount
// over the successful entries of Files.
type BatchResult struct {
	Files      map[string]FileResult
	TotalFiles int
	TotalUnits int
}

// failure builds a Failure result for a task.
func failure(task *FileTask, kind ErrorKind, msg string) FileResult {
	return FileResult{Path: task.Path, ErrKind: kind, ErrMsg: msg}
}

// classify converts an error escaping a task into its ErrorKind. This is
// the single conversion point; new backend error shapes must be added
// here, not at call sites.
func classify(err error) ErrorKind {
	var (
		valErr *validate.Error
		opErr  *lsp.OperationError
	)
	switch {
	case errors.Is(err, ErrClientCreation):
		return ErrorClientCreation
	case errors.Is(err, lsp.ErrTimeout):
		return ErrorTimeout
	case errors.Is(err, lsp.ErrConnection):
		return ErrorConnection
	case errors.As(err, &opErr):
		return ErrorOperation
	case errors.As(err, &valErr):
		return ErrorValidation
	default:
		log.Printf("[engine] unclassified task error: %v", err)
		return ErrorUnexpected
	}
}

func (k OpKind) String() string {
	switch k {
	case OpAnalyzeSymbols:
		return "analyze_symbols"
	case OpFindReferences:
		return "find_references"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}
