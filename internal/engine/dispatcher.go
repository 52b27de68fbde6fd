// Package engine implements the concurrent multi-file analysis engine: a
// dispatcher that fans file tasks across a bounded worker pool, where
// each worker reuses backend clients through its own thread-confined LRU
// cache, with strict per-file error isolation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/swiftlens/swiftlens-go/internal/lsp"
)

const (
	// SequentialThreshold is the batch size at or below which tasks run
	// on the calling goroutine. Pool startup plus per-worker client
	// creation costs more than parallelism buys for batches this small.
	SequentialThreshold = 2

	// DefaultWorkers is the pool size when no override is configured.
	DefaultWorkers = 4

	// DefaultMaxFiles bounds batch size.
	DefaultMaxFiles = 500

	// DefaultTimeout is the per-client operation timeout handed to the
	// factory. Indexing a cold project can take tens of seconds.
	DefaultTimeout = 45 * time.Second
)

// MaxWorkerClamp is the hard ceiling on pool size. Every worker can hold
// multiple backend processes, so an unbounded pool is a resource hazard
// regardless of what the configuration asks for.
func MaxWorkerClamp() int {
	limit := 2 * runtime.NumCPU()
	if limit > 32 {
		limit = 32
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Batch-level input violations: the only errors AnalyzeBatch returns.
// Everything that happens after task creation is captured per file.
var (
	ErrNoFiles     = errors.New("engine: no files provided")
	ErrEmptySymbol = errors.New("engine: symbol name cannot be empty")
)

// TooManyFilesError rejects oversized batches before any task is created.
type TooManyFilesError struct {
	Count int
	Max   int
}

func (e *TooManyFilesError) Error() string {
	return fmt.Sprintf("engine: too many files: %d (maximum allowed is %d)", e.Count, e.Max)
}

// Options configures an Engine. Zero values mean defaults; out-of-range
// values are clamped, never rejected.
type Options struct {
	Workers   int
	MaxFiles  int
	CacheSize int // clients kept per worker
	Timeout   time.Duration
}

// Engine dispatches batches of file-analysis tasks. Safe for concurrent
// use: each call owns all of its mutable state.
type Engine struct {
	factory   lsp.Factory
	workers   int
	maxFiles  int
	cacheSize int
	timeout   time.Duration
}

// New creates an Engine producing backend clients through factory.
func New(factory lsp.Factory, opts Options) *Engine {
	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	if limit := MaxWorkerClamp(); workers > limit {
		workers = limit
	}
	maxFiles := opts.MaxFiles
	if maxFiles < 1 {
		maxFiles = DefaultMaxFiles
	}
	cacheSize := opts.CacheSize
	if cacheSize < 1 {
		cacheSize = DefaultMaxCacheSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		factory:   factory,
		workers:   workers,
		maxFiles:  maxFiles,
		cacheSize: cacheSize,
		timeout:   timeout,
	}
}

// MaxFiles returns the configured batch size limit.
func (e *Engine) MaxFiles() int { return e.maxFiles }

// Workers returns the configured pool size.
func (e *Engine) Workers() int { return e.workers }

// AnalyzeBatch runs op against every path and returns one result per
// original input path. Once inputs pass batch-level validation the call
// always returns a BatchResult: per-file failures are captured inside it
// and can never abort sibling tasks.
//
// Paths are expected to be pre-validated (see internal/validate); they
// are still canonicalized here so duplicates collapse into one task. A
// task's result is recorded under every original input string that
// resolved to it.
func (e *Engine) AnalyzeBatch(ctx context.Context, paths []string, op Operation) (*BatchResult, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}
	if len(paths) > e.maxFiles {
		return nil, &TooManyFilesError{Count: len(paths), Max: e.maxFiles}
	}
	if op.Kind == OpFindReferences && strings.TrimSpace(op.SymbolName) == "" {
		return nil, ErrEmptySymbol
	}

	tasks := buildTasks(paths, op)
	agg := newAggregator()

	if len(tasks) <= SequentialThreshold {
		e.runSequential(ctx, tasks, agg)
	} else {
		e.runParallel(ctx, tasks, agg)
	}

	return agg.result(), nil
}

// buildTasks canonicalizes and deduplicates the input paths, preserving
// first-seen order. Distinct input strings resolving to one canonical
// path share a single task and fan out at result-recording time.
func buildTasks(paths []string, op Operation) []*FileTask {
	var tasks []*FileTask
	byPath := make(map[string]*FileTask, len(paths))

	for _, p := range paths {
		canonical := canonicalPath(p)
		if task, ok := byPath[canonical]; ok {
			if !containsString(task.Originals, p) {
				task.Originals = append(task.Originals, p)
			}
			continue
		}
		task := &FileTask{
			Path:        canonical,
			ProjectRoot: lsp.FindProjectRoot(canonical),
			Originals:   []string{p},
			Op:          op,
		}
		byPath[canonical] = task
		tasks = append(tasks, task)
	}
	return tasks
}

// canonicalPath resolves a path to its absolute, symlink-free form,
// falling back to plain absolute cleaning when resolution fails (e.g.
// the file disappeared between validation and dispatch).
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return filepath.Clean(abs)
	}
	return real
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// runSequential executes tasks one at a time on the calling goroutine,
// sharing a single client cache scoped to this call.
func (e *Engine) runSequential(ctx context.Context, tasks []*FileTask, agg *aggregator) {
	cache := NewClientCache(e.factory, e.timeout, e.cacheSize)
	defer cache.ReleaseAll()

	for _, task := range tasks {
		agg.record(task.Originals, e.runTask(ctx, cache, task))
	}
}

// runParallel fans tasks out across a fixed worker pool. Each worker
// owns exactly one client cache, created on its first task and released
// when the pool drains. Results land in the aggregator as they complete,
// in no particular order.
func (e *Engine) runParallel(ctx context.Context, tasks []*FileTask, agg *aggregator) {
	workers := e.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	taskCh := make(chan *FileTask)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var cache *ClientCache
			defer func() {
				if cache != nil {
					cache.ReleaseAll()
				}
			}()

			for task := range taskCh {
				if cache == nil {
					cache = NewClientCache(e.factory, e.timeout, e.cacheSize)
				}
				agg.record(task.Originals, e.runTask(ctx, cache, task))
			}
		}()
	}

	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)
	wg.Wait()
}

// runTask executes one task against a cached client. This is the sole
// boundary across which failures must not propagate: every error, and
// any panic, is converted into a Failure result here.
func (e *Engine) runTask(ctx context.Context, cache *ClientCache, task *FileTask) (res FileResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[engine] panic in task for %s: %v", task.Path, r)
			res = failure(task, ErrorUnexpected, fmt.Sprintf("panic: %v", r))
		}
	}()

	client, err := cache.Acquire(ctx, task.ProjectRoot)
	if err != nil {
		return failure(task, classify(err), err.Error())
	}

	switch task.Op.Kind {
	case OpAnalyzeSymbols:
		symbols, err := client.AnalyzeSymbols(ctx, task.Path)
		if err != nil {
			return failure(task, classify(err), err.Error())
		}
		return FileResult{
			Success:   true,
			Path:      task.Path,
			Symbols:   symbols,
			UnitCount: lsp.CountSymbols(symbols),
		}
	case OpFindReferences:
		refs, err := client.FindReferences(ctx, task.Path, task.Op.SymbolName)
		if err != nil {
			return failure(task, classify(err), err.Error())
		}
		return FileResult{
			Success:    true,
			Path:       task.Path,
			References: refs,
			UnitCount:  len(refs),
		}
	default:
		return failure(task, ErrorUnexpected, fmt.Sprintf("unknown operation %v", task.Op.Kind))
	}
}

// aggregator folds task results into a BatchResult under a single mutex.
// The lock is held only for the map/counter update, never across I/O.
type aggregator struct {
	mu         sync.Mutex
	files      map[string]FileResult
	totalUnits int
}

func newAggregator() *aggregator {
	return &aggregator{files: make(map[string]FileResult)}
}

// record stores res under every original input key. Successful unit
// counts are added once per key so that the aggregate always equals the
// sum over the entries of the final map.
func (a *aggregator) record(keys []string, res FileResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, key := range keys {
		a.files[key] = res
		if res.Success {
			a.totalUnits += res.UnitCount
		}
	}
}

func (a *aggregator) result() *BatchResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &BatchResult{
		Files:      a.files,
		TotalFiles: len(a.files),
		TotalUnits: a.totalUnits,
	}
}
