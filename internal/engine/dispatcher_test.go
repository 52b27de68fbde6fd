package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftlens/swiftlens-go/internal/lsp"
)

var testSymbols = []lsp.Symbol{
	{
		Name: "User", Kind: lsp.KindClass, Line: 1,
		Children: []lsp.Symbol{
			{Name: "name", Kind: lsp.KindProperty, Line: 2},
			{Name: "greet", Kind: lsp.KindMethod, Line: 4},
		},
	},
}

const testSymbolCount = 3 // User + name + greet

func symbolFactory() *countingFactory {
	return &countingFactory{configure: func(c *fakeClient) {
		c.symbols = testSymbols
	}}
}

func analyzeOp() Operation { return Operation{Kind: OpAnalyzeSymbols} }

func TestAnalyzeBatchSingleFile(t *testing.T) {
	factory := symbolFactory()
	eng := New(factory, Options{})

	res, err := eng.AnalyzeBatch(context.Background(), []string{"/src/main.swift"}, analyzeOp())
	require.NoError(t, err)

	require.Len(t, res.Files, 1)
	fr := res.Files["/src/main.swift"]
	assert.True(t, fr.Success)
	assert.Equal(t, testSymbolCount, fr.UnitCount)
	assert.Equal(t, testSymbolCount, res.TotalUnits)
	assert.Equal(t, 1, res.TotalFiles)
	assert.Equal(t, 1, factory.created(), "one file needs exactly one client")
}

func TestAnalyzeBatchResultCompleteness(t *testing.T) {
	factory := symbolFactory()
	eng := New(factory, Options{Workers: 4})

	var paths []string
	for i := 0; i < 12; i++ {
		paths = append(paths, fmt.Sprintf("/src/file%d.swift", i))
	}

	res, err := eng.AnalyzeBatch(context.Background(), paths, analyzeOp())
	require.NoError(t, err)

	require.Len(t, res.Files, len(paths))
	for _, p := range paths {
		fr, ok := res.Files[p]
		require.True(t, ok, "missing result for %s", p)
		assert.True(t, fr.Success)
	}
	assert.Equal(t, len(paths)*testSymbolCount, res.TotalUnits)
}

func TestAnalyzeBatchErrorIsolation(t *testing.T) {
	factory := &countingFactory{configure: func(c *fakeClient) {
		c.symbols = testSymbols
		c.pathErrs = map[string]error{
			"/src/bad.swift": fmt.Errorf("%w: references after 45s", lsp.ErrTimeout),
		}
	}}
	eng := New(factory, Options{Workers: 4})

	paths := []string{"/src/a.swift", "/src/bad.swift", "/src/c.swift"}
	res, err := eng.AnalyzeBatch(context.Background(), paths, analyzeOp())
	require.NoError(t, err)

	require.Len(t, res.Files, 3)
	assert.True(t, res.Files["/src/a.swift"].Success)
	assert.True(t, res.Files["/src/c.swift"].Success)

	bad := res.Files["/src/bad.swift"]
	assert.False(t, bad.Success)
	assert.Equal(t, ErrorTimeout, bad.ErrKind)
	assert.Equal(t, 2*testSymbolCount, res.TotalUnits, "failed file contributes no units")
}

func TestAnalyzeBatchClientCreationFailureIsolated(t *testing.T) {
	factory := &countingFactory{
		configure: func(c *fakeClient) { c.symbols = testSymbols },
		rootErrs:  map[string]error{"/projB": fmt.Errorf("no such toolchain")},
	}
	eng := New(factory, Options{Workers: 4})

	paths := []string{
		"/projA/one.swift",
		"/projA/two.swift",
		"/projB/three.swift",
		"/projB/four.swift",
	}
	res, err := eng.AnalyzeBatch(context.Background(), paths, analyzeOp())
	require.NoError(t, err)

	assert.True(t, res.Files["/projA/one.swift"].Success)
	assert.True(t, res.Files["/projA/two.swift"].Success)
	for _, p := range []string{"/projB/three.swift", "/projB/four.swift"} {
		fr := res.Files[p]
		assert.False(t, fr.Success)
		assert.Equal(t, ErrorClientCreation, fr.ErrKind)
	}
}

func TestAnalyzeBatchPanicConvertedToFailure(t *testing.T) {
	factory := &countingFactory{configure: func(c *fakeClient) {
		c.symbols = testSymbols
		c.panicPaths = map[string]bool{"/src/b.swift": true}
	}}
	eng := New(factory, Options{Workers: 4})

	paths := []string{"/src/a.swift", "/src/b.swift", "/src/c.swift"}
	res, err := eng.AnalyzeBatch(context.Background(), paths, analyzeOp())
	require.NoError(t, err)

	fr := res.Files["/src/b.swift"]
	assert.False(t, fr.Success)
	assert.Equal(t, ErrorUnexpected, fr.ErrKind)
	assert.True(t, res.Files["/src/a.swift"].Success)
	assert.True(t, res.Files["/src/c.swift"].Success)
}

func TestAnalyzeBatchFindReferences(t *testing.T) {
	refs := []lsp.Reference{
		{FilePath: "/src/a.swift", Line: 3, Character: 8, Context: "let user = User()"},
		{FilePath: "/src/a.swift", Line: 9, Character: 4, Context: "user.greet()"},
	}
	factory := &countingFactory{configure: func(c *fakeClient) { c.refs = refs }}
	eng := New(factory, Options{Workers: 4})

	paths := []string{"/src/a.swift", "/src/b.swift", "/src/c.swift"}
	res, err := eng.AnalyzeBatch(context.Background(), paths,
		Operation{Kind: OpFindReferences, SymbolName: "User"})
	require.NoError(t, err)

	require.Len(t, res.Files, 3)
	for _, p := range paths {
		fr := res.Files[p]
		assert.True(t, fr.Success)
		assert.Equal(t, len(refs), fr.UnitCount)
		assert.Equal(t, refs, fr.References)
	}
	assert.Equal(t, 3*len(refs), res.TotalUnits)
}

func TestAnalyzeBatchRejectsEmptySymbol(t *testing.T) {
	factory := symbolFactory()
	eng := New(factory, Options{})

	_, err := eng.AnalyzeBatch(context.Background(), []string{"/src/a.swift"},
		Operation{Kind: OpFindReferences, SymbolName: "   "})
	assert.ErrorIs(t, err, ErrEmptySymbol)
	assert.Equal(t, 0, factory.created())
}

func TestAnalyzeBatchInputLimits(t *testing.T) {
	factory := symbolFactory()
	eng := New(factory, Options{MaxFiles: 500, Workers: 4})

	_, err := eng.AnalyzeBatch(context.Background(), nil, analyzeOp())
	assert.ErrorIs(t, err, ErrNoFiles)

	var paths []string
	for i := 0; i < 501; i++ {
		paths = append(paths, fmt.Sprintf("/src/f%d.swift", i))
	}
	_, err = eng.AnalyzeBatch(context.Background(), paths, analyzeOp())
	var tooMany *TooManyFilesError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, 501, tooMany.Count)
	assert.Equal(t, 500, tooMany.Max)
	assert.Equal(t, 0, factory.created(), "rejected batch must create no clients")

	res, err := eng.AnalyzeBatch(context.Background(), paths[:500], analyzeOp())
	require.NoError(t, err)
	assert.Len(t, res.Files, 500)
}

func TestAnalyzeBatchDuplicatePathsFanOut(t *testing.T) {
	factory := symbolFactory()
	eng := New(factory, Options{})

	// Both strings canonicalize to /src/a.swift; one task, two result keys.
	paths := []string{"/src/a.swift", "/src/./a.swift"}
	res, err := eng.AnalyzeBatch(context.Background(), paths, analyzeOp())
	require.NoError(t, err)

	require.Len(t, res.Files, 2)
	assert.Equal(t, res.Files["/src/a.swift"], res.Files["/src/./a.swift"])
	assert.Equal(t, 1, factory.created(), "duplicates collapse into one task")
}

func TestAnalyzeBatchTwoRootsBoundedCreations(t *testing.T) {
	factory := symbolFactory()
	eng := New(factory, Options{Workers: 4, CacheSize: 1})

	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, fmt.Sprintf("/projA/a%d.swift", i))
		paths = append(paths, fmt.Sprintf("/projB/b%d.swift", i))
	}

	res, err := eng.AnalyzeBatch(context.Background(), paths, analyzeOp())
	require.NoError(t, err)

	require.Len(t, res.Files, 10)
	for _, fr := range res.Files {
		assert.True(t, fr.Success)
	}
	created := factory.created()
	assert.GreaterOrEqual(t, created, 2, "two roots need at least two clients")
	assert.LessOrEqual(t, created, 10, "never more clients than tasks")
}

func TestAnalyzeBatchTeardownClosesAllClients(t *testing.T) {
	for _, tc := range []struct {
		name  string
		files int
	}{
		{"sequential", 2},
		{"parallel", 9},
	} {
		t.Run(tc.name, func(t *testing.T) {
			factory := symbolFactory()
			eng := New(factory, Options{Workers: 3})

			var paths []string
			for i := 0; i < tc.files; i++ {
				paths = append(paths, fmt.Sprintf("/proj%d/f.swift", i))
			}
			_, err := eng.AnalyzeBatch(context.Background(), paths, analyzeOp())
			require.NoError(t, err)

			require.NotZero(t, factory.created())
			for _, c := range factory.allClients() {
				assert.Equal(t, 1, c.closeCount(), "every client released exactly once")
			}
		})
	}
}

// TestSequentialParallelEquivalence dispatches one fixed batch through
// both execution strategies and expects identical batch content.
func TestSequentialParallelEquivalence(t *testing.T) {
	build := func() (*Engine, *countingFactory, []*FileTask) {
		factory := &countingFactory{configure: func(c *fakeClient) {
			c.symbols = testSymbols
			c.pathErrs = map[string]error{
				"/src/broken.swift": fmt.Errorf("%w: pipe closed", lsp.ErrConnection),
			}
		}}
		eng := New(factory, Options{Workers: 4})
		paths := []string{"/src/a.swift", "/src/broken.swift", "/src/c.swift", "/src/d.swift"}
		return eng, factory, buildTasks(paths, analyzeOp())
	}

	seqEng, _, seqTasks := build()
	seqAgg := newAggregator()
	seqEng.runSequential(context.Background(), seqTasks, seqAgg)

	parEng, _, parTasks := build()
	parAgg := newAggregator()
	parEng.runParallel(context.Background(), parTasks, parAgg)

	seqRes, parRes := seqAgg.result(), parAgg.result()
	assert.Equal(t, seqRes.Files, parRes.Files)
	assert.Equal(t, seqRes.TotalUnits, parRes.TotalUnits)
	assert.Equal(t, seqRes.TotalFiles, parRes.TotalFiles)
}

// Aggregate consistency: the running total must equal the per-entry sum,
// whatever mix of successes and failures a batch produces.
func TestAggregateConsistency(t *testing.T) {
	factory := &countingFactory{configure: func(c *fakeClient) {
		c.symbols = testSymbols
		c.pathErrs = map[string]error{
			"/src/f2.swift": fmt.Errorf("%w", lsp.ErrTimeout),
			"/src/f5.swift": &lsp.OperationError{Op: "documentSymbol", Msg: "malformed"},
		}
	}}
	eng := New(factory, Options{Workers: 4})

	var paths []string
	for i := 0; i < 8; i++ {
		paths = append(paths, fmt.Sprintf("/src/f%d.swift", i))
	}
	res, err := eng.AnalyzeBatch(context.Background(), paths, analyzeOp())
	require.NoError(t, err)

	sum := 0
	for _, fr := range res.Files {
		if fr.Success {
			sum += fr.UnitCount
		}
	}
	assert.Equal(t, sum, res.TotalUnits)
	assert.Equal(t, ErrorOperation, res.Files["/src/f5.swift"].ErrKind)
}

func TestNewClampsOptions(t *testing.T) {
	eng := New(&countingFactory{}, Options{Workers: -3, MaxFiles: 0, CacheSize: -1, Timeout: 0})
	assert.Equal(t, DefaultWorkers, eng.workers)
	assert.Equal(t, DefaultMaxFiles, eng.maxFiles)
	assert.Equal(t, DefaultMaxCacheSize, eng.cacheSize)
	assert.Equal(t, DefaultTimeout, eng.timeout)

	huge := New(&countingFactory{}, Options{Workers: 10_000})
	assert.LessOrEqual(t, huge.workers, MaxWorkerClamp())
	assert.GreaterOrEqual(t, huge.workers, 1)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"creation", fmt.Errorf("%w for /p: boom", ErrClientCreation), ErrorClientCreation},
		{"timeout", fmt.Errorf("wrapped: %w", lsp.ErrTimeout), ErrorTimeout},
		{"connection", fmt.Errorf("wrapped: %w", lsp.ErrConnection), ErrorConnection},
		{"operation", &lsp.OperationError{Op: "references", Msg: "bad json"}, ErrorOperation},
		{"unknown", fmt.Errorf("something else"), ErrorUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestEngineAccessors(t *testing.T) {
	eng := New(&countingFactory{}, Options{Workers: 2, MaxFiles: 100, Timeout: time.Minute})
	assert.Equal(t, 2, eng.Workers())
	assert.Equal(t, 100, eng.MaxFiles())
}
