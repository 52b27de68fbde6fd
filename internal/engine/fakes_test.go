package engine

import (
	"context"
	"sync"
	"time"

	"github.com/swiftlens/swiftlens-go/internal/lsp"
)

// fakeClient implements lsp.Client with scriptable behavior.
type fakeClient struct {
	mu      sync.Mutex
	root    string
	alive   bool
	closed  int
	symbols []lsp.Symbol
	refs    []lsp.Reference

	analyzeErr error
	refsErr    error
	// pathErrs fails specific paths while others succeed.
	pathErrs map[string]error
	// panicPaths makes specific paths panic instead of returning.
	panicPaths map[string]bool

	closeErr error
}

func (c *fakeClient) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *fakeClient) kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
}

func (c *fakeClient) AnalyzeSymbols(ctx context.Context, path string) ([]lsp.Symbol, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panicPaths[path] {
		panic("backend blew up on " + path)
	}
	if err, ok := c.pathErrs[path]; ok {
		return nil, err
	}
	if c.analyzeErr != nil {
		return nil, c.analyzeErr
	}
	return c.symbols, nil
}

func (c *fakeClient) FindReferences(ctx context.Context, path string, symbolName string) ([]lsp.Reference, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.pathErrs[path]; ok {
		return nil, err
	}
	if c.refsErr != nil {
		return nil, c.refsErr
	}
	return c.refs, nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	c.alive = false
	return c.closeErr
}

func (c *fakeClient) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// countingFactory implements lsp.Factory and records every creation.
type countingFactory struct {
	mu      sync.Mutex
	clients []*fakeClient

	// configure configures each new client; nil means a plain live client.
	configure func(c *fakeClient)
	// rootErrs fails creation for specific roots.
	rootErrs map[string]error
	// err fails every creation.
	err error
}

func (f *countingFactory) NewClient(ctx context.Context, root string, timeout time.Duration) (lsp.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if err, ok := f.rootErrs[root]; ok {
		return nil, err
	}
	c := &fakeClient{root: root, alive: true}
	if f.configure != nil {
		f.configure(c)
	}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *countingFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *countingFactory) allClients() []*fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeClient(nil), f.clients...)
}
