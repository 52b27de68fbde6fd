package engine

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/swiftlens/swiftlens-go/internal/lsp"
)

// DefaultMaxCacheSize bounds how many LSP clients a single worker keeps
// alive at once. Each client is a backend process, so this is a process
// budget as much as a memory one.
const DefaultMaxCacheSize = 50

// ErrClientCreation marks a failure to start or connect a backend client
// for a project root. It wraps the factory's error.
var ErrClientCreation = errors.New("engine: client creation failed")

// ClientCache maps project roots to live LSP clients for one worker.
//
// The cache is deliberately not safe for concurrent use: every instance
// is owned by exactly one worker goroutine for its whole lifetime, which
// is what lets the hot path run without locks. Entries are evicted in
// LRU order once the cache is full, and dead clients are replaced on the
// next Acquire for their root.
type ClientCache struct {
	factory lsp.Factory
	timeout time.Duration
	maxSize int

	entries map[string]*list.Element
	order   *list.List // front = least recently used, back = most recent

	// keyFor is swappable in tests to force key collisions.
	keyFor func(root string) string
}

type cacheEntry struct {
	key    string
	root   string // exact root, checked before any promotion
	client lsp.Client
}

// NewClientCache creates an empty cache that produces clients through
// factory. maxSize values below 1 fall back to DefaultMaxCacheSize.
func NewClientCache(factory lsp.Factory, timeout time.Duration, maxSize int) *ClientCache {
	if maxSize < 1 {
		maxSize = DefaultMaxCacheSize
	}
	return &ClientCache{
		factory: factory,
		timeout: timeout,
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		keyFor:  cacheKey,
	}
}

// cacheKey derives a fixed-length key from a project root so that map
// keys do not grow with path length. Collisions are tolerated: the entry
// stores the exact root and Acquire verifies it.
func cacheKey(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:32]
}

// Acquire returns a live client for the given project root, reusing a
// cached one when possible. The returned client stays owned by the cache;
// callers must not Close it. Fails with an error wrapping
// ErrClientCreation when the factory cannot produce a client.
func (c *ClientCache) Acquire(ctx context.Context, root string) (lsp.Client, error) {
	if !filepath.IsAbs(root) {
		abs, err := filepath.Abs(root)
		if err == nil {
			root = abs
		}
	}
	root = filepath.Clean(root)
	key := c.keyFor(root)

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		if entry.client.IsAlive() {
			// Validate the stored root before promoting: key equality
			// alone is not proof of identity under a truncated hash.
			if entry.root == root {
				c.order.MoveToBack(elem)
				return entry.client, nil
			}
			log.Printf("[cache] key collision for %s (cached root %s, requested %s)", key, entry.root, root)
		} else {
			log.Printf("[cache] replacing dead client for %s", root)
		}
		c.removeEntry(elem)
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	client, err := c.factory.NewClient(ctx, root, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrClientCreation, root, err)
	}

	elem := c.order.PushBack(&cacheEntry{key: key, root: root, client: client})
	c.entries[key] = elem
	return client, nil
}

// Len returns the number of cached clients.
func (c *ClientCache) Len() int {
	return len(c.entries)
}

// evictOldest releases the least recently used client and drops its entry.
func (c *ClientCache) evictOldest() {
	elem := c.order.Front()
	if elem == nil {
		return
	}
	entry := elem.Value.(*cacheEntry)
	log.Printf("[cache] evicting client for %s", entry.root)
	c.removeEntry(elem)
}

// removeEntry closes the entry's client, then unlinks it. Close happens
// first so a failed unlink can never leak a running backend process.
func (c *ClientCache) removeEntry(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	if err := entry.client.Close(); err != nil {
		log.Printf("[cache] error closing client for %s: %v", entry.root, err)
	}
	c.order.Remove(elem)
	delete(c.entries, entry.key)
}

// ReleaseAll closes every cached client and empties the cache. Called at
// worker teardown. A failure to close one client never prevents closing
// the rest.
func (c *ClientCache) ReleaseAll() {
	for key, elem := range c.entries {
		entry := elem.Value.(*cacheEntry)
		if err := entry.client.Close(); err != nil {
			log.Printf("[cache] error closing client for %s during release: %v", entry.root, err)
		}
		delete(c.entries, key)
	}
	c.order.Init()
}
