package loader

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	istore "github.com/aleksaelezovic/jsonld/internal/store"
	"github.com/aleksaelezovic/jsonld/internal/storage"
	"github.com/aleksaelezovic/jsonld/pkg/store"
)

// Cache stores fetched documents between loads. Implementations must be
// safe for concurrent use.
type Cache interface {
	// Get returns a fresh entry for url, or false
	Get(url string) (*store.Entry, bool)
	// Put stores entry as the response for url
	Put(url string, entry *store.Entry) error
}

// MemoryCache is a process-local Cache
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*store.Entry
	now     func() time.Time
	metrics *Metrics
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache(metrics *Metrics) *MemoryCache {
	return &MemoryCache{
		entries: map[string]*store.Entry{},
		now:     time.Now,
		metrics: metrics,
	}
}

func (c *MemoryCache) Get(url string) (*store.Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.Fresh(c.now()) {
		c.mu.Lock()
		delete(c.entries, url)
		c.metrics.setCacheEntries(len(c.entries))
		c.mu.Unlock()
		return nil, false
	}
	return entry, true
}

func (c *MemoryCache) Put(url string, entry *store.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = entry
	if entry.URL != "" && entry.URL != url {
		c.entries[entry.URL] = entry
	}
	c.metrics.setCacheEntries(len(c.entries))
	return nil
}

// Len returns the number of cached documents, stale ones included
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// BadgerCache persists documents in a badger database so they survive
// restarts of the CLI and server.
type BadgerCache struct {
	docs *istore.DocumentStore
}

// OpenBadgerCache opens (or creates) a cache under dir. Badger's own log
// goes to logger, which may be nil.
func OpenBadgerCache(dir string, logger *zap.Logger) (*BadgerCache, error) {
	backend, err := storage.Open(storage.Options{Dir: dir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open document cache: %w", err)
	}
	return &BadgerCache{docs: istore.NewDocumentStore(backend)}, nil
}

// NewBadgerCache wraps an already opened storage
func NewBadgerCache(backend store.Storage) *BadgerCache {
	return &BadgerCache{docs: istore.NewDocumentStore(backend)}
}

func (c *BadgerCache) Get(url string) (*store.Entry, bool) {
	entry, err := c.docs.Get(url)
	if err != nil {
		return nil, false
	}
	return entry, true
}

func (c *BadgerCache) Put(url string, entry *store.Entry) error {
	return c.docs.Put(url, entry)
}

// Purge drops stale documents and reports how many were removed
func (c *BadgerCache) Purge() (int, error) {
	return c.docs.Purge()
}

// Clear drops every cached document, fresh or not
func (c *BadgerCache) Clear() error {
	return c.docs.Clear()
}

// Entries lists every cached document
func (c *BadgerCache) Entries() ([]*store.Entry, error) {
	return c.docs.Entries()
}

// Close closes the underlying database
func (c *BadgerCache) Close() error {
	if c == nil || c.docs == nil {
		return nil
	}
	err := c.docs.Close()
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
