// Package memory is an in-process document backend. Collections keep
// documents in insertion order and hand out deep copies only.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rpggio/entityhub/internal/repository"
)

// Backend is a thread-safe in-memory repository.Backend.
type Backend struct {
	mu          sync.RWMutex
	collections map[string]*Collection
	closed      bool
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{collections: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it on first use.
func (b *Backend) Collection(ctx context.Context, name string) (repository.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", repository.ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, repository.ErrUnavailable
	}
	coll, ok := b.collections[name]
	if !ok {
		coll = &Collection{backend: b, name: name, index: make(map[string]int)}
		b.collections[name] = coll
	}
	return coll, nil
}

// Ping fails once the backend is closed.
func (b *Backend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.isClosed() {
		return repository.ErrUnavailable
	}
	return nil
}

// Close marks the backend unavailable. Held collections start failing too.
func (b *Backend) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Collection holds one named set of documents.
type Collection struct {
	backend *Backend
	name    string

	mu    sync.RWMutex
	docs  []repository.Document
	index map[string]int // id -> position in docs
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.backend != nil && c.backend.isClosed() {
		return repository.ErrUnavailable
	}
	return nil
}

// InsertOne appends a normalized copy of doc.
func (c *Collection) InsertOne(ctx context.Context, doc repository.Document) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("%w: document has no string id", repository.ErrInvalidInput)
	}
	stored, err := repository.Normalize(doc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[id]; exists {
		return fmt.Errorf("%w: %s", repository.ErrDuplicateKey, id)
	}
	c.index[id] = len(c.docs)
	c.docs = append(c.docs, stored)
	return nil
}

// FindOne returns a copy of the first matching document.
func (c *Collection) FindOne(ctx context.Context, filter repository.Filter) (repository.Document, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if err := repository.ValidateFilter(filter); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	pos := c.locate(filter)
	if pos < 0 {
		return nil, repository.ErrNotFound
	}
	return c.docs[pos].Clone(), nil
}

// Find returns copies of matching documents in insertion order.
func (c *Collection) Find(ctx context.Context, filter repository.Filter, opts repository.FindOptions) ([]repository.Document, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if err := repository.ValidateFilter(filter); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	results := []repository.Document{}
	skipped := 0
	for _, doc := range c.docs {
		if !filter.Matches(doc) {
			continue
		}
		if skipped < opts.Skip {
			skipped++
			continue
		}
		results = append(results, doc.Clone())
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

// Count returns the number of matching documents.
func (c *Collection) Count(ctx context.Context, filter repository.Filter) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	if err := repository.ValidateFilter(filter); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(filter) == 0 {
		return int64(len(c.docs)), nil
	}
	var n int64
	for _, doc := range c.docs {
		if filter.Matches(doc) {
			n++
		}
	}
	return n, nil
}

// UpdateOne merges patch into the first matching document.
func (c *Collection) UpdateOne(ctx context.Context, filter repository.Filter, patch repository.Document) (repository.Document, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if err := repository.ValidateFilter(filter); err != nil {
		return nil, err
	}
	changes, err := repository.Normalize(patch)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pos := c.locate(filter)
	if pos < 0 {
		return nil, repository.ErrNotFound
	}
	c.docs[pos].Merge(changes)
	return c.docs[pos].Clone(), nil
}

// DeleteOne removes the first matching document.
func (c *Collection) DeleteOne(ctx context.Context, filter repository.Filter) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if err := repository.ValidateFilter(filter); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pos := c.locate(filter)
	if pos < 0 {
		return repository.ErrNotFound
	}
	delete(c.index, c.docs[pos].ID())
	c.docs = append(c.docs[:pos], c.docs[pos+1:]...)
	for i := pos; i < len(c.docs); i++ {
		c.index[c.docs[i].ID()] = i
	}
	return nil
}

// locate returns the position of the first match, or -1.
// It MUST be called while holding c.mu.
func (c *Collection) locate(filter repository.Filter) int {
	if id, ok := filter.IDOnly(); ok {
		if pos, found := c.index[id]; found {
			return pos
		}
		return -1
	}
	for i, doc := range c.docs {
		if filter.Matches(doc) {
			return i
		}
	}
	return -1
}
