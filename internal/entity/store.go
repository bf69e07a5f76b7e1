// Package entity provides the generic Entity Store: one CRUD accessor bound
// to a named collection, returning Result envelopes instead of errors.
package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpggio/entityhub/internal/repository"
)

// Record is one stored entity instance.
type Record = repository.Document

// Reserved record fields.
const (
	FieldID        = repository.IDField
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldStatus    = "status"
	FieldUserID    = "user_id"

	StatusActive = "active"
)

// TimeLayout is RFC 3339 in UTC with fixed nanosecond width, so timestamps
// sort correctly as strings.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Config tunes a Store.
type Config struct {
	// DefaultLimit applies when List is called with a limit <= 0. Default: 50
	DefaultLimit int
	// MaxLimit caps List page sizes. Default: 100
	MaxLimit int
	// OpTimeout bounds each backend call. Zero leaves only the caller's deadline.
	OpTimeout time.Duration
	// Validator is optional.
	Validator Validator
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

func (c *Config) validate() {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 50
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 100
	}
	if c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
}

// ListOptions selects a page of records.
type ListOptions struct {
	UserID string
	Limit  int
	Offset int
}

// Store is the CRUD accessor for one collection.
type Store struct {
	name    string
	backend repository.Backend
	config  Config
	logger  *slog.Logger

	mu   sync.Mutex
	coll repository.Collection
}

// NewStore creates a Store bound to the named collection. The collection handle
// is acquired on first use.
func NewStore(name string, backend repository.Backend, config Config, logger *slog.Logger) *Store {
	config.validate()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		name:    name,
		backend: backend,
		config:  config,
		logger:  logger.With("collection", name),
	}
}

// Name returns the bound collection name.
func (s *Store) Name() string {
	return s.name
}

// collection returns the cached handle, acquiring it if needed. A failed
// acquisition is not cached.
func (s *Store) collection(ctx context.Context) (repository.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coll != nil {
		return s.coll, nil
	}
	coll, err := s.backend.Collection(ctx, s.name)
	if err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}
	s.coll = coll
	return coll, nil
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.OpTimeout > 0 {
		return context.WithTimeout(ctx, s.config.OpTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Store) now() string {
	return s.config.Now().UTC().Format(TimeLayout)
}

// Create stores a new record built from payload. id, created_at and
// updated_at are always assigned by the store; status defaults to active.
func (s *Store) Create(ctx context.Context, payload map[string]any) Result {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := repository.ValidateDocument(payload); err != nil {
		return s.fail("create", err)
	}
	rec, err := repository.Normalize(payload)
	if err != nil {
		return s.fail("create", err)
	}
	if rec == nil {
		rec = Record{}
	}

	now := s.now()
	rec[FieldID] = s.config.NewID()
	rec[FieldCreatedAt] = now
	rec[FieldUpdatedAt] = now
	if status, ok := rec[FieldStatus].(string); !ok || status == "" {
		rec[FieldStatus] = StatusActive
	}

	if s.config.Validator != nil {
		if err := s.config.Validator.ValidateCreate(rec); err != nil {
			return s.fail("create", err)
		}
	}

	coll, err := s.collection(ctx)
	if err != nil {
		return s.fail("create", err)
	}
	if err := coll.InsertOne(ctx, rec); err != nil {
		return s.fail("create", err)
	}

	s.logger.Debug("record created", "id", rec.ID())
	return success(rec, s.name+" record created")
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) Result {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if id == "" {
		return s.fail("get", fmt.Errorf("%w: id is required", ErrInvalidRecord))
	}
	coll, err := s.collection(ctx)
	if err != nil {
		return s.fail("get", err)
	}
	rec, err := coll.FindOne(ctx, repository.ByID(id))
	if err != nil {
		return s.fail("get", err)
	}
	return success(rec, "")
}

// List returns one page of records, optionally restricted to a user_id, along
// with the total number of matching records.
func (s *Store) List(ctx context.Context, opts ListOptions) Result {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	limit, offset := s.page(opts.Limit, opts.Offset)
	filter := ownerFilter(opts.UserID)

	coll, err := s.collection(ctx)
	if err != nil {
		return s.fail("list", err)
	}
	total, err := coll.Count(ctx, filter)
	if err != nil {
		return s.fail("list", err)
	}
	items, err := coll.Find(ctx, filter, repository.FindOptions{Skip: offset, Limit: limit})
	if err != nil {
		return s.fail("list", err)
	}
	if items == nil {
		items = []Record{}
	}

	return success(Page{Items: items, Total: total, Limit: limit, Offset: offset}, "")
}

func (s *Store) page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func ownerFilter(userID string) repository.Filter {
	if userID == "" {
		return repository.Filter{}
	}
	return repository.Filter{FieldUserID: userID}
}

// Update merges patch into the record with the given id and returns the
// stored result. id and created_at in the patch are ignored; updated_at is
// always refreshed.
func (s *Store) Update(ctx context.Context, id string, patch map[string]any) Result {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if id == "" {
		return s.fail("update", fmt.Errorf("%w: id is required", ErrInvalidRecord))
	}
	changes := Record(patch).Clone()
	if changes == nil {
		changes = Record{}
	}
	delete(changes, FieldID)
	delete(changes, FieldCreatedAt)
	if err := repository.ValidateDocument(changes); err != nil {
		return s.fail("update", err)
	}
	changes, err := repository.Normalize(changes)
	if err != nil {
		return s.fail("update", err)
	}
	if s.config.Validator != nil {
		if err := s.config.Validator.ValidatePatch(changes); err != nil {
			return s.fail("update", err)
		}
	}

	coll, err := s.collection(ctx)
	if err != nil {
		return s.fail("update", err)
	}
	current, err := coll.FindOne(ctx, repository.ByID(id))
	if err != nil {
		return s.fail("update", err)
	}
	changes[FieldUpdatedAt] = laterOf(s.now(), current)

	rec, err := coll.UpdateOne(ctx, repository.ByID(id), changes)
	if err != nil {
		return s.fail("update", err)
	}

	s.logger.Debug("record updated", "id", id)
	return success(rec, s.name+" record updated")
}

// laterOf keeps updated_at monotonic when the clock steps backwards.
func laterOf(now string, current Record) string {
	for _, field := range []string{FieldUpdatedAt, FieldCreatedAt} {
		if prev, ok := current[field].(string); ok && prev > now {
			now = prev
		}
	}
	return now
}

// Delete physically removes the record with the given id.
func (s *Store) Delete(ctx context.Context, id string) Result {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if id == "" {
		return s.fail("delete", fmt.Errorf("%w: id is required", ErrInvalidRecord))
	}
	coll, err := s.collection(ctx)
	if err != nil {
		return s.fail("delete", err)
	}
	if err := coll.DeleteOne(ctx, repository.ByID(id)); err != nil {
		return s.fail("delete", err)
	}

	s.logger.Debug("record deleted", "id", id)
	return success(map[string]any{FieldID: id}, s.name+" record deleted")
}

// Stats counts matching records and the active subset at call time.
func (s *Store) Stats(ctx context.Context, userID string) Result {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	filter := ownerFilter(userID)
	coll, err := s.collection(ctx)
	if err != nil {
		return s.fail("count", err)
	}
	total, err := coll.Count(ctx, filter)
	if err != nil {
		return s.fail("count", err)
	}

	active := repository.Filter{FieldStatus: StatusActive}
	for k, v := range filter {
		active[k] = v
	}
	activeCount, err := coll.Count(ctx, active)
	if err != nil {
		return s.fail("count", err)
	}

	return success(Stats{TotalCount: total, ActiveCount: activeCount}, "")
}

// Health checks that the backend answers and the collection can be acquired.
func (s *Store) Health(ctx context.Context) Result {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.backend.Ping(ctx); err != nil {
		if !errors.Is(err, repository.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
		}
		return s.fail("ping", err)
	}
	if _, err := s.collection(ctx); err != nil {
		return s.fail("ping", err)
	}
	return success(map[string]any{"status": "healthy", "collection": s.name}, "")
}

// fail converts err into a failure Result and logs it.
func (s *Store) fail(op string, err error) Result {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("record not found", "op", op)
		return failure(KindNotFound, s.name+" record not found")
	case errors.Is(err, ErrInvalidRecord), errors.Is(err, repository.ErrInvalidInput):
		s.logger.Warn("invalid input", "op", op, "error", err)
		return failure(KindInvalid, err.Error())
	case errors.Is(err, context.Canceled):
		s.logger.Warn("operation canceled", "op", op, "error", err)
		return failure(KindUnavailable, repository.ErrUnavailable.Error()+": "+op+" "+s.name+" record canceled")
	case errors.Is(err, repository.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		s.logger.Error("storage unavailable", "op", op, "error", err)
		msg := err.Error()
		if !strings.HasPrefix(msg, repository.ErrUnavailable.Error()) {
			msg = repository.ErrUnavailable.Error() + ": " + msg
		}
		return failure(KindUnavailable, msg)
	default:
		s.logger.Error("storage operation failed", "op", op, "error", err)
		return failure(KindStorage, fmt.Sprintf("failed to %s %s record: %v", op, s.name, err))
	}
}
