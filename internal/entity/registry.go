package entity

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"

	"github.com/rpggio/entityhub/internal/repository"
)

// DefaultCollections is the entity list served when none is configured.
var DefaultCollections = []string{
	"advanced_ai",
	"course_management",
	"financial",
	"referral",
	"social_email",
	"website_builder",
}

var collectionName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ReservedCollectionNames are path segments the HTTP API serves itself.
var ReservedCollectionNames = []string{"collections", "health"}

// ValidateCollectionName checks that name is usable as a collection, table and URL segment.
func ValidateCollectionName(name string) error {
	if !collectionName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	if slices.Contains(ReservedCollectionNames, name) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidCollectionName, name)
	}
	return nil
}

// Definition declares one collection served by a Registry.
type Definition struct {
	Name      string
	Validator Validator
}

// Registry holds one Store per configured collection. It is built once at
// startup and passed to every surface that needs it.
type Registry struct {
	backend repository.Backend
	stores  map[string]*Store
	names   []string
}

// NewRegistry creates a Store for each definition. config is shared; a
// definition's Validator replaces config.Validator for that collection.
func NewRegistry(backend repository.Backend, defs []Definition, config Config, logger *slog.Logger) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no collections configured", ErrInvalidCollectionName)
	}

	r := &Registry{
		backend: backend,
		stores:  make(map[string]*Store, len(defs)),
	}
	for _, def := range defs {
		if err := ValidateCollectionName(def.Name); err != nil {
			return nil, err
		}
		if _, exists := r.stores[def.Name]; exists {
			return nil, fmt.Errorf("%w: %q registered twice", ErrInvalidCollectionName, def.Name)
		}
		cfg := config
		if def.Validator != nil {
			cfg.Validator = def.Validator
		}
		r.stores[def.Name] = NewStore(def.Name, backend, cfg, logger)
		r.names = append(r.names, def.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Definitions builds definitions for names, attaching RequiredFields where
// required lists any for a collection.
func Definitions(names []string, required map[string][]string) []Definition {
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		def := Definition{Name: name}
		if fields := required[name]; len(fields) > 0 {
			def.Validator = RequiredFields(fields)
		}
		defs = append(defs, def)
	}
	return defs
}

// Store returns the store for name.
func (r *Registry) Store(name string) (*Store, error) {
	s, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return s, nil
}

// Names returns the registered collection names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Ping checks the shared backend.
func (r *Registry) Ping(ctx context.Context) error {
	return r.backend.Ping(ctx)
}
