package repository

import "context"

// Collection is the set of primitives every document backend provides for one
// named collection. Each call is atomic on its own; nothing spans calls.
type Collection interface {
	// Name returns the logical collection name.
	Name() string
	// InsertOne stores doc. The document must carry a string "id".
	InsertOne(ctx context.Context, doc Document) error
	// FindOne returns the first document matching filter, or ErrNotFound.
	FindOne(ctx context.Context, filter Filter) (Document, error)
	// Find returns matching documents in a stable order, honouring skip and limit.
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error)
	// Count returns the number of documents matching filter.
	Count(ctx context.Context, filter Filter) (int64, error)
	// UpdateOne overwrites the top-level fields of patch on the first matching
	// document and returns the document as stored afterwards. The "id" field is
	// never changed.
	UpdateOne(ctx context.Context, filter Filter, patch Document) (Document, error)
	// DeleteOne removes the first matching document, or returns ErrNotFound.
	DeleteOne(ctx context.Context, filter Filter) error
}

// Backend hands out collections from one document store.
type Backend interface {
	Collection(ctx context.Context, name string) (Collection, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// FindOptions controls pagination for Find. A zero Limit means no limit.
type FindOptions struct {
	Skip  int
	Limit int
}
