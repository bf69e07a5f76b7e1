// Package mongo implements repository.Backend on MongoDB. Each entity
// collection maps to one Mongo collection with a unique index on "id"; the
// server-assigned _id never leaves this package.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/rpggio/entityhub/internal/repository"
)

// Config holds connection settings for the Mongo backend.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

func (c *Config) validate() {
	if c.URI == "" {
		c.URI = "mongodb://localhost:27017"
	}
	if c.Database == "" {
		c.Database = "entityhub"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Backend hands out Mongo-backed collections.
type Backend struct {
	client *mongo.Client
	db     *mongo.Database

	mu      sync.Mutex
	indexed map[string]bool
}

// Connect opens a client and verifies the server is reachable.
func Connect(ctx context.Context, cfg Config) (*Backend, error) {
	cfg.validate()

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: connect mongo: %w", repository.ErrUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping mongo: %w", repository.ErrUnavailable, err)
	}

	return &Backend{
		client:  client,
		db:      client.Database(cfg.Database),
		indexed: make(map[string]bool),
	}, nil
}

// Collection returns the named collection, ensuring its id index once.
func (b *Backend) Collection(ctx context.Context, name string) (repository.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", repository.ErrInvalidInput)
	}
	coll := b.db.Collection(name)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.indexed[name] {
		_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: repository.IDField, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("entity_id_unique"),
		})
		if err != nil {
			return nil, classify(err, "create id index")
		}
		b.indexed[name] = true
	}

	return &Collection{coll: coll}, nil
}

// Ping checks the primary is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return classify(b.client.Ping(ctx, readpref.Primary()), "ping mongo")
}

// Close disconnects the client.
func (b *Backend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

// Collection implements repository.Collection on one Mongo collection.
type Collection struct {
	coll *mongo.Collection
}

var hideInternalID = bson.D{{Key: "_id", Value: 0}}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.coll.Name()
}

// InsertOne inserts doc; Mongo assigns the internal _id.
func (c *Collection) InsertOne(ctx context.Context, doc repository.Document) error {
	if doc.ID() == "" {
		return fmt.Errorf("%w: document has no string id", repository.ErrInvalidInput)
	}
	stored, err := repository.Normalize(doc)
	if err != nil {
		return err
	}
	_, err = c.coll.InsertOne(ctx, bson.M(stored))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", repository.ErrDuplicateKey, doc.ID())
	}
	return classify(err, "insert document")
}

// FindOne returns the first match in insertion order.
func (c *Collection) FindOne(ctx context.Context, filter repository.Filter) (repository.Document, error) {
	f, err := toFilter(filter)
	if err != nil {
		return nil, err
	}

	var raw bson.M
	err = c.coll.FindOne(ctx, f, options.FindOne().
		SetProjection(hideInternalID).
		SetSort(bson.D{{Key: "_id", Value: 1}})).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "find document")
	}
	return toDocument(raw)
}

// Find returns matches ordered by _id, which follows insertion order.
func (c *Collection) Find(ctx context.Context, filter repository.Filter, opts repository.FindOptions) ([]repository.Document, error) {
	f, err := toFilter(filter)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find().
		SetProjection(hideInternalID).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := c.coll.Find(ctx, f, findOpts)
	if err != nil {
		return nil, classify(err, "list documents")
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, classify(err, "decode documents")
	}

	docs := make([]repository.Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := toDocument(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count counts matching documents.
func (c *Collection) Count(ctx context.Context, filter repository.Filter) (int64, error) {
	f, err := toFilter(filter)
	if err != nil {
		return 0, err
	}
	n, err := c.coll.CountDocuments(ctx, f)
	if err != nil {
		return 0, classify(err, "count documents")
	}
	return n, nil
}

// UpdateOne applies patch with $set and returns the document after the write.
func (c *Collection) UpdateOne(ctx context.Context, filter repository.Filter, patch repository.Document) (repository.Document, error) {
	f, err := toFilter(filter)
	if err != nil {
		return nil, err
	}

	changes, err := repository.Normalize(patch)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	for k, v := range changes {
		if k == repository.IDField {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		return c.FindOne(ctx, filter)
	}

	var raw bson.M
	err = c.coll.FindOneAndUpdate(ctx, f, bson.M{"$set": set}, options.FindOneAndUpdate().
		SetProjection(hideInternalID).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "update document")
	}
	return toDocument(raw)
}

// DeleteOne removes the first match.
func (c *Collection) DeleteOne(ctx context.Context, filter repository.Filter) error {
	f, err := toFilter(filter)
	if err != nil {
		return err
	}
	res, err := c.coll.DeleteOne(ctx, f)
	if err != nil {
		return classify(err, "delete document")
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
