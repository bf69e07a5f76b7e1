package mongo

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/rpggio/entityhub/internal/repository"
)

// toFilter turns an equality filter into a bson filter with deterministic key order.
func toFilter(filter repository.Filter) (bson.D, error) {
	if err := repository.ValidateFilter(filter); err != nil {
		return nil, err
	}
	d := bson.D{}
	for _, k := range filter.Keys() {
		d = append(d, bson.E{Key: k, Value: filter[k]})
	}
	return d, nil
}

// toDocument converts decoded bson into a normalized document and drops _id.
func toDocument(raw bson.M) (repository.Document, error) {
	doc := make(repository.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc[k] = plain(v)
	}
	return repository.Normalize(doc)
}

func plain(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = plain(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	case bson.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case bson.ObjectID:
		return val.Hex()
	default:
		return v
	}
}

func classify(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: failed to %s: %w", repository.ErrUnavailable, action, err)
	default:
		return fmt.Errorf("failed to %s: %w", action, err)
	}
}
