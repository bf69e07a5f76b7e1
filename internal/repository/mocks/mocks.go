package mocks

import (
	"context"

	"github.com/rpggio/entityhub/internal/repository"
	"github.com/stretchr/testify/mock"
)

// Collection is a mock for repository.Collection.
type Collection struct {
	mock.Mock
}

func (m *Collection) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *Collection) InsertOne(ctx context.Context, doc repository.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *Collection) FindOne(ctx context.Context, filter repository.Filter) (repository.Document, error) {
	args := m.Called(ctx, filter)
	if doc, ok := args.Get(0).(repository.Document); ok {
		return doc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Collection) Find(ctx context.Context, filter repository.Filter, opts repository.FindOptions) ([]repository.Document, error) {
	args := m.Called(ctx, filter, opts)
	if docs, ok := args.Get(0).([]repository.Document); ok {
		return docs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Collection) Count(ctx context.Context, filter repository.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Collection) UpdateOne(ctx context.Context, filter repository.Filter, patch repository.Document) (repository.Document, error) {
	args := m.Called(ctx, filter, patch)
	if doc, ok := args.Get(0).(repository.Document); ok {
		return doc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Collection) DeleteOne(ctx context.Context, filter repository.Filter) error {
	args := m.Called(ctx, filter)
	return args.Error(0)
}

// Backend is a mock for repository.Backend.
type Backend struct {
	mock.Mock
}

func (m *Backend) Collection(ctx context.Context, name string) (repository.Collection, error) {
	args := m.Called(ctx, name)
	if coll, ok := args.Get(0).(repository.Collection); ok {
		return coll, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Backend) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Backend) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
