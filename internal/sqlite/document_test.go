package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rpggio/entityhub/internal/entity"
	"github.com/rpggio/entityhub/internal/repository"
	"github.com/rpggio/entityhub/internal/repository/repotest"
	"github.com/stretchr/testify/require"
)

func TestDocumentRepository_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Backend {
		return NewBackend(NewTestDB(t))
	})
}

func TestDocumentRepository_FileConformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Backend {
		return NewBackend(newFileDB(t))
	})
}

func newFileDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "entityhub.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_ConcurrentCreatesOnFileDatabase(t *testing.T) {
	ctx := context.Background()
	store := entity.NewStore("referral", NewBackend(newFileDB(t)), entity.Config{}, nil)

	const workers, perWorker = 32, 20
	var wg sync.WaitGroup
	results := make(chan entity.Result, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				results <- store.Create(ctx, map[string]any{"name": "Acme Co"})
			}
		}()
	}
	wg.Wait()
	close(results)

	ids := make(map[string]bool, workers*perWorker)
	for res := range results {
		require.True(t, res.Success, res.Error)
		ids[res.Data.(entity.Record).ID()] = true
	}
	require.Len(t, ids, workers*perWorker)

	stats := store.Stats(ctx, "")
	require.True(t, stats.Success, stats.Error)
	require.EqualValues(t, workers*perWorker, stats.Data.(entity.Stats).TotalCount)
}

func TestStore_CreateMatchesGet(t *testing.T) {
	ctx := context.Background()
	store := entity.NewStore("referral", NewBackend(NewTestDB(t)), entity.Config{}, nil)

	res := store.Create(ctx, map[string]any{
		"a":    1,
		"big":  int64(1) << 60,
		"tags": []string{"x", "y"},
	})
	require.True(t, res.Success, res.Error)
	created := res.Data.(entity.Record)
	require.Equal(t, int64(1), created["a"])
	require.Equal(t, int64(1)<<60, created["big"])
	require.Equal(t, []any{"x", "y"}, created["tags"])

	got := store.Get(ctx, created.ID())
	require.True(t, got.Success, got.Error)
	require.Equal(t, created, got.Data)
}

func TestDocumentRepository_FilterOnBoolAndNumber(t *testing.T) {
	ctx := context.Background()
	coll, err := NewBackend(NewTestDB(t)).Collection(ctx, "widgets")
	require.NoError(t, err)

	require.NoError(t, coll.InsertOne(ctx, repository.Document{"id": "a", "featured": true, "rank": 1.0}))
	require.NoError(t, coll.InsertOne(ctx, repository.Document{"id": "b", "featured": false, "rank": 2.0}))
	require.NoError(t, coll.InsertOne(ctx, repository.Document{"id": "c"}))

	n, err := coll.Count(ctx, repository.Filter{"featured": true})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = coll.Count(ctx, repository.Filter{"rank": 2})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = coll.Count(ctx, repository.Filter{"featured": nil})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestDocumentRepository_RejectsBadFilter(t *testing.T) {
	ctx := context.Background()
	coll, err := NewBackend(NewTestDB(t)).Collection(ctx, "widgets")
	require.NoError(t, err)

	_, err = coll.FindOne(ctx, repository.Filter{`x") OR 1=1 --`: "y"})
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestDocumentRepository_ClosedDatabaseIsUnavailable(t *testing.T) {
	db, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	ctx := context.Background()
	coll, err := NewBackend(db).Collection(ctx, "widgets")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = coll.Count(ctx, nil)
	require.ErrorIs(t, err, repository.ErrUnavailable)
}
