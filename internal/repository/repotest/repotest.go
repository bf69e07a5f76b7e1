// Package repotest holds the behaviour every repository.Backend must share.
// Backend packages call Run from their own tests.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rpggio/entityhub/internal/repository"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) repository.Backend

// Run exercises the repository.Collection contract against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, coll repository.Collection)
	}{
		{"InsertAndFindOne", testInsertAndFindOne},
		{"DuplicateID", testDuplicateID},
		{"FindOneMissing", testFindOneMissing},
		{"FindPaginatesInInsertionOrder", testFindPaginates},
		{"FilterAndCount", testFilterAndCount},
		{"NumbersRoundTrip", testNumbersRoundTrip},
		{"UpdateMerges", testUpdateMerges},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteOne", testDeleteOne},
		{"ConcurrentInserts", testConcurrentInserts},
		{"ConcurrentUpdatesLastWriteWins", testConcurrentUpdates},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := newBackend(t)
			coll, err := backend.Collection(context.Background(), "widgets")
			require.NoError(t, err)
			tc.fn(t, coll)
		})
	}

	t.Run("CollectionsAreIsolated", func(t *testing.T) {
		ctx := context.Background()
		backend := newBackend(t)
		a, err := backend.Collection(ctx, "alpha")
		require.NoError(t, err)
		b, err := backend.Collection(ctx, "beta")
		require.NoError(t, err)

		require.NoError(t, a.InsertOne(ctx, repository.Document{"id": "shared", "name": "in alpha"}))

		_, err = b.FindOne(ctx, repository.ByID("shared"))
		require.ErrorIs(t, err, repository.ErrNotFound)
		n, err := b.Count(ctx, nil)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newBackend(t).Ping(context.Background()))
	})
}

func testInsertAndFindOne(t *testing.T, coll repository.Collection) {
	ctx := context.Background()
	doc := repository.Document{
		"id":     "r1",
		"name":   "Acme Co",
		"score":  4.5,
		"active": true,
		"tags":   []any{"a", "b"},
		"meta":   map[string]any{"tier": "gold"},
	}
	require.NoError(t, coll.InsertOne(ctx, doc))

	got, err := coll.FindOne(ctx, repository.ByID("r1"))
	require.NoError(t, err)
	require.Equal(t, doc, got)
	require.NotContains(t, got, "_id")
}

func testDuplicateID(t *testing.T, coll repository.Collection) {
	ctx := context.Background()
	require.NoError(t, coll.InsertOne(ctx, repository.Document{"id": "r1"}))
	err := coll.InsertOne(ctx, repository.Document{"id": "r1", "name": "again"})
	require.ErrorIs(t, err, repository.ErrDuplicateKey)
}

func testFindOneMissing(t *testing.T, coll repository.Collection) {
	_, err := coll.FindOne(context.Background(), repository.ByID("nope"))
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testFindPaginates(t *testing.T, coll repository.Collection) {
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, coll.InsertOne(ctx, repository.Document{
			"id":         fmt.Sprintf("r%d", i),
			"created_at": fmt.Sprintf("2026-01-01T00:00:0%d.000000Z", i),
		}))
	}

	var seen []string
	for offset := 0; ; offset += 3 {
		page, err := coll.Find(ctx, nil, repository.FindOptions{Skip: offset, Limit: 3})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		require.LessOrEqual(t, len(page), 3)
		for _, doc := range page {
			seen = append(seen, doc.ID())
		}
	}
	require.Equal(t, []string{"r0", "r1", "r2", "r3", "r4", "r5", "r6"}, seen)

	all, err := coll.Find(ctx, nil, repository.FindOptions{})
	require.NoError(t, err)
	require.Len(t, all, 7)

	tail, err := coll.Find(ctx, nil, repository.FindOptions{Skip: 5})
	require.NoError(t, err)
	require.Len(t, tail, 2)
}

func testFilterAndCount(t *testing.T, coll repository.Collection) {
	ctx := context.Background()
	docs := []repository.Document{
		{"id": "a", "user_id": "u1", "status": "active", "created_at": "2026-01-01T00:00:01.000000Z"},
		{"id": "b", "user_id": "u1", "status": "archived", "created_at": "2026-01-01T00:00:02.000000Z"},
		{"id": "c", "user_id": "u2", "status": "active", "created_at": "2026-01-01T00:00:03.000000Z"},
	}
	for _, doc := range docs {
		require.NoError(t, coll.InsertOne(ctx, doc))
	}

	n, err := coll.Count(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	n, err = coll.Count(ctx, repository.Filter{"user_id": "u1"})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = coll.Count(ctx, repository.Filter{"user_id": "u1", "status": "active"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	found, err := coll.Find(ctx, repository.Filter{"status": "active"}, repository.FindOptions{})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, "a", found[0].ID())
	require.Equal(t, "c", found[1].ID())
}

func testNumbersRoundTrip(t *testing.T, coll repository.Collection) {
	ctx := context.Background()
	require.NoError(t, coll.InsertOne(ctx, repository.Document{
		"id":    "r1",
		"seats": 12,
		"big":   int64(1) << 60,
		"ratio": 0.25,
		"whole": 3.0,
		"meta":  map[string]any{"level": int32(2)},
		"list":  []any{1, 2.5},
	}))

	want := repository.Document{
		"id":    "r1",
		"seats": int64(12),
		"big":   int64(1) << 60,
		"ratio": 0.25,
		"whole": int64(3),
		"meta":  map[string]any{"level": int64(2)},
		"list":  []any{int64(1), 2.5},
	}
	got, err := coll.FindOne(ctx, repository.ByID("r1"))
	require.NoError(t, err)
	require.Equal(t, want, got)

	all, err := coll.Find(ctx, nil, repository.FindOptions{})
	require.NoError(t, err)
	require.Equal(t, []repository.Document{want}, all)
}

func testUpdateMerges(t *testing.T, coll repository.Collection) {
	ctx := context.Background()
	require.NoError(t, coll.InsertOne(ctx, repository.Document{"id": "r1", "a": 1, "b": 2}))

	updated, err := coll.UpdateOne(ctx, repository.ByID("r1"), repository.Document{"b": 3, "id": "ignored"})
	require.NoError(t, err)
	require.Equal(t, repository.Document{"id": "r1", "a": int64(1), "b": int64(3)}, updated)

	stored, err := coll.FindOne(ctx, repository.ByID("r1"))
	require.NoError(t, err)
	require.Equal(t, updated, stored)
}

func testUpdateMissing(t *testing.T, coll repository.Collection) {
	_, err := coll.UpdateOne(context.Background(), repository.ByID("nope"), repository.Document{"a": "b"})
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testDeleteOne(t *testing.T, coll repository.Collection) {
	ctx := context.Background()
	require.NoError(t, coll.InsertOne(ctx, repository.Document{"id": "r1"}))
	require.NoError(t, coll.InsertOne(ctx, repository.Document{"id": "r2"}))

	require.NoError(t, coll.DeleteOne(ctx, repository.ByID("r1")))
	require.ErrorIs(t, coll.DeleteOne(ctx, repository.ByID("r1")), repository.ErrNotFound)

	_, err := coll.FindOne(ctx, repository.ByID("r1"))
	require.ErrorIs(t, err, repository.ErrNotFound)

	n, err := coll.Count(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func testConcurrentInserts(t *testing.T, coll repository.Collection) {
	ctx := context.Background()
	const workers, perWorker = 16, 10

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				errs <- coll.InsertOne(ctx, repository.Document{
					"id":         fmt.Sprintf("w%02d-%02d", w, i),
					"created_at": fmt.Sprintf("2026-01-01T00:00:00.%09dZ", w*perWorker+i),
				})
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := coll.Count(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, workers*perWorker, n)

	all, err := coll.Find(ctx, nil, repository.FindOptions{})
	require.NoError(t, err)
	ids := make(map[string]bool, len(all))
	for _, doc := range all {
		ids[doc.ID()] = true
	}
	require.Len(t, ids, workers*perWorker)
}

func testConcurrentUpdates(t *testing.T, coll repository.Collection) {
	ctx := context.Background()
	require.NoError(t, coll.InsertOne(ctx, repository.Document{"id": "r1", "writer": -1, "copy": -1}))

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			_, err := coll.UpdateOne(ctx, repository.ByID("r1"), repository.Document{"writer": w, "copy": w})
			errs <- err
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := coll.FindOne(ctx, repository.ByID("r1"))
	require.NoError(t, err)
	writer, ok := got["writer"].(int64)
	require.True(t, ok, "writer is %T", got["writer"])
	require.GreaterOrEqual(t, writer, int64(0))
	require.Less(t, writer, int64(writers))
	require.Equal(t, got["writer"], got["copy"], "fields from different writes were mixed")
}
