package entity_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/entityhub/internal/entity"
	"github.com/rpggio/entityhub/internal/memory"
	"github.com/rpggio/entityhub/internal/repository"
	"github.com/rpggio/entityhub/internal/repository/mocks"
)

// stepClock advances by one millisecond on every reading.
type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newTestStore(t *testing.T) *entity.Store {
	t.Helper()
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return entity.NewStore("referral", memory.New(), entity.Config{Now: clock.Now}, nil)
}

func record(t *testing.T, res entity.Result) entity.Record {
	t.Helper()
	require.True(t, res.Success, res.Error)
	rec, ok := res.Data.(entity.Record)
	require.True(t, ok, "data is %T", res.Data)
	return rec
}

func page(t *testing.T, res entity.Result) entity.Page {
	t.Helper()
	require.True(t, res.Success, res.Error)
	p, ok := res.Data.(entity.Page)
	require.True(t, ok, "data is %T", res.Data)
	return p
}

func stats(t *testing.T, res entity.Result) entity.Stats {
	t.Helper()
	require.True(t, res.Success, res.Error)
	s, ok := res.Data.(entity.Stats)
	require.True(t, ok, "data is %T", res.Data)
	return s
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created := record(t, store.Create(ctx, map[string]any{
		"name":  "Acme Co",
		"seats": 12,
		"tags":  []any{"b2b"},
	}))
	require.NotEmpty(t, created.ID())
	require.Equal(t, entity.StatusActive, created["status"])
	require.Equal(t, created["created_at"], created["updated_at"])

	got := record(t, store.Get(ctx, created.ID()))
	require.Equal(t, created, got)
}

func TestStore_CreateOverwritesReservedFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created := record(t, store.Create(ctx, map[string]any{
		"id":         "caller-chosen",
		"created_at": "1999-01-01T00:00:00Z",
		"status":     "draft",
	}))
	require.NotEqual(t, "caller-chosen", created.ID())
	require.NotEqual(t, "1999-01-01T00:00:00Z", created["created_at"])
	require.Equal(t, "draft", created["status"])

	_, err := time.Parse(time.RFC3339Nano, created["created_at"].(string))
	require.NoError(t, err)
}

func TestStore_CreateDoesNotAliasPayload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	payload := map[string]any{"name": "Acme Co"}
	created := record(t, store.Create(ctx, payload))
	require.NotContains(t, payload, "id")

	created["name"] = "mutated"
	got := record(t, store.Get(ctx, created.ID()))
	require.Equal(t, "Acme Co", got["name"])
}

func TestStore_IDsAreUnique(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		rec := record(t, store.Create(ctx, map[string]any{"n": i}))
		require.False(t, seen[rec.ID()], "duplicate id %s", rec.ID())
		seen[rec.ID()] = true
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	res := store.Get(context.Background(), "nope")
	require.False(t, res.Success)
	require.Equal(t, entity.KindNotFound, res.Kind)
	require.Equal(t, "referral record not found", res.Error)
}

func TestStore_GetDoesNotCrossCollections(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	a := entity.NewStore("alpha", backend, entity.Config{}, nil)
	b := entity.NewStore("beta", backend, entity.Config{}, nil)

	rec := record(t, a.Create(ctx, map[string]any{"x": 1}))
	res := b.Get(ctx, rec.ID())
	require.Equal(t, entity.KindNotFound, res.Kind)
}

func TestStore_UpdateMerges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := record(t, store.Create(ctx, map[string]any{"a": 1, "b": 2}))
	updated := record(t, store.Update(ctx, rec.ID(), map[string]any{"b": 3}))
	require.Equal(t, int64(1), updated["a"])
	require.Equal(t, int64(3), updated["b"])

	got := record(t, store.Get(ctx, rec.ID()))
	require.Equal(t, updated, got)
}

func TestStore_UpdateBumpsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := record(t, store.Create(ctx, map[string]any{"a": 1}))
	updated := record(t, store.Update(ctx, rec.ID(), map[string]any{}))

	require.Greater(t, updated["updated_at"].(string), rec["updated_at"].(string))
	require.Equal(t, rec["created_at"], updated["created_at"])
}

func TestStore_UpdateIgnoresProtectedFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := record(t, store.Create(ctx, map[string]any{"a": 1}))
	updated := record(t, store.Update(ctx, rec.ID(), map[string]any{
		"id":         "other",
		"created_at": "1999-01-01T00:00:00Z",
		"updated_at": "1999-01-01T00:00:00Z",
	}))
	require.Equal(t, rec.ID(), updated.ID())
	require.Equal(t, rec["created_at"], updated["created_at"])
	require.Greater(t, updated["updated_at"].(string), rec["updated_at"].(string))
}

func TestStore_UpdateNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := entity.NewStore("referral", memory.New(), entity.Config{
		Now: func() time.Time { return now },
	}, nil)

	rec := record(t, store.Create(ctx, map[string]any{"a": 1}))
	now = now.Add(-time.Hour)
	updated := record(t, store.Update(ctx, rec.ID(), map[string]any{"a": 2}))
	require.GreaterOrEqual(t, updated["updated_at"].(string), updated["created_at"].(string))
}

func TestStore_UpdateMissingHasNoSideEffect(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	record(t, store.Create(ctx, map[string]any{"a": 1}))

	res := store.Update(ctx, "nope", map[string]any{"a": 2})
	require.Equal(t, entity.KindNotFound, res.Kind)

	p := page(t, store.List(ctx, entity.ListOptions{}))
	require.Equal(t, int64(1), p.Total)
	require.Equal(t, int64(1), p.Items[0]["a"])
}

func TestStore_DeleteIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := record(t, store.Create(ctx, map[string]any{"a": 1}))

	res := store.Delete(ctx, rec.ID())
	require.True(t, res.Success)
	require.Equal(t, "referral record deleted", res.Message)
	require.Equal(t, map[string]any{"id": rec.ID()}, res.Data)

	require.Equal(t, entity.KindNotFound, store.Get(ctx, rec.ID()).Kind)
	require.Equal(t, entity.KindNotFound, store.Delete(ctx, rec.ID()).Kind)
}

func TestStore_ListPaginationMatchesTotal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const k, l = 7, 3
	var ids []string
	for i := 0; i < k; i++ {
		ids = append(ids, record(t, store.Create(ctx, map[string]any{"n": i})).ID())
	}

	first := page(t, store.List(ctx, entity.ListOptions{Limit: l}))
	require.Len(t, first.Items, l)
	require.Equal(t, int64(k), first.Total)

	var visited []string
	for offset := 0; offset < k; offset += l {
		p := page(t, store.List(ctx, entity.ListOptions{Limit: l, Offset: offset}))
		require.Equal(t, l, p.Limit)
		require.Equal(t, offset, p.Offset)
		for _, rec := range p.Items {
			visited = append(visited, rec.ID())
		}
	}
	require.Equal(t, ids, visited)

	past := page(t, store.List(ctx, entity.ListOptions{Limit: l, Offset: 100}))
	require.Empty(t, past.Items)
	require.NotNil(t, past.Items)
	require.Equal(t, int64(k), past.Total)
}

func TestStore_ListBounds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p := page(t, store.List(ctx, entity.ListOptions{}))
	require.Equal(t, 50, p.Limit)

	p = page(t, store.List(ctx, entity.ListOptions{Limit: 1000, Offset: -4}))
	require.Equal(t, 100, p.Limit)
	require.Equal(t, 0, p.Offset)

	custom := entity.NewStore("referral", memory.New(), entity.Config{DefaultLimit: 5, MaxLimit: 10}, nil)
	p = page(t, custom.List(ctx, entity.ListOptions{}))
	require.Equal(t, 5, p.Limit)
	p = page(t, custom.List(ctx, entity.ListOptions{Limit: 11}))
	require.Equal(t, 10, p.Limit)
}

func TestStore_ListAndStatsFilterByUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record(t, store.Create(ctx, map[string]any{"user_id": "u1"}))
	record(t, store.Create(ctx, map[string]any{"user_id": "u1", "status": "archived"}))
	record(t, store.Create(ctx, map[string]any{"user_id": "u2"}))
	record(t, store.Create(ctx, map[string]any{}))

	p := page(t, store.List(ctx, entity.ListOptions{UserID: "u1"}))
	require.Equal(t, int64(2), p.Total)
	for _, rec := range p.Items {
		require.Equal(t, "u1", rec["user_id"])
	}

	all := page(t, store.List(ctx, entity.ListOptions{}))
	require.Equal(t, int64(4), all.Total)

	require.Equal(t, entity.Stats{TotalCount: 2, ActiveCount: 1}, stats(t, store.Stats(ctx, "u1")))
	require.Equal(t, entity.Stats{TotalCount: 4, ActiveCount: 3}, stats(t, store.Stats(ctx, "")))
}

func TestStore_StatsAllActive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.Equal(t, entity.Stats{}, stats(t, store.Stats(ctx, "")))
	for i := 0; i < 3; i++ {
		record(t, store.Create(ctx, map[string]any{"n": i}))
	}
	s := stats(t, store.Stats(ctx, ""))
	require.Equal(t, s.TotalCount, s.ActiveCount)
	require.Equal(t, int64(3), s.TotalCount)
}

func TestStore_AcmeScenario(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created := record(t, store.Create(ctx, map[string]any{"name": "Acme Co"}))
	require.NotEmpty(t, created.ID())
	require.Equal(t, "Acme Co", created["name"])
	require.Equal(t, "active", created["status"])

	updated := record(t, store.Update(ctx, created.ID(), map[string]any{"name": "Acme Corp"}))
	require.Equal(t, "Acme Corp", updated["name"])
	require.Equal(t, "active", updated["status"])

	require.True(t, store.Delete(ctx, created.ID()).Success)

	res := store.Get(ctx, created.ID())
	require.False(t, res.Success)
	require.Contains(t, res.Error, "not found")
}

func TestStore_Validator(t *testing.T) {
	ctx := context.Background()
	store := entity.NewStore("referral", memory.New(), entity.Config{
		Validator: entity.RequiredFields{"email"},
	}, nil)

	res := store.Create(ctx, map[string]any{"name": "x"})
	require.Equal(t, entity.KindInvalid, res.Kind)
	require.Contains(t, res.Error, "email is required")

	rec := record(t, store.Create(ctx, map[string]any{"email": "a@example.com"}))

	res = store.Update(ctx, rec.ID(), map[string]any{"email": " "})
	require.Equal(t, entity.KindInvalid, res.Kind)

	record(t, store.Update(ctx, rec.ID(), map[string]any{"name": "ok"}))
}

func TestStore_RejectsBadFieldNames(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	res := store.Create(ctx, map[string]any{"$where": "1"})
	require.Equal(t, entity.KindInvalid, res.Kind)

	res = store.Get(ctx, "")
	require.Equal(t, entity.KindInvalid, res.Kind)
}

func TestStore_ClosedBackendIsUnavailable(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	store := entity.NewStore("referral", backend, entity.Config{}, nil)
	rec := record(t, store.Create(ctx, map[string]any{"a": 1}))

	require.NoError(t, backend.Close(ctx))

	for _, res := range []entity.Result{
		store.Create(ctx, map[string]any{"a": 1}),
		store.Get(ctx, rec.ID()),
		store.List(ctx, entity.ListOptions{}),
		store.Update(ctx, rec.ID(), map[string]any{"a": 2}),
		store.Delete(ctx, rec.ID()),
		store.Stats(ctx, ""),
		store.Health(ctx),
	} {
		require.False(t, res.Success)
		require.Equal(t, entity.KindUnavailable, res.Kind)
		require.Contains(t, res.Error, "storage unavailable")
	}
}

func TestStore_AcquisitionFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	coll := &mocks.Collection{}
	backend := &mocks.Backend{}

	backend.On("Collection", mock.Anything, "referral").Return(nil, errors.New("connection refused")).Once()
	backend.On("Collection", mock.Anything, "referral").Return(coll, nil).Once()
	coll.On("FindOne", mock.Anything, repository.ByID("r1")).Return(repository.Document{"id": "r1"}, nil)

	store := entity.NewStore("referral", backend, entity.Config{}, nil)

	res := store.Get(ctx, "r1")
	require.Equal(t, entity.KindUnavailable, res.Kind)
	require.Equal(t, "storage unavailable: connection refused", res.Error)

	record(t, store.Get(ctx, "r1"))
	record(t, store.Get(ctx, "r1"))
	backend.AssertNumberOfCalls(t, "Collection", 2)
}

func TestStore_StorageFailure(t *testing.T) {
	ctx := context.Background()
	coll := &mocks.Collection{}
	backend := &mocks.Backend{}
	backend.On("Collection", mock.Anything, "referral").Return(coll, nil)
	coll.On("InsertOne", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	coll.On("Count", mock.Anything, mock.Anything).Return(int64(0), fmt.Errorf("%w: read", context.DeadlineExceeded))

	store := entity.NewStore("referral", backend, entity.Config{}, nil)

	res := store.Create(ctx, map[string]any{"a": 1})
	require.Equal(t, entity.KindStorage, res.Kind)
	require.Equal(t, "failed to create referral record: disk full", res.Error)

	res = store.Stats(ctx, "")
	require.Equal(t, entity.KindUnavailable, res.Kind)
}

func TestStore_OpTimeoutAppliesToBackendCalls(t *testing.T) {
	coll := &mocks.Collection{}
	backend := &mocks.Backend{}
	backend.On("Collection", mock.Anything, "referral").Return(coll, nil)
	coll.On("FindOne", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(repository.Document{"id": "r1"}, nil)

	store := entity.NewStore("referral", backend, entity.Config{OpTimeout: time.Second}, nil)
	record(t, store.Get(context.Background(), "r1"))
	coll.AssertExpectations(t)
}

func TestStore_Health(t *testing.T) {
	store := newTestStore(t)

	res := store.Health(context.Background())
	require.True(t, res.Success)
	require.Equal(t, map[string]any{"status": "healthy", "collection": "referral"}, res.Data)
}

func TestResult_JSON(t *testing.T) {
	store := newTestStore(t)

	data, err := json.Marshal(store.Get(context.Background(), "nope"))
	require.NoError(t, err)
	require.JSONEq(t, `{"success":false,"error":"referral record not found"}`, string(data))

	data, err = json.Marshal(store.Stats(context.Background(), ""))
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"data":{"total_count":0,"active_count":0}}`, string(data))
}

func TestStore_CanceledContextIsNotStorageFailure(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, res := range map[string]entity.Result{
		"create": store.Create(ctx, map[string]any{"a": 1}),
		"get":    store.Get(ctx, "r1"),
		"list":   store.List(ctx, entity.ListOptions{}),
		"stats":  store.Stats(ctx, ""),
	} {
		require.False(t, res.Success, name)
		require.Equal(t, entity.KindUnavailable, res.Kind, name)
		require.Contains(t, res.Error, "canceled", name)
	}
}

func TestStore_CreateNormalizesValues(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created := record(t, store.Create(ctx, map[string]any{
		"seats": 12,
		"ratio": float32(0.5),
		"tags":  []string{"b2b"},
	}))
	require.Equal(t, int64(12), created["seats"])
	require.Equal(t, 0.5, created["ratio"])
	require.Equal(t, []any{"b2b"}, created["tags"])

	res := store.Create(ctx, map[string]any{"score": math.NaN()})
	require.Equal(t, entity.KindInvalid, res.Kind)
}
