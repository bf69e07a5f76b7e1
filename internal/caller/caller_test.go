package caller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyResolver(t *testing.T) {
	ctx := context.Background()
	r := NewKeyResolver([]Key{
		{Hash: HashToken("user-token"), UserID: "u1"},
		{Hash: HashToken("admin-token"), UserID: "ops", Admin: true},
		{Hash: HashToken("orphan-token")},
	})

	c, err := r.Resolve(ctx, "user-token")
	require.NoError(t, err)
	require.Equal(t, Caller{UserID: "u1"}, c)

	c, err = r.Resolve(ctx, "admin-token")
	require.NoError(t, err)
	require.True(t, c.Admin)

	for _, token := range []string{"", "unknown", "orphan-token"} {
		_, err = r.Resolve(ctx, token)
		require.ErrorIs(t, err, ErrUnauthorized, token)
	}
}

func TestCaller_Owner(t *testing.T) {
	require.Equal(t, "u1", Caller{UserID: "u1"}.Owner("u2"))
	require.Equal(t, "u1", Caller{UserID: "u1"}.Owner(""))
	require.Equal(t, "u2", Caller{UserID: "ops", Admin: true}.Owner("u2"))
	require.Equal(t, "", Local.Owner(""))
}

func TestCaller_Stamp(t *testing.T) {
	require.Equal(t, map[string]any{"user_id": "u1"}, Caller{UserID: "u1"}.Stamp(nil))
	require.Equal(t, map[string]any{"user_id": "u1"}, Caller{UserID: "u1"}.Stamp(map[string]any{"user_id": "u2"}))
	require.Equal(t, map[string]any{"user_id": "u2"}, Caller{UserID: "ops", Admin: true}.Stamp(map[string]any{"user_id": "u2"}))
	require.Equal(t, map[string]any{"a": 1}, Local.Stamp(map[string]any{"a": 1}))
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithCaller(context.Background(), Caller{UserID: "u1"})
	c, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u1", c.UserID)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "", BearerToken(""))
	require.Equal(t, "", BearerToken("Bearer   "))
}
