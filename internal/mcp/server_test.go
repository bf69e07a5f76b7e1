package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/entityhub/internal/caller"
	"github.com/rpggio/entityhub/internal/entity"
	"github.com/rpggio/entityhub/internal/memory"
)

type envelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
	Error   string         `json:"error"`
}

func newRegistry(t *testing.T) *entity.Registry {
	t.Helper()
	reg, err := entity.NewRegistry(memory.New(), entity.Definitions([]string{"referral", "financial"}, nil), entity.Config{}, nil)
	require.NoError(t, err)
	return reg
}

func connect(t *testing.T, server *sdkmcp.Server) *sdkmcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *sdkmcp.ClientSession, name string, args map[string]any) (*sdkmcp.CallToolResult, envelope) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return res, env
}

func TestTools_ListTools(t *testing.T) {
	cs := connect(t, NewServer(Config{Registry: newRegistry(t)}))

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{
		"list_collections", "create_record", "get_record", "list_records",
		"update_record", "delete_record", "get_stats",
	}, names)
}

func TestTools_RecordLifecycle(t *testing.T) {
	cs := connect(t, NewServer(Config{Registry: newRegistry(t)}))

	_, env := call(t, cs, "list_collections", map[string]any{})
	require.True(t, env.Success)
	require.Equal(t, []any{"financial", "referral"}, env.Data["collections"])

	res, env := call(t, cs, "create_record", map[string]any{
		"collection": "referral",
		"payload":    map[string]any{"name": "Acme Co"},
	})
	require.False(t, res.IsError)
	require.True(t, env.Success)
	id := env.Data["id"].(string)
	require.Equal(t, "active", env.Data["status"])

	_, env = call(t, cs, "update_record", map[string]any{
		"collection": "referral",
		"id":         id,
		"patch":      map[string]any{"name": "Acme Corp"},
	})
	require.True(t, env.Success)
	require.Equal(t, "Acme Corp", env.Data["name"])
	require.Equal(t, "active", env.Data["status"])

	_, env = call(t, cs, "list_records", map[string]any{"collection": "referral", "limit": 5})
	require.True(t, env.Success)
	require.Equal(t, float64(1), env.Data["total"])
	require.Equal(t, float64(5), env.Data["limit"])

	_, env = call(t, cs, "get_stats", map[string]any{"collection": "referral"})
	require.Equal(t, float64(1), env.Data["active_count"])

	_, env = call(t, cs, "delete_record", map[string]any{"collection": "referral", "id": id})
	require.True(t, env.Success)
	require.Equal(t, "referral record deleted", env.Message)

	res, env = call(t, cs, "get_record", map[string]any{"collection": "referral", "id": id})
	require.True(t, res.IsError)
	require.False(t, env.Success)
	require.Equal(t, "referral record not found", env.Error)

	text := res.Content[0].(*sdkmcp.TextContent).Text
	var apiErr APIError
	require.NoError(t, json.Unmarshal([]byte(text), &apiErr))
	require.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestTools_UnknownCollection(t *testing.T) {
	cs := connect(t, NewServer(Config{Registry: newRegistry(t)}))

	res, env := call(t, cs, "get_record", map[string]any{"collection": "nope", "id": "x"})
	require.True(t, res.IsError)
	require.Contains(t, env.Error, "unknown collection")
}

func TestDocResource(t *testing.T) {
	cs := connect(t, NewServer(Config{Registry: newRegistry(t)}))

	res, err := cs.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: "entityhub://docs/envelope"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.Contains(t, res.Contents[0].Text, "Result envelope")
}

type headerTransport struct {
	token string
	base  http.RoundTripper
}

func (h headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+h.token)
	return h.base.RoundTrip(req)
}

func connectHTTP(t *testing.T, server *sdkmcp.Server, token string) *sdkmcp.ClientSession {
	t.Helper()
	handler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return server }, nil)
	httpServer := httptest.NewServer(handler)
	t.Cleanup(httpServer.Close)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(context.Background(), &sdkmcp.StreamableClientTransport{
		Endpoint:   httpServer.URL,
		HTTPClient: &http.Client{Transport: headerTransport{token: token, base: http.DefaultTransport}},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestAuth_ScopesCallerOverHTTP(t *testing.T) {
	resolver := caller.NewKeyResolver([]caller.Key{
		{Hash: caller.HashToken("alice"), UserID: "alice"},
	})
	server := NewServer(Config{
		Registry:      newRegistry(t),
		Resolver:      resolver,
		AuthEnabled:   true,
		TransportMode: "http",
	})

	cs := connectHTTP(t, server, "alice")
	_, env := call(t, cs, "create_record", map[string]any{
		"collection": "referral",
		"payload":    map[string]any{"user_id": "mallory"},
	})
	require.True(t, env.Success)
	require.Equal(t, "alice", env.Data["user_id"])

	_, env = call(t, cs, "list_records", map[string]any{"collection": "referral", "user_id": "mallory"})
	require.Equal(t, float64(1), env.Data["total"])

	bad := connectHTTP(t, server, "wrong")
	_, err := bad.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      "list_collections",
		Arguments: map[string]any{},
	})
	require.Error(t, err)
}
