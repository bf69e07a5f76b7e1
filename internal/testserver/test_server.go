// Package testserver runs the full HTTP stack (REST and MCP) over a
// per-test SQLite database file for end-to-end tests.
package testserver

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/entityhub/internal/caller"
	"github.com/rpggio/entityhub/internal/entity"
	"github.com/rpggio/entityhub/internal/mcp"
	"github.com/rpggio/entityhub/internal/sqlite"
	"github.com/rpggio/entityhub/internal/transport"
)

// Default tokens registered by New.
const (
	UserToken  = "user-token"
	UserID     = "user1"
	AdminToken = "admin-token"
	AdminID    = "admin"
)

type TestServer struct {
	Server   *httptest.Server
	DB       *sqlite.DB
	Registry *entity.Registry
}

// New starts a server with the given collections and bearer auth enabled.
// UserToken resolves to UserID; AdminToken resolves to an admin caller.
func New(t *testing.T, collections ...string) *TestServer {
	t.Helper()

	if len(collections) == 0 {
		collections = entity.DefaultCollections
	}

	db, err := sqlite.New(filepath.Join(t.TempDir(), "entityhub.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	registry, err := entity.NewRegistry(sqlite.NewBackend(db), entity.Definitions(collections, nil), entity.Config{}, nil)
	require.NoError(t, err)

	resolver := caller.NewKeyResolver([]caller.Key{
		{Hash: caller.HashToken(UserToken), UserID: UserID},
		{Hash: caller.HashToken(AdminToken), UserID: AdminID, Admin: true},
	})

	router := transport.NewServer(registry, transport.Options{Auth: transport.AuthMiddleware(resolver)})
	mcpServer := mcp.NewServer(mcp.Config{
		Registry:      registry,
		Resolver:      resolver,
		AuthEnabled:   true,
		TransportMode: "http",
	})
	router.Handle("/mcp", sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return mcpServer }, nil))

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		DB:       db,
		Registry: registry,
	}

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return ts
}

// URL returns the server's base URL.
func (ts *TestServer) URL() string {
	return ts.Server.URL
}
