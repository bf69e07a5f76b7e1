package mcp

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/entityhub/internal/caller"
)

// callerFrom returns the caller attached by the auth middleware.
func callerFrom(ctx context.Context) caller.Caller {
	c, _ := caller.FromContext(ctx)
	return c
}

// authMiddleware implements bearer token authentication as MCP middleware.
func authMiddleware(resolver caller.Resolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("%w: missing headers", caller.ErrUnauthorized)
			}

			token := caller.BearerToken(extra.Header.Get("Authorization"))
			if token == "" {
				return nil, fmt.Errorf("%w: missing bearer token", caller.ErrUnauthorized)
			}

			c, err := resolver.Resolve(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid bearer token", caller.ErrUnauthorized)
			}

			return next(caller.WithCaller(ctx, c), method, req)
		}
	}
}

// noAuthMiddleware attaches a fixed caller when auth is disabled.
func noAuthMiddleware(c caller.Caller) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(caller.WithCaller(ctx, c), method, req)
		}
	}
}
