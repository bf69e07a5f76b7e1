package transport

import (
	"net/http"

	"github.com/rpggio/entityhub/internal/caller"
)

// AuthMiddleware enforces bearer token authentication and attaches the
// resolved caller to the request context.
func AuthMiddleware(resolver caller.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := caller.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			c, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(caller.WithCaller(r.Context(), c)))
		})
	}
}

// LocalCaller attaches caller.Local to every request. Used when
// authentication is disabled.
func LocalCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(caller.WithCaller(r.Context(), caller.Local)))
	})
}

func callerFrom(r *http.Request) caller.Caller {
	if c, ok := caller.FromContext(r.Context()); ok {
		return c
	}
	return caller.Caller{}
}
