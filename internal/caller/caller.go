// Package caller resolves who is making a request and carries that identity
// through the request context.
package caller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Caller identifies the owner of a request.
type Caller struct {
	UserID string
	Admin  bool
}

// Local is the caller attached when authentication is disabled.
var Local = Caller{Admin: true}

// Owner returns the user_id a list or stats call is scoped to. Admins get
// requested as-is; everyone else is confined to their own records.
func (c Caller) Owner(requested string) string {
	if c.Admin {
		return requested
	}
	return c.UserID
}

// Stamp sets user_id on a create payload. Admins keep a supplied user_id.
func (c Caller) Stamp(payload map[string]any) map[string]any {
	if c.UserID == "" {
		return payload
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if existing, ok := payload["user_id"].(string); c.Admin && ok && existing != "" {
		return payload
	}
	payload["user_id"] = c.UserID
	return payload
}

type callerKey struct{}

// WithCaller attaches c to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// FromContext returns the caller attached to ctx, if any.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// Resolver maps a bearer token to a caller.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Caller, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// HashToken returns the hex sha256 of token, the form API keys are configured in.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Key is one configured API key.
type Key struct {
	Hash   string `yaml:"hash"`
	UserID string `yaml:"user_id"`
	Admin  bool   `yaml:"admin"`
}

// KeyResolver resolves callers from a static set of hashed API keys.
type KeyResolver struct {
	keys map[string]Caller
}

// NewKeyResolver indexes keys by hash.
func NewKeyResolver(keys []Key) *KeyResolver {
	r := &KeyResolver{keys: make(map[string]Caller, len(keys))}
	for _, k := range keys {
		r.keys[strings.ToLower(k.Hash)] = Caller{UserID: k.UserID, Admin: k.Admin}
	}
	return r
}

// Resolve implements Resolver.
func (r *KeyResolver) Resolve(_ context.Context, token string) (Caller, error) {
	if token == "" {
		return Caller{}, ErrUnauthorized
	}
	c, ok := r.keys[HashToken(token)]
	if !ok || (c.UserID == "" && !c.Admin) {
		return Caller{}, ErrUnauthorized
	}
	return c, nil
}
