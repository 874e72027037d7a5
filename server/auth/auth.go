// Package auth provides bearer token authentication for the HTTP API.
//
// Tokens are opaque random strings issued at signin. Only the SHA-256 hash of
// a token is persisted; the full token is shown to the client exactly once.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/snagtrack/snagtrack/store"
)

// AccessTokenPrefix identifies snagtrack access tokens in logs and secret
// scanners without revealing anything about the token itself.
const AccessTokenPrefix = "snag_pat_"

type contextKey int

const userContextKey contextKey = iota

// SetUserInContext returns a child context carrying the authenticated user.
func SetUserInContext(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext returns the authenticated user, or nil for an
// unauthenticated request.
func GetUserFromContext(ctx context.Context) *store.User {
	user, _ := ctx.Value(userContextKey).(*store.User)
	return user
}

// GenerateAccessToken returns a new random access token.
func GenerateAccessToken() string {
	buf := make([]byte, 24)
	// rand.Read never fails on supported platforms.
	_, _ = rand.Read(buf)
	return AccessTokenPrefix + hex.EncodeToString(buf)
}

// HashAccessToken returns the hex SHA-256 digest stored in place of the token.
func HashAccessToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Authenticator resolves bearer credentials against the store.
type Authenticator struct {
	store *store.Store
}

func NewAuthenticator(store *store.Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate resolves an Authorization header value to a user. Returns nil
// when the header is missing, malformed, or the token is unknown; the store
// error is returned only for lookup failures.
func (a *Authenticator) Authenticate(ctx context.Context, authHeader string) (*store.User, error) {
	token, ok := extractBearerToken(authHeader)
	if !ok {
		return nil, nil
	}
	return a.store.GetUserByAccessToken(ctx, HashAccessToken(token))
}

func extractBearerToken(authHeader string) (string, bool) {
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
