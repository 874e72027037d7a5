package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snagtrack/snagtrack/store"
)

func TestGenerateAccessToken(t *testing.T) {
	first := GenerateAccessToken()
	second := GenerateAccessToken()

	assert.True(t, strings.HasPrefix(first, AccessTokenPrefix))
	assert.NotEqual(t, first, second)
	assert.Len(t, first, len(AccessTokenPrefix)+48)
}

func TestHashAccessToken(t *testing.T) {
	token := GenerateAccessToken()

	assert.Equal(t, HashAccessToken(token), HashAccessToken(token), "hash must be deterministic")
	assert.NotEqual(t, HashAccessToken(token), HashAccessToken(token+"x"))
	assert.NotContains(t, HashAccessToken(token), token)
	assert.Len(t, HashAccessToken(token), 64)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer snag_pat_abc", "snag_pat_abc", true},
		{"bearer snag_pat_abc", "snag_pat_abc", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		token, ok := extractBearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, "header %q", tt.header)
		assert.Equal(t, tt.want, token, "header %q", tt.header)
	}
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	require.Nil(t, GetUserFromContext(ctx))

	user := &store.User{ID: 1, Username: "tester"}
	ctx = SetUserInContext(ctx, user)
	assert.Same(t, user, GetUserFromContext(ctx))
}
