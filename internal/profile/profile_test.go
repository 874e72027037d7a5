package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileEmbeddingDefaults(t *testing.T) {
	clearEmbeddingEnvVars(t)

	profile := &Profile{}
	profile.FromEnv()

	assert.Equal(t, "openai", profile.EmbeddingProvider)
	assert.Equal(t, "text-embedding-3-small", profile.EmbeddingModel)
	assert.Equal(t, "https://api.openai.com/v1", profile.EmbeddingBaseURL)
	assert.Equal(t, 1536, profile.EmbeddingDimensions)
	assert.False(t, profile.IsEmbeddingEnabled())
}

func TestProfileEmbeddingFromEnv(t *testing.T) {
	clearEmbeddingEnvVars(t)
	t.Setenv("SNAGTRACK_EMBEDDING_PROVIDER", "siliconflow")
	t.Setenv("SNAGTRACK_EMBEDDING_API_KEY", "test-key")

	profile := &Profile{}
	profile.FromEnv()

	assert.Equal(t, "siliconflow", profile.EmbeddingProvider)
	assert.Equal(t, "BAAI/bge-m3", profile.EmbeddingModel)
	assert.Equal(t, "https://api.siliconflow.cn/v1", profile.EmbeddingBaseURL)
	assert.True(t, profile.IsEmbeddingEnabled())
}

func TestProfileEmbeddingUnknownProviderFallsBack(t *testing.T) {
	clearEmbeddingEnvVars(t)
	t.Setenv("SNAGTRACK_EMBEDDING_PROVIDER", "nonsense")

	profile := &Profile{}
	profile.FromEnv()

	assert.Equal(t, "openai", profile.EmbeddingProvider)
}

func TestProfileEmbedJobDefaults(t *testing.T) {
	clearEmbeddingEnvVars(t)

	profile := &Profile{}
	profile.FromEnv()

	assert.Equal(t, 60, profile.EmbedJobIntervalSeconds)
	assert.Equal(t, 32, profile.EmbedJobBatchSize)
	assert.Equal(t, 5, profile.EmbedJobRatePerSecond)
}

func TestProfileValidate(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		profile *Profile
		wantErr bool
	}{
		{"sqlite gets default dsn", &Profile{Mode: "dev", Driver: "sqlite", Data: dir}, false},
		{"postgres requires dsn", &Profile{Mode: "dev", Driver: "postgres", Data: dir}, true},
		{"postgres with dsn", &Profile{Mode: "dev", Driver: "postgres", Data: dir, DSN: "postgres://localhost/snagtrack"}, false},
		{"unsupported driver", &Profile{Mode: "dev", Driver: "mysql", Data: dir}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestProfileValidateNormalizesMode(t *testing.T) {
	dir := t.TempDir()
	profile := &Profile{Mode: "bogus", Driver: "sqlite", Data: dir}

	require.NoError(t, profile.Validate())
	assert.Equal(t, "demo", profile.Mode)
}

func clearEmbeddingEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SNAGTRACK_EMBEDDING_PROVIDER",
		"SNAGTRACK_EMBEDDING_MODEL",
		"SNAGTRACK_EMBEDDING_API_KEY",
		"SNAGTRACK_EMBEDDING_BASE_URL",
		"SNAGTRACK_EMBEDDING_DIMENSIONS",
		"SNAGTRACK_EMBED_JOB_INTERVAL_SECONDS",
		"SNAGTRACK_EMBED_JOB_BATCH_SIZE",
		"SNAGTRACK_EMBED_JOB_RATE_PER_SECOND",
	} {
		t.Setenv(key, "")
	}
}
