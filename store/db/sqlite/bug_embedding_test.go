package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled copy", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"dimension mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-5)
		})
	}
}

func TestFloat32BLOBRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.75, 0}

	blob := float32ArrayToBLOB(vec)
	require.Len(t, blob, len(vec)*4)

	got, err := blobToFloat32Array(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestBlobToFloat32ArrayRejectsTruncatedBlob(t *testing.T) {
	_, err := blobToFloat32Array([]byte{1, 2, 3})
	require.Error(t, err)
}
