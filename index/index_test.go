package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
)

func basis(dim, axis int) []float64 {
	v := make([]float64, dim)
	v[axis] = 1.0
	return v
}

func TestInsert_DimensionMismatch(t *testing.T) {
	idx := NewCosineIndex(4)

	err := idx.Insert("fp1", []float64{1, 2})
	assert.ErrorIs(t, err, interfaces.ErrInvalidDimension)

	_, err = idx.QueryTopK([]float64{1, 2}, 1, 0.5)
	assert.ErrorIs(t, err, interfaces.ErrInvalidDimension)
}

func TestQueryTopK_ThresholdAndOrder(t *testing.T) {
	idx := NewCosineIndex(3)

	require.NoError(t, idx.Insert("exact", []float64{1, 0, 0}))
	require.NoError(t, idx.Insert("close", []float64{1, 0.2, 0}))
	require.NoError(t, idx.Insert("orthogonal", []float64{0, 0, 1}))

	matches, err := idx.QueryTopK([]float64{1, 0, 0}, 10, 0.8)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, interfaces.Fingerprint("exact"), matches[0].Fingerprint)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, interfaces.Fingerprint("close"), matches[1].Fingerprint)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestQueryTopK_Limit(t *testing.T) {
	idx := NewCosineIndex(2)

	require.NoError(t, idx.Insert("a", []float64{1, 0}))
	require.NoError(t, idx.Insert("b", []float64{1, 0.01}))
	require.NoError(t, idx.Insert("c", []float64{1, 0.02}))

	matches, err := idx.QueryTopK([]float64{1, 0}, 2, 0.5)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestQueryTopK_TiesKeepInsertionOrder(t *testing.T) {
	idx := NewCosineIndex(2)

	// Identical vectors score identically; the earliest insertion must win.
	require.NoError(t, idx.Insert("first", []float64{3, 0}))
	require.NoError(t, idx.Insert("second", []float64{1, 0}))

	matches, err := idx.QueryTopK([]float64{1, 0}, 10, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, interfaces.Fingerprint("first"), matches[0].Fingerprint)
	assert.Equal(t, interfaces.Fingerprint("second"), matches[1].Fingerprint)
}

func TestRemove_ExcludesFromQueries(t *testing.T) {
	idx := NewCosineIndex(2)

	require.NoError(t, idx.Insert("gone", []float64{1, 0}))
	require.NoError(t, idx.Insert("kept", []float64{1, 0}))
	assert.Equal(t, 2, idx.Size())

	idx.Remove("gone")
	assert.Equal(t, 1, idx.Size())

	matches, err := idx.QueryTopK([]float64{1, 0}, 10, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, interfaces.Fingerprint("kept"), matches[0].Fingerprint)
}

func TestRemove_Unknown(t *testing.T) {
	idx := NewCosineIndex(2)
	idx.Remove("missing") // no-op
	assert.Equal(t, 0, idx.Size())
}

func TestQueryTopK_NormalizesInput(t *testing.T) {
	dim := interfaces.EmbeddingDim
	idx := NewCosineIndex(dim)

	require.NoError(t, idx.Insert("fp", basis(dim, 0)))

	scaled := make([]float64, dim)
	scaled[0] = 42.0
	matches, err := idx.QueryTopK(scaled, 1, 0.99)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}
