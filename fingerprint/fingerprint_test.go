package fingerprint

import (
	"testing"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVector(seed float64) []float64 {
	vec := make([]float64, interfaces.EmbeddingDim)
	for i := range vec {
		vec[i] = seed + float64(i)
	}
	return vec
}

func TestDerive_Deterministic(t *testing.T) {
	vec := testVector(0.5)

	fp1, err := Derive(vec, "")
	require.NoError(t, err)
	fp2, err := Derive(vec, "")
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1.String(), 64)
}

func TestDerive_SaltChangesDigest(t *testing.T) {
	vec := testVector(0.5)

	fpA, err := Derive(vec, "saltA")
	require.NoError(t, err)
	fpB, err := Derive(vec, "saltB")
	require.NoError(t, err)
	fpNone, err := Derive(vec, "")
	require.NoError(t, err)

	assert.NotEqual(t, fpA, fpB)
	assert.NotEqual(t, fpA, fpNone)
}

func TestDerive_ScaleInvariant(t *testing.T) {
	// L2 normalization makes the digest independent of vector magnitude.
	vec := testVector(1.0)
	scaled := make([]float64, len(vec))
	for i, v := range vec {
		scaled[i] = v * 2
	}

	fp1, err := Derive(vec, "")
	require.NoError(t, err)
	fp2, err := Derive(scaled, "")
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
}

func TestDerive_QuantizationAbsorbsNoise(t *testing.T) {
	// A basis vector with sub-quantization noise on another axis must map to
	// the same digest: 1e-9 quantizes to 0.0000 after normalization.
	clean := make([]float64, interfaces.EmbeddingDim)
	clean[0] = 1.0
	noisy := make([]float64, interfaces.EmbeddingDim)
	noisy[0] = 1.0
	noisy[1] = 1e-9

	fpClean, err := Derive(clean, "")
	require.NoError(t, err)
	fpNoisy, err := Derive(noisy, "")
	require.NoError(t, err)

	assert.Equal(t, fpClean, fpNoisy)
}

func TestDerive_DistinctVectorsDiffer(t *testing.T) {
	a := make([]float64, interfaces.EmbeddingDim)
	b := make([]float64, interfaces.EmbeddingDim)
	a[0] = 1.0
	b[1] = 1.0

	fpA, err := Derive(a, "")
	require.NoError(t, err)
	fpB, err := Derive(b, "")
	require.NoError(t, err)

	assert.NotEqual(t, fpA, fpB)
}

func TestDerive_InvalidDimension(t *testing.T) {
	_, err := Derive(make([]float64, 64), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrInvalidDimension)
}

func TestDerive_ZeroVector(t *testing.T) {
	_, err := Derive(make([]float64, interfaces.EmbeddingDim), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrValidation)
}
