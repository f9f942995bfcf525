// Package fingerprint derives deterministic identity digests from biometric
// embedding vectors. The derivation is compatible with the client-side
// routine: L2-normalize, quantize to four decimal places, serialize
// canonically, hash with SHA-256.
//
// Quantization is a deliberate fuzzing step. Four decimal places are coarser
// than the floating-point noise between re-captures of the same sample but
// finer than inter-person variation.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
)

const precision = 4

// Derive computes the hex fingerprint of an embedding. An optional salt is
// bound into the digest; different salts yield unrelated fingerprints for
// the same vector. Fails with InvalidDimension unless the vector has
// exactly interfaces.EmbeddingDim components.
func Derive(vec []float64, salt string) (interfaces.Fingerprint, error) {
	if len(vec) != interfaces.EmbeddingDim {
		return "", fmt.Errorf("%w: got %d, want %d", interfaces.ErrInvalidDimension, len(vec), interfaces.EmbeddingDim)
	}

	normalized, err := Normalize(vec)
	if err != nil {
		return "", err
	}

	parts := make([]string, len(normalized))
	for i, v := range normalized {
		q := math.Round(v*1e4) / 1e4
		if q == 0 {
			q = 0 // collapse -0 so serialization stays canonical
		}
		parts[i] = strconv.FormatFloat(q, 'f', precision, 64)
	}

	serialized := strings.Join(parts, ",")
	if salt != "" {
		serialized += "|" + salt
	}

	sum := sha256.Sum256([]byte(serialized))
	return interfaces.Fingerprint(hex.EncodeToString(sum[:])), nil
}

// Normalize returns the unit-length copy of vec. A zero vector cannot be
// normalized and is rejected as invalid input.
func Normalize(vec []float64) ([]float64, error) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, fmt.Errorf("%w: zero vector", interfaces.ErrValidation)
	}

	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out, nil
}
