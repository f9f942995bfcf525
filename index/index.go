// Package index implements in-memory cosine-similarity search over the
// registered embedding vectors. It backs both the Sybil check at
// registration time and identity verification searches.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nytdevansh/V-Face-sub001/fingerprint"
	"github.com/nytdevansh/V-Face-sub001/interfaces"
)

type entry struct {
	fp      interfaces.Fingerprint
	vec     []float64
	removed bool
}

// CosineIndex is a brute-force nearest-neighbor index. Vectors are
// unit-normalized on insertion, so cosine similarity reduces to a dot
// product. Entries keep their insertion order, which fixes the tie-break
// order for equal scores.
type CosineIndex struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
	byFP    map[interfaces.Fingerprint]int
}

// NewCosineIndex creates an empty index for vectors of the given dimension.
func NewCosineIndex(dim int) *CosineIndex {
	return &CosineIndex{
		dim:  dim,
		byFP: make(map[interfaces.Fingerprint]int),
	}
}

// Insert adds a vector under the given fingerprint. Re-inserting a
// fingerprint that was removed reactivates it under a new insertion slot.
func (idx *CosineIndex) Insert(fp interfaces.Fingerprint, vec []float64) error {
	if len(vec) != idx.dim {
		return fmt.Errorf("%w: got %d, want %d", interfaces.ErrInvalidDimension, len(vec), idx.dim)
	}

	normalized, err := fingerprint.Normalize(vec)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if pos, ok := idx.byFP[fp]; ok {
		idx.entries[pos].vec = normalized
		return nil
	}

	idx.entries = append(idx.entries, entry{fp: fp, vec: normalized})
	idx.byFP[fp] = len(idx.entries) - 1
	return nil
}

// QueryTopK returns up to k matches with similarity >= threshold, ordered
// by descending score. Ties keep insertion order, earliest first, so
// results are deterministic.
func (idx *CosineIndex) QueryTopK(vec []float64, k int, threshold float64) ([]interfaces.Match, error) {
	if len(vec) != idx.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", interfaces.ErrInvalidDimension, len(vec), idx.dim)
	}

	query, err := fingerprint.Normalize(vec)
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := make([]interfaces.Match, 0)
	for _, e := range idx.entries {
		if e.removed {
			continue
		}
		score := dot(query, e.vec)
		if score >= threshold {
			matches = append(matches, interfaces.Match{Fingerprint: e.fp, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Remove excludes a fingerprint from future queries. The slot is kept so
// the insertion order of remaining entries is unchanged.
func (idx *CosineIndex) Remove(fp interfaces.Fingerprint) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if pos, ok := idx.byFP[fp]; ok {
		idx.entries[pos].removed = true
		delete(idx.byFP, fp)
	}
}

// Size reports the number of active vectors.
func (idx *CosineIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byFP)
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
