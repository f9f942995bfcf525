package interfaces

import (
	"context"
	"time"
)

// SimilarityIndex performs nearest-neighbor search over unit-normalized
// embedding vectors. It holds the only decrypted vectors in the system and
// is rebuildable from the identity store.
type SimilarityIndex interface {
	// Insert adds a vector under the given fingerprint. Fails with
	// ErrInvalidDimension if the vector length differs from the configured
	// dimensionality.
	Insert(fp Fingerprint, vec []float64) error

	// QueryTopK returns up to k entries with cosine similarity >= threshold,
	// ordered by descending similarity. Ties are broken by insertion order,
	// earliest first.
	QueryTopK(vec []float64, k int, threshold float64) ([]Match, error)

	// Remove excludes a fingerprint's vector from future queries.
	Remove(fp Fingerprint)

	// Size reports the number of active vectors.
	Size() int
}

// Ledger is the append-only, tamper-evident log of lifecycle events.
// Append is serialized; reads are concurrent.
type Ledger interface {
	// Append links a new entry to the current tail and returns it.
	Append(payload EventPayload) (ChainEntry, error)

	// Entries returns a snapshot copy of the whole chain.
	Entries() []ChainEntry

	// Length returns the number of entries.
	Length() int

	// Verify recomputes every hash and checks linkage from index 0.
	// It returns the number of entries checked; on mismatch the error wraps
	// ErrChainIntegrity and names the first failing index.
	Verify() (int, error)
}

// IdentityStore persists identity records keyed by fingerprint.
type IdentityStore interface {
	Put(rec IdentityRecord) error
	Get(fp Fingerprint) (IdentityRecord, bool, error)

	// Update replaces an existing record (used only to flip the revoked flag).
	Update(rec IdentityRecord) error

	// All returns every stored record, used to rebuild the similarity index.
	All() ([]IdentityRecord, error)
}

// ConsentStore holds pending consent requests for their TTL.
type ConsentStore interface {
	Put(ctx context.Context, req ConsentRequest, ttl time.Duration) error
	Get(ctx context.Context, id string) (ConsentRequest, bool, error)

	// Consume atomically retrieves and removes a request, enforcing
	// single-use approval.
	Consume(ctx context.Context, id string) (ConsentRequest, bool, error)
}

// SignatureVerifier checks a signature over a message against an identity's
// stored public key. It is a capability the registry depends on; concrete
// implementations exist per key scheme.
type SignatureVerifier interface {
	Verify(publicKey string, message []byte, signature []byte) error
}

// EmbeddingCodec seals and opens embedding vectors using the registry-held
// symmetric key. Envelope format: v1:<iv-hex>:<tag-hex>:<ciphertext-hex>.
type EmbeddingCodec interface {
	Encrypt(vec []float64) (string, error)
	Decrypt(envelope string) ([]float64, error)
}
