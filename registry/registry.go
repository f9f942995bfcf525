// Package registry implements the identity registry: registration with
// Sybil-resistant deduplication, lookups, signature-authorized revocation
// and similarity search. It orchestrates the embedding codec, similarity
// index, hash-chain ledger and identity store; per-fingerprint state moves
// absent -> active -> revoked, and revoked is terminal.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
)

// Config carries the registry's pinned policy values.
type Config struct {
	// Dim is the accepted embedding dimensionality.
	Dim int

	// SybilThreshold is the cosine similarity at or above which a new
	// registration is rejected as a duplicate biometric source. It is pinned
	// server-side; callers cannot influence it.
	SybilThreshold float64

	// MaxSearchResults caps the number of matches a search returns.
	MaxSearchResults int

	// ChallengeWindow bounds how far a revocation challenge timestamp may
	// deviate from server time in either direction.
	ChallengeWindow time.Duration
}

// DefaultConfig returns the production policy values.
func DefaultConfig() Config {
	return Config{
		Dim:              interfaces.EmbeddingDim,
		SybilThreshold:   0.85,
		MaxSearchResults: 10,
		ChallengeWindow:  5 * time.Minute,
	}
}

// Registry is the orchestrating service. The write lock covers the whole
// check-then-act sequence of registration (Sybil query, record store, index
// insert, ledger append), so two concurrent registrations of near-duplicate
// embeddings cannot both pass the check.
type Registry struct {
	cfg      Config
	store    interfaces.IdentityStore
	index    interfaces.SimilarityIndex
	chain    interfaces.Ledger
	codec    interfaces.EmbeddingCodec
	verifier interfaces.SignatureVerifier
	log      *slog.Logger

	now func() time.Time
	mu  sync.Mutex
}

// New wires a registry from its collaborators.
func New(cfg Config, store interfaces.IdentityStore, index interfaces.SimilarityIndex, chain interfaces.Ledger, codec interfaces.EmbeddingCodec, verifier interfaces.SignatureVerifier, log *slog.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		store:    store,
		index:    index,
		chain:    chain,
		codec:    codec,
		verifier: verifier,
		log:      log,
		now:      time.Now,
	}
}

// WithNow overrides the registry clock. Used by tests to drive the
// challenge acceptance window.
func (r *Registry) WithNow(now func() time.Time) *Registry {
	r.now = now
	return r
}

// RegisterResult is returned on successful registration. Commitment is the
// chain entry's hash: a public, non-reversible proof the event was recorded.
type RegisterResult struct {
	Commitment string
	ChainIndex int
}

// Register admits a new identity. Fails with AlreadyRegistered if the
// fingerprint is active, AlreadyRevoked if it was revoked (revocation is
// terminal), with codec errors if the envelope cannot be
// opened, and with SimilarIdentityExists if any active embedding scores at
// or above the Sybil threshold. On any failure no state is committed and no
// ledger entry is appended.
func (r *Registry) Register(fp, publicKey, encryptedEmbedding string) (RegisterResult, error) {
	parsed, err := interfaces.ParseFingerprint(fp)
	if err != nil {
		return RegisterResult{}, err
	}
	if publicKey == "" {
		return RegisterResult{}, fmt.Errorf("%w: public key is required", interfaces.ErrValidation)
	}

	vec, err := r.codec.Decrypt(encryptedEmbedding)
	if err != nil {
		return RegisterResult{}, err
	}
	if len(vec) != r.cfg.Dim {
		return RegisterResult{}, fmt.Errorf("%w: got %d, want %d", interfaces.ErrInvalidDimension, len(vec), r.cfg.Dim)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok, err := r.store.Get(parsed); err != nil {
		return RegisterResult{}, fmt.Errorf("record lookup failed: %w", err)
	} else if ok {
		// Revoked is terminal; a fingerprint never returns to active.
		if rec.Revoked {
			return RegisterResult{}, fmt.Errorf("%w: %s", interfaces.ErrAlreadyRevoked, parsed)
		}
		return RegisterResult{}, fmt.Errorf("%w: %s", interfaces.ErrAlreadyRegistered, parsed)
	}

	matches, err := r.index.QueryTopK(vec, 1, r.cfg.SybilThreshold)
	if err != nil {
		return RegisterResult{}, err
	}
	if len(matches) > 0 {
		r.log.Info("Registration rejected by similarity check",
			slog.String("fingerprint", parsed.String()),
			slog.Float64("score", matches[0].Score))
		return RegisterResult{}, interfaces.ErrSimilarIdentityExists
	}

	createdAt := r.now()

	// Ledger first: the chain is the source of truth for what happened.
	// Store and index failures after a successful append surface loudly as
	// internal errors and leave an auditable orphan entry rather than a
	// silently unrecorded identity.
	entry, err := r.chain.Append(interfaces.EventPayload{
		Fingerprint: parsed,
		Event:       interfaces.EventRegister,
		Timestamp:   createdAt.Unix(),
	})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("ledger append failed: %w", err)
	}

	rec := interfaces.IdentityRecord{
		Fingerprint:        parsed,
		PublicKey:          publicKey,
		EncryptedEmbedding: encryptedEmbedding,
		CreatedAt:          createdAt.UTC(),
		ChainIndex:         entry.Index,
	}
	if err := r.store.Put(rec); err != nil {
		r.log.Error("Record store failed after ledger append", "err", err,
			slog.String("fingerprint", parsed.String()),
			slog.Int("chainIndex", entry.Index))
		return RegisterResult{}, fmt.Errorf("record store failed: %w", err)
	}

	if err := r.index.Insert(parsed, vec); err != nil {
		// Dimensionality was validated above; this cannot fail for a vector
		// that passed the checks.
		r.log.Error("Index insert failed after ledger append", "err", err,
			slog.String("fingerprint", parsed.String()))
		return RegisterResult{}, fmt.Errorf("index insert failed: %w", err)
	}

	r.log.Info("Identity registered",
		slog.String("fingerprint", parsed.String()),
		slog.Int("chainIndex", entry.Index))

	return RegisterResult{Commitment: entry.Hash, ChainIndex: entry.Index}, nil
}

// CheckResult reports the public state of a fingerprint. The raw embedding
// is never exposed.
type CheckResult struct {
	Exists     bool
	Revoked    bool
	PublicKey  string
	CreatedAt  time.Time
	ChainIndex int
}

// Check looks up a fingerprint's registration state.
func (r *Registry) Check(fp string) (CheckResult, error) {
	parsed, err := interfaces.ParseFingerprint(fp)
	if err != nil {
		return CheckResult{}, err
	}

	rec, ok, err := r.store.Get(parsed)
	if err != nil {
		return CheckResult{}, fmt.Errorf("record lookup failed: %w", err)
	}
	if !ok {
		return CheckResult{}, nil
	}
	return CheckResult{
		Exists:     true,
		Revoked:    rec.Revoked,
		PublicKey:  rec.PublicKey,
		CreatedAt:  rec.CreatedAt,
		ChainIndex: rec.ChainIndex,
	}, nil
}

// IdentityStatus reports existence and revocation state. It is the narrow
// view the consent manager depends on.
func (r *Registry) IdentityStatus(fp interfaces.Fingerprint) (exists, revoked bool, err error) {
	rec, ok, err := r.store.Get(fp)
	if err != nil {
		return false, false, fmt.Errorf("record lookup failed: %w", err)
	}
	return ok, ok && rec.Revoked, nil
}

// revokeChallenge is the message the identity owner signs to authorize
// revocation.
type revokeChallenge struct {
	Action      string `json:"action"`
	Fingerprint string `json:"fingerprint"`
	Timestamp   int64  `json:"timestamp"`
	Nonce       string `json:"nonce"`
}

// Revoke flips an identity to revoked. The caller must present a signature
// over a challenge message {action:"revoke", fingerprint, timestamp, nonce}
// verifiable against the record's stored public key. The challenge
// timestamp must fall inside the acceptance window. On success the vector
// leaves the similarity index and a revoke entry is appended; the encrypted
// audit copy of the embedding is retained.
func (r *Registry) Revoke(fp string, signature []byte, message []byte) error {
	parsed, err := interfaces.ParseFingerprint(fp)
	if err != nil {
		return err
	}

	var challenge revokeChallenge
	if err := json.Unmarshal(message, &challenge); err != nil {
		return fmt.Errorf("%w: malformed challenge message", interfaces.ErrValidation)
	}
	if challenge.Action != "revoke" || challenge.Fingerprint != parsed.String() {
		return fmt.Errorf("%w: challenge does not authorize revoking %s", interfaces.ErrValidation, parsed)
	}

	skew := r.now().Unix() - challenge.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > r.cfg.ChallengeWindow {
		return fmt.Errorf("%w: challenge is %ds old", interfaces.ErrStaleChallenge, skew)
	}

	rec, ok, err := r.store.Get(parsed)
	if err != nil {
		return fmt.Errorf("record lookup failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrUnknownIdentity, parsed)
	}
	if rec.Revoked {
		return fmt.Errorf("%w: %s", interfaces.ErrAlreadyRevoked, parsed)
	}

	if err := r.verifier.Verify(rec.PublicKey, message, signature); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-read under the lock; a concurrent revocation may have won.
	rec, ok, err = r.store.Get(parsed)
	if err != nil {
		return fmt.Errorf("record lookup failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrUnknownIdentity, parsed)
	}
	if rec.Revoked {
		return fmt.Errorf("%w: %s", interfaces.ErrAlreadyRevoked, parsed)
	}

	if _, err := r.chain.Append(interfaces.EventPayload{
		Fingerprint: parsed,
		Event:       interfaces.EventRevoke,
		Timestamp:   r.now().Unix(),
	}); err != nil {
		return fmt.Errorf("ledger append failed: %w", err)
	}

	rec.Revoked = true
	if err := r.store.Update(rec); err != nil {
		r.log.Error("Record update failed after ledger append", "err", err,
			slog.String("fingerprint", parsed.String()))
		return fmt.Errorf("record update failed: %w", err)
	}
	r.index.Remove(parsed)

	r.log.Info("Identity revoked", slog.String("fingerprint", parsed.String()))
	return nil
}

// Search decrypts an incoming embedding and queries the similarity index.
// The threshold is caller-supplied for searches (unlike the pinned Sybil
// threshold) and must lie in (0, 1].
func (r *Registry) Search(encryptedEmbedding string, threshold float64) ([]interfaces.Match, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in (0, 1]", interfaces.ErrValidation)
	}

	vec, err := r.codec.Decrypt(encryptedEmbedding)
	if err != nil {
		return nil, err
	}
	if len(vec) != r.cfg.Dim {
		return nil, fmt.Errorf("%w: got %d, want %d", interfaces.ErrInvalidDimension, len(vec), r.cfg.Dim)
	}

	return r.index.QueryTopK(vec, r.cfg.MaxSearchResults, threshold)
}

// RebuildIndex repopulates the similarity index from the identity store.
// Called at startup when records outlive the process (file-backed store);
// revoked identities stay out of the active search space.
func (r *Registry) RebuildIndex() error {
	records, err := r.store.All()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	inserted := 0
	for _, rec := range records {
		if rec.Revoked {
			continue
		}
		vec, err := r.codec.Decrypt(rec.EncryptedEmbedding)
		if err != nil {
			return fmt.Errorf("failed to decrypt stored embedding for %s: %w", rec.Fingerprint, err)
		}
		if err := r.index.Insert(rec.Fingerprint, vec); err != nil {
			return fmt.Errorf("failed to index embedding for %s: %w", rec.Fingerprint, err)
		}
		inserted++
	}

	r.log.Info("Similarity index rebuilt", slog.Int("vectors", inserted), slog.Int("records", len(records)))
	return nil
}
