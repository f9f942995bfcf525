// Package interfaces defines the core types and interfaces shared by the
// registry components. It provides the contract between components without
// implementation details.
package interfaces

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// EmbeddingDim is the fixed dimensionality of biometric embeddings accepted
// by the service. Vectors of any other length are rejected at the boundary.
const EmbeddingDim = 128

// fingerprintRe matches a 256-bit digest in hex.
var fingerprintRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Fingerprint is the deterministic hex digest derived from a normalized,
// quantized embedding. It is the primary lookup key for identities.
type Fingerprint string

// ParseFingerprint validates and normalizes a fingerprint string.
func ParseFingerprint(s string) (Fingerprint, error) {
	if !fingerprintRe.MatchString(s) {
		return "", fmt.Errorf("%w: fingerprint must be 64 hex characters", ErrValidation)
	}
	return Fingerprint(strings.ToLower(s)), nil
}

// String returns the canonical lowercase hex form.
func (fp Fingerprint) String() string { return string(fp) }

// IdentityRecord is the stored state for one registered identity. Records
// are created by registration, mutated only by revocation and never deleted.
type IdentityRecord struct {
	Fingerprint        Fingerprint `json:"fingerprint"`
	PublicKey          string      `json:"publicKey"`
	EncryptedEmbedding string      `json:"encryptedEmbedding"`
	CreatedAt          time.Time   `json:"createdAt"`
	Revoked            bool        `json:"revoked"`
	ChainIndex         int         `json:"chainIndex"`
}

// Lifecycle event types recorded in the hash chain.
const (
	EventRegister = "register"
	EventRevoke   = "revoke"
)

// EventPayload is the body of a chain entry: which identity, what happened
// and when (unix seconds, kept integral so serialization is canonical).
type EventPayload struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Event       string      `json:"event"`
	Timestamp   int64       `json:"timestamp"`
}

// ChainEntry is one link of the hash chain. Hash covers the canonical
// serialization of {index, payload, prevHash}; PrevHash is the previous
// entry's Hash, or GenesisHash for index 0.
type ChainEntry struct {
	Index    int          `json:"index"`
	Payload  EventPayload `json:"payload"`
	PrevHash string       `json:"prevHash"`
	Hash     string       `json:"hash"`
}

// GenesisHash is the PrevHash value of the first chain entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Consent request states. Approval is the only explicit transition; a
// request that is never approved expires out of its store, so callers
// observe expiry as absence, not as a status value.
const (
	ConsentStatusPending  = "pending_user_approval"
	ConsentStatusApproved = "approved"
)

// ConsentRequest is the ephemeral first phase of the consent flow. It is
// single-use: approval consumes it, and it expires if never approved.
type ConsentRequest struct {
	RequestID   string      `json:"requestId"`
	Fingerprint Fingerprint `json:"fingerprint"`
	CompanyID   string      `json:"companyId"`
	Scope       []string    `json:"scope"`
	Duration    int64       `json:"duration"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Match is one similarity-search result.
type Match struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Score       float64     `json:"score"`
}
