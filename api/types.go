// Package api defines the wire types of the registry's HTTP surface.
// Field names are part of the compatibility contract with existing
// clients and must not change.
package api

// RegisterRequest enrolls a new identity. Embedding carries the encrypted
// envelope (v1:<iv>:<authTag>:<ciphertext>, all hex), never a raw vector.
type RegisterRequest struct {
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`
	Embedding   string `json:"embedding"`
}

type RegisterResponse struct {
	Success      bool   `json:"success"`
	Commitment   string `json:"commitment"`
	ChainIndex   int    `json:"chainIndex"`
	VectorStored bool   `json:"vectorStored"`
}

type CheckRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// CheckResponse reports registration state. The optional fields are only
// present when the fingerprint exists.
type CheckResponse struct {
	Exists     bool   `json:"exists"`
	Revoked    *bool  `json:"revoked,omitempty"`
	PublicKey  string `json:"public_key,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	ChainIndex *int   `json:"chainIndex,omitempty"`
}

type SearchRequest struct {
	EncryptedEmbedding string  `json:"encrypted_embedding"`
	Threshold          float64 `json:"threshold"`
}

type SearchMatch struct {
	Fingerprint string  `json:"fingerprint"`
	Score       float64 `json:"score"`
}

type SearchResponse struct {
	Matched      bool          `json:"matched"`
	Results      []SearchMatch `json:"results"`
	SearchTimeMs float64       `json:"search_time_ms"`
}

// RevokeRequest carries the owner's signature (hex, optionally 0x-prefixed)
// over the challenge message.
type RevokeRequest struct {
	Fingerprint string `json:"fingerprint"`
	Signature   string `json:"signature"`
	Message     string `json:"message"`
}

type RevokeResponse struct {
	Success bool `json:"success"`
}

type ConsentRequestRequest struct {
	Fingerprint string   `json:"fingerprint"`
	CompanyID   string   `json:"company_id"`
	Scope       []string `json:"scope"`
	Duration    int64    `json:"duration"`
}

type ConsentRequestResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

type ConsentApproveRequest struct {
	RequestID   string `json:"request_id"`
	Fingerprint string `json:"fingerprint"`
}

type ConsentApproveResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type VerifyRequest struct {
	Token string `json:"token"`
}

type TokenClaims struct {
	Fingerprint string   `json:"vf_fp"`
	Audience    string   `json:"aud"`
	Scope       []string `json:"scope"`
	IssuedAt    int64    `json:"iat"`
	ExpiresAt   int64    `json:"exp"`
	TokenID     string   `json:"jti"`
}

type VerifyResponse struct {
	Valid  bool         `json:"valid"`
	Claims *TokenClaims `json:"claims,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

type ChainVerifyResponse struct {
	Valid   bool   `json:"valid"`
	Checked int    `json:"checked"`
	Error   string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	Matching     string `json:"matching"`
	Version      string `json:"version"`
	Architecture string `json:"architecture"`
}

// ErrorResponse is the uniform error body: a stable machine-readable code
// plus a human-readable message.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
