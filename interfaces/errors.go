package interfaces

// ErrorKind buckets failures for transport-level mapping. Every error
// returned across a component boundary wraps exactly one sentinel below,
// so callers can branch with errors.Is and handlers can map kinds to
// HTTP status codes without string matching.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindAuth       ErrorKind = "auth"
	KindIntegrity  ErrorKind = "integrity"
	KindCrypto     ErrorKind = "crypto"
)

// Error is a typed failure with a stable machine-readable code.
type Error struct {
	Kind ErrorKind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Sentinel errors for the full failure taxonomy. Components wrap these with
// fmt.Errorf("%w: ...") to add context without losing the code.
var (
	ErrValidation       = &Error{KindValidation, "ValidationError", "invalid input"}
	ErrInvalidDimension = &Error{KindValidation, "InvalidDimension", "embedding has wrong dimensionality"}

	ErrAlreadyRegistered     = &Error{KindConflict, "AlreadyRegistered", "fingerprint is already registered"}
	ErrSimilarIdentityExists = &Error{KindConflict, "SimilarIdentityExists", "a similar identity is already registered"}
	ErrAlreadyRevoked        = &Error{KindConflict, "AlreadyRevoked", "identity is already revoked"}

	ErrUnknownIdentity = &Error{KindNotFound, "UnknownIdentity", "fingerprint is not registered"}
	ErrUnknownRequest  = &Error{KindNotFound, "UnknownRequest", "consent request not found or expired"}

	ErrInvalidSignature    = &Error{KindAuth, "InvalidSignature", "signature verification failed"}
	ErrStaleChallenge      = &Error{KindAuth, "StaleChallenge", "challenge timestamp outside acceptance window"}
	ErrFingerprintMismatch = &Error{KindAuth, "FingerprintMismatch", "fingerprint does not match consent request"}
	ErrIdentityRevoked     = &Error{KindAuth, "IdentityRevoked", "identity has been revoked"}
	ErrTokenInvalid        = &Error{KindAuth, "TokenInvalid", "token verification failed"}

	ErrChainIntegrity = &Error{KindIntegrity, "IntegrityError", "hash chain verification failed"}

	ErrDecryption = &Error{KindCrypto, "DecryptionError", "embedding decryption failed"}
)
