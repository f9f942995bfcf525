// Package consent implements the two-phase consent flow: a third party
// requests access to an identity, the owner approves, and a signed, scoped,
// expiring bearer token is issued. Tokens verify offline except for the
// revocation check, which consults the identity registry.
package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
)

// DefaultPendingTTL is how long an unapproved request stays claimable.
const DefaultPendingTTL = 10 * time.Minute

// IdentityChecker is the narrow registry view the manager needs: whether a
// fingerprint exists and whether it has been revoked.
type IdentityChecker interface {
	IdentityStatus(fp interfaces.Fingerprint) (exists, revoked bool, err error)
}

// Verification failure reasons reported to callers.
const (
	ReasonTokenMalformed   = "TokenMalformed"
	ReasonInvalidSignature = "InvalidSignature"
	ReasonTokenExpired     = "TokenExpired"
	ReasonIdentityRevoked  = "IdentityRevoked"
	ReasonUnknownIdentity  = "UnknownIdentity"
)

// Claims is the decoded body of a consent token.
type Claims struct {
	Fingerprint string   `json:"vf_fp"`
	Audience    string   `json:"aud"`
	Scope       []string `json:"scope"`
	IssuedAt    int64    `json:"iat"`
	ExpiresAt   int64    `json:"exp"`
	TokenID     string   `json:"jti"`
}

// VerifyResult is the outcome of token verification. An invalid token is a
// result, not an error; errors are reserved for infrastructure failures.
type VerifyResult struct {
	Valid  bool
	Claims *Claims
	Reason string
}

// Manager owns pending consent requests and token issuance. Issued tokens
// are stateless; only the revocation check at verify time reaches back into
// the registry.
type Manager struct {
	store      interfaces.ConsentStore
	identities IdentityChecker
	signingKey []byte
	pendingTTL time.Duration
	log        *slog.Logger

	now func() time.Time
}

// NewManager wires a consent manager. The signing key is the HS256 secret
// for issued tokens; rotating it invalidates all outstanding tokens.
func NewManager(store interfaces.ConsentStore, identities IdentityChecker, signingKey []byte, log *slog.Logger) *Manager {
	return &Manager{
		store:      store,
		identities: identities,
		signingKey: signingKey,
		pendingTTL: DefaultPendingTTL,
		log:        log,
		now:        time.Now,
	}
}

// WithPendingTTL overrides how long a request may await approval.
func (m *Manager) WithPendingTTL(ttl time.Duration) *Manager {
	m.pendingTTL = ttl
	return m
}

// WithNow overrides the manager clock for tests.
func (m *Manager) WithNow(now func() time.Time) *Manager {
	m.now = now
	return m
}

// RequestConsent opens the first phase: it records a pending request for an
// active identity and hands back an unguessable request id for the owner to
// approve. Fails with UnknownIdentity if the fingerprint is absent or
// revoked.
func (m *Manager) RequestConsent(ctx context.Context, fp, companyID string, scope []string, duration int64) (interfaces.ConsentRequest, error) {
	parsed, err := interfaces.ParseFingerprint(fp)
	if err != nil {
		return interfaces.ConsentRequest{}, err
	}
	if companyID == "" {
		return interfaces.ConsentRequest{}, fmt.Errorf("%w: company_id is required", interfaces.ErrValidation)
	}
	if len(scope) == 0 {
		return interfaces.ConsentRequest{}, fmt.Errorf("%w: scope must not be empty", interfaces.ErrValidation)
	}
	if duration <= 0 {
		return interfaces.ConsentRequest{}, fmt.Errorf("%w: duration must be positive", interfaces.ErrValidation)
	}

	exists, revoked, err := m.identities.IdentityStatus(parsed)
	if err != nil {
		return interfaces.ConsentRequest{}, err
	}
	if !exists || revoked {
		return interfaces.ConsentRequest{}, fmt.Errorf("%w: %s", interfaces.ErrUnknownIdentity, parsed)
	}

	req := interfaces.ConsentRequest{
		RequestID:   uuid.New().String(),
		Fingerprint: parsed,
		CompanyID:   companyID,
		Scope:       scope,
		Duration:    duration,
		Status:      interfaces.ConsentStatusPending,
		CreatedAt:   m.now().UTC(),
	}
	if err := m.store.Put(ctx, req, m.pendingTTL); err != nil {
		return interfaces.ConsentRequest{}, fmt.Errorf("failed to store consent request: %w", err)
	}

	m.log.Info("Consent requested",
		slog.String("requestId", req.RequestID),
		slog.String("companyId", companyID),
		slog.Any("scope", scope))
	return req, nil
}

// ApproveConsent closes the second phase. The request is single-use:
// a successful approval consumes it, so approving twice fails with
// UnknownRequest. A fingerprint mismatch leaves the request claimable.
func (m *Manager) ApproveConsent(ctx context.Context, requestID, fp string) (string, error) {
	parsed, err := interfaces.ParseFingerprint(fp)
	if err != nil {
		return "", err
	}

	// Check the subject before consuming so a wrong-fingerprint approval
	// attempt cannot burn someone else's pending request.
	req, ok, err := m.store.Get(ctx, requestID)
	if err != nil {
		return "", fmt.Errorf("failed to load consent request: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", interfaces.ErrUnknownRequest, requestID)
	}
	if req.Fingerprint != parsed {
		return "", fmt.Errorf("%w: request is for a different identity", interfaces.ErrFingerprintMismatch)
	}

	req, ok, err = m.store.Consume(ctx, requestID)
	if err != nil {
		return "", fmt.Errorf("failed to consume consent request: %w", err)
	}
	if !ok {
		// A concurrent approval or the TTL won the race.
		return "", fmt.Errorf("%w: %s", interfaces.ErrUnknownRequest, requestID)
	}

	req.Status = interfaces.ConsentStatusApproved
	token, err := m.issueToken(req)
	if err != nil {
		return "", err
	}

	m.log.Info("Consent approved",
		slog.String("requestId", req.RequestID),
		slog.String("companyId", req.CompanyID),
		slog.String("status", req.Status))
	return token, nil
}

func (m *Manager) issueToken(req interfaces.ConsentRequest) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"vf_fp": req.Fingerprint.String(),
		"aud":   req.CompanyID,
		"scope": req.Scope,
		"iat":   now.Unix(),
		"exp":   now.Unix() + req.Duration,
		"jti":   uuid.New().String(),
	})
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign consent token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks a token's signature and expiry, then consults the
// registry: a structurally valid token whose subject has been revoked is
// invalid with reason IdentityRevoked.
func (m *Manager) VerifyToken(ctx context.Context, tokenStr string) (VerifyResult, error) {
	parser := jwt.NewParser(
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{"HS256"}),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return m.signingKey, nil
	})
	if err != nil {
		return VerifyResult{Valid: false, Reason: verifyReason(err)}, nil
	}

	exists, revoked, err := m.identities.IdentityStatus(interfaces.Fingerprint(claims.Fingerprint))
	if err != nil {
		return VerifyResult{}, err
	}
	if !exists {
		return VerifyResult{Valid: false, Reason: ReasonUnknownIdentity}, nil
	}
	if revoked {
		return VerifyResult{Valid: false, Reason: ReasonIdentityRevoked}, nil
	}

	return VerifyResult{Valid: true, Claims: &claims}, nil
}

func verifyReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonInvalidSignature
	default:
		return ReasonTokenMalformed
	}
}

// Claims implements jwt.Claims so the parser can enforce expiry. The
// remaining registered-claim getters stay permissive; scope and subject
// checks belong to the relying party.

func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c *Claims) GetIssuer() (string, error)              { return "", nil }
func (c *Claims) GetSubject() (string, error)             { return c.Fingerprint, nil }

func (c *Claims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}
