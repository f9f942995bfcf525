package httpserver

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nytdevansh/V-Face-sub001/api"
	"github.com/nytdevansh/V-Face-sub001/common"
	"github.com/nytdevansh/V-Face-sub001/consent"
	"github.com/nytdevansh/V-Face-sub001/interfaces"
	"github.com/nytdevansh/V-Face-sub001/metrics"
	"github.com/nytdevansh/V-Face-sub001/registry"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Handler processes HTTP requests for the identity registry service. It
// validates payloads at the boundary and maps the typed error taxonomy to
// status codes; core components never see transport concerns.
type Handler struct {
	registry *registry.Registry
	consents *consent.Manager
	chain    interfaces.Ledger
	log      *slog.Logger
}

// NewHandler creates an HTTP request handler with the given dependencies.
func NewHandler(reg *registry.Registry, consents *consent.Manager, chain interfaces.Ledger, log *slog.Logger) *Handler {
	return &Handler{
		registry: reg,
		consents: consents,
		chain:    chain,
		log:      log,
	}
}

// decodeJSON parses a bounded request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "malformed JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg, Code: code})
}

// writeTypedError maps the error taxonomy to HTTP statuses: validation 400,
// conflict 409, not-found 404, auth 401, integrity and crypto 500. The 500
// paths deliberately leak no detail about which part of the input failed.
func (h *Handler) writeTypedError(w http.ResponseWriter, err error) {
	var typed *interfaces.Error
	if !errors.As(err, &typed) {
		h.log.Error("Unclassified handler error", "err", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "internal error")
		return
	}

	switch typed.Kind {
	case interfaces.KindValidation:
		writeError(w, http.StatusBadRequest, typed.Code, err.Error())
	case interfaces.KindConflict:
		writeError(w, http.StatusConflict, typed.Code, err.Error())
	case interfaces.KindNotFound:
		writeError(w, http.StatusNotFound, typed.Code, err.Error())
	case interfaces.KindAuth:
		writeError(w, http.StatusUnauthorized, typed.Code, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, typed.Code, typed.Error())
	}
}

// HandleHealth reports service identity and matching configuration.
//
// GET / -> {status, matching, version, architecture}
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:       "ok",
		Matching:     "cosine",
		Version:      common.Version,
		Architecture: "hash-chain",
	})
}

// HandleRegister enrolls a new identity.
//
// POST /register {fingerprint, public_key, embedding}
// -> {success, commitment, chainIndex, vectorStored}
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.registry.Register(req.Fingerprint, req.PublicKey, req.Embedding)
	if err != nil {
		if errors.Is(err, interfaces.ErrSimilarIdentityExists) {
			metrics.SybilRejectionsTotal.Inc()
		}
		h.writeTypedError(w, err)
		return
	}
	metrics.RegistrationsTotal.Inc()

	writeJSON(w, http.StatusOK, api.RegisterResponse{
		Success:      true,
		Commitment:   res.Commitment,
		ChainIndex:   res.ChainIndex,
		VectorStored: true,
	})
}

// HandleCheck looks up registration state.
//
// POST /check {fingerprint} -> {exists, revoked?, public_key?, createdAt?, chainIndex?}
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req api.CheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.registry.Check(req.Fingerprint)
	if err != nil {
		h.writeTypedError(w, err)
		return
	}

	resp := api.CheckResponse{Exists: res.Exists}
	if res.Exists {
		resp.Revoked = &res.Revoked
		resp.PublicKey = res.PublicKey
		resp.CreatedAt = res.CreatedAt.Format(time.RFC3339)
		resp.ChainIndex = &res.ChainIndex
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSearch runs a similarity query over the active identities.
//
// POST /search {encrypted_embedding, threshold}
// -> {matched, results, search_time_ms}
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := time.Now()
	matches, err := h.registry.Search(req.EncryptedEmbedding, req.Threshold)
	if err != nil {
		h.writeTypedError(w, err)
		return
	}
	metrics.SearchesTotal.Inc()

	results := make([]api.SearchMatch, 0, len(matches))
	for _, m := range matches {
		results = append(results, api.SearchMatch{Fingerprint: m.Fingerprint.String(), Score: m.Score})
	}
	writeJSON(w, http.StatusOK, api.SearchResponse{
		Matched:      len(results) > 0,
		Results:      results,
		SearchTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	})
}

// HandleRevoke flips an identity to revoked given an owner signature over
// the challenge message.
//
// POST /revoke {fingerprint, signature, message} -> {success}
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var req api.RevokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "signature must be hex-encoded")
		return
	}

	if err := h.registry.Revoke(req.Fingerprint, sig, []byte(req.Message)); err != nil {
		h.writeTypedError(w, err)
		return
	}
	metrics.RevocationsTotal.Inc()

	writeJSON(w, http.StatusOK, api.RevokeResponse{Success: true})
}

// HandleConsentRequest opens the first phase of the consent flow.
//
// POST /consent/request {fingerprint, company_id, scope, duration}
// -> {status, request_id}
func (h *Handler) HandleConsentRequest(w http.ResponseWriter, r *http.Request) {
	var req api.ConsentRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.consents.RequestConsent(r.Context(), req.Fingerprint, req.CompanyID, req.Scope, req.Duration)
	if err != nil {
		h.writeTypedError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.ConsentRequestResponse{
		Status:    created.Status,
		RequestID: created.RequestID,
	})
}

// HandleConsentApprove closes the consent flow and issues the token.
//
// POST /consent/approve {request_id, fingerprint} -> {success, token}
func (h *Handler) HandleConsentApprove(w http.ResponseWriter, r *http.Request) {
	var req api.ConsentApproveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, err := h.consents.ApproveConsent(r.Context(), req.RequestID, req.Fingerprint)
	if err != nil {
		h.writeTypedError(w, err)
		return
	}
	metrics.TokensIssuedTotal.Inc()

	writeJSON(w, http.StatusOK, api.ConsentApproveResponse{Success: true, Token: token})
}

// HandleVerify checks a consent token. Invalid tokens are a 200 result
// carrying {valid: false, reason}, not an error status.
//
// POST /verify {token} -> {valid, claims?, reason?}
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.consents.VerifyToken(r.Context(), req.Token)
	if err != nil {
		h.writeTypedError(w, err)
		return
	}

	resp := api.VerifyResponse{Valid: res.Valid, Reason: res.Reason}
	if res.Claims != nil {
		resp.Claims = &api.TokenClaims{
			Fingerprint: res.Claims.Fingerprint,
			Audience:    res.Claims.Audience,
			Scope:       res.Claims.Scope,
			IssuedAt:    res.Claims.IssuedAt,
			ExpiresAt:   res.Claims.ExpiresAt,
			TokenID:     res.Claims.TokenID,
		}
		metrics.TokenVerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		metrics.TokenVerificationsTotal.WithLabelValues(res.Reason).Inc()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleChainVerify walks the whole ledger, recomputing hashes and linkage.
//
// GET /chain/verify -> {valid, checked, error?}
func (h *Handler) HandleChainVerify(w http.ResponseWriter, r *http.Request) {
	checked, err := h.chain.Verify()
	if err != nil {
		h.log.Error("Chain verification failed", "err", err, slog.Int("checked", checked))
		writeJSON(w, http.StatusOK, api.ChainVerifyResponse{
			Valid:   false,
			Checked: checked,
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, api.ChainVerifyResponse{Valid: true, Checked: checked})
}
