// Package clients provides typed HTTP clients for the registry API.
package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nytdevansh/V-Face-sub001/api"
)

// RegistryClient talks to a running registry server. The zero value with
// ServerAddr set is usable; HTTPClient defaults to http.DefaultClient.
type RegistryClient struct {
	// ServerAddr is the base URL of the registry server.
	ServerAddr string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

func (c *RegistryClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// doJSON issues a request with an optional JSON body and decodes the JSON
// response. Non-200 responses surface the server's error body.
func (c *RegistryClient) doJSON(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not serialize request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.ServerAddr+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("%s returned non-200 response: %d", path, resp.StatusCode)
		}
		var errResp api.ErrorResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Code != "" {
			return fmt.Errorf("%s returned %d (%s): %s", path, resp.StatusCode, errResp.Code, errResp.Error)
		}
		return fmt.Errorf("%s returned error %d: %s", path, resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse %s response: %w", path, err)
	}
	return nil
}

// Health fetches the service health document.
func (c *RegistryClient) Health() (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doJSON(http.MethodGet, "/", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register enrolls a new identity.
func (c *RegistryClient) Register(req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	if err := c.doJSON(http.MethodPost, "/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check looks up a fingerprint's registration state.
func (c *RegistryClient) Check(fingerprint string) (*api.CheckResponse, error) {
	var resp api.CheckResponse
	if err := c.doJSON(http.MethodPost, "/check", api.CheckRequest{Fingerprint: fingerprint}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search runs a similarity query with an encrypted embedding.
func (c *RegistryClient) Search(req api.SearchRequest) (*api.SearchResponse, error) {
	var resp api.SearchResponse
	if err := c.doJSON(http.MethodPost, "/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Revoke submits a signed revocation challenge.
func (c *RegistryClient) Revoke(req api.RevokeRequest) (*api.RevokeResponse, error) {
	var resp api.RevokeResponse
	if err := c.doJSON(http.MethodPost, "/revoke", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestConsent opens a consent request for an identity.
func (c *RegistryClient) RequestConsent(req api.ConsentRequestRequest) (*api.ConsentRequestResponse, error) {
	var resp api.ConsentRequestResponse
	if err := c.doJSON(http.MethodPost, "/consent/request", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ApproveConsent approves a pending request and returns the issued token.
func (c *RegistryClient) ApproveConsent(req api.ConsentApproveRequest) (*api.ConsentApproveResponse, error) {
	var resp api.ConsentApproveResponse
	if err := c.doJSON(http.MethodPost, "/consent/approve", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify checks a consent token.
func (c *RegistryClient) Verify(token string) (*api.VerifyResponse, error) {
	var resp api.VerifyResponse
	if err := c.doJSON(http.MethodPost, "/verify", api.VerifyRequest{Token: token}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChainVerify asks the server to verify its full hash chain.
func (c *RegistryClient) ChainVerify() (*api.ChainVerifyResponse, error) {
	var resp api.ChainVerifyResponse
	if err := c.doJSON(http.MethodGet, "/chain/verify", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
