package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Identity is what the LMS collaborator returns for an OAuth code.
type Identity struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
}

// Authenticator exchanges an OAuth authorization code for a resolved
// identity. The LMS handshake itself lives outside this process.
type Authenticator interface {
	Authenticate(ctx context.Context, code string) (Identity, error)
}

// LMSAuthenticator is the HTTP shim against the external LMS token endpoint.
type LMSAuthenticator struct {
	tokenURL string
	client   *http.Client
}

func NewLMSAuthenticator(tokenURL string) *LMSAuthenticator {
	return &LMSAuthenticator{
		tokenURL: tokenURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *LMSAuthenticator) Authenticate(ctx context.Context, code string) (Identity, error) {
	form := url.Values{"code": {code}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("lms exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("lms exchange: status %d", resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("lms exchange: decode: %w", err)
	}
	if id.Email == "" {
		return Identity{}, fmt.Errorf("lms exchange: empty email")
	}
	return id, nil
}
