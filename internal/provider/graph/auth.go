package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// graphScope requests every application permission granted to the client.
	graphScope = "https://graph.microsoft.com/.default"

	// tokenExpiryBuffer is subtracted from the advertised token lifetime.
	tokenExpiryBuffer = 5 * time.Minute
)

// tokenEndpoint returns the Microsoft identity platform v2 token URL of a
// tenant.
func tokenEndpoint(tenantID string) string {
	return "https://login.microsoftonline.com/" + url.PathEscape(tenantID) + "/oauth2/v2.0/token"
}

// tokenError is an OAuth2 error reply of the token endpoint, e.g.
// {"error":"invalid_client","error_description":"..."}.
type tokenError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *tokenError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("token endpoint returned %d", e.StatusCode)
	}
	return fmt.Sprintf("token endpoint returned %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// tokenCache holds a client-credentials access token and renews it shortly
// before it expires. It is safe for concurrent use; concurrent callers share
// a single renewal.
type tokenCache struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func newTokenCache(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenCache {
	return &tokenCache{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// Token returns the cached access token, acquiring a new one when there is
// none or it is about to expire.
func (tc *tokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.valid() {
		return tc.accessToken, nil
	}
	return tc.renew(ctx)
}

// ForceRefresh drops the cached token and acquires a new one. Graph answers
// 401 when a token was revoked before its expiry.
func (tc *tokenCache) ForceRefresh(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.accessToken = ""
	return tc.renew(ctx)
}

// valid reports whether the cached token can still be used. tc.mu must be
// held.
func (tc *tokenCache) valid() bool {
	return tc.accessToken != "" && tc.now().Before(tc.expiresAt)
}

// renew fetches a token and caches it. tc.mu must be held.
func (tc *tokenCache) renew(ctx context.Context) (string, error) {
	issued := tc.now()

	resp, err := tc.fetch(ctx)
	if err != nil {
		return "", err
	}

	tc.accessToken = resp.AccessToken
	tc.expiresAt = issued.Add(time.Duration(resp.ExpiresIn)*time.Second - tokenExpiryBuffer)
	return tc.accessToken, nil
}

// fetch performs the client credentials grant.
func (tc *tokenCache) fetch(ctx context.Context) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", tc.clientID)
	form.Set("client_secret", tc.clientSecret)
	form.Set("scope", graphScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		tokenErr := &tokenError{StatusCode: resp.StatusCode}
		// A body that is not an OAuth2 error still yields a tokenError.
		_ = json.Unmarshal(body, tokenErr)
		return nil, tokenErr
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &token, nil
}
