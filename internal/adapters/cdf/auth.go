package cdf

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	perr "plexingest/internal/platform/errors"
)

// tokenSource fetches and caches an OAuth client-credentials token.
// Tokens are refreshed shortly before expiry so in-flight requests never
// carry a stale bearer
type tokenSource struct {
	http     *http.Client
	tokenURL string
	clientID string
	secret   string
	scopes   []string

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

const tokenSkew = 60 * time.Second

func newTokenSource(hc *http.Client, tokenURL, clientID, secret string, scopes []string) *tokenSource {
	return &tokenSource{
		http:     hc,
		tokenURL: tokenURL,
		clientID: clientID,
		secret:   secret,
		scopes:   scopes,
		now:      time.Now,
	}
}

// Token returns a valid bearer token, fetching a fresh one when the cached
// token is missing or near expiry
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expiry.Add(-tokenSkew)) {
		return ts.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.secret)
	if len(ts.scopes) > 0 {
		form.Set("scope", strings.Join(ts.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnknown, "token request build failed")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.http.Do(req)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnavailable, "token request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnavailable, "token response read failed")
	}
	if resp.StatusCode >= 400 {
		return "", perr.Upstream(resp.StatusCode, string(body), 0)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeJSON, "token response decode failed")
	}
	if tok.AccessToken == "" {
		return "", perr.Newf(perr.ErrorCodeUnauthorized, "token response missing access_token")
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	ts.token = tok.AccessToken
	ts.expiry = ts.now().Add(ttl)
	return ts.token, nil
}
