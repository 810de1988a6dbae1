package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

const (
	jwtBearerGrant    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime = time.Hour
)

// AssertionResolver signs a short-lived RS256 assertion with the service
// account key and exchanges it for an OAuth2 access token.
type AssertionResolver struct {
	account    *ServiceAccount
	tokenURL   string
	scopes     []string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// AssertionOption configures an AssertionResolver.
type AssertionOption func(*AssertionResolver)

// WithTokenURL overrides the token endpoint, which is also the assertion audience.
func WithTokenURL(u string) AssertionOption {
	return func(r *AssertionResolver) { r.tokenURL = u }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AssertionOption {
	return func(r *AssertionResolver) { r.now = now }
}

func NewAssertionResolver(account *ServiceAccount, httpClient *http.Client, logger *slog.Logger, opts ...AssertionOption) *AssertionResolver {
	r := &AssertionResolver{
		account:    account,
		tokenURL:   DefaultTokenURL,
		scopes:     DefaultScopes,
		httpClient: httpClient,
		logger:     logger.With("component", "AssertionResolver"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SignAssertion builds the compact JWT presented to the token endpoint.
func (r *AssertionResolver) SignAssertion() (string, error) {
	key, err := r.account.RSAKey()
	if err != nil {
		return "", err
	}

	now := r.now()
	claims := jwt.MapClaims{
		"iss":   r.account.ClientEmail,
		"scope": strings.Join(r.scopes, " "),
		"aud":   r.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sign assertion: %v", dispatch.ErrAuth, err)
	}
	return signed, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (r *AssertionResolver) Resolve(ctx context.Context) (dispatch.Credential, error) {
	assertion, err := r.SignAssertion()
	if err != nil {
		return dispatch.Credential{}, err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return dispatch.Credential{}, fmt.Errorf("%w: failed to build token request: %v", dispatch.ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return dispatch.Credential{}, fmt.Errorf("%w: token exchange transport failed: %v", dispatch.ErrAuth, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Error("Token endpoint rejected assertion", "status", resp.StatusCode, "body", string(body))
		return dispatch.Credential{}, fmt.Errorf("%w: failed to get access token: status %d", dispatch.ErrAuth, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return dispatch.Credential{}, fmt.Errorf("%w: token response is not valid json: %v", dispatch.ErrAuth, err)
	}
	if tr.AccessToken == "" {
		return dispatch.Credential{}, fmt.Errorf("%w: token response has no access_token", dispatch.ErrAuth)
	}

	r.logger.Debug("Access token obtained", "expires_in", tr.ExpiresIn)
	return dispatch.Credential{Scheme: dispatch.SchemeBearer, Token: tr.AccessToken}, nil
}
