package auth

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// ManagedResolver delegates the assertion and exchange to golang.org/x/oauth2.
type ManagedResolver struct {
	account    *ServiceAccount
	tokenURL   string
	scopes     []string
	httpClient *http.Client
}

// NewManagedResolver exchanges against tokenURL, falling back to the key
// file's token_uri and then to DefaultTokenURL.
func NewManagedResolver(account *ServiceAccount, tokenURL string, httpClient *http.Client) *ManagedResolver {
	if tokenURL == "" {
		tokenURL = account.TokenURI
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &ManagedResolver{
		account:    account,
		tokenURL:   tokenURL,
		scopes:     DefaultScopes,
		httpClient: httpClient,
	}
}

// config hands x/oauth2 the normalized key re-encoded as PKCS#8 PEM, so key
// files with escaped line breaks work here as they do for AssertionResolver.
func (r *ManagedResolver) config() (*jwt.Config, error) {
	key, err := r.account.RSAKey()
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode private key: %v", dispatch.ErrAuth, err)
	}
	return &jwt.Config{
		Email:        r.account.ClientEmail,
		PrivateKey:   pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}),
		PrivateKeyID: r.account.PrivateKeyID,
		Scopes:       r.scopes,
		TokenURL:     r.tokenURL,
	}, nil
}

// Resolve performs a fresh exchange on every call.
func (r *ManagedResolver) Resolve(ctx context.Context) (dispatch.Credential, error) {
	conf, err := r.config()
	if err != nil {
		return dispatch.Credential{}, err
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	tok, err := conf.TokenSource(ctx).Token()
	if err != nil {
		return dispatch.Credential{}, fmt.Errorf("%w: token exchange failed: %v", dispatch.ErrAuth, err)
	}
	return dispatch.Credential{Scheme: dispatch.SchemeBearer, Token: tok.AccessToken}, nil
}
