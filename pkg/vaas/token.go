package vaas

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider obtains, caches, and refreshes an OAuth2 bearer token for a
// single Credential. It is safe for concurrent use: concurrent first-use
// calls on a cold cache produce a single token-endpoint round-trip, because
// refresh is serialized behind mu and every caller re-checks the cache after
// acquiring it.
type TokenProvider struct {
	mu         sync.Mutex
	credential Credential
	httpClient *http.Client
	cached     *oauth2.Token
	metrics    *metrics
	log        logr.Logger
}

// attachMetrics wires m so token refreshes are counted. Called by Builder
// during build(); a TokenProvider constructed directly has no metrics.
func (p *TokenProvider) attachMetrics(m *metrics) {
	p.metrics = m
}

// NewTokenProvider returns a TokenProvider for credential. httpClient is
// retained and reused for every token-endpoint round trip; pass nil to use
// http.DefaultClient.
func NewTokenProvider(credential Credential, httpClient *http.Client, log logr.Logger) *TokenProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenProvider{
		credential: credential,
		httpClient: httpClient,
		log:        log,
	}
}

// GetToken returns a valid bearer token, refreshing it if the cache is cold
// or expired. The provider performs no retry of its own; callers retry by
// re-invoking.
func (p *TokenProvider) GetToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && p.cached.Expiry.After(time.Now()) {
		return p.cached.AccessToken, nil
	}

	tok, err := p.exchange(ctx)
	if err != nil {
		return "", err
	}
	p.cached = tok
	if p.metrics != nil {
		p.metrics.tokenRefreshes.Inc()
	}
	p.log.Info("refreshed bearer token", "expiry", tok.Expiry)
	return tok.AccessToken, nil
}

func (p *TokenProvider) exchange(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	var tok *oauth2.Token
	var err error

	switch p.credential.kind {
	case grantClientCredentials:
		cfg := &clientcredentials.Config{
			ClientID:     p.credential.clientID,
			ClientSecret: p.credential.clientSecret.ExposeSecret(),
			TokenURL:     p.credential.tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		tok, err = cfg.Token(ctx)
	case grantResourceOwnerPassword:
		cfg := &oauth2.Config{
			ClientID:  p.credential.clientID,
			Endpoint:  oauth2.Endpoint{TokenURL: p.credential.tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		}
		tok, err = cfg.PasswordCredentialsToken(ctx, p.credential.username, p.credential.password.ExposeSecret())
	default:
		return nil, newError(ErrAuthorizationFailed, "unknown credential kind", nil)
	}

	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, newStatusError(ErrAuthorizationFailed, retrieveErr.Response.StatusCode, string(retrieveErr.Body))
		}
		return nil, newError(ErrIo, "token endpoint request failed", err)
	}
	if tok.AccessToken == "" {
		return nil, newError(ErrAuthorizationFailed, "empty access_token in response", nil)
	}
	return tok, nil
}
