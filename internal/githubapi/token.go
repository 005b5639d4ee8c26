package githubapi

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github-review-automation/internal/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v84/github"
)

const (
	// appJWTClockSkew is subtracted from the issued-at claim to tolerate
	// clock drift between this host and GitHub.
	appJWTClockSkew = 60 * time.Second
	// appJWTLifetime is the App assertion validity window. GitHub rejects
	// anything over 10 minutes.
	appJWTLifetime = 10 * time.Minute
	// tokenExpiryMargin forces a re-mint shortly before the installation
	// token actually expires.
	tokenExpiryMargin = time.Minute
)

// TokenProvider exchanges GitHub App credentials for short-lived
// installation-scoped access tokens. Tokens are cached per repository until
// close to expiry; a failed exchange is fatal to the calling workflow.
type TokenProvider struct {
	appID   string
	key     *rsa.PrivateKey
	baseURL string
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]cachedToken
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// NewTokenProvider loads the App private key from keyPath. baseURL overrides
// the GitHub API endpoint (GHE or tests); empty means api.github.com.
func NewTokenProvider(appID, keyPath, baseURL string, timeout time.Duration) (*TokenProvider, error) {
	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &TokenProvider{
		appID:   appID,
		key:     key,
		baseURL: baseURL,
		timeout: timeout,
		cache:   make(map[string]cachedToken),
	}, nil
}

// appJWT mints the RS256 App assertion: issuer is the App id, issued-at is
// skewed into the past, expiry is the 10-minute maximum.
func (p *TokenProvider) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    p.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-appJWTClockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return signed, nil
}

func (p *TokenProvider) newClient(authToken string) (*github.Client, error) {
	client := github.NewClient(&http.Client{Timeout: p.timeout}).WithAuthToken(authToken)
	if p.baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(p.baseURL, p.baseURL)
		if err != nil {
			return nil, fmt.Errorf("set api base url: %w", err)
		}
	}
	return client, nil
}

// InstallationToken returns a repo-scoped access token, minting a fresh one
// through the two-step App exchange when the cache is empty or stale.
func (p *TokenProvider) InstallationToken(ctx context.Context, owner, repo string) (string, error) {
	cacheKey := owner + "/" + repo

	p.mu.Lock()
	if tok, ok := p.cache[cacheKey]; ok && time.Until(tok.expiresAt) > tokenExpiryMargin {
		p.mu.Unlock()
		return tok.token, nil
	}
	p.mu.Unlock()

	assertion, err := p.appJWT()
	if err != nil {
		return "", err
	}
	appClient, err := p.newClient(assertion)
	if err != nil {
		return "", err
	}

	installation, _, err := appClient.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return "", types.NewUpstreamError("github", "find installation", err)
	}

	token, _, err := appClient.Apps.CreateInstallationToken(ctx, installation.GetID(), nil)
	if err != nil {
		return "", types.NewUpstreamError("github", "create installation token", err)
	}

	p.mu.Lock()
	p.cache[cacheKey] = cachedToken{
		token:     token.GetToken(),
		expiresAt: token.GetExpiresAt().Time,
	}
	p.mu.Unlock()

	return token.GetToken(), nil
}

// InstallationClient returns a go-github client authenticated with a
// repo-scoped installation token.
func (p *TokenProvider) InstallationClient(ctx context.Context, owner, repo string) (*github.Client, error) {
	token, err := p.InstallationToken(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return p.newClient(token)
}
