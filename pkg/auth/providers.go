package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// refreshMargin is how far ahead of expiry a cached token is still
// considered usable without hitting the token endpoint, per spec.md §4.2
// ("returns the cached one when unexpired (≥5 min margin)").
const refreshMargin = 5 * time.Minute

// cachedToken is embedded by every OAuth-class strategy to implement the
// cache-with-margin behavior uniformly.
type cachedToken struct {
	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func (c *cachedToken) valid() (TokenInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken == "" || time.Until(c.expiresAt) < refreshMargin {
		return TokenInfo{}, false
	}
	return TokenInfo{AccessToken: c.accessToken, ExpiresAt: c.expiresAt, ExpiresIn: time.Until(c.expiresAt)}, true
}

func (c *cachedToken) set(tok TokenInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = tok.AccessToken
	c.expiresAt = tok.ExpiresAt
}

// GoogleStrategy implements the refresh-token grant against Google's OAuth
// endpoint, per spec.md §4.2 ("Google uses refresh-token grant").
type GoogleStrategy struct {
	cachedToken
	config       *oauth2.Config
	refreshToken string
}

// NewGoogleStrategy builds a strategy that refreshes refreshToken against
// Google's token endpoint using clientID/clientSecret.
func NewGoogleStrategy(clientID, clientSecret, refreshToken string) *GoogleStrategy {
	return &GoogleStrategy{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		},
		refreshToken: refreshToken,
	}
}

func (g *GoogleStrategy) Name() string { return "google" }

func (g *GoogleStrategy) GetInitialToken(ctx context.Context) (TokenInfo, error) {
	return g.RefreshToken(ctx)
}

func (g *GoogleStrategy) RefreshToken(ctx context.Context) (TokenInfo, error) {
	if tok, ok := g.valid(); ok {
		return tok, nil
	}
	ts := g.config.TokenSource(ctx, &oauth2.Token{RefreshToken: g.refreshToken})
	t, err := ts.Token()
	if err != nil {
		return TokenInfo{}, fmt.Errorf("auth: google refresh: %w", err)
	}
	info := TokenInfo{AccessToken: t.AccessToken, ExpiresAt: t.Expiry, ExpiresIn: time.Until(t.Expiry)}
	g.set(info)
	return info, nil
}

// NotionStrategy authenticates with HTTP Basic auth of clientId:clientSecret
// and rotates its refresh token on every refresh, per spec.md §4.2.
type NotionStrategy struct {
	cachedToken
	clientID, clientSecret string
	tokenURL               string
	httpClient             *http.Client

	mu                sync.Mutex
	refreshToken      string
	pendingSnapshot   *OAuthConfigSnapshot
}

// NewNotionStrategy builds a Notion token-rotation strategy.
func NewNotionStrategy(clientID, clientSecret, refreshToken string) *NotionStrategy {
	return &NotionStrategy{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     "https://api.notion.com/v1/oauth/token",
		httpClient:   http.DefaultClient,
		refreshToken: refreshToken,
	}
}

func (n *NotionStrategy) Name() string { return "notion" }

func (n *NotionStrategy) GetInitialToken(ctx context.Context) (TokenInfo, error) {
	return n.RefreshToken(ctx)
}

func (n *NotionStrategy) RefreshToken(ctx context.Context) (TokenInfo, error) {
	if tok, ok := n.valid(); ok {
		return tok, nil
	}

	n.mu.Lock()
	refreshToken := n.refreshToken
	n.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenInfo{}, err
	}
	req.SetBasicAuth(n.clientID, n.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("auth: notion refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenInfo{}, &oauth2.RetrieveError{Response: resp}
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := decodeJSON(resp.Body, &body); err != nil {
		return TokenInfo{}, fmt.Errorf("auth: notion decode: %w", err)
	}

	expiresIn := time.Duration(body.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	info := TokenInfo{AccessToken: body.AccessToken, ExpiresIn: expiresIn, ExpiresAt: time.Now().Add(expiresIn)}
	n.set(info)

	if body.RefreshToken != "" && body.RefreshToken != refreshToken {
		n.mu.Lock()
		n.refreshToken = body.RefreshToken
		n.pendingSnapshot = &OAuthConfigSnapshot{Raw: []byte(body.RefreshToken)}
		n.mu.Unlock()
	}

	return info, nil
}

func (n *NotionStrategy) GetCurrentOAuthConfig() (OAuthConfigSnapshot, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pendingSnapshot == nil {
		return OAuthConfigSnapshot{}, false
	}
	return *n.pendingSnapshot, true
}

func (n *NotionStrategy) MarkConfigAsPersisted() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pendingSnapshot = nil
}

// GitHubStrategy exchanges/refreshes via GitHub's form-encoded token
// endpoint, per spec.md §4.2 ("GitHub uses form-encoded body").
type GitHubStrategy struct {
	cachedToken
	clientID, clientSecret, refreshToken string
	tokenURL                             string
	httpClient                           *http.Client
}

// NewGitHubStrategy builds a GitHub OAuth app refresh strategy.
func NewGitHubStrategy(clientID, clientSecret, refreshToken string) *GitHubStrategy {
	return &GitHubStrategy{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		tokenURL:     "https://github.com/login/oauth/access_token",
		httpClient:   http.DefaultClient,
	}
}

func (g *GitHubStrategy) Name() string { return "github" }

func (g *GitHubStrategy) GetInitialToken(ctx context.Context) (TokenInfo, error) {
	return g.RefreshToken(ctx)
}

func (g *GitHubStrategy) RefreshToken(ctx context.Context) (TokenInfo, error) {
	if tok, ok := g.valid(); ok {
		return tok, nil
	}

	form := url.Values{}
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", g.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenInfo{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("auth: github refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenInfo{}, &oauth2.RetrieveError{Response: resp}
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := decodeJSON(resp.Body, &body); err != nil {
		return TokenInfo{}, fmt.Errorf("auth: github decode: %w", err)
	}
	if body.Error != "" {
		return TokenInfo{}, fmt.Errorf("auth: github error: %s", body.Error)
	}

	expiresIn := time.Hour
	if n, err := strconv.Atoi(body.ExpiresIn); err == nil && n > 0 {
		expiresIn = time.Duration(n) * time.Second
	}
	info := TokenInfo{AccessToken: body.AccessToken, ExpiresIn: expiresIn, ExpiresAt: time.Now().Add(expiresIn)}
	g.set(info)
	return info, nil
}

// APIKeyStrategy is a no-op strategy for servers that authenticate with a
// static API key rather than OAuth: GetInitialToken returns it verbatim with
// an expiry 100 years out, and RefreshToken returns the same key.
// pkg/servercontext still arms its refresh timer for these servers; the
// delay is clamped to its ceiling, so a refresh runs about every 24 days.
type APIKeyStrategy struct{ apiKey string }

func NewAPIKeyStrategy(apiKey string) *APIKeyStrategy { return &APIKeyStrategy{apiKey: apiKey} }

func (a *APIKeyStrategy) Name() string { return "apikey" }

func (a *APIKeyStrategy) GetInitialToken(context.Context) (TokenInfo, error) {
	return TokenInfo{AccessToken: a.apiKey, ExpiresAt: time.Now().AddDate(100, 0, 0)}, nil
}

func (a *APIKeyStrategy) RefreshToken(ctx context.Context) (TokenInfo, error) {
	return a.GetInitialToken(ctx)
}

// NoneStrategy is used for servers with AuthType=None.
type NoneStrategy struct{}

func (NoneStrategy) Name() string { return "none" }
func (NoneStrategy) GetInitialToken(context.Context) (TokenInfo, error) {
	return TokenInfo{ExpiresAt: time.Now().AddDate(100, 0, 0)}, nil
}
func (NoneStrategy) RefreshToken(ctx context.Context) (TokenInfo, error) { return TokenInfo{}, nil }
