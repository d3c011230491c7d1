package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// DefaultMetadataIdentityURL is the identity endpoint of the instance metadata server
const DefaultMetadataIdentityURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/identity"

// tokens are refreshed this long before they expire
const expiryLeeway = time.Minute

// TokenSource supplies bearer tokens for the query proxy
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken always returns the same token
type StaticToken string

// Token implements TokenSource
func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// MetadataTokenSource fetches short-lived identity tokens from the metadata server.
// A token is reused until shortly before the exp claim it carries; tokens
// without a readable exp claim are fetched again on every call.
type MetadataTokenSource struct {
	URL      string
	Audience string
	Client   *http.Client
	Logger   *logrus.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

// NewMetadataTokenSource creates a token source for the given audience
func NewMetadataTokenSource(identityURL, audience string, logger *logrus.Logger) *MetadataTokenSource {
	if identityURL == "" {
		identityURL = DefaultMetadataIdentityURL
	}
	return &MetadataTokenSource{
		URL:      identityURL,
		Audience: audience,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Logger:   logger,
		now:      time.Now,
	}
}

// Token returns a cached token or fetches a new one
func (m *MetadataTokenSource) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if m.token != "" && now.Before(m.expiry.Add(-expiryLeeway)) {
		return m.token, nil
	}

	token, err := m.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("Authentication failed: %w", err)
	}

	m.token = ""
	m.expiry = time.Time{}
	if exp, ok := tokenExpiry(token); ok {
		m.token = token
		m.expiry = exp
		m.Logger.Debugf("Identity token cached until %s", exp.Format(time.RFC3339))
	}

	return token, nil
}

func (m *MetadataTokenSource) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

func (m *MetadataTokenSource) fetch(ctx context.Context) (string, error) {
	endpoint := m.URL + "?audience=" + url.QueryEscape(m.Audience)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Failed to get identity token: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("Failed to get identity token: empty response")
	}

	m.Logger.Debug("Identity token received")
	return token, nil
}

// tokenExpiry reads the exp claim without verifying the signature.
// The token is only forwarded, never trusted locally.
func tokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
