package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"budgetbook-svc/src/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// renewLookahead is how long before access token expiry the client starts
// renewing instead of waiting for a 401.
const renewLookahead = 2 * time.Minute

// SessionClient keeps a token pair for a logged-in user and transparently
// renews it against the auth endpoints. Concurrent requests share one renewal
// through singleflight.
type SessionClient struct {
	baseURL    string
	httpClient *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string

	renewGroup singleflight.Group
	onExpired  func()
	now        func() time.Time
}

// NewSessionClient creates a session manager talking to the service at
// baseURL (scheme and host, no trailing slash).
func NewSessionClient(baseURL string, timeout time.Duration) *SessionClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SessionClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// SetTokens installs a freshly issued pair, normally right after login.
func (c *SessionClient) SetTokens(accessToken, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
	c.refreshToken = refreshToken
}

// Tokens returns the current pair.
func (c *SessionClient) Tokens() (accessToken, refreshToken string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken, c.refreshToken
}

// ClearTokens drops the pair, leaving the client logged out.
func (c *SessionClient) ClearTokens() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.refreshToken = ""
}

// OnSessionExpired registers a callback fired once the session cannot be
// renewed. Tokens are already cleared when it runs.
func (c *SessionClient) OnSessionExpired(fn func()) {
	c.onExpired = fn
}

// Do sends req with the current access token attached, renewing the pair
// first when the token is about to expire. A 401 response triggers one
// renew-and-retry before giving up.
func (c *SessionClient) Do(req *http.Request) (*http.Response, error) {
	if c.accessTokenExpiresSoon() {
		if err := c.Renew(req.Context()); err != nil {
			return nil, err
		}
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.Renew(req.Context()); err != nil {
		return nil, err
	}
	return c.send(req)
}

func (c *SessionClient) send(req *http.Request) (*http.Response, error) {
	accessToken, _ := c.Tokens()
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return c.httpClient.Do(req)
}

// Renew trades the refresh token for a new pair. Parallel callers collapse
// into a single renewal; every caller sees its result.
func (c *SessionClient) Renew(ctx context.Context) error {
	_, err, _ := c.renewGroup.Do("renew", func() (interface{}, error) {
		return nil, c.renew(ctx)
	})
	return err
}

func (c *SessionClient) renew(ctx context.Context) error {
	_, refreshToken := c.Tokens()
	if refreshToken == "" {
		return models.ErrSessionNotFound
	}

	valid, err := c.checkSession(ctx, refreshToken)
	if err != nil {
		return err
	}
	if !valid {
		logrus.Debug("Refresh token no longer valid, session expired")
		c.expire()
		return models.ErrTokenExpired
	}

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/renew-session", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call renew-session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.expire()
		return models.ErrTokenExpired
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("renew-session returned status %d", resp.StatusCode)
	}

	var response struct {
		Success bool `json:"success"`
		Data    struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode renew-session response: %w", err)
	}
	if response.Data.AccessToken == "" || response.Data.RefreshToken == "" {
		return models.ErrInvalidToken
	}

	c.SetTokens(response.Data.AccessToken, response.Data.RefreshToken)
	logrus.Debug("Session renewed")
	return nil
}

func (c *SessionClient) checkSession(ctx context.Context, refreshToken string) (bool, error) {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/check-session", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call check-session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("check-session returned status %d", resp.StatusCode)
	}

	var response struct {
		Data struct {
			Valid bool `json:"valid"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return false, fmt.Errorf("failed to decode check-session response: %w", err)
	}

	return response.Data.Valid, nil
}

// accessTokenExpiresSoon decodes the unverified exp claim; the server still
// verifies everything, this only schedules renewal.
func (c *SessionClient) accessTokenExpiresSoon() bool {
	accessToken, _ := c.Tokens()
	if accessToken == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}

	return exp.Time.Sub(c.now()) < renewLookahead
}

func (c *SessionClient) expire() {
	c.ClearTokens()
	if c.onExpired != nil {
		c.onExpired()
	}
}
