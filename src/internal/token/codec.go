package token

import (
	"errors"
	"time"

	"budgetbook-svc/src/internal/config"
	"budgetbook-svc/src/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes the two token lifetimes.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Payload is the snapshot of user and session state embedded in every token.
// Persisted truth lives in the session record and the user's token version;
// the payload only lets the server detect staleness cheaply.
type Payload struct {
	UserID       string
	Username     string
	Role         string
	SessionID    string
	TokenVersion int
}

// Claims is the JWT claim set for both token kinds.
type Claims struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	SessionID    string `json:"sessionId"`
	TokenVersion int    `json:"tokenVersion"`
	TokenType    string `json:"tokenType"`
	jwt.RegisteredClaims
}

func (c *Claims) Payload() Payload {
	return Payload{
		UserID:       c.UserID,
		Username:     c.Username,
		Role:         c.Role,
		SessionID:    c.SessionID,
		TokenVersion: c.TokenVersion,
	}
}

// Codec signs and verifies HS256 tokens under a shared secret.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewCodec(cfg config.SecuritySettings) *Codec {
	accessTTL := time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := time.Duration(cfg.RefreshTokenTTLHours) * time.Hour
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	return &Codec{
		secret:     []byte(cfg.JwtKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// Sign produces a signed token of the given kind embedding payload.
func (c *Codec) Sign(payload Payload, kind Kind) (string, error) {
	ttl := c.accessTTL
	if kind == KindRefresh {
		ttl = c.refreshTTL
	}

	now := c.now()
	claims := &Claims{
		UserID:       payload.UserID,
		Username:     payload.Username,
		Role:         payload.Role,
		SessionID:    payload.SessionID,
		TokenVersion: payload.TokenVersion,
		TokenType:    string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			// Unique jti so two tokens signed in the same second still differ.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks signature and expiry and returns the claims. Expired tokens
// fail with ErrTokenExpired; anything else unparseable or forged fails with
// ErrTokenMalformed.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrTokenMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, models.ErrTokenMalformed
	}

	return claims, nil
}

// Decode extracts claims without verifying the signature. Only safe for
// locating the session id before a store lookup; never an authorization
// decision on its own.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, models.ErrTokenMalformed
	}
	return claims, nil
}
