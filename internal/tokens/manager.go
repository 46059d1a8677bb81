package tokens

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongType    = errors.New("invalid token type")
)

// SessionClaims ride inside the HttpOnly cookie. The sid links the
// token to a revocable server-side session record.
type SessionClaims struct {
	UserID    string `json:"sub"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// IdentityClaims is the shape of the access token handed over by the
// OAuth provider after the redirect completes. Only the identity bits
// are read; nothing from it is stored verbatim.
type IdentityClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`
	jwt.RegisteredClaims
}

func (c *IdentityClaims) Name() string {
	return metaString(c.UserMetadata, "name")
}

func (c *IdentityClaims) AvatarURL() string {
	return metaString(c.UserMetadata, "avatar_url")
}

func (c *IdentityClaims) Provider() string {
	return metaString(c.AppMetadata, "provider")
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}

	s, _ := m[key].(string)
	return s
}

type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Mint issues the session cookie token for a user/session pair.
func (m *Manager) Mint(userID, sessionID string) (raw string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(m.ttl)

	claims := SessionClaims{
		UserID:    userID,
		SessionID: sessionID,
		TokenType: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	raw, err = token.SignedString(m.secret)

	return
}

// Verify checks a session cookie token and returns its claims.
func (m *Manager) Verify(raw string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, m.keyFunc)

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)

	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != "session" {
		return nil, ErrWrongType
	}

	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyExternal checks the provider access token presented at session
// creation and pulls the identity claims out of it.
func (m *Manager) VerifyExternal(raw string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &IdentityClaims{}, m.keyFunc)

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*IdentityClaims)

	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	// Enforce HS256

	_, ok := t.Method.(*jwt.SigningMethodHMAC)

	if !ok {
		return nil, errors.New("unexpected signing method")
	}
	return m.secret, nil
}

// Deterministic HMAC hash for the session store key. The raw token
// never touches redis.
func (m *Manager) Hash(raw string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}
