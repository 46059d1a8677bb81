package middlewares

import (
	"context"
	"net/http"

	"authgate/internal/sessions"
	"authgate/internal/tokens"

	"github.com/gin-gonic/gin"
)

// Keep these small interfaces so tests can fake them easily.

type SessionVerifier interface {
	Verify(raw string) (*tokens.SessionClaims, error)
	Hash(raw string) string
}

type SessionGetter interface {
	Get(ctx context.Context, tokenHash string) (sessions.Record, error)
}

type SessionMiddleware struct {
	tokens     SessionVerifier
	store      SessionGetter
	cookieName string
}

func NewSessionMiddleware(verifier SessionVerifier, store SessionGetter, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{
		tokens:     verifier,
		store:      store,
		cookieName: cookieName,
	}
}

// RequireSession authenticates the request from the session cookie. A
// token that verifies but has no live store record is rejected too, so
// revocation works even before the JWT expires.
func (m *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(m.cookieName)

		if err != nil || raw == "" {
			abortUnauthenticated(c)
			return
		}

		claims, err := m.tokens.Verify(raw)

		if err != nil {
			abortUnauthenticated(c)
			return
		}

		hash := m.tokens.Hash(raw)

		rec, err := m.store.Get(c.Request.Context(), hash)

		if err != nil {
			abortUnauthenticated(c)
			return
		}

		if rec.UserID != claims.UserID {
			abortUnauthenticated(c)
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxSessionID, claims.SessionID)
		c.Set(CtxTokenHash, hash)

		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"detail": "Not authenticated",
		"code":   "unauthorized",
	})
}

// Helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func TokenHashFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxTokenHash)
	if !ok {
		return "", false
	}
	h, ok := v.(string)
	return h, ok
}

func SessionIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxSessionID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
