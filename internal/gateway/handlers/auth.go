package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"authgate/internal/config"
	"authgate/internal/domain/user"
	"authgate/internal/gateway/middlewares"
	"authgate/internal/observability"
	"authgate/internal/sessions"
	"authgate/internal/tokens"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserStore interface {
	UpsertFromIdentity(ctx context.Context, ident user.Identity) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

type AuthHandler struct {
	users    UserStore
	sessions sessions.Store
	tokens   *tokens.Manager
	cfg      config.Config
	log      *slog.Logger
	obs      *observability.Prom
}

func NewAuthHandler(users UserStore, sessionStore sessions.Store, tokenManager *tokens.Manager, cfg config.Config, log *slog.Logger, obs *observability.Prom) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessionStore,
		tokens:   tokenManager,
		cfg:      cfg,
		log:      log,
		obs:      obs,
	}
}

type SessionRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LoginGoogle hands the browser off to the OAuth entry point. No
// state is kept here; the provider drives the flow until the client
// comes back with tokens for CreateSession.
func (h *AuthHandler) LoginGoogle(ctx *gin.Context) {
	h.countAuth("login_redirect", "ok")

	ctx.Redirect(http.StatusTemporaryRedirect, h.cfg.OAuthAuthorizeURL)
}

// CreateSession verifies the tokens handed back by the OAuth redirect
// and converts them into an HttpOnly cookie session.
func (h *AuthHandler) CreateSession(ctx *gin.Context) {
	var req SessionRequest

	if !BindJSON(ctx, &req) {
		h.countAuth("session_create", "invalid")
		return
	}

	claims, err := h.tokens.VerifyExternal(req.AccessToken)

	if err != nil {
		h.countAuth("session_create", "unauthorized")
		RespondUnauthorized(ctx, "invalid_token", "Invalid authentication tokens")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	provider := claims.Provider()

	if provider == "" {
		provider = "google"
	}

	u, err := h.users.UpsertFromIdentity(cctx, user.Identity{
		ExternalID: claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name(),
		AvatarURL:  claims.AvatarURL(),
		Provider:   provider,
	})

	if err != nil {
		h.countAuth("session_create", "error")
		RespondInternal(ctx, "Could not create session")
		return
	}

	sessionID := uuid.NewString()

	raw, expiresAt, err := h.tokens.Mint(u.ID, sessionID)

	if err != nil {
		h.countAuth("session_create", "error")
		RespondInternal(ctx, "Could not create session")
		return
	}

	rec := sessions.Record{
		ID:        sessionID,
		UserID:    u.ID,
		Device:    sessions.DeviceSummary(ctx.GetHeader("User-Agent")),
		IP:        ctx.ClientIP(),
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	err = h.observeSession("create", func() error {
		return h.sessions.Create(cctx, h.tokens.Hash(raw), rec, h.cfg.SessionTTL)
	})

	if err != nil {
		h.countAuth("session_create", "error")
		RespondInternal(ctx, "Could not create session")
		return
	}

	if h.obs != nil {
		h.obs.SessionsAlive.Inc()
	}

	h.countAuth("session_create", "ok")
	h.setSessionCookie(ctx, raw, expiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    u,
	})
}

// Me serves the profile for the cookie-authenticated caller. Runs
// behind RequireSession.
func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		h.countAuth("me", "unauthorized")
		RespondUnauthorized(ctx, "unauthorized", "Not authenticated")
		return
	}

	// short timeout for DB lookup
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)

	if err != nil {
		// a live session pointing at a deleted user is not authenticated
		h.countAuth("me", "unauthorized")
		RespondUnauthorized(ctx, "unauthorized", "Not authenticated")
		return
	}

	h.countAuth("me", "ok")
	ctx.JSON(http.StatusOK, u)
}

// Logout revokes the session record and clears the cookie. Always
// answers success: running it twice, or without a cookie at all, ends
// in the same logged-out place.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.cfg.CookieName)

	if err == nil && raw != "" {
		cctx, cancel := config.WithTimeout(3 * time.Second)
		defer cancel()

		hash := h.tokens.Hash(raw)

		err = h.observeSession("delete", func() error {
			return h.sessions.Delete(cctx, hash)
		})

		if err != nil {
			h.log.WarnContext(ctx.Request.Context(), "session delete failed on logout", "err", err)
		} else if h.obs != nil {
			h.obs.SessionsAlive.Dec()
		}
	}

	h.clearSessionCookie(ctx)
	h.countAuth("logout", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out successfully",
	})
}

// Refresh rotates the session cookie. Runs behind RequireSession, so
// the old token is known to be live.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)
	sessionID, _ := middlewares.SessionIDFromContext(ctx)
	oldHash, _ := middlewares.TokenHashFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	rec, err := h.sessions.Get(cctx, oldHash)

	if err != nil {
		h.countAuth("refresh", "unauthorized")
		RespondUnauthorized(ctx, "unauthorized", "Not authenticated")
		return
	}

	raw, expiresAt, err := h.tokens.Mint(userID, sessionID)

	if err != nil {
		h.countAuth("refresh", "error")
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	rec.ExpiresAt = expiresAt

	err = h.observeSession("rotate", func() error {
		if err := h.sessions.Create(cctx, h.tokens.Hash(raw), rec, h.cfg.SessionTTL); err != nil {
			return err
		}

		return h.sessions.Delete(cctx, oldHash)
	})

	if err != nil {
		h.countAuth("refresh", "error")
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	h.countAuth("refresh", "ok")
	h.setSessionCookie(ctx, raw, expiresAt)

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// Helper functions

func (h *AuthHandler) setSessionCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"

	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteLaxMode)

	ctx.SetCookie(
		h.cfg.CookieName,
		raw,
		maxAge,
		"/",
		"",
		secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearSessionCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(
		h.cfg.CookieName,
		"",
		-1,
		"/",
		"",
		secure,
		true,
	)
}

func (h *AuthHandler) countAuth(op, result string) {
	if h.obs != nil {
		h.obs.CountAuth(op, result)
	}
}

func (h *AuthHandler) observeSession(op string, fn func() error) error {
	if h.obs == nil {
		return fn()
	}

	return h.obs.ObserveSession(op, fn)
}
