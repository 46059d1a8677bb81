package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"authgate/internal/api"
	"authgate/internal/schema"
	"authgate/internal/store"
)

// BackendClient is what the controller needs from the remote client.
// Kept small so tests can fake it easily.
type BackendClient interface {
	GetCurrentUser(ctx context.Context) (schema.User, error)
	CreateSession(ctx context.Context, accessToken, refreshToken string) (schema.SessionResponse, error)
	Logout(ctx context.Context) (schema.LogoutResponse, error)
	RefreshToken(ctx context.Context) error
	GoogleLoginURL() string
}

const fetchFallbackMessage = "Failed to fetch user"

// Controller owns the business policy of the auth state machine: which
// failures are benign, which are user-visible, and when state resets.
type Controller struct {
	api      BackendClient
	store    *store.Store
	navigate func(url string)
	log      *slog.Logger

	mu  sync.Mutex
	gen uint64
}

// New wires a controller. navigate performs the full-page boundary
// crossing for redirect-based flows; it must not return control to the
// auth flow.
func New(client BackendClient, st *store.Store, navigate func(url string), log *slog.Logger) *Controller {
	if navigate == nil {
		navigate = func(string) {}
	}

	return &Controller{
		api:      client,
		store:    st,
		navigate: navigate,
		log:      log,
	}
}

// FetchUser reconciles local state against the backend. Safe to call
// any number of times; overlapping calls are tagged with a generation
// and a superseded completion is discarded without touching the store.
func (c *Controller) FetchUser(ctx context.Context) {
	gen := c.nextGen()

	c.store.SetLoading(true)

	user, err := c.api.GetCurrentUser(ctx)

	if !c.current(gen) {
		c.log.DebugContext(ctx, "stale reconciliation discarded", "gen", gen)
		return
	}

	if err == nil {
		c.store.SetUser(&user)
		return
	}

	var apiErr *api.APIError

	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		// no session cookie, or an expired one; expected and benign
		c.store.ClearAuth()
		return
	}

	c.store.SetError(userMessage(err))
}

// CompleteLogin exchanges the tokens handed back by the OAuth redirect
// for a session cookie, then adopts the confirmed user.
func (c *Controller) CompleteLogin(ctx context.Context, accessToken, refreshToken string) {
	gen := c.nextGen()

	c.store.SetLoading(true)

	resp, err := c.api.CreateSession(ctx, accessToken, refreshToken)

	if !c.current(gen) {
		c.log.DebugContext(ctx, "stale session exchange discarded", "gen", gen)
		return
	}

	if err != nil {
		c.store.SetError(userMessage(err))
		return
	}

	user := resp.User
	c.store.SetUser(&user)
}

// Logout is unconditionally successful from the client's perspective:
// cookie invalidation is the server's job, and a failure to confirm it
// must not leave stale authenticated state behind.
func (c *Controller) Logout(ctx context.Context) {
	_, err := c.api.Logout(ctx)

	if err != nil {
		c.log.DebugContext(ctx, "logout call failed, clearing anyway", "err", err)
	}

	c.store.ClearAuth()
	c.navigate("/")
}

// LoginWithGoogle leaves the client context entirely. The next state
// transition happens only after a fresh start re-runs FetchUser.
func (c *Controller) LoginWithGoogle() {
	c.navigate(c.api.GoogleLoginURL())
}

// RefreshSession extends the session cookie. Best effort: a failure is
// logged and local state is left alone, the next reconciliation will
// sort out whether the session survived.
func (c *Controller) RefreshSession(ctx context.Context) {
	if err := c.api.RefreshToken(ctx); err != nil {
		c.log.DebugContext(ctx, "session refresh failed", "err", err)
	}
}

func (c *Controller) nextGen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	return c.gen
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return gen == c.gen
}

// userMessage picks the text surfaced to consumers. APIError carries a
// message already scrubbed for display; anything else falls back to
// its native error text.
func userMessage(err error) string {
	var apiErr *api.APIError

	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	if err != nil && err.Error() != "" {
		return err.Error()
	}

	return fetchFallbackMessage
}
