package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"authgate/internal/config"
	"authgate/internal/domain/user"
	"authgate/internal/sessions"
	"authgate/internal/tokens"
)

const testSecret = "test-secret"

type fakeUsers struct {
	byID      map[string]user.User
	upsertErr error
	getErr    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]user.User)}
}

func (f *fakeUsers) UpsertFromIdentity(_ context.Context, ident user.Identity) (user.User, error) {
	if f.upsertErr != nil {
		return user.User{}, f.upsertErr
	}

	u := user.User{
		ID:        ident.ExternalID,
		Email:     ident.Email,
		Role:      user.DefaultRole,
		CreatedAt: time.Now().UTC(),
	}

	if ident.Name != "" {
		u.Name = &ident.Name
	}

	if ident.Provider != "" {
		u.Provider = &ident.Provider
	}

	f.byID[u.ID] = u

	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (user.User, error) {
	if f.getErr != nil {
		return user.User{}, f.getErr
	}

	u, ok := f.byID[id]

	if !ok {
		return user.User{}, errors.New("user not found")
	}

	return u, nil
}

func testConfig() config.Config {
	return config.Config{
		Env:               "test",
		CookieName:        "ag_session",
		SessionSecret:     testSecret,
		SessionTTL:        time.Hour,
		CORSOrigins:       []string{"http://localhost:3000"},
		OAuthAuthorizeURL: "https://provider.example/auth/v1/authorize?provider=google",
	}
}

func newTestRouter(t *testing.T, users *fakeUsers) (*gin.Engine, *sessions.MemoryStore) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessionStore := sessions.NewMemoryStore()

	router := NewRouter(testConfig(), log, Deps{
		Users:    users,
		Sessions: sessionStore,
		Tokens:   tokens.NewManager(testSecret, time.Hour),
		ReadinessMap: map[string]func() error{
			"ok": func() error { return nil },
		},
	})

	return router, sessionStore
}

func signIdentityToken(t *testing.T, sub, email string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]any{
			"name":       "Ada",
			"avatar_url": "https://img.example/a.png",
		},
		"app_metadata": map[string]any{
			"provider": "google",
		},
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))

	if err != nil {
		t.Fatalf("sign identity token: %v", err)
	}

	return raw
}

func doJSON(router *gin.Engine, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader

	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == "ag_session" && c.Value != "" {
			return c
		}
	}

	t.Fatal("no session cookie in response")
	return nil
}

func createSession(t *testing.T, router *gin.Engine) *http.Cookie {
	t.Helper()

	body := `{"access_token": "` + signIdentityToken(t, "ext-1", "a@b.com") + `", "refresh_token": "r"}`
	w := doJSON(router, http.MethodPost, "/api/v1/auth/session", body)

	if w.Code != http.StatusOK {
		t.Fatalf("create session: status %d, body %s", w.Code, w.Body.String())
	}

	return sessionCookie(t, w)
}

func TestLoginGoogleRedirects(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	w := doJSON(router, http.MethodGet, "/api/v1/auth/login/google", "")

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status %d, want 307", w.Code)
	}

	if loc := w.Header().Get("Location"); loc != testConfig().OAuthAuthorizeURL {
		t.Fatalf("redirect to %q", loc)
	}
}

func TestCreateSession(t *testing.T) {
	users := newFakeUsers()
	router, _ := newTestRouter(t, users)

	body := `{"access_token": "` + signIdentityToken(t, "ext-1", "a@b.com") + `", "refresh_token": "r"}`
	w := doJSON(router, http.MethodPost, "/api/v1/auth/session", body)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool      `json:"success"`
		User    user.User `json:"user"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !resp.Success || resp.User.Email != "a@b.com" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if _, ok := users.byID["ext-1"]; !ok {
		t.Fatal("identity was not upserted")
	}

	c := sessionCookie(t, w)

	if !c.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}

	if c.Path != "/" {
		t.Fatalf("cookie path %q", c.Path)
	}
}

func TestCreateSessionInvalidToken(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	w := doJSON(router, http.MethodPost, "/api/v1/auth/session", `{"access_token": "garbage", "refresh_token": "r"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", w.Code)
	}

	if !strings.Contains(w.Body.String(), "Invalid authentication tokens") {
		t.Fatalf("body %s", w.Body.String())
	}
}

func TestCreateSessionMissingFields(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	w := doJSON(router, http.MethodPost, "/api/v1/auth/session", `{"access_token": "x"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}

	if !strings.Contains(w.Body.String(), "refresh_token") {
		t.Fatalf("body should name the missing field, got %s", w.Body.String())
	}
}

func TestMe(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())
	cookie := createSession(t, router)

	w := doJSON(router, http.MethodGet, "/api/v1/auth/me", "", cookie)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}

	var u user.User

	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if u.Email != "a@b.com" || u.Role != "user" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestMeWithoutCookie(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	w := doJSON(router, http.MethodGet, "/api/v1/auth/me", "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", w.Code)
	}

	if !strings.Contains(w.Body.String(), "Not authenticated") {
		t.Fatalf("body %s", w.Body.String())
	}
}

func TestMeWithForgedCookie(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	forged, _, err := tokens.NewManager("other-secret", time.Hour).Mint("user-1", "sess-1")

	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	w := doJSON(router, http.MethodGet, "/api/v1/auth/me", "", &http.Cookie{Name: "ag_session", Value: forged})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", w.Code)
	}
}

func TestMeAfterRevocation(t *testing.T) {
	router, store := newTestRouter(t, newFakeUsers())
	cookie := createSession(t, router)

	// revoke server side; the cookie itself is still a valid JWT
	hash := tokens.NewManager(testSecret, time.Hour).Hash(cookie.Value)

	if err := store.Delete(context.Background(), hash); err != nil {
		t.Fatalf("delete: %v", err)
	}

	w := doJSON(router, http.MethodGet, "/api/v1/auth/me", "", cookie)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401 after revocation", w.Code)
	}
}

func TestMeUserDeleted(t *testing.T) {
	users := newFakeUsers()
	router, _ := newTestRouter(t, users)
	cookie := createSession(t, router)

	delete(users.byID, "ext-1")

	w := doJSON(router, http.MethodGet, "/api/v1/auth/me", "", cookie)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401 for deleted user", w.Code)
	}
}

func TestLogout(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())
	cookie := createSession(t, router)

	w := doJSON(router, http.MethodPost, "/api/v1/auth/logout", "", cookie)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}

	if !strings.Contains(w.Body.String(), "Logged out successfully") {
		t.Fatalf("body %s", w.Body.String())
	}

	// the revoked cookie no longer authenticates
	me := doJSON(router, http.MethodGet, "/api/v1/auth/me", "", cookie)

	if me.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: status %d, want 401", me.Code)
	}
}

func TestLogoutWithoutCookie(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	w := doJSON(router, http.MethodPost, "/api/v1/auth/logout", "")

	if w.Code != http.StatusOK {
		t.Fatalf("logout must succeed without a session, got %d", w.Code)
	}
}

func TestLogoutTwice(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())
	cookie := createSession(t, router)

	for i := 0; i < 2; i++ {
		w := doJSON(router, http.MethodPost, "/api/v1/auth/logout", "", cookie)

		if w.Code != http.StatusOK {
			t.Fatalf("logout #%d: status %d", i+1, w.Code)
		}
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())
	oldCookie := createSession(t, router)

	w := doJSON(router, http.MethodPost, "/api/v1/auth/refresh", "", oldCookie)

	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status %d, body %s", w.Code, w.Body.String())
	}

	newCookie := sessionCookie(t, w)

	if newCookie.Value == oldCookie.Value {
		t.Fatal("refresh must issue a new token")
	}

	// the new cookie authenticates, the old one is gone
	if me := doJSON(router, http.MethodGet, "/api/v1/auth/me", "", newCookie); me.Code != http.StatusOK {
		t.Fatalf("me with rotated cookie: status %d", me.Code)
	}

	if me := doJSON(router, http.MethodGet, "/api/v1/auth/me", "", oldCookie); me.Code != http.StatusUnauthorized {
		t.Fatalf("me with old cookie: status %d, want 401", me.Code)
	}
}

func TestRefreshWithoutCookie(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	w := doJSON(router, http.MethodPost, "/api/v1/auth/refresh", "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", w.Code)
	}
}

func TestCreateSessionRateLimited(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	var last *httptest.ResponseRecorder

	for i := 0; i < 11; i++ {
		last = doJSON(router, http.MethodPost, "/api/v1/auth/session", `{"access_token": "x", "refresh_token": "y"}`)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("11th request: status %d, want 429", last.Code)
	}

	if last.Header().Get("Retry-After") == "" {
		t.Fatal("429 must carry Retry-After")
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	body := `{"access_token": "` + strings.Repeat("a", 1<<17) + `", "refresh_token": "r"}`
	w := doJSON(router, http.MethodPost, "/api/v1/auth/session", body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400 for an oversized body", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	w := doJSON(router, http.MethodGet, "/healthz", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

func TestReadyzReportsFailure(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := NewRouter(testConfig(), log, Deps{
		Users:    newFakeUsers(),
		Sessions: sessions.NewMemoryStore(),
		Tokens:   tokens.NewManager(testSecret, time.Hour),
		ReadinessMap: map[string]func() error{
			"postgres": func() error { return errors.New("down") },
		},
	})

	w := doJSON(router, http.MethodGet, "/readyz", "")

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", w.Code)
	}

	if !strings.Contains(w.Body.String(), "postgres") {
		t.Fatalf("body should name the failing dependency, got %s", w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/me", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", w.Code)
	}

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow-origin %q", got)
	}

	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("credentials must be allowed for cookie auth")
	}
}

func TestCORSUnknownOrigin(t *testing.T) {
	router, _ := newTestRouter(t, newFakeUsers())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unknown origin must not be allowed, got %q", got)
	}
}
