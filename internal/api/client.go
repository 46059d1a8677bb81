package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"authgate/internal/schema"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// APIError is any non-2xx answer from the backend, plus schema
// mismatches reported as status 500. Transport failures are never
// wrapped in it.
type APIError struct {
	Message string
	Status  int
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}

	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

const (
	defaultTimeout = 10 * time.Second

	fallbackMessage      = "Request failed"
	invalidFormatMessage = "Invalid response format"
)

// Client is the single point of contact with the identity backend.
// The cookie jar carries the session cookie across calls, the same way
// a browser sends credentials on every request.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
	tracer  trace.Tracer
}

func New(baseURL string, log *slog.Logger) *Client {
	// cookiejar.New never fails with a nil options struct
	jar, _ := cookiejar.New(nil)

	return newWithJar(baseURL, jar, log)
}

// NewPersistent is New with the cookie jar stored on disk, for
// consumers whose lifetime is a single command rather than a browser
// session. An empty cookiePath resolves to the user config dir.
func NewPersistent(baseURL, cookiePath string, log *slog.Logger) (*Client, error) {
	jar, err := newFileJar(cookiePath)

	if err != nil {
		return nil, err
	}

	return newWithJar(baseURL, jar, log), nil
}

func newWithJar(baseURL string, jar http.CookieJar, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Jar:     jar,
			Timeout: defaultTimeout,
		},
		log:    log,
		tracer: otel.Tracer("authgate/api"),
	}
}

// errorBody is the backend's error envelope. Older deployments used
// "message" instead of "detail", so both are tried.
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, method+" "+path)
	defer span.End()

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)

		if err != nil {
			return nil, err
		}

		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)

	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)

	if err != nil {
		// network-level failure, propagate as-is
		span.SetStatus(codes.Error, "transport failure")
		return nil, err
	}

	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)

	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, raw)
	}

	return raw, nil
}

// newAPIError pulls message and code out of the error body best
// effort; an absent or unparsable body falls back to a generic text.
func newAPIError(status int, raw []byte) *APIError {
	var eb errorBody

	msg := fallbackMessage
	code := ""

	if err := json.Unmarshal(raw, &eb); err == nil {
		code = eb.Code

		switch {
		case eb.Detail != "":
			msg = eb.Detail
		case eb.Message != "":
			msg = eb.Message
		}
	}

	return &APIError{Message: msg, Status: status, Code: code}
}

// invalidFormat maps a schema mismatch onto a fixed APIError so raw
// validation detail never reaches consumers. The violated fields go to
// the debug log only.
func (c *Client) invalidFormat(ctx context.Context, path string, err error) *APIError {
	var verr *schema.ValidationError

	if errors.As(err, &verr) {
		c.log.DebugContext(ctx, "response validation failed", "path", path, "fields", verr.Fields)
	}

	return &APIError{Message: invalidFormatMessage, Status: http.StatusInternalServerError}
}

func (c *Client) GetCurrentUser(ctx context.Context) (schema.User, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, nil)

	if err != nil {
		return schema.User{}, err
	}

	u, err := schema.ParseUser(raw)

	if err != nil {
		var verr *schema.ValidationError

		if errors.As(err, &verr) {
			return schema.User{}, c.invalidFormat(ctx, "/api/v1/auth/me", err)
		}

		return schema.User{}, err
	}

	return u, nil
}

type sessionRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) CreateSession(ctx context.Context, accessToken, refreshToken string) (schema.SessionResponse, error) {
	body := sessionRequest{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}

	raw, err := c.do(ctx, http.MethodPost, "/api/v1/auth/session", body, nil)

	if err != nil {
		return schema.SessionResponse{}, err
	}

	resp, err := schema.ParseSessionResponse(raw)

	if err != nil {
		var verr *schema.ValidationError

		if errors.As(err, &verr) {
			return schema.SessionResponse{}, c.invalidFormat(ctx, "/api/v1/auth/session", err)
		}

		return schema.SessionResponse{}, err
	}

	return resp, nil
}

func (c *Client) Logout(ctx context.Context) (schema.LogoutResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)

	if err != nil {
		return schema.LogoutResponse{}, err
	}

	resp, err := schema.ParseLogoutResponse(raw)

	if err != nil {
		var verr *schema.ValidationError

		if errors.As(err, &verr) {
			return schema.LogoutResponse{}, c.invalidFormat(ctx, "/api/v1/auth/logout", err)
		}

		return schema.LogoutResponse{}, err
	}

	return resp, nil
}

// RefreshToken is used for its cookie side effect only; the response
// body is not validated.
func (c *Client) RefreshToken(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", nil, nil)

	return err
}

// GoogleLoginURL builds the OAuth entry point. No network call: the
// caller is expected to navigate there wholesale.
func (c *Client) GoogleLoginURL() string {
	return c.baseURL + "/api/v1/auth/login/google"
}
