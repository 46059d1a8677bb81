package sessions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mssola/useragent"
)

var ErrNotFound = errors.New("session not found")

// Record is the revocable server-side half of a session. It is keyed
// by the HMAC hash of the cookie token, so presenting a token that
// verifies but has been revoked still fails.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Device    string    `json:"device"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Store interface {
	Create(ctx context.Context, tokenHash string, rec Record, ttl time.Duration) error
	Get(ctx context.Context, tokenHash string) (Record, error)
	// Delete is idempotent; removing an absent session is not an error.
	Delete(ctx context.Context, tokenHash string) error
}

// DeviceSummary renders a short human-readable device line for a
// session record, e.g. "Chrome on Mac OS X".
func DeviceSummary(rawUA string) string {
	if strings.TrimSpace(rawUA) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUA)

	browser, _ := ua.Browser()
	os := ua.OS()

	if browser == "" {
		browser = "Unknown Browser"
	}

	if os == "" {
		os = ua.Platform()
	}

	if os == "" {
		os = "Unknown OS"
	}

	return browser + " on " + os
}
