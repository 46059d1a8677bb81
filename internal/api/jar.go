package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const cookieFile = "cookies.json"

// fileJar keeps cookies on disk so consecutive short-lived processes
// share one session the way a browser profile would. The client talks
// to a single backend, so cookies are not partitioned by host.
type fileJar struct {
	mu      sync.Mutex
	path    string
	cookies map[string]http.Cookie
}

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitempty"`
}

// newFileJar resolves an empty path to the user config dir, next to
// the state snapshot.
func newFileJar(path string) (*fileJar, error) {
	if path == "" {
		dir, err := os.UserConfigDir()

		if err != nil {
			return nil, err
		}

		path = filepath.Join(dir, "authgate", cookieFile)
	}

	j := &fileJar{
		path:    path,
		cookies: make(map[string]http.Cookie),
	}

	raw, err := os.ReadFile(path)

	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return j, nil
		}

		return nil, err
	}

	var stored []storedCookie

	if err := json.Unmarshal(raw, &stored); err != nil {
		// a corrupt cookie file just means starting logged out
		return j, nil
	}

	now := time.Now()

	for _, c := range stored {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}

		j.cookies[c.Name] = http.Cookie{Name: c.Name, Value: c.Value, Expires: c.Expires}
	}

	return j, nil
}

func (j *fileJar) SetCookies(_ *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()

	for _, c := range cookies {
		if c.Name == "" {
			continue
		}

		// a negative Max-Age or a past Expires is a deletion
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			delete(j.cookies, c.Name)
			continue
		}

		exp := c.Expires

		if c.MaxAge > 0 {
			exp = now.Add(time.Duration(c.MaxAge) * time.Second)
		}

		j.cookies[c.Name] = http.Cookie{Name: c.Name, Value: c.Value, Expires: exp}
	}

	j.persist()
}

func (j *fileJar) Cookies(_ *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	out := make([]*http.Cookie, 0, len(j.cookies))

	for name, c := range j.cookies {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			delete(j.cookies, name)
			continue
		}

		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}

	return out
}

// persist is best effort, same policy as the state snapshot: failing
// to write the file must not fail the request that set the cookie.
func (j *fileJar) persist() {
	stored := make([]storedCookie, 0, len(j.cookies))

	for _, c := range j.cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value, Expires: c.Expires})
	}

	raw, err := json.Marshal(stored)

	if err != nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return
	}

	_ = os.WriteFile(j.path, raw, 0o600)
}
