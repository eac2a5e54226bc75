// Package nav tracks the client's current location and builds the redirect
// URLs used by the login flow.
package nav

import (
	"net/url"
	"strings"
	"sync"
)

const (
	// LoginPath is where unauthenticated clients are sent.
	LoginPath = "/login"

	// redirectParam carries the return URL through the login flow.
	redirectParam = "redirect"
)

// Navigator records the client's route history. At most one location is
// current at a time; Push with replace rewrites the current entry instead of
// appending.
type Navigator struct {
	baseURL *url.URL

	mu      sync.Mutex
	history []string
}

// New returns a Navigator rooted at baseURL.
func New(baseURL string) (*Navigator, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	return &Navigator{baseURL: u, history: []string{"/"}}, nil
}

// Push navigates to path. When replace is set the current history entry is
// overwritten, mirroring history.replaceState semantics.
func (n *Navigator) Push(path string, replace bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if replace {
		n.history[len(n.history)-1] = path
		return
	}
	n.history = append(n.history, path)
}

// Current returns the current location path.
func (n *Navigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.history[len(n.history)-1]
}

// CreateRedirect builds the login path carrying location as the return URL.
func (n *Navigator) CreateRedirect(location string) string {
	v := url.Values{}
	v.Set(redirectParam, location)
	return LoginPath + "?" + v.Encode()
}

// ExtractRedirect pulls the return URL out of rawURL. It returns "/" when
// the parameter is missing or the URL does not parse.
func (n *Navigator) ExtractRedirect(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	if r := u.Query().Get(redirectParam); r != "" {
		return r
	}
	return "/"
}

// EnsureBaseURL resolves raw against the configured base. Absolute URLs on a
// foreign host are discarded in favor of the base root, so a crafted return
// URL can never navigate off-site.
func (n *Navigator) EnsureBaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return n.baseURL.String() + "/"
	}
	if u.Host != "" && u.Host != n.baseURL.Host {
		return n.baseURL.String() + "/"
	}
	return n.baseURL.ResolveReference(u).String()
}

// EnsurePath runs raw through [Navigator.EnsureBaseURL] and returns the
// local path and query, suitable for [Navigator.Push].
func (n *Navigator) EnsurePath(raw string) string {
	u, err := url.Parse(n.EnsureBaseURL(raw))
	if err != nil || u.Path == "" {
		return "/"
	}
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}
