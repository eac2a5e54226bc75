// Package session keeps a client-side bearer-token session alive: it tracks
// the current token, renews it before expiry, polls the server for
// invalidation, and follows logout signals from other open instances through
// the shared store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/xinggaoya/websess/internal/api"
	"github.com/xinggaoya/websess/internal/event"
	"github.com/xinggaoya/websess/internal/metrics"
	"github.com/xinggaoya/websess/internal/nav"
	"github.com/xinggaoya/websess/internal/page"
	"github.com/xinggaoya/websess/internal/storage"
)

// CheckInterval is how often the periodic checker runs. Renewal triggers
// below 1.5 intervals of remaining token life, status probes only above 2.
const CheckInterval = 15 * time.Second

const (
	renewPath  = "/api/v1/session/renew"
	statusPath = "/api/v1/session/status"
	logoutPath = "/api/v1/session"
)

// ErrNoSession means no token could be found in the embedded payload or the
// shared store. Callers send the user to the login view.
var ErrNoSession = errors.New("session: no token available")

// State is the tab-local session state.
type State int

const (
	StateNoSession State = iota
	StateActive
	StateRenewing
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRenewing:
		return "renewing"
	default:
		return "no session"
	}
}

// Options configures a [Manager].
type Options struct {
	// Interval overrides [CheckInterval]. Used by tests.
	Interval time.Duration
	// Payload is the embedded page payload source, when the app shell was
	// loaded with one.
	Payload *page.Source
	// Metrics receives lifecycle counters. Defaults to [metrics.Default].
	Metrics *metrics.Metrics
}

// Manager owns one instance's session state: the current token, the renewing
// flag, and the single periodic checker. All methods are safe for concurrent
// use.
type Manager struct {
	client   api.Client
	store    *storage.Store
	nav      *nav.Navigator
	payload  *page.Source
	interval time.Duration
	metrics  *metrics.Metrics

	mu          sync.Mutex
	token       *Token
	renewing    bool
	subscribed  bool
	checkerStop chan struct{}
}

// NewManager returns a Manager using client for server calls, store for
// shared persistence, and navigator for view changes.
func NewManager(client api.Client, store *storage.Store, navigator *nav.Navigator, opts Options) *Manager {
	interval := opts.Interval
	if interval <= 0 {
		interval = CheckInterval
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Default
	}
	return &Manager{
		client:   client,
		store:    store,
		nav:      navigator,
		payload:  opts.Payload,
		interval: interval,
		metrics:  m,
	}
}

type renewResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// EnsureSession makes sure a usable token exists and the periodic checker is
// running. Any previously running checker is stopped first, so at most one
// is ever active. When the token is near expiry it is renewed before the
// checker starts; otherwise the checker starts right away. Returns
// [ErrNoSession] when no token can be found anywhere.
func (m *Manager) EnsureSession(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	m.stopCheckerLocked()
	if !m.subscribed {
		events := m.store.Subscribe()
		m.subscribed = true
		go m.watchStore(events)
	}
	tok := m.token
	m.mu.Unlock()

	if tok == nil {
		var err error
		tok, err = m.loadToken(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.token = tok
		m.mu.Unlock()
	}

	if tok.NearExpiry(m.interval, time.Now()) && !m.isRenewing() {
		if err := m.renew(ctx); err != nil {
			return nil, err
		}
		m.mu.Lock()
		tok = m.token
		m.mu.Unlock()
	}

	m.startChecker()
	return tok, nil
}

// Logout ends the session: a best-effort server-side termination request,
// navigation to the login view, and a full wipe of local and shared state.
func (m *Manager) Logout(ctx context.Context) {
	event.LogoutRequested()
	m.logout(ctx, false)
}

func (m *Manager) forceLogout(ctx context.Context, reason string) {
	event.LogoutForced(reason)
	m.logout(ctx, true)
}

func (m *Manager) logout(ctx context.Context, forced bool) {
	// Navigation and cleanup do not depend on the server accepting the
	// termination request.
	if err := m.client.Delete(ctx, logoutPath); err != nil {
		slog.Debug("Session termination request failed", "error", err)
	}

	m.nav.Push(nav.LoginPath, true)

	m.mu.Lock()
	m.stopCheckerLocked()
	m.token = nil
	m.renewing = false
	subscribed := m.subscribed
	m.subscribed = false
	m.mu.Unlock()

	if subscribed {
		m.store.Unsubscribe()
	}
	if err := m.store.Clear(ctx); err != nil {
		slog.Error("Failed to clear session store", "error", err)
	}

	m.metrics.RecordLogout(forced)
}

// Token returns the current token, or nil outside an active session.
func (m *Manager) Token() *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// State reports the tab-local session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.token == nil:
		return StateNoSession
	case m.renewing:
		return StateRenewing
	default:
		return StateActive
	}
}

// SetToken installs a freshly acquired token (login, invite acceptance) and
// persists it to the shared store.
func (m *Manager) SetToken(ctx context.Context, tok *Token) error {
	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
	return m.persistToken(ctx, tok)
}

// Close stops the checker and store subscription without touching session
// state. Used on process shutdown; the session itself stays valid.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopCheckerLocked()
	subscribed := m.subscribed
	m.subscribed = false
	m.mu.Unlock()
	if subscribed {
		m.store.Unsubscribe()
	}
}

// loadToken finds a token, preferring the embedded page payload over the
// shared store. A malformed payload is logged and treated as absent.
func (m *Manager) loadToken(ctx context.Context) (*Token, error) {
	if m.payload != nil {
		p, err := m.payload.Take()
		switch {
		case err == nil:
			tok := NewToken(p.Token, p.ExpiresIn, time.Now())
			if err := m.persistToken(ctx, tok); err != nil {
				slog.Error("Failed to persist embedded token", "error", err)
			}
			event.SessionStarted()
			return tok, nil
		case !errors.Is(err, page.ErrNoPayload):
			slog.Error("Failed to read embedded session payload", "error", err)
		}
	}

	raw, ok, err := m.store.Get(ctx, storage.TokenKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSession
	}
	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		slog.Error("Failed to decode stored token", "error", err)
		return nil, ErrNoSession
	}
	return &tok, nil
}

func (m *Manager) persistToken(ctx context.Context, tok *Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, storage.TokenKey, string(data))
}

// renew replaces the token with a fresh one. Failure forces a logout, so a
// tab never keeps running on a token it knows it cannot refresh.
func (m *Manager) renew(ctx context.Context) error {
	m.setRenewing(ctx, true)
	defer m.setRenewing(ctx, false)

	start := time.Now()
	var resp renewResponse
	if err := m.client.Post(ctx, renewPath, nil, &resp); err != nil {
		m.metrics.RecordRenewal(time.Since(start), false)
		event.RenewalFailed()
		slog.Error("Session renewal failed, logging out", "error", err)
		m.forceLogout(ctx, "renewal_failed")
		return fmt.Errorf("session renewal failed: %w", err)
	}
	m.metrics.RecordRenewal(time.Since(start), true)
	event.TokenRenewed()

	tok := NewToken(resp.Token, resp.ExpiresIn, time.Now())
	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
	if err := m.persistToken(ctx, tok); err != nil {
		slog.Error("Failed to persist renewed token", "error", err)
	}
	return nil
}

// setRenewing flips the local flag and broadcasts it to other instances as a
// one-shot signal: the key is written for its change event and removed right
// away, never kept as persistent state. The signal is advisory; two tabs
// deciding to renew inside the propagation window is tolerated.
func (m *Manager) setRenewing(ctx context.Context, renewing bool) {
	m.mu.Lock()
	m.renewing = renewing
	m.mu.Unlock()

	if err := m.store.Set(ctx, storage.RenewingKey, strconv.FormatBool(renewing)); err != nil {
		slog.Warn("Failed to broadcast renewing flag", "error", err)
		return
	}
	if err := m.store.Remove(ctx, storage.RenewingKey); err != nil {
		slog.Warn("Failed to clear renewing flag", "error", err)
	}
}

func (m *Manager) isRenewing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renewing
}

// startChecker starts the periodic checker, stopping any previous one first.
func (m *Manager) startChecker() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCheckerLocked()

	stop := make(chan struct{})
	m.checkerStop = stop
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), m.interval)
				m.check(ctx)
				cancel()
			}
		}
	}()
}

func (m *Manager) stopCheckerLocked() {
	if m.checkerStop != nil {
		close(m.checkerStop)
		m.checkerStop = nil
	}
}

// check is one tick of the periodic checker: re-ensure the session (which
// handles renewal and restarts the timer), then, when renewal is not even
// close, probe the server for invalidation.
func (m *Manager) check(ctx context.Context) {
	if _, err := m.EnsureSession(ctx); err != nil {
		slog.Debug("Session check could not ensure a session", "error", err)
		return
	}

	m.mu.Lock()
	tok, renewing := m.token, m.renewing
	m.mu.Unlock()
	if tok == nil || renewing {
		return
	}

	if tok.FarFromExpiry(m.interval, time.Now()) {
		m.probe(ctx)
	}
}

// probe asks the server whether the session is still honored. 403 means it
// was invalidated server-side; any other failure is logged and retried on
// the next tick.
func (m *Manager) probe(ctx context.Context) {
	err := m.client.Get(ctx, statusPath, nil)
	if err == nil {
		m.metrics.RecordProbe(false, false)
		return
	}
	if api.StatusCode(err) == http.StatusForbidden {
		m.metrics.RecordProbe(true, false)
		slog.Info("Session invalidated by server, logging out")
		m.forceLogout(ctx, "server_rejected")
		return
	}
	m.metrics.RecordProbe(false, true)
	slog.Warn("Session status probe failed", "error", err)
}

func (m *Manager) watchStore(events <-chan storage.Event) {
	for ev := range events {
		m.handleStoreEvent(ev)
	}
}

// handleStoreEvent mirrors another instance's changes: a renewing broadcast
// is copied into local state so this tab skips a duplicate renewal; a
// removed or cleared token means another tab logged out, and this one
// follows.
func (m *Manager) handleStoreEvent(ev storage.Event) {
	m.metrics.RecordStoreEvent()
	switch {
	case ev.Key == storage.RenewingKey && ev.Value != nil:
		m.mu.Lock()
		m.renewing = *ev.Value == "true"
		m.mu.Unlock()
	case (ev.Key == storage.TokenKey && ev.Value == nil) || ev.Key == "":
		m.mu.Lock()
		hasSession := m.token != nil
		m.mu.Unlock()
		if !hasSession {
			return
		}
		slog.Info("Session cleared by another tab, logging out")
		ctx, cancel := context.WithTimeout(context.Background(), m.interval)
		defer cancel()
		m.forceLogout(ctx, "cross_tab_clear")
	}
}
