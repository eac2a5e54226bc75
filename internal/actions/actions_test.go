package actions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xinggaoya/websess/internal/api"
	"github.com/xinggaoya/websess/internal/db"
	"github.com/xinggaoya/websess/internal/nav"
	"github.com/xinggaoya/websess/internal/session"
	"github.com/xinggaoya/websess/internal/state"
	"github.com/xinggaoya/websess/internal/storage"
)

type fakeClient struct {
	postErr error
	token   string
}

// Get implements api.Client.
func (f *fakeClient) Get(ctx context.Context, path string, out any) error { return nil }

// Post implements api.Client.
func (f *fakeClient) Post(ctx context.Context, path string, body, out any) error {
	if f.postErr != nil {
		return f.postErr
	}
	if out != nil && f.token != "" {
		data, _ := json.Marshal(map[string]any{"token": f.token, "expires_in": 3600})
		return json.Unmarshal(data, out)
	}
	return nil
}

// Delete implements api.Client.
func (f *fakeClient) Delete(ctx context.Context, path string) error { return nil }

type fixture struct {
	handlers   *Handlers
	dispatcher *state.Store
	nav        *nav.Navigator
	manager    *session.Manager
	store      *storage.Store
}

func newFixture(t *testing.T, client api.Client) *fixture {
	t.Helper()

	conn, err := db.Connect(t.Context(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := storage.New(conn, storage.NewBroker())
	navigator, err := nav.New("https://app.example.com")
	require.NoError(t, err)

	dispatcher := state.NewStore()
	manager := session.NewManager(client, store, navigator, session.Options{})
	t.Cleanup(manager.Close)

	return &fixture{
		handlers:   New(client, dispatcher, navigator, manager),
		dispatcher: dispatcher,
		nav:        navigator,
		manager:    manager,
		store:      store,
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t, &fakeClient{token: "fresh-token"})
	f.nav.Push(f.nav.CreateRedirect("/reports/42"), false)

	actions := f.dispatcher.Subscribe()
	require.NoError(t, f.handlers.Login(t.Context(), "me@example.com", "hunter2"))

	first := <-actions
	require.Equal(t, ActionLogin, first.Type)
	require.Equal(t, state.StatusStart, first.Status)
	second := <-actions
	require.Equal(t, state.StatusSuccess, second.Status)

	// Token stored for every instance to pick up.
	raw, ok, err := f.store.Get(t.Context(), storage.TokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	var tok session.Token
	require.NoError(t, json.Unmarshal([]byte(raw), &tok))
	require.Equal(t, "fresh-token", tok.AccessToken)
	require.Positive(t, tok.TimeLeft(time.Now()))

	// Navigated to the return URL carried by the login route.
	require.Equal(t, "/reports/42", f.nav.Current())
}

func TestLoginRejectsOffSiteRedirect(t *testing.T) {
	f := newFixture(t, &fakeClient{token: "fresh-token"})
	f.nav.Push(f.nav.CreateRedirect("https://evil.example.net/phish"), false)

	require.NoError(t, f.handlers.Login(t.Context(), "me@example.com", "hunter2"))

	// A return URL on a foreign host collapses to the app root.
	require.Equal(t, "/", f.nav.Current())
}

func TestLoginFailureCarriesDisplayMessage(t *testing.T) {
	client := &fakeClient{postErr: &api.StatusError{Code: 401, Body: `{"message":"Invalid credentials"}`}}
	f := newFixture(t, client)

	err := f.handlers.Login(t.Context(), "me@example.com", "wrong")
	require.Error(t, err)

	last, ok := f.dispatcher.Last(ActionLogin)
	require.True(t, ok)
	require.Equal(t, state.StatusFail, last.Status)
	require.Equal(t, "Invalid credentials", last.Payload)

	// No navigation on failure; the user retries from where they are.
	require.Equal(t, "/", f.nav.Current())
}

func TestAcceptInviteSuccess(t *testing.T) {
	f := newFixture(t, &fakeClient{})

	require.NoError(t, f.handlers.AcceptInvite(t.Context(), "invite-token", "new-password"))

	last, ok := f.dispatcher.Last(ActionInvite)
	require.True(t, ok)
	require.Equal(t, state.StatusSuccess, last.Status)

	// Sent to login with the app root as return URL.
	require.Equal(t, "/login?redirect=%2F", f.nav.Current())
}

func TestAcceptInviteFailure(t *testing.T) {
	client := &fakeClient{postErr: &api.StatusError{Code: 400, Body: `{"error":"Invite token already used"}`}}
	f := newFixture(t, client)

	err := f.handlers.AcceptInvite(t.Context(), "stale-token", "pw")
	require.Error(t, err)

	last, _ := f.dispatcher.Last(ActionInvite)
	require.Equal(t, state.StatusFail, last.Status)
	require.Equal(t, "Invite token already used", last.Payload)
}

func TestLogoutDispatchesAndClears(t *testing.T) {
	f := newFixture(t, &fakeClient{token: "fresh-token"})
	require.NoError(t, f.handlers.Login(t.Context(), "me@example.com", "hunter2"))

	f.handlers.Logout(t.Context())

	last, ok := f.dispatcher.Last(ActionLogout)
	require.True(t, ok)
	require.Equal(t, state.StatusSuccess, last.Status)
	require.Equal(t, nav.LoginPath, f.nav.Current())
	require.Equal(t, session.StateNoSession, f.manager.State())

	_, present, err := f.store.Get(t.Context(), storage.TokenKey)
	require.NoError(t, err)
	require.False(t, present)
}
