package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xinggaoya/websess/internal/api"
	"github.com/xinggaoya/websess/internal/db"
	"github.com/xinggaoya/websess/internal/nav"
	"github.com/xinggaoya/websess/internal/page"
	"github.com/xinggaoya/websess/internal/storage"
)

type fakeClient struct {
	mu      sync.Mutex
	gets    []string
	posts   []string
	deletes []string

	getErr  error
	postErr error
	renewal *renewResponse
}

// Get implements api.Client.
func (f *fakeClient) Get(ctx context.Context, path string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, path)
	return f.getErr
}

// Post implements api.Client.
func (f *fakeClient) Post(ctx context.Context, path string, body, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, path)
	if f.postErr != nil {
		return f.postErr
	}
	if resp, ok := out.(*renewResponse); ok && f.renewal != nil {
		*resp = *f.renewal
	}
	return nil
}

// Delete implements api.Client.
func (f *fakeClient) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, path)
	return nil
}

func (f *fakeClient) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

func (f *fakeClient) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fixture struct {
	manager *Manager
	store   *storage.Store
	broker  *storage.Broker
	nav     *nav.Navigator
	client  *fakeClient
}

func newFixture(t *testing.T, client *fakeClient, opts Options) *fixture {
	t.Helper()

	conn, err := db.Connect(t.Context(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	broker := storage.NewBroker()
	store := storage.New(conn, broker)

	navigator, err := nav.New("https://app.example.com")
	require.NoError(t, err)

	m := NewManager(client, store, navigator, opts)
	t.Cleanup(m.Close)

	return &fixture{manager: m, store: store, broker: broker, nav: navigator, client: client}
}

func persistToken(t *testing.T, store *storage.Store, tok *Token) {
	t.Helper()
	data, err := json.Marshal(tok)
	require.NoError(t, err)
	require.NoError(t, store.Set(t.Context(), storage.TokenKey, string(data)))
}

func pageWithPayload(encoded string) *strings.Reader {
	return strings.NewReader(`<html><body><script id="session-data" type="text/plain">` + encoded + `</script></body></html>`)
}

func payloadSource(t *testing.T, token string, expiresIn int) *page.Source {
	t.Helper()
	blob, err := json.Marshal(map[string]any{"token": token, "expires_in": expiresIn})
	require.NoError(t, err)
	src, err := page.NewSource(pageWithPayload(base64.StdEncoding.EncodeToString(blob)))
	require.NoError(t, err)
	return src
}

func TestEnsureSessionWithoutToken(t *testing.T) {
	f := newFixture(t, &fakeClient{}, Options{})

	_, err := f.manager.EnsureSession(t.Context())
	require.ErrorIs(t, err, ErrNoSession)
	require.Equal(t, StateNoSession, f.manager.State())
}

func TestEnsureSessionFromStore(t *testing.T) {
	f := newFixture(t, &fakeClient{}, Options{})
	persistToken(t, f.store, NewToken("stored", 3600, time.Now()))

	tok, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)
	require.Equal(t, "stored", tok.AccessToken)
	require.Equal(t, StateActive, f.manager.State())
	// A fresh token needs no renewal.
	require.Zero(t, f.client.postCount())
}

func TestEnsureSessionRenewsNearExpiry(t *testing.T) {
	client := &fakeClient{renewal: &renewResponse{Token: "renewed", ExpiresIn: 3600}}
	f := newFixture(t, client, Options{})
	// 10s of life left is inside the 22.5s renewal threshold.
	persistToken(t, f.store, NewToken("old", 10, time.Now()))

	tok, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)
	require.Equal(t, "renewed", tok.AccessToken)
	require.Equal(t, 1, client.postCount())

	// The renewed token was persisted for other instances.
	raw, ok, err := f.store.Get(t.Context(), storage.TokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	var persisted Token
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	require.Equal(t, "renewed", persisted.AccessToken)
}

func TestEnsureSessionSkipsRenewalWhenAnotherTabRenews(t *testing.T) {
	client := &fakeClient{renewal: &renewResponse{Token: "renewed", ExpiresIn: 3600}}
	f := newFixture(t, client, Options{})
	persistToken(t, f.store, NewToken("old", 10, time.Now()))

	f.manager.mu.Lock()
	f.manager.renewing = true
	f.manager.mu.Unlock()

	tok, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)
	require.Equal(t, "old", tok.AccessToken)
	require.Zero(t, client.postCount())
}

func TestRenewalFailureForcesLogoutOnce(t *testing.T) {
	client := &fakeClient{postErr: &api.StatusError{Code: 401, Body: `{"message":"session expired"}`}}
	f := newFixture(t, client, Options{})
	persistToken(t, f.store, NewToken("old", 10, time.Now()))

	_, err := f.manager.EnsureSession(t.Context())
	require.Error(t, err)
	require.Equal(t, 1, client.deleteCount())
	require.Equal(t, StateNoSession, f.manager.State())
	require.Equal(t, nav.LoginPath, f.nav.Current())

	_, ok, storeErr := f.store.Get(t.Context(), storage.TokenKey)
	require.NoError(t, storeErr)
	require.False(t, ok)
}

func TestProbeForbiddenForcesLogout(t *testing.T) {
	client := &fakeClient{getErr: &api.StatusError{Code: 403, Body: "forbidden"}}
	f := newFixture(t, client, Options{})
	persistToken(t, f.store, NewToken("tok", 3600, time.Now()))

	_, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)

	f.manager.probe(t.Context())
	require.Equal(t, StateNoSession, f.manager.State())
	require.Equal(t, nav.LoginPath, f.nav.Current())
	require.Equal(t, 1, client.deleteCount())
}

func TestProbeOKKeepsSession(t *testing.T) {
	f := newFixture(t, &fakeClient{}, Options{})
	persistToken(t, f.store, NewToken("tok", 3600, time.Now()))

	_, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)

	f.manager.probe(t.Context())
	require.Equal(t, StateActive, f.manager.State())
	require.Zero(t, f.client.deleteCount())
}

func TestCheckProbesOnlyFarFromExpiry(t *testing.T) {
	t.Run("far from expiry probes", func(t *testing.T) {
		f := newFixture(t, &fakeClient{}, Options{})
		persistToken(t, f.store, NewToken("tok", 3600, time.Now()))

		f.manager.check(t.Context())
		f.client.mu.Lock()
		defer f.client.mu.Unlock()
		require.Equal(t, []string{statusPath}, f.client.gets)
	})

	t.Run("close to expiry skips the probe", func(t *testing.T) {
		// 25s left: above the renewal threshold but below 2 intervals.
		f := newFixture(t, &fakeClient{}, Options{})
		persistToken(t, f.store, NewToken("tok", 25, time.Now()))

		f.manager.check(t.Context())
		f.client.mu.Lock()
		defer f.client.mu.Unlock()
		require.Empty(t, f.client.gets)
	})
}

func TestCrossTabClearForcesLogout(t *testing.T) {
	f := newFixture(t, &fakeClient{}, Options{})
	persistToken(t, f.store, NewToken("tok", 3600, time.Now()))

	_, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)

	other := storage.NewSibling(f.store)
	require.NoError(t, other.Clear(t.Context()))

	require.Eventually(t, func() bool {
		return f.manager.State() == StateNoSession
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, nav.LoginPath, f.nav.Current())
}

func TestCrossTabTokenRemovalForcesLogout(t *testing.T) {
	f := newFixture(t, &fakeClient{}, Options{})
	persistToken(t, f.store, NewToken("tok", 3600, time.Now()))

	_, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)

	other := storage.NewSibling(f.store)
	require.NoError(t, other.Remove(t.Context(), storage.TokenKey))

	require.Eventually(t, func() bool {
		return f.manager.State() == StateNoSession
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCrossTabRenewingFlagMirrored(t *testing.T) {
	f := newFixture(t, &fakeClient{}, Options{})
	persistToken(t, f.store, NewToken("tok", 3600, time.Now()))

	_, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)

	other := storage.NewSibling(f.store)
	require.NoError(t, other.Set(t.Context(), storage.RenewingKey, "true"))

	require.Eventually(t, func() bool {
		return f.manager.isRenewing()
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, StateRenewing, f.manager.State())

	require.NoError(t, other.Set(t.Context(), storage.RenewingKey, "false"))
	require.Eventually(t, func() bool {
		return !f.manager.isRenewing()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBothTabsRenewInsideBroadcastWindow(t *testing.T) {
	conn, err := db.Connect(t.Context(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	broker := storage.NewBroker()
	storeA := storage.New(conn, broker)
	storeB := storage.NewSibling(storeA)

	navA, err := nav.New("https://app.example.com")
	require.NoError(t, err)
	navB, err := nav.New("https://app.example.com")
	require.NoError(t, err)

	clientA := &fakeClient{renewal: &renewResponse{Token: "renewed-a", ExpiresIn: 3600}}
	clientB := &fakeClient{renewal: &renewResponse{Token: "renewed-b", ExpiresIn: 3600}}
	tabA := NewManager(clientA, storeA, navA, Options{})
	tabB := NewManager(clientB, storeB, navB, Options{})
	t.Cleanup(tabA.Close)
	t.Cleanup(tabB.Close)

	// Both tabs hold the same near-expiry token before either renewal's
	// one-shot flag broadcast reaches the other.
	old := NewToken("old", 10, time.Now())
	persistToken(t, storeA, old)
	tabA.mu.Lock()
	tabA.token = old
	tabA.mu.Unlock()
	tabB.mu.Lock()
	tabB.token = old
	tabB.mu.Unlock()

	tokA, err := tabA.EnsureSession(t.Context())
	require.NoError(t, err)
	tokB, err := tabB.EnsureSession(t.Context())
	require.NoError(t, err)

	// The flag is advisory: both tabs attempt the renewal.
	require.Equal(t, 1, clientA.postCount())
	require.Equal(t, 1, clientB.postCount())
	require.Equal(t, "renewed-a", tokA.AccessToken)
	require.Equal(t, "renewed-b", tokB.AccessToken)

	// The store keeps the later write.
	raw, ok, err := storeA.Get(t.Context(), storage.TokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	var persisted Token
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	require.Equal(t, "renewed-b", persisted.AccessToken)
}

func TestStartCheckerStopsPreviousOne(t *testing.T) {
	f := newFixture(t, &fakeClient{}, Options{})

	f.manager.startChecker()
	f.manager.mu.Lock()
	first := f.manager.checkerStop
	f.manager.mu.Unlock()

	f.manager.startChecker()
	select {
	case <-first:
		// Previous checker was told to stop.
	default:
		t.Fatal("starting a checker must stop the previous one")
	}
}

func TestEnsureSessionPrefersEmbeddedPayload(t *testing.T) {
	payload := payloadSource(t, "embedded-token-value", 3600)
	f := newFixture(t, &fakeClient{}, Options{Payload: payload})
	persistToken(t, f.store, NewToken("stored", 3600, time.Now()))

	tok, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)
	require.Equal(t, "embedded-token-value", tok.AccessToken)
}

func TestShortEmbeddedPayloadFallsBackToStore(t *testing.T) {
	src, err := page.NewSource(pageWithPayload("c2hvcnQ=")) // under 20 chars
	require.NoError(t, err)
	f := newFixture(t, &fakeClient{}, Options{Payload: src})
	persistToken(t, f.store, NewToken("stored", 3600, time.Now()))

	tok, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)
	require.Equal(t, "stored", tok.AccessToken)
}

func TestLogoutClearsEverything(t *testing.T) {
	f := newFixture(t, &fakeClient{}, Options{})
	persistToken(t, f.store, NewToken("tok", 3600, time.Now()))

	_, err := f.manager.EnsureSession(t.Context())
	require.NoError(t, err)

	f.manager.Logout(t.Context())
	require.Equal(t, StateNoSession, f.manager.State())
	require.Equal(t, nav.LoginPath, f.nav.Current())
	require.Equal(t, 1, f.client.deleteCount())

	_, ok, err := f.store.Get(t.Context(), storage.TokenKey)
	require.NoError(t, err)
	require.False(t, ok)
}
