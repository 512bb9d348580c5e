package platformauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	bundles map[string]*models.CredentialBundle
	ttls    map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{bundles: map[string]*models.CredentialBundle{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) GetBundle(_ context.Context, userID string) (*models.CredentialBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bundles[userID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) SetBundle(_ context.Context, userID string, b *models.CredentialBundle, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *b
	f.bundles[userID] = &cp
	f.ttls[userID] = ttl
	return nil
}

func (f *fakeStore) InvalidateBundle(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bundles, userID)
	return nil
}

// tokenServer answers the token endpoint. Refresh requests are counted and delayed so concurrent
// callers overlap.
type tokenServer struct {
	refreshes  int32
	failWith   string
	failStatus int           // defaults to 400
	expiresIn  int
	delay      time.Duration // refresh latency, defaults to 50ms
}

func (ts *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if ts.failWith != "" || ts.failStatus != 0 {
		status := ts.failStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		w.WriteHeader(status)
		if ts.failWith != "" {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": ts.failWith})
		}
		return
	}
	body := map[string]any{"access_token": "fresh-access", "token_type": "Bearer"}
	if ts.expiresIn > 0 {
		body["expires_in"] = ts.expiresIn
	}
	switch r.Form.Get("grant_type") {
	case "refresh_token":
		atomic.AddInt32(&ts.refreshes, 1)
		delay := ts.delay
		if delay == 0 {
			delay = 50 * time.Millisecond
		}
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	case "authorization_code":
		body["refresh_token"] = "refresh-1"
	}
	_ = json.NewEncoder(w).Encode(body)
}

func newTestManager(t *testing.T, ts *tokenServer, store *fakeStore, now time.Time) *Manager {
	t.Helper()
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)
	conf := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
	}
	return NewManager(Options{
		OAuth: conf,
		Store: store,
		Identity: func(context.Context, *http.Client) (string, string, error) {
			return "UC123", "My Channel", nil
		},
		Now: func() time.Time { return now },
	})
}

func TestStateRoundTrip(t *testing.T) {
	got, err := DecodeState(EncodeState("user-42"))
	require.NoError(t, err)
	assert.Equal(t, "user-42", got)

	_, err = DecodeState("%%%")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidInput))
}

func TestAuthorizationURLRequestsOfflineConsent(t *testing.T) {
	m := newTestManager(t, &tokenServer{}, newFakeStore(), time.Now())
	raw := m.AuthorizationURL("user-42")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, EncodeState("user-42"), q.Get("state"))
}

func TestExchangeCodeStoresBundle(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, &tokenServer{expiresIn: 1800}, store, time.Now())

	id, name, err := m.ExchangeCode(context.Background(), "code-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "UC123", id)
	assert.Equal(t, "My Channel", name)

	b, _ := store.GetBundle(context.Background(), "u1")
	require.NotNil(t, b)
	assert.Equal(t, "fresh-access", b.AccessToken)
	assert.Equal(t, "refresh-1", b.RefreshToken)
	assert.Equal(t, "UC123", b.ChannelID)
	assert.InDelta(t, (30 * time.Minute).Seconds(), store.ttls["u1"].Seconds(), 5)
}

func TestExchangeCodeWithoutExpiryFallsBackToOneHour(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(t, &tokenServer{}, store, now)

	_, _, err := m.ExchangeCode(context.Background(), "code-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, FallbackTokenTTL, store.ttls["u1"])
}

func TestExchangeCodeInvalidGrant(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, &tokenServer{failWith: "invalid_grant"}, store, time.Now())

	_, _, err := m.ExchangeCode(context.Background(), "used-code", "u1")
	require.Error(t, err)
	assert.Equal(t, apperror.KindAuthExchange, apperror.KindOf(err))
	assert.Equal(t, apperror.CodeInvalidGrant, apperror.CodeOf(err))

	b, _ := store.GetBundle(context.Background(), "u1")
	assert.Nil(t, b, "no bundle written on failed exchange")
}

func TestExchangeCodeIdentityFailure(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, &tokenServer{expiresIn: 3600}, store, time.Now())
	m.identity = func(context.Context, *http.Client) (string, string, error) {
		return "", "", assert.AnError
	}

	_, _, err := m.ExchangeCode(context.Background(), "code-1", "u1")
	assert.Equal(t, apperror.CodeIdentityLookupFailed, apperror.CodeOf(err))
}

func TestExchangeCodeUpstreamUnavailable(t *testing.T) {
	cases := []struct {
		name string
		ts   *tokenServer
	}{
		{"server error", &tokenServer{failStatus: http.StatusInternalServerError}},
		{"other oauth error", &tokenServer{failWith: "invalid_client", failStatus: http.StatusUnauthorized}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			m := newTestManager(t, tc.ts, store, time.Now())

			_, _, err := m.ExchangeCode(context.Background(), "code-1", "u1")
			require.Error(t, err)
			assert.Equal(t, apperror.KindAuthExchange, apperror.KindOf(err))
			assert.Equal(t, apperror.CodeUpstreamUnavailable, apperror.CodeOf(err))

			b, _ := store.GetBundle(context.Background(), "u1")
			assert.Nil(t, b)
		})
	}
}

func TestExchangeCodeConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	tokenURL := srv.URL + "/token"
	srv.Close()

	m := NewManager(Options{
		OAuth: &oauth2.Config{
			ClientID: "client",
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
		Store: newFakeStore(),
	})
	_, _, err := m.ExchangeCode(context.Background(), "code-1", "u1")
	assert.Equal(t, apperror.CodeUpstreamUnavailable, apperror.CodeOf(err))
}

func TestClientForUserWithoutBundle(t *testing.T) {
	m := newTestManager(t, &tokenServer{}, newFakeStore(), time.Now())
	_, err := m.ClientForUser(context.Background(), "nobody")
	assert.True(t, apperror.IsKind(err, apperror.KindAuthRequired))
}

func TestClientForUserFarFromExpiryDoesNotRefresh(t *testing.T) {
	ts := &tokenServer{expiresIn: 3600}
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(t, ts, store, now)
	require.NoError(t, store.SetBundle(context.Background(), "u1", &models.CredentialBundle{
		AccessToken: "old", RefreshToken: "r", ChannelID: "UC1", Expiry: now.Add(time.Hour),
	}, time.Hour))

	sess, err := m.ClientForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "UC1", sess.ChannelID)
	assert.NotNil(t, sess.HTTPClient)
	assert.EqualValues(t, 0, atomic.LoadInt32(&ts.refreshes))
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	ts := &tokenServer{expiresIn: 3600}
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(t, ts, store, now)
	require.NoError(t, store.SetBundle(context.Background(), "u1", &models.CredentialBundle{
		AccessToken: "old", RefreshToken: "r", ChannelID: "UC1", Expiry: now.Add(2 * time.Minute),
	}, 2*time.Minute))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.ClientForUser(context.Background(), "u1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&ts.refreshes))

	b, _ := store.GetBundle(context.Background(), "u1")
	require.NotNil(t, b)
	assert.Equal(t, "fresh-access", b.AccessToken)
	assert.Equal(t, "r", b.RefreshToken, "refresh token kept when the response omits one")
	assert.Equal(t, "UC1", b.ChannelID)

	// The rotated bundle is fresh, so a later call does not refresh again.
	_, err := m.ClientForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ts.refreshes))
}

func TestFailedRefreshInvalidatesBundle(t *testing.T) {
	ts := &tokenServer{failWith: "invalid_grant"}
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(t, ts, store, now)
	require.NoError(t, store.SetBundle(context.Background(), "u1", &models.CredentialBundle{
		AccessToken: "old", RefreshToken: "revoked", Expiry: now.Add(time.Minute),
	}, time.Minute))

	_, err := m.ClientForUser(context.Background(), "u1")
	assert.True(t, apperror.IsKind(err, apperror.KindAuthRequired))

	b, _ := store.GetBundle(context.Background(), "u1")
	assert.Nil(t, b)
}

func TestCancelledCallerDoesNotSpoilSharedRefresh(t *testing.T) {
	ts := &tokenServer{expiresIn: 3600, delay: 300 * time.Millisecond}
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(t, ts, store, now)
	require.NoError(t, store.SetBundle(context.Background(), "u1", &models.CredentialBundle{
		AccessToken: "old", RefreshToken: "r", ChannelID: "UC1", Expiry: now.Add(time.Minute),
	}, time.Minute))

	var (
		wg                 sync.WaitGroup
		impatient, patient error
		patientSess        *Session
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, impatient = m.ClientForUser(ctx, "u1")
	}()
	go func() {
		defer wg.Done()
		patientSess, patient = m.ClientForUser(context.Background(), "u1")
	}()
	wg.Wait()

	require.Error(t, impatient)
	assert.ErrorIs(t, impatient, context.DeadlineExceeded)
	assert.False(t, apperror.IsKind(impatient, apperror.KindAuthRequired))

	require.NoError(t, patient)
	assert.Equal(t, "UC1", patientSess.ChannelID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ts.refreshes))

	b, _ := store.GetBundle(context.Background(), "u1")
	require.NotNil(t, b, "bundle survives a caller going away")
	assert.Equal(t, "fresh-access", b.AccessToken)
}

func TestRefreshTimeoutKeepsBundle(t *testing.T) {
	ts := &tokenServer{expiresIn: 3600, delay: time.Second}
	store := newFakeStore()
	now := time.Now()
	m := newTestManager(t, ts, store, now)
	m.refreshTimeout = 30 * time.Millisecond
	require.NoError(t, store.SetBundle(context.Background(), "u1", &models.CredentialBundle{
		AccessToken: "old", RefreshToken: "r", Expiry: now.Add(time.Minute),
	}, time.Minute))

	_, err := m.ClientForUser(context.Background(), "u1")
	require.Error(t, err)
	assert.False(t, apperror.IsKind(err, apperror.KindAuthRequired))
	assert.Equal(t, apperror.CodeUpstreamUnavailable, apperror.CodeOf(err))

	b, _ := store.GetBundle(context.Background(), "u1")
	require.NotNil(t, b)
	assert.Equal(t, "r", b.RefreshToken)
}
