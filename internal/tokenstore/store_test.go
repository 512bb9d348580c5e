package tokenstore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/backend/internal/models"
)

// memBackend is an in-memory Backend with a controllable clock.
type memBackend struct {
	mu   sync.Mutex
	now  time.Time
	data map[string]memEntry
}

type memEntry struct {
	value   []byte
	expires time.Time
}

func newMemBackend() *memBackend {
	return &memBackend{now: time.Unix(1_700_000_000, 0), data: map[string]memEntry{}}
}

func (m *memBackend) Get(_ context.Context, k string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[k]
	if !ok || !m.now.Before(e.expires) {
		return nil, ErrMiss
	}
	return e.value, nil
}

func (m *memBackend) Set(_ context.Context, k string, v []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[k] = memEntry{value: append([]byte(nil), v...), expires: m.now.Add(ttl)}
	return nil
}

func (m *memBackend) Del(_ context.Context, k string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, k)
	return nil
}

func (m *memBackend) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func TestBundleRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	be := newMemBackend()
	s := New(be, nil, nil)

	b, err := s.GetBundle(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, b, "never-authenticated user has no bundle")

	in := &models.CredentialBundle{AccessToken: "at", RefreshToken: "rt", ChannelID: "UC1", ChannelName: "Chan"}
	require.NoError(t, s.SetBundle(ctx, "u1", in, time.Hour))

	got, err := s.GetBundle(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "at", got.AccessToken)
	assert.Equal(t, "UC1", got.ChannelID)

	be.advance(time.Hour)
	got, err = s.GetBundle(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got, "expired bundle reads as absent")
}

func TestSetBundleRejectsNonPositiveTTL(t *testing.T) {
	s := New(newMemBackend(), nil, nil)
	err := s.SetBundle(context.Background(), "u1", &models.CredentialBundle{}, 0)
	assert.Error(t, err)
}

func TestNamespacesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	be := newMemBackend()
	s := New(be, nil, nil)

	require.NoError(t, s.SetBundle(ctx, "u1", &models.CredentialBundle{AccessToken: "at"}, time.Hour))
	require.NoError(t, s.SetJSON(ctx, NamespaceStats, "u1", map[string]int{"subscribers": 3}, time.Minute))
	require.NoError(t, s.SetJSON(ctx, NamespaceAnalytics, "u1", map[string]int{"views": 9}, time.Minute))

	var stats map[string]int
	ok, err := s.GetJSON(ctx, NamespaceStats, "u1", &stats)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, stats["subscribers"])

	require.NoError(t, s.Delete(ctx, NamespaceStats, "u1"))
	ok, err = s.GetJSON(ctx, NamespaceStats, "u1", &stats)
	require.NoError(t, err)
	assert.False(t, ok)

	b, err := s.GetBundle(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, b, "evicting stats leaves tokens alone")

	var analytics map[string]int
	ok, err = s.GetJSON(ctx, NamespaceAnalytics, "u1", &analytics)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSealedBundles(t *testing.T) {
	ctx := context.Background()
	be := newMemBackend()
	sealer, err := NewSealer(strings.Repeat("ab", 32))
	require.NoError(t, err)
	s := New(be, sealer, nil)

	require.NoError(t, s.SetBundle(ctx, "u1", &models.CredentialBundle{AccessToken: "secret-access"}, time.Hour))
	raw, err := be.Get(ctx, "oauth:token:u1")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-access")

	got, err := s.GetBundle(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "secret-access", got.AccessToken)

	other, err := NewSealer(strings.Repeat("cd", 32))
	require.NoError(t, err)
	got, err = New(be, other, nil).GetBundle(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got, "bundle sealed with another key reads as absent")
}

func TestNewSealer(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = NewSealer("abcd")
	assert.Error(t, err)

	_, err = NewSealer("zz")
	assert.Error(t, err)
}
