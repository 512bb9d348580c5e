// Package platformauth owns the YouTube OAuth authorization-code flow and hands out
// authenticated HTTP clients, refreshing credential bundles that are close to expiry.
package platformauth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/aura-studio/backend/config"
	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/models"
)

const (
	// DefaultRefreshWindow is how close to expiry a bundle gets refreshed.
	DefaultRefreshWindow = 5 * time.Minute
	// FallbackTokenTTL applies when the token response omits an expiry.
	FallbackTokenTTL = 3600 * time.Second
	// RefreshTimeout bounds one shared refresh against the token endpoint.
	RefreshTimeout = 30 * time.Second
)

// BundleStore is the subset of tokenstore.Store the manager needs.
type BundleStore interface {
	GetBundle(ctx context.Context, userID string) (*models.CredentialBundle, error)
	SetBundle(ctx context.Context, userID string, b *models.CredentialBundle, ttl time.Duration) error
	InvalidateBundle(ctx context.Context, userID string) error
}

// IdentityFunc looks up the platform account behind an authenticated client.
type IdentityFunc func(ctx context.Context, client *http.Client) (channelID, channelName string, err error)

// Session is an authenticated client handle for one user.
type Session struct {
	UserID      string
	ChannelID   string
	ChannelName string
	HTTPClient  *http.Client
}

// Options configures a Manager.
type Options struct {
	OAuth         *oauth2.Config
	Store         BundleStore
	Identity      IdentityFunc  // defaults to YouTubeIdentity
	RefreshWindow time.Duration // defaults to DefaultRefreshWindow
	Now           func() time.Time
	Logger        *zap.Logger
}

// Manager implements the per-user state machine
// Unauthenticated -> Authenticated -> Refreshing -> Authenticated | Unauthenticated.
type Manager struct {
	oauth    *oauth2.Config
	store    BundleStore
	identity IdentityFunc
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger
	refresh  singleflight.Group

	// refreshTimeout bounds the detached flight.
	refreshTimeout time.Duration
}

// NewOAuthConfig builds the Google OAuth client configuration.
func NewOAuthConfig(cfg config.OAuthConfig) *oauth2.Config {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope}
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		oauth:    opts.OAuth,
		store:    opts.Store,
		identity: opts.Identity,
		window:   opts.RefreshWindow,
		now:      opts.Now,
		logger:   opts.Logger,

		refreshTimeout: RefreshTimeout,
	}
	if m.identity == nil {
		m.identity = YouTubeIdentity
	}
	if m.window <= 0 {
		m.window = DefaultRefreshWindow
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// EncodeState turns a user id into the opaque OAuth state parameter.
func EncodeState(userID string) string {
	return base64.URLEncoding.EncodeToString([]byte(userID))
}

// DecodeState reverses EncodeState.
func DecodeState(state string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(state)
	if err != nil {
		return "", apperror.InvalidInput("platformauth.state", "malformed state parameter")
	}
	userID := strings.TrimSpace(string(raw))
	if userID == "" {
		return "", apperror.InvalidInput("platformauth.state", "empty state parameter")
	}
	return userID, nil
}

// AuthorizationURL returns the consent URL. The user id travels as state so the callback can
// find the initiating user without a session.
func (m *Manager) AuthorizationURL(userID string) string {
	state := ""
	if userID != "" {
		state = EncodeState(userID)
	}
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode trades an authorization code for tokens, resolves the channel identity and
// stores the bundle with a TTL equal to the token's remaining lifetime.
func (m *Manager) ExchangeCode(ctx context.Context, code, userID string) (channelID, channelName string, err error) {
	if strings.TrimSpace(code) == "" {
		return "", "", apperror.AuthExchange(apperror.CodeInvalidGrant, errors.New("empty authorization code"))
	}
	if userID == "" {
		return "", "", apperror.InvalidInput("platformauth.exchange", "user id is required")
	}

	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		m.logger.Warn("oauth code exchange failed", zap.String("user_id", userID), zap.Error(err))
		return "", "", apperror.AuthExchange(classifyExchangeError(err), err)
	}

	channelID, channelName, err = m.identity(ctx, m.oauth.Client(ctx, tok))
	if err != nil {
		m.logger.Warn("channel identity lookup failed", zap.String("user_id", userID), zap.Error(err))
		return "", "", apperror.AuthExchange(apperror.CodeIdentityLookupFailed, err)
	}

	now := m.now()
	bundle := bundleFromToken(tok, nil, now)
	bundle.ChannelID = channelID
	bundle.ChannelName = channelName
	if err := m.store.SetBundle(ctx, userID, bundle, ttlUntil(bundle.Expiry, now)); err != nil {
		return "", "", apperror.Persistence("platformauth.exchange", err)
	}

	m.logger.Info("platform account connected",
		zap.String("user_id", userID),
		zap.String("channel_id", channelID),
		zap.Time("expiry", bundle.Expiry),
	)
	return channelID, channelName, nil
}

// ClientForUser returns an authenticated session, refreshing the bundle first when it expires
// within the refresh window. Concurrent refreshes for one user collapse into one upstream call.
func (m *Manager) ClientForUser(ctx context.Context, userID string) (*Session, error) {
	b, err := m.store.GetBundle(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap("platformauth.client", err)
	}
	if b == nil {
		return nil, apperror.AuthRequired(userID)
	}
	if b.ExpiresWithin(m.now(), m.window) {
		if b, err = m.refreshBundle(ctx, userID); err != nil {
			return nil, err
		}
	}
	return &Session{
		UserID:      userID,
		ChannelID:   b.ChannelID,
		ChannelName: b.ChannelName,
		HTTPClient:  m.oauth.Client(ctx, tokenFromBundle(b)),
	}, nil
}

// Disconnect removes the user's bundle.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	return m.store.InvalidateBundle(ctx, userID)
}

// refreshBundle collapses concurrent refreshes for userID into one flight. The flight runs
// detached from any single caller so one caller giving up never fails or invalidates the
// refresh for the others; each caller still returns as soon as its own ctx is done.
func (m *Manager) refreshBundle(ctx context.Context, userID string) (*models.CredentialBundle, error) {
	ch := m.refresh.DoChan(userID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.runRefresh(fctx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, apperror.Wrap("platformauth.refresh", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			m.logger.Debug("joined in-flight refresh", zap.String("user_id", userID))
		}
		return res.Val.(*models.CredentialBundle), nil
	}
}

func (m *Manager) runRefresh(ctx context.Context, userID string) (*models.CredentialBundle, error) {
	// Re-read inside the flight: a previous flight may already have rotated the bundle.
	cur, err := m.store.GetBundle(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap("platformauth.refresh", err)
	}
	if cur == nil {
		return nil, apperror.AuthRequired(userID)
	}
	now := m.now()
	if !cur.ExpiresWithin(now, m.window) {
		return cur, nil
	}
	if cur.RefreshToken == "" {
		_ = m.store.InvalidateBundle(ctx, userID)
		return nil, apperror.AuthRequired(userID)
	}

	stale := &oauth2.Token{RefreshToken: cur.RefreshToken, Expiry: now.Add(-time.Minute)}
	tok, err := m.oauth.TokenSource(ctx, stale).Token()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The provider never answered; the refresh token may still be good.
			m.logger.Warn("oauth refresh timed out, bundle kept", zap.String("user_id", userID), zap.Error(err))
			return nil, apperror.AuthExchange(apperror.CodeUpstreamUnavailable, err)
		}
		m.logger.Warn("oauth refresh failed, bundle invalidated", zap.String("user_id", userID), zap.Error(err))
		_ = m.store.InvalidateBundle(ctx, userID)
		ae := apperror.AuthRequired(userID)
		ae.Err = err
		return nil, ae
	}

	next := bundleFromToken(tok, cur, now)
	if err := m.store.SetBundle(ctx, userID, next, ttlUntil(next.Expiry, now)); err != nil {
		return nil, apperror.Persistence("platformauth.refresh", err)
	}
	m.logger.Info("oauth bundle refreshed", zap.String("user_id", userID), zap.Time("expiry", next.Expiry))
	return next, nil
}

// bundleFromToken builds a bundle from tok, carrying identity and refresh token over from prev.
func bundleFromToken(tok *oauth2.Token, prev *models.CredentialBundle, now time.Time) *models.CredentialBundle {
	b := &models.CredentialBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if b.Expiry.IsZero() {
		b.Expiry = now.Add(FallbackTokenTTL)
	}
	if prev != nil {
		if b.RefreshToken == "" {
			b.RefreshToken = prev.RefreshToken
		}
		b.ChannelID = prev.ChannelID
		b.ChannelName = prev.ChannelName
	}
	return b
}

func tokenFromBundle(b *models.CredentialBundle) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		TokenType:    b.TokenType,
		Expiry:       b.Expiry,
	}
}

func ttlUntil(expiry, now time.Time) time.Duration {
	ttl := expiry.Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func classifyExchangeError(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == apperror.CodeInvalidGrant || strings.Contains(string(re.Body), apperror.CodeInvalidGrant) {
			return apperror.CodeInvalidGrant
		}
	}
	return apperror.CodeUpstreamUnavailable
}

// YouTubeIdentity returns the id and title of the authenticated user's channel.
func YouTubeIdentity(ctx context.Context, client *http.Client) (string, string, error) {
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}
	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("list channels: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", "", errors.New("account has no youtube channel")
	}
	ch := resp.Items[0]
	name := ""
	if ch.Snippet != nil {
		name = ch.Snippet.Title
	}
	return ch.Id, name, nil
}
