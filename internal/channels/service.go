// Package channels serves the connected platform account: OAuth connect and disconnect,
// channel statistics and per-video analytics, both cached in the token store.
package channels

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/internal/platformauth"
	"github.com/aura-studio/backend/internal/tokenstore"
	"github.com/aura-studio/backend/pkg/database"
)

// Cache TTLs.
const (
	StatsTTL     = 10 * time.Minute
	AnalyticsTTL = 5 * time.Minute
)

// ChannelStats are the public counters of a channel.
type ChannelStats struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	Subscribers uint64    `json:"subscribers"`
	Views       uint64    `json:"views"`
	Videos      uint64    `json:"videos"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// VideoStats are the public counters of one uploaded video.
type VideoStats struct {
	VideoID         uuid.UUID `json:"video_id"`
	PlatformVideoID string    `json:"platform_video_id"`
	Views           uint64    `json:"views"`
	Likes           uint64    `json:"likes"`
	Comments        uint64    `json:"comments"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// Cache is the namespaced JSON cache.
type Cache interface {
	GetJSON(ctx context.Context, ns tokenstore.Namespace, id string, dst any) (bool, error)
	SetJSON(ctx context.Context, ns tokenstore.Namespace, id string, v any, ttl time.Duration) error
}

// Auth is the platform credential manager.
type Auth interface {
	AuthorizationURL(userID string) string
	ExchangeCode(ctx context.Context, code, userID string) (channelID, channelName string, err error)
	ClientForUser(ctx context.Context, userID string) (*platformauth.Session, error)
	Disconnect(ctx context.Context, userID string) error
}

// Fetcher reads counters from the platform.
type Fetcher interface {
	Channel(ctx context.Context, client *http.Client) (*ChannelStats, error)
	Video(ctx context.Context, client *http.Client, platformVideoID string) (*VideoStats, error)
}

// Videos loads video assets.
type Videos interface {
	GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error)
}

// Publications finds where a video was published.
type Publications interface {
	LatestSuccess(ctx context.Context, videoID uuid.UUID, platform models.Platform) (string, error)
}

// Service implements the channel endpoints.
type Service struct {
	auth   Auth
	cache  Cache
	fetch  Fetcher
	videos Videos
	pubs   Publications
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a channel service.
func NewService(auth Auth, cache Cache, fetch Fetcher, videos Videos, pubs Publications, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{auth: auth, cache: cache, fetch: fetch, videos: videos, pubs: pubs, now: time.Now, logger: logger}
}

// ConnectURL returns the consent URL for userID.
func (s *Service) ConnectURL(userID uuid.UUID) string {
	return s.auth.AuthorizationURL(userID.String())
}

// Connection is the account linked by a completed consent.
type Connection struct {
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
}

// Complete finishes the authorization-code flow for the user encoded in state.
func (s *Service) Complete(ctx context.Context, code, state string) (*Connection, error) {
	userID, err := platformauth.DecodeState(state)
	if err != nil {
		return nil, err
	}
	id, name, err := s.auth.ExchangeCode(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	return &Connection{UserID: userID, ChannelID: id, ChannelName: name}, nil
}

// Disconnect forgets the user's credentials.
func (s *Service) Disconnect(ctx context.Context, userID uuid.UUID) error {
	if err := s.auth.Disconnect(ctx, userID.String()); err != nil {
		return apperror.Persistence("channels.disconnect", err)
	}
	return nil
}

// Stats returns the caller's channel counters, served from cache for StatsTTL.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*ChannelStats, error) {
	var cached ChannelStats
	if s.lookup(ctx, tokenstore.NamespaceStats, userID.String(), &cached) {
		return &cached, nil
	}
	session, err := s.auth.ClientForUser(ctx, userID.String())
	if err != nil {
		return nil, err
	}
	st, err := s.fetch.Channel(ctx, session.HTTPClient)
	if err != nil {
		return nil, apperror.Upstream("channel_stats", err)
	}
	st.FetchedAt = s.now().UTC()
	s.store(ctx, tokenstore.NamespaceStats, userID.String(), st, StatsTTL)
	return st, nil
}

// Analytics returns the counters of one of the caller's published videos, cached for AnalyticsTTL.
func (s *Service) Analytics(ctx context.Context, userID, videoID uuid.UUID) (*VideoStats, error) {
	v, err := s.videos.GetVideo(ctx, videoID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && v.OwnerID != userID) {
		return nil, apperror.NotFound("channels.analytics", "video", videoID.String())
	}
	if err != nil {
		return nil, apperror.Wrap("channels.analytics", err)
	}
	platformID, err := s.pubs.LatestSuccess(ctx, videoID, models.PlatformYouTube)
	if err != nil {
		return nil, apperror.Wrap("channels.analytics", err)
	}
	if platformID == "" {
		return nil, apperror.InvalidState("channels.analytics", "video %s has not been published", videoID)
	}

	var cached VideoStats
	if s.lookup(ctx, tokenstore.NamespaceAnalytics, platformID, &cached) {
		return &cached, nil
	}
	session, err := s.auth.ClientForUser(ctx, userID.String())
	if err != nil {
		return nil, err
	}
	st, err := s.fetch.Video(ctx, session.HTTPClient, platformID)
	if err != nil {
		return nil, apperror.Upstream("video_analytics", err)
	}
	st.VideoID = videoID
	st.PlatformVideoID = platformID
	st.FetchedAt = s.now().UTC()
	s.store(ctx, tokenstore.NamespaceAnalytics, platformID, st, AnalyticsTTL)
	return st, nil
}

// lookup treats cache errors as misses.
func (s *Service) lookup(ctx context.Context, ns tokenstore.Namespace, id string, dst any) bool {
	ok, err := s.cache.GetJSON(ctx, ns, id, dst)
	if err != nil {
		s.logger.Warn("cache read", zap.String("namespace", string(ns)), zap.Error(err))
		return false
	}
	return ok
}

func (s *Service) store(ctx context.Context, ns tokenstore.Namespace, id string, v any, ttl time.Duration) {
	if err := s.cache.SetJSON(ctx, ns, id, v, ttl); err != nil {
		s.logger.Warn("cache write", zap.String("namespace", string(ns)), zap.Error(err))
	}
}
