package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTubeFetcher reads statistics through the YouTube Data API.
type YouTubeFetcher struct {
	// Endpoint overrides the API base URL.
	Endpoint string
}

func (f YouTubeFetcher) service(ctx context.Context, client *http.Client) (*youtube.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if f.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.Endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

// Channel implements Fetcher.
func (f YouTubeFetcher) Channel(ctx context.Context, client *http.Client) (*ChannelStats, error) {
	svc, err := f.service(ctx, client)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Channels.List([]string{"snippet", "statistics"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, errors.New("account has no youtube channel")
	}
	ch := resp.Items[0]
	st := &ChannelStats{ChannelID: ch.Id}
	if ch.Snippet != nil {
		st.ChannelName = ch.Snippet.Title
	}
	if ch.Statistics != nil {
		st.Subscribers = ch.Statistics.SubscriberCount
		st.Views = ch.Statistics.ViewCount
		st.Videos = ch.Statistics.VideoCount
	}
	return st, nil
}

// Video implements Fetcher.
func (f YouTubeFetcher) Video(ctx context.Context, client *http.Client, platformVideoID string) (*VideoStats, error) {
	svc, err := f.service(ctx, client)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Videos.List([]string{"statistics"}).Id(platformVideoID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("video %s not found on youtube", platformVideoID)
	}
	st := &VideoStats{PlatformVideoID: platformVideoID}
	if s := resp.Items[0].Statistics; s != nil {
		st.Views = s.ViewCount
		st.Likes = s.LikeCount
		st.Comments = s.CommentCount
	}
	return st, nil
}
