package publishing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// DefaultCategoryID is "People & Blogs".
const DefaultCategoryID = "22"

// YouTubeUploader uploads through the YouTube Data API.
type YouTubeUploader struct {
	CategoryID string
	// Endpoint overrides the API base URL.
	Endpoint string
}

// Upload implements Uploader with a resumable videos.insert call.
func (u YouTubeUploader) Upload(ctx context.Context, client *http.Client, meta Upload, media io.Reader) (string, json.RawMessage, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if u.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(u.Endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", nil, fmt.Errorf("youtube service: %w", err)
	}
	category := u.CategoryID
	if category == "" {
		category = DefaultCategoryID
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  category,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: string(meta.Privacy),
		},
	}
	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(media).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("youtube upload: %w", err)
	}
	raw, _ := json.Marshal(uploaded)
	return uploaded.Id, raw, nil
}
