package publishing

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aura-studio/backend/internal/models"
)

// ObjectOpener reads mirrored videos from object storage.
type ObjectOpener interface {
	OpenVideo(ctx context.Context, key string) (io.ReadCloser, error)
}

// VideoSource streams the mirrored object when one exists and falls back to the artifact URL.
type VideoSource struct {
	objects ObjectOpener
	client  *http.Client
}

// NewVideoSource creates a VideoSource. objects may be nil when storage is not configured.
func NewVideoSource(objects ObjectOpener, client *http.Client) *VideoSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &VideoSource{objects: objects, client: client}
}

// Open implements Source.
func (s *VideoSource) Open(ctx context.Context, v *models.Video) (io.ReadCloser, error) {
	if v.S3Key != "" && s.objects != nil {
		return s.objects.OpenVideo(ctx, v.S3Key)
	}
	if v.VideoURL == "" {
		return nil, fmt.Errorf("video %s has no artifact", v.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.VideoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
