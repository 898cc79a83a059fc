package service

import (
	"context"
)

type PublishRequest struct {
	UID       string
	Caption   string
	MediaURLs []string
}

type PublishOutcome struct {
	PlatformPostID string
	Permalink      string
	Truncated      bool
	OriginalLength int
}

// PlatformPublisher posts one item to one platform. Refusals are returned as
// *models.PlatformError.
type PlatformPublisher interface {
	Platform() string
	// RequiresMedia reports whether the platform refuses text-only posts.
	RequiresMedia() bool
	Publish(ctx context.Context, req *PublishRequest) (*PublishOutcome, error)
}
