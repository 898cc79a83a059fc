package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/maheshrc27/postpilot/internal/models"
)

type GenerateRequest struct {
	OriginalInput string   `json:"originalInput"`
	MediaPaths    []string `json:"media"`
}

type GeneratedContent struct {
	Caption    string
	MediaPaths []string
}

// ContentGenerator turns free-form input into a caption and the media to post
// with it. How the caption is written is up to the implementation.
type ContentGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GeneratedContent, error)
}

// PassthroughGenerator uses the input text as the caption unchanged.
type PassthroughGenerator struct{}

func NewPassthroughGenerator() ContentGenerator {
	return PassthroughGenerator{}
}

func (PassthroughGenerator) Generate(_ context.Context, req GenerateRequest) (*GeneratedContent, error) {
	caption := strings.TrimSpace(req.OriginalInput)
	if caption == "" {
		return nil, fmt.Errorf("%w: caption cannot be empty", models.ErrInvalidInput)
	}

	media := make([]string, 0, len(req.MediaPaths))
	for _, p := range req.MediaPaths {
		if p = strings.TrimSpace(p); p != "" {
			media = append(media, p)
		}
	}
	return &GeneratedContent{Caption: caption, MediaPaths: media}, nil
}
