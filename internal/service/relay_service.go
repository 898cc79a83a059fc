package service

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MediaRelay turns a local media file into a URL platforms can fetch directly.
type MediaRelay interface {
	Relay(ctx context.Context, localPath string) (string, error)
}

type relayService struct {
	uploader Uploader
	client   *http.Client
	retry    RetryConfig
	log      logging.Logger
}

func NewRelayService(uploader Uploader, client *http.Client, retry RetryConfig, log logging.Logger) MediaRelay {
	return &relayService{
		uploader: uploader,
		client:   client,
		retry:    retry,
		log:      log,
	}
}

// Relay uploads the file to the intermediate host, then follows the reference
// URL's redirects to the final location. Upload problems wrap ErrUpload and
// resolution problems wrap ErrResolution.
func (s *relayService) Relay(ctx context.Context, localPath string) (string, error) {
	file, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", models.ErrUpload, localPath, err)
	}

	kind, err := filetype.Match(file)
	if err != nil || kind.MIME.Type != "image" {
		return "", fmt.Errorf("%w: %s is not an image", models.ErrUpload, localPath)
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("%w: object key: %v", models.ErrUpload, err)
	}
	key := id + "." + kind.Extension

	reference, err := executeWithRetry(ctx, s.retry, retryTransient, func() (string, error) {
		return s.uploader.Upload(ctx, key, file, kind.MIME.Value)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrUpload, localPath, err)
	}

	direct, err := executeWithRetry(ctx, s.retry, retryTransient, func() (string, error) {
		return s.resolve(ctx, reference)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrResolution, reference, err)
	}

	s.log.WithFields(logging.Fields{
		"path":      localPath,
		"reference": reference,
		"direct":    direct,
	}).Info("media relayed")
	return direct, nil
}

func (s *relayService) resolve(ctx context.Context, reference string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, reference, nil)
	if err != nil {
		return "", permanent(fmt.Errorf("error creating request: %w", err))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request error: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: resp.Status}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return "", permanent(fmt.Errorf("final url serves %q, not an image", ct))
	}
	return resp.Request.URL.String(), nil
}
