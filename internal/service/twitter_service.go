package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	config "github.com/maheshrc27/postpilot/configs"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/transfer"
)

const (
	maxTweetLength = 10000
	maxTweetImages = 4
	tweetURLFormat = "https://x.com/i/status/%s"
)

type twitterService struct {
	cfg    config.X
	client *http.Client
	retry  RetryConfig
	log    logging.Logger
}

func NewTwitterService(cfg config.X, client *http.Client, retry RetryConfig, log logging.Logger) PlatformPublisher {
	return &twitterService{
		cfg:    cfg,
		client: client,
		retry:  retry,
		log:    log,
	}
}

func (s *twitterService) Platform() string { return models.PlatformX }

func (s *twitterService) RequiresMedia() bool { return false }

func TweetURL(id string) string {
	return fmt.Sprintf(tweetURLFormat, id)
}

func (s *twitterService) Publish(ctx context.Context, req *PublishRequest) (*PublishOutcome, error) {
	text, truncated := truncateText(req.Caption, maxTweetLength)
	outcome := &PublishOutcome{Truncated: truncated}
	if truncated {
		outcome.OriginalLength = len([]rune(req.Caption))
		s.log.WithFields(logging.Fields{
			"uid":             req.UID,
			"original_length": outcome.OriginalLength,
			"final_length":    len([]rune(text)),
		}).Warn("tweet text truncated")
	}

	media := req.MediaURLs
	if len(media) > maxTweetImages {
		media = media[:maxTweetImages]
	}

	var mediaIDs []string
	for _, u := range media {
		id, err := s.uploadMedia(ctx, u)
		if err != nil {
			return nil, models.NewPlatformError(models.PlatformX, "media upload "+platformReason(err), err)
		}
		mediaIDs = append(mediaIDs, id)
	}

	body := transfer.TweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		body.Media = &transfer.TweetMedia{MediaIDs: mediaIDs}
	}

	result, err := executeWithRetry(ctx, s.retry, retryRateLimited, func() (*transfer.TweetResponse, error) {
		httpReq, err := newJSONRequest(ctx, http.MethodPost, s.endpoint("/2/tweets"), body)
		if err != nil {
			return nil, permanent(err)
		}
		s.authorize(httpReq)
		var out transfer.TweetResponse
		if err := doJSON(s.client, httpReq, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, models.NewPlatformError(models.PlatformX, platformReason(err), err)
	}
	if result.Data.ID == "" {
		return nil, models.NewPlatformError(models.PlatformX, "no tweet id returned", nil)
	}

	outcome.PlatformPostID = result.Data.ID
	outcome.Permalink = TweetURL(result.Data.ID)
	return outcome, nil
}

// uploadMedia fetches an image from its direct URL and uploads it to X.
func (s *twitterService) uploadMedia(ctx context.Context, mediaURL string) (string, error) {
	image, err := executeWithRetry(ctx, s.retry, retryTransient, func() ([]byte, error) {
		return s.download(ctx, mediaURL)
	})
	if err != nil {
		return "", err
	}

	result, err := executeWithRetry(ctx, s.retry, retryTransient, func() (*transfer.MediaUploadResponse, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := w.WriteField("media_category", "tweet_image"); err != nil {
			return nil, permanent(err)
		}
		part, err := w.CreateFormFile("media", "image")
		if err != nil {
			return nil, permanent(err)
		}
		if _, err := part.Write(image); err != nil {
			return nil, permanent(err)
		}
		if err := w.Close(); err != nil {
			return nil, permanent(err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/2/media/upload"), &buf)
		if err != nil {
			return nil, permanent(fmt.Errorf("error creating request: %w", err))
		}
		httpReq.Header.Set("Content-Type", w.FormDataContentType())
		s.authorize(httpReq)

		var out transfer.MediaUploadResponse
		if err := doJSON(s.client, httpReq, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("no media id returned for %s", mediaURL)
	}
	return result.Data.ID, nil
}

// X rejects tweet images above 5 MB.
const maxImageBytes = 5 << 20

func (s *twitterService) download(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, permanent(fmt.Errorf("error creating request: %w", err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: resp.Status}
	}
	image, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", mediaURL, err)
	}
	if len(image) > maxImageBytes {
		return nil, permanent(fmt.Errorf("%s exceeds the %d byte image limit", mediaURL, maxImageBytes))
	}
	return image, nil
}

func (s *twitterService) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.cfg.BearerToken)
}

func (s *twitterService) endpoint(path string) string {
	return strings.TrimRight(s.cfg.APIURL, "/") + path
}

// truncateText cuts text to limit runes. When the last space of the kept part
// falls in its final 20%, the cut moves back to that space.
func truncateText(text string, limit int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}

	cut := runes[:limit]
	last := -1
	for i := len(cut) - 1; i >= 0; i-- {
		if cut[i] == ' ' {
			last = i
			break
		}
	}
	if last*5 > limit*4 {
		cut = cut[:last]
	}
	return strings.TrimSpace(string(cut)), true
}
