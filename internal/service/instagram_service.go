package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/postpilot/configs"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/transfer"
)

const (
	maxCarouselItems = 10

	containerFinished   = "FINISHED"
	containerError      = "ERROR"
	containerExpired    = "EXPIRED"
	minPollInterval     = time.Millisecond
	pollIntervalDivisor = 10
)

type instagramService struct {
	cfg            config.Instagram
	client         *http.Client
	retry          RetryConfig
	processingWait time.Duration
	log            logging.Logger
}

func NewInstagramService(cfg config.Instagram, client *http.Client, retry RetryConfig, processingWait time.Duration, log logging.Logger) PlatformPublisher {
	return &instagramService{
		cfg:            cfg,
		client:         client,
		retry:          retry,
		processingWait: processingWait,
		log:            log,
	}
}

func (s *instagramService) Platform() string { return models.PlatformInstagram }

func (s *instagramService) RequiresMedia() bool { return true }

func (s *instagramService) Publish(ctx context.Context, req *PublishRequest) (*PublishOutcome, error) {
	if len(req.MediaURLs) == 0 {
		return nil, models.NewPlatformError(models.PlatformInstagram, "precondition: at least one image is required", nil)
	}

	media := req.MediaURLs
	if len(media) > maxCarouselItems {
		s.log.WithFields(logging.Fields{"uid": req.UID, "media": len(media)}).Warn("carousel limited to first 10 images")
		media = media[:maxCarouselItems]
	}

	var (
		containerID string
		err         error
	)
	if len(media) == 1 {
		containerID, err = s.singleContainer(ctx, media[0], req.Caption)
	} else {
		containerID, err = s.carouselContainer(ctx, media, req.Caption)
	}
	if err != nil {
		return nil, err
	}

	mediaID, err := s.publishContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}

	return &PublishOutcome{
		PlatformPostID: mediaID,
		Permalink:      s.permalink(ctx, mediaID),
	}, nil
}

func (s *instagramService) singleContainer(ctx context.Context, imageURL, caption string) (string, error) {
	id, err := s.createContainer(ctx, transfer.InstagramContainerRequest{
		ImageURL: imageURL,
		Caption:  caption,
	})
	if err != nil {
		return "", err
	}
	if err := s.awaitReady(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// carouselContainer creates one child container per image, then the CAROUSEL
// container that groups them. Every container must be FINISHED before use.
func (s *instagramService) carouselContainer(ctx context.Context, imageURLs []string, caption string) (string, error) {
	children := make([]string, 0, len(imageURLs))
	for _, u := range imageURLs {
		id, err := s.createContainer(ctx, transfer.InstagramContainerRequest{
			ImageURL:       u,
			IsCarouselItem: true,
		})
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}
	for _, id := range children {
		if err := s.awaitReady(ctx, id); err != nil {
			return "", err
		}
	}

	id, err := s.createContainer(ctx, transfer.InstagramContainerRequest{
		MediaType: "CAROUSEL",
		Caption:   caption,
		Children:  children,
	})
	if err != nil {
		return "", err
	}
	if err := s.awaitReady(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *instagramService) createContainer(ctx context.Context, payload transfer.InstagramContainerRequest) (string, error) {
	payload.AccessToken = s.cfg.AccessToken
	endpoint := s.endpoint("/%s/media", s.cfg.AccountID)

	result, err := executeWithRetry(ctx, s.retry, retryTransient, func() (*transfer.InstagramIDResponse, error) {
		req, err := newJSONRequest(ctx, http.MethodPost, endpoint, payload)
		if err != nil {
			return nil, permanent(err)
		}
		var out transfer.InstagramIDResponse
		if err := doJSON(s.client, req, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return "", models.NewPlatformError(models.PlatformInstagram, graphReason("create container", err), err)
	}
	if result.ID == "" {
		return "", models.NewPlatformError(models.PlatformInstagram, "no media ID returned from Instagram", nil)
	}
	return result.ID, nil
}

// awaitReady polls the container until it is FINISHED. A container that is
// still processing after the wait gets one more try with double the wait.
func (s *instagramService) awaitReady(ctx context.Context, containerID string) error {
	err := s.pollStatus(ctx, containerID, s.processingWait)
	if errors.Is(err, models.ErrProcessingTimeout) {
		s.log.WithField("container_id", containerID).Warn("container still processing, waiting longer")
		err = s.pollStatus(ctx, containerID, 2*s.processingWait)
	}
	if err == nil {
		return nil
	}

	var pe *models.PlatformError
	if errors.As(err, &pe) {
		return err
	}
	return models.NewPlatformError(models.PlatformInstagram, "container "+containerID+" not ready", err)
}

func (s *instagramService) pollStatus(ctx context.Context, containerID string, wait time.Duration) error {
	interval := wait / pollIntervalDivisor
	if interval < minPollInterval {
		interval = minPollInterval
	}
	deadline := time.Now().Add(wait)

	q := url.Values{}
	q.Set("fields", "status_code")
	q.Set("access_token", s.cfg.AccessToken)
	endpoint := s.endpoint("/%s", containerID) + "?" + q.Encode()

	for {
		status, err := executeWithRetry(ctx, s.retry, retryTransient, func() (*transfer.InstagramContainerStatus, error) {
			req, err := newJSONRequest(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, permanent(err)
			}
			var out transfer.InstagramContainerStatus
			if err := doJSON(s.client, req, &out); err != nil {
				return nil, err
			}
			return &out, nil
		})
		if err != nil {
			return models.NewPlatformError(models.PlatformInstagram, graphReason("container status", err), err)
		}

		switch status.StatusCode {
		case containerFinished:
			return nil
		case containerError, containerExpired:
			reason := fmt.Sprintf("container %s %s", containerID, strings.ToLower(status.StatusCode))
			if status.Status != "" {
				reason += ": " + status.Status
			}
			return models.NewPlatformError(models.PlatformInstagram, reason, nil)
		}

		if time.Now().Add(interval).After(deadline) {
			return fmt.Errorf("%w: container %s after %s", models.ErrProcessingTimeout, containerID, wait)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *instagramService) publishContainer(ctx context.Context, containerID string) (string, error) {
	payload := transfer.InstagramPublishRequest{
		CreationID:  containerID,
		AccessToken: s.cfg.AccessToken,
	}
	endpoint := s.endpoint("/%s/media_publish", s.cfg.AccountID)

	result, err := executeWithRetry(ctx, s.retry, retryRateLimited, func() (*transfer.InstagramIDResponse, error) {
		req, err := newJSONRequest(ctx, http.MethodPost, endpoint, payload)
		if err != nil {
			return nil, permanent(err)
		}
		var out transfer.InstagramIDResponse
		if err := doJSON(s.client, req, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return "", models.NewPlatformError(models.PlatformInstagram, graphReason("media_publish", err), err)
	}
	if result.ID == "" {
		return "", models.NewPlatformError(models.PlatformInstagram, "no media ID returned from media_publish", nil)
	}

	s.log.WithFields(logging.Fields{
		"container_id": containerID,
		"media_id":     result.ID,
	}).Info("published to instagram")
	return result.ID, nil
}

// permalink is best-effort; the post is already live when it is asked for.
func (s *instagramService) permalink(ctx context.Context, mediaID string) string {
	q := url.Values{}
	q.Set("fields", "permalink")
	q.Set("access_token", s.cfg.AccessToken)

	req, err := newJSONRequest(ctx, http.MethodGet, s.endpoint("/%s", mediaID)+"?"+q.Encode(), nil)
	if err != nil {
		return ""
	}
	var out transfer.InstagramPermalink
	if err := doJSON(s.client, req, &out); err != nil {
		s.log.WithError(err).WithField("media_id", mediaID).Warn("could not fetch instagram permalink")
		return ""
	}
	return out.Permalink
}

func (s *instagramService) endpoint(format string, args ...any) string {
	return strings.TrimRight(s.cfg.APIURL, "/") + fmt.Sprintf(format, args...)
}

// graphReason adds the Graph API error message, when there is one, to the
// generic reason for a failed call.
func graphReason(step string, err error) string {
	reason := step + " " + platformReason(err)

	var se *StatusError
	if !errors.As(err, &se) {
		return reason
	}
	var body transfer.InstagramErrorResponse
	if json.Unmarshal([]byte(se.Body), &body) != nil || body.Error.Message == "" {
		return reason
	}
	if body.Error.Type == "OAuthException" && !strings.Contains(reason, "auth") {
		reason = step + " auth"
	}
	return reason + ": " + body.Error.Message
}
