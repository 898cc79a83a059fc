package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/queue"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/internal/service"
	"github.com/robfig/cron"
)

const sweepTimeout = 30 * time.Minute

// PublishSweepJob is the periodic pulse: it publishes every due post and then
// drops queued triggers whose post no longer needs one.
type PublishSweepJob struct {
	publisher service.PublishService
	repo      repository.PostRepository
	backend   queue.Backend
	log       logging.Logger

	// running guards against a slow sweep overlapping the next tick.
	running sync.Mutex
}

func NewPublishSweepJob(
	publisher service.PublishService,
	repo repository.PostRepository,
	backend queue.Backend,
	log logging.Logger) *PublishSweepJob {
	return &PublishSweepJob{
		publisher: publisher,
		repo:      repo,
		backend:   backend,
		log:       log,
	}
}

// Run is the cron entry point.
func (j *PublishSweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := j.Sweep(ctx); err != nil {
		j.log.WithError(err).Error("publish sweep failed")
	}
}

// Sweep returns nil, nil when another sweep is still running.
func (j *PublishSweepJob) Sweep(ctx context.Context) (*service.Report, error) {
	if !j.running.TryLock() {
		j.log.Warn("previous publish sweep still running, skipping tick")
		return nil, nil
	}
	defer j.running.Unlock()

	report, err := j.publisher.PublishDue(ctx)
	if err != nil {
		return nil, err
	}
	j.pruneTriggers(ctx)
	return report, nil
}

func (j *PublishSweepJob) pruneTriggers(ctx context.Context) {
	triggers, err := j.backend.Pending(ctx)
	if err != nil {
		j.log.WithError(err).Warn("list pending triggers")
		return
	}

	for _, t := range triggers {
		post, err := j.repo.GetByUID(ctx, t.UID)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case err != nil:
			j.log.WithError(err).WithField("uid", t.UID).Warn("load post for trigger")
			continue
		case post.Status == models.PostStatusApproved:
			continue
		}

		if err := j.backend.Ack(ctx, t.UID); err != nil {
			j.log.WithError(err).WithField("uid", t.UID).Warn("ack stale trigger")
			continue
		}
		j.log.WithField("uid", t.UID).Info("stale trigger removed")
	}
}

// Schedule registers the sweep on a cron runner. The caller starts and stops it.
func Schedule(spec string, j *PublishSweepJob) (*cron.Cron, error) {
	c := cron.New()
	if err := c.AddFunc(spec, j.Run); err != nil {
		return nil, err
	}
	return c, nil
}
