package queue

import (
	"context"

	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
)

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	UID string `json:"uid"`
}

// Backend registers deferred wake-ups for approved posts. Registration is
// idempotent per uid: registering the same post twice yields one trigger.
type Backend interface {
	Name() string
	Register(ctx context.Context, trigger *models.Trigger) error
	Pending(ctx context.Context) ([]*models.Trigger, error)
	Ack(ctx context.Context, uid string) error
}

// Waker is woken when a trigger fires. It must re-check the post itself;
// a fired trigger alone never justifies publishing.
type Waker interface {
	Wake(ctx context.Context, uid string) error
}

type Worker struct {
	waker Waker
	log   logging.Logger
}

func NewWorker(waker Waker, log logging.Logger) *Worker {
	return &Worker{
		waker: waker,
		log:   log,
	}
}
