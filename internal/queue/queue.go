package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
)

const (
	BackendAsynq = "asynq"
	BackendFile  = "file"

	defaultQueue = "default"

	pendingPageSize = 100
)

// AsynqBackend keeps triggers in asynq's Redis-backed scheduled set. The task id
// is derived from the uid, so a second registration for the same post is
// rejected by asynq instead of producing a duplicate wake-up.
type AsynqBackend struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	log       logging.Logger
}

func NewAsynqBackend(redisConn asynq.RedisClientOpt, log logging.Logger) *AsynqBackend {
	return &AsynqBackend{
		client:    asynq.NewClient(redisConn),
		inspector: asynq.NewInspector(redisConn),
		log:       log,
	}
}

func (b *AsynqBackend) Name() string { return BackendAsynq }

func TaskID(uid string) string {
	return TaskTypePublishPost + ":" + uid
}

func NewPublishPostTask(uid string) (*asynq.Task, error) {
	taskPayload, err := json.Marshal(PublishPostPayload{UID: uid})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePublishPost, taskPayload), nil
}

func (b *AsynqBackend) Register(ctx context.Context, trigger *models.Trigger) error {
	task, err := NewPublishPostTask(trigger.UID)
	if err != nil {
		return err
	}

	_, err = b.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(trigger.FireAt),
		asynq.TaskID(TaskID(trigger.UID)),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		b.log.WithField("uid", trigger.UID).Info("trigger already registered")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue publish task for %s: %w", trigger.UID, err)
	}

	b.log.WithFields(logging.Fields{
		"uid":     trigger.UID,
		"fire_at": trigger.FireAt.Format(time.RFC3339),
	}).Info("task scheduled")
	return nil
}

// listAllPages walks 1-based pages until a short page comes back.
func listAllPages(list func(page int) ([]*asynq.TaskInfo, error)) ([]*asynq.TaskInfo, error) {
	var all []*asynq.TaskInfo
	for page := 1; ; page++ {
		tasks, err := list(page)
		if err != nil {
			return nil, err
		}
		all = append(all, tasks...)
		if len(tasks) < pendingPageSize {
			return all, nil
		}
	}
}

func (b *AsynqBackend) Pending(ctx context.Context) ([]*models.Trigger, error) {
	tasks, err := listAllPages(func(page int) ([]*asynq.TaskInfo, error) {
		return b.inspector.ListScheduledTasks(defaultQueue, asynq.Page(page), asynq.PageSize(pendingPageSize))
	})
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}

	var triggers []*models.Trigger
	for _, t := range tasks {
		if t.Type != TaskTypePublishPost {
			continue
		}
		var payload PublishPostPayload
		if err := json.Unmarshal(t.Payload, &payload); err != nil {
			continue
		}
		triggers = append(triggers, &models.Trigger{
			UID:     payload.UID,
			FireAt:  t.NextProcessAt,
			Backend: BackendAsynq,
		})
	}
	return triggers, nil
}

func (b *AsynqBackend) Ack(ctx context.Context, uid string) error {
	err := b.inspector.DeleteTask(defaultQueue, TaskID(uid))
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return fmt.Errorf("delete task for %s: %w", uid, err)
	}
	return nil
}

func (b *AsynqBackend) Close() error {
	return errors.Join(b.client.Close(), b.inspector.Close())
}
