package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

func (w *Worker) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// A malformed payload will never succeed; do not let asynq retry it.
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypePublishPost, err, asynq.SkipRetry)
	}
	if payload.UID == "" {
		return fmt.Errorf("%s payload without uid: %w", TaskTypePublishPost, asynq.SkipRetry)
	}

	w.log.WithField("uid", payload.UID).Info("trigger fired")
	if err := w.waker.Wake(ctx, payload.UID); err != nil {
		w.log.WithError(err).WithField("uid", payload.UID).Error("publish on wake failed")
		return err
	}
	return nil
}

// Mux routes asynq tasks to the worker.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePublishPost, w.HandlePublishPostTask)
	return mux
}
