package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/repository"
)

// FileQueueBackend records triggers in a local JSON document. Nothing fires on
// its own: an external pulse (the sweep job, host cron, or an operator running
// the publish command) has to act on it.
type FileQueueBackend struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
	log  logging.Logger
	now  func() time.Time
}

func NewFileQueueBackend(path string, log logging.Logger) *FileQueueBackend {
	return &FileQueueBackend{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  log,
		now:  time.Now,
	}
}

func (b *FileQueueBackend) Name() string { return BackendFile }

func (b *FileQueueBackend) Register(ctx context.Context, trigger *models.Trigger) error {
	return b.mutate(ctx, func(doc *models.TriggerDocument) bool {
		for _, t := range doc.Triggers {
			if t.UID == trigger.UID {
				b.log.WithField("uid", trigger.UID).Info("trigger already registered")
				return false
			}
		}

		t := *trigger
		t.Backend = BackendFile
		if t.RegisteredAt.IsZero() {
			t.RegisteredAt = b.now()
		}
		doc.Triggers = append(doc.Triggers, &t)
		b.log.WithFields(logging.Fields{
			"uid":     t.UID,
			"fire_at": t.FireAt.Format(time.RFC3339),
		}).Info("trigger queued, waiting for external pulse")
		return true
	})
}

func (b *FileQueueBackend) Pending(ctx context.Context) ([]*models.Trigger, error) {
	var out []*models.Trigger
	err := b.mutate(ctx, func(doc *models.TriggerDocument) bool {
		for _, t := range doc.Triggers {
			c := *t
			out = append(out, &c)
		}
		return false
	})
	return out, err
}

func (b *FileQueueBackend) Ack(ctx context.Context, uid string) error {
	return b.mutate(ctx, func(doc *models.TriggerDocument) bool {
		kept := doc.Triggers[:0]
		removed := false
		for _, t := range doc.Triggers {
			if t.UID == uid {
				removed = true
				continue
			}
			kept = append(kept, t)
		}
		doc.Triggers = kept
		return removed
	})
}

// mutate loads the queue document under the lock and saves it when fn reports a change.
func (b *FileQueueBackend) mutate(ctx context.Context, fn func(doc *models.TriggerDocument) bool) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("ensure queue dir: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	locked, err := b.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		if err == nil {
			err = ctx.Err()
		}
		return fmt.Errorf("lock queue document: %w", err)
	}
	defer b.lock.Unlock()

	doc := &models.TriggerDocument{}
	raw, err := os.ReadFile(b.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read queue document: %w", err)
	case len(raw) > 0:
		if err := json.Unmarshal(raw, doc); err != nil {
			return fmt.Errorf("decode queue document: %w", err)
		}
	}

	if !fn(doc) {
		return nil
	}

	doc.LastUpdated = b.now()
	if doc.Triggers == nil {
		doc.Triggers = []*models.Trigger{}
	}
	return repository.WriteJSONAtomic(b.path, doc)
}
