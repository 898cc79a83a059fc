package job

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/queue"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu      sync.Mutex
	runs    int
	release chan struct{}
}

func (f *fakePublisher) PublishDue(context.Context) (*service.Report, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return &service.Report{}, nil
}

func (f *fakePublisher) PublishOne(_ context.Context, uid string) (*service.PostReport, error) {
	return &service.PostReport{UID: uid, Outcome: service.OutcomeSkipped}, nil
}

func (f *fakePublisher) Wake(context.Context, string) error { return nil }

func newSweep(t *testing.T, pub service.PublishService) (*PublishSweepJob, repository.PostRepository, *queue.FileQueueBackend) {
	t.Helper()
	dir := t.TempDir()
	repo := repository.NewPostRepository(filepath.Join(dir, "posts.json"), time.UTC)
	backend := queue.NewFileQueueBackend(filepath.Join(dir, "queue.json"), logging.Discard())
	return NewPublishSweepJob(pub, repo, backend, logging.Discard()), repo, backend
}

func TestSweepPublishesAndPrunesStaleTriggers(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	sweep, repo, backend := newSweep(t, pub)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	slot := now.Add(26 * time.Hour)
	approved, err := repo.Create(ctx, &models.Post{Status: models.PostStatusApproved, CreatedAt: now, ScheduledAt: &slot, GeneratedContent: "a"})
	require.NoError(t, err)
	rejected, err := repo.Create(ctx, &models.Post{Status: models.PostStatusRejected, CreatedAt: now, GeneratedContent: "b"})
	require.NoError(t, err)

	for _, uid := range []string{approved, rejected, "0101z"} {
		require.NoError(t, backend.Register(ctx, &models.Trigger{UID: uid, FireAt: slot}))
	}

	report, err := sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.NotNil(t, report)
	assert.Equal(t, 1, pub.runs)

	pending, err := backend.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, approved, pending[0].UID)
}

func TestSweepSkipsOverlappingTick(t *testing.T) {
	pub := &fakePublisher{release: make(chan struct{})}
	sweep, _, _ := newSweep(t, pub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sweep.Sweep(context.Background())
	}()

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return pub.runs == 1
	}, time.Second, time.Millisecond)

	report, err := sweep.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, report)

	close(pub.release)
	<-done
	assert.Equal(t, 1, pub.runs)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	sweep, _, _ := newSweep(t, &fakePublisher{})

	_, err := Schedule("not a spec", sweep)
	assert.Error(t, err)

	c, err := Schedule("@every 00h05m00s", sweep)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}
