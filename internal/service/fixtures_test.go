package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/queue"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/stretchr/testify/require"
)

var (
	taipei = time.FixedZone("CST", 8*60*60)

	pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

	testRetry = RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pngHeader, 0o644))
	return path
}

type fixture struct {
	dir       string
	postsPath string
	repo      repository.PostRepository
	backend   *queue.FileQueueBackend
	clock     *testClock
	scheduler SchedulerService
	lifecycle LifecycleService
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	dir := t.TempDir()
	log := logging.Discard()
	clock := newTestClock(now)

	postsPath := filepath.Join(dir, "posts.json")
	repo := repository.NewPostRepository(postsPath, taipei)
	backend := queue.NewFileQueueBackend(filepath.Join(dir, "queue.json"), log)
	scheduler := NewSchedulerService(taipei, 12, backend, log, clock.Now)

	return &fixture{
		dir:       dir,
		postsPath: postsPath,
		repo:      repo,
		backend:   backend,
		clock:     clock,
		scheduler: scheduler,
		lifecycle: NewLifecycleService(repo, NewPassthroughGenerator(), scheduler, log, clock.Now),
	}
}

func (f *fixture) create(t *testing.T, caption string, media ...string) *models.Post {
	t.Helper()
	post, err := f.lifecycle.Create(context.Background(), GenerateRequest{OriginalInput: caption, MediaPaths: media})
	require.NoError(t, err)
	return post
}

func (f *fixture) get(t *testing.T, uid string) *models.Post {
	t.Helper()
	post, err := f.repo.GetByUID(context.Background(), uid)
	require.NoError(t, err)
	return post
}

type fakePublisher struct {
	mu            sync.Mutex
	platform      string
	requiresMedia bool
	calls         []*PublishRequest
	publish       func(req *PublishRequest) (*PublishOutcome, error)
}

func (f *fakePublisher) Platform() string    { return f.platform }
func (f *fakePublisher) RequiresMedia() bool { return f.requiresMedia }

func (f *fakePublisher) Publish(_ context.Context, req *PublishRequest) (*PublishOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.publish(req)
}

func (f *fakePublisher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRelay struct {
	calls int
	err   error
}

func (f *fakeRelay) Relay(_ context.Context, localPath string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://media.example.com/" + filepath.Base(localPath), nil
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (f *fakeNotifier) Send(_ context.Context, text string) error {
	f.messages = append(f.messages, text)
	return f.err
}

type fakeBackend struct {
	registered []*models.Trigger
	err        error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Register(_ context.Context, t *models.Trigger) error {
	if f.err != nil {
		return f.err
	}
	f.registered = append(f.registered, t)
	return nil
}

func (f *fakeBackend) Pending(context.Context) ([]*models.Trigger, error) {
	return f.registered, nil
}

func (f *fakeBackend) Ack(context.Context, string) error { return nil }
