package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func setupPostRepository(t *testing.T) (PostRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "posts.json")
	return NewPostRepository(path, time.UTC), path
}

func newPending(caption string) *models.Post {
	return &models.Post{
		Status:           models.PostStatusPending,
		GeneratedContent: caption,
		CreatedAt:        created,
	}
}

func TestCreateAssignsSequentialSuffixes(t *testing.T) {
	repo, _ := setupPostRepository(t)
	ctx := context.Background()

	var uids []string
	for i := 0; i < 3; i++ {
		uid, err := repo.Create(ctx, newPending(fmt.Sprintf("post %d", i)))
		require.NoError(t, err)
		uids = append(uids, uid)
	}

	assert.Equal(t, []string{"0301a", "0301b", "0301c"}, uids)
}

func TestCreateUIDsAreUniqueUnderRepeatedCreation(t *testing.T) {
	repo, _ := setupPostRepository(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 40; i++ {
		uid, err := repo.Create(ctx, newPending("x"))
		require.NoError(t, err)
		require.False(t, seen[uid], "uid %s issued twice", uid)
		seen[uid] = true
	}

	assert.True(t, seen["0301z"])
	assert.True(t, seen["0301aa"], "suffix widens to two letters after z")
}

func TestCreateConcurrentWritersNeverCollide(t *testing.T) {
	repo, _ := setupPostRepository(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uid, err := repo.Create(ctx, newPending("concurrent"))
			if assert.NoError(t, err) {
				results <- uid
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for uid := range results {
		assert.False(t, seen[uid])
		seen[uid] = true
	}
	assert.Len(t, seen, 20)

	all, err := repo.List(ctx, models.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestCreateExhaustedSuffix(t *testing.T) {
	repo, path := setupPostRepository(t)
	ctx := context.Background()

	doc := models.PostsDocument{}
	for _, s := range uidSuffixes {
		doc.Posts = append(doc.Posts, &models.Post{UID: "0301" + s, Status: models.PostStatusPending, CreatedAt: created})
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, WriteJSONAtomic(path, &doc))

	_, err := repo.Create(ctx, newPending("one too many"))
	assert.ErrorIs(t, err, models.ErrExhaustedSuffix)

	// A different day still has room.
	next := newPending("tomorrow")
	next.CreatedAt = created.Add(24 * time.Hour)
	uid, err := repo.Create(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, "0302a", uid)
}

func TestRemoveRetiresUID(t *testing.T) {
	repo, _ := setupPostRepository(t)
	ctx := context.Background()

	uid, err := repo.Create(ctx, newPending("first"))
	require.NoError(t, err)
	require.NoError(t, repo.Remove(ctx, uid))

	_, err = repo.GetByUID(ctx, uid)
	assert.ErrorIs(t, err, models.ErrNotFound)

	again, err := repo.Create(ctx, newPending("second"))
	require.NoError(t, err)
	assert.Equal(t, "0301b", again, "removed uid is never reissued")
}

func TestGetAndUpdateUnknownUID(t *testing.T) {
	repo, _ := setupPostRepository(t)
	ctx := context.Background()

	_, err := repo.GetByUID(ctx, "0101a")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.Update(ctx, "0101a", func(p *models.Post) error { return nil })
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, repo.Remove(ctx, "0101a"), models.ErrNotFound)
}

func TestUpdateMutatorErrorWritesNothing(t *testing.T) {
	repo, path := setupPostRepository(t)
	ctx := context.Background()

	uid, err := repo.Create(ctx, newPending("original"))
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = repo.Update(ctx, uid, func(p *models.Post) error {
		p.GeneratedContent = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestTransactWithoutChangesDoesNotRewrite(t *testing.T) {
	repo, path := setupPostRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, newPending("stable"))
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	err = repo.Transact(ctx, func(tx *PostTx) error {
		_ = tx.List(models.PostFilter{Status: models.PostStatusPending})
		return nil
	})
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestListFiltersByStatus(t *testing.T) {
	repo, _ := setupPostRepository(t)
	ctx := context.Background()

	a, err := repo.Create(ctx, newPending("a"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newPending("b"))
	require.NoError(t, err)

	_, err = repo.Update(ctx, a, func(p *models.Post) error {
		p.Status = models.PostStatusRejected
		return nil
	})
	require.NoError(t, err)

	pending, err := repo.List(ctx, models.PostFilter{Status: models.PostStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "0301b", pending[0].UID)

	all, err := repo.List(ctx, models.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDocumentShape(t *testing.T) {
	repo, path := setupPostRepository(t)
	ctx := context.Background()

	post := newPending("你好")
	post.Media = []string{"media/a.jpg"}
	_, err := repo.Create(ctx, post)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "你好", "non-ascii text is stored unescaped")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "posts")
	assert.Contains(t, doc, "lastUpdated")

	posts := doc["posts"].([]any)
	first := posts[0].(map[string]any)
	assert.Equal(t, "0301a", first["uid"])
	assert.Equal(t, "Pending", first["status"])
	assert.Equal(t, "你好", first["generatedContent"])
}

func TestTextOnlyPostKeepsEmptyMediaList(t *testing.T) {
	repo, path := setupPostRepository(t)
	ctx := context.Background()

	post := newPending("no pictures")
	post.Media = nil
	uid, err := repo.Create(ctx, post)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	first := doc["posts"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{}, first["media"])

	got, err := repo.GetByUID(ctx, uid)
	require.NoError(t, err)
	assert.NotNil(t, got.Media)
	assert.Empty(t, got.Media)
}

func TestReturnedPostsAreCopies(t *testing.T) {
	repo, _ := setupPostRepository(t)
	ctx := context.Background()

	uid, err := repo.Create(ctx, newPending("copy"))
	require.NoError(t, err)

	p, err := repo.GetByUID(ctx, uid)
	require.NoError(t, err)
	p.GeneratedContent = "mutated outside the store"

	again, err := repo.GetByUID(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "copy", again.GeneratedContent)
}
