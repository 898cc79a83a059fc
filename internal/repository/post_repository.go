package repository

import (
	"bytes"
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
	"github.com/maheshrc27/postpilot/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) (string, error)
	GetByUID(ctx context.Context, uid string) (*models.Post, error)
	List(ctx context.Context, filter models.PostFilter) ([]*models.Post, error)
	Update(ctx context.Context, uid string, mutate func(*models.Post) error) (*models.Post, error)
	Remove(ctx context.Context, uid string) error
	Transact(ctx context.Context, fn func(tx *PostTx) error) error
}

const lockRetryDelay = 50 * time.Millisecond

// postRepository keeps every post in one JSON document. All access goes through
// a process mutex plus an advisory file lock so only one writer runs at a time,
// even across processes (a cron pulse and an operator command).
type postRepository struct {
	path string
	loc  *time.Location
	mu   sync.Mutex
	lock *flock.Flock
	now  func() time.Time
}

func NewPostRepository(path string, loc *time.Location) PostRepository {
	return &postRepository{
		path: path,
		loc:  loc,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}
}

// PostTx is a view of the whole collection inside the critical section. Posts
// returned by Get and List are live: mutations are persisted when the enclosing
// Transact returns nil.
type PostTx struct {
	doc *models.PostsDocument
	loc *time.Location
}

func (tx *PostTx) Get(uid string) (*models.Post, error) {
	for _, p := range tx.doc.Posts {
		if p.UID == uid {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrNotFound, uid)
}

func (tx *PostTx) List(filter models.PostFilter) []*models.Post {
	var out []*models.Post
	for _, p := range tx.doc.Posts {
		if filter.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Insert assigns the next free uid for the post's creation date and appends it.
func (tx *PostTx) Insert(post *models.Post) (string, error) {
	taken := make(map[string]struct{}, len(tx.doc.Posts)+len(tx.doc.RetiredUIDs))
	for _, p := range tx.doc.Posts {
		taken[p.UID] = struct{}{}
	}
	for _, uid := range tx.doc.RetiredUIDs {
		taken[uid] = struct{}{}
	}

	code := models.DateCode(post.CreatedAt, tx.loc)
	uid, err := nextUID(code, taken)
	if err != nil {
		return "", err
	}

	post.UID = uid
	tx.doc.Posts = append(tx.doc.Posts, post)
	return uid, nil
}

// Delete drops the post and retires its uid so it is never issued again.
func (tx *PostTx) Delete(uid string) error {
	for i, p := range tx.doc.Posts {
		if p.UID == uid {
			tx.doc.Posts = append(tx.doc.Posts[:i], tx.doc.Posts[i+1:]...)
			tx.doc.RetiredUIDs = append(tx.doc.RetiredUIDs, uid)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", models.ErrNotFound, uid)
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) (string, error) {
	var uid string
	err := r.Transact(ctx, func(tx *PostTx) error {
		var err error
		uid, err = tx.Insert(post.Clone())
		return err
	})
	if err != nil {
		return "", err
	}
	post.UID = uid
	return uid, nil
}

func (r *postRepository) GetByUID(ctx context.Context, uid string) (*models.Post, error) {
	var post *models.Post
	err := r.view(ctx, func(doc *models.PostsDocument) error {
		for _, p := range doc.Posts {
			if p.UID == uid {
				post = p.Clone()
				return nil
			}
		}
		return fmt.Errorf("%w: %s", models.ErrNotFound, uid)
	})
	return post, err
}

func (r *postRepository) List(ctx context.Context, filter models.PostFilter) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.view(ctx, func(doc *models.PostsDocument) error {
		for _, p := range doc.Posts {
			if filter.Match(p) {
				posts = append(posts, p.Clone())
			}
		}
		return nil
	})
	return posts, err
}

// Update rewrites one record. If mutate returns an error nothing is written.
func (r *postRepository) Update(ctx context.Context, uid string, mutate func(*models.Post) error) (*models.Post, error) {
	var updated *models.Post
	err := r.Transact(ctx, func(tx *PostTx) error {
		p, err := tx.Get(uid)
		if err != nil {
			return err
		}
		if err := mutate(p); err != nil {
			return err
		}
		updated = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *postRepository) Remove(ctx context.Context, uid string) error {
	return r.Transact(ctx, func(tx *PostTx) error {
		return tx.Delete(uid)
	})
}

// Transact runs fn with the collection loaded under the single-writer lock and
// persists the document when fn succeeds and changed something.
func (r *postRepository) Transact(ctx context.Context, fn func(tx *PostTx) error) error {
	unlock, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	before, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("snapshot posts document: %w", err)
	}

	tx := &PostTx{doc: doc, loc: r.loc}
	if err := fn(tx); err != nil {
		return err
	}

	after, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("snapshot posts document: %w", err)
	}
	if bytes.Equal(before, after) {
		return nil
	}
	return r.save(doc)
}

func (r *postRepository) view(ctx context.Context, fn func(doc *models.PostsDocument) error) error {
	unlock, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

func (r *postRepository) acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	r.mu.Lock()
	locked, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		r.mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("lock posts document: %w", err)
	}

	return func() {
		_ = r.lock.Unlock()
		r.mu.Unlock()
	}, nil
}

func (r *postRepository) load() (*models.PostsDocument, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &models.PostsDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read posts document: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return &models.PostsDocument{}, nil
	}

	var doc models.PostsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode posts document: %w", err)
	}
	return &doc, nil
}

func (r *postRepository) save(doc *models.PostsDocument) error {
	doc.LastUpdated = r.now()
	if doc.Posts == nil {
		doc.Posts = []*models.Post{}
	}
	return WriteJSONAtomic(r.path, doc)
}

// WriteJSONAtomic writes v to a temp file next to path and renames it into place,
// so readers never observe a half-written document.
func WriteJSONAtomic(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

var uidSuffixes = buildSuffixes()

// buildSuffixes lists a..z followed by aa..zz. The two-letter range only comes
// into play after 26 posts on the same date code.
func buildSuffixes() []string {
	out := make([]string, 0, 26+26*26)
	for c := 'a'; c <= 'z'; c++ {
		out = append(out, string(c))
	}
	for a := 'a'; a <= 'z'; a++ {
		for b := 'a'; b <= 'z'; b++ {
			out = append(out, string([]rune{a, b}))
		}
	}
	return out
}

func nextUID(code string, taken map[string]struct{}) (string, error) {
	for _, s := range uidSuffixes {
		uid := code + s
		if _, ok := taken[uid]; !ok {
			return uid, nil
		}
	}
	return "", fmt.Errorf("%w: %s", models.ErrExhaustedSuffix, code)
}
