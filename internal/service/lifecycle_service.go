package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/repository"
)

var allowedMediaTypes = map[string]struct{}{
	"jpg": {}, "png": {}, "webp": {}, "gif": {},
}

// Approval is the outcome of approving one post. RegisterError is set when the
// post was approved but its wake-up could not be registered; the periodic sweep
// still publishes it once due.
type Approval struct {
	UID           string    `json:"uid"`
	ScheduledAt   time.Time `json:"scheduledAt"`
	Backend       string    `json:"backend"`
	RegisterError string    `json:"registerError,omitempty"`
}

type LifecycleService interface {
	Create(ctx context.Context, req GenerateRequest) (*models.Post, error)
	Get(ctx context.Context, uid string) (*models.Post, error)
	List(ctx context.Context, filter models.PostFilter) ([]*models.Post, error)
	Approve(ctx context.Context, uid string) (*Approval, error)
	ApproveBatch(ctx context.Context, uids []string) ([]*Approval, error)
	Reject(ctx context.Context, uid string) (*models.Post, error)
	Edit(ctx context.Context, uid, caption string) (*models.Post, error)
	Remove(ctx context.Context, uid string) error
}

type lifecycleService struct {
	repo      repository.PostRepository
	generator ContentGenerator
	scheduler SchedulerService
	log       logging.Logger
	now       Clock
}

func NewLifecycleService(
	repo repository.PostRepository,
	generator ContentGenerator,
	scheduler SchedulerService,
	log logging.Logger,
	clock Clock) LifecycleService {
	return &lifecycleService{
		repo:      repo,
		generator: generator,
		scheduler: scheduler,
		log:       log,
		now:       clockOrNow(clock),
	}
}

func (s *lifecycleService) Create(ctx context.Context, req GenerateRequest) (*models.Post, error) {
	content, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	if err := validateMedia(content.MediaPaths); err != nil {
		return nil, err
	}

	post := &models.Post{
		Status:           models.PostStatusPending,
		Media:            append([]string{}, content.MediaPaths...),
		GeneratedContent: content.Caption,
		OriginalInput:    req.OriginalInput,
		CreatedAt:        s.now(),
	}
	if _, err := s.repo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}

	s.log.WithFields(logging.Fields{
		"uid":   post.UID,
		"media": len(post.Media),
	}).Info("post created")
	return post, nil
}

func validateMedia(paths []string) error {
	for _, p := range paths {
		kind, err := filetype.MatchFile(p)
		if err != nil {
			return fmt.Errorf("%w: media %s: %v", models.ErrInvalidInput, p, err)
		}
		if kind == types.Unknown {
			return fmt.Errorf("%w: media %s has an unsupported file type", models.ErrInvalidInput, p)
		}
		if _, ok := allowedMediaTypes[kind.Extension]; !ok {
			return fmt.Errorf("%w: media %s: file type %s is not allowed", models.ErrInvalidInput, p, kind.Extension)
		}
	}
	return nil
}

func (s *lifecycleService) Get(ctx context.Context, uid string) (*models.Post, error) {
	return s.repo.GetByUID(ctx, uid)
}

func (s *lifecycleService) List(ctx context.Context, filter models.PostFilter) ([]*models.Post, error) {
	return s.repo.List(ctx, filter)
}

func (s *lifecycleService) Approve(ctx context.Context, uid string) (*Approval, error) {
	approvals, err := s.ApproveBatch(ctx, []string{uid})
	if err != nil {
		return nil, err
	}
	return approvals[0], nil
}

// ApproveBatch gives each uid its own slot in input order. Every uid is checked
// before anything is written, so a bad uid leaves the whole batch untouched.
func (s *lifecycleService) ApproveBatch(ctx context.Context, uids []string) ([]*Approval, error) {
	if len(uids) == 0 {
		return nil, fmt.Errorf("%w: no uids to approve", models.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		if _, dup := seen[uid]; dup {
			return nil, fmt.Errorf("%w: uid %s listed twice", models.ErrInvalidInput, uid)
		}
		seen[uid] = struct{}{}
	}

	now := s.now()
	var approvals []*Approval
	err := s.repo.Transact(ctx, func(tx *repository.PostTx) error {
		posts := make([]*models.Post, 0, len(uids))
		for _, uid := range uids {
			p, err := tx.Get(uid)
			if err != nil {
				return err
			}
			if p.Status != models.PostStatusPending {
				return models.InvalidStateError(uid, p.Status, "approve")
			}
			posts = append(posts, p)
		}

		var occupied []time.Time
		for _, p := range tx.List(models.PostFilter{Status: models.PostStatusApproved}) {
			if p.ScheduledAt != nil {
				occupied = append(occupied, *p.ScheduledAt)
			}
		}

		slots := s.scheduler.Slots(now, len(posts), occupied)
		approvals = make([]*Approval, 0, len(posts))
		for i, p := range posts {
			approvedAt, slot := now, slots[i]
			p.Status = models.PostStatusApproved
			p.ApprovedAt = &approvedAt
			p.ScheduledAt = &slot
			approvals = append(approvals, &Approval{UID: p.UID, ScheduledAt: slot, Backend: s.scheduler.Backend()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The store is authoritative; a trigger that fails to register is reported
	// but the approval stands.
	for _, a := range approvals {
		entry := s.log.WithFields(logging.Fields{
			"uid":          a.UID,
			"scheduled_at": a.ScheduledAt.Format(time.RFC3339),
			"backend":      a.Backend,
		})
		if err := s.scheduler.Register(ctx, a.UID, a.ScheduledAt); err != nil {
			a.RegisterError = err.Error()
			entry.WithError(err).Warn("post approved but trigger registration failed")
			continue
		}
		entry.Info("post approved")
	}
	return approvals, nil
}

func (s *lifecycleService) Reject(ctx context.Context, uid string) (*models.Post, error) {
	post, err := s.repo.Update(ctx, uid, func(p *models.Post) error {
		if p.Status != models.PostStatusPending {
			return models.InvalidStateError(uid, p.Status, "reject")
		}
		p.Status = models.PostStatusRejected
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("uid", uid).Info("post rejected")
	return post, nil
}

func (s *lifecycleService) Edit(ctx context.Context, uid, caption string) (*models.Post, error) {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return nil, fmt.Errorf("%w: caption cannot be empty", models.ErrInvalidInput)
	}

	post, err := s.repo.Update(ctx, uid, func(p *models.Post) error {
		if p.Status != models.PostStatusPending {
			return models.InvalidStateError(uid, p.Status, "edit")
		}
		p.GeneratedContent = caption
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("uid", uid).Info("post edited")
	return post, nil
}

// Remove deletes a post that never reached a schedule. Its uid stays retired.
func (s *lifecycleService) Remove(ctx context.Context, uid string) error {
	err := s.repo.Transact(ctx, func(tx *repository.PostTx) error {
		p, err := tx.Get(uid)
		if err != nil {
			return err
		}
		if p.Status != models.PostStatusPending && p.Status != models.PostStatusRejected {
			return models.InvalidStateError(uid, p.Status, "remove")
		}
		return tx.Delete(uid)
	})
	if err != nil {
		return err
	}
	s.log.WithField("uid", uid).Info("post removed")
	return nil
}
