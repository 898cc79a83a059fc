package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/repository"
)

const (
	OutcomePosted  = "posted"
	OutcomePartial = "partial"
	OutcomeRetry   = "retry"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// claimLease bounds how long a crashed run can keep a post claimed.
const claimLease = 30 * time.Minute

type PlatformReport struct {
	Platform       string `json:"platform"`
	Status         string `json:"status"`
	PlatformPostID string `json:"platformPostId,omitempty"`
	Permalink      string `json:"permalink,omitempty"`
	Error          string `json:"error,omitempty"`
	// Previous is set when the success was recorded by an earlier run.
	Previous bool `json:"previous,omitempty"`
}

type PostReport struct {
	UID       string            `json:"uid"`
	Outcome   string            `json:"outcome"`
	Status    models.PostStatus `json:"status"`
	Platforms []*PlatformReport `json:"platforms,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

type Report struct {
	Posts             []*PostReport `json:"posts"`
	Posted            int           `json:"posted"`
	Partial           int           `json:"partial"`
	Retrying          int           `json:"retrying"`
	Failed            int           `json:"failed"`
	Skipped           int           `json:"skipped"`
	Errors            int           `json:"errors"`
	PlatformSucceeded int           `json:"platformSucceeded"`
	PlatformFailed    int           `json:"platformFailed"`
}

func (r *Report) add(pr *PostReport) {
	r.Posts = append(r.Posts, pr)
	switch pr.Outcome {
	case OutcomePosted:
		r.Posted++
	case OutcomePartial:
		r.Partial++
	case OutcomeRetry:
		r.Retrying++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeError:
		r.Errors++
	}
	for _, p := range pr.Platforms {
		if p.Previous {
			continue
		}
		if p.Status == models.ResultSuccess {
			r.PlatformSucceeded++
		} else {
			r.PlatformFailed++
		}
	}
}

// attempted reports whether the run did anything worth telling a human about.
func (r *Report) attempted() bool {
	return r.Posted+r.Partial+r.Retrying+r.Failed+r.Errors > 0
}

// Summary is the notification text for a run.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Publish run: %d succeeded, %d failed", r.PlatformSucceeded, r.PlatformFailed)
	for _, p := range r.Posts {
		if p.Outcome == OutcomeSkipped {
			continue
		}
		fmt.Fprintf(&b, "\n%s %s", p.UID, p.Outcome)
		if p.Reason != "" {
			fmt.Fprintf(&b, " (%s)", p.Reason)
		}
		for _, pl := range p.Platforms {
			if pl.Previous {
				continue
			}
			if pl.Status == models.ResultSuccess {
				link := pl.Permalink
				if link == "" {
					link = pl.PlatformPostID
				}
				fmt.Fprintf(&b, "\n  %s: %s", pl.Platform, link)
			} else {
				fmt.Fprintf(&b, "\n  %s: failed: %s", pl.Platform, pl.Error)
			}
		}
	}
	return b.String()
}

type PublishOptions struct {
	MaxRelayAttempts   int
	MaxPublishAttempts int
}

type PublishService interface {
	// PublishDue publishes every due post, oldest slot first.
	PublishDue(ctx context.Context) (*Report, error)
	// PublishOne publishes uid if it is still Approved and due. Anything else
	// is reported as skipped.
	PublishOne(ctx context.Context, uid string) (*PostReport, error)
	// Wake handles a trigger firing for uid.
	Wake(ctx context.Context, uid string) error
}

type publishService struct {
	repo       repository.PostRepository
	history    repository.PostingHistoryRepository
	relay      MediaRelay
	publishers []PlatformPublisher
	notifier   Notifier
	opts       PublishOptions
	log        logging.Logger
	now        Clock
}

// NewPublishService publishes to publishers in the given order.
func NewPublishService(
	repo repository.PostRepository,
	history repository.PostingHistoryRepository,
	relay MediaRelay,
	publishers []PlatformPublisher,
	notifier Notifier,
	opts PublishOptions,
	log logging.Logger,
	clock Clock) PublishService {
	if opts.MaxRelayAttempts < 1 {
		opts.MaxRelayAttempts = 1
	}
	if opts.MaxPublishAttempts < 1 {
		opts.MaxPublishAttempts = 1
	}
	return &publishService{
		repo:       repo,
		history:    history,
		relay:      relay,
		publishers: publishers,
		notifier:   notifier,
		opts:       opts,
		log:        log,
		now:        clockOrNow(clock),
	}
}

func (s *publishService) PublishDue(ctx context.Context) (*Report, error) {
	now := s.now()
	var due []*models.Post
	err := s.repo.Transact(ctx, func(tx *repository.PostTx) error {
		for _, p := range tx.List(models.PostFilter{Status: models.PostStatusApproved}) {
			if p.IsDue(now) {
				due = append(due, p.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select due posts: %w", err)
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(*due[j].ScheduledAt)
	})

	s.log.WithField("due", len(due)).Info("publish run started")

	report := &Report{}
	for _, p := range due {
		pr, err := s.publish(ctx, p.UID)
		if err != nil {
			s.log.WithError(err).WithField("uid", p.UID).Error("publish failed")
			pr = &PostReport{UID: p.UID, Outcome: OutcomeError, Status: p.Status, Reason: err.Error()}
		}
		report.add(pr)
	}

	s.notify(ctx, report)
	s.log.WithFields(logging.Fields{
		"posted":   report.Posted,
		"partial":  report.Partial,
		"retrying": report.Retrying,
		"failed":   report.Failed,
		"skipped":  report.Skipped,
	}).Info("publish run finished")
	return report, nil
}

func (s *publishService) PublishOne(ctx context.Context, uid string) (*PostReport, error) {
	pr, err := s.publish(ctx, uid)
	if err != nil {
		return nil, err
	}
	report := &Report{}
	report.add(pr)
	s.notify(ctx, report)
	return pr, nil
}

func (s *publishService) Wake(ctx context.Context, uid string) error {
	_, err := s.PublishOne(ctx, uid)
	return err
}

// publish runs one post through relay, every platform and the final commit.
// The post is claimed under the store lock first so a second executor skips
// it, and each platform result is written as soon as it is known so a crash
// never leads to publishing the same platform twice.
func (s *publishService) publish(ctx context.Context, uid string) (*PostReport, error) {
	post, skip, err := s.claim(ctx, uid)
	if err != nil {
		return nil, err
	}
	if skip != nil {
		return skip, nil
	}

	entry := s.log.WithField("uid", uid)
	entry.Info("publishing post")

	mediaURLs, err := s.relayAll(ctx, post)
	if err != nil {
		entry.WithError(err).Warn("media relay failed")
		return s.commitRelayFailure(ctx, uid, err)
	}

	report := &PostReport{UID: uid}
	results := make(map[string]*models.PublishResult, len(s.publishers))
	outcomes := make(map[string]*PublishOutcome, len(s.publishers))
	for _, pub := range s.publishers {
		platform := pub.Platform()
		if prev := post.Result(platform); prev.Succeeded() {
			report.Platforms = append(report.Platforms, platformReport(platform, prev, true))
			continue
		}

		result, outcome := s.attempt(ctx, pub, post, mediaURLs)
		results[platform] = result
		outcomes[platform] = outcome
		report.Platforms = append(report.Platforms, platformReport(platform, result, false))

		if err := s.writeThrough(ctx, uid, platform, result, outcome); err != nil {
			entry.WithError(err).WithField("platform", platform).Error("could not record platform result, retrying at commit")
		}
		s.audit(ctx, uid, platform, result)
	}

	final, err := s.commit(ctx, uid, results, outcomes)
	if err != nil {
		return nil, err
	}
	report.Status = final.Status
	report.Reason = final.LastError
	report.Outcome = outcomeFor(final)

	entry.WithFields(logging.Fields{
		"status":  final.Status,
		"outcome": report.Outcome,
	}).Info("post publish committed")
	return report, nil
}

// claim re-checks status and due-ness under the lock and marks the post as
// being published. A nil post means the caller should report skip.
func (s *publishService) claim(ctx context.Context, uid string) (*models.Post, *PostReport, error) {
	now := s.now()
	var (
		post *models.Post
		skip *PostReport
	)
	err := s.repo.Transact(ctx, func(tx *repository.PostTx) error {
		p, err := tx.Get(uid)
		if err != nil {
			return err
		}
		switch {
		case p.Status != models.PostStatusApproved:
			skip = &PostReport{UID: uid, Outcome: OutcomeSkipped, Status: p.Status, Reason: "status is " + string(p.Status)}
		case !p.IsDue(now):
			skip = &PostReport{UID: uid, Outcome: OutcomeSkipped, Status: p.Status, Reason: "not due until " + p.ScheduledAt.Format(time.RFC3339)}
		case p.PublishingSince != nil && now.Sub(*p.PublishingSince) < claimLease:
			skip = &PostReport{UID: uid, Outcome: OutcomeSkipped, Status: p.Status, Reason: "publish already in progress"}
		default:
			claimed := now
			p.PublishingSince = &claimed
			post = p.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if skip != nil {
		s.log.WithFields(logging.Fields{"uid": uid, "reason": skip.Reason}).Info("post skipped")
	}
	return post, skip, nil
}

func (s *publishService) relayAll(ctx context.Context, post *models.Post) ([]string, error) {
	urls := make([]string, 0, len(post.Media))
	for _, path := range post.Media {
		u, err := s.relay.Relay(ctx, path)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

func (s *publishService) attempt(ctx context.Context, pub PlatformPublisher, post *models.Post, mediaURLs []string) (*models.PublishResult, *PublishOutcome) {
	platform := pub.Platform()
	entry := s.log.WithFields(logging.Fields{"uid": post.UID, "platform": platform})

	var (
		outcome *PublishOutcome
		err     error
	)
	if pub.RequiresMedia() && post.TextOnly() {
		err = models.NewPlatformError(platform, "precondition: at least one image is required", nil)
	} else {
		outcome, err = pub.Publish(ctx, &PublishRequest{
			UID:       post.UID,
			Caption:   post.GeneratedContent,
			MediaURLs: mediaURLs,
		})
	}

	result := &models.PublishResult{AttemptedAt: s.now()}
	if err != nil {
		var pe *models.PlatformError
		if !errors.As(err, &pe) {
			err = models.NewPlatformError(platform, "publish failed", err)
		}
		result.Status = models.ResultFailed
		result.Error = err.Error()
		entry.WithError(err).Warn("platform publish failed")
		return result, nil
	}

	result.Status = models.ResultSuccess
	result.PlatformPostID = outcome.PlatformPostID
	result.Permalink = outcome.Permalink
	entry.WithFields(logging.Fields{
		"platform_post_id": outcome.PlatformPostID,
		"permalink":        outcome.Permalink,
	}).Info("platform publish succeeded")
	return result, outcome
}

func applyResult(p *models.Post, platform string, result *models.PublishResult, outcome *PublishOutcome) {
	p.SetResult(platform, result)
	if platform != models.PlatformX || !result.Succeeded() {
		return
	}
	p.TweetID = result.PlatformPostID
	p.TweetURL = result.Permalink
	if outcome != nil && outcome.Truncated {
		p.Truncated = true
		p.OriginalLength = outcome.OriginalLength
	}
}

func (s *publishService) writeThrough(ctx context.Context, uid, platform string, result *models.PublishResult, outcome *PublishOutcome) error {
	_, err := s.repo.Update(ctx, uid, func(p *models.Post) error {
		applyResult(p, platform, result, outcome)
		return nil
	})
	return err
}

// commit settles the post: Posted when any platform has succeeded, otherwise
// Approved for another try until the attempt budget is spent.
func (s *publishService) commit(ctx context.Context, uid string, results map[string]*models.PublishResult, outcomes map[string]*PublishOutcome) (*models.Post, error) {
	now := s.now()
	var final *models.Post
	err := s.repo.Transact(ctx, func(tx *repository.PostTx) error {
		p, err := tx.Get(uid)
		if err != nil {
			return err
		}
		p.PublishingSince = nil
		for platform, r := range results {
			applyResult(p, platform, r, outcomes[platform])
		}

		failures := s.failures(p)
		p.LastError = strings.Join(failures, "; ")
		if s.anySucceeded(p) {
			postedAt := now
			p.Status = models.PostStatusPosted
			p.PostedAt = &postedAt
		} else {
			p.PublishAttempts++
			if p.PublishAttempts >= s.opts.MaxPublishAttempts {
				p.Status = models.PostStatusFailed
			}
		}
		final = p.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit publish of %s: %w", uid, err)
	}
	return final, nil
}

// commitRelayFailure leaves the post Approved for the next pulse until the
// relay budget is spent. Nothing was published on this run.
func (s *publishService) commitRelayFailure(ctx context.Context, uid string, relayErr error) (*PostReport, error) {
	now := s.now()
	var final *models.Post
	err := s.repo.Transact(ctx, func(tx *repository.PostTx) error {
		p, err := tx.Get(uid)
		if err != nil {
			return err
		}
		p.PublishingSince = nil
		p.RelayAttempts++
		p.LastError = "relay: " + relayErr.Error()
		if p.RelayAttempts >= s.opts.MaxRelayAttempts {
			if s.anySucceeded(p) {
				postedAt := now
				p.Status = models.PostStatusPosted
				p.PostedAt = &postedAt
			} else {
				p.Status = models.PostStatusFailed
			}
		}
		final = p.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record relay failure of %s: %w", uid, err)
	}

	s.log.WithFields(logging.Fields{
		"uid":            uid,
		"relay_attempts": final.RelayAttempts,
		"status":         final.Status,
	}).Warn("publish deferred by relay failure")

	return &PostReport{
		UID:     uid,
		Outcome: outcomeFor(final),
		Status:  final.Status,
		Reason:  final.LastError,
	}, nil
}

func (s *publishService) anySucceeded(p *models.Post) bool {
	for _, pub := range s.publishers {
		if p.Result(pub.Platform()).Succeeded() {
			return true
		}
	}
	return false
}

func (s *publishService) failures(p *models.Post) []string {
	var out []string
	for _, pub := range s.publishers {
		if r := p.Result(pub.Platform()); r != nil && !r.Succeeded() {
			out = append(out, r.Error)
		}
	}
	return out
}

func (s *publishService) audit(ctx context.Context, uid, platform string, result *models.PublishResult) {
	_, err := s.history.Create(ctx, &models.PostingHistory{
		PostUID:        uid,
		Platform:       platform,
		PlatformPostID: result.PlatformPostID,
		Permalink:      result.Permalink,
		ErrorMessage:   result.Error,
		CreatedAt:      result.AttemptedAt,
	})
	if err != nil {
		s.log.WithError(err).WithFields(logging.Fields{"uid": uid, "platform": platform}).Warn("posting history not recorded")
	}
}

func (s *publishService) notify(ctx context.Context, report *Report) {
	if !report.attempted() {
		return
	}
	if err := s.notifier.Send(ctx, report.Summary()); err != nil {
		s.log.WithError(err).Warn("notification failed")
	}
}

func outcomeFor(p *models.Post) string {
	switch p.Status {
	case models.PostStatusPosted:
		for _, r := range p.PublishResults {
			if !r.Succeeded() {
				return OutcomePartial
			}
		}
		return OutcomePosted
	case models.PostStatusFailed:
		return OutcomeFailed
	case models.PostStatusApproved:
		return OutcomeRetry
	}
	return OutcomeSkipped
}

func platformReport(platform string, r *models.PublishResult, previous bool) *PlatformReport {
	return &PlatformReport{
		Platform:       platform,
		Status:         r.Status,
		PlatformPostID: r.PlatformPostID,
		Permalink:      r.Permalink,
		Error:          r.Error,
		Previous:       previous,
	}
}
