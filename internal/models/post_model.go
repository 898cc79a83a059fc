package models

import (
	"fmt"
	"time"
)

type PostStatus string

const (
	PostStatusPending  PostStatus = "Pending"
	PostStatusApproved PostStatus = "Approved"
	PostStatusRejected PostStatus = "Rejected"
	PostStatusPosted   PostStatus = "Posted"
	PostStatusFailed   PostStatus = "Failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s PostStatus) Terminal() bool {
	return s == PostStatusRejected || s == PostStatusPosted || s == PostStatusFailed
}

const (
	PlatformX         = "x"
	PlatformInstagram = "instagram"
)

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

type Post struct {
	UID              string                    `json:"uid"`
	Status           PostStatus                `json:"status"`
	Media            []string                  `json:"media"`
	GeneratedContent string                    `json:"generatedContent"`
	OriginalInput    string                    `json:"originalInput,omitempty"`
	CreatedAt        time.Time                 `json:"createdAt"`
	ApprovedAt       *time.Time                `json:"approvedAt,omitempty"`
	ScheduledAt      *time.Time                `json:"scheduledAt,omitempty"`
	PostedAt         *time.Time                `json:"postedAt,omitempty"`
	TweetID          string                    `json:"tweetId,omitempty"`
	TweetURL         string                    `json:"tweetUrl,omitempty"`
	Truncated        bool                      `json:"truncated,omitempty"`
	OriginalLength   int                       `json:"originalLength,omitempty"`
	PublishResults   map[string]*PublishResult `json:"publishResults,omitempty"`
	RelayAttempts    int                       `json:"relayAttempts,omitempty"`
	PublishAttempts  int                       `json:"publishAttempts,omitempty"`
	LastError        string                    `json:"lastError,omitempty"`

	// PublishingSince marks a post claimed by a running publish. A claim older
	// than the lease is treated as abandoned.
	PublishingSince *time.Time `json:"publishingSince,omitempty"`
}

// PublishResult is the outcome of one platform attempt for a post.
type PublishResult struct {
	Status         string    `json:"status"` // success, failed
	PlatformPostID string    `json:"platformPostId,omitempty"`
	Permalink      string    `json:"permalink,omitempty"`
	Error          string    `json:"error,omitempty"`
	AttemptedAt    time.Time `json:"attemptedAt"`
}

func (r *PublishResult) Succeeded() bool {
	return r != nil && r.Status == ResultSuccess
}

// IsDue reports whether the post is Approved and its slot is at or before now.
func (p *Post) IsDue(now time.Time) bool {
	return p.Status == PostStatusApproved && p.ScheduledAt != nil && !p.ScheduledAt.After(now)
}

// TextOnly posts can only go to the platform that accepts text without media.
func (p *Post) TextOnly() bool {
	return len(p.Media) == 0
}

func (p *Post) Result(platform string) *PublishResult {
	if p.PublishResults == nil {
		return nil
	}
	return p.PublishResults[platform]
}

func (p *Post) SetResult(platform string, r *PublishResult) {
	if p.PublishResults == nil {
		p.PublishResults = make(map[string]*PublishResult)
	}
	p.PublishResults[platform] = r
}

// Clone returns a deep copy so callers never share slices or maps with the store.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	c.Media = append(make([]string, 0, len(p.Media)), p.Media...)
	c.ApprovedAt = cloneTime(p.ApprovedAt)
	c.ScheduledAt = cloneTime(p.ScheduledAt)
	c.PostedAt = cloneTime(p.PostedAt)
	c.PublishingSince = cloneTime(p.PublishingSince)
	if p.PublishResults != nil {
		c.PublishResults = make(map[string]*PublishResult, len(p.PublishResults))
		for k, v := range p.PublishResults {
			r := *v
			c.PublishResults[k] = &r
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// DateCode groups posts created on the same calendar day: MMDD in loc.
func DateCode(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return fmt.Sprintf("%02d%02d", int(t.Month()), t.Day())
}

// PostsDocument is the on-disk shape of the posts collection.
type PostsDocument struct {
	Posts       []*Post   `json:"posts"`
	RetiredUIDs []string  `json:"retiredUids,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type PostFilter struct {
	Status PostStatus
}

func (f PostFilter) Match(p *Post) bool {
	return f.Status == "" || p.Status == f.Status
}
