package service

import (
	"context"
	"time"

	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/queue"
)

type SchedulerService interface {
	// Slots returns n publish instants, one per calendar day starting
	// tomorrow, skipping days that already hold an entry of occupied.
	Slots(now time.Time, n int, occupied []time.Time) []time.Time
	Register(ctx context.Context, uid string, slot time.Time) error
	Backend() string
}

type schedulerService struct {
	loc     *time.Location
	hour    int
	backend queue.Backend
	log     logging.Logger
	now     Clock
}

func NewSchedulerService(loc *time.Location, publishHour int, backend queue.Backend, log logging.Logger, clock Clock) SchedulerService {
	return &schedulerService{
		loc:     loc,
		hour:    publishHour,
		backend: backend,
		log:     log,
		now:     clockOrNow(clock),
	}
}

func (s *schedulerService) Backend() string {
	return s.backend.Name()
}

func (s *schedulerService) Slots(now time.Time, n int, occupied []time.Time) []time.Time {
	taken := make(map[string]struct{}, len(occupied))
	for _, t := range occupied {
		taken[t.In(s.loc).Format(time.DateOnly)] = struct{}{}
	}

	local := now.In(s.loc)
	slots := make([]time.Time, 0, n)
	for day := 1; len(slots) < n; day++ {
		slot := time.Date(local.Year(), local.Month(), local.Day()+day, s.hour, 0, 0, 0, s.loc)
		if _, ok := taken[slot.Format(time.DateOnly)]; ok {
			continue
		}
		slots = append(slots, slot)
	}
	return slots
}

func (s *schedulerService) Register(ctx context.Context, uid string, slot time.Time) error {
	return s.backend.Register(ctx, &models.Trigger{
		UID:          uid,
		FireAt:       slot,
		RegisteredAt: s.now(),
	})
}
