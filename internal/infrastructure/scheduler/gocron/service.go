package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/unite-defi/swapd/internal/core/ports"
)

type service struct {
	scheduler *gocron.Scheduler

	mu   sync.Mutex
	jobs map[string]*gocron.Job
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{
		scheduler: svc,
		jobs:      make(map[string]*gocron.Job),
	}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

// ScheduleAt arms fn to run once at the given time, replacing any job with
// the same name. Scheduling in the past fires on the next tick.
func (s *service) ScheduleAt(name string, at time.Time, fn func()) error {
	delay := time.Until(at)
	if delay < time.Second {
		delay = time.Second
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.jobs[name]; ok {
		s.scheduler.RemoveByReference(prev)
		delete(s.jobs, name)
	}

	job, err := s.scheduler.
		Every(int(delay.Seconds()) + 1).Seconds().
		WaitForSchedule().
		LimitRunsTo(1).
		Tag(name).
		Do(fn)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	return nil
}

func (s *service) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[name]; ok {
		s.scheduler.RemoveByReference(job)
		delete(s.jobs, name)
	}
}

func (s *service) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	return job.NextRun(), true
}
