package trigger

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/formeye/internal/delivery"
	"github.com/formeye/internal/models"
	"github.com/formeye/internal/rule"
	"github.com/formeye/internal/submission"
	"golang.org/x/sync/semaphore"
)

// Scheduler is the time-driven trigger path: a single-threaded tick
// loop that fans rule evaluation out to a bounded worker pool and hands
// the firing batch to the coordinator in one priority-ordered dispatch.
// A scheduled rule evaluates against the most recent submission of its
// form.
type Scheduler struct {
	rules      *rule.Store
	subs       *submission.Store
	coord      *delivery.Coordinator
	resolution time.Duration
	workers    *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[uint]bool

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewScheduler(rules *rule.Store, subs *submission.Store, coord *delivery.Coordinator, resolution time.Duration, workers int) *Scheduler {
	if resolution <= 0 {
		resolution = time.Minute
	}
	if workers < 1 {
		workers = 8
	}
	return &Scheduler{
		rules:      rules,
		subs:       subs,
		coord:      coord,
		resolution: resolution,
		workers:    semaphore.NewWeighted(int64(workers)),
		inFlight:   make(map[uint]bool),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go func() {
		defer close(s.doneChan)
		ticker := time.NewTicker(s.resolution)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				s.Tick(now)
			case <-s.stopChan:
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

// Tick runs one scheduling pass against a fresh snapshot of enabled
// scheduled rules. Each rule is its own fault boundary.
func (s *Scheduler) Tick(now time.Time) {
	rules, err := s.rules.Snapshot(models.TriggerScheduled)
	if err != nil {
		log.Printf("scheduler: failed to snapshot rules: %v", err)
		return
	}

	var due []models.Rule
	for _, r := range rules {
		boundary, ok := s.dueBoundary(r, now)
		if !ok {
			continue
		}
		if !s.acquireRule(r.ID) {
			// Previous evaluation still running, not eligible again.
			continue
		}
		// Persist the crossed boundary before evaluating, so a restart
		// cannot replay it.
		if err := s.rules.MarkFired(r.ID, boundary); err != nil {
			log.Printf("scheduler: failed to mark rule %d fired: %v", r.ID, err)
			s.releaseRule(r.ID)
			continue
		}
		due = append(due, r)
	}
	if len(due) == 0 {
		return
	}

	ctx := context.Background()
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		batch []delivery.Candidate
	)
	for _, r := range due {
		if err := s.workers.Acquire(ctx, 1); err != nil {
			s.releaseRule(r.ID)
			continue
		}
		wg.Add(1)
		go func(r models.Rule) {
			defer wg.Done()
			defer s.workers.Release(1)
			cand, fire := s.evaluateScheduled(r)
			if !fire {
				s.releaseRule(r.ID)
				return
			}
			mu.Lock()
			batch = append(batch, cand)
			mu.Unlock()
		}(r)
	}
	wg.Wait()

	if len(batch) > 0 {
		s.coord.Dispatch(ctx, batch)
		for _, cand := range batch {
			s.releaseRule(cand.Rule.ID)
		}
	}
}

// dueBoundary reports whether the rule's next cron boundary after its
// last fire has been crossed. Rules that never fired are anchored at
// their creation time.
func (s *Scheduler) dueBoundary(r models.Rule, now time.Time) (time.Time, bool) {
	// Defensive re-check; stale cached rules may carry a bad schedule.
	sched, err := rule.CronParser.Parse(r.Schedule)
	if err != nil {
		log.Printf("scheduler: rule %d has invalid schedule %q: %v", r.ID, r.Schedule, err)
		return time.Time{}, false
	}

	base := r.CreatedAt
	if r.LastFiredAt != nil {
		base = *r.LastFiredAt
	}
	next := sched.Next(base)
	if next.IsZero() || next.After(now) {
		return time.Time{}, false
	}
	// Downtime can leave several crossed boundaries behind. Only the
	// most recent one counts; the rest would be stale fires.
	for {
		n := sched.Next(next)
		if n.IsZero() || n.After(now) {
			return next, true
		}
		next = n
	}
}

func (s *Scheduler) evaluateScheduled(r models.Rule) (delivery.Candidate, bool) {
	if r.FormID == "" {
		log.Printf("scheduler: rule %d (%s) has no form to evaluate against", r.ID, r.Name)
		return delivery.Candidate{}, false
	}
	sub, err := s.subs.Latest(r.FormID)
	if errors.Is(err, submission.ErrNotFound) {
		return delivery.Candidate{}, false
	}
	if err != nil {
		log.Printf("scheduler: rule %d: failed to load submission: %v", r.ID, err)
		return delivery.Candidate{}, false
	}
	return evaluate(r, sub)
}

func (s *Scheduler) acquireRule(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Scheduler) releaseRule(id uint) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}
