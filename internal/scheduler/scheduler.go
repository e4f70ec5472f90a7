package scheduler

import (
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// OnRefreshDue is invoked when the configured schedule fires.
type OnRefreshDue func()

// Scheduler runs the periodic library refresh on a cron expression.
// The active schedule can be swapped at runtime when the setting
// changes, without restarting the process.
type Scheduler struct {
	cron     *cron.Cron
	callback OnRefreshDue

	mu      sync.Mutex
	entryID cron.EntryID
	spec    string
}

func New(callback OnRefreshDue) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		callback: callback,
	}
}

// Start applies the initial schedule and begins the cron loop. The loop
// starts even when the initial spec is invalid, so a later reschedule
// can still take effect; the error is returned for the caller to log.
func (s *Scheduler) Start(spec string) error {
	err := s.Reschedule(spec)
	s.cron.Start()
	log.Println("[scheduler] started")
	return err
}

// Stop halts the cron loop and waits for any running job to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[scheduler] stopped")
}

// Reschedule replaces the active schedule. An empty spec disables
// scheduled refreshes entirely.
func (s *Scheduler) Reschedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}
	s.spec = ""

	if spec == "" {
		log.Println("[scheduler] scheduled refresh disabled")
		return nil
	}

	id, err := s.cron.AddFunc(spec, s.fire)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entryID = id
	s.spec = spec
	log.Printf("[scheduler] refresh scheduled: %q", spec)
	return nil
}

// Schedule returns the currently active cron spec, or "" when disabled.
func (s *Scheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

func (s *Scheduler) fire() {
	log.Println("[scheduler] scheduled refresh due")
	s.callback()
}
