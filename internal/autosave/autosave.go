// Package autosave checkpoints running tasks on a cron schedule.
package autosave

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	cron "github.com/netresearch/go-cron"
)

// Checkpointer is the slice of the orchestrator the saver drives.
type Checkpointer interface {
	RunningTasks() []string
	CreateCheckpoint(taskID string) (string, error)
}

// Schedule wraps a parsed 5-field cron expression.
type Schedule struct {
	raw      string
	schedule cron.Schedule
}

// ParseSchedule parses a standard minute-based cron expression.
func ParseSchedule(expr string) (*Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint schedule %q: %w", expr, err)
	}
	return &Schedule{raw: expr, schedule: schedule}, nil
}

// Next returns the next activation after t.
func (s *Schedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Matches reports whether t falls in a scheduled minute.
func (s *Schedule) Matches(t time.Time) bool {
	minute := t.Truncate(time.Minute)
	return s.schedule.Next(minute.Add(-time.Minute)).Equal(minute)
}

func (s *Schedule) String() string { return s.raw }

// Saver checkpoints every running task once per scheduled minute.
type Saver struct {
	schedule *Schedule
	target   Checkpointer

	mu      sync.Mutex
	lastRun time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// New parses expr and binds it to target.
func New(expr string, target Checkpointer) (*Saver, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	return &Saver{schedule: schedule, target: target, done: make(chan struct{})}, nil
}

// Start checks the schedule every minute until Stop.
func (s *Saver) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case now := <-ticker.C:
				s.Check(now)
			}
		}
	}()
	slog.Info("checkpoint schedule started", "schedule", s.schedule.String(), "next", s.schedule.Next(time.Now()))
}

// Stop ends the loop and waits for it.
func (s *Saver) Stop() {
	close(s.done)
	s.wg.Wait()
}

// Check checkpoints the running tasks when now is a scheduled minute that has
// not been handled yet, and returns the new checkpoint ids. A failing task
// is logged and skipped.
func (s *Saver) Check(now time.Time) []string {
	if !s.schedule.Matches(now) {
		return nil
	}
	minute := now.Truncate(time.Minute)

	s.mu.Lock()
	if !minute.After(s.lastRun) {
		s.mu.Unlock()
		return nil
	}
	s.lastRun = minute
	s.mu.Unlock()

	var ids []string
	for _, taskID := range s.target.RunningTasks() {
		id, err := s.target.CreateCheckpoint(taskID)
		if err != nil {
			slog.Warn("scheduled checkpoint failed", "task_id", taskID, "error", err)
			continue
		}
		slog.Debug("scheduled checkpoint", "task_id", taskID, "checkpoint_id", id)
		ids = append(ids, id)
	}
	return ids
}
