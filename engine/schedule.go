package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// Schedule submits a copy of Intent every time Cron is due.
type Schedule struct {
	Name   string
	Cron   string
	Intent core.Intent
}

// Validate checks the cron expression and the intent template.
func (s Schedule) Validate() error {
	gron := gronx.New()
	if !gron.IsValid(s.Cron) {
		return fmt.Errorf("schedule %q: invalid cron expression %q", s.Name, s.Cron)
	}
	if s.Intent.Type() == "" {
		return fmt.Errorf("schedule %q: %w", s.Name, &core.ValidationError{Field: core.KeyIntent, Reason: "is required"})
	}
	return nil
}

// Next returns the first time after ref at which s is due.
func (s Schedule) Next(ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.Cron, ref, false)
}

// scheduler tracks the last minute each schedule fired in.
type scheduler struct {
	fired map[int]time.Time
}

func newScheduler() *scheduler {
	return &scheduler{fired: make(map[int]time.Time)}
}

// due returns the indexes of schedules due at now that have not fired in
// the current minute.
func (s *scheduler) due(schedules []Schedule, now time.Time) []int {
	minute := now.Truncate(time.Minute)
	gron := gronx.New()
	var out []int
	for i, sc := range schedules {
		if last, ok := s.fired[i]; ok && !last.Before(minute) {
			continue
		}
		ok, err := gron.IsDue(sc.Cron, minute)
		if err != nil || !ok {
			continue
		}
		s.fired[i] = minute
		out = append(out, i)
	}
	return out
}

func (e *Engine) runSchedules(ctx context.Context) error {
	for _, s := range e.opts.Schedules {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	sched := newScheduler()
	ticker := time.NewTicker(e.opts.Config.ScheduleTick)
	defer ticker.Stop()
	for {
		e.fireDue(ctx, sched)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) fireDue(ctx context.Context, sched *scheduler) {
	for _, i := range sched.due(e.opts.Schedules, e.opts.Now()) {
		s := e.opts.Schedules[i]
		intent := s.Intent.Clone()
		delete(intent, core.KeyIntentID)
		id, err := e.Submit(ctx, intent)
		if err != nil {
			e.logger.Warn("scheduled intent failed", "schedule", s.Name, "error", err)
			continue
		}
		e.logger.Info("scheduled intent submitted", "schedule", s.Name, "intent", intent.Type(), "intent_id", id)
	}
}
