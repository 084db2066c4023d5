package server

import (
	"context"
	"fmt"
)

// StartSchedule registers a cron entry for every stage with a non-empty spec
// and starts the scheduler. Scheduled runs share the trigger lock, so a tick
// that arrives while another run is in progress is skipped.
func (s *Server) StartSchedule() error {
	jobs := []struct {
		stage string
		spec  string
		run   func(ctx context.Context) error
	}{
		{"gather", s.config.Cron.Gather, func(ctx context.Context) error { _, err := s.stages.Gather(ctx); return err }},
		{"process", s.config.Cron.Process, func(ctx context.Context) error { _, err := s.stages.Process(ctx); return err }},
		{"send", s.config.Cron.Send, func(ctx context.Context) error { _, err := s.stages.Send(ctx); return err }},
	}

	scheduled := 0
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.runScheduled(job.stage, job.run) }); err != nil {
			return fmt.Errorf("failed to schedule %s stage %q: %w", job.stage, job.spec, err)
		}
		s.log.Info("Stage scheduled", "stage", job.stage, "schedule", job.spec)
		scheduled++
	}

	if scheduled > 0 {
		s.cron.Start()
	}
	return nil
}

func (s *Server) runScheduled(stage string, run func(ctx context.Context) error) {
	if !s.runMu.TryLock() {
		s.log.Warn("Scheduled run skipped: another run is in progress", "stage", stage)
		return
	}
	defer s.runMu.Unlock()

	s.log.Info("Scheduled run started", "stage", stage)
	if err := run(s.jobCtx); err != nil {
		s.log.Error("Scheduled run failed", "stage", stage, "error", err)
		return
	}
	s.log.Info("Scheduled run finished", "stage", stage)
}

// stopSchedule stops new ticks, cancels a running job, and waits for it until ctx expires
func (s *Server) stopSchedule(ctx context.Context) {
	done := s.cron.Stop()
	s.jobCancel()

	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Scheduled run still in progress at shutdown")
	}
}
