// Package scheduler runs the cron-driven output retention sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// OutputSweeper removes published artifacts older than a cutoff.
type OutputSweeper interface {
	SweepOutputs(cutoff time.Time) ([]string, error)
}

// HistoryPruner removes conversion history older than a cutoff.
type HistoryPruner interface {
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}

// SweepResult summarises one retention pass.
type SweepResult struct {
	Cutoff         time.Time
	RemovedOutputs []string
	PrunedRecords  int64
}

// Scheduler deletes outputs and history older than the retention period
// on a cron schedule.
type Scheduler struct {
	mu sync.Mutex

	outputs   OutputSweeper
	history   HistoryPruner
	retention time.Duration
	schedule  string

	logger *slog.Logger
	parser cron.Parser
	cron   *cron.Cron
	now    func() time.Time
}

// NewScheduler creates a retention scheduler. schedule accepts standard
// five-field cron expressions and descriptors such as "@hourly".
func NewScheduler(outputs OutputSweeper, retention time.Duration, schedule string) *Scheduler {
	return &Scheduler{
		outputs:   outputs,
		retention: retention,
		schedule:  schedule,
		logger:    slog.Default(),
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:       time.Now,
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// WithHistory also prunes conversion history on each pass.
func (s *Scheduler) WithHistory(history HistoryPruner) *Scheduler {
	s.history = history
	return s
}

// WithClock overrides the time source (for testing).
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Enabled reports whether a positive retention is configured.
func (s *Scheduler) Enabled() bool {
	return s.retention > 0
}

// Start registers the sweep on the cron schedule. It is a no-op when
// retention is disabled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.Enabled() {
		s.logger.Info("output retention disabled, artifacts are kept indefinitely")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	c := cron.New(cron.WithParser(s.parser))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("scheduling retention sweep %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("scheduler started",
		slog.String("schedule", s.schedule),
		slog.Duration("retention", s.retention),
	)
	return nil
}

// Stop stops the cron and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunOnce performs one retention pass immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{Cutoff: s.now().Add(-s.retention)}
	if !s.Enabled() {
		return result, nil
	}

	removed, err := s.outputs.SweepOutputs(result.Cutoff)
	result.RemovedOutputs = removed
	if err != nil {
		return result, fmt.Errorf("sweeping outputs: %w", err)
	}

	if s.history != nil {
		pruned, err := s.history.DeleteCompletedBefore(ctx, result.Cutoff)
		result.PrunedRecords = pruned
		if err != nil {
			return result, fmt.Errorf("pruning history: %w", err)
		}
	}

	if len(result.RemovedOutputs) > 0 || result.PrunedRecords > 0 {
		s.logger.Info("retention sweep completed",
			slog.Int("removed_outputs", len(result.RemovedOutputs)),
			slog.Int64("pruned_records", result.PrunedRecords),
			slog.Time("cutoff", result.Cutoff),
		)
	}
	return result, nil
}

// ValidateCron validates a cron expression.
func (s *Scheduler) ValidateCron(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}

// NextRun returns the next time the sweep will fire after from.
func (s *Scheduler) NextRun(from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(s.schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule.Next(from), nil
}
