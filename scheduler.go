package modforge

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// CompileScheduler periodically checks whether the compiled artifact has
// gone stale and recompiles when it has. This keeps long-running processes
// current without putting a staleness check on any hot path.
type CompileScheduler struct {
	compiler *Compiler
	schedule string
	logger   Logger

	cron    *cron.Cron
	entryID cron.EntryID
}

// DefaultCompileSchedule checks staleness every five minutes.
const DefaultCompileSchedule = "*/5 * * * *"

// NewCompileScheduler creates a scheduler driving compiler on the given
// cron schedule. An empty schedule uses DefaultCompileSchedule.
func NewCompileScheduler(compiler *Compiler, schedule string, logger Logger) *CompileScheduler {
	if schedule == "" {
		schedule = DefaultCompileSchedule
	}
	return &CompileScheduler{
		compiler: compiler,
		schedule: schedule,
		logger:   logger,
	}
}

// Start begins scheduled staleness checks.
func (s *CompileScheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	entryID, err := s.cron.AddFunc(s.schedule, func() { s.check(ctx) })
	if err != nil {
		return fmt.Errorf("invalid compile schedule '%s': %w", s.schedule, err)
	}
	s.entryID = entryID
	s.cron.Start()

	s.logger.Info("Scheduled compilation checks", "schedule", s.schedule)
	return nil
}

// Stop halts scheduled checks, waiting for an in-flight check to finish.
func (s *CompileScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunNow performs one staleness check immediately.
func (s *CompileScheduler) RunNow(ctx context.Context) {
	s.check(ctx)
}

func (s *CompileScheduler) check(ctx context.Context) {
	needed, err := s.compiler.IsCompilationNeeded(ctx)
	if err != nil {
		s.logger.Error("Compilation staleness check failed", "error", err)
		return
	}
	if !needed {
		s.logger.Debug("Compiled artifact still current")
		return
	}

	s.logger.Info("Compiled artifact stale, recompiling")
	result := s.compiler.Compile(ctx, CompileOptions{})
	if !result.Success {
		s.logger.Error("Scheduled compilation failed", "error", result.Error)
	}
}
