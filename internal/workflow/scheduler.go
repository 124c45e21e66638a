package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/linkedin-pipeline/pkg/logger"
)

var (
	// ErrAlreadyRunning is returned when a run is requested while another is in progress
	ErrAlreadyRunning = errors.New("workflow already running")
	// ErrCooldown is returned when a run is requested too soon after the previous one
	ErrCooldown = errors.New("workflow in cooldown")
)

// Trigger identifies what started an execution
type Trigger string

const (
	TriggerCron  Trigger = "cron"
	TriggerAPI   Trigger = "api"
	TriggerSlack Trigger = "slack"
	TriggerCLI   Trigger = "cli"
)

// Runner performs one pipeline run
type Runner interface {
	Run(ctx context.Context, params Params) (*RunResult, error)
}

// Execution records one accepted trigger
type Execution struct {
	ID         string     `json:"execution_id"`
	Trigger    Trigger    `json:"trigger"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *RunResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Status is a snapshot of the scheduler state
type Status struct {
	IsRunning     bool       `json:"is_running"`
	LastExecution *Execution `json:"last_execution,omitempty"`
	NextRun       *time.Time `json:"next_scheduled_run,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Scheduler allows one pipeline run at a time, optionally spaced by a
// cooldown, and fires runs from a cron schedule
type Scheduler struct {
	runner   Runner
	cooldown time.Duration
	log      *logger.Logger
	now      func() time.Time

	mu            sync.Mutex
	running       bool
	lastCompleted time.Time
	last          *Execution

	cron    *cron.Cron
	entryID cron.EntryID
}

// NewScheduler creates a scheduler around runner
func NewScheduler(runner Runner, cooldown time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		cooldown: cooldown,
		log:      log.WithComponent("scheduler"),
		now:      time.Now,
	}
}

// acquire marks the scheduler running, or reports why it cannot
func (s *Scheduler) acquire(trigger Trigger) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, ErrAlreadyRunning
	}
	now := s.now()
	if s.cooldown > 0 && !s.lastCompleted.IsZero() && now.Sub(s.lastCompleted) < s.cooldown {
		return nil, fmt.Errorf("%w: %s remaining", ErrCooldown, (s.cooldown - now.Sub(s.lastCompleted)).Round(time.Second))
	}

	s.running = true
	exec := &Execution{
		ID:        now.UTC().Format("20060102_150405"),
		Trigger:   trigger,
		StartedAt: now,
	}
	s.last = exec
	return exec, nil
}

func (s *Scheduler) release(exec *Execution, result *RunResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := s.now()
	exec.FinishedAt = &finished
	exec.Result = result
	if err != nil {
		exec.Error = err.Error()
	}
	s.running = false
	s.lastCompleted = finished
}

func (s *Scheduler) run(ctx context.Context, exec *Execution, params Params) (err error) {
	var result *RunResult
	defer func() { s.release(exec, result, err) }()

	log := s.log.With().Str("execution_id", exec.ID).Str("trigger", string(exec.Trigger)).Logger()
	log.Info().Msg("Starting workflow execution")

	result, err = s.runner.Run(ctx, params)
	if err != nil {
		log.Error().Err(err).Msg("Workflow execution failed")
		return fmt.Errorf("workflow execution %s: %w", exec.ID, err)
	}

	log.Info().
		Int("posts", result.PostsCollected).
		Uint("draft_id", result.DraftID).
		Msg("Workflow execution completed")
	return nil
}

// Execute runs the pipeline and waits for it. Requests while a run is in
// progress or within the cooldown are rejected without effect.
func (s *Scheduler) Execute(ctx context.Context, trigger Trigger, params Params) (*Execution, error) {
	exec, err := s.acquire(trigger)
	if err != nil {
		s.log.Warn().Err(err).Str("trigger", string(trigger)).Msg("Execution rejected")
		return nil, err
	}
	return exec, s.run(ctx, exec, params)
}

// ExecuteAsync accepts a run like Execute but returns as soon as it has
// started. The run uses ctx, which must outlive the caller's request.
func (s *Scheduler) ExecuteAsync(ctx context.Context, trigger Trigger, params Params) (*Execution, error) {
	exec, err := s.acquire(trigger)
	if err != nil {
		s.log.Warn().Err(err).Str("trigger", string(trigger)).Msg("Execution rejected")
		return nil, err
	}
	go s.run(ctx, exec, params)
	return exec, nil
}

// IsRunning reports whether a run is in progress
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the running flag, last execution and next cron run
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	status := Status{IsRunning: s.running, Timestamp: s.now().UTC()}
	if s.last != nil {
		last := *s.last
		status.LastExecution = &last
	}
	s.mu.Unlock()

	if s.cron != nil {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// Start registers the cron trigger and starts the cron runner
func (s *Scheduler) Start(ctx context.Context, expr string, loc *time.Location, params Params) error {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{s.log}))

	id, err := c.AddFunc(expr, func() {
		_, err := s.Execute(ctx, TriggerCron, params)
		switch {
		case errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrCooldown):
			s.log.Info().Err(err).Msg("Scheduled run skipped")
		case err != nil:
			s.log.Error().Err(err).Msg("Scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule workflow: %w", err)
	}

	s.cron = c
	s.entryID = id
	c.Start()
	s.log.Info().Str("cron", expr).Str("timezone", loc.String()).Msg("Workflow scheduled")
	return nil
}

// Stop stops the cron runner and waits for a running scheduled job
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
