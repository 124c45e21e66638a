package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linkedin-pipeline/pkg/logger"
)

type blockingRunner struct {
	calls   int32
	started chan struct{}
	release chan struct{}
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 10), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, params Params) (*RunResult, error) {
	atomic.AddInt32(&r.calls, 1)
	r.started <- struct{}{}
	<-r.release
	if r.err != nil {
		return &RunResult{Status: StatusError, Error: r.err.Error()}, r.err
	}
	return &RunResult{Status: StatusSuccess}, nil
}

func TestExecuteRejectsConcurrentTrigger(t *testing.T) {
	runner := newBlockingRunner()
	s := NewScheduler(runner, 0, logger.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := s.Execute(context.Background(), TriggerAPI, Params{}); err != nil {
			t.Errorf("first execute: %v", err)
		}
	}()
	<-runner.started

	if !s.IsRunning() {
		t.Fatal("expected running state")
	}
	if _, err := s.Execute(context.Background(), TriggerCron, Params{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(runner.release)
	wg.Wait()

	if calls := atomic.LoadInt32(&runner.calls); calls != 1 {
		t.Fatalf("expected pipeline to run once, got %d", calls)
	}
	if s.IsRunning() {
		t.Fatal("expected lock to be released")
	}
}

func TestExecuteCooldown(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)

	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	s := NewScheduler(runner, time.Minute, logger.Nop())
	s.now = func() time.Time { return now }

	if _, err := s.Execute(context.Background(), TriggerAPI, Params{}); err != nil {
		t.Fatalf("first execute: %v", err)
	}

	now = now.Add(30 * time.Second)
	if _, err := s.Execute(context.Background(), TriggerAPI, Params{}); !errors.Is(err, ErrCooldown) {
		t.Fatalf("expected ErrCooldown, got %v", err)
	}

	now = now.Add(31 * time.Second)
	if _, err := s.Execute(context.Background(), TriggerAPI, Params{}); err != nil {
		t.Fatalf("expected execute after cooldown, got %v", err)
	}
	if calls := atomic.LoadInt32(&runner.calls); calls != 2 {
		t.Fatalf("expected 2 runs, got %d", calls)
	}
}

func TestExecuteReleasesLockOnError(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = errors.New("browser crashed")
	close(runner.release)

	s := NewScheduler(runner, 0, logger.Nop())
	exec, err := s.Execute(context.Background(), TriggerCLI, Params{})
	if err == nil || !errors.Is(err, runner.err) {
		t.Fatalf("expected pipeline error, got %v", err)
	}
	if exec == nil || exec.Error == "" || exec.FinishedAt == nil {
		t.Fatalf("expected finished execution with error, got %+v", exec)
	}
	if s.IsRunning() {
		t.Fatal("expected lock released after error")
	}

	status := s.Status()
	if status.LastExecution == nil || status.LastExecution.ID != exec.ID {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestExecuteAsyncHoldsLockUntilDone(t *testing.T) {
	runner := newBlockingRunner()
	s := NewScheduler(runner, 0, logger.Nop())

	exec, err := s.ExecuteAsync(context.Background(), TriggerSlack, Params{})
	if err != nil || exec.ID == "" {
		t.Fatalf("ExecuteAsync: %+v %v", exec, err)
	}
	<-runner.started
	if _, err := s.ExecuteAsync(context.Background(), TriggerSlack, Params{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	close(runner.release)

	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("run did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartReportsNextRun(t *testing.T) {
	s := NewScheduler(newBlockingRunner(), 0, logger.Nop())
	loc, _ := time.LoadLocation("Europe/Paris")
	if loc == nil {
		loc = time.UTC
	}
	if err := s.Start(context.Background(), "0 8 * * *", loc, Params{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if status := s.Status(); status.NextRun == nil {
		t.Fatal("expected next run to be scheduled")
	}

	bad := NewScheduler(newBlockingRunner(), 0, logger.Nop())
	if err := bad.Start(context.Background(), "not a cron", time.UTC, Params{}); err == nil {
		t.Fatal("expected invalid cron error")
	}
}
