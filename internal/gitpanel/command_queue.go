package gitpanel

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

const laneBufferSize = 64

// writeJob is one write command waiting on a repository lane.
type writeJob struct {
	ctx     context.Context
	trace   *commandTrace
	timeout time.Duration
	run     func(context.Context) error
	done    chan error
}

// writeLane runs the write jobs of one repository one at a time.
type writeLane struct {
	root string
	jobs chan writeJob
}

// executeWrite runs fn on the lane of the trace's repository once every
// earlier write there has finished, and blocks until it returns. The trace
// is reported as queued, started and finally succeeded or failed.
func (s *Service) executeWrite(ctx context.Context, trace *commandTrace, timeout time.Duration, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	err := s.submit(writeJob{
		ctx:     ctx,
		trace:   trace,
		timeout: timeout,
		run:     fn,
		done:    make(chan error, 1),
	})
	if err != nil {
		s.report(trace, commandStatusFailed, err)
		return err
	}
	s.report(trace, commandStatusSucceeded, nil)
	return nil
}

func (s *Service) submit(job writeJob) error {
	lane, err := s.lane(job.trace.repoPath)
	if err != nil {
		return err
	}

	s.report(job.trace, commandStatusQueued, nil)
	select {
	case lane.jobs <- job:
	case <-job.ctx.Done():
		return contextError(job.ctx.Err(), "Command canceled before it was queued.")
	case <-s.shutdownCtx.Done():
		return serviceClosedError()
	}

	select {
	case err := <-job.done:
		return err
	case <-job.ctx.Done():
		return contextError(job.ctx.Err(), "Command canceled while waiting in the queue.")
	case <-s.shutdownCtx.Done():
		return serviceClosedError()
	}
}

// lane returns the lane for root, starting its worker on first use.
func (s *Service) lane(root string) (*writeLane, error) {
	key := filepath.Clean(strings.TrimSpace(root))
	if key == "" || key == "." {
		return nil, NewBindingError(CodeOpenFailed, "Repository not resolved for write command.", "Provide a valid repository path.")
	}

	s.laneMu.Lock()
	defer s.laneMu.Unlock()

	if s.closed.Load() {
		return nil, serviceClosedError()
	}
	if lane, ok := s.lanes[key]; ok {
		return lane, nil
	}

	lane := &writeLane{root: key, jobs: make(chan writeJob, laneBufferSize)}
	s.lanes[key] = lane
	s.lanesWG.Add(1)
	go s.drainLane(lane)
	return lane, nil
}

func (s *Service) drainLane(lane *writeLane) {
	defer s.lanesWG.Done()

	for {
		select {
		case <-s.shutdownCtx.Done():
			return
		case job := <-lane.jobs:
			job.done <- s.runJob(job)
		}
	}
}

func (s *Service) runJob(job writeJob) error {
	if job.run == nil {
		return NewBindingError(CodeUnknown, "Invalid write command.", "No command body was provided.")
	}
	if err := job.ctx.Err(); err != nil {
		return contextError(err, "Command canceled while waiting in the queue.")
	}

	s.report(job.trace, commandStatusStarted, nil)
	ctx, cancel := jobContext(s.shutdownCtx, job.ctx, job.timeout)
	defer cancel()

	err := job.run(ctx)
	if err == nil {
		// A body that ignores its context must not report success after
		// its deadline.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contextError(ctxErr, "Command interrupted by cancellation.")
		}
	}
	return err
}

// jobContext is canceled by shutdown, by the caller's context or by the
// timeout, whichever comes first.
func jobContext(shutdown context.Context, request context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(shutdown, timeout)
	stop := context.AfterFunc(request, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// contextError maps a context error to CodeTimeout or CodeCanceled. Binding
// errors that already carry one of those codes pass through.
func contextError(err error, details string) error {
	if bindingErr := AsBindingError(err); bindingErr != nil {
		return bindingErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewBindingError(CodeTimeout, "Git command timed out.", details)
	case errors.Is(err, context.Canceled):
		return NewBindingError(CodeCanceled, "Git command canceled.", details)
	default:
		return err
	}
}

func serviceClosedError() error {
	return NewBindingError(
		CodeServiceUnavailable,
		"Git service is shutting down.",
		"The write queue was canceled during shutdown.",
	)
}

// Close stops the lanes. Commands already running see their context canceled;
// queued commands fail with CodeServiceUnavailable. Close waits for the lane
// workers until ctx is done.
func (s *Service) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.laneMu.Lock()
	alreadyClosed := !s.closed.CompareAndSwap(false, true)
	s.laneMu.Unlock()
	if alreadyClosed {
		return nil
	}
	s.shutdownCancel()

	drained := make(chan struct{})
	go func() {
		s.lanesWG.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return contextError(ctx.Err(), "Timed out waiting for the write queue to drain.")
	}
}
