package runner

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"routined/internal/eventbus"
	"routined/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedJob) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qj := <-queue:
			s.execOne(ctx, stopCh, qj)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, qj queuedJob) {
	start := time.Now()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicJobStarted, Time: start, Data: JobEvent{Key: qj.job.Key, Name: qj.job.Name, Started: start}})
	}
	defer qj.state.release()

	retries := s.cfg.RetryMax
	if retries < 0 {
		retries = 0
	}

	var err error
	attempts := 0
	maxAttempts := 1 + retries
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		runCtx := ctx
		var cancel func()
		if qj.job.Timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, qj.job.Timeout)
		}
		err = qj.job.Run(runCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil || attempt >= maxAttempts {
			break
		}

		delay := s.backoffDelay(attempt)
		s.log.Debug("job retry scheduled",
			logx.String("job", qj.job.Name), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			err = ctx.Err()
			break attemptLoop
		case <-stopCh:
			if !tmr.Stop() {
				<-tmr.C
			}
			err = errors.New("runner stopped")
			break attemptLoop
		case <-tmr.C:
		}
	}

	dur := time.Since(start)
	if err != nil {
		s.log.Warn("job failed", logx.String("job", qj.job.Name), logx.Err(err), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TopicJobFailed, Data: JobEvent{Key: qj.job.Key, Name: qj.job.Name, Started: start, Duration: dur, Attempts: attempts, Error: err.Error()}})
		}
		return
	}
	s.log.Debug("job completed", logx.String("job", qj.job.Name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicJobFinished, Data: JobEvent{Key: qj.job.Key, Name: qj.job.Name, Started: start, Duration: dur, Attempts: attempts}})
	}
}

func (s *Service) backoffDelay(retry int) time.Duration {
	d := s.cfg.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > s.cfg.RetryMaxDelay {
			break
		}
	}
	if d > s.cfg.RetryMaxDelay {
		d = s.cfg.RetryMaxDelay
	}
	// 20% jitter keeps retries from aligning across users.
	j := (rand.Float64()*2 - 1) * 0.2
	d = time.Duration(float64(d) * (1 + j))
	if d < 0 {
		d = 0
	}
	return d
}
