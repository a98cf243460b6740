// Package supervisor runs the bot's long-lived goroutines under one
// cancellable context and reports the first failure among them.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "labbot/pkg/logx"
)

// healthyRun is how long a restarted function must stay up before its
// backoff drops back to the minimum.
const healthyRun = 30 * time.Second

type Supervisor struct {
	ctx         context.Context
	cancel      context.CancelFunc
	log         logx.Logger
	cancelOnErr bool

	wg      sync.WaitGroup
	running atomic.Int64

	errMu sync.Mutex
	err   error

	idleOnce sync.Once
	idle     chan struct{}
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the shared context when any Go function fails.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, idle: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the shared context and returns immediately.
func (s *Supervisor) Cancel() { s.cancel() }

// Err is the first recorded failure, or nil.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Active is the number of goroutines that have not returned yet.
func (s *Supervisor) Active() int64 {
	if s == nil {
		return 0
	}
	return s.running.Load()
}

// Go runs fn on its own goroutine. Errors other than context.Canceled and
// recovered panics are recorded, prefixed with name.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	s.running.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Add(-1)

		s.log.Debug("goroutine started", logx.String("name", name))
		if err := s.call(s.ctx, name, fn); err != nil && !errors.Is(err, context.Canceled) {
			s.record(fmt.Errorf("%s: %w", name, err))
			if s.cancelOnErr {
				s.cancel()
			}
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

type RestartOption func(*restartPolicy)

type restartPolicy struct {
	minDelay    time.Duration
	maxDelay    time.Duration
	stopOnClean bool
	publishErr  bool
}

// WithRestartBackoff bounds the doubling delay between restarts.
func WithRestartBackoff(minDelay, maxDelay time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if minDelay > 0 {
			p.minDelay = minDelay
		}
		if maxDelay > 0 {
			p.maxDelay = maxDelay
		}
	}
}

// WithPublishFirstError records restart failures as the supervisor error.
func WithPublishFirstError(enabled bool) RestartOption {
	return func(p *restartPolicy) { p.publishErr = enabled }
}

// WithStopOnCleanExit controls whether a nil return ends the loop (default)
// or counts as a failure and restarts.
func WithStopOnCleanExit(enabled bool) RestartOption {
	return func(p *restartPolicy) { p.stopOnClean = enabled }
}

// GoRestart keeps fn running: failures and panics are retried with jittered
// exponential backoff until the context is canceled.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{minDelay: 250 * time.Millisecond, maxDelay: 30 * time.Second, stopOnClean: true}
	for _, o := range opts {
		o(&p)
	}
	p.maxDelay = max(p.maxDelay, p.minDelay)
	s.Go0(name+".restart", func(ctx context.Context) { s.restartLoop(ctx, name, fn, p) })
}

func (s *Supervisor) restartLoop(ctx context.Context, name string, fn func(ctx context.Context) error, p restartPolicy) {
	delay := p.minDelay
	for {
		began := time.Now()
		err := s.call(ctx, name, fn)
		switch {
		case ctx.Err() != nil || errors.Is(err, context.Canceled):
			return
		case err == nil && p.stopOnClean:
			return
		case err == nil:
			err = errors.New("exited")
		}
		if p.publishErr {
			s.record(fmt.Errorf("%s: %w", name, err))
		}
		if time.Since(began) >= healthyRun {
			delay = p.minDelay
		}
		wait := jitter(delay)
		s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay = min(delay*2, p.maxDelay)
	}
}

// Stop cancels the context and waits like Wait.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait returns Err once every goroutine has returned, or ctx.Err() first.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.idleOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.idle)
		}()
	})
	select {
	case <-s.idle:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn and converts a panic into an error.
func (s *Supervisor) call(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (s *Supervisor) record(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

// jitter adds up to 20% to d.
func jitter(d time.Duration) time.Duration {
	if spread := int64(d) / 5; spread > 0 {
		return d + time.Duration(rand.Int64N(spread+1))
	}
	return d
}
