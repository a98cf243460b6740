package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"labbot/internal/config"
	logx "labbot/pkg/logx"
)

var ErrDuplicate = errors.New("schedule already exists")

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, parser: config.CronParser}
}

// AddCron registers job under name. Registration works before and after Start.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	spec = strings.TrimSpace(spec)
	if name == "" || job == nil {
		return errors.New("schedule needs a name and a job")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: invalid spec %q: %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicate, name)
		}
	}
	d := scheduleDef{name: name, spec: spec, timeout: timeout, job: job, running: &atomic.Bool{}}
	if s.c != nil {
		if err := s.addCronLocked(&d); err != nil {
			return err
		}
	}
	s.defs = append(s.defs, d)
	s.log.Info("schedule added", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// Remove unregisters name and reports whether it existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.defs {
		if d.name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		s.log.Info("schedule removed", logx.String("name", name))
		return true
	}
	return false
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.loc = s.loadLocationLocked()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Warn("schedule skipped", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops triggering, cancels running jobs and waits for them (bounded by ctx).
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("jobs still running at stop", logx.Err(ctx.Err()))
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	def := *d
	parent, owner := s.ctx, s.c
	id, err := s.c.AddFunc(d.spec, func() { s.run(parent, owner, def) })
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

// admit counts a firing into wg unless owner has been stopped. Stop clears
// s.c under the same lock before it waits on wg.
func (s *Service) admit(owner *cron.Cron) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner == nil || s.c != owner {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Service) run(parent context.Context, owner *cron.Cron, d scheduleDef) {
	if !s.admit(owner) {
		s.log.Debug("schedule skipped (service stopped)", logx.String("name", d.name))
		return
	}
	defer s.wg.Done()
	if !d.running.CompareAndSwap(false, true) {
		s.log.Warn("schedule skipped (still running)", logx.String("name", d.name))
		return
	}
	defer d.running.Store(false)

	ctx := parent
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("schedule panicked", logx.String("name", d.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	if err := d.job(ctx); err != nil {
		s.log.Warn("schedule failed", logx.String("name", d.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("schedule ok", logx.String("name", d.name), logx.Duration("took", time.Since(start)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
