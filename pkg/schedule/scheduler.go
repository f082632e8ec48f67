// Package schedule provides the timer abstraction used by the breaker monitor,
// the heartbeat monitor and reconnect backoff.
// Periodic jobs run on a robfig/cron runner; tests swap in Fake to drive time manually.
package schedule

import (
	"sync"
	"time"

	mlog "Momentum/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// Timer is a handle to a scheduled job.
type Timer interface {
	// Stop cancels the job. It reports whether the job was still pending.
	Stop() bool
}

// Scheduler schedules one-shot and periodic callbacks and reports the current time.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
}

// interval is a cron.Schedule firing at a fixed period.
// cron.Every truncates to whole seconds, heartbeat and monitor periods may be shorter.
type interval time.Duration

func (i interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// CronScheduler runs periodic jobs on a shared cron runner.
type CronScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	started bool
	logger  *mlog.LogHelper
}

// NewCronScheduler creates a scheduler. The cron runner starts with the first periodic job.
func NewCronScheduler(logger log.Logger) *CronScheduler {
	cl := &cronLogger{helper: log.NewHelper(logger)}
	return &CronScheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: mlog.NewLogHelper(logger),
	}
}

// Now returns the wall clock time.
func (s *CronScheduler) Now() time.Time {
	return time.Now()
}

// AfterFunc runs fn once after d.
func (s *CronScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Every runs fn every d until the returned timer is stopped.
func (s *CronScheduler) Every(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.cron.Schedule(interval(d), cron.FuncJob(fn))
	if !s.started {
		s.cron.Start()
		s.started = true
		s.logger.Scheduler("cron scheduler started")
	}
	return &cronTimer{s: s, id: id}
}

// Shutdown stops the cron runner and waits for running jobs.
func (s *CronScheduler) Shutdown() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	if started {
		<-s.cron.Stop().Done()
		s.logger.Scheduler("cron scheduler stopped")
	}
}

type cronTimer struct {
	s    *CronScheduler
	id   cron.EntryID
	once sync.Once
}

func (t *cronTimer) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.s.cron.Remove(t.id)
		stopped = true
	})
	return stopped
}

// cronLogger adapts a kratos log.Helper to cron.Logger.
type cronLogger struct {
	helper *log.Helper
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.helper.Debugw(append([]interface{}{"msg", msg}, keysAndValues...)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	kvs := append([]interface{}{"msg", msg, "error", err}, keysAndValues...)
	l.helper.Errorw(kvs...)
}

var defaultScheduler = sync.OnceValue(func() *CronScheduler {
	return NewCronScheduler(log.DefaultLogger)
})

// Default returns the process-wide cron scheduler.
func Default() Scheduler {
	return defaultScheduler()
}
