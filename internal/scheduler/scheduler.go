package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	billingdomain "github.com/smallbiznis/milkbill/internal/billing/domain"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/smallbiznis/milkbill/internal/lock"
	obsmetrics "github.com/smallbiznis/milkbill/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/milkbill/internal/order/domain"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig  = errors.New("scheduler_invalid_config")
	ErrAlreadyRunning = errors.New("scheduler_already_running")
	ErrNotRunning     = errors.New("scheduler_not_running")
	ErrUnknownJob     = errors.New("scheduler_unknown_job")
	ErrJobRunning     = errors.New("scheduler_job_running")
)

// lockGrace keeps a running lease alive a little past the job timeout.
const lockGrace = 30 * time.Second

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Policy  *config.BillingPolicyHolder
	Billing billingdomain.Service
	Orders  orderdomain.Service
	Owners  ownerdomain.Service
	Locker  lock.Locker
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
	Config  Config                       `optional:"true"`
}

// JobStatus describes the latest run of a job.
type JobStatus struct {
	Job        string    `json:"job"`
	Period     string    `json:"period"`
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Errors     int       `json:"errors"`
	Error      string    `json:"error,omitempty"`
	Result     any       `json:"result,omitempty"`
}

type Status struct {
	Running     bool        `json:"running"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	LockBackend string      `json:"lock_backend"`
	Jobs        []JobStatus `json:"jobs"`
}

type Scheduler struct {
	log     *zap.Logger
	clock   clock.Clock
	policy  *config.BillingPolicyHolder
	billing billingdomain.Service
	orders  orderdomain.Service
	owners  ownerdomain.Service
	locker  lock.Locker
	metrics *obsmetrics.SchedulerMetrics
	cfg     Config
	jobs    []job

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	lastRuns  map[string]JobStatus
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Billing == nil || p.Orders == nil || p.Owners == nil || p.Locker == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		clock:    p.Clock,
		policy:   p.Policy,
		billing:  p.Billing,
		orders:   p.Orders,
		owners:   p.Owners,
		locker:   p.Locker,
		metrics:  p.Metrics,
		cfg:      p.Config.withDefaults(),
		lastRuns: make(map[string]JobStatus),
	}
	s.jobs = s.buildJobs()
	return s, nil
}

// Start launches the tick loop. The loop outlives ctx until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.startedAt = s.clock.Now()

	go func() {
		defer close(done)
		s.runForever(loopCtx)
	}()

	s.log.Info("scheduler started",
		zap.Duration("tick", s.cfg.TickInterval),
		zap.String("lock_backend", s.locker.Backend()),
	)
	return nil
}

// Stop cancels the loop and waits for the in-flight tick to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return ErrNotRunning
	}
	cancel()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:     s.cancel != nil,
		LockBackend: s.locker.Backend(),
		Jobs:        make([]JobStatus, 0, len(s.jobs)),
	}
	if status.Running {
		startedAt := s.startedAt
		status.StartedAt = &startedAt
	}
	for _, j := range s.jobs {
		if last, ok := s.lastRuns[j.name]; ok {
			status.Jobs = append(status.Jobs, last)
			continue
		}
		status.Jobs = append(status.Jobs, JobStatus{Job: j.name})
	}
	return status
}

func (s *Scheduler) runForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case tickedAt := <-ticker.C:
			s.metrics.ObserveRunLoopLag(time.Since(tickedAt))
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("scheduler tick finished with errors", zap.Error(err))
	}
}

// RunOnce runs every job that is due at the current clock time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.clock.Now()

	var err error
	for _, j := range s.jobs {
		if !s.cfg.isJobEnabled(j.name) {
			continue
		}
		if !j.due(now) {
			s.metrics.IncJobSkip(j.name, obsmetrics.SchedulerSkipReasonNotDue)
			continue
		}
		err = errors.Join(err, s.runScheduled(ctx, j, now))
	}
	return err
}

// Trigger runs a job immediately, ignoring its schedule and period marker.
func (s *Scheduler) Trigger(ctx context.Context, name string) (JobStatus, error) {
	j, ok := s.job(name)
	if !ok {
		return JobStatus{}, ErrUnknownJob
	}
	now := s.clock.Now()

	key := lockKey(j.name, "manual")
	token, acquired, err := s.locker.TryLock(ctx, key, j.timeout+lockGrace)
	if err != nil {
		s.metrics.IncJobSkip(j.name, obsmetrics.SchedulerSkipReasonLockBackend)
		return JobStatus{}, err
	}
	if !acquired {
		s.metrics.IncJobSkip(j.name, obsmetrics.SchedulerSkipReasonLockHeld)
		return JobStatus{}, ErrJobRunning
	}
	defer s.release(ctx, key, token)

	return s.execute(ctx, j, now)
}

func (s *Scheduler) runScheduled(ctx context.Context, j job, now time.Time) error {
	key := lockKey(j.name, j.period(now))
	token, acquired, err := s.locker.TryLock(ctx, key, j.timeout+lockGrace)
	if err != nil {
		s.metrics.IncJobSkip(j.name, obsmetrics.SchedulerSkipReasonLockBackend)
		return fmt.Errorf("%s: lock: %w", j.name, err)
	}
	if !acquired {
		s.metrics.IncJobSkip(j.name, obsmetrics.SchedulerSkipReasonAlreadyRan)
		return nil
	}

	if _, err := s.execute(ctx, j, now); err != nil {
		s.release(ctx, key, token)
		return err
	}

	// The lease becomes the marker that the period is done.
	if err := s.locker.Extend(context.WithoutCancel(ctx), key, token, s.cfg.MarkerTTL); err != nil {
		s.log.Warn("failed to keep job marker", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *Scheduler) execute(parent context.Context, j job, now time.Time) (JobStatus, error) {
	run := s.newJobRun(j.name, j.period(now))
	ctx, cancel := context.WithTimeout(withLogContext(parent), j.timeout)
	defer cancel()

	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(j.name)

	start := time.Now()
	result, err := j.run(ctx, now, run)
	s.metrics.ObserveJobDuration(j.name, time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.metrics.IncJobTimeout(j.name)
			s.logger(ctx).Warn("job timed out",
				zap.String("job", j.name),
				zap.Duration("timeout", j.timeout),
			)
		}
		s.metrics.IncJobError(j.name, err)
		err = fmt.Errorf("%s: %w", j.name, err)
	}
	s.logJobFinish(ctx, run, err)

	status := JobStatus{
		Job:        j.name,
		Period:     run.period,
		RunID:      run.runID,
		StartedAt:  run.startedAt,
		FinishedAt: s.clock.Now(),
		Processed:  run.processedCount,
		Errors:     run.errorCount,
		Result:     result,
	}
	if err != nil {
		status.Error = err.Error()
	}

	s.mu.Lock()
	s.lastRuns[j.name] = status
	s.mu.Unlock()

	return status, err
}

func (s *Scheduler) release(ctx context.Context, key, token string) {
	if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
		s.log.Warn("failed to release job lock", zap.String("key", key), zap.Error(err))
	}
}

func (s *Scheduler) job(name string) (job, bool) {
	for _, j := range s.jobs {
		if j.name == name {
			return j, true
		}
	}
	return job{}, false
}

func lockKey(job, period string) string {
	return fmt.Sprintf("milkbill:job:%s:%s", job, period)
}
