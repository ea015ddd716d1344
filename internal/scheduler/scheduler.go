package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pantry/internal/clock"
	"github.com/smallbiznis/pantry/internal/lease"
	obsmetrics "github.com/smallbiznis/pantry/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Job is one periodic background task. Run reports how many items it handled.
type Job struct {
	Name      string
	Interval  time.Duration
	Timeout   time.Duration
	BatchSize int
	Run       func(ctx context.Context) (int, error)
}

type Params struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Lease  lease.Lease `optional:"true"`
	Jobs   []Job       `group:"scheduler.jobs"`
	Config Config      `optional:"true"`
}

type Scheduler struct {
	log   *zap.Logger
	cfg   Config
	genID *snowflake.Node
	clock clock.Clock
	lease lease.Lease
	jobs  []Job

	mu      sync.Mutex
	nextRun map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	jobs := make([]Job, 0, len(p.Jobs))
	for _, job := range p.Jobs {
		job.Name = strings.TrimSpace(job.Name)
		if job.Name == "" || job.Run == nil || job.Interval <= 0 {
			return nil, fmt.Errorf("%w: job %q", ErrInvalidConfig, job.Name)
		}
		jobs = append(jobs, job)
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	leaser := p.Lease
	if leaser == nil {
		leaser = lease.NewLocal()
	}

	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		lease:   leaser,
		jobs:    jobs,
		nextRun: make(map[string]time.Time, len(jobs)),
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, job Job) error {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	jobMetrics := obsmetrics.Jobs()

	release, ok, err := s.lease.Acquire(parent, job.Name, timeout+job.Interval)
	if err != nil {
		jobMetrics.IncJobError(job.Name, err)
		return fmt.Errorf("%s: acquire lease: %w", job.Name, err)
	}
	if !ok {
		jobMetrics.IncSkipped(job.Name)
		s.log.Debug("scheduler.job.skipped", zap.String("job", job.Name))
		return nil
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			s.log.Warn("release lease failed", zap.String("job", job.Name), zap.Error(err))
		}
	}()

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, job)
	s.logJobStart(ctx, run)
	log := s.logger(ctx).With(
		zap.String("job", job.Name),
		zap.String("run_id", run.runID),
	)
	jobMetrics.IncJobRun(job.Name)

	processed, err := job.Run(ctx)
	run.AddProcessed(processed)
	jobMetrics.ObserveJobDuration(job.Name, s.clock.Now().Sub(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the remainder
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		jobMetrics.IncJobTimeout(job.Name)
	}
	jobMetrics.IncJobError(job.Name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", job.Name, err)
}

// RunOnce runs every job whose interval has elapsed.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	now := s.clock.Now()

	for _, job := range s.jobs {
		if !s.due(job, now) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job))
	}

	return err
}

func (s *Scheduler) due(job Job, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.nextRun[job.Name]
	if ok && now.Before(next) {
		return false
	}
	s.nextRun[job.Name] = now.Add(job.Interval)
	return true
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	nextTick := s.clock.Now().Add(s.cfg.TickInterval)
	jobMetrics := obsmetrics.Jobs()

	for {
		runLag := s.clock.Now().Sub(nextTick)
		if runLag > 0 {
			jobMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextTick = s.clock.Now().Add(s.cfg.TickInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.Name)
	}
	return names
}
