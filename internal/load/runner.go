// Runner scheduling virtual users against the target
package load

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"vehicleops-load/internal/config"
	"vehicleops-load/internal/logging"
	"vehicleops-load/internal/telemetry"
)

// Status is a point-in-time view of a run.
type Status struct {
	RunID          string        `json:"run_id"`
	Target         string        `json:"target"`
	Executor       string        `json:"executor"`
	VirtualUsers   int           `json:"virtual_users"`
	Iterations     int           `json:"iterations"`
	StartedAt      time.Time     `json:"started_at"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
	Completed      int64         `json:"completed"`
	Failures       int64         `json:"failures"`
	Positions      int64         `json:"positions"`
	Emergencies    int64         `json:"emergencies"`
	Checks         []CheckResult `json:"checks"`
	Done           bool          `json:"done"`
}

// Runner drives virtual users until the iteration budget or the duration
// ceiling is exhausted.
type Runner struct {
	cfg     *config.LoadTestConfig
	runID   string
	invoker *Invoker
	checks  *Checks
	limiter *rate.Limiter
	now     func() time.Time

	claimed     atomic.Int64
	completed   atomic.Int64
	failures    atomic.Int64
	positions   atomic.Int64
	emergencies atomic.Int64

	mu        sync.Mutex
	startedAt time.Time
	endedAt   time.Time
	done      bool
}

// NewRunner wires an invoker for cfg. writer may be nil.
func NewRunner(cfg *config.LoadTestConfig, transport Transport, writer ResultWriter) *Runner {
	r := &Runner{
		cfg:    cfg,
		runID:  uuid.NewString(),
		checks: NewChecks(),
		now:    time.Now,
	}
	r.invoker = NewInvoker(InvokerConfig{
		RunID:   r.runID,
		URL:     cfg.TargetURL,
		Shape:   cfg.Shape(),
		Sleep:   cfg.Sleep,
		Headers: cfg.Headers,
	}, transport, r.checks, writer)
	if cfg.MaxRPS > 0 {
		burst := int(cfg.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return r
}

// RunID returns the identifier stamped on every result row.
func (r *Runner) RunID() string { return r.runID }

// Checks returns the run's check aggregator.
func (r *Runner) Checks() *Checks { return r.checks }

// Run blocks until every virtual user has finished.
func (r *Runner) Run(ctx context.Context) error {
	log := logging.FromContext(ctx).With("run_id", r.runID)
	ctx = logging.NewContext(ctx, log)

	if r.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Duration)
		defer cancel()
	}

	r.mu.Lock()
	r.startedAt = r.now()
	r.mu.Unlock()

	log.Info("starting load run",
		"target", r.cfg.TargetURL,
		"vus", r.cfg.VirtualUsers,
		"iterations", r.cfg.Iterations,
		"executor", r.cfg.Executor,
		"duration", r.cfg.Duration)

	g, gctx := errgroup.WithContext(ctx)
	for vu := 1; vu <= r.cfg.VirtualUsers; vu++ {
		g.Go(func() error {
			r.runVU(gctx, vu)
			return nil
		})
	}
	err := g.Wait()

	r.mu.Lock()
	r.endedAt = r.now()
	r.done = true
	r.mu.Unlock()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("duration ceiling reached before iteration budget", "duration", r.cfg.Duration)
	}
	st := r.Status()
	log.Info("load run finished",
		"completed", st.Completed,
		"failures", st.Failures,
		"elapsed", time.Duration(st.ElapsedSeconds*float64(time.Second)))
	return err
}

func (r *Runner) runVU(ctx context.Context, vu int) {
	log := logging.FromContext(ctx).With("vu", vu)
	ctx = logging.NewContext(ctx, log)
	gen := r.generatorFor(vu)

	for iter := 0; ; iter++ {
		if ctx.Err() != nil || !r.claim(iter) {
			return
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
		}
		row, err := r.invoker.Invoke(ctx, gen, telemetry.IterationContext{VirtualUser: vu, Iteration: iter})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.failures.Add(1)
			log.Error("iteration failed", "iteration", iter, "err", err)
			continue
		}
		r.completed.Add(1)
		switch row.Record.Type {
		case telemetry.TypeEmergency:
			r.emergencies.Add(1)
		default:
			r.positions.Add(1)
		}
	}
}

// claim reports whether the VU may start local iteration iter.
func (r *Runner) claim(iter int) bool {
	if r.cfg.Executor == config.ExecutorPerVUIterations {
		return iter < r.cfg.Iterations/r.cfg.VirtualUsers
	}
	return r.claimed.Add(1) <= int64(r.cfg.Iterations)
}

func (r *Runner) generatorFor(vu int) *telemetry.Generator {
	if r.cfg.Seed != 0 {
		return telemetry.NewSeededGenerator(r.cfg.Seed + int64(vu))
	}
	return telemetry.NewGenerator(nil)
}

// Status returns a snapshot of progress.
func (r *Runner) Status() Status {
	r.mu.Lock()
	started, ended, done := r.startedAt, r.endedAt, r.done
	r.mu.Unlock()

	var elapsed time.Duration
	switch {
	case started.IsZero():
	case done:
		elapsed = ended.Sub(started)
	default:
		elapsed = r.now().Sub(started)
	}
	return Status{
		RunID:          r.runID,
		Target:         r.cfg.TargetURL,
		Executor:       r.cfg.Executor,
		VirtualUsers:   r.cfg.VirtualUsers,
		Iterations:     r.cfg.Iterations,
		StartedAt:      started,
		ElapsedSeconds: elapsed.Seconds(),
		Completed:      r.completed.Load(),
		Failures:       r.failures.Load(),
		Positions:      r.positions.Load(),
		Emergencies:    r.emergencies.Load(),
		Checks:         r.checks.Snapshot(),
		Done:           done,
	}
}
