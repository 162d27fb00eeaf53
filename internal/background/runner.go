package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/directory-search/internal/metrics"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

// ErrJobBusy is returned when a run is requested while the same job is still running
var ErrJobBusy = errors.New("job already running")

// JobFunc is one unit of scheduled work
type JobFunc func(ctx context.Context) error

// JobGuard allows at most one in-flight run per job name.
type JobGuard struct {
	mu      sync.Mutex
	running map[string]*atomic.Bool
}

func NewJobGuard() *JobGuard {
	return &JobGuard{running: make(map[string]*atomic.Bool)}
}

// TryAcquire marks name as running. ok is false if it already was; otherwise
// release must be called when the run finishes.
func (g *JobGuard) TryAcquire(name string) (release func(), ok bool) {
	g.mu.Lock()
	flag, exists := g.running[name]
	if !exists {
		flag = &atomic.Bool{}
		g.running[name] = flag
	}
	g.mu.Unlock()

	if !flag.CompareAndSwap(false, true) {
		return nil, false
	}
	return func() { flag.Store(false) }, true
}

// Running reports whether name has a run in flight.
func (g *JobGuard) Running(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	flag, ok := g.running[name]
	return ok && flag.Load()
}

// Runner executes jobs under a guard with a correlation id, logging and metrics.
type Runner struct {
	guard  *JobGuard
	logger *slog.Logger
}

func NewRunner(guard *JobGuard, logger *slog.Logger) *Runner {
	return &Runner{guard: guard, logger: logger}
}

// Run executes fn with a fresh "<name>-<uuid>" correlation id.
func (r *Runner) Run(ctx context.Context, name string, fn JobFunc) error {
	return r.RunAs(ctx, name, pkglogger.NewCorrelationID(name), fn)
}

// RunAs executes fn with the given correlation id. A busy job is skipped with ErrJobBusy.
func (r *Runner) RunAs(ctx context.Context, name, correlationID string, fn JobFunc) (err error) {
	logger := r.logger.With(slog.String("job", name), pkglogger.CorrelationAttr(correlationID))

	release, ok := r.guard.TryAcquire(name)
	if !ok {
		logger.Info("job already running, skipping this run")
		metrics.JobRuns.WithLabelValues(name, "skipped").Inc()
		return ErrJobBusy
	}
	defer release()

	ctx = pkglogger.WithCorrelationID(ctx, correlationID)
	start := time.Now()
	logger.Info("starting job")

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", name, p)
		}

		duration := time.Since(start)
		metrics.JobDuration.WithLabelValues(name).Observe(duration.Seconds())
		if err != nil {
			metrics.JobRuns.WithLabelValues(name, "failure").Inc()
			logger.Error("job failed", slog.Duration("duration", duration), slog.Any("error", err))
			return
		}
		metrics.JobRuns.WithLabelValues(name, "success").Inc()
		logger.Info("job finished", slog.Duration("duration", duration))
	}()

	return fn(ctx)
}
