package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/graaaaa/eventhub/internal/connector"
	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/store"
)

// RunRecorder persists finished runs.
type RunRecorder interface {
	InsertSyncRun(ctx context.Context, r *store.SyncRun) error
}

// StatisticsSource supplies yearly statistics.
type StatisticsSource interface {
	Fetch(ctx context.Context) []event.Statistics
}

// StatisticsRunName is the source name of statistics runs.
const StatisticsRunName = "statistics"

// RunResult describes one finished connector pass.
type RunResult struct {
	RunID      string     `json:"run_id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Report     SyncReport `json:"report"`
}

// Runner runs connectors through a Pipeline, one pass at a time.
type Runner struct {
	pipeline   *Pipeline
	connectors []connector.Connector
	stats      StatisticsSource
	runs       RunRecorder
	onRun      func(RunResult)
	newRunID   func() string

	mu sync.Mutex
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunRecorder records each pass as a sync run.
func WithRunRecorder(r RunRecorder) RunnerOption {
	return func(rn *Runner) { rn.runs = r }
}

// WithStatistics loads statistics after the connectors on every RunAll.
func WithStatistics(s StatisticsSource) RunnerOption {
	return func(rn *Runner) { rn.stats = s }
}

// WithOnRun calls fn with every finished run. fn must not block.
func WithOnRun(fn func(RunResult)) RunnerOption {
	return func(rn *Runner) { rn.onRun = fn }
}

// WithRunIDs overrides run id generation (for testing).
func WithRunIDs(fn func() string) RunnerOption {
	return func(rn *Runner) { rn.newRunID = fn }
}

// NewRunner creates a Runner for connectors.
func NewRunner(p *Pipeline, connectors []connector.Connector, opts ...RunnerOption) *Runner {
	r := &Runner{
		pipeline:   p,
		connectors: connectors,
		newRunID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sources returns the names RunOne accepts.
func (r *Runner) Sources() []string {
	names := make([]string, 0, len(r.connectors)+1)
	for _, c := range r.connectors {
		names = append(names, c.Name())
	}
	if r.stats != nil {
		names = append(names, StatisticsRunName)
	}
	return names
}

// RunAll runs every connector in order, then statistics if configured.
// It returns ErrSyncInProgress if another run is active.
func (r *Runner) RunAll(ctx context.Context) ([]RunResult, error) {
	if !r.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer r.mu.Unlock()

	results := make([]RunResult, 0, len(r.connectors)+1)
	for _, c := range r.connectors {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, r.runConnector(ctx, c))
	}
	if r.stats != nil && ctx.Err() == nil {
		results = append(results, r.runStatistics(ctx))
	}
	return results, ctx.Err()
}

// RunOne runs the named connector, or statistics for StatisticsRunName.
func (r *Runner) RunOne(ctx context.Context, name string) (RunResult, error) {
	if !r.mu.TryLock() {
		return RunResult{}, ErrSyncInProgress
	}
	defer r.mu.Unlock()

	if name == StatisticsRunName && r.stats != nil {
		return r.runStatistics(ctx), nil
	}
	for _, c := range r.connectors {
		if c.Name() == name {
			return r.runConnector(ctx, c), nil
		}
	}
	return RunResult{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
}

// RunEvery runs RunAll immediately when runNow is set and then on every
// tick of interval until ctx is cancelled. Returns ctx.Err().
func (r *Runner) RunEvery(ctx context.Context, interval time.Duration, runNow bool) error {
	logger := r.pipeline.logger
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}

	tick := func() {
		if _, err := r.RunAll(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("scheduled sync skipped", "error", err)
		}
	}

	if runNow {
		tick()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick()
		}
	}
}

func (r *Runner) runConnector(ctx context.Context, c connector.Connector) RunResult {
	res := RunResult{RunID: r.newRunID(), Source: c.Name(), StartedAt: r.pipeline.clock.Now()}
	r.pipeline.logger.Info("sync started", "source", res.Source, "run_id", res.RunID)

	res.Report = r.pipeline.Sync(ctx, c.Name(), c.Fetch(ctx))
	return r.finish(ctx, res)
}

func (r *Runner) runStatistics(ctx context.Context) RunResult {
	res := RunResult{RunID: r.newRunID(), Source: StatisticsRunName, StartedAt: r.pipeline.clock.Now()}
	r.pipeline.logger.Info("sync started", "source", res.Source, "run_id", res.RunID)

	res.Report = r.pipeline.SyncStatistics(ctx, r.stats.Fetch(ctx))
	return r.finish(ctx, res)
}

func (r *Runner) finish(ctx context.Context, res RunResult) RunResult {
	res.FinishedAt = r.pipeline.clock.Now()
	r.pipeline.metrics.SyncRun(res.Source, res.FinishedAt.Sub(res.StartedAt), res.Report.Failed, res.FinishedAt)
	if r.onRun != nil {
		r.onRun(res)
	}

	if r.runs == nil {
		return res
	}

	row := &store.SyncRun{
		RunID:      res.RunID,
		Source:     res.Source,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Upserted:   res.Report.Upserted,
		Updated:    res.Report.Updated,
		Unchanged:  res.Report.Unchanged,
		Skipped:    res.Report.Skipped,
		Failed:     res.Report.Failed,
	}
	if err := ctx.Err(); err != nil {
		msg := err.Error()
		row.Error = &msg
	}

	// The run row is bookkeeping; record it even when ctx was cancelled.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.pipeline.storeTimeout)
	defer cancel()
	if err := r.runs.InsertSyncRun(rctx, row); err != nil {
		r.pipeline.logger.Warn("failed to record sync run", "run_id", res.RunID, "error", err)
	}
	return res
}
