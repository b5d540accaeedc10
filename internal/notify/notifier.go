// Package notify posts sync run alerts to a Discord webhook.
//
// A Notifier batches finished runs for a short delay and keeps only the
// latest run per source. Runs whose payload failed to deliver go back in the
// queue until the backoff ends. A webhook that rejects the request outright
// disables the notifier for the life of the process.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/graaaaa/eventhub/internal/connector"
	"github.com/graaaaa/eventhub/internal/ingest"
)

// Filter determines which runs raise an alert. Runs with failed records
// always do.
type Filter struct {
	OnSuccess bool
}

// NotifierStatus represents the current status of the notifier.
type NotifierStatus struct {
	Disabled       bool
	DisabledReason string
	DisabledAt     time.Time
}

// DefaultMaxQueueSize is the default maximum number of runs to keep in queue.
const DefaultMaxQueueSize = 50

// DefaultBatchDelay is used when NewNotifier is given a non-positive delay.
const DefaultBatchDelay = 30 * time.Second

// DefaultBackoffConfig paces retries after the webhook reports a transient error.
var DefaultBackoffConfig = connector.BackoffConfig{
	InitialDelay: time.Second,
	MaxDelay:     5 * time.Minute,
	Multiplier:   2.0,
	JitterFactor: 0.2,
}

// TimerHandle allows stopping a scheduled callback.
type TimerHandle interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) TimerHandle

// DefaultAfterFunc wraps time.AfterFunc.
var DefaultAfterFunc AfterFunc = func(d time.Duration, f func()) TimerHandle {
	return time.AfterFunc(d, f)
}

// Notifier batches sync runs and sends them as webhook messages.
// It runs a dedicated goroutine for processing runs.
type Notifier struct {
	sender       Sender
	afterFunc    AfterFunc
	batchDelay   time.Duration
	filter       Filter
	logger       *slog.Logger
	maxQueueSize int
	backoff      *connector.BackoffCalculator

	runCh   chan ingest.RunResult
	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	// protected by mu
	mu          sync.Mutex
	queue       []ingest.RunResult
	timerHandle TimerHandle
	status      NotifierStatus

	// owned by the Run goroutine
	backoffAttempt int
	backoffUntil   time.Time

	stopOnce sync.Once
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithAfterFunc sets the timer function (for testing).
func WithAfterFunc(af AfterFunc) NotifierOption {
	return func(n *Notifier) { n.afterFunc = af }
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(n *Notifier) { n.logger = logger }
}

// WithMaxQueueSize sets the maximum queue size.
func WithMaxQueueSize(size int) NotifierOption {
	return func(n *Notifier) {
		if size > 0 {
			n.maxQueueSize = size
		}
	}
}

// WithBackoff replaces the retry pacing.
func WithBackoff(b *connector.BackoffCalculator) NotifierOption {
	return func(n *Notifier) { n.backoff = b }
}

// NewNotifier creates a new Notifier.
// Call Run() to start processing runs.
func NewNotifier(sender Sender, batchDelay time.Duration, filter Filter, opts ...NotifierOption) *Notifier {
	if batchDelay <= 0 {
		batchDelay = DefaultBatchDelay
	}

	n := &Notifier{
		sender:       sender,
		afterFunc:    DefaultAfterFunc,
		batchDelay:   batchDelay,
		filter:       filter,
		logger:       slog.Default(),
		maxQueueSize: DefaultMaxQueueSize,
		backoff:      connector.NewBackoffCalculator(DefaultBackoffConfig),
		runCh:        make(chan ingest.RunResult, 16),
		flushCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run processes runs until Stop is called or ctx is cancelled.
// Both flush the queue once before returning.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.doneCh)

	for {
		select {
		case res := <-n.runCh:
			n.handleRun(res)

		case <-n.flushCh:
			n.flush(ctx)

		case <-n.stopCh:
			n.flush(ctx)
			return

		case <-ctx.Done():
			n.flush(context.Background())
			return
		}
	}
}

// Enqueue adds a finished run. It never blocks; when the channel is full
// the run is dropped. Safe to call from any goroutine, and usable as an
// ingest.WithOnRun callback.
func (n *Notifier) Enqueue(res ingest.RunResult) {
	n.mu.Lock()
	disabled := n.status.Disabled
	n.mu.Unlock()
	if disabled || !n.shouldNotify(res) {
		return
	}

	select {
	case n.runCh <- res:
	default:
		n.logger.Warn("alert queue full, run dropped", "source", res.Source, "run_id", res.RunID)
	}
}

func (n *Notifier) shouldNotify(res ingest.RunResult) bool {
	return res.Report.Failed > 0 || n.filter.OnSuccess
}

func (n *Notifier) handleRun(res ingest.RunResult) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.queue = append(n.queue, res)
	n.coalesceQueueLocked()

	if len(n.queue) > n.maxQueueSize {
		dropped := len(n.queue) - n.maxQueueSize
		n.queue = n.queue[dropped:]
		n.logger.Warn("alert queue overflow, dropped old runs", "dropped", dropped)
	}

	if n.timerHandle == nil {
		n.timerHandle = n.afterFunc(n.batchDelay, n.triggerFlush)
	}
}

// coalesceQueueLocked keeps the latest run of each source, in the position
// of that source's first run. Must be called with mu held.
func (n *Notifier) coalesceQueueLocked() {
	if len(n.queue) <= 1 {
		return
	}

	seen := make(map[string]int, len(n.queue))
	result := make([]ingest.RunResult, 0, len(n.queue))
	for _, res := range n.queue {
		if idx, ok := seen[res.Source]; ok {
			result[idx] = res
			continue
		}
		seen[res.Source] = len(result)
		result = append(result, res)
	}
	n.queue = result
}

func (n *Notifier) triggerFlush() {
	select {
	case n.flushCh <- struct{}{}:
	default:
	}
}

func (n *Notifier) flush(ctx context.Context) {
	n.mu.Lock()
	if len(n.queue) == 0 {
		n.timerHandle = nil
		n.mu.Unlock()
		return
	}

	// Keep runs queued while backing off and retry when it ends.
	if time.Now().Before(n.backoffUntil) {
		remaining := time.Until(n.backoffUntil)
		n.logger.Debug("in backoff period, keeping runs in queue",
			"queue_size", len(n.queue),
			"remaining", remaining,
		)
		if n.timerHandle != nil {
			n.timerHandle.Stop()
		}
		n.timerHandle = n.afterFunc(remaining, n.triggerFlush)
		n.mu.Unlock()
		return
	}

	runs := n.queue
	n.queue = nil
	n.timerHandle = nil
	n.mu.Unlock()

	payloads := BuildPayloads(runs)
	for i, payload := range payloads {
		if err := n.sender.Send(ctx, payload); err != nil {
			n.handleSendError(err, runs, payloads[i:])
			return
		}
		n.backoffAttempt = 0
		n.backoffUntil = time.Time{}
	}
}

// handleSendError disables the notifier on a permanent failure. Otherwise it
// puts the runs of the unsent payloads back in the queue and backs off.
func (n *Notifier) handleSendError(err error, runs []ingest.RunResult, unsent []DiscordPayload) {
	var derr *DeliveryError
	if !errors.As(err, &derr) {
		derr = &DeliveryError{Err: err}
	}
	logger := n.logger.With("sources", derr.Sources, "status", derr.StatusCode)

	if derr.Permanent {
		n.mu.Lock()
		n.status.Disabled = true
		n.status.DisabledReason = derr.Error()
		n.status.DisabledAt = time.Now()
		n.queue = nil
		n.mu.Unlock()
		logger.Error("alert webhook rejected the request, alerts disabled", "error", err)
		return
	}

	delay := n.backoff.Delay(n.backoffAttempt, derr.RetryAfter)
	n.backoffAttempt++
	n.backoffUntil = time.Now().Add(delay)

	pending := runsFor(runs, unsent)
	n.mu.Lock()
	n.queue = append(pending, n.queue...)
	n.coalesceQueueLocked()
	if len(n.queue) > n.maxQueueSize {
		n.queue = n.queue[len(n.queue)-n.maxQueueSize:]
	}
	if n.timerHandle == nil {
		n.timerHandle = n.afterFunc(delay, n.triggerFlush)
	}
	n.mu.Unlock()

	logger.Warn("alert delivery failed, backing off",
		"error", err,
		"attempt", n.backoffAttempt,
		"retry_in", delay,
		"requeued", len(pending),
	)
}

// runsFor returns the runs whose source appears in payloads.
func runsFor(runs []ingest.RunResult, payloads []DiscordPayload) []ingest.RunResult {
	sources := make(map[string]bool)
	for _, p := range payloads {
		for _, src := range p.Sources {
			sources[src] = true
		}
	}
	var out []ingest.RunResult
	for _, r := range runs {
		if sources[r.Source] {
			out = append(out, r)
		}
	}
	return out
}

// Stop stops the notifier and waits for the run loop to finish or ctx to
// end. Safe to call multiple times.
func (n *Notifier) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() {
		close(n.stopCh)
	})

	select {
	case <-n.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current notifier status.
func (n *Notifier) Status() NotifierStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// QueueLength returns the number of queued runs.
func (n *Notifier) QueueLength() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
