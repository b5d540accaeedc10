package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/graaaaa/eventhub/internal/connector"
	"github.com/graaaaa/eventhub/internal/ingest"
)

// FakeTimerHandle implements TimerHandle for testing.
type FakeTimerHandle struct {
	mu      sync.Mutex
	stopped bool
	onFire  func()
}

func (h *FakeTimerHandle) Stop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	stopped := !h.stopped
	h.stopped = true
	return stopped
}

func (h *FakeTimerHandle) Fire() {
	h.mu.Lock()
	stopped := h.stopped
	onFire := h.onFire
	h.mu.Unlock()

	if !stopped && onFire != nil {
		onFire()
	}
}

// FakeTimerFactory creates fake timers for testing.
type FakeTimerFactory struct {
	mu      sync.Mutex
	handles []*FakeTimerHandle
}

func (f *FakeTimerFactory) AfterFunc() AfterFunc {
	return func(d time.Duration, fn func()) TimerHandle {
		h := &FakeTimerHandle{onFire: fn}
		f.mu.Lock()
		f.handles = append(f.handles, h)
		f.mu.Unlock()
		return h
	}
}

func (f *FakeTimerFactory) FireAll() {
	f.mu.Lock()
	handles := append([]*FakeTimerHandle(nil), f.handles...)
	f.mu.Unlock()

	for _, h := range handles {
		h.Fire()
	}
}

func (f *FakeTimerFactory) LastHandle() *FakeTimerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

// MockSender implements Sender for testing.
type MockSender struct {
	mu     sync.Mutex
	calls  []DiscordPayload
	err    error
	sendCh chan struct{} // Notifies when Send is called
}

func NewMockSender() *MockSender {
	return &MockSender{sendCh: make(chan struct{}, 10)}
}

func (m *MockSender) Send(ctx context.Context, payload DiscordPayload) error {
	m.mu.Lock()
	m.calls = append(m.calls, payload)
	err := m.err
	m.mu.Unlock()

	// Notify waiters
	select {
	case m.sendCh <- struct{}{}:
	default:
	}
	return err
}

func (m *MockSender) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockSender) Calls() []DiscordPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DiscordPayload(nil), m.calls...)
}

func (m *MockSender) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// waitSend waits for a send notification with timeout.
func waitSend(t *testing.T, m *MockSender) {
	t.Helper()
	select {
	case <-m.sendCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send")
	}
}

func makeRun(source string, failed int) ingest.RunResult {
	start := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	return ingest.RunResult{
		RunID:      source + "-run",
		Source:     source,
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
		Report:     ingest.SyncReport{Upserted: 3, Unchanged: 7, Failed: failed},
	}
}

// startNotifier runs n until the test ends.
func startNotifier(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNotifier_BatchesRuns(t *testing.T) {
	timerFactory := &FakeTimerFactory{}
	sender := NewMockSender()

	n := NewNotifier(sender, time.Second, Filter{OnSuccess: true}, WithAfterFunc(timerFactory.AfterFunc()))
	startNotifier(t, n)

	n.Enqueue(makeRun("artsrepublic", 0))
	n.Enqueue(makeRun("eventfinda", 2))
	n.Enqueue(makeRun("statistics", 0))

	time.Sleep(50 * time.Millisecond)

	if sender.CallCount() != 0 {
		t.Errorf("expected 0 calls before timer, got %d", sender.CallCount())
	}

	timerFactory.FireAll()
	waitSend(t, sender)

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 batched call, got %d", len(calls))
	}
	if len(calls[0].Embeds) != 3 {
		t.Fatalf("expected 3 embeds, got %d", len(calls[0].Embeds))
	}
	if calls[0].Embeds[0].Title != "Sync failed: eventfinda" {
		t.Errorf("expected failed run first, got %q", calls[0].Embeds[0].Title)
	}
}

func TestNotifier_FailuresOnlyByDefault(t *testing.T) {
	timerFactory := &FakeTimerFactory{}
	sender := NewMockSender()

	n := NewNotifier(sender, time.Second, Filter{}, WithAfterFunc(timerFactory.AfterFunc()))
	startNotifier(t, n)

	n.Enqueue(makeRun("artsrepublic", 0))
	n.Enqueue(makeRun("eventfinda", 1))

	time.Sleep(50 * time.Millisecond)
	timerFactory.FireAll()
	waitSend(t, sender)

	calls := sender.Calls()
	if len(calls) != 1 || len(calls[0].Embeds) != 1 {
		t.Fatalf("expected one embed, got %+v", calls)
	}
	if calls[0].Embeds[0].Color != ColorRed {
		t.Errorf("expected red embed, got %#x", calls[0].Embeds[0].Color)
	}
}

func TestNotifier_CoalescesBySource(t *testing.T) {
	timerFactory := &FakeTimerFactory{}
	sender := NewMockSender()

	n := NewNotifier(sender, time.Second, Filter{}, WithAfterFunc(timerFactory.AfterFunc()))
	startNotifier(t, n)

	n.Enqueue(makeRun("eventfinda", 1))
	n.Enqueue(makeRun("eventfinda", 5))

	time.Sleep(50 * time.Millisecond)
	if n.QueueLength() != 1 {
		t.Errorf("expected 1 queued run, got %d", n.QueueLength())
	}

	timerFactory.FireAll()
	waitSend(t, sender)

	embeds := sender.Calls()[0].Embeds
	if len(embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(embeds))
	}
	want := "**3** upserted, **0** updated, **7** unchanged, **0** skipped, **5** failed"
	if got := embeds[0].Description; len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("expected latest run, got %q", got)
	}
}

func TestNotifier_BackoffOn429(t *testing.T) {
	timerFactory := &FakeTimerFactory{}
	sender := NewMockSender()
	sender.SetErr(&DeliveryError{StatusCode: 429, RetryAfter: 5 * time.Second})

	n := NewNotifier(sender, time.Second, Filter{}, WithAfterFunc(timerFactory.AfterFunc()))
	startNotifier(t, n)

	n.Enqueue(makeRun("eventfinda", 1))
	time.Sleep(50 * time.Millisecond)
	timerFactory.FireAll()
	waitSend(t, sender)

	if sender.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", sender.CallCount())
	}

	n.Enqueue(makeRun("artsrepublic", 1))
	time.Sleep(50 * time.Millisecond)
	timerFactory.FireAll()
	// No send is expected, so there is nothing to wait on.
	time.Sleep(100 * time.Millisecond)

	if sender.CallCount() != 1 {
		t.Errorf("expected 1 call (backoff should prevent send), got %d", sender.CallCount())
	}
	// The undelivered run waits alongside the new one.
	if n.QueueLength() != 2 {
		t.Errorf("expected 2 runs kept in queue during backoff, got %d", n.QueueLength())
	}
}

func TestNotifier_StopsOnFatal(t *testing.T) {
	timerFactory := &FakeTimerFactory{}
	sender := NewMockSender()
	sender.SetErr(&DeliveryError{StatusCode: 404, Message: "Unknown Webhook", Permanent: true})

	n := NewNotifier(sender, time.Second, Filter{}, WithAfterFunc(timerFactory.AfterFunc()))
	startNotifier(t, n)

	n.Enqueue(makeRun("eventfinda", 1))
	time.Sleep(50 * time.Millisecond)
	timerFactory.FireAll()
	waitSend(t, sender)

	status := n.Status()
	if !status.Disabled {
		t.Error("expected notifier to be disabled")
	}
	if !strings.Contains(status.DisabledReason, "Unknown Webhook") {
		t.Errorf("unexpected disabled reason %q", status.DisabledReason)
	}

	n.Enqueue(makeRun("artsrepublic", 1))
	time.Sleep(50 * time.Millisecond)
	timerFactory.FireAll()
	time.Sleep(100 * time.Millisecond)

	if sender.CallCount() != 1 {
		t.Errorf("expected 1 call (subsequent ignored), got %d", sender.CallCount())
	}
}

func TestNotifier_BestEffortFlushOnStop(t *testing.T) {
	timerFactory := &FakeTimerFactory{}
	sender := NewMockSender()

	n := NewNotifier(sender, time.Second, Filter{}, WithAfterFunc(timerFactory.AfterFunc()))

	done := make(chan struct{})
	go func() {
		n.Run(context.Background())
		close(done)
	}()

	n.Enqueue(makeRun("eventfinda", 1))
	time.Sleep(50 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := n.Stop(stopCtx); err != nil {
		t.Errorf("stop failed: %v", err)
	}
	<-done

	if sender.CallCount() != 1 {
		t.Errorf("expected 1 call (best-effort flush), got %d", sender.CallCount())
	}
	// A second Stop is a no-op.
	if err := n.Stop(stopCtx); err != nil {
		t.Errorf("second stop failed: %v", err)
	}
}

func TestNotifier_RetryUsesBackoffCalculator(t *testing.T) {
	calc := connector.NewBackoffCalculatorWithSeed(connector.BackoffConfig{
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   1,
	}, 1)
	timerFactory := &FakeTimerFactory{}
	n := NewNotifier(NewMockSender(), time.Second, Filter{},
		WithBackoff(calc), WithAfterFunc(timerFactory.AfterFunc()))

	runs := []ingest.RunResult{makeRun("eventfinda", 1)}
	before := time.Now()
	n.handleSendError(errors.New("connection reset"), runs, BuildPayloads(runs))
	if n.backoffUntil.Sub(before) < 59*time.Minute {
		t.Errorf("expected ~1h backoff, got %v", n.backoffUntil.Sub(before))
	}
	if n.backoffAttempt != 1 {
		t.Errorf("expected attempt 1, got %d", n.backoffAttempt)
	}
	if timerFactory.LastHandle() == nil {
		t.Error("expected a retry timer")
	}
}

func TestNotifier_RequeuesOnlyUnsentRuns(t *testing.T) {
	timerFactory := &FakeTimerFactory{}
	sender := &failAfterSender{MockSender: NewMockSender(), okCalls: 1}

	n := NewNotifier(sender, time.Second, Filter{}, WithAfterFunc(timerFactory.AfterFunc()))
	startNotifier(t, n)

	// Eleven failing sources need two payloads; the second one fails.
	for i := range MaxEmbedsPerRequest + 1 {
		n.Enqueue(makeRun(fmt.Sprintf("source-%02d", i), 1))
	}
	time.Sleep(50 * time.Millisecond)
	timerFactory.FireAll()
	waitSend(t, sender.MockSender)
	waitSend(t, sender.MockSender)
	time.Sleep(50 * time.Millisecond)

	if n.QueueLength() != 1 {
		t.Fatalf("expected the one unsent run requeued, got %d", n.QueueLength())
	}
	n.mu.Lock()
	src := n.queue[0].Source
	n.mu.Unlock()
	if src != "source-10" {
		t.Errorf("requeued %q, want source-10", src)
	}
}

// failAfterSender succeeds okCalls times, then fails with a 502.
type failAfterSender struct {
	*MockSender
	okCalls int
}

func (s *failAfterSender) Send(ctx context.Context, payload DiscordPayload) error {
	err := s.MockSender.Send(ctx, payload)
	if s.MockSender.CallCount() > s.okCalls {
		return &DeliveryError{Sources: payload.Sources, StatusCode: http.StatusBadGateway}
	}
	return err
}

func TestPayload_SplitsAtEmbedLimit(t *testing.T) {
	runs := make([]ingest.RunResult, 0, MaxEmbedsPerRequest+2)
	for i := range MaxEmbedsPerRequest + 2 {
		runs = append(runs, makeRun(string(rune('a'+i)), 0))
	}

	payloads := BuildPayloads(runs)
	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(payloads))
	}
	if len(payloads[0].Embeds) != MaxEmbedsPerRequest || len(payloads[1].Embeds) != 2 {
		t.Errorf("unexpected split %d/%d", len(payloads[0].Embeds), len(payloads[1].Embeds))
	}
	if payloads[0].Embeds[0].Timestamp != "2025-03-01T06:00:42Z" {
		t.Errorf("unexpected timestamp %q", payloads[0].Embeds[0].Timestamp)
	}
}

func TestPayload_EmptyRuns(t *testing.T) {
	if BuildPayloads(nil) != nil {
		t.Error("expected nil for no runs")
	}
	if BuildPayloads([]ingest.RunResult{}) != nil {
		t.Error("expected nil for empty slice")
	}
}
