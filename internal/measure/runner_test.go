package measure

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/proxyutils/stabcheck/internal/link"
	"github.com/proxyutils/stabcheck/internal/probe"
	"github.com/proxyutils/stabcheck/internal/stats"
	"github.com/proxyutils/stabcheck/internal/util"
)

func makeTargets(n int) []*link.Target {
	targets := make([]*link.Target, 0, n)
	for i := 0; i < n; i++ {
		targets = append(targets, &link.Target{
			ID:          fmt.Sprintf("target-%d", i),
			Index:       i,
			Protocol:    link.ProtocolVLess,
			Host:        fmt.Sprintf("10.0.0.%d", i+1),
			Port:        443,
			DisplayName: fmt.Sprintf("T%d", i),
		})
	}
	return targets
}

func successProbe(latency time.Duration) ProbeFunc {
	return func(ctx context.Context, target *link.Target) probe.Result {
		return probe.Result{OK: true, Latency: latency, At: time.Now()}
	}
}

func TestQuickModeProbesEachTargetOnce(t *testing.T) {
	targets := makeTargets(25)
	board := stats.NewBoard(targets, 0)
	var counts sync.Map
	probeFn := func(ctx context.Context, target *link.Target) probe.Result {
		v, _ := counts.LoadOrStore(target.ID, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)
		return probe.Result{OK: true, Latency: 10 * time.Millisecond, At: time.Now()}
	}
	runner := NewRunner(Config{Mode: ModeQuick, Concurrency: 4}, board, probeFn, nil, util.NewLogger())
	if runner.State() != StateIdle {
		t.Fatalf("state = %s before Run, want idle", runner.State())
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runner.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", runner.State())
	}
	for _, target := range targets {
		v, ok := counts.Load(target.ID)
		if !ok {
			t.Fatalf("target %s was never probed", target.ID)
		}
		if got := v.(*atomic.Int64).Load(); got != 1 {
			t.Fatalf("target %s probed %d times, want 1", target.ID, got)
		}
		if board.Record(target.ID).Snapshot().Attempts != 1 {
			t.Fatalf("target %s has wrong attempt count", target.ID)
		}
	}
	if runner.Rounds() != 1 {
		t.Fatalf("rounds = %d, want 1", runner.Rounds())
	}
}

func TestConcurrencyCapNeverExceeded(t *testing.T) {
	const limit = 3
	targets := makeTargets(40)
	board := stats.NewBoard(targets, 0)
	var inflight, peak atomic.Int64
	probeFn := func(ctx context.Context, target *link.Target) probe.Result {
		cur := inflight.Add(1)
		for {
			prev := peak.Load()
			if cur <= prev || peak.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return probe.Result{OK: true, Latency: time.Millisecond, At: time.Now()}
	}
	runner := NewRunner(Config{Mode: ModeQuick, Concurrency: limit}, board, probeFn, nil, util.NewLogger())
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := peak.Load(); got > limit {
		t.Fatalf("peak in-flight probes = %d, cap is %d", got, limit)
	}
}

func TestStableModeRoundsAndStats(t *testing.T) {
	const interval = 100 * time.Millisecond
	targets := makeTargets(1)
	board := stats.NewBoard(targets, 0)
	runner := NewRunner(Config{
		Mode:        ModeStable,
		Duration:    3 * interval,
		Interval:    interval,
		Concurrency: 2,
	}, board, successProbe(100*time.Millisecond), nil, util.NewLogger())
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runner.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", runner.State())
	}
	v := board.Record(targets[0].ID).Snapshot()
	if v.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", v.Attempts)
	}
	if v.LossPct != 0 {
		t.Fatalf("loss = %v, want 0", v.LossPct)
	}
	if v.AvgLatency != 100*time.Millisecond {
		t.Fatalf("avg = %v, want 100ms", v.AvgLatency)
	}
	if v.Jitter != 0 {
		t.Fatalf("jitter = %v, want 0", v.Jitter)
	}
}

func TestRealtimeModePublishesEachRound(t *testing.T) {
	targets := makeTargets(2)
	board := stats.NewBoard(targets, 0)
	var published atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	onRound := func() {
		if published.Add(1) >= 3 {
			cancel()
		}
	}
	runner := NewRunner(Config{
		Mode:        ModeRealtime,
		Interval:    10 * time.Millisecond,
		Concurrency: 2,
	}, board, successProbe(time.Millisecond), onRound, util.NewLogger())
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runner.State() != StateInterrupted {
		t.Fatalf("state = %s, want interrupted", runner.State())
	}
	if published.Load() < 3 {
		t.Fatalf("published %d round views, want >= 3", published.Load())
	}
}

func TestCancellationAbandonsInFlightAndKeepsRecorded(t *testing.T) {
	targets := makeTargets(2)
	board := stats.NewBoard(targets, 0)
	firstRecorded := make(chan struct{})
	var once sync.Once
	probeFn := func(ctx context.Context, target *link.Target) probe.Result {
		if target.Index == 0 {
			res := probe.Result{OK: true, Latency: 20 * time.Millisecond, At: time.Now()}
			once.Do(func() { close(firstRecorded) })
			return res
		}
		// Behaves like a slow dial: returns only once the context ends.
		<-ctx.Done()
		return probe.Result{Kind: probe.KindTimeout, At: time.Now()}
	}
	runner := NewRunner(Config{
		Mode:        ModeRealtime,
		Interval:    10 * time.Millisecond,
		Concurrency: 2,
	}, board, probeFn, nil, util.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	<-firstRecorded
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop promptly after cancellation")
	}
	if runner.State() != StateInterrupted {
		t.Fatalf("state = %s, want interrupted", runner.State())
	}
	if got := board.Record(targets[0].ID).Snapshot().Attempts; got < 1 {
		t.Fatalf("pre-cancel results were discarded, attempts = %d", got)
	}
	// The failure caused by the cancel itself must not count as loss.
	if got := board.Record(targets[1].ID).Snapshot().Attempts; got != 0 {
		t.Fatalf("cancel-induced failure was recorded, attempts = %d", got)
	}
}

func TestUnknownModeFails(t *testing.T) {
	board := stats.NewBoard(makeTargets(1), 0)
	runner := NewRunner(Config{Mode: Mode("bogus")}, board, successProbe(time.Millisecond), nil, util.NewLogger())
	if err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if runner.State() != StateInterrupted {
		t.Fatalf("state = %s, want interrupted", runner.State())
	}
}
