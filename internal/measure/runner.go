package measure

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/proxyutils/stabcheck/internal/link"
	"github.com/proxyutils/stabcheck/internal/probe"
	"github.com/proxyutils/stabcheck/internal/stats"
	"github.com/proxyutils/stabcheck/internal/util"
)

// Mode selects how long the runner keeps probing.
type Mode string

const (
	// ModeQuick probes every target exactly once.
	ModeQuick Mode = "quick"
	// ModeStable repeats rounds at the configured cadence until the
	// duration elapses.
	ModeStable Mode = "stable"
	// ModeRealtime repeats rounds until the context is cancelled,
	// notifying after each completed round so a live view can refresh.
	ModeRealtime Mode = "realtime"
)

// State reflects where the runner is in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// ProbeFunc performs one connectivity attempt for a target.
type ProbeFunc func(ctx context.Context, target *link.Target) probe.Result

type Config struct {
	Mode        Mode
	Duration    time.Duration // stable mode only
	Interval    time.Duration // cadence between rounds
	Concurrency int
}

const (
	defaultConcurrency = 50
	defaultInterval    = time.Second
)

// Runner drives repeated probe rounds over the full target set. A
// semaphore caps in-flight probes across the whole set; within one
// round every target is admitted exactly once, so no target can starve
// another regardless of how slow its endpoint is.
type Runner struct {
	cfg     Config
	board   *stats.Board
	probe   ProbeFunc
	onRound func()
	logger  util.Logger
	sem     chan struct{}
	state   atomic.Int32
	rounds  atomic.Uint64
}

// NewRunner wires a runner to a board. onRound may be nil; when set it
// fires after every completed round in realtime mode.
func NewRunner(cfg Config, board *stats.Board, probeFn ProbeFunc, onRound func(), logger util.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Runner{
		cfg:     cfg,
		board:   board,
		probe:   probeFn,
		onRound: onRound,
		logger:  logger,
		sem:     make(chan struct{}, cfg.Concurrency),
	}
}

func (r *Runner) State() State { return State(r.state.Load()) }

// Rounds returns the number of completed probe rounds.
func (r *Runner) Rounds() uint64 { return r.rounds.Load() }

// Run blocks until the mode's terminal condition or cancellation.
// Cancellation aborts admission and in-flight dials; results recorded
// before the cancel are always retained.
func (r *Runner) Run(ctx context.Context) error {
	r.state.Store(int32(StateRunning))
	switch r.cfg.Mode {
	case ModeQuick:
		r.runRound(ctx)
	case ModeStable:
		r.runTimed(ctx)
	case ModeRealtime:
		r.runUntilCancelled(ctx)
	default:
		r.state.Store(int32(StateInterrupted))
		return fmt.Errorf("measure: unknown mode %q", r.cfg.Mode)
	}
	if ctx.Err() != nil {
		r.state.Store(int32(StateInterrupted))
	} else {
		r.state.Store(int32(StateCompleted))
	}
	return nil
}

func (r *Runner) runTimed(ctx context.Context) {
	deadline := time.Now().Add(r.cfg.Duration)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return
		}
		r.runRound(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) runUntilCancelled(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		r.runRound(ctx)
		if r.onRound != nil && ctx.Err() == nil {
			r.onRound()
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runRound admits every target exactly once, blocking on the semaphore
// so at most Concurrency probes are in flight at any instant.
func (r *Runner) runRound(ctx context.Context) {
	var wg sync.WaitGroup
	for _, target := range r.board.Targets() {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case r.sem <- struct{}{}:
		}
		wg.Add(1)
		go func(t *link.Target) {
			defer wg.Done()
			defer func() { <-r.sem }()
			res := r.probe(ctx, t)
			// A failure produced by cancellation is not a measurement.
			// A success that raced the cancel still counts.
			if !res.OK && ctx.Err() != nil {
				return
			}
			r.board.Add(t.ID, res)
		}(target)
	}
	wg.Wait()
	r.rounds.Add(1)
}
