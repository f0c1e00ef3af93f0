package stats

import (
	"math"
	"sync"
	"time"

	"github.com/proxyutils/stabcheck/internal/probe"
)

// DefaultSampleWindow bounds retained latency samples per target so a
// long realtime run cannot grow without limit.
const DefaultSampleWindow = 100

// View is a consistent point-in-time read of one target's rolling
// statistics. HasData is false until the first attempt lands; a loss
// of 0 with HasData false means "no data", not a perfect score.
type View struct {
	Attempts   int
	Successes  int
	HasData    bool
	LossPct    float64
	AvgLatency time.Duration
	Jitter     time.Duration
	LastOK     time.Time
}

// Record accumulates probe outcomes for a single target. Add is the
// only mutating entry point; Snapshot never observes a half-applied
// update.
type Record struct {
	mu        sync.Mutex
	attempts  int
	successes int
	samples   []time.Duration
	head      int
	window    int
	lastOK    time.Time
}

func NewRecord(window int) *Record {
	if window <= 0 {
		window = DefaultSampleWindow
	}
	return &Record{window: window}
}

// Add applies one probe result. Successful latencies enter a bounded
// ring; once the window is full the oldest sample is evicted.
func (r *Record) Add(res probe.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if !res.OK {
		return
	}
	r.successes++
	r.lastOK = res.At
	if len(r.samples) < r.window {
		r.samples = append(r.samples, res.Latency)
		return
	}
	r.samples[r.head] = res.Latency
	r.head = (r.head + 1) % r.window
}

// Snapshot computes the derived statistics over the current state.
// Jitter is the population standard deviation of retained latencies
// and is 0 with fewer than two samples.
func (r *Record) Snapshot() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := View{Attempts: r.attempts, Successes: r.successes, LastOK: r.lastOK}
	if r.attempts == 0 {
		return v
	}
	v.HasData = true
	v.LossPct = 100 * float64(r.attempts-r.successes) / float64(r.attempts)
	if len(r.samples) == 0 {
		return v
	}
	var sum float64
	for _, s := range r.samples {
		sum += float64(s)
	}
	mean := sum / float64(len(r.samples))
	v.AvgLatency = time.Duration(mean)
	if len(r.samples) < 2 {
		return v
	}
	var sq float64
	for _, s := range r.samples {
		d := float64(s) - mean
		sq += d * d
	}
	v.Jitter = time.Duration(math.Sqrt(sq / float64(len(r.samples))))
	return v
}
