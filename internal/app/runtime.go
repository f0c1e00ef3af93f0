package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/proxyutils/stabcheck/internal/bindcheck"
	"github.com/proxyutils/stabcheck/internal/config"
	"github.com/proxyutils/stabcheck/internal/control"
	"github.com/proxyutils/stabcheck/internal/geo"
	"github.com/proxyutils/stabcheck/internal/health"
	"github.com/proxyutils/stabcheck/internal/link"
	"github.com/proxyutils/stabcheck/internal/measure"
	"github.com/proxyutils/stabcheck/internal/probe"
	"github.com/proxyutils/stabcheck/internal/rank"
	"github.com/proxyutils/stabcheck/internal/stats"
	"github.com/proxyutils/stabcheck/internal/util"
)

// Options carries everything a run needs. Lines come from the input
// collaborator (usually a file read by the CLI); the core never does
// file I/O itself.
type Options struct {
	Config config.Config
	Lines  []string
	Logger util.Logger
	// ProbeFn overrides the real dialer; tests use it to run the full
	// pipeline without touching the network.
	ProbeFn measure.ProbeFunc
}

// Runtime owns the wired measurement pipeline for one run.
type Runtime struct {
	cfg     config.Config
	logger  util.Logger
	board   *stats.Board
	runner  *measure.Runner
	control *control.Server
	uplink  *health.Checker
	geodb   *geo.Resolver
	targets []*link.Target
	skipped int
}

// NewRuntime parses the input lines and wires the pipeline. Invalid
// lines are counted and skipped, never fatal; an input with no usable
// links is.
func NewRuntime(opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = util.NewLogger()
	}

	targets, skipped := link.ParseAll(opts.Lines)
	if skipped > 0 {
		logger.Warn("skipped invalid lines", "count", skipped)
	}
	if len(targets) == 0 {
		return nil, errors.New("app: no usable links in input")
	}
	logger.Info("loaded targets", "count", len(targets), "mode", cfg.Mode)

	bindIP := cfg.ParsedBindIP()
	if bindIP != nil {
		if err := bindcheck.Verify(bindIP); err != nil {
			// Reported once up front; the run continues unbound rather
			// than failing every probe.
			logger.Warn("bind address not usable, continuing unbound", "bind_ip", bindIP.String(), "error", err)
			bindIP = nil
		} else {
			logger.Info("probes bound to local address", "bind_ip", bindIP.String())
		}
	}

	board := stats.NewBoard(targets, cfg.SampleWindow)

	probeFn := opts.ProbeFn
	if probeFn == nil {
		dialer := &probe.Dialer{Timeout: cfg.Timeout.Duration(), BindIP: bindIP}
		probeFn = dialer.Probe
	}

	rt := &Runtime{
		cfg:     cfg,
		logger:  logger,
		board:   board,
		targets: targets,
		skipped: skipped,
	}

	if cfg.GeoDB != "" {
		geodb, err := geo.Open(cfg.GeoDB)
		if err != nil {
			logger.Warn("geoip database unavailable", "path", cfg.GeoDB, "error", err)
		} else {
			rt.geodb = geodb
		}
	}

	mode := measure.Mode(cfg.Mode)
	var onRound func()
	if mode == measure.ModeRealtime {
		if cfg.Health.IsEnabled() {
			rt.uplink = health.NewChecker(cfg.Health.Host, cfg.Health.Timeout.Duration(), logger)
		}
		if cfg.Control.IsEnabled() {
			rt.control = control.NewServer(cfg.Control, board, rt.uplink, rt.geodb, cfg.TopN, logger)
			onRound = rt.control.PublishRound
		}
	}

	rt.runner = measure.NewRunner(measure.Config{
		Mode:        mode,
		Duration:    cfg.Duration.Duration(),
		Interval:    cfg.Interval.Duration(),
		Concurrency: cfg.Concurrency,
	}, board, probeFn, onRound, logger)

	return rt, nil
}

// Run executes the configured mode to completion or cancellation.
func (r *Runtime) Run(ctx context.Context) error {
	if r.uplink != nil {
		go r.uplink.Watch(ctx, r.cfg.Health.Interval.Duration())
	}
	if r.control != nil {
		if err := r.control.Start(ctx); err != nil {
			return fmt.Errorf("app: control server: %w", err)
		}
	}
	return r.runner.Run(ctx)
}

// Close releases run-scoped resources.
func (r *Runtime) Close() {
	if r.geodb != nil {
		_ = r.geodb.Close()
	}
}

func (r *Runtime) Board() *stats.Board { return r.board }

func (r *Runtime) Targets() []*link.Target { return r.targets }

// Skipped reports how many input lines failed to parse.
func (r *Runtime) Skipped() int { return r.skipped }

func (r *Runtime) State() measure.State { return r.runner.State() }

// Country returns the geo annotation for a host, "" without a geo db.
func (r *Runtime) Country(host string) string {
	if r.geodb == nil {
		return ""
	}
	return r.geodb.Country(host)
}

// TopN is a convenience over the board for the CLI reporter.
func (r *Runtime) TopN(n int) []rank.Entry { return rank.TopN(r.board, n) }

// SnapshotAll returns every target's current view in input order.
func (r *Runtime) SnapshotAll() []rank.Entry { return rank.SnapshotAll(r.board) }
