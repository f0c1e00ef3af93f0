package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/proxyutils/stabcheck/internal/app"
	"github.com/proxyutils/stabcheck/internal/config"
	"github.com/proxyutils/stabcheck/internal/measure"
	"github.com/proxyutils/stabcheck/internal/util"
	"github.com/proxyutils/stabcheck/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			runChecker(parseRunFlags(os.Args[2:]))
			return
		case "check":
			checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
			configPath := checkCmd.String("config", "", "Path to config file")
			_ = checkCmd.Parse(os.Args[2:])
			if *configPath == "" && checkCmd.NArg() > 0 {
				*configPath = checkCmd.Arg(0)
			}
			checkConfig(*configPath)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		case "version", "-v", "--version":
			fmt.Println(version.Version)
			return
		}
	}
	runChecker(parseRunFlags(os.Args[1:]))
}

// parseRunFlags loads the config file first, then lets explicit flags
// override it. flag.Visit only sees flags the user actually set, so
// unset flags never clobber file values.
func parseRunFlags(args []string) config.Config {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	file := fs.String("file", "", "Path to links file")
	mode := fs.String("mode", "", "Check mode: quick, stable or realtime")
	duration := fs.Duration("duration", 0, "Total run time for stable mode")
	interval := fs.Duration("interval", 0, "Delay between probe rounds")
	concurrency := fs.Int("concurrency", 0, "Max in-flight probes")
	timeout := fs.Duration("timeout", 0, "Per-probe dial timeout")
	bindIP := fs.String("bind-ip", "", "Local IP to bind outgoing probes to")
	noBind := fs.Bool("no-bind", false, "Never bind probes to a local IP")
	topN := fs.Int("top", 0, "How many ranked entries to report")
	geoDB := fs.String("geoip", "", "Path to a MaxMind GeoIP database")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.LinksFile == "" {
		cfg.LinksFile = config.DefaultLinksFile
	}

	modeSet, timeoutSet := false, false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "file":
			cfg.LinksFile = *file
		case "mode":
			cfg.Mode = *mode
			modeSet = true
		case "duration":
			cfg.Duration = config.Duration(*duration)
		case "interval":
			cfg.Interval = config.Duration(*interval)
		case "concurrency":
			cfg.Concurrency = *concurrency
		case "timeout":
			cfg.Timeout = config.Duration(*timeout)
			timeoutSet = true
		case "bind-ip":
			cfg.BindIP = *bindIP
		case "no-bind":
			cfg.NoBind = *noBind
		case "top":
			cfg.TopN = *topN
		case "geoip":
			cfg.GeoDB = *geoDB
		}
	})
	// A mode override invalidates the timeout default chosen at load
	// time unless the user picked one explicitly.
	if modeSet && !timeoutSet {
		cfg.Timeout = 0
	}
	cfg.ApplyDefaults()
	if fs.NArg() > 0 && *file == "" {
		cfg.LinksFile = fs.Arg(0)
	}
	return cfg
}

func runChecker(cfg config.Config) {
	logger := util.NewLogger()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if limit, err := util.RaiseFileLimit(); err != nil {
		logger.Warn("could not raise file descriptor limit", "error", err)
	} else if limit > 0 {
		logger.Debug("file descriptor limit", "limit", limit)
	}

	lines, err := readLines(cfg.LinksFile)
	if err != nil {
		logger.Error("reading links file", "path", cfg.LinksFile, "error", err)
		os.Exit(1)
	}

	rt, err := app.NewRuntime(app.Options{Config: cfg, Lines: lines, Logger: logger})
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
	if rt.State() == measure.StateInterrupted {
		logger.Info("run interrupted, reporting partial results")
	}

	switch measure.Mode(cfg.Mode) {
	case measure.ModeQuick:
		reportQuick(os.Stdout, rt)
	case measure.ModeStable:
		reportStability(os.Stdout, rt, cfg.TopN)
	case measure.ModeRealtime:
		reportStability(os.Stdout, rt, cfg.TopN)
	}
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}

func checkConfig(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("config valid: mode=%s links_file=%s concurrency=%d\n", cfg.Mode, cfg.LinksFile, cfg.Concurrency)
}

func printHelp() {
	fmt.Print(`stabcheck - proxy link stability checker

Usage:
  stabcheck run [flags]            Run a check (default command)
  stabcheck check --config <path>  Validate config file
  stabcheck help                   Show this help
  stabcheck version                Print version

Run flags:
  --config <path>       YAML config file
  --file <path>         Links file (default links.txt)
  --mode <m>            quick, stable or realtime (default quick)
  --duration <d>        Stable mode run time (default 30s)
  --interval <d>        Delay between rounds (default 1s)
  --concurrency <n>     Max in-flight probes (default 50)
  --timeout <d>         Per-probe dial timeout
  --bind-ip <ip>        Bind outgoing probes to a local IP
  --no-bind             Never bind to a local IP
  --top <n>             Ranked entries to report (default 5)
  --geoip <path>        MaxMind GeoIP database for country tags

Legacy:
  stabcheck <links-path>
`)
}
