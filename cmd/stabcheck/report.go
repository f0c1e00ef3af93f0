package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/proxyutils/stabcheck/internal/app"
	"github.com/proxyutils/stabcheck/internal/rank"
	"github.com/proxyutils/stabcheck/internal/util"
)

// reportQuick prints one line per target in input order: reachability,
// first-probe latency, protocol, name.
func reportQuick(w io.Writer, rt *app.Runtime) {
	entries := rt.SnapshotAll()

	fmt.Fprintf(w, "\n--- Quick Scan Results ---\n")
	fmt.Fprintf(w, "%-8s | %-10s | %-11s | %s\n", "STATUS", "LATENCY", "PROTOCOL", "NAME")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	up := 0
	for _, e := range entries {
		name := nameWithCountry(rt, e)
		if e.View.Successes > 0 {
			up++
			fmt.Fprintf(w, "%-8s | %-10s | %-11s | %s\n",
				"UP", fmtMs(e.View.AvgLatency), e.Target.Protocol, util.Truncate(name, 40))
		} else {
			fmt.Fprintf(w, "%-8s | %-10s | %-11s | %s\n",
				"DOWN", "-", e.Target.Protocol, util.Truncate(name, 40))
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "Total: %d, UP: %d, DOWN: %d\n", len(entries), up, len(entries)-up)
}

// reportStability prints the full ranking, then the top picks with the
// original share links so the reader can copy them straight out.
func reportStability(w io.Writer, rt *app.Runtime, topN int) {
	ranked := rt.TopN(0)

	fmt.Fprintf(w, "\n--- Stability Results ---\n")
	fmt.Fprintf(w, "%-8s | %-10s | %-10s | %-11s | %s\n", "LOSS %", "AVG LAT", "JITTER", "PROTOCOL", "NAME")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, e := range ranked {
		fmt.Fprintf(w, "%-8.1f | %-10s | %-10s | %-11s | %s\n",
			e.View.LossPct, fmtMs(e.View.AvgLatency), fmtMs(e.View.Jitter),
			e.Target.Protocol, util.Truncate(nameWithCountry(rt, e), 40))
	}
	fmt.Fprintln(w, strings.Repeat("-", 100))

	top := pickTop(ranked, topN)
	if len(top) == 0 {
		fmt.Fprintf(w, "\nNo stable entries found (< 10%% packet loss).\n")
		return
	}
	fmt.Fprintf(w, "\nTop %d stable entries:\n", len(top))
	fmt.Fprintln(w, strings.Repeat("=", 100))
	for i, e := range top {
		fmt.Fprintf(w, "%d. %s\n", i+1, nameWithCountry(rt, e))
		fmt.Fprintf(w, "   Loss=%.1f%%, Latency=%s, Jitter=%s\n",
			e.View.LossPct, fmtMs(e.View.AvgLatency), fmtMs(e.View.Jitter))
		fmt.Fprintf(w, "   Link: %s\n", e.Target.RawLink)
		fmt.Fprintln(w, strings.Repeat("-", 100))
	}
}

// pickTop keeps the best n entries with unique names and under 10%
// loss. Duplicate names usually mean the same node listed twice.
func pickTop(ranked []rank.Entry, n int) []rank.Entry {
	unique := rank.DedupeByName(ranked)
	out := make([]rank.Entry, 0, n)
	for _, e := range unique {
		if e.View.LossPct >= 10 {
			continue
		}
		out = append(out, e)
		if len(out) == n {
			break
		}
	}
	return out
}

func nameWithCountry(rt *app.Runtime, e rank.Entry) string {
	if cc := rt.Country(e.Target.Host); cc != "" {
		return fmt.Sprintf("[%s] %s", cc, e.Target.DisplayName)
	}
	return e.Target.DisplayName
}

func fmtMs(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}
