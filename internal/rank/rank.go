package rank

import (
	"sort"

	"github.com/proxyutils/stabcheck/internal/link"
	"github.com/proxyutils/stabcheck/internal/stats"
)

// Entry pairs a target with a point-in-time view of its statistics.
type Entry struct {
	Target *link.Target
	View   stats.View
}

// SnapshotAll returns every target in input order with its current
// view, including targets that have no data yet. The live view shows
// these; TopN does not.
func SnapshotAll(board *stats.Board) []Entry {
	targets := board.Targets()
	entries := make([]Entry, 0, len(targets))
	for _, t := range targets {
		entries = append(entries, Entry{Target: t, View: board.Record(t.ID).Snapshot()})
	}
	return entries
}

// TopN ranks every target that has at least one recorded attempt and
// returns the best n; n <= 0 returns the full ranking. Sort keys:
// packet loss ascending, then jitter, then average latency, then
// original input order, so identical statistics never reorder between
// calls.
func TopN(board *stats.Board, n int) []Entry {
	all := SnapshotAll(board)
	ranked := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.View.HasData {
			ranked = append(ranked, e)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func less(a, b Entry) bool {
	if a.View.LossPct != b.View.LossPct {
		return a.View.LossPct < b.View.LossPct
	}
	if a.View.Jitter != b.View.Jitter {
		return a.View.Jitter < b.View.Jitter
	}
	if a.View.AvgLatency != b.View.AvgLatency {
		return a.View.AvgLatency < b.View.AvgLatency
	}
	return a.Target.Index < b.Target.Index
}

// DedupeByName keeps the best-ranked entry for each display name.
// Subscription lists repeat the same server under one remark often
// enough that a top-5 without this is all duplicates.
func DedupeByName(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Target.DisplayName]; ok {
			continue
		}
		seen[e.Target.DisplayName] = struct{}{}
		out = append(out, e)
	}
	return out
}
