package rank

import "time"

// NetworkStatus is the headline quality classification a live view
// derives from the best-ranked targets.
type NetworkStatus string

const (
	StatusCalculating NetworkStatus = "calculating"
	StatusExcellent   NetworkStatus = "excellent"
	StatusGood        NetworkStatus = "good"
	StatusUnstable    NetworkStatus = "unstable"
	StatusCritical    NetworkStatus = "critical"
)

const (
	healthSample     = 5
	warmupSuccesses  = 2
	lossExcellentPct = 10
	lossCriticalPct  = 50
	jitterExcellent  = 50 * time.Millisecond
	jitterGood       = 200 * time.Millisecond
)

// Health classifies overall network quality from a ranked entry list
// (as produced by TopN). It looks at the best five reachable targets:
// if even those are lossy, the uplink is the problem, not one server.
func Health(ranked []Entry) NetworkStatus {
	if len(ranked) == 0 {
		return StatusCalculating
	}
	sample := make([]Entry, 0, healthSample)
	for _, e := range ranked {
		if e.View.LossPct >= 100 {
			continue
		}
		sample = append(sample, e)
		if len(sample) == healthSample {
			break
		}
	}
	if len(sample) == 0 {
		return StatusCritical
	}
	warming := true
	var lossSum float64
	var jitterSum time.Duration
	for _, e := range sample {
		lossSum += e.View.LossPct
		jitterSum += e.View.Jitter
		if e.View.Successes >= warmupSuccesses {
			warming = false
		}
	}
	if warming {
		return StatusCalculating
	}
	avgLoss := lossSum / float64(len(sample))
	avgJitter := jitterSum / time.Duration(len(sample))
	switch {
	case avgLoss < lossExcellentPct && avgJitter < jitterExcellent:
		return StatusExcellent
	case avgLoss < lossExcellentPct && avgJitter < jitterGood:
		return StatusGood
	case avgLoss < lossCriticalPct:
		return StatusUnstable
	default:
		return StatusCritical
	}
}
