package stats

import (
	"github.com/proxyutils/stabcheck/internal/link"
	"github.com/proxyutils/stabcheck/internal/probe"
)

// Board holds one Record per target. The mapping is built once before
// scheduling starts and is never structurally mutated afterwards, so
// concurrent readers need no lock beyond each record's own.
type Board struct {
	targets []*link.Target
	records map[string]*Record
}

func NewBoard(targets []*link.Target, window int) *Board {
	b := &Board{
		targets: targets,
		records: make(map[string]*Record, len(targets)),
	}
	for _, t := range targets {
		b.records[t.ID] = NewRecord(window)
	}
	return b
}

// Targets returns the target set in input order.
func (b *Board) Targets() []*link.Target { return b.targets }

func (b *Board) Record(id string) *Record { return b.records[id] }

// Add routes one result to the target's record. Unknown IDs are
// dropped; the target set is fixed for the run.
func (b *Board) Add(id string, res probe.Result) {
	if rec, ok := b.records[id]; ok {
		rec.Add(res)
	}
}
