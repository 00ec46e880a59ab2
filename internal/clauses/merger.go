package clauses

// Merger performs a k-way priority merge of per-source clause buffers
// into a single byte-budgeted output, grounded on
// original_source/src/app/sat/sharing/buffer/buffer_merger.hpp. Inputs
// are expected pre-sorted ascending by (size, LBD, literals) — the same
// order a Database.Drain() produces — so the merge itself only ever
// looks at the current head of each input.
//
// Not safe for concurrent use: a Merger is a short-lived, single-round
// object constructed fresh for each sharing round by the worker that
// owns it, matching how the original treats buffer merging as a
// sequential step of the sharing pipeline rather than a standing
// service.
type Merger struct {
	byteBudget int
	rng        *splitMix64
}

// NewMerger constructs a merger with the given total output byte
// budget. seed drives only the random tie-break order among inputs of
// otherwise equal priority, so repeated merges of the same inputs don't
// always favor the same source.
func NewMerger(byteBudget int, seed uint64) *Merger {
	return &Merger{byteBudget: byteBudget, rng: newSplitMix64(seed)}
}

type mergeHead struct {
	clauses []Clause
	idx     int
}

// MergePreservingExcess merges inputs into a budget-respecting output,
// returning clauses that did not fit as excess (for rollover into the
// next round) rather than discarding them.
func (m *Merger) MergePreservingExcess(inputs [][]Clause) (merged, excess []Clause) {
	heads := make([]mergeHead, 0, len(inputs))
	for _, in := range inputs {
		if len(in) > 0 {
			heads = append(heads, mergeHead{clauses: in})
		}
	}
	m.shuffle(heads)

	budget := m.byteBudget
	for len(heads) > 0 {
		best := 0
		for i := 1; i < len(heads); i++ {
			if less(heads[i].clauses[heads[i].idx], heads[best].clauses[heads[best].idx]) {
				best = i
			}
		}
		c := heads[best].clauses[heads[best].idx]
		heads[best].idx++
		if heads[best].idx >= len(heads[best].clauses) {
			heads = append(heads[:best], heads[best+1:]...)
		}

		size := byteSize(c.Literals)
		if size <= budget {
			merged = append(merged, c)
			budget -= size
		} else {
			excess = append(excess, c)
		}
	}
	return merged, excess
}

// MergeDiscardingExcess merges inputs into the output budget and drops
// whatever doesn't fit, used when a round's unshared clauses will be
// regenerated rather than carried forward.
func (m *Merger) MergeDiscardingExcess(inputs [][]Clause) []Clause {
	merged, _ := m.MergePreservingExcess(inputs)
	return merged
}

// shuffle randomizes the initial head order so that ties among
// equal-priority clauses at the very start of a merge (before any
// advancement has broken symmetry) don't deterministically favor
// whichever input happened to be passed first.
func (m *Merger) shuffle(heads []mergeHead) {
	for i := len(heads) - 1; i > 0; i-- {
		j := m.rng.intn(i + 1)
		heads[i], heads[j] = heads[j], heads[i]
	}
}
