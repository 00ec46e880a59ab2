package clauses

import (
	"math"
	"sync"
)

// LiteralBudget computes a per-solver import literal budget from the
// clause base buffer size, grounded on
// original_source/src/app/sat/sharing/generic_import_manager.hpp's
// budget derivation: at least minChunks worth of the base buffer, or
// enough to cover the anticipated import volume over
// numBufferedGenerations rounds, whichever is larger.
func LiteralBudget(baseBufferSize, minChunks, numBufferedGenerations int, anticipatedLiteralsPerCycle float64) int {
	chunks := minChunks
	if baseBufferSize > 0 {
		if alt := int(math.Ceil(float64(numBufferedGenerations) * anticipatedLiteralsPerCycle / float64(baseBufferSize))); alt > chunks {
			chunks = alt
		}
	}
	return baseBufferSize * chunks
}

// ImportManager buffers clauses imported from the cluster for a single
// solver engine, gating delivery on the solver having caught up to the
// revision the clauses were imported under and on a diversification
// hold after a new revision begins (spec §4.3 "generic import
// manager"). Grounded on generic_import_manager.hpp's
// GenericImportManager.
type ImportManager struct {
	mu sync.Mutex

	maxClauseLength int
	resetLBD        bool
	incrementLBD    bool

	diversificationBlocks    int
	diversificationRemaining int

	importedRevision int
	solverRevision   int

	pending []Clause
}

// NewImportManager constructs an import manager for one solver engine.
// maxClauseLength of 0 means unbounded. diversificationBlocks is the
// number of CanImport calls to suppress delivery for after a
// revision bump, letting solver engines diversify before converging on
// shared clauses again.
func NewImportManager(maxClauseLength int, resetLBD, incrementLBD bool, diversificationBlocks int) *ImportManager {
	return &ImportManager{
		maxClauseLength:       maxClauseLength,
		resetLBD:              resetLBD,
		incrementLBD:          incrementLBD,
		diversificationBlocks: diversificationBlocks,
	}
}

// SetImportedRevision records the revision under which newly arriving
// clauses were produced.
func (m *ImportManager) SetImportedRevision(rev int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rev != m.importedRevision {
		m.diversificationRemaining = m.diversificationBlocks
	}
	m.importedRevision = rev
}

// UpdateSolverRevision records the revision the solver engine has
// actually caught up to.
func (m *ImportManager) UpdateSolverRevision(rev int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.solverRevision = rev
}

// CanImport reports whether clauses may currently be delivered to the
// solver: it must have caught up to the imported revision, and any
// post-revision diversification hold must have elapsed.
func (m *ImportManager) CanImport() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.solverRevision < m.importedRevision {
		return false
	}
	if m.diversificationRemaining > 0 {
		m.diversificationRemaining--
		return false
	}
	return true
}

// PerformImport enqueues clauses for later delivery, applying the
// configured LBD transform and dropping any that exceed the configured
// max clause length.
func (m *ImportManager) PerformImport(cs []Clause) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cs {
		if m.maxClauseLength > 0 && len(c.Literals) > m.maxClauseLength {
			continue
		}
		m.pending = append(m.pending, m.transform(c))
	}
}

func (m *ImportManager) transform(c Clause) Clause {
	out := c.clone()
	if m.resetLBD {
		out.LBD = len(out.Literals)
	}
	if m.incrementLBD {
		out.LBD++
	}
	return out
}

// Empty reports whether there are no clauses queued for delivery.
func (m *ImportManager) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) == 0
}

// Size returns the number of clauses currently queued.
func (m *ImportManager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Drain removes and returns every queued clause.
func (m *ImportManager) Drain() []Clause {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}
