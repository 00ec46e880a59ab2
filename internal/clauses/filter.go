package clauses

import "sync"

// ExportResult is the tri-state outcome of registering a locally
// produced clause, per spec §4.3 "production filter": a clause is
// ADMITTED into the local database and eligible for export, FILTERED
// because a copy was already registered (with reshareImprovedLBD set, a
// copy with an LBD no worse; without it, any copy), or DROPPED
// because the database had no room and nothing worse to evict.
type ExportResult int

const (
	Admitted ExportResult = iota
	Filtered
	Dropped
)

func (r ExportResult) String() string {
	switch r {
	case Admitted:
		return "admitted"
	case Filtered:
		return "filtered"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// clauseInfo is the bookkeeping record kept per distinct clause,
// grounded on produced_clause_filter.hpp's ClauseInfoWithLbd: the best
// LBD ever produced locally, the best LBD last shared to the cluster,
// the epoch that sharing happened in, and the bitset of local producer
// (solver thread) IDs. The original packs these into 32 bits
// (minProducedLbd:5, minSharedLbd:5, lastSharedEpoch:22) plus a
// separate producers word; since Go has no bitfields and the record is
// heap-allocated one-per-clause rather than inlined into a slot array,
// we keep it as plain fields.
type clauseInfo struct {
	minProducedLBD  int
	minSharedLBD    int
	lastSharedEpoch int
	producers       uint64 // bit i set => local solver thread i produced this clause
}

func newClauseInfo(lbd, producerID, epoch int) *clauseInfo {
	info := &clauseInfo{minProducedLBD: lbd, lastSharedEpoch: epoch}
	info.addProducer(producerID)
	return info
}

func (c *clauseInfo) addProducer(id int) {
	if id >= 0 && id < 64 {
		c.producers |= 1 << uint(id)
	}
}

// Candidate is a clause proposed for registration by a local solver.
type Candidate struct {
	Clause
	ProducerID int
	Epoch      int
}

// Store is the subset of Database the filter needs: an attempt to
// store a clause that may be rejected for lack of room.
type Store interface {
	AddClause(c Clause) bool
}

// Filter is the produced-clause filter (spec §4.3): it deduplicates
// clauses produced by local solver threads before they are handed to
// the local database for possible export, and separately governs
// whether a clause already known locally should be re-shared to the
// cluster again (e.g. because a better LBD was just found for it).
//
// Single mutex across all three size classes: contention is low (one
// registration per produced clause, batched at a coarse cadence) and a
// single lock avoids the original's per-bucket sharded-lock complexity
// while preserving the same semantics.
type Filter struct {
	mu                 sync.Mutex
	epochHorizon       int
	reshareImprovedLBD bool

	units     map[unitKey]*clauseInfo
	binaries  map[binaryKey]*clauseInfo
	large     map[string]*clauseInfo
}

// NewFilter constructs an empty filter. epochHorizon is the number of
// sharing epochs a clause must survive before it becomes eligible for
// resharing again; reshareImprovedLBD allows resharing earlier whenever
// a strictly better LBD has been produced since.
func NewFilter(epochHorizon int, reshareImprovedLBD bool) *Filter {
	return &Filter{
		epochHorizon:       epochHorizon,
		reshareImprovedLBD: reshareImprovedLBD,
		units:              make(map[unitKey]*clauseInfo),
		binaries:           make(map[binaryKey]*clauseInfo),
		large:              make(map[string]*clauseInfo),
	}
}

// TryLock, Lock and Unlock expose the filter's mutex directly so a
// caller that wants to batch several registrations atomically (as the
// worker does once per sharing round) can do so without reacquiring per
// call; TryLock mirrors the original's try_acquire_lock shared-resource
// pattern used to make export non-blocking for the solver threads.
func (f *Filter) TryLock() bool { return f.mu.TryLock() }
func (f *Filter) Lock()         { f.mu.Lock() }
func (f *Filter) Unlock()       { f.mu.Unlock() }

// TryRegisterAndInsert registers a candidate clause against the
// filter's dedup tables and, if it is new or has improved, attempts to
// store it in db. Must be called with the filter locked (by TryLock or
// Lock) to preserve the single-writer-per-key semantics the
// shared-resource policy requires.
func (f *Filter) TryRegisterAndInsert(c Candidate, db Store) ExportResult {
	switch sizeClass(len(c.Literals)) {
	case 1:
		return registerAndInsert(f.units, canonicalUnit(c.Literals), c, db, f.reshareImprovedLBD)
	case 2:
		return registerAndInsert(f.binaries, canonicalBinary(c.Literals), c, db, f.reshareImprovedLBD)
	default:
		return registerAndInsert(f.large, canonicalLarge(c.Literals), c, db, f.reshareImprovedLBD)
	}
}

// registerAndInsert mirrors produced_clause_filter.hpp's registerClause:
// a clause already contained is only let through to db.AddClause when
// reshareImprovedLBD permits admitting it on an improved LBD; otherwise
// a contained clause is always Filtered regardless of LBD.
func registerAndInsert[K comparable](m map[K]*clauseInfo, key K, c Candidate, db Store, reshareImprovedLBD bool) ExportResult {
	info, contained := m[key]
	if contained && (!reshareImprovedLBD || (info.minProducedLBD > 0 && c.LBD >= info.minProducedLBD)) {
		info.addProducer(c.ProducerID)
		return Filtered
	}
	if !db.AddClause(c.Clause) {
		if contained {
			info.addProducer(c.ProducerID)
		}
		return Dropped
	}
	if contained {
		info.minProducedLBD = c.LBD
		info.addProducer(c.ProducerID)
	} else {
		m[key] = newClauseInfo(c.LBD, c.ProducerID, c.Epoch)
	}
	return Admitted
}

// AdmitSharing decides whether a clause already registered locally may
// be (re-)shared to the rest of the cluster in the given epoch. Unknown
// clauses are always admitted (nothing to compare against).
func (f *Filter) AdmitSharing(c Clause, epoch int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch sizeClass(len(c.Literals)) {
	case 1:
		return admitSharing(f.units, canonicalUnit(c.Literals), c.LBD, epoch, f.epochHorizon, f.reshareImprovedLBD)
	case 2:
		return admitSharing(f.binaries, canonicalBinary(c.Literals), c.LBD, epoch, f.epochHorizon, f.reshareImprovedLBD)
	default:
		return admitSharing(f.large, canonicalLarge(c.Literals), c.LBD, epoch, f.epochHorizon, f.reshareImprovedLBD)
	}
}

func admitSharing[K comparable](m map[K]*clauseInfo, key K, lbd, epoch, epochHorizon int, reshareImprovedLBD bool) bool {
	info, ok := m[key]
	if !ok {
		return true
	}
	withinHorizon := info.minSharedLBD > 0 && epoch-info.lastSharedEpoch <= epochHorizon
	if withinHorizon {
		if !reshareImprovedLBD || lbd >= info.minSharedLBD {
			return false
		}
	}
	info.minSharedLBD = lbd
	info.lastSharedEpoch = epoch
	return true
}

// GetProducers returns the bitset of local solver thread IDs that have
// produced an equivalent clause, or 0 if the clause is unknown.
func (f *Filter) GetProducers(c Clause) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch sizeClass(len(c.Literals)) {
	case 1:
		if info, ok := f.units[canonicalUnit(c.Literals)]; ok {
			return info.producers
		}
	case 2:
		if info, ok := f.binaries[canonicalBinary(c.Literals)]; ok {
			return info.producers
		}
	default:
		if info, ok := f.large[canonicalLarge(c.Literals)]; ok {
			return info.producers
		}
	}
	return 0
}

// Erase forgets a clause entirely, used when the database evicts it and
// it should become eligible for re-registration from scratch.
func (f *Filter) Erase(c Clause) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch sizeClass(len(c.Literals)) {
	case 1:
		delete(f.units, canonicalUnit(c.Literals))
	case 2:
		delete(f.binaries, canonicalBinary(c.Literals))
	default:
		delete(f.large, canonicalLarge(c.Literals))
	}
}

// Size reports the total number of distinct clauses tracked.
func (f *Filter) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.units) + len(f.binaries) + len(f.large)
}
