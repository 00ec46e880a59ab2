package clauses

import "sync"

// slotKey groups clauses of identical literal count and LBD, the same
// granularity the original adaptive clause database slots on before
// deciding how many bytes of the shared budget each size/quality
// combination gets.
type slotKey struct {
	size int
	lbd  int
}

// quality orders slots from best (small, low LBD) to worst; lower is
// better. Used both to pick an eviction candidate and to decide whether
// an incoming clause is worth the eviction at all.
func quality(k slotKey) int { return k.size*64 + k.lbd }

// Database is a byte-budgeted store of produced clauses, slotted by
// (size, LBD) and evicting from the worst-quality non-empty slot when a
// better clause needs room (spec §4.3 "adaptive clause database").
// Grounded on the produced-clause filter's Database collaborator and
// the original's AdaptiveClauseDatabase budget-rebalancing description;
// the C++ version additionally rebalances per-slot sub-budgets over
// time by production-rate feedback, which we approximate with a single
// shared budget and strict quality-ordered eviction, since the worker
// has no steady-state production-rate signal to feed a more elaborate
// rebalancer.
type Database struct {
	mu         sync.Mutex
	byteBudget int
	bytesUsed  int
	slots      map[slotKey][]Clause
	onEvict    func(Clause)
}

// NewDatabase constructs a database with the given total byte budget.
// onEvict, if non-nil, is invoked (without the database lock held) for
// every clause evicted to make room, so a caller can also erase the
// clause from a Filter.
func NewDatabase(byteBudget int, onEvict func(Clause)) *Database {
	return &Database{
		byteBudget: byteBudget,
		slots:      make(map[slotKey][]Clause),
		onEvict:    onEvict,
	}
}

// AddClause stores c, evicting worse-quality clauses if necessary to
// make room. Returns false if c itself is no better than the worst
// clause currently held and there is no room for it.
func (db *Database) AddClause(c Clause) bool {
	key := slotKey{size: len(c.Literals), lbd: c.LBD}
	need := byteSize(c.Literals)

	var evicted []Clause
	db.mu.Lock()
	for db.bytesUsed+need > db.byteBudget {
		worst, ok := db.worstSlotLocked()
		if !ok || quality(worst) <= quality(key) {
			db.mu.Unlock()
			for _, e := range evicted {
				if db.onEvict != nil {
					db.onEvict(e)
				}
			}
			return false
		}
		evicted = append(evicted, db.evictOneLocked(worst))
	}
	db.slots[key] = append(db.slots[key], c.clone())
	db.bytesUsed += need
	db.mu.Unlock()

	for _, e := range evicted {
		if db.onEvict != nil {
			db.onEvict(e)
		}
	}
	return true
}

func (db *Database) worstSlotLocked() (slotKey, bool) {
	var worst slotKey
	found := false
	for k, v := range db.slots {
		if len(v) == 0 {
			continue
		}
		if !found || quality(k) > quality(worst) {
			worst, found = k, true
		}
	}
	return worst, found
}

func (db *Database) evictOneLocked(key slotKey) Clause {
	v := db.slots[key]
	evicted := v[0]
	db.slots[key] = v[1:]
	db.bytesUsed -= byteSize(evicted.Literals)
	return evicted
}

// Drain removes and returns every clause currently held, sorted
// ascending by (size, LBD) as the buffer merger's inputs expect.
func (db *Database) Drain() []Clause {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []Clause
	for k, v := range db.slots {
		out = append(out, v...)
		delete(db.slots, k)
	}
	db.bytesUsed = 0
	insertionSort(out)
	return out
}

// Len reports how many clauses are currently held.
func (db *Database) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, v := range db.slots {
		n += len(v)
	}
	return n
}

// insertionSort orders clauses by the shared less() total order;
// insertion sort because drained batches are small and already
// near-sorted within each slot.
func insertionSort(cs []Clause) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && less(cs[j], cs[j-1]); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}
