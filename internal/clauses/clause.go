// Package clauses implements the clause-exchange core (spec §4.3):
// production filtering, an adaptive byte-budgeted clause database, a
// k-way buffer merger, a per-solver import manager, a deterministic
// synchronizer for bit-identical replay, and the LRAT line codec used
// by proof-producing solvers.
//
// Grounded on original_source/src/app/sat/sharing/{filter,buffer}/*.hpp
// and original_source/src/app/sat/proof/serialized_lrat_line.hpp.
package clauses

import "encoding/binary"

// Clause is a produced or imported clause: its literals (DIMACS
// convention, no trailing 0) and glue-clause LBD score.
type Clause struct {
	Literals []int32
	LBD      int
}

func (c Clause) clone() Clause {
	return Clause{Literals: append([]int32(nil), c.Literals...), LBD: c.LBD}
}

// byteSize estimates the wire footprint of a clause once serialized
// into a shared export buffer: one header word (encoding size+LBD) plus
// one word per literal, mirroring clause_metadata's fixed packing.
func byteSize(literals []int32) int {
	return 4 * (1 + len(literals))
}

// unitKey and binaryKey cover two of the three canonical-form families
// the original produced-clause filter specializes on: unit and binary
// clauses get dedicated fixed-size keys (spec: "size classes: unit,
// binary, large"), large clauses fall back to a packed string key
// built by canonicalLarge.
type unitKey int32

type binaryKey struct{ lo, hi int32 }

func canonicalUnit(literals []int32) unitKey {
	return unitKey(literals[0])
}

// canonicalBinary is symmetric in the two literals: {a,b} and {b,a}
// denote the same clause.
func canonicalBinary(literals []int32) binaryKey {
	a, b := literals[0], literals[1]
	if a > b {
		a, b = b, a
	}
	return binaryKey{lo: a, hi: b}
}

// canonicalLarge keys on the literal sequence exactly as produced: large
// clauses are deduplicated only when byte-identical, not up to
// reordering, which matches how the original filter's large-clause hash
// map is populated directly from the wire buffer slice.
func canonicalLarge(literals []int32) string {
	buf := make([]byte, 4*len(literals))
	for i, l := range literals {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(l))
	}
	return string(buf)
}

// sizeClass buckets a clause by literal count for use in both the
// filter's three maps and the adaptive database's slotting.
func sizeClass(n int) int {
	switch {
	case n <= 1:
		return 1
	case n == 2:
		return 2
	default:
		return n
	}
}

// less implements the merge order the buffer merger and database slots
// agree on: fewer literals first, then lower LBD, then lexicographic on
// literals so the ordering is total and deterministic.
func less(a, b Clause) bool {
	if len(a.Literals) != len(b.Literals) {
		return len(a.Literals) < len(b.Literals)
	}
	if a.LBD != b.LBD {
		return a.LBD < b.LBD
	}
	for i := range a.Literals {
		if i >= len(b.Literals) {
			return false
		}
		if a.Literals[i] != b.Literals[i] {
			return a.Literals[i] < b.Literals[i]
		}
	}
	return false
}
