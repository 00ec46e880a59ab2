package clauses

import (
	"encoding/binary"

	"github.com/grailbio/base/errors"
)

// LratLine is one line of an LRAT proof: a clause derivation with its
// hint clause IDs (the antecedents used to derive it by resolution) and
// a sign per hint distinguishing RUP hints from RAT hints, grounded on
// original_source/src/app/sat/proof/serialized_lrat_line.hpp. IDs are
// modeled as 64-bit since proof traces from long-running portfolios can
// exceed 32-bit clause counts.
type LratLine struct {
	ID           int64
	Literals     []int32
	Hints        []int64
	SignsOfHints []bool
}

// wireSize returns the exact byte length SerializeLratLine produces for
// a line with n literals and h hints.
func wireSize(n, h int) int {
	return 8 + 4 + 4*n + 4 + 8*h + h
}

// SerializeLratLine packs a line into the fixed binary layout the
// original uses for its wire/on-disk LRAT lines: an 8-byte ID, a
// 4-byte literal count, the literals, a 4-byte hint count, the hint
// IDs, and one sign byte per hint.
func SerializeLratLine(line LratLine) []byte {
	n, h := len(line.Literals), len(line.Hints)
	buf := make([]byte, wireSize(n, h))
	i := 0
	binary.LittleEndian.PutUint64(buf[i:], uint64(line.ID))
	i += 8
	binary.LittleEndian.PutUint32(buf[i:], uint32(n))
	i += 4
	for _, lit := range line.Literals {
		binary.LittleEndian.PutUint32(buf[i:], uint32(lit))
		i += 4
	}
	binary.LittleEndian.PutUint32(buf[i:], uint32(h))
	i += 4
	for _, hint := range line.Hints {
		binary.LittleEndian.PutUint64(buf[i:], uint64(hint))
		i += 8
	}
	for _, sign := range line.SignsOfHints {
		if sign {
			buf[i] = 1
		}
		i++
	}
	return buf
}

// DeserializeLratLine is the inverse of SerializeLratLine. It rejects
// truncated input rather than panicking, since proof lines cross a
// subprocess/network boundary and a malformed line must not crash the
// reader.
func DeserializeLratLine(data []byte) (LratLine, error) {
	if len(data) < 12 {
		return LratLine{}, errors.E(errors.Invalid, "clauses: lrat line shorter than fixed header")
	}
	i := 0
	id := int64(binary.LittleEndian.Uint64(data[i:]))
	i += 8
	n := int(binary.LittleEndian.Uint32(data[i:]))
	i += 4
	if n < 0 || i+4*n+4 > len(data) {
		return LratLine{}, errors.E(errors.Invalid, "clauses: lrat line truncated in literal region")
	}
	literals := make([]int32, n)
	for k := range literals {
		literals[k] = int32(binary.LittleEndian.Uint32(data[i:]))
		i += 4
	}
	h := int(binary.LittleEndian.Uint32(data[i:]))
	i += 4
	if h < 0 || i+8*h+h > len(data) {
		return LratLine{}, errors.E(errors.Invalid, "clauses: lrat line truncated in hint region")
	}
	hints := make([]int64, h)
	for k := range hints {
		hints[k] = int64(binary.LittleEndian.Uint64(data[i:]))
		i += 8
	}
	signs := make([]bool, h)
	for k := range signs {
		signs[k] = data[i] != 0
		i++
	}
	return LratLine{ID: id, Literals: literals, Hints: hints, SignsOfHints: signs}, nil
}
