package clauses

import (
	"reflect"
	"testing"
)

func TestLratLineRoundTrip(t *testing.T) {
	line := LratLine{
		ID:           42,
		Literals:     []int32{1, -2, 3},
		Hints:        []int64{1, 2, 7},
		SignsOfHints: []bool{true, false, true},
	}
	data := SerializeLratLine(line)
	got, err := DeserializeLratLine(data)
	if err != nil {
		t.Fatalf("DeserializeLratLine: %v", err)
	}
	if !reflect.DeepEqual(line, got) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, line)
	}
}

func TestLratLineRoundTripEmptyHints(t *testing.T) {
	line := LratLine{ID: 1, Literals: []int32{5}}
	got, err := DeserializeLratLine(SerializeLratLine(line))
	if err != nil {
		t.Fatalf("DeserializeLratLine: %v", err)
	}
	if got.ID != line.ID || len(got.Literals) != 1 || got.Literals[0] != 5 {
		t.Fatalf("got %+v, want %+v", got, line)
	}
	if len(got.Hints) != 0 || len(got.SignsOfHints) != 0 {
		t.Fatalf("expected empty hints, got %+v", got)
	}
}

func TestDeserializeLratLineRejectsTruncation(t *testing.T) {
	if _, err := DeserializeLratLine([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for input shorter than fixed header")
	}
	line := LratLine{ID: 1, Literals: []int32{1, 2, 3}}
	data := SerializeLratLine(line)
	if _, err := DeserializeLratLine(data[:len(data)-4]); err == nil {
		t.Fatal("expected error for truncated literal region")
	}
}
