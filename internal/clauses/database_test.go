package clauses

import "testing"

func TestDatabaseEvictsWorseQualityForBetterClause(t *testing.T) {
	var evicted []Clause
	db := NewDatabase(byteSize([]int32{1, 2, 3, 4, 5}), func(c Clause) { evicted = append(evicted, c) })

	// Fill the budget with one mediocre 5-literal, high-LBD clause.
	if !db.AddClause(Clause{Literals: []int32{1, 2, 3, 4, 5}, LBD: 10}) {
		t.Fatal("expected initial clause to fit")
	}
	if db.Len() != 1 {
		t.Fatalf("len = %d, want 1", db.Len())
	}

	// A unit clause is strictly better quality; it must evict to fit.
	if !db.AddClause(Clause{Literals: []int32{7}, LBD: 1}) {
		t.Fatal("expected better clause to evict and fit")
	}
	if len(evicted) != 1 || len(evicted[0].Literals) != 5 {
		t.Fatalf("evicted = %+v, want the 5-literal clause", evicted)
	}
}

func TestDatabaseRejectsWorseThanWorstHeld(t *testing.T) {
	db := NewDatabase(byteSize([]int32{1}), nil)
	if !db.AddClause(Clause{Literals: []int32{1}, LBD: 1}) {
		t.Fatal("expected unit clause to fit in its own budget")
	}
	if db.AddClause(Clause{Literals: []int32{1, 2, 3}, LBD: 9}) {
		t.Fatal("expected a worse, larger clause to be rejected rather than evict a better one")
	}
}

func TestDatabaseDrainIsSortedAndClears(t *testing.T) {
	db := NewDatabase(1<<20, nil)
	db.AddClause(Clause{Literals: []int32{1, 2, 3}, LBD: 3})
	db.AddClause(Clause{Literals: []int32{9}, LBD: 1})
	db.AddClause(Clause{Literals: []int32{1, 2}, LBD: 1})

	drained := db.Drain()
	if len(drained) != 3 {
		t.Fatalf("drained %d clauses, want 3", len(drained))
	}
	for i := 1; i < len(drained); i++ {
		if less(drained[i], drained[i-1]) {
			t.Fatalf("drain not sorted: %+v before %+v", drained[i-1], drained[i])
		}
	}
	if db.Len() != 0 {
		t.Fatalf("len after drain = %d, want 0", db.Len())
	}
}
