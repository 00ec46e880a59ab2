package clauses

import "testing"

type fakeStore struct {
	accept bool
	added  []Clause
}

func (s *fakeStore) AddClause(c Clause) bool {
	if s.accept {
		s.added = append(s.added, c)
	}
	return s.accept
}

func TestFilterDeduplicatesAcrossSizeClasses(t *testing.T) {
	f := NewFilter(10, true)
	store := &fakeStore{accept: true}

	r := f.TryRegisterAndInsert(Candidate{Clause: Clause{Literals: []int32{1}, LBD: 1}, ProducerID: 0}, store)
	if r != Admitted {
		t.Fatalf("first unit clause: got %v, want Admitted", r)
	}
	r = f.TryRegisterAndInsert(Candidate{Clause: Clause{Literals: []int32{1}, LBD: 3}, ProducerID: 1}, store)
	if r != Filtered {
		t.Fatalf("worse duplicate unit clause: got %v, want Filtered", r)
	}
	if got := f.GetProducers(Clause{Literals: []int32{1}}); got != 0b11 {
		t.Fatalf("producers = %b, want 0b11", got)
	}

	// A binary clause with the same first literal must not collide with
	// the unit clause's key.
	r = f.TryRegisterAndInsert(Candidate{Clause: Clause{Literals: []int32{1, 2}, LBD: 2}}, store)
	if r != Admitted {
		t.Fatalf("binary clause distinct from unit: got %v, want Admitted", r)
	}

	// Binary clauses are symmetric.
	r = f.TryRegisterAndInsert(Candidate{Clause: Clause{Literals: []int32{2, 1}, LBD: 5}}, store)
	if r != Filtered {
		t.Fatalf("reordered binary duplicate: got %v, want Filtered", r)
	}
}

func TestFilterAdmitsImprovedLBDEvenWithinHorizon(t *testing.T) {
	f := NewFilter(100, true)
	store := &fakeStore{accept: true}
	f.TryRegisterAndInsert(Candidate{Clause: Clause{Literals: []int32{1}, LBD: 5}}, store)

	if !f.AdmitSharing(Clause{Literals: []int32{1}, LBD: 5}, 1) {
		t.Fatal("first share should be admitted")
	}
	if f.AdmitSharing(Clause{Literals: []int32{1}, LBD: 5}, 2) {
		t.Fatal("resharing the same LBD within the horizon should be denied")
	}
	if !f.AdmitSharing(Clause{Literals: []int32{1}, LBD: 2}, 2) {
		t.Fatal("resharing a strictly better LBD should be admitted")
	}
}

func TestFilterWithoutReshareImprovedLBDFiltersEvenOnImprovement(t *testing.T) {
	f := NewFilter(10, false)
	store := &fakeStore{accept: true}

	r := f.TryRegisterAndInsert(Candidate{Clause: Clause{Literals: []int32{1}, LBD: 5}}, store)
	if r != Admitted {
		t.Fatalf("first unit clause: got %v, want Admitted", r)
	}
	r = f.TryRegisterAndInsert(Candidate{Clause: Clause{Literals: []int32{1}, LBD: 1}}, store)
	if r != Filtered {
		t.Fatalf("improved duplicate with reshareImprovedLBD=false: got %v, want Filtered", r)
	}
	if len(store.added) != 1 {
		t.Fatalf("db.AddClause called %d times, want 1 (improved duplicate must not reach the store)", len(store.added))
	}
}

func TestFilterDropsWhenStoreRejects(t *testing.T) {
	f := NewFilter(10, true)
	store := &fakeStore{accept: false}
	r := f.TryRegisterAndInsert(Candidate{Clause: Clause{Literals: []int32{9}, LBD: 1}}, store)
	if r != Dropped {
		t.Fatalf("got %v, want Dropped", r)
	}
}

func TestFilterEraseForgetsClause(t *testing.T) {
	f := NewFilter(10, true)
	store := &fakeStore{accept: true}
	f.TryRegisterAndInsert(Candidate{Clause: Clause{Literals: []int32{4, 5, 6}, LBD: 2}}, store)
	if f.Size() != 1 {
		t.Fatalf("size = %d, want 1", f.Size())
	}
	f.Erase(Clause{Literals: []int32{4, 5, 6}})
	if f.Size() != 0 {
		t.Fatalf("size after erase = %d, want 0", f.Size())
	}
}
