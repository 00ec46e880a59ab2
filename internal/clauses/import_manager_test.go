package clauses

import "testing"

func TestImportManagerGatesOnRevision(t *testing.T) {
	m := NewImportManager(0, false, false, 0)
	m.SetImportedRevision(2)
	m.UpdateSolverRevision(1)
	if m.CanImport() {
		t.Fatal("expected CanImport to be false while solver lags the imported revision")
	}
	m.UpdateSolverRevision(2)
	if !m.CanImport() {
		t.Fatal("expected CanImport to be true once solver has caught up")
	}
}

func TestImportManagerDiversificationHold(t *testing.T) {
	m := NewImportManager(0, false, false, 2)
	m.SetImportedRevision(1)
	m.UpdateSolverRevision(1)
	if m.CanImport() {
		t.Fatal("expected first CanImport after a revision bump to be held")
	}
	if m.CanImport() {
		t.Fatal("expected second CanImport to still be held")
	}
	if !m.CanImport() {
		t.Fatal("expected third CanImport to pass once the hold has elapsed")
	}
}

func TestImportManagerDropsOverlongClauses(t *testing.T) {
	m := NewImportManager(2, false, false, 0)
	m.PerformImport([]Clause{{Literals: []int32{1, 2, 3}}, {Literals: []int32{4, 5}}})
	if m.Size() != 1 {
		t.Fatalf("size = %d, want 1 (the 3-literal clause should be dropped)", m.Size())
	}
}

func TestImportManagerLBDTransform(t *testing.T) {
	m := NewImportManager(0, true, true, 0)
	m.PerformImport([]Clause{{Literals: []int32{1, 2, 3}, LBD: 99}})
	drained := m.Drain()
	if len(drained) != 1 {
		t.Fatalf("drained %d, want 1", len(drained))
	}
	if drained[0].LBD != 4 {
		t.Fatalf("LBD = %d, want 4 (reset to clause length 3, then incremented)", drained[0].LBD)
	}
	if !m.Empty() {
		t.Fatal("expected manager to be empty after drain")
	}
}
