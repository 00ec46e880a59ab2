package subprocess

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func withTempShmDir(t *testing.T) {
	t.Helper()
	old := shmDir
	shmDir = t.TempDir()
	t.Cleanup(func() { shmDir = old })
}

func TestNewAdapterCreatesAndFreesRegions(t *testing.T) {
	withTempShmDir(t)

	cfg := AttemptConfig{
		ID:                   "job42",
		PortfolioRank:        0,
		PortfolioSize:        1,
		Formulae:             [][]int32{{1, -2, 0, 2, 3, 0}},
		Assumptions:          []int32{5, -5},
		ClauseBufferBaseSize: 8,
		ClusterSize:          2,
		SolverBinaryPath:     "/bin/true",
	}
	a, err := NewAdapter(cfg)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}

	for _, name := range []string{"job42", "job42.formulae.0", "job42.assumptions", "job42.clauseexport", "job42.clauseimport"} {
		if _, err := os.Stat(filepath.Join(shmDir, name)); err != nil {
			t.Errorf("expected region %s to exist: %v", name, err)
		}
	}

	if err := a.FreeSharedMemory(); err != nil {
		t.Fatalf("FreeSharedMemory: %v", err)
	}
	for _, name := range []string{"job42", "job42.formulae.0", "job42.assumptions", "job42.clauseexport", "job42.clauseimport"} {
		if _, err := os.Stat(filepath.Join(shmDir, name)); !os.IsNotExist(err) {
			t.Errorf("expected region %s to be unlinked, stat err=%v", name, err)
		}
	}
}

func TestControlRecordFlagsAreSingleWriterSingleReader(t *testing.T) {
	withTempShmDir(t)
	cfg := AttemptConfig{ID: "job1", ClauseBufferBaseSize: 4, ClusterSize: 1, SolverBinaryPath: "/bin/true"}
	a, err := NewAdapter(cfg)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	defer a.FreeSharedMemory()

	if a.HasCollectedClauses() {
		t.Fatal("expected no clauses collected yet")
	}
	a.CollectClauses(4)
	if !a.control.DoExport() {
		t.Fatal("expected doExport to be set")
	}

	// Simulate the child: write 2 literals and flip didExport.
	writeInt32s(a.exportRegion.Bytes(), []int32{7, -7})
	a.control.SetExportBufferTrueSize(2)
	a.control.SetDidExport(true)

	if !a.HasCollectedClauses() {
		t.Fatal("expected HasCollectedClauses to observe didExport")
	}
	clauses := a.GetCollectedClauses()
	if len(clauses) != 2 || clauses[0] != 7 || clauses[1] != -7 {
		t.Fatalf("got %v, want [7 -7]", clauses)
	}
	if a.control.DoExport() {
		t.Fatal("expected GetCollectedClauses to clear doExport")
	}
}

func TestDigestClausesRejectsOversizedPayload(t *testing.T) {
	withTempShmDir(t)
	cfg := AttemptConfig{ID: "job2", ClauseBufferBaseSize: 2, ClusterSize: 1, SolverBinaryPath: "/bin/true"}
	a, err := NewAdapter(cfg)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	defer a.FreeSharedMemory()

	huge := make([]int32, 1000)
	if err := a.DigestClauses(huge); err == nil {
		t.Fatal("expected error for oversized import payload")
	}

	ok := []int32{1, 2}
	if err := a.DigestClauses(ok); err != nil {
		t.Fatalf("DigestClauses: %v", err)
	}
	if !a.control.DoImport() {
		t.Fatal("expected doImport to be set")
	}
}

func TestSetSolvingStateIsIdempotent(t *testing.T) {
	withTempShmDir(t)
	cfg := AttemptConfig{ID: "job3", ClauseBufferBaseSize: 2, ClusterSize: 1, SolverBinaryPath: "/bin/true"}
	a, err := NewAdapter(cfg)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	defer a.FreeSharedMemory()

	if err := a.SetSolvingState(StateInitializing); err != nil {
		t.Fatalf("SetSolvingState: %v", err)
	}
	if a.state != StateInitializing {
		t.Fatalf("state = %v, want initializing", a.state)
	}

	// standby with no running child just records the flag, no signal sent.
	if err := a.SetSolvingState(StateStandby); err != nil {
		t.Fatalf("SetSolvingState: %v", err)
	}
	if !a.control.DoInterrupt() {
		t.Fatal("expected doInterrupt to be set on transition to standby")
	}
}

func TestRunAndTerminateRealProcess(t *testing.T) {
	if _, err := os.Stat("/bin/sleep"); err != nil {
		t.Skip("/bin/sleep not available")
	}
	withTempShmDir(t)
	cfg := AttemptConfig{
		ID:                   "30", // argv[1] to sleep: sleep 30s
		ClauseBufferBaseSize: 2,
		ClusterSize:          1,
		SolverBinaryPath:     "/bin/sleep",
		TerminationGrace:     200 * time.Millisecond,
	}
	a, err := NewAdapter(cfg)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := a.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	select {
	case <-a.exited:
	default:
		t.Fatal("expected child to have been reaped after Terminate")
	}
}

func TestAppendRevisionsPublishesInOrder(t *testing.T) {
	withTempShmDir(t)
	cfg := AttemptConfig{ID: "job4", ClauseBufferBaseSize: 2, ClusterSize: 1, SolverBinaryPath: "/bin/true"}
	a, err := NewAdapter(cfg)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	defer a.FreeSharedMemory()

	a.AppendRevisions([]RevisionData{
		{Revision: 1, Formula: []int32{1, 0}},
		{Revision: 2, Formula: []int32{2, 0}},
	}, 2)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.WrittenRevision() == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := a.WrittenRevision(); got != 2 {
		t.Fatalf("WrittenRevision = %d, want 2", got)
	}
}
