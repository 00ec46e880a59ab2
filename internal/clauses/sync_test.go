package clauses

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSynchronizerAdmitsOnlyOnceAllQueuesNonEmpty(t *testing.T) {
	var mu sync.Mutex
	var admitted []InsertionCall
	s := NewSynchronizer(2, []int{100, 101}, 1000, func(c InsertionCall) {
		mu.Lock()
		admitted = append(admitted, c)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() {
		done <- s.InsertBlocking(context.Background(), 0, 1, Clause{Literals: []int32{1}})
	}()

	// Give the first solver's call a chance to queue without admitting.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	n := len(admitted)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("admitted %d calls before the second solver queued, want 0", n)
	}

	if err := s.InsertBlocking(context.Background(), 1, 1, Clause{Literals: []int32{2}}); err != nil {
		t.Fatalf("InsertBlocking: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first InsertBlocking: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(admitted) != 2 {
		t.Fatalf("admitted %d calls, want 2", len(admitted))
	}
	if admitted[0].SolverID != 0 || admitted[1].SolverID != 1 {
		t.Fatalf("admission order = %+v, want solver 0 then solver 1", admitted)
	}
}

func TestSynchronizerSyncAndResetIdentifiesLocalWinner(t *testing.T) {
	s := NewSynchronizer(2, []int{100, 101}, 1000, func(InsertionCall) {})
	s.NotifySolverDone(0, 101)
	if s.AllSyncReady() {
		t.Fatal("should not be sync-ready with only one of two solvers done")
	}
	s.NotifySolverDone(1, 200)
	if !s.AllSyncReady() {
		t.Fatal("expected sync-ready once both solvers report done")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	minID, err := s.WaitUntilSyncReady(ctx)
	if err != nil {
		t.Fatalf("WaitUntilSyncReady: %v", err)
	}
	if minID != 101 {
		t.Fatalf("minID = %d, want 101", minID)
	}

	if !s.SyncAndReset(101) {
		t.Fatal("expected local winner (global ID 101 is local solver 1)")
	}
	if s.SyncAndReset(999) {
		t.Fatal("expected no local winner for an unrelated global ID")
	}
}
