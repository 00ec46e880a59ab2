package clauses

import (
	"context"
	"sync"

	"github.com/grailbio/base/sync/ctxsync"
)

// InsertionCall is one solver's request to admit a clause, carried
// through the round-robin queues so admission order is identical no
// matter which solver thread happened to call in first.
type InsertionCall struct {
	SolverID       int
	SolverRevision int
	Clause         Clause
}

// AdmitFunc actually inserts a clause once the synchronizer has decided
// all solvers' turns have lined up.
type AdmitFunc func(InsertionCall)

// Synchronizer reproduces bit-identical clause admission order across
// replicas running the same deterministic search (spec §4.3
// "deterministic clause synchronizer" / §9 "Determinism & replay").
// Every solver's clause insertions are queued and only admitted once
// every solver has at least one insertion queued, round-robin, so two
// runs that each produce the same clauses in the same per-solver order
// admit them in the same global order regardless of wall-clock
// scheduling. Solvers additionally rendezvous at fixed operation-count
// intervals (nbOpsUntilSync) so that sync points themselves are
// reproducible.
//
// Grounded on
// original_source/src/app/sat/sharing/buffer/deterministic_clause_synchronizer.hpp's
// DeterministicClauseSynchronizer.
type Synchronizer struct {
	cbAdmit        AdmitFunc
	numSolvers     int
	globalSolverID []int

	mu          sync.Mutex
	roundCond   *ctxsync.Cond
	queues      [][]InsertionCall
	numNonEmpty int
	pushedSeq   []uint64
	admittedSeq []uint64

	opsUntilSync uint64
	opCounters   []uint64

	syncMu            sync.Mutex
	syncCond          *ctxsync.Cond
	waiting           []bool
	numWaiting        int
	minGlobalIDAtSync int
}

// NewSynchronizer constructs a synchronizer for numSolvers local
// engines. globalSolverID maps each local solver index to its
// cluster-wide ID, used to pick a deterministic winner on completion.
// performanceFactor scales the operation budget between mandatory sync
// points (spec: "nbOpsUntilSync ≈ performanceFactor·1e6"); each admitted
// insertion counts as 1000 operations toward that budget.
func NewSynchronizer(numSolvers int, globalSolverID []int, performanceFactor float64, cb AdmitFunc) *Synchronizer {
	s := &Synchronizer{
		cbAdmit:           cb,
		numSolvers:        numSolvers,
		globalSolverID:    globalSolverID,
		queues:            make([][]InsertionCall, numSolvers),
		pushedSeq:         make([]uint64, numSolvers),
		admittedSeq:       make([]uint64, numSolvers),
		opCounters:        make([]uint64, numSolvers),
		opsUntilSync:      uint64(performanceFactor * 1_000_000),
		waiting:           make([]bool, numSolvers),
		minGlobalIDAtSync: -1,
	}
	s.roundCond = ctxsync.NewCond(&s.mu)
	s.syncCond = ctxsync.NewCond(&s.syncMu)
	return s
}

// InsertBlocking enqueues a clause insertion from solverID and blocks
// until it has been admitted (or the context is canceled). If this
// insertion reaches the configured operation count, it also blocks
// until every solver has reached its own sync point.
func (s *Synchronizer) InsertBlocking(ctx context.Context, solverID, revision int, c Clause) error {
	s.mu.Lock()
	mySeq := s.pushedSeq[solverID] + 1
	s.pushedSeq[solverID] = mySeq
	wasEmpty := len(s.queues[solverID]) == 0
	s.queues[solverID] = append(s.queues[solverID], InsertionCall{SolverID: solverID, SolverRevision: revision, Clause: c})
	if wasEmpty {
		s.numNonEmpty++
	}
	s.flushRoundsLocked()
	for s.admittedSeq[solverID] < mySeq {
		if err := s.roundCond.Wait(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.opCounters[solverID] += 1000
	needSync := s.opCounters[solverID] >= s.opsUntilSync
	if needSync {
		s.opCounters[solverID] = 0
	}
	s.mu.Unlock()

	if needSync {
		s.markWaiting(solverID, -1)
		if _, err := s.WaitUntilSyncReady(ctx); err != nil {
			return err
		}
	}
	return nil
}

// flushRoundsLocked pops and admits one insertion from every solver's
// queue, repeatedly, for as long as every queue is non-empty. Called
// with mu held.
func (s *Synchronizer) flushRoundsLocked() {
	for s.numNonEmpty == s.numSolvers {
		remaining := 0
		for i := range s.queues {
			head := s.queues[i][0]
			s.queues[i] = s.queues[i][1:]
			if len(s.queues[i]) > 0 {
				remaining++
			}
			s.cbAdmit(head)
			s.admittedSeq[i]++
		}
		s.numNonEmpty = remaining
		s.roundCond.Broadcast()
	}
}

// NotifySolverDone marks solverID as having finished its local search
// (e.g. it found a result), contributing globalID as a candidate
// cluster-wide winner if it is the smallest seen so far.
func (s *Synchronizer) NotifySolverDone(solverID, globalID int) {
	s.markWaiting(solverID, globalID)
}

func (s *Synchronizer) markWaiting(solverID, globalID int) {
	s.syncMu.Lock()
	if !s.waiting[solverID] {
		s.waiting[solverID] = true
		s.numWaiting++
	}
	if globalID >= 0 && (s.minGlobalIDAtSync == -1 || globalID < s.minGlobalIDAtSync) {
		s.minGlobalIDAtSync = globalID
	}
	s.syncCond.Broadcast()
	s.syncMu.Unlock()
}

// AllSyncReady reports whether every solver has reached a sync point.
func (s *Synchronizer) AllSyncReady() bool {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.numWaiting == s.numSolvers
}

// WaitUntilSyncReady blocks until every solver has reached a sync
// point, returning the smallest globally-numbered solver ID that
// reported completion during this round, or -1 if none did.
func (s *Synchronizer) WaitUntilSyncReady(ctx context.Context) (int, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	for s.numWaiting != s.numSolvers {
		if err := s.syncCond.Wait(ctx); err != nil {
			return -1, err
		}
	}
	return s.minGlobalIDAtSync, nil
}

// SyncAndReset flushes every remaining queued clause regardless of
// round completeness, then releases every solver waiting at a sync
// point. winnerGlobalID is the cluster-wide winner chosen for this
// round, if any; SyncAndReset reports whether one of this
// synchronizer's local solvers was that winner.
func (s *Synchronizer) SyncAndReset(winnerGlobalID int) bool {
	s.mu.Lock()
	for i := range s.queues {
		for _, call := range s.queues[i] {
			s.cbAdmit(call)
			s.admittedSeq[i]++
		}
		s.queues[i] = nil
	}
	s.numNonEmpty = 0
	s.roundCond.Broadcast()
	s.mu.Unlock()

	localWinner := false
	if winnerGlobalID >= 0 {
		for _, id := range s.globalSolverID {
			if id == winnerGlobalID {
				localWinner = true
				break
			}
		}
	}

	s.syncMu.Lock()
	for i := range s.waiting {
		s.waiting[i] = false
	}
	s.numWaiting = 0
	s.minGlobalIDAtSync = -1
	s.syncCond.Broadcast()
	s.syncMu.Unlock()

	return localWinner
}
