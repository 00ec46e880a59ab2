package worker

import (
	"fmt"
	"time"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/jabo17/mallob/internal/clauses"
	"github.com/jabo17/mallob/internal/job"
	"github.com/jabo17/mallob/internal/subprocess"
)

// satAttempt is the worker-local driver for a SAT job node: it owns the
// subprocess.Adapter for the attempt plus the per-job clause-exchange
// state (spec §4.2 "C2" wired to §4.3 "C3"). It implements job.Capabilities
// the way qbf.Driver implements it for QBF nodes.
type satAttempt struct {
	w   *Worker
	j   *job.Job
	cfg subprocess.AttemptConfig

	adapter *subprocess.Adapter

	filter  *clauses.Filter
	db      *clauses.Database
	imports []*clauses.ImportManager // one per local portfolio rank

	startedAt time.Time
	epoch     int
}

// newSATAttempt allocates the shared-memory regions for j's attempt and
// constructs the local clause-exchange pipeline. The formula comes from
// j.Description; portfolio size is the worker's configured thread count.
func newSATAttempt(w *Worker, j *job.Job) (*satAttempt, error) {
	portfolioSize := w.params.NumThreads
	if portfolioSize < 1 {
		portfolioSize = 1
	}

	id := fmt.Sprintf("/edu.kit.iti.mallob.%d.%d.#%d", w.pid, w.queue.Rank(), j.Description.ID)
	cfg := subprocess.AttemptConfig{
		ID:                   id,
		PortfolioRank:        0,
		PortfolioSize:        portfolioSize,
		Formulae:             [][]int32{j.Description.Literals},
		ClauseBufferBaseSize: w.params.ClauseBufferBaseSize,
		ClusterSize:          w.queue.Size(),
		SolverBinaryPath:     w.params.SolverBinaryPath,
		TerminationGrace:     w.params.TerminationGracePeriod,
	}
	adapter, err := subprocess.NewAdapter(cfg)
	if err != nil {
		return nil, errors.E(errors.Unavailable, "worker: allocate attempt shared memory", err)
	}

	db := clauses.NewDatabase(cfg.ClauseBufferBaseSize*4, nil)
	a := &satAttempt{
		w:       w,
		j:       j,
		cfg:     cfg,
		adapter: adapter,
		filter:  clauses.NewFilter(w.params.EpochHorizon, w.params.ReshareImprovedLbd),
		db:      db,
	}
	for i := 0; i < portfolioSize; i++ {
		a.imports = append(a.imports, clauses.NewImportManager(
			w.params.MaxClauseLength, false, false, 2))
	}
	return a, nil
}

// capabilities returns the job.Capabilities table wiring this attempt
// into the generic job lifecycle (internal/job's "deep virtual hierarchy"
// replacement).
func (a *satAttempt) capabilities() job.Capabilities {
	return job.Capabilities{
		Start:          a.start,
		Suspend:        func() error { return a.adapter.SetSolvingState(subprocess.StateSuspended) },
		Resume:         func() error { return a.adapter.SetSolvingState(subprocess.StateActive) },
		Terminate:      a.terminate,
		Solved:         a.adapter.Check,
		GetResult:      a.getResult,
		DumpStats:      a.adapter.DumpStats,
		IsDestructible: func() bool { exited, _ := a.adapter.Exited(); return exited },
		MemoryPanic:    func() { _ = a.terminate() },
	}
}

func (a *satAttempt) start() error {
	a.startedAt = time.Now()
	return a.adapter.Run(backgroundcontext.Get())
}

func (a *satAttempt) terminate() error {
	return a.adapter.Terminate()
}

func (a *satAttempt) getResult() job.Outcome {
	result, model, err := a.adapter.GetSolution()
	if err != nil {
		log.Error.Printf("worker: attempt %s: read solution: %v", a.cfg.ID, err)
		return job.Outcome{Result: job.ResultUnknown}
	}
	return job.Outcome{Result: result, Model: model}
}

// exceededLimits reports whether the job's wallclock limit has elapsed,
// per spec §5 "Cancellation & timeouts".
func (a *satAttempt) exceededLimits() bool {
	limit := a.j.Description.WallclockLimit
	return limit > 0 && !a.startedAt.IsZero() && time.Since(a.startedAt) > limit
}

// exchangeClauses drains newly exported clauses from the subprocess,
// admits them through the produced-clause filter into the local
// database, and republishes the admitted set to every local portfolio
// rank's import manager. The subprocess's flat export buffer carries no
// per-clause producer tag (self-import suppression, spec §8 testable
// property 6, is performed inside the solver subprocess itself, before
// a clause ever reaches this buffer — an opaque, unimplemented
// collaborator per spec §1), so this layer cannot and does not drop a
// rank's own clauses from its reimport set; Filter.GetProducers exists
// for a future subprocess wire format that does tag producers, not for
// this path. Cross-worker broadcast along the job tree is carried by
// the balancer's volume updates and transport.Queue, not by this
// method: this is the single-worker slice of C3 that a lone worker
// performs regardless of whether it ever gains siblings.
func (a *satAttempt) exchangeClauses() {
	if !a.adapter.HasCollectedClauses() {
		a.adapter.CollectClauses(a.cfg.ClauseBufferBaseSize)
		return
	}
	flat := a.adapter.GetCollectedClauses()
	a.epoch++

	var admitted []clauses.Candidate
	a.filter.Lock()
	for _, lits := range splitZeroTerminated(flat) {
		c := clauses.Clause{Literals: lits, LBD: len(lits)}
		cand := clauses.Candidate{Clause: c, ProducerID: 0, Epoch: a.epoch}
		if a.filter.TryRegisterAndInsert(cand, a.db) == clauses.Admitted {
			admitted = append(admitted, cand)
		}
	}
	a.filter.Unlock()
	if len(admitted) == 0 {
		return
	}

	merged := make([]clauses.Clause, len(admitted))
	for i, c := range admitted {
		merged[i] = c.Clause
	}
	for _, im := range a.imports {
		im.SetImportedRevision(a.j.Description.Revision)
		im.PerformImport(merged)
	}

	var flatOut []int32
	for _, im := range a.imports {
		if !im.CanImport() {
			continue
		}
		for _, c := range im.Drain() {
			flatOut = append(flatOut, c.Literals...)
			flatOut = append(flatOut, 0)
		}
	}
	if len(flatOut) > 0 {
		if err := a.adapter.DigestClauses(flatOut); err != nil {
			log.Error.Printf("worker: attempt %s: digest clauses: %v", a.cfg.ID, err)
		}
	}
}

// splitZeroTerminated mirrors job.Description.Clauses for the raw flat
// literal stream the shared-memory export buffer carries.
func splitZeroTerminated(flat []int32) [][]int32 {
	var out [][]int32
	var cur []int32
	for _, lit := range flat {
		if lit == 0 {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, lit)
	}
	return out
}
