package subprocess

import (
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"

	"github.com/jabo17/mallob/internal/job"
)

// spawnLimiter bounds how many solver subprocesses may be running at
// once across all adapters in this process, the way the teacher's
// bigmachine executor bounds concurrent task commits with a
// commitLimiter: Run takes a slot before fork/exec and the slot is
// released only once the child has exited. Capacity defaults to the
// host's CPU count.
var spawnLimiter = newSpawnLimiter(runtime.NumCPU())

func newSpawnLimiter(capacity int) *limiter.Limiter {
	l := limiter.New()
	if capacity < 1 {
		capacity = 1
	}
	l.Release(capacity)
	return l
}

// AttemptConfig describes one (job, revision) solver attempt (spec
// §4.2, "Attempt. One run of a solver subprocess for one (job,
// revision) pair").
type AttemptConfig struct {
	// ID is the shared-memory name prefix (spec §6 "Shared-memory
	// names": "/edu.kit.iti.mallob.<pid>.<mpirank>.#<jobid>[~<recoveryIdx>]").
	ID               string
	PortfolioRank    int
	PortfolioSize    int
	Formulae         [][]int32
	Assumptions      []int32
	ClauseBufferBaseSize int
	ClusterSize      int
	SolverBinaryPath string
	TerminationGrace time.Duration
}

// RevisionData is one incremental revision awaiting publication to the
// subprocess (spec §4.2 "Revisioning").
type RevisionData struct {
	Revision    int
	Checksum    uint64
	Formula     []int32
	Assumptions []int32
}

// Adapter isolates a solver subprocess's CDCL/portfolio engines from
// the worker process, communicating over named shared-memory regions
// (spec §4.2, "C2"). Grounded on
// original_source/src/app/sat/horde_process_adapter.cpp/.hpp.
type Adapter struct {
	cfg AttemptConfig

	controlRegion *region
	formulaRegions []*region
	assumptionsRegion *region
	exportRegion  *region
	importRegion  *region

	control *controlRecord

	extraMu      sync.Mutex
	extraRegions []*region // regions created for revision publication / solution attach

	mu       sync.Mutex
	state    SolvingState
	cmd      *exec.Cmd
	childPID int
	exited   chan struct{}
	exitErr  error

	writer           backgroundWorker
	revMu            sync.Mutex
	pendingRevisions []RevisionData
	desiredRevision  int
}

// NewAdapter allocates the attempt's shared-memory regions (spec §4.2
// "Shared-memory layout") and returns an Adapter in state
// initializing.
func NewAdapter(cfg AttemptConfig) (*Adapter, error) {
	if cfg.ClauseBufferBaseSize <= 0 {
		cfg.ClauseBufferBaseSize = 1500
	}
	if cfg.ClusterSize <= 0 {
		cfg.ClusterSize = 1
	}
	if cfg.SolverBinaryPath == "" {
		cfg.SolverBinaryPath = "mallob_sat_process"
	}
	if cfg.TerminationGrace <= 0 {
		cfg.TerminationGrace = time.Second
	}

	a := &Adapter{cfg: cfg, state: StateInitializing, exited: make(chan struct{})}

	controlRegion, err := createRegion(cfg.ID, controlRecordSize)
	if err != nil {
		return nil, err
	}
	a.controlRegion = controlRegion
	a.control = newControlRecord(controlRegion.Bytes())
	a.control.reset(cfg.PortfolioRank, cfg.PortfolioSize)

	for k, f := range cfg.Formulae {
		r, err := createRegion(fmt.Sprintf("%s.formulae.%d", cfg.ID, k), len(f)*4)
		if err != nil {
			a.FreeSharedMemory()
			return nil, err
		}
		writeInt32s(r.Bytes(), f)
		a.formulaRegions = append(a.formulaRegions, r)
	}

	assumptionsRegion, err := createRegion(cfg.ID+".assumptions", len(cfg.Assumptions)*4)
	if err != nil {
		a.FreeSharedMemory()
		return nil, err
	}
	writeInt32s(assumptionsRegion.Bytes(), cfg.Assumptions)
	a.assumptionsRegion = assumptionsRegion

	exportSize := cfg.ClauseBufferBaseSize * 4
	exportRegion, err := createRegion(cfg.ID+".clauseexport", exportSize)
	if err != nil {
		a.FreeSharedMemory()
		return nil, err
	}
	a.exportRegion = exportRegion

	importSize := exportSize * cfg.ClusterSize
	importRegion, err := createRegion(cfg.ID+".clauseimport", importSize)
	if err != nil {
		a.FreeSharedMemory()
		return nil, err
	}
	a.importRegion = importRegion

	return a, nil
}

func writeInt32s(dst []byte, values []int32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], uint32(v))
	}
}

func readInt32s(src []byte, n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return out
}

// Run forks and execs the solver binary, passing the shared-memory id
// as an argument (spec §4.2 "Public contract"). It does not block for
// the child to finish initializing; poll IsFullyInitialized.
func (a *Adapter) Run(ctx context.Context) error {
	if err := spawnLimiter.Acquire(ctx, 1); err != nil {
		return errors.E(errors.Canceled, "subprocess: waiting for spawn slot", err)
	}

	cmd := exec.CommandContext(context.Background(), a.cfg.SolverBinaryPath, a.cfg.ID)
	if err := cmd.Start(); err != nil {
		spawnLimiter.Release(1)
		return errors.E(errors.Unavailable, fmt.Sprintf("subprocess: spawn %s", a.cfg.SolverBinaryPath), err)
	}

	a.mu.Lock()
	a.cmd = cmd
	a.childPID = cmd.Process.Pid
	a.state = StateActive
	a.mu.Unlock()

	go func() {
		err := cmd.Wait()
		spawnLimiter.Release(1)
		a.mu.Lock()
		a.exitErr = err
		a.mu.Unlock()
		close(a.exited)
		if err != nil {
			log.Error.Printf("subprocess: attempt %s solver exited: %v", a.cfg.ID, err)
		}
	}()

	return nil
}

// IsFullyInitialized polls the child's isInitialized response flag.
func (a *Adapter) IsFullyInitialized() bool { return a.control.IsInitialized() }

// SetSolvingState drives the attempt's lifecycle state machine,
// mapping each target state to a signal per spec §4.2 "Public
// contract": aborting -> SIGTERM+SIGCONT, suspended -> SIGTSTP,
// active -> SIGCONT, standby -> doInterrupt=true. Repeated identical
// transitions are no-ops (spec §9 open question).
func (a *Adapter) SetSolvingState(s SolvingState) error {
	a.mu.Lock()
	if a.state == s {
		a.mu.Unlock()
		return nil
	}
	pid := a.childPID
	a.state = s
	a.mu.Unlock()

	if pid == 0 && s != StateStandby {
		return nil
	}
	switch s {
	case StateAborting:
		signalChild(pid, syscall.SIGTERM)
		signalChild(pid, syscall.SIGCONT)
	case StateSuspended:
		signalChild(pid, syscall.SIGTSTP)
	case StateActive:
		signalChild(pid, syscall.SIGCONT)
	case StateStandby:
		a.control.SetDoInterrupt(true)
	}
	return nil
}

func signalChild(pid int, sig syscall.Signal) {
	if err := syscall.Kill(pid, sig); err != nil {
		log.Error.Printf("subprocess: signal %v to pid %d: %v", sig, pid, err)
	}
}

func (a *Adapter) wakeChild() {
	a.mu.Lock()
	pid := a.childPID
	a.mu.Unlock()
	if pid != 0 && a.control.IsInitialized() {
		signalChild(pid, syscall.SIGUSR1)
	}
}

// CollectClauses requests the child export up to maxSize literals of
// learned clauses (spec §4.2 "Public contract").
func (a *Adapter) CollectClauses(maxSize int) {
	a.control.SetExportBufferMaxSize(maxSize)
	a.control.SetDoExport(true)
	a.wakeChild()
}

// HasCollectedClauses polls the child's didExport response flag.
func (a *Adapter) HasCollectedClauses() bool { return a.control.DidExport() }

// GetCollectedClauses copies from the export buffer and clears the
// flag, per spec §4.2.
func (a *Adapter) GetCollectedClauses() []int32 {
	if !a.control.DidExport() {
		return nil
	}
	n := a.control.ExportBufferTrueSize()
	if n*4 > len(a.exportRegion.Bytes()) {
		n = len(a.exportRegion.Bytes()) / 4
	}
	clauses := readInt32s(a.exportRegion.Bytes(), n)
	a.control.SetDoExport(false)
	return clauses
}

// DigestClauses fills the import buffer and sets doImport (spec §4.2).
func (a *Adapter) DigestClauses(clauses []int32) error {
	if len(clauses)*4 > len(a.importRegion.Bytes()) {
		return errors.E(errors.Invalid, "subprocess: import payload exceeds buffer capacity")
	}
	writeInt32s(a.importRegion.Bytes(), clauses)
	a.control.SetImportBufferSize(len(clauses))
	a.control.SetDoImport(true)
	a.wakeChild()
	return nil
}

// DumpStats requests a stats dump; no wakeup is required (spec §4.2:
// "No hard need to wake up immediately").
func (a *Adapter) DumpStats() { a.control.SetDoDumpStats(true) }

// Check clears any settled did_X response flags and reports whether a
// solution is ready (spec §4.2 "Public contract": "hasSolution()
// observes the response flag").
func (a *Adapter) Check() bool {
	if a.control.DidImport() {
		a.control.SetDidImport(false)
	}
	if a.control.DidUpdateRole() {
		a.control.SetDidUpdateRole(false)
	}
	if a.control.DidInterrupt() {
		a.control.SetDidInterrupt(false)
	}
	if a.control.DidDumpStats() {
		a.control.SetDidDumpStats(false)
	}
	return a.control.HasSolution()
}

// GetSolution attaches the solution region (created on demand by the
// child) and returns the reported result and model.
func (a *Adapter) GetSolution() (job.Result, []int32, error) {
	result := a.control.Result()
	n := a.control.SolutionSize()
	if n == 0 {
		return result, nil, nil
	}
	r, err := openRegion(a.cfg.ID+".solution", n*4)
	if err != nil {
		return result, nil, err
	}
	a.extraMu.Lock()
	a.extraRegions = append(a.extraRegions, r)
	a.extraMu.Unlock()
	return result, readInt32s(r.Bytes(), n), nil
}

// AppendRevisions enqueues incremental revisions for background
// publication, in FIFO order (spec §4.2 "Revisioning").
func (a *Adapter) AppendRevisions(revisions []RevisionData, desiredRevision int) {
	a.revMu.Lock()
	a.pendingRevisions = append(a.pendingRevisions, revisions...)
	a.desiredRevision = desiredRevision
	a.revMu.Unlock()
	a.startBackgroundWriterIfNecessary()
}

func (a *Adapter) startBackgroundWriterIfNecessary() {
	if a.writer.isRunning() {
		return
	}
	a.writer.run(a.backgroundWriteLoop)
}

func (a *Adapter) backgroundWriteLoop() {
	for a.writer.continueRunning() {
		a.revMu.Lock()
		if len(a.pendingRevisions) == 0 {
			a.revMu.Unlock()
			return
		}
		next := a.pendingRevisions[0]
		a.pendingRevisions = a.pendingRevisions[1:]
		a.revMu.Unlock()

		if err := a.writeRevision(next); err != nil {
			log.Error.Printf("subprocess: attempt %s write revision %d: %v", a.cfg.ID, next.Revision, err)
			return
		}
	}
}

func (a *Adapter) writeRevision(rev RevisionData) error {
	name := fmt.Sprintf("%s.formulae.rev.%d", a.cfg.ID, rev.Revision)
	r, err := createRegion(name, len(rev.Formula)*4)
	if err != nil {
		return err
	}
	writeInt32s(r.Bytes(), rev.Formula)

	a.extraMu.Lock()
	a.extraRegions = append(a.extraRegions, r)
	a.extraMu.Unlock()

	a.control.SetWrittenRevision(rev.Revision)
	return nil
}

// WrittenRevision returns the most recently published revision number.
func (a *Adapter) WrittenRevision() int { return a.control.WrittenRevision() }

// WaitUntilChildExited blocks until the solver subprocess has been
// reaped, returning any error observed by the reaping goroutine.
func (a *Adapter) WaitUntilChildExited() error {
	<-a.exited
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exitErr
}

// hasExited reports whether the wait goroutine has already reaped the
// child, per spec §4.2 "Failure semantics" (waitpid(WNOHANG)).
func (a *Adapter) hasExited() bool {
	select {
	case <-a.exited:
		return true
	default:
		return false
	}
}

// Exited reports whether the solver subprocess has already been reaped
// and, if so, the error the wait goroutine observed (nil on a clean
// exit). A worker's health tick polls this to detect SubprocessFault
// (spec §7, §8 testable property 5) without blocking on
// WaitUntilChildExited.
func (a *Adapter) Exited() (bool, error) {
	if !a.hasExited() {
		return false, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return true, a.exitErr
}

// State returns the attempt's current lifecycle state.
func (a *Adapter) State() SolvingState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Terminate transitions the attempt through aborting, force-killing
// the subprocess if it has not exited within the configured grace
// period, then frees all shared memory (spec §4.2 "Failure
// semantics").
func (a *Adapter) Terminate() error {
	a.writer.stop()

	if err := a.SetSolvingState(StateAborting); err != nil {
		return err
	}

	a.mu.Lock()
	pid := a.childPID
	a.mu.Unlock()

	if pid != 0 && !a.hasExited() {
		select {
		case <-a.exited:
		case <-time.After(a.cfg.TerminationGrace):
			log.Error.Printf("subprocess: attempt %s did not exit within grace period, sending SIGKILL", a.cfg.ID)
			signalChild(pid, syscall.SIGKILL)
			<-a.exited
		}
	}

	a.mu.Lock()
	a.state = StateReaped
	a.mu.Unlock()

	return a.FreeSharedMemory()
}

// FreeSharedMemory unmaps and unlinks every shared-memory region this
// attempt created, leaving no trace in the filesystem namespace (spec
// §8 testable property 7).
func (a *Adapter) FreeSharedMemory() error {
	var regions []*region
	if a.controlRegion != nil {
		regions = append(regions, a.controlRegion)
	}
	regions = append(regions, a.formulaRegions...)
	if a.assumptionsRegion != nil {
		regions = append(regions, a.assumptionsRegion)
	}
	if a.exportRegion != nil {
		regions = append(regions, a.exportRegion)
	}
	if a.importRegion != nil {
		regions = append(regions, a.importRegion)
	}
	a.extraMu.Lock()
	regions = append(regions, a.extraRegions...)
	a.extraRegions = nil
	a.extraMu.Unlock()

	var firstErr error
	for _, r := range regions {
		if err := r.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := r.unlink(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
