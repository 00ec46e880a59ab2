package job

import (
	"sync"

	"github.com/google/uuid"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/status"
)

// Capabilities replaces the deep virtual job hierarchy
// (Job -> QbfJob, SatJob, ...) the original implementation used, per the
// "deep virtual hierarchy" design note: a single job-instance type plus a
// capability table of plain function fields. A nil field means the
// capability is unsupported for this job's Application and callers must
// check before invoking it.
type Capabilities struct {
	Start     func() error
	Suspend   func() error
	Resume    func() error
	Terminate func() error

	Solved       func() bool
	GetResult    func() Outcome
	Communicate  func(source int, payload []byte) error
	DumpStats    func()

	IsDestructible func() bool
	MemoryPanic    func()
}

// Job is a worker's local image of one node of a job tree (spec §3). Its
// only cross-references to other subsystems (the subprocess adapter, the
// clause exchange) are by job id, never by pointer, per the "cyclic
// references" design note: callbacks revalidate against the owning Store
// before acting.
type Job struct {
	mu sync.Mutex

	Description Description
	state       State
	index       int

	rootRank     int
	parentRank   int
	leftChild    int
	hasLeft      bool
	rightChild   int
	hasRight     bool
	clientRank   int

	caps Capabilities

	Status *status.Task
}

// New constructs a job instance in state None, assigning a fresh
// ExternalID if the caller did not already set one.
func New(desc Description) *Job {
	if desc.ExternalID == uuid.Nil {
		desc.ExternalID = uuid.New()
	}
	return &Job{Description: desc, state: StateNone, index: -1}
}

func (j *Job) Lock()   { j.mu.Lock() }
func (j *Job) Unlock() { j.mu.Unlock() }

// SetCapabilities installs the capability table once the concrete
// application driver (SAT or QBF) has been wired up.
func (j *Job) SetCapabilities(c Capabilities) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.caps = c
}

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// SwitchState transitions the job to a new state. Per the open-question
// resolution in SPEC_FULL.md, repeated identical transitions are no-ops.
func (j *Job) SwitchState(s State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
}

// Index returns the job's index within its job tree; -1 if uncommitted.
func (j *Job) Index() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.index
}

// Initialize commits the job to tree index idx, with the given root and
// parent ranks (spec §3: "Exactly one worker at any time holds index 0
// (root) for a job; ... parent(i)=(i-1)/2").
func (j *Job) Initialize(idx, rootRank, parentRank int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.index = idx
	j.rootRank = rootRank
	j.parentRank = parentRank
	j.state = StateInitializing
}

// IsRoot reports whether this node is the job's root (index 0).
func (j *Job) IsRoot() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return IsRoot(j.index)
}

// ParentRank returns the rank of the parent job node, or the client rank
// if this node is root.
func (j *Job) ParentRank() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if IsRoot(j.index) {
		return j.clientRank
	}
	return j.parentRank
}

func (j *Job) SetClientRank(rank int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.clientRank = rank
}

// SetLeftChild and SetRightChild record an outgoing spawn to another
// worker rank; Unset clears the has-child flag. The rank is not kept in
// a record of past children.
func (j *Job) SetLeftChild(rank int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.leftChild, j.hasLeft = rank, true
}

func (j *Job) SetRightChild(rank int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rightChild, j.hasRight = rank, true
}

func (j *Job) UnsetLeftChild() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.hasLeft = false
}

func (j *Job) UnsetRightChild() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.hasRight = false
}

func (j *Job) HasLeftChild() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.hasLeft
}

func (j *Job) HasRightChild() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.hasRight
}

func (j *Job) LeftChildRank() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.leftChild
}

func (j *Job) RightChildRank() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rightChild
}

// Start, Suspend, Resume and Terminate delegate to the installed
// capability, returning an errors.NotSupported error if the job has not
// been wired with an application driver.
func (j *Job) Start() error     { return j.invoke(func() func() error { return j.caps.Start }) }
func (j *Job) Suspend() error   { return j.invoke(func() func() error { return j.caps.Suspend }) }
func (j *Job) Resume() error    { return j.invoke(func() func() error { return j.caps.Resume }) }
func (j *Job) Terminate() error { return j.invoke(func() func() error { return j.caps.Terminate }) }

func (j *Job) invoke(pick func() func() error) error {
	j.mu.Lock()
	fn := pick()
	j.mu.Unlock()
	if fn == nil {
		return errors.E(errors.NotSupported, "job: capability not wired for this application")
	}
	return fn()
}

// Solved reports whether the job's capability layer believes a result has
// been produced. Only the root node's Solved()/GetResult() are meaningful
// (spec §3: "the root node alone may conclude the job").
func (j *Job) Solved() bool {
	j.mu.Lock()
	fn := j.caps.Solved
	j.mu.Unlock()
	return fn != nil && fn()
}

func (j *Job) GetResult() Outcome {
	j.mu.Lock()
	fn := j.caps.GetResult
	j.mu.Unlock()
	if fn == nil {
		return Outcome{Result: ResultUnknown}
	}
	return fn()
}

func (j *Job) DumpStats() {
	j.mu.Lock()
	fn := j.caps.DumpStats
	j.mu.Unlock()
	if fn != nil {
		fn()
	}
}
