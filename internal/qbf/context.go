package qbf

import (
	"sync"

	"github.com/jabo17/mallob/internal/job"
)

// NodeType is the Boolean combination a splitting node applies to its
// children's results, grounded on QbfContext::nodeType: a pass-through
// leaf (pure SAT, exactly one child), an existential OR node (true as
// soon as any child is SAT), or a universal AND node (false as soon as
// any child is UNSAT).
type NodeType int

const (
	NodeLeaf NodeType = iota
	NodeOR
	NodeAND
)

// Context tracks one node of the splitting tree's combination state:
// which children have reported, and whether the node has already
// concluded or been cancelled. Grounded on QbfContext's
// markChildAsReady/handleNotification/cancelActiveChildren bookkeeping,
// minus the MPI rank plumbing (owned by the caller, per the "cyclic
// references" design note: this type holds no back-references to jobs
// or transport).
type Context struct {
	nodeType NodeType

	mu        sync.Mutex
	done      []bool
	nbDone    int
	numChild  int
	concluded bool
	cancelled bool
}

// NewContext constructs a splitting context combining numChildren child
// outcomes under nodeType.
func NewContext(nodeType NodeType, numChildren int) *Context {
	return &Context{nodeType: nodeType, done: make([]bool, numChildren), numChild: numChildren}
}

// decisive is the child result that lets this node conclude immediately
// without waiting for the rest: SAT for an existential (OR) node, UNSAT
// for a universal (AND) node. A leaf has no children to wait on besides
// the single pass-through.
func (c *Context) decisive() job.Result {
	if c.nodeType == NodeAND {
		return job.ResultUnsat
	}
	return job.ResultSAT
}

func (c *Context) other() job.Result {
	if c.nodeType == NodeAND {
		return job.ResultSAT
	}
	return job.ResultUnsat
}

// HandleNotification records childIdx's reported result. It returns the
// node's combined result once the node concludes — either immediately
// (a decisive result was reported) or once every child has reported a
// non-decisive result — and job.ResultUnknown otherwise (not yet
// concluded, or the node already concluded/was cancelled).
func (c *Context) HandleNotification(childIdx int, result job.Result) job.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.concluded || c.cancelled {
		return job.ResultUnknown
	}
	if childIdx < 0 || childIdx >= c.numChild || c.done[childIdx] {
		return job.ResultUnknown
	}
	c.done[childIdx] = true
	c.nbDone++

	if c.nodeType == NodeLeaf {
		c.concluded = true
		return result
	}
	if result == c.decisive() {
		c.concluded = true
		return c.decisive()
	}
	if c.nbDone == c.numChild {
		c.concluded = true
		return c.other()
	}
	return job.ResultUnknown
}

// Cancel marks the node (and by extension its outstanding children, per
// the caller's own bookkeeping) as cancelled; no further notification
// will be able to conclude it.
func (c *Context) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (c *Context) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Concluded reports whether the node has produced a combined result.
func (c *Context) Concluded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.concluded
}

// IsDestructible mirrors QbfContext::isDestructible: a node's local
// state can be torn down once it has concluded or been cancelled.
func (c *Context) IsDestructible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.concluded || c.cancelled
}
