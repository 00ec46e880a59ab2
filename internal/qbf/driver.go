package qbf

import (
	"sync"

	"github.com/jabo17/mallob/internal/job"
)

// Spawner submits one child job on behalf of a Driver and hands back a
// channel that receives exactly one value once the child concludes, plus
// a cancel function the driver calls to abandon the child early (the
// caller is responsible for actually delivering
// MSG_QBF_CANCEL_CHILDREN). The job-submission API itself is an
// out-of-scope external collaborator (spec §1 Non-goals); Spawner is the
// seam internal/worker plugs into.
type Spawner func(app ChildApplication, prefix, literals []int32) (result <-chan job.Result, cancel func())

// Driver is a thin per-job QBF splitting driver, grounded on
// QbfJob::run(): on Start it splits the job's formula, spawns the
// resulting children through Spawner, and combines their results per
// the node's NodeType, cancelling any still-outstanding siblings as soon
// as the combination concludes early. It satisfies job.Capabilities via
// Capabilities().
type Driver struct {
	desc  job.Description
	spawn Spawner

	worker backgroundWorker

	mu     sync.Mutex
	ctx    *Context
	done   bool
	result job.Outcome
}

// NewDriver constructs a driver for desc, which must have already been
// validated (job.Description.Validate).
func NewDriver(desc job.Description, spawn Spawner) *Driver {
	return &Driver{desc: desc, spawn: spawn}
}

// Capabilities adapts the driver to job.Job's capability table.
func (d *Driver) Capabilities() job.Capabilities {
	return job.Capabilities{
		Start:          d.start,
		Suspend:        func() error { return nil },
		Resume:         func() error { return nil },
		Terminate:      d.terminate,
		Solved:         d.solved,
		GetResult:      d.getResult,
		DumpStats:      func() {},
		IsDestructible: d.solved,
	}
}

func (d *Driver) start() error {
	d.worker.run(d.run)
	return nil
}

func (d *Driver) terminate() error {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx != nil {
		ctx.Cancel()
	}
	d.worker.stopWithoutWaiting()
	return nil
}

type childOutcome struct {
	idx    int
	result job.Result
}

func (d *Driver) run() {
	split := Split(d.desc)
	ctx := NewContext(split.NodeType, len(split.Children))
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	cancels := make([]func(), len(split.Children))
	combined := make(chan childOutcome, len(split.Children))
	for i, child := range split.Children {
		resultCh, cancel := d.spawn(child.Application, child.QuantifierPrefix, child.Literals)
		cancels[i] = cancel
		go func(idx int, ch <-chan job.Result) {
			if r, ok := <-ch; ok {
				combined <- childOutcome{idx: idx, result: r}
			}
		}(i, resultCh)
	}

	for i := 0; i < len(split.Children); i++ {
		if !d.worker.continueRunning() {
			d.cancelAll(cancels)
			d.finish(job.ResultUnknown)
			return
		}
		outcome := <-combined
		concluded := ctx.HandleNotification(outcome.idx, outcome.result)
		if concluded == job.ResultUnknown {
			continue
		}
		for j, cancel := range cancels {
			if j != outcome.idx && cancel != nil {
				cancel()
			}
		}
		d.finish(concluded)
		return
	}
}

func (d *Driver) cancelAll(cancels []func()) {
	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
}

func (d *Driver) finish(r job.Result) {
	d.mu.Lock()
	d.result = job.Outcome{Result: r}
	d.done = true
	d.mu.Unlock()
}

func (d *Driver) solved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *Driver) getResult() job.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}
