package worker

import (
	"time"

	"github.com/grailbio/base/log"

	"github.com/jabo17/mallob/internal/job"
	"github.com/jabo17/mallob/internal/qbf"
)

// pollPeriod is how often a spawned QBF child is polled for conclusion.
// The real cluster instead delivers MSG_QBF_NOTIFICATION_UPWARDS the
// moment a child's root concludes (spec §6); polling the local job
// store is this single-process worker's stand-in for that notification
// path, since every child a Worker spawns today lands on itself rather
// than a sibling rank (job-tree placement across ranks is the balancer's
// job, not the splitting driver's).
const pollPeriod = 2 * time.Millisecond

// qbfSpawner implements qbf.Spawner on behalf of the QBF job node
// described by parent: each split child is submitted as an ordinary job
// through SubmitJob, so it is itself fully wired into the balancer, job
// store, and (for SAT children) the clause-exchange pipeline, exactly
// like a top-level submission.
func (w *Worker) qbfSpawner(parent *job.Job) qbf.Spawner {
	return func(app qbf.ChildApplication, prefix, literals []int32) (<-chan job.Result, func()) {
		desc := job.Description{
			Application:    job.SAT,
			Priority:       parent.Description.Priority,
			WallclockLimit: parent.Description.WallclockLimit,
			CPULimit:       parent.Description.CPULimit,
			Literals:       literals,
		}
		if app == qbf.ChildQBF {
			desc.Application = job.QBF
			desc.QuantifierPrefix = prefix
		}

		result := make(chan job.Result, 1)
		child, err := w.SubmitJob(desc)
		if err != nil {
			log.Error.Printf("worker: spawn QBF child of job %d: %v", parent.Description.ID, err)
			result <- job.ResultUnknown
			return result, func() {}
		}

		done := make(chan struct{})
		go w.pollChild(child, result, done)

		cancel := func() {
			close(done)
			_ = child.Terminate()
			w.store.Remove(child.Description.ID)
			w.bal.OnTerminate(child.Description.ID)
		}
		return result, cancel
	}
}

// pollChild waits for child to report solved, then publishes its result
// and tears down its job-table entry. It exits without publishing if
// done is closed first (the driver cancelled this child).
func (w *Worker) pollChild(child *job.Job, result chan<- job.Result, done <-chan struct{}) {
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !child.Solved() {
				continue
			}
			select {
			case <-done:
			default:
				result <- child.GetResult().Result
			}
			w.store.Remove(child.Description.ID)
			w.bal.OnTerminate(child.Description.ID)
			return
		}
	}
}
