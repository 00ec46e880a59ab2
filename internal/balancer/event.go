// Package balancer implements the event-driven, gossip-style job
// balancer (spec §4.1, "C1"): a tree-reduced protocol that computes
// per-job process counts from global demand/priority state with bounded
// convergence latency.
package balancer

import "math"

// MaxEpoch marks a terminating event: spec §4.1 "The terminating event
// uses jobEpoch = MAX and zero demand."
const MaxEpoch = math.MaxInt64

// Event is one (jobId, jobEpoch, demand, priority) tuple (spec §3,
// "Balancer event"). Ordering is lexicographic by (JobID, JobEpoch).
type Event struct {
	JobID    int
	JobEpoch int64
	Demand   int
	Priority float64
}

// Less orders events lexicographically by (JobID, JobEpoch), as spec §3
// requires for novelty comparisons.
func (e Event) Less(o Event) bool {
	if e.JobID != o.JobID {
		return e.JobID < o.JobID
	}
	return e.JobEpoch < o.JobEpoch
}

// NewerThan reports whether e has a strictly larger epoch than o for the
// same job. Events for different jobs are incomparable and NewerThan
// always returns true for them (there is nothing to regress against).
func (e Event) NewerThan(o Event) bool {
	if e.JobID != o.JobID {
		return true
	}
	return e.JobEpoch > o.JobEpoch
}

// IsTermination reports whether this event denotes suspension/termination
// (spec §3: "An epoch with demand=0 denotes suspension/termination").
func (e Event) IsTermination() bool { return e.Demand == 0 }
