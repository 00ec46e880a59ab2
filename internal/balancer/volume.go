package balancer

import (
	"math"
	"sort"
)

// activeEntry is the per-job input to volume calculation: only events
// with positive demand participate (spec §3: "An epoch with demand=0
// denotes suspension/termination").
type activeEntry struct {
	jobID    int
	demand   int
	priority float64
}

// ComputeVolumes implements spec §4.1's "cutoff-priority proportional
// allocation" followed by "iterative remainder search" rounding,
// grounded on balancing/cutoff_priority_balancer.cpp's single-node
// assignment/remainder stages. It is a pure function of the (globally
// consistent, post-broadcast) state map, the target total volume, and
// the global epoch used to seed tie-breaking — hence it is guaranteed to
// produce identical results on every worker (spec §4.1 "Guarantees").
func ComputeVolumes(states *EventMap, loadFactor float64, clusterSize int, globalEpoch int64) map[int]int {
	volumes := make(map[int]int)
	if clusterSize <= 0 {
		return volumes
	}

	var active []activeEntry
	for _, e := range states.Entries() {
		if e.Demand <= 0 {
			continue
		}
		active = append(active, activeEntry{jobID: e.JobID, demand: e.Demand, priority: e.Priority})
	}
	if len(active) == 0 {
		return volumes
	}

	target := loadFactor * float64(clusterSize)

	aggregatedDemand := 0.0
	for _, a := range active {
		aggregatedDemand += a.priority * float64(a.demand)
	}

	assignment := make(map[int]float64, len(active))
	if aggregatedDemand <= 0 {
		for _, a := range active {
			assignment[a.jobID] = 0
		}
	} else {
		for _, a := range active {
			ratio := target * a.priority / aggregatedDemand
			if ratio > 1 {
				ratio = 1
			}
			assignment[a.jobID] = ratio * float64(a.demand)
		}
	}

	distributeRemainderByPriority(active, assignment, target)
	rounded := roundIteratively(active, assignment, target, globalEpoch)

	for id, v := range rounded {
		volumes[id] = v
	}
	return volumes
}

// distributeRemainderByPriority spends any capacity left after the
// initial proportional pass on higher-priority jobs first: within a
// priority tier, unmet demand is split proportionally (spec §4.1:
// "Distribute V − Σ A by priority ... jobs at the same priority share
// the excess proportionally to unmet demand").
func distributeRemainderByPriority(active []activeEntry, assignment map[int]float64, target float64) {
	spent := 0.0
	for _, a := range active {
		spent += assignment[a.jobID]
	}
	remaining := target - spent
	if remaining <= 1e-9 {
		return
	}

	byPriority := make(map[float64][]activeEntry)
	var priorities []float64
	for _, a := range active {
		if _, ok := byPriority[a.priority]; !ok {
			priorities = append(priorities, a.priority)
		}
		byPriority[a.priority] = append(byPriority[a.priority], a)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(priorities)))

	for _, p := range priorities {
		if remaining <= 1e-9 {
			break
		}
		tier := byPriority[p]
		tierUnmet := 0.0
		for _, a := range tier {
			tierUnmet += float64(a.demand) - assignment[a.jobID]
		}
		if tierUnmet <= 1e-9 {
			continue
		}
		if remaining >= tierUnmet {
			for _, a := range tier {
				assignment[a.jobID] = float64(a.demand)
			}
			remaining -= tierUnmet
		} else {
			ratio := remaining / tierUnmet
			for _, a := range tier {
				unmet := float64(a.demand) - assignment[a.jobID]
				assignment[a.jobID] += ratio * unmet
			}
			remaining = 0
		}
	}
}

// roundIteratively implements spec §4.1's "iterative remainder search":
// a common threshold r is binary-searched across the sorted list of
// distinct fractional remainders so that rounding every job with
// fractional part < r down and >= r up sums to within one unit of
// target. Jobs assigned <= 1 are floored to 1. Residual ties are broken
// with a SplitMix64 sequence seeded from the global epoch.
func roundIteratively(active []activeEntry, assignment map[int]float64, target float64, globalEpoch int64) map[int]int {
	result := make(map[int]int, len(active))
	var remainders []float64
	var variable []int

	for _, a := range active {
		v := assignment[a.jobID]
		if v <= 1 {
			result[a.jobID] = 1
			continue
		}
		frac := v - math.Floor(v)
		if frac > 0 && frac < 1 {
			remainders = append(remainders, frac)
		}
		variable = append(variable, a.jobID)
	}
	sort.Float64s(remainders)
	remainders = dedupeSorted(remainders)

	// Candidate thresholds are the distinct remainders plus the
	// right-hand limit 1.0 (meaning: round everything down).
	candidates := append(append([]float64{}, remainders...), 1.0)

	roundWith := func(r float64) (map[int]int, int) {
		out := make(map[int]int, len(variable))
		sum := 0
		for id := range result {
			out[id] = result[id]
			sum += result[id]
		}
		for _, id := range variable {
			v := assignment[id]
			frac := v - math.Floor(v)
			var rv int
			if frac < r {
				rv = int(math.Floor(v))
			} else {
				rv = int(math.Ceil(v))
			}
			out[id] = rv
			sum += rv
		}
		return out, sum
	}

	intTarget := int(math.Round(target))
	lo, hi := 0, len(candidates)-1
	best, bestSum := roundWith(1.0)
	bestDiff := abs(bestSum - intTarget)
	for lo <= hi {
		mid := (lo + hi) / 2
		cand, sum := roundWith(candidates[mid])
		diff := abs(sum - intTarget)
		if diff < bestDiff {
			best, bestSum, bestDiff = cand, sum, diff
		}
		if sum < intTarget {
			hi = mid - 1
		} else if sum > intTarget {
			lo = mid + 1
		} else {
			break
		}
	}

	// Residual tie-break: if we're still off by exactly one unit, nudge
	// a single job (chosen deterministically via SplitMix64 seeded by
	// the global epoch) up or down.
	if bestDiff != 0 && len(variable) > 0 {
		rng := newSplitMix64(globalEpoch)
		idx := rng.Intn(len(variable))
		id := variable[idx]
		if bestSum < intTarget {
			best[id]++
		} else if bestSum > intTarget && best[id] > 1 {
			best[id]--
		}
	}

	return best
}

func dedupeSorted(xs []float64) []float64 {
	if len(xs) == 0 {
		return xs
	}
	out := xs[:1]
	for _, x := range xs[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
