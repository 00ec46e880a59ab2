package balancer

import (
	"testing"
	"time"

	"github.com/jabo17/mallob/internal/transport"
)

func TestTreeTopologyForEight(t *testing.T) {
	cases := []struct {
		rank     int
		parent   int
		children []int
		isLeaf   bool
	}{
		{0, 0, []int{4, 2, 1}, false},
		{1, 0, nil, true},
		{2, 0, []int{3}, false},
		{4, 0, []int{6, 5}, false},
	}
	for _, c := range cases {
		tr := Tree{Rank: c.rank, ClusterSize: 8}
		if got := tr.ParentRank(); got != c.parent {
			t.Errorf("rank %d: ParentRank = %d, want %d", c.rank, got, c.parent)
		}
		if got := tr.IsLeaf(); got != c.isLeaf {
			t.Errorf("rank %d: IsLeaf = %v, want %v", c.rank, got, c.isLeaf)
		}
	}
}

func TestEventMapInsertIfNovel(t *testing.T) {
	m := NewEventMap()
	if !m.InsertIfNovel(Event{JobID: 1, JobEpoch: 1, Demand: 4, Priority: 0.5}) {
		t.Fatal("expected first insert to be novel")
	}
	if m.InsertIfNovel(Event{JobID: 1, JobEpoch: 1, Demand: 4, Priority: 0.5}) {
		t.Fatal("expected same-epoch insert to be rejected")
	}
	if !m.InsertIfNovel(Event{JobID: 1, JobEpoch: 2, Demand: 8, Priority: 0.5}) {
		t.Fatal("expected newer-epoch insert to be novel")
	}
}

// TestScenarioPriorityCutoff reproduces spec §8 end-to-end scenario 2:
// cluster=8, loadFactor=1.0, J1(demand=8,p=0.9), J2(demand=8,p=0.1) ->
// J1 receives 7, J2 receives 1.
func TestScenarioPriorityCutoff(t *testing.T) {
	states := NewEventMap()
	states.InsertIfNovel(Event{JobID: 1, JobEpoch: 1, Demand: 8, Priority: 0.9})
	states.InsertIfNovel(Event{JobID: 2, JobEpoch: 1, Demand: 8, Priority: 0.1})

	volumes := ComputeVolumes(states, 1.0, 8, 42)
	if volumes[1] != 7 {
		t.Errorf("J1 volume = %d, want 7", volumes[1])
	}
	if volumes[2] != 1 {
		t.Errorf("J2 volume = %d, want 1", volumes[2])
	}
	sum := volumes[1] + volumes[2]
	if sum != 8 {
		t.Errorf("sum = %d, want 8 (conservation)", sum)
	}
}

// TestConservationProperty checks spec §8 testable property 2 across a
// variety of inputs: the sum of volumes is always floor(V) or ceil(V).
func TestConservationProperty(t *testing.T) {
	cases := []struct {
		demands    []int
		priorities []float64
		cluster    int
		loadFactor float64
	}{
		{[]int{16}, []float64{0.5}, 8, 1.0},
		{[]int{8, 8}, []float64{0.9, 0.1}, 8, 1.0},
		{[]int{3, 5, 2}, []float64{0.3, 0.3, 0.9}, 10, 1.0},
		{[]int{1, 1, 1, 1}, []float64{0.25, 0.25, 0.25, 0.25}, 4, 1.0},
	}
	for i, c := range cases {
		states := NewEventMap()
		for j := range c.demands {
			states.InsertIfNovel(Event{JobID: j + 1, JobEpoch: 1, Demand: c.demands[j], Priority: c.priorities[j]})
		}
		target := c.loadFactor * float64(c.cluster)
		lo, hi := int(target), int(target)
		if float64(lo) < target {
			hi = lo + 1
		}
		volumes := ComputeVolumes(states, c.loadFactor, c.cluster, int64(i))
		sum := 0
		for _, v := range volumes {
			sum += v
		}
		if sum != lo && sum != hi {
			t.Errorf("case %d: sum=%d, want %d or %d", i, sum, lo, hi)
		}
	}
}

// TestDeterminism checks spec §8 testable property 3: identical state
// maps and epochs produce identical volume maps.
func TestDeterminism(t *testing.T) {
	states := NewEventMap()
	states.InsertIfNovel(Event{JobID: 1, JobEpoch: 1, Demand: 5, Priority: 0.4})
	states.InsertIfNovel(Event{JobID: 2, JobEpoch: 1, Demand: 5, Priority: 0.6})

	v1 := ComputeVolumes(states, 1.0, 6, 7)
	v2 := ComputeVolumes(states, 1.0, 6, 7)
	if len(v1) != len(v2) {
		t.Fatalf("length mismatch")
	}
	for id, val := range v1 {
		if v2[id] != val {
			t.Errorf("job %d: %d != %d", id, val, v2[id])
		}
	}
}

// TestSingleJobUniformLoad reproduces spec §8 scenario 1 at a single
// worker's level: the one active job gets the whole cluster's volume,
// and suspending drives it back towards zero.
func TestSingleJobUniformLoad(t *testing.T) {
	states := NewEventMap()
	states.InsertIfNovel(Event{JobID: 1, JobEpoch: 1, Demand: 16, Priority: 0.5})
	volumes := ComputeVolumes(states, 1.0, 8, 1)
	if volumes[1] != 8 {
		t.Fatalf("volume = %d, want 8 (full cluster capacity)", volumes[1])
	}

	states.InsertIfNovel(Event{JobID: 1, JobEpoch: 2, Demand: 0, Priority: 0.5})
	volumes = ComputeVolumes(states, 1.0, 8, 2)
	if _, ok := volumes[1]; ok {
		t.Fatalf("suspended job should not receive volume, got %v", volumes[1])
	}
}

func TestBalancerEndToEndTreeConverges(t *testing.T) {
	const clusterSize = 4
	hub := transport.NewHub(clusterSize, 16)
	balancers := make([]*Balancer, clusterSize)
	results := make([]chan int, clusterSize)
	for r := 0; r < clusterSize; r++ {
		r := r
		results[r] = make(chan int, 8)
		tr := Tree{Rank: r, ClusterSize: clusterSize}
		balancers[r] = New(tr, hub.Queue(r), 1.0, func(jobID, volume int, _ time.Duration) {
			results[r] <- volume
		}, 0)
	}

	// Pump messages across the hub until idle.
	stop := make(chan struct{})
	for r := 0; r < clusterSize; r++ {
		r := r
		go func() {
			for {
				select {
				case <-stop:
					return
				default:
				}
				m, ok := hub.Queue(r).Advance(5 * time.Millisecond)
				if ok {
					balancers[r].Handle(m)
				}
			}
		}()
	}
	defer close(stop)

	balancers[0].OnActivate(9, 4, 1.0)

	select {
	case v := <-results[0]:
		if v != clusterSize {
			t.Fatalf("root volume = %d, want %d", v, clusterSize)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for balancing convergence")
	}
}

func TestEventMapSerializeRoundTrip(t *testing.T) {
	m := NewEventMap()
	m.InsertIfNovel(Event{JobID: 1, JobEpoch: 3, Demand: 5, Priority: 0.25})
	m.BumpGlobalEpoch()

	payload, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	decoded, err := DeserializeEventMap(payload)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if decoded.GlobalEpoch() != m.GlobalEpoch() {
		t.Errorf("global epoch mismatch: %d != %d", decoded.GlobalEpoch(), m.GlobalEpoch())
	}
	e, ok := decoded.Get(1)
	if !ok || e.Demand != 5 || e.JobEpoch != 3 {
		t.Errorf("entry mismatch: %+v", e)
	}
}
