package balancer

import (
	"context"
	"sync"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/stats"

	"github.com/jabo17/mallob/internal/transport"
)

// VolumeUpdateFunc is invoked whenever a fresh broadcast changes the
// locally active job's assigned volume; it receives the job id, new
// volume, and how long the update took to converge since the triggering
// event was queued (spec §9 "Supplemented features": balancing-latency
// tracking).
type VolumeUpdateFunc func(jobID, volume int, latency time.Duration)

// Balancer implements the event-driven gossip balancer of spec §4.1. One
// instance runs per worker process.
type Balancer struct {
	tree       Tree
	queue      transport.Queue
	loadFactor float64

	periodicGate *periodicGate

	mu            sync.Mutex
	diffs         *EventMap
	states        *EventMap
	jobRootEpochs map[int]int64
	activeJobID   int
	volumes       map[int]int

	latencies *LatencyTracker
	onVolume  VolumeUpdateFunc

	stats *stats.Map
}

// New constructs a Balancer for the given reduction tree position and
// transport queue.
func New(tree Tree, queue transport.Queue, loadFactor float64, onVolume VolumeUpdateFunc, minBalancingPeriod time.Duration) *Balancer {
	return &Balancer{
		tree:          tree,
		queue:         queue,
		loadFactor:    loadFactor,
		periodicGate:  newPeriodicGate(minBalancingPeriod),
		diffs:         NewEventMap(),
		states:        NewEventMap(),
		jobRootEpochs: make(map[int]int64),
		activeJobID:   -1,
		volumes:       make(map[int]int),
		latencies:     NewLatencyTracker(),
		onVolume:      onVolume,
		stats:         stats.NewMap(),
	}
}

// OnActivate is the event trigger fired when a job is newly launched at
// this (root) worker (spec §4.1 "Events").
func (b *Balancer) OnActivate(jobID int, demand int, priority float64) {
	b.mu.Lock()
	if b.activeJobID == jobID {
		b.mu.Unlock()
		b.OnDemandChange(jobID, demand, priority)
		return
	}
	b.activeJobID = jobID
	epoch := b.jobRootEpochs[jobID] + 1
	b.jobRootEpochs[jobID] = epoch
	b.mu.Unlock()

	if demand < 1 {
		demand = 1
	}
	b.pushEvent(Event{JobID: jobID, JobEpoch: epoch, Demand: demand, Priority: priority})
}

// OnDemandChange fires when the active job's demand changes.
func (b *Balancer) OnDemandChange(jobID int, demand int, priority float64) {
	b.mu.Lock()
	epoch := b.jobRootEpochs[jobID] + 1
	b.jobRootEpochs[jobID] = epoch
	b.mu.Unlock()
	b.pushEvent(Event{JobID: jobID, JobEpoch: epoch, Demand: demand, Priority: priority})
}

// OnSuspend fires when the active job is suspended (demand drops to
// zero but the job may resume later).
func (b *Balancer) OnSuspend(jobID int, priority float64) {
	b.mu.Lock()
	if b.activeJobID == jobID {
		b.activeJobID = -1
	}
	epoch := b.jobRootEpochs[jobID] + 1
	b.jobRootEpochs[jobID] = epoch
	b.mu.Unlock()
	b.pushEvent(Event{JobID: jobID, JobEpoch: epoch, Demand: 0, Priority: priority})
}

// OnTerminate fires when the job is permanently done at this worker
// (spec §4.1: "The terminating event uses jobEpoch = MAX and zero
// demand").
func (b *Balancer) OnTerminate(jobID int) {
	b.mu.Lock()
	if b.activeJobID == jobID {
		b.activeJobID = -1
	}
	delete(b.jobRootEpochs, jobID)
	b.mu.Unlock()
	b.pushEvent(Event{JobID: jobID, JobEpoch: MaxEpoch, Demand: 0, Priority: 0})
	b.latencies.Flush(jobID)
}

func (b *Balancer) pushEvent(e Event) {
	if b.diffs.InsertIfNovel(e) {
		b.latencies.Record(e.JobID)
		b.advance()
	}
}

// advance sends the pending diff map upward if the periodic gate is open
// (spec §4.1 protocol step 1). The root short-circuits the reduce phase:
// as the top of the tree, its own diffs are already "fully reduced", so
// it bumps the global epoch and broadcasts directly (spec §4.1 step 3).
func (b *Balancer) advance() {
	if b.diffs.IsEmpty() {
		return
	}
	if !b.periodicGate.Ready() {
		return
	}
	b.mu.Lock()
	pending := b.diffs.Clone()
	b.mu.Unlock()

	if b.tree.IsRoot() {
		pending.BumpGlobalEpoch()
		b.broadcastDown(pending)
		b.digest(pending)
		return
	}
	b.sendUp(pending)
}

func (b *Balancer) sendUp(data *EventMap) {
	payload, err := data.Serialize()
	if err != nil {
		log.Error.Printf("balancer: serialize: %v", err)
		return
	}
	dest := b.tree.ParentRank()
	if err := transport.SendWithRetry(context.Background(), b.queue, dest, transport.Message{
		Tag: transport.MsgReduceData, Payload: payload,
	}); err != nil {
		log.Error.Printf("balancer: send to parent %d: %v", dest, err)
	}
}

// Handle processes an inbound transport message addressed to the
// balancer (spec §4.1 protocol steps 2-3).
func (b *Balancer) Handle(m transport.Message) {
	data, err := DeserializeEventMap(m.Payload)
	if err != nil {
		log.Error.Printf("balancer: malformed broadcast from %d: %v", m.Source, err)
		return
	}
	b.handleData(data, m.Tag)
}

func (b *Balancer) handleData(data *EventMap, tag transport.Tag) {
	if tag == transport.MsgReduceData {
		b.mu.Lock()
		b.diffs.UpdateBy(data)
		pending := b.diffs.Clone()
		b.mu.Unlock()

		if b.tree.IsRoot() {
			pending.BumpGlobalEpoch()
			b.broadcastDown(pending)
			b.digest(pending)
			return
		}
		// Interior node: merge received diffs into our own and forward
		// upward (spec §4.1 step 2).
		b.sendUp(pending)
		return
	}
	if tag == transport.MsgBroadcastData {
		b.broadcastDown(data)
		b.digest(data)
	}
}

// broadcastDown fans the merged map out to this node's reduction-tree
// children (spec §4.1 protocol step 3/4).
func (b *Balancer) broadcastDown(data *EventMap) {
	children := b.tree.ChildRanks()
	if len(children) == 0 {
		return
	}
	payload, err := data.Serialize()
	if err != nil {
		log.Error.Printf("balancer: serialize broadcast: %v", err)
		return
	}
	for _, child := range children {
		child := child
		if err := transport.SendWithRetry(context.Background(), b.queue, child, transport.Message{
			Tag: transport.MsgBroadcastData, Payload: payload,
		}); err != nil {
			log.Error.Printf("balancer: broadcast to child %d: %v", child, err)
		}
	}
}

// digest applies a received broadcast locally (spec §4.1 protocol step 4).
func (b *Balancer) digest(data *EventMap) {
	b.stats.Int("broadcasts_digested").Add(1)

	b.mu.Lock()
	b.states.UpdateBy(data)
	b.states.SetGlobalEpoch(data.GlobalEpoch())
	epoch := b.states.GlobalEpoch()
	b.mu.Unlock()

	b.computeBalancingResult(epoch)

	b.mu.Lock()
	b.diffs.FilterBy(b.states)
	b.mu.Unlock()
	b.states.RemoveOldZeros()
}

func (b *Balancer) computeBalancingResult(epoch int64) {
	b.mu.Lock()
	volumes := ComputeVolumes(b.states, b.loadFactor, b.tree.ClusterSize, epoch)
	b.volumes = volumes
	activeID := b.activeJobID
	b.mu.Unlock()

	if activeID < 0 {
		return
	}
	vol, ok := volumes[activeID]
	if !ok {
		return
	}
	latency := b.latencies.Resolve(activeID)
	if b.onVolume != nil {
		b.onVolume(activeID, vol, latency)
	}
}

// Stats exposes the balancer's internal counters for diagnostics.
func (b *Balancer) Stats() *stats.Map { return b.stats }

// Volume returns the most recently computed volume for jobID.
func (b *Balancer) Volume(jobID int) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.volumes[jobID]
	return v, ok
}

// periodicGate enforces the minimum interval between balancing rounds
// (spec §4.1: "a periodic gate (min interval between rounds)").
type periodicGate struct {
	mu       sync.Mutex
	period   time.Duration
	lastFire time.Time
}

func newPeriodicGate(period time.Duration) *periodicGate {
	return &periodicGate{period: period}
}

func (g *periodicGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	if now.Sub(g.lastFire) < g.period {
		return false
	}
	g.lastFire = now
	return true
}
