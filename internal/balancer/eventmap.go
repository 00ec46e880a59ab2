package balancer

import "sync"

// staleZeroAge is how many global epochs a zero-demand (suspended or
// terminated) entry is retained before RemoveOldZeros evicts it, per
// spec §4.1 step 4 ("removes old zero-demand state entries whose epoch
// is sufficiently stale").
const staleZeroAge = 16

// EventMap is a job-id-keyed collection of the latest known Event per
// job, plus a monotonically increasing global epoch bumped by the root
// on each broadcast (spec §3: "diff map and ... state map").
type EventMap struct {
	mu          sync.Mutex
	entries     map[int]Event
	globalEpoch int64
	// seenAtGlobalEpoch records, for zero-demand entries, the global
	// epoch at which they were last updated, so RemoveOldZeros can
	// evict entries that have gone stale.
	seenAtGlobalEpoch map[int]int64
}

// NewEventMap returns an empty EventMap.
func NewEventMap() *EventMap {
	return &EventMap{
		entries:           make(map[int]Event),
		seenAtGlobalEpoch: make(map[int]int64),
	}
}

// InsertIfNovel inserts e if it is newer (by epoch) than the entry
// currently stored for e.JobID, returning whether it was inserted (spec
// §4.1: "Events are inserted if novel ... into the local diff map").
func (m *EventMap) InsertIfNovel(e Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[e.JobID]
	if ok && !e.NewerThan(cur) {
		return false
	}
	m.entries[e.JobID] = e
	return true
}

// UpdateBy merges another EventMap's entries into this one, keeping only
// the per-job latest epoch (spec §4.1 step 4: "every node updates its
// state map, taking the per-job latest epoch").
func (m *EventMap) UpdateBy(other *EventMap) {
	other.mu.Lock()
	incoming := make([]Event, 0, len(other.entries))
	for _, e := range other.entries {
		incoming = append(incoming, e)
	}
	other.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range incoming {
		cur, ok := m.entries[e.JobID]
		if !ok || e.NewerThan(cur) {
			m.entries[e.JobID] = e
			if e.IsTermination() || e.Demand == 0 {
				m.seenAtGlobalEpoch[e.JobID] = m.globalEpoch
			} else {
				delete(m.seenAtGlobalEpoch, e.JobID)
			}
		}
	}
}

// FilterBy drops entries from m that are subsumed by other (i.e. other
// has an equal-or-newer epoch for the same job), per spec §4.1 step 4:
// "filters its diff map to drop entries that the broadcast has
// subsumed".
func (m *EventMap) FilterBy(other *EventMap) {
	other.mu.Lock()
	snapshot := make(map[int]Event, len(other.entries))
	for id, e := range other.entries {
		snapshot[id] = e
	}
	other.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if o, ok := snapshot[id]; ok && !e.NewerThan(o) {
			delete(m.entries, id)
		}
	}
}

// RemoveOldZeros evicts zero-demand entries whose global epoch is older
// than staleZeroAge epochs, per spec §4.1 step 4.
func (m *EventMap) RemoveOldZeros() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, seenAt := range m.seenAtGlobalEpoch {
		if m.globalEpoch-seenAt >= staleZeroAge {
			delete(m.entries, id)
			delete(m.seenAtGlobalEpoch, id)
		}
	}
}

// BumpGlobalEpoch increments and returns the global epoch; only the root
// calls this (spec §4.1 step 3).
func (m *EventMap) BumpGlobalEpoch() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalEpoch++
	return m.globalEpoch
}

// GlobalEpoch returns the current global epoch.
func (m *EventMap) GlobalEpoch() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globalEpoch
}

// SetGlobalEpoch raises the global epoch to a value received in a
// broadcast; a value not larger than the current epoch is ignored.
func (m *EventMap) SetGlobalEpoch(epoch int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch > m.globalEpoch {
		m.globalEpoch = epoch
	}
}

// IsEmpty reports whether the map has no entries.
func (m *EventMap) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries) == 0
}

// Entries returns a snapshot slice of all events currently held.
func (m *EventMap) Entries() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// Get returns the event for jobId, if any.
func (m *EventMap) Get(jobID int) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[jobID]
	return e, ok
}

// Clone returns a deep copy of m, useful for taking an immutable
// snapshot before sending it across a message boundary.
func (m *EventMap) Clone() *EventMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := NewEventMap()
	clone.globalEpoch = m.globalEpoch
	for id, e := range m.entries {
		clone.entries[id] = e
	}
	for id, epoch := range m.seenAtGlobalEpoch {
		clone.seenAtGlobalEpoch[id] = epoch
	}
	return clone
}
