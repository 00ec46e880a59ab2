package balancer

import (
	"bytes"
	"encoding/gob"
)

// wireEventMap is the gob-friendly snapshot of an EventMap, used when
// shipping a diff or state map across the transport (spec §8 testable
// property 8: "deserialize(serialize(x)) == x for ... EventMap").
type wireEventMap struct {
	Entries     []Event
	GlobalEpoch int64
}

// Serialize encodes m into a byte payload suitable for a transport
// Message.
func (m *EventMap) Serialize() ([]byte, error) {
	snapshot := wireEventMap{Entries: m.Entries(), GlobalEpoch: m.GlobalEpoch()}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeEventMap decodes a payload produced by Serialize into a
// fresh EventMap.
func DeserializeEventMap(payload []byte) (*EventMap, error) {
	var snapshot wireEventMap
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&snapshot); err != nil {
		return nil, err
	}
	m := NewEventMap()
	m.globalEpoch = snapshot.GlobalEpoch
	for _, e := range snapshot.Entries {
		m.entries[e.JobID] = e
		if e.Demand == 0 {
			m.seenAtGlobalEpoch[e.JobID] = m.globalEpoch
		}
	}
	return m, nil
}
