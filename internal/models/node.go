package models

import (
	"time"

	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// Node is one row of the coordinator's fleet registry: what it has learned
// about a device over the network's lifetime, independent of whether that
// device is reachable right now. The protocol core itself has no notion of
// a registry — a node only ever knows its own routing table (spec.md §4.9)
// — this exists purely for coordinator-side introspection (SPEC_FULL.md §4.5).
type Node struct {
	BaseModel

	DeviceID       mesh.DeviceID      `json:"deviceId" db:"device_id"`
	DeviceType     mesh.DeviceType    `json:"deviceType" db:"device_type"`
	InclusionState mesh.InclusionState `json:"inclusionState" db:"inclusion_state"`

	Label    string    `json:"label,omitempty" db:"label"`
	LastSeen time.Time `json:"lastSeen" db:"last_seen"`
	LastRSSI *int8     `json:"lastRssi,omitempty" db:"last_rssi"`

	Meta Variables `json:"meta,omitempty" db:"meta"`
}

// Touch refreshes LastSeen and LastRSSI from a just-processed frame.
// Neither the protocol core nor the event subscriber calls it.
func (n *Node) Touch(now time.Time, rssi int8) {
	n.LastSeen = now
	n.LastRSSI = &rssi
}
