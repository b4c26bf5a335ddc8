package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/radiomesh/radiomesh/pkg/inclusion"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// InclusionAuditEntry is one recorded step of a candidate's handshake
// (spec.md §4.12), observed and persisted but never driving the handshake
// itself — SPEC_FULL.md §4.4's audit trail, mirroring the teacher's
// join-procedure event logging.
type InclusionAuditEntry struct {
	ID         uuid.UUID           `json:"id" db:"id"`
	CreatedAt  time.Time           `json:"createdAt" db:"created_at"`
	CandidateID mesh.DeviceID      `json:"candidateId" db:"candidate_id"`
	Step       mesh.Topic          `json:"step" db:"step"`
	HubState   inclusion.HubState  `json:"hubState" db:"hub_state"`
	Result     string              `json:"result" db:"result"`
}

// RouteSnapshot is one row of a node's routing table at the moment it was
// captured, the persisted form of mesh.RouteEntry (SPEC_FULL.md §4.2).
type RouteSnapshot struct {
	NodeID    mesh.DeviceID `json:"nodeId" db:"node_id"`
	Dest      mesh.DeviceID `json:"dest" db:"dest"`
	NextHop   mesh.DeviceID `json:"nextHop" db:"next_hop"`
	HopCount  uint8         `json:"hopCount" db:"hop_count"`
	RSSI      int8          `json:"rssi" db:"rssi"`
	LastSeen  time.Time     `json:"lastSeen" db:"last_seen"`
	CapturedAt time.Time    `json:"capturedAt" db:"captured_at"`
}

// FromRouteEntry converts a live routing-table row into its persisted form.
func FromRouteEntry(nodeID mesh.DeviceID, e mesh.RouteEntry, capturedAt time.Time) RouteSnapshot {
	return RouteSnapshot{
		NodeID:     nodeID,
		Dest:       e.Dest,
		NextHop:    e.NextHop,
		HopCount:   e.HopCount,
		RSSI:       e.RSSI,
		LastSeen:   e.LastSeen,
		CapturedAt: capturedAt,
	}
}
