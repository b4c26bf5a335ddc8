package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// EventType names the occurrences internal/events publishes and
// internal/coordstore persists (SPEC_FULL.md §4.3, mirroring the teacher's
// EventLog taxonomy scoped down to RadioMesh's one flat network: no
// tenant/application/gateway dimensions, since RadioMesh has neither).
type EventType string

const (
	EventPacketReceived  EventType = "packet.received"
	EventPacketRouted    EventType = "packet.routed"
	EventPacketDropped   EventType = "packet.dropped"
	EventInclusionStep   EventType = "inclusion.step"
	EventInclusionDone   EventType = "inclusion.completed"
	EventInclusionFailed EventType = "inclusion.failed"
)

// Event is one row of the coordinator's packet/inclusion event log
// (SPEC_FULL.md §4.3-4.4), the RadioMesh analogue of the teacher's
// EventLog/UplinkFrame audit trail.
type Event struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
	Type      EventType      `json:"type" db:"type"`
	NodeID    mesh.DeviceID  `json:"nodeId" db:"node_id"`
	Topic     *mesh.Topic    `json:"topic,omitempty" db:"topic"`
	Reason    *mesh.ErrorKind `json:"reason,omitempty" db:"reason"`
	HopCount  *uint8         `json:"hopCount,omitempty" db:"hop_count"`
	RSSI      *int8          `json:"rssi,omitempty" db:"rssi"`
	Detail    string         `json:"detail,omitempty" db:"detail"`
}
