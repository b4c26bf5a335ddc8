package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/radiomesh/radiomesh/internal/device"
	"github.com/radiomesh/radiomesh/internal/models"
	"github.com/radiomesh/radiomesh/pkg/inclusion"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// FromTrace converts one internal/device.TraceEvent into the event-log
// shape the coordinator persists and publishes, mirroring the field-copy
// construction in the teacher's handleApplicationUplink.
func FromTrace(nodeID mesh.DeviceID, t device.TraceEvent) *models.Event {
	e := &models.Event{
		ID:        uuid.New(),
		CreatedAt: traceTime(t.At),
		NodeID:    nodeID,
	}
	topic := t.Topic
	e.Topic = &topic

	switch t.Direction {
	case device.DirIn:
		e.Type = models.EventPacketReceived
		e.Detail = "received from " + t.Peer.String()
	case device.DirOut:
		e.Type = models.EventPacketRouted
		e.Detail = "sent to " + t.Peer.String()
	case device.DirDropped:
		e.Type = models.EventPacketDropped
		reason := t.Reason
		e.Reason = &reason
		e.Detail = "dropped frame from " + t.Peer.String()
	}
	return e
}

// FromAudit converts one internal/device.AuditEntry into the inclusion
// audit trail's persisted form (SPEC_FULL.md §4.4).
func FromAudit(candidateID mesh.DeviceID, hubState inclusion.HubState, a device.AuditEntry) *models.InclusionAuditEntry {
	return &models.InclusionAuditEntry{
		ID:          uuid.New(),
		CreatedAt:   traceTime(a.At),
		CandidateID: candidateID,
		Step:        a.Step,
		HubState:    hubState,
		Result:      a.Result,
	}
}

func traceTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
