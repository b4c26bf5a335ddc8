package events

import (
	"testing"
	"time"

	"github.com/radiomesh/radiomesh/internal/device"
	"github.com/radiomesh/radiomesh/internal/models"
	"github.com/radiomesh/radiomesh/pkg/inclusion"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

func TestFromTraceDroppedSetsReason(t *testing.T) {
	nodeID := mesh.DeviceID{1, 2, 3, 4}
	peer := mesh.DeviceID{5, 6, 7, 8}
	trace := device.TraceEvent{
		At:        time.Unix(1000, 0),
		Direction: device.DirDropped,
		Topic:     mesh.TopicCmd,
		Peer:      peer,
		Reason:    mesh.ErrMICFail,
	}

	e := FromTrace(nodeID, trace)
	if e.Type != models.EventPacketDropped {
		t.Fatalf("Type = %v, want EventPacketDropped", e.Type)
	}
	if e.Reason == nil || *e.Reason != mesh.ErrMICFail {
		t.Fatalf("Reason = %v, want %v", e.Reason, mesh.ErrMICFail)
	}
	if e.Topic == nil || *e.Topic != mesh.TopicCmd {
		t.Fatalf("Topic = %v, want %v", e.Topic, mesh.TopicCmd)
	}
	if e.NodeID != nodeID {
		t.Fatalf("NodeID = %v, want %v", e.NodeID, nodeID)
	}
}

func TestFromTraceInboundHasNoReason(t *testing.T) {
	e := FromTrace(mesh.DeviceID{1, 1, 1, 1}, device.TraceEvent{
		Direction: device.DirIn,
		Topic:     mesh.TopicPing,
		Peer:      mesh.DeviceID{2, 2, 2, 2},
	})
	if e.Type != models.EventPacketReceived {
		t.Fatalf("Type = %v, want EventPacketReceived", e.Type)
	}
	if e.Reason != nil {
		t.Fatalf("Reason = %v, want nil for a successfully received frame", e.Reason)
	}
}

func TestFromTraceOutboundIsRouted(t *testing.T) {
	e := FromTrace(mesh.DeviceID{1, 1, 1, 1}, device.TraceEvent{
		Direction: device.DirOut,
		Topic:     mesh.TopicPong,
		Peer:      mesh.DeviceID{3, 3, 3, 3},
	})
	if e.Type != models.EventPacketRouted {
		t.Fatalf("Type = %v, want EventPacketRouted", e.Type)
	}
}

func TestFromTraceZeroTimeFallsBackToNow(t *testing.T) {
	before := time.Now()
	e := FromTrace(mesh.DeviceID{}, device.TraceEvent{Direction: device.DirIn})
	if e.CreatedAt.Before(before) {
		t.Fatalf("CreatedAt = %v, want a timestamp at or after %v", e.CreatedAt, before)
	}
}

func TestFromAuditCopiesFields(t *testing.T) {
	candidate := mesh.DeviceID{9, 9, 9, 9}
	a := device.AuditEntry{
		At:     time.Unix(500, 0),
		Peer:   candidate,
		Step:   mesh.TopicIncludeRequest,
		Result: "ok",
	}

	entry := FromAudit(candidate, inclusion.HubAwaitingConfirm, a)
	if entry.CandidateID != candidate {
		t.Fatalf("CandidateID = %v, want %v", entry.CandidateID, candidate)
	}
	if entry.Step != mesh.TopicIncludeRequest {
		t.Fatalf("Step = %v, want %v", entry.Step, mesh.TopicIncludeRequest)
	}
	if entry.HubState != inclusion.HubAwaitingConfirm {
		t.Fatalf("HubState = %v, want %v", entry.HubState, inclusion.HubAwaitingConfirm)
	}
	if entry.Result != "ok" {
		t.Fatalf("Result = %q, want %q", entry.Result, "ok")
	}
}
