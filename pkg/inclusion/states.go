// Package inclusion implements the five-message onboarding handshake of
// spec.md §4.12: a hub-side controller tracking one session per candidate,
// and a device-side controller tracking the candidate's own progress.
package inclusion

import "time"

// SessionTimeout bounds how long either side keeps an in-flight inclusion
// session alive before abandoning it and reverting to idle (spec.md §4.12,
// §9).
const SessionTimeout = 60 * time.Second

// HubState is the hub's per-candidate sub-state while handling one
// inclusion session.
type HubState int

const (
	// HubWaitingRequest: the hub has broadcast INCLUDE_OPEN and is waiting
	// for a candidate to reply with INCLUDE_REQUEST (spec.md §4.12 step 1).
	// Tracked by HubController as a single pending broadcast window rather
	// than a per-candidate HubSession, since no candidate is known yet.
	HubWaitingRequest HubState = iota
	// HubAwaitingConfirm: the hub has sent INCLUDE_RESPONSE and is waiting
	// for the candidate's INCLUDE_CONFIRM.
	HubAwaitingConfirm
	// HubCompleted: INCLUDE_SUCCESS was sent; the candidate is a member.
	HubCompleted
	// HubFailed: the session timed out or was rejected.
	HubFailed
)

func (s HubState) String() string {
	switch s {
	case HubWaitingRequest:
		return "waiting_request"
	case HubAwaitingConfirm:
		return "awaiting_confirm"
	case HubCompleted:
		return "completed"
	case HubFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DeviceState is a candidate's own sub-state while cycling through an
// inclusion attempt. It refines mesh.InclusionState (see MeshState) with
// the in-between steps the wire protocol needs tracked.
type DeviceState int

const (
	// DeviceIdle: not currently attempting inclusion.
	DeviceIdle DeviceState = iota
	// DeviceRequestSent: INCLUDE_REQUEST sent, awaiting INCLUDE_RESPONSE.
	DeviceRequestSent
	// DeviceAwaitingSuccess: INCLUDE_CONFIRM sent, awaiting INCLUDE_SUCCESS.
	DeviceAwaitingSuccess
	// DeviceIncluded: INCLUDE_SUCCESS received; a full member.
	DeviceIncluded
	// DeviceFailed: the attempt timed out.
	DeviceFailed
)

func (s DeviceState) String() string {
	switch s {
	case DeviceIdle:
		return "idle"
	case DeviceRequestSent:
		return "request_sent"
	case DeviceAwaitingSuccess:
		return "awaiting_success"
	case DeviceIncluded:
		return "included"
	case DeviceFailed:
		return "failed"
	default:
		return "unknown"
	}
}
