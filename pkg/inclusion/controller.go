package inclusion

import (
	"time"

	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// HubSession is the hub's bookkeeping for one candidate's in-flight
// inclusion attempt.
type HubSession struct {
	CandidateID  mesh.DeviceID
	CandidatePub [mesh.P256PublicLen]byte
	State        HubState
	StartedAt    time.Time
	// Nonce is the value the hub embedded in INCLUDE_RESPONSE and expects
	// echoed back unmodified in INCLUDE_CONFIRM (spec.md §4.12 step 4).
	Nonce [4]byte
}

// HubController runs the hub side of the handshake: accepting
// INCLUDE_REQUESTs, tracking sessions through to INCLUDE_CONFIRM, and
// expiring sessions that stall. Not safe for concurrent use; it is driven
// from the single-threaded device loop.
type HubController struct {
	sessions map[mesh.DeviceID]*HubSession
	// window is when the current INCLUDE_OPEN broadcast was sent, the hub's
	// WAITING_REQUEST sub-state (spec.md §4.12 step 1); nil between windows
	// or once it has timed out or a candidate has replied.
	window *time.Time
	now    func() time.Time
}

// NewHubController returns an empty HubController. now defaults to
// time.Now; tests inject a deterministic clock.
func NewHubController(now func() time.Time) *HubController {
	if now == nil {
		now = time.Now
	}
	return &HubController{sessions: make(map[mesh.DeviceID]*HubSession), now: now}
}

// OpenWindow records that the hub just broadcast INCLUDE_OPEN and entered
// WAITING_REQUEST (spec.md §4.12 step 1), superseding any still-open
// previous window.
func (h *HubController) OpenWindow() {
	t := h.now()
	h.window = &t
}

// CloseWindow clears the current broadcast window, without regard to age.
func (h *HubController) CloseWindow() {
	h.window = nil
}

// ExpireWindow reports whether the open broadcast window has gone
// SessionTimeout without any candidate replying, clearing it and returning
// true so the caller can emit INCLUSION_TIMEOUT (spec.md §8 scenario S6:
// "H's sub-state returns to PROTOCOL_IDLE ... H remains in inclusion
// mode"). Returns false if no window is open or it has not yet expired.
func (h *HubController) ExpireWindow() bool {
	if h.window == nil {
		return false
	}
	if h.now().Sub(*h.window) > SessionTimeout {
		h.window = nil
		return true
	}
	return false
}

// HandleIncludeRequest opens (or restarts) a session for candidate, always
// accepting: unauthenticated INCLUDE_REQUEST gives the hub no basis to
// refuse before the ECIES round trip (spec.md §9, Open Questions). The
// broadcast window closes, since WAITING_REQUEST ends the moment a
// candidate actually replies.
func (h *HubController) HandleIncludeRequest(candidate mesh.DeviceID, candidatePub [mesh.P256PublicLen]byte) *HubSession {
	h.window = nil
	s := &HubSession{
		CandidateID:  candidate,
		CandidatePub: candidatePub,
		State:        HubAwaitingConfirm,
		StartedAt:    h.now(),
	}
	h.sessions[candidate] = s
	return s
}

// SetNonce records the nonce the hub embedded in INCLUDE_RESPONSE for
// candidate's session, so HandleIncludeConfirm can check it is echoed back
// unchanged.
func (h *HubController) SetNonce(candidate mesh.DeviceID, nonce [4]byte) {
	if s, ok := h.sessions[candidate]; ok {
		s.Nonce = nonce
	}
}

// HandleIncludeConfirm advances a session to HubCompleted if it exists, is
// awaiting confirmation, has not timed out, and echoes back the nonce the
// hub issued in INCLUDE_RESPONSE. A nonce mismatch leaves the session
// HubAwaitingConfirm, unchanged, so the candidate may retry until
// SessionTimeout (spec.md §4.12 step 4, failure semantics).
func (h *HubController) HandleIncludeConfirm(candidate mesh.DeviceID, nonce [4]byte) (*HubSession, error) {
	s, ok := h.sessions[candidate]
	if !ok {
		return nil, mesh.NewError("HandleIncludeConfirm", mesh.ErrInclusionFailed, nil)
	}
	if h.now().Sub(s.StartedAt) > SessionTimeout {
		delete(h.sessions, candidate)
		return nil, mesh.NewError("HandleIncludeConfirm", mesh.ErrInclusionTimeout, nil)
	}
	if s.State != HubAwaitingConfirm {
		return nil, mesh.NewError("HandleIncludeConfirm", mesh.ErrInvalidState, nil)
	}
	if nonce != s.Nonce {
		return nil, mesh.NewError("HandleIncludeConfirm", mesh.ErrMICFail, nil)
	}
	s.State = HubCompleted
	return s, nil
}

// Session returns the current session for candidate, if any.
func (h *HubController) Session(candidate mesh.DeviceID) (*HubSession, bool) {
	s, ok := h.sessions[candidate]
	return s, ok
}

// ExpireSessions removes and returns the IDs of every non-completed session
// older than SessionTimeout. Callers poll this from the device tick loop.
func (h *HubController) ExpireSessions() []mesh.DeviceID {
	var expired []mesh.DeviceID
	for id, s := range h.sessions {
		if s.State != HubCompleted && h.now().Sub(s.StartedAt) > SessionTimeout {
			expired = append(expired, id)
			delete(h.sessions, id)
		}
	}
	return expired
}

// ExpireAllSessions removes and returns the IDs of every non-completed
// session immediately, regardless of age, plus closes any open broadcast
// window. Used when the hub explicitly leaves inclusion mode (spec.md
// §4.13 cancellation rule (b): "the hub leaving inclusion mode" cancels
// in-flight sessions).
func (h *HubController) ExpireAllSessions() []mesh.DeviceID {
	h.window = nil
	var ids []mesh.DeviceID
	for id, s := range h.sessions {
		if s.State != HubCompleted {
			ids = append(ids, id)
			delete(h.sessions, id)
		}
	}
	return ids
}

// DeviceController runs the candidate side of the handshake.
type DeviceController struct {
	State     DeviceState
	StartedAt time.Time
	HubPub    [mesh.P256PublicLen]byte
	// Nonce is the value INCLUDE_RESPONSE carried, echoed back unmodified
	// in this device's INCLUDE_CONFIRM (spec.md §4.12 step 4).
	Nonce [4]byte

	now func() time.Time
}

// NewDeviceController returns a DeviceController starting in DeviceIdle.
func NewDeviceController(now func() time.Time) *DeviceController {
	if now == nil {
		now = time.Now
	}
	return &DeviceController{now: now}
}

// OnIncludeOpen reports whether this device should respond with
// INCLUDE_REQUEST: only when idle or a previous attempt has already
// failed (spec.md §4.12 step 1-2).
func (d *DeviceController) OnIncludeOpen() bool {
	if d.State != DeviceIdle && d.State != DeviceFailed {
		return false
	}
	d.State = DeviceRequestSent
	d.StartedAt = d.now()
	return true
}

// OnIncludeResponse records that INCLUDE_RESPONSE arrived and the device is
// about to send INCLUDE_CONFIRM.
func (d *DeviceController) OnIncludeResponse(hubPub [mesh.P256PublicLen]byte, nonce [4]byte) error {
	if d.State != DeviceRequestSent {
		return mesh.NewError("OnIncludeResponse", mesh.ErrInvalidState, nil)
	}
	if d.now().Sub(d.StartedAt) > SessionTimeout {
		d.State = DeviceFailed
		return mesh.NewError("OnIncludeResponse", mesh.ErrInclusionTimeout, nil)
	}
	d.HubPub = hubPub
	d.Nonce = nonce
	d.State = DeviceAwaitingSuccess
	return nil
}

// OnIncludeSuccess completes the handshake from the device's point of view.
func (d *DeviceController) OnIncludeSuccess() error {
	if d.State != DeviceAwaitingSuccess {
		return mesh.NewError("OnIncludeSuccess", mesh.ErrInvalidState, nil)
	}
	if d.now().Sub(d.StartedAt) > SessionTimeout {
		d.State = DeviceFailed
		return mesh.NewError("OnIncludeSuccess", mesh.ErrInclusionTimeout, nil)
	}
	d.State = DeviceIncluded
	return nil
}

// CheckTimeout reports whether the in-flight attempt has exceeded
// SessionTimeout, transitioning to DeviceFailed if so.
func (d *DeviceController) CheckTimeout() bool {
	if d.State == DeviceIdle || d.State == DeviceIncluded || d.State == DeviceFailed {
		return false
	}
	if d.now().Sub(d.StartedAt) > SessionTimeout {
		d.State = DeviceFailed
		return true
	}
	return false
}

// MeshState projects the fine-grained DeviceState down to the three-valued
// mesh.InclusionState persisted in pkg/keys (spec.md §4.11).
func (d *DeviceController) MeshState() mesh.InclusionState {
	switch d.State {
	case DeviceIncluded:
		return mesh.Included
	case DeviceIdle, DeviceFailed:
		return mesh.NotIncluded
	default:
		return mesh.InclusionPending
	}
}
