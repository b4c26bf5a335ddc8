package device

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/radiomesh/radiomesh/pkg/inclusion"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// includeRequestLen is candidate_public_key(64) || initial_frame_counter(4)
// (spec.md §4.12 step 2).
const includeRequestLen = mesh.P256PublicLen + 4

// includeResponsePlaintextLen is hub_public_key(64) || network_key(32) ||
// nonce(4), ECIES-encrypted to the candidate's public key (spec.md §4.12
// step 3). The wire format only names hub_public_key and the network key;
// the nonce INCLUDE_CONFIRM must echo back has no other channel to travel
// on, so it rides along in this same ciphertext (see DESIGN.md).
const includeResponsePlaintextLen = mesh.P256PublicLen + 32 + 4

// OpenInclusionWindow broadcasts INCLUDE_OPEN (spec.md §4.12 step 1). Only a
// hub calls this, and only while inclusion_mode is on (spec.md §4.10 law
// 10: "a hub can never emit INCLUDE_OPEN while inclusion_mode = false");
// Device.Tick drives it automatically on Config.IncludeOpenInterval.
func (d *Device) OpenInclusionWindow(ctx context.Context) error {
	if d.Role != mesh.DeviceTypeHub || !d.InclusionMode() {
		return mesh.NewError("OpenInclusionWindow", mesh.ErrInvalidState, nil)
	}
	d.lastIncludeOpen = d.now()

	for _, id := range d.Hub.ExpireSessions() {
		d.AuditLog.record(AuditEntry{Peer: id, Step: mesh.TopicIncludeOpen, Result: "timeout"})
	}
	// A previous broadcast that never drew an INCLUDE_REQUEST times out here
	// (spec.md §8 S6): sub-state returns to PROTOCOL_IDLE, the hub stays in
	// inclusion mode, and a fresh window opens below.
	if d.Hub.ExpireWindow() {
		d.AuditLog.record(AuditEntry{Peer: mesh.BroadcastID, Step: mesh.TopicIncludeOpen, Result: "timeout"})
	}
	d.Hub.OpenWindow()

	fc, err := d.nextFrameCounter()
	if err != nil {
		return err
	}
	pkt, err := d.Router.PrepareOutbound(mesh.TopicIncludeOpen, mesh.BroadcastID, d.nextPacketID(), fc, nil)
	if err != nil {
		return err
	}
	return d.transmit(ctx, pkt)
}

// handleInclusion dispatches one inclusion-class frame to its step handler
// (spec.md §4.12). Each step ignores frames addressed to the wrong role
// (a hub never responds to INCLUDE_OPEN, a device never to INCLUDE_REQUEST)
// by returning nil without action.
func (d *Device) handleInclusion(ctx context.Context, pkt *mesh.Packet, rssi int8) error {
	switch pkt.Topic {
	case mesh.TopicIncludeOpen:
		return d.onIncludeOpen(ctx, pkt)
	case mesh.TopicIncludeRequest:
		return d.onIncludeRequest(ctx, pkt)
	case mesh.TopicIncludeResponse:
		return d.onIncludeResponse(ctx, pkt)
	case mesh.TopicIncludeConfirm:
		return d.onIncludeConfirm(ctx, pkt)
	case mesh.TopicIncludeSuccess:
		return d.onIncludeSuccess(ctx, pkt)
	default:
		return nil
	}
}

// onIncludeOpen is a candidate device's response to the hub's broadcast
// (spec.md §4.12 step 1-2). Receiving INCLUDE_OPEN while a previous attempt
// is still in flight cancels it and restarts (spec.md §4.13,
// "Cancellation / timeout" (c)).
func (d *Device) onIncludeOpen(ctx context.Context, pkt *mesh.Packet) error {
	if d.Role == mesh.DeviceTypeHub {
		return nil
	}
	if d.Device.State != inclusion.DeviceIdle && d.Device.State != inclusion.DeviceFailed {
		d.Device.State = inclusion.DeviceIdle
	}
	if !d.Device.OnIncludeOpen() {
		return nil
	}
	d.AuditLog.record(AuditEntry{Peer: pkt.SrcID, Step: pkt.Topic, Result: "ok"})

	fc, err := d.nextFrameCounter()
	if err != nil {
		return err
	}
	payload := make([]byte, includeRequestLen)
	copy(payload, d.Crypto.DevicePublic[:])
	binary.BigEndian.PutUint32(payload[mesh.P256PublicLen:], fc)

	out, err := d.Router.PrepareOutbound(mesh.TopicIncludeRequest, pkt.SrcID, d.nextPacketID(), fc, payload)
	if err != nil {
		return err
	}
	if err := d.Keys.SetInclusionState(mesh.InclusionPending); err != nil {
		return err
	}
	d.Crypto.State = mesh.InclusionPending
	return d.transmit(ctx, out)
}

// onIncludeRequest is the hub's handling of a candidate's public key
// (spec.md §4.12 step 2-3). The hub accepts unconditionally — INCLUDE_REQUEST
// is unauthenticated by design (spec.md §9) — generates the session nonce,
// and answers with INCLUDE_RESPONSE.
func (d *Device) onIncludeRequest(ctx context.Context, pkt *mesh.Packet) error {
	if d.Role != mesh.DeviceTypeHub {
		return nil
	}
	if !d.InclusionMode() {
		d.drop(mesh.NewError("onIncludeRequest", mesh.ErrInvalidState, nil), pkt)
		return nil
	}
	if len(pkt.Payload) != includeRequestLen {
		d.drop(mesh.NewError("onIncludeRequest", mesh.ErrMalformed, nil), pkt)
		return nil
	}

	var candidatePub [mesh.P256PublicLen]byte
	copy(candidatePub[:], pkt.Payload[:mesh.P256PublicLen])

	session := d.Hub.HandleIncludeRequest(pkt.SrcID, candidatePub)

	var nonce [4]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return mesh.NewError("onIncludeRequest", mesh.ErrCryptoSetup, err)
	}
	d.Hub.SetNonce(pkt.SrcID, nonce)
	d.AuditLog.record(AuditEntry{Peer: pkt.SrcID, Step: pkt.Topic, Result: hubStateLabel(session.State)})

	plaintext := make([]byte, 0, includeResponsePlaintextLen)
	plaintext = append(plaintext, d.Crypto.DevicePublic[:]...)
	plaintext = append(plaintext, d.Crypto.NetworkKey[:]...)
	plaintext = append(plaintext, nonce[:]...)

	d.Crypto.PeerPublic = &candidatePub
	fc, err := d.nextFrameCounter()
	if err != nil {
		d.Crypto.PeerPublic = nil
		return err
	}
	out, err := d.Router.PrepareOutbound(mesh.TopicIncludeResponse, pkt.SrcID, d.nextPacketID(), fc, plaintext)
	d.Crypto.PeerPublic = nil
	if err != nil {
		return err
	}
	return d.transmit(ctx, out)
}

// onIncludeResponse decrypts the hub's key material and answers with
// INCLUDE_CONFIRM (spec.md §4.12 step 3-4). Unwrap derives the ECIES
// session key from this device's own private key and the response's
// ephemeral public key, so it needs no prior knowledge of the hub's
// identity key to verify the MIC (see pkg/mesh/ecies.go, DESIGN.md).
func (d *Device) onIncludeResponse(ctx context.Context, pkt *mesh.Packet) error {
	if d.Role == mesh.DeviceTypeHub {
		return nil
	}
	if d.Device.State != inclusion.DeviceRequestSent {
		return nil
	}

	plaintext, err := d.Router.Unwrap(pkt)
	if err != nil {
		d.drop(err, pkt)
		return nil
	}
	if len(plaintext) != includeResponsePlaintextLen {
		d.drop(mesh.NewError("onIncludeResponse", mesh.ErrMalformed, nil), pkt)
		return nil
	}

	var hubPub [mesh.P256PublicLen]byte
	copy(hubPub[:], plaintext[:mesh.P256PublicLen])
	var networkKey [32]byte
	copy(networkKey[:], plaintext[mesh.P256PublicLen:mesh.P256PublicLen+32])
	var nonce [4]byte
	copy(nonce[:], plaintext[mesh.P256PublicLen+32:])

	if err := d.Device.OnIncludeResponse(hubPub, nonce); err != nil {
		d.drop(err, pkt)
		return nil
	}
	if err := d.Keys.SetHubPublic(hubPub); err != nil {
		return err
	}
	if err := d.Keys.SetNetworkKey(networkKey); err != nil {
		return err
	}
	d.Crypto.HubPublic = &hubPub
	d.Crypto.NetworkKey = &networkKey
	d.AuditLog.record(AuditEntry{Peer: pkt.SrcID, Step: pkt.Topic, Result: "ok"})

	fc, err := d.nextFrameCounter()
	if err != nil {
		return err
	}
	out, err := d.Router.PrepareOutbound(mesh.TopicIncludeConfirm, pkt.SrcID, d.nextPacketID(), fc, nonce[:])
	if err != nil {
		return err
	}
	return d.transmit(ctx, out)
}

// onIncludeConfirm is the hub's nonce check and INCLUDE_SUCCESS reply
// (spec.md §4.12 step 4-5). A nonce mismatch drops the frame and leaves the
// session awaiting confirmation until it times out (spec.md §9).
func (d *Device) onIncludeConfirm(ctx context.Context, pkt *mesh.Packet) error {
	if d.Role != mesh.DeviceTypeHub {
		return nil
	}

	plaintext, err := d.Router.Unwrap(pkt)
	if err != nil {
		d.drop(err, pkt)
		return nil
	}
	if len(plaintext) != 4 {
		d.drop(mesh.NewError("onIncludeConfirm", mesh.ErrMalformed, nil), pkt)
		return nil
	}
	var nonce [4]byte
	copy(nonce[:], plaintext)

	session, err := d.Hub.HandleIncludeConfirm(pkt.SrcID, nonce)
	if err != nil {
		d.drop(err, pkt)
		return nil
	}
	d.AuditLog.record(AuditEntry{Peer: pkt.SrcID, Step: pkt.Topic, Result: hubStateLabel(session.State)})

	fc, err := d.nextFrameCounter()
	if err != nil {
		return err
	}
	out, err := d.Router.PrepareOutbound(mesh.TopicIncludeSuccess, pkt.SrcID, d.nextPacketID(), fc, nil)
	if err != nil {
		return err
	}
	return d.transmit(ctx, out)
}

// onIncludeSuccess completes the handshake on the candidate side (spec.md
// §4.12 step 5): persist state = INCLUDED and the freshly learned keys.
func (d *Device) onIncludeSuccess(ctx context.Context, pkt *mesh.Packet) error {
	if d.Role == mesh.DeviceTypeHub {
		return nil
	}
	if _, err := d.Router.Unwrap(pkt); err != nil {
		d.drop(err, pkt)
		return nil
	}
	if err := d.Device.OnIncludeSuccess(); err != nil {
		d.drop(err, pkt)
		return nil
	}
	if err := d.Keys.SetInclusionState(mesh.Included); err != nil {
		return err
	}
	d.Crypto.State = mesh.Included
	d.AuditLog.record(AuditEntry{Peer: pkt.SrcID, Step: pkt.Topic, Result: "ok"})
	return nil
}
