package mesh

import "time"

// Router wires the dedup tracker, routing table, encryption and MIC
// services together into the node's inbound/outbound packet pipeline
// (spec.md §4.10). A node owns exactly one Router, driven single-threaded
// from its device loop.
type Router struct {
	LocalID DeviceID
	Crypto  *CryptoContext

	Tracker *PacketTracker
	Routing *RoutingTable
	Mic     *MicService
	Enc     *EncryptionService
}

// NewRouter builds a Router around a freshly constructed tracker and
// routing table for ctx's node. now drives the routing table's TTL clock;
// nil defaults to time.Now.
func NewRouter(localID DeviceID, ctx *CryptoContext, now func() time.Time) *Router {
	return &Router{
		LocalID: localID,
		Crypto:  ctx,
		Tracker: NewPacketTracker(),
		Routing: NewRoutingTable(now),
		Mic:     NewMicService(),
		Enc:     NewEncryptionService(),
	}
}

// Decision is the outcome of routing one inbound packet.
type Decision struct {
	// DeliverPayload is non-nil when the packet was addressed to this node
	// (unicast or broadcast) and passed integrity checks: the decrypted
	// application payload, ready to hand to the device's dispatch logic.
	DeliverPayload []byte
	// Relay is non-nil when the packet should be re-transmitted toward
	// other neighbors. It is the wire-ready output of RelayPacket: hop
	// count bumped, next hop resolved and re-MICed over the mutated header,
	// with the payload ciphertext forwarded unchanged (spec.md §4.10, §4.13
	// step 9).
	Relay *Packet
}

// HandleInbound runs the receive-side pipeline of spec.md §4.13 steps 2-9
// (packet parsing and the frame-counter/CRC check happen in the caller,
// internal/device, before this is reached):
//
//  1. drop frames already seen (packet_id, payload_crc) via the tracker;
//  2. record the frame in the tracker;
//  3. learn/refresh a route to the original source, unless the flood depth
//     guard (hop_count >= MAX_HOPS-1) applies (spec.md §4.9);
//  4. if addressed to us (unicast to our ID, or broadcast): verify the MIC
//     if the topic requires one, decrypt the payload, and deliver it;
//  5. if not addressed to us, or addressed to broadcast (which is always
//     also relayed): re-frame the packet through RelayPacket to produce
//     the relay, unless hop_count has already reached the flood ceiling.
func (r *Router) HandleInbound(pkt *Packet, rssi int8) (Decision, error) {
	var dec Decision

	if r.Tracker.Seen(pkt.PacketID, pkt.PayloadCRC) {
		return dec, nil
	}
	r.Tracker.Record(pkt.PacketID, pkt.PayloadCRC)

	if pkt.HopCount < MaxHopCount-1 && !pkt.SrcID.IsBroadcast() {
		r.Routing.Update(pkt.SrcID, pkt.LastHopID, pkt.HopCount+1, rssi)
	}

	forUs := pkt.DstID == r.LocalID || pkt.DstID.IsBroadcast()
	if forUs {
		payload, err := r.Unwrap(pkt)
		if err != nil {
			return dec, err
		}
		dec.DeliverPayload = payload
	}

	wantsRelay := pkt.DstID.IsBroadcast() || pkt.DstID != r.LocalID
	if wantsRelay {
		relay, err := r.RelayPacket(pkt.Clone())
		if err != nil {
			return dec, err
		}
		dec.Relay = relay
	}

	return dec, nil
}

// Unwrap verifies the MIC (if the topic requires one) and decrypts the
// payload of a packet addressed to this node, returning the cleartext
// application payload. Exported so internal/device can reuse it on
// inclusion-class packets, which it handles outside HandleInbound's
// general relay/deliver path.
func (r *Router) Unwrap(pkt *Packet) ([]byte, error) {
	body := pkt.Payload
	needsMIC := r.Mic.RequiresMIC(pkt.Topic)
	var mic [MICLen]byte
	if needsMIC {
		var present bool
		mic, present = pkt.MIC()
		if !present {
			return nil, NewError("Unwrap", ErrMICFail, nil)
		}
		body = pkt.PayloadWithoutMIC()
	}

	plaintext, _, macKey, err := r.Enc.Decrypt(r.Crypto, pkt.Topic, body)
	if err != nil {
		return nil, err
	}

	if needsMIC {
		ok, err := r.verifyMIC(pkt, macKey, mic)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewError("Unwrap", ErrMICFail, nil)
		}
	}

	return plaintext, nil
}

// verifyMIC checks pkt's MIC over its current header bytes followed by the
// encrypted payload (without the MIC), using macKey
// directly when non-nil (the ECIES session key INCLUDE_RESPONSE carries —
// see EncryptionService.Decrypt and DESIGN.md) or falling back to
// MicService's network-key lookup otherwise.
func (r *Router) verifyMIC(pkt *Packet, macKey []byte, mic [MICLen]byte) (bool, error) {
	data := append(pkt.HeaderBytes(), pkt.PayloadWithoutMIC()...)
	if macKey != nil {
		return VerifyMIC(macKey, data, mic)
	}
	return r.Mic.Verify(r.Crypto, pkt.Topic, data, mic)
}

// PrepareOutbound builds a fresh packet for an application payload this
// node originates, with cleartext payload and hop_count/last_hop_id set to
// this node's own identity, then hands it to RoutePacket to do the actual
// framing (spec.md §4.10: "Send: app -> Device.sendData -> routePacket").
// Callers supply packetID and frameCounter (the device owns their
// sequencing).
func (r *Router) PrepareOutbound(topic Topic, dst DeviceID, packetID, frameCounter uint32, payload []byte) (*Packet, error) {
	pkt := &Packet{
		ProtocolVersion: ProtocolVersion,
		SrcID:           r.LocalID,
		DstID:           dst,
		PacketID:        packetID,
		Topic:           topic,
		DeviceType:      r.Crypto.Role,
		HopCount:        0,
		FrameCounter:    frameCounter,
		LastHopID:       r.LocalID,
		NextHopID:       dst,
		Payload:         payload,
	}
	return r.RoutePacket(pkt)
}

// RoutePacket implements spec.md §4.10's ten-step outbound pipeline for a
// frame this node originates (PrepareOutbound): the payload is cleartext
// application data that still needs encrypting. A relayed frame never
// reaches RoutePacket — its ciphertext was already produced by whichever
// node originated it, and running it back through EncryptionService would
// transform already-encrypted bytes as if they were plaintext. RelayPacket
// is the analogous pipeline for that case.
//
//  1. hop_count >= 7 -> MAX_HOPS, refuse;
//  2. last_hop_id = our_id; hop_count += 1;
//  3. if dst != broadcast, resolve next_hop_id via the routing table (zero
//     stays broadcast-to-any-relay if no route is known);
//  4. reserved bytes are always zero (HeaderBytes never sets them);
//  5. (no MIC stripping here: an originated payload carries no MIC yet,
//     and relayed frames have theirs stripped by RelayPacket);
//  6. encrypt the cleartext payload per the EncryptionService matrix;
//  7. compute payload_crc over frame_counter and the encrypted payload
//     (spec.md §3's invariant: "post-encryption, pre-MIC payload" — computed
//     here, before step 8, so the header the MIC covers already carries its
//     final crc field; see DESIGN.md for why this breaks a circular
//     dependency that spec.md §4.10's step-8 wording leaves implicit);
//  8. append a MIC if MicService requires one for this topic, computed over
//     the now-final header bytes plus the encrypted payload;
//  9. (serialization happens at transmit time, not here);
//  10. record (packet_id, payload_crc) in the tracker.
func (r *Router) RoutePacket(pkt *Packet) (*Packet, error) {
	if pkt.HopCount >= MaxHopCount {
		return nil, NewError("RoutePacket", ErrMaxHops, nil)
	}

	pkt.LastHopID = r.LocalID
	pkt.HopCount++

	if !pkt.DstID.IsBroadcast() {
		if nextHop, ok := r.Routing.FindNextHop(pkt.DstID); ok {
			pkt.NextHopID = nextHop
		} else {
			pkt.NextHopID = DeviceID{}
		}
	} else {
		pkt.NextHopID = DeviceID{}
	}

	ciphertext, _, macKey, err := r.Enc.Encrypt(r.Crypto, pkt.Topic, pkt.Payload)
	if err != nil {
		return nil, err
	}
	pkt.Payload = ciphertext
	pkt.PayloadCRC = PayloadCRC(pkt.FrameCounter, pkt.Payload)

	if r.Mic.RequiresMIC(pkt.Topic) {
		mic, err := r.computeMIC(pkt, macKey)
		if err != nil {
			return nil, err
		}
		pkt.AppendMIC(mic)
	}

	r.Tracker.Record(pkt.PacketID, pkt.PayloadCRC)
	return pkt, nil
}

// RelayPacket re-frames an already-encrypted packet this node is forwarding
// on behalf of another node (spec.md §4.10, §4.13 step 9): the header fields
// a relay owns (last_hop_id, hop_count, next_hop_id) are updated and a fresh
// MIC is computed over the mutated header and the payload, but the payload bytes on the wire
// — whatever EncryptionService produced at the originating node — pass
// through untouched. A relay node holds no application-layer view of the
// payload and has no business re-running it through the encryption matrix.
func (r *Router) RelayPacket(pkt *Packet) (*Packet, error) {
	if pkt.HopCount >= MaxHopCount {
		return nil, NewError("RelayPacket", ErrMaxHops, nil)
	}

	// INCLUDE_RESPONSE is MICed under a one-off ECIES session key that only
	// the hub and the candidate ever derive (spec.md §4.7); a relay has no
	// path to that key and cannot re-secure the header it is about to
	// mutate. Refuse outright rather than reframe it under the network key,
	// which the candidate's verifyMIC could never reproduce. In practice
	// this means inclusion requires the candidate to be within direct radio
	// range of the hub, the same constraint LoRaWAN's OTAA join enforces.
	if pkt.Topic == TopicIncludeResponse {
		return nil, NewError("RelayPacket", ErrMissingKey, nil)
	}

	pkt.LastHopID = r.LocalID
	pkt.HopCount++

	if !pkt.DstID.IsBroadcast() {
		if nextHop, ok := r.Routing.FindNextHop(pkt.DstID); ok {
			pkt.NextHopID = nextHop
		} else {
			pkt.NextHopID = DeviceID{}
		}
	} else {
		pkt.NextHopID = DeviceID{}
	}

	// A relay forwards on trust: it never verifies the MIC it strips, since
	// its key selection may not even match the originator's (inclusion-class
	// topics carry a one-off ECIES session key relays don't have). It only
	// needs to replace the MIC to account for the header fields it just
	// mutated.
	if r.Mic.RequiresMIC(pkt.Topic) {
		if _, present := pkt.MIC(); !present {
			return nil, NewError("RelayPacket", ErrMICFail, nil)
		}
		pkt.StripMIC()
		newMIC, err := r.Mic.Compute(r.Crypto, pkt.Topic, append(pkt.HeaderBytes(), pkt.Payload...))
		if err != nil {
			return nil, err
		}
		pkt.AppendMIC(newMIC)
	}

	r.Tracker.Record(pkt.PacketID, pkt.PayloadCRC)
	return pkt, nil
}

// computeMIC mirrors verifyMIC's key selection for the outbound side.
func (r *Router) computeMIC(pkt *Packet, macKey []byte) ([MICLen]byte, error) {
	data := append(pkt.HeaderBytes(), pkt.Payload...)
	if macKey != nil {
		return ComputeMIC(macKey, data)
	}
	return r.Mic.Compute(r.Crypto, pkt.Topic, data)
}
