package mesh

import (
	"encoding/binary"
)

// Packet is a single RadioMesh frame: the 35-byte header of spec.md §3 plus
// an on-wire payload (which may carry a trailing 4-byte MIC).
type Packet struct {
	ProtocolVersion byte
	SrcID           DeviceID
	DstID           DeviceID
	PacketID        uint32
	Topic           Topic
	DeviceType      DeviceType
	HopCount        uint8
	PayloadCRC      uint32
	FrameCounter    uint32
	LastHopID       DeviceID
	NextHopID       DeviceID
	// Payload is the on-wire payload region: encrypted application data
	// optionally followed by a 4-byte MIC (see HasMIC/PayloadWithoutMIC).
	Payload []byte
}

// header field offsets, spec.md §3.
const (
	offVersion      = 0
	offSrcID        = 1
	offDstID        = 5
	offPacketID     = 9
	offTopic        = 13
	offDeviceType   = 14
	offHopCount     = 15
	offPayloadCRC   = 16
	offFrameCounter = 20
	offLastHopID    = 24
	offNextHopID    = 28
	offReserved     = 32
)

// HeaderBytes returns the first HeaderLen bytes of the serialized packet,
// the header part of the MIC's scope (spec.md §4.1).
func (p *Packet) HeaderBytes() []byte {
	buf := make([]byte, HeaderLen)
	buf[offVersion] = p.ProtocolVersion
	copy(buf[offSrcID:], p.SrcID[:])
	copy(buf[offDstID:], p.DstID[:])
	binary.BigEndian.PutUint32(buf[offPacketID:], p.PacketID)
	buf[offTopic] = byte(p.Topic)
	buf[offDeviceType] = byte(p.DeviceType)
	buf[offHopCount] = p.HopCount
	binary.BigEndian.PutUint32(buf[offPayloadCRC:], p.PayloadCRC)
	binary.BigEndian.PutUint32(buf[offFrameCounter:], p.FrameCounter)
	copy(buf[offLastHopID:], p.LastHopID[:])
	copy(buf[offNextHopID:], p.NextHopID[:])
	// reserved bytes are left zero
	return buf
}

// Serialize encodes the packet as header||payload, per spec.md §3/§4.1.
func (p *Packet) Serialize() ([]byte, error) {
	if HeaderLen+len(p.Payload) > MaxFrameLen {
		return nil, NewError("Serialize", ErrPacketTooLong, nil)
	}
	out := make([]byte, 0, HeaderLen+len(p.Payload))
	out = append(out, p.HeaderBytes()...)
	out = append(out, p.Payload...)
	return out, nil
}

// ParsePacket decodes a wire frame into a Packet (spec.md §4.1).
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderLen {
		return nil, NewError("ParsePacket", ErrMalformed, nil)
	}
	if data[offVersion] != ProtocolVersion {
		return nil, NewError("ParsePacket", ErrUnsupportedVersion, nil)
	}

	p := &Packet{ProtocolVersion: data[offVersion]}
	copy(p.SrcID[:], data[offSrcID:offSrcID+4])
	copy(p.DstID[:], data[offDstID:offDstID+4])
	p.PacketID = binary.BigEndian.Uint32(data[offPacketID : offPacketID+4])
	p.Topic = Topic(data[offTopic])
	p.DeviceType = DeviceType(data[offDeviceType])
	p.HopCount = data[offHopCount]
	p.PayloadCRC = binary.BigEndian.Uint32(data[offPayloadCRC : offPayloadCRC+4])
	p.FrameCounter = binary.BigEndian.Uint32(data[offFrameCounter : offFrameCounter+4])
	copy(p.LastHopID[:], data[offLastHopID:offLastHopID+4])
	copy(p.NextHopID[:], data[offNextHopID:offNextHopID+4])

	p.Payload = append([]byte(nil), data[HeaderLen:]...)
	return p, nil
}

// HasMIC reports whether the payload is long enough to carry a trailing
// MIC; it does not look at the topic. Callers that already know requires_mic(topic)
// should prefer that; HasMIC is a length-based heuristic for relayed frames
// whose topic isn't known yet to the caller.
func (p *Packet) HasMIC() bool {
	return len(p.Payload) >= MICLen
}

// PayloadWithoutMIC returns the payload with its trailing 4-byte MIC
// stripped, i.e. what the application sees after MIC verification
// (spec.md §3).
func (p *Packet) PayloadWithoutMIC() []byte {
	if !p.HasMIC() {
		return p.Payload
	}
	return p.Payload[:len(p.Payload)-MICLen]
}

// MIC returns the trailing 4-byte MIC, if present.
func (p *Packet) MIC() ([MICLen]byte, bool) {
	var mic [MICLen]byte
	if !p.HasMIC() {
		return mic, false
	}
	copy(mic[:], p.Payload[len(p.Payload)-MICLen:])
	return mic, true
}

// AppendMIC appends a 4-byte MIC to the payload.
func (p *Packet) AppendMIC(mic [MICLen]byte) {
	p.Payload = append(p.Payload, mic[:]...)
}

// StripMIC removes a trailing MIC, if present, leaving the cleartext or
// encrypted payload in place. Used by the router when re-framing a relayed
// packet that already carries a MIC (spec.md §4.10 step 5).
func (p *Packet) StripMIC() {
	if p.HasMIC() {
		p.Payload = p.Payload[:len(p.Payload)-MICLen]
	}
}

// Clone returns a deep copy of the packet, suitable for the router's
// copy-on-relay semantics (spec.md §3, "Packet ... copied on relay").
func (p *Packet) Clone() *Packet {
	c := *p
	c.Payload = append([]byte(nil), p.Payload...)
	return &c
}
