// Package device implements the single node façade (spec.md §4.13): a
// cooperative tick loop that services one radio, dispatching inbound
// frames to the inclusion handshake or the packet router and draining
// outbound frames the same pipeline produces.
//
// The loop is deliberately single-threaded, mirroring the embedded target
// this protocol was designed for: one background goroutine plays the role
// of the hardware ISR, only ever setting three boolean flags
// (rxDone/txDone/radioStateError) and handing off a received frame through
// a buffered channel; Tick is the only place state is read or mutated.
package device

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/radiomesh/radiomesh/pkg/inclusion"
	"github.com/radiomesh/radiomesh/pkg/keys"
	"github.com/radiomesh/radiomesh/pkg/mesh"
	"github.com/radiomesh/radiomesh/pkg/radio"
)

// DeliverFunc receives application payloads addressed to this node.
type DeliverFunc func(topic mesh.Topic, src mesh.DeviceID, payload []byte)

// DropFunc observes a frame the device declined to process further, and
// why — the diagnostic drop callback referenced throughout this package's
// tests and the simulator's verbose mode.
type DropFunc func(reason mesh.ErrorKind, pkt *mesh.Packet)

// Device is one RadioMesh node: its identity, persisted key material, the
// packet pipeline, and (depending on Role) one side of the inclusion
// handshake.
type Device struct {
	ID     mesh.DeviceID
	Role   mesh.DeviceType
	Radio  radio.Radio
	Keys   *keys.KeyManager
	Router *mesh.Router
	Crypto *mesh.CryptoContext

	Hub    *inclusion.HubController    // set only when Role == DeviceTypeHub
	Device *inclusion.DeviceController // set only when Role != DeviceTypeHub

	OnDeliver DeliverFunc
	OnDrop    DropFunc

	Trace            *Tracer
	AuditLog         *AuditLog
	includeOpenEvery time.Duration
	lastIncludeOpen  time.Time
	// inclusionMode is the hub's runtime inclusion_mode flag (spec.md
	// §4.13: "Hub MUST refuse to send inclusion-class topics when
	// inclusion_mode = false"). Starts true iff IncludeOpenInterval > 0 and
	// is toggled at runtime via SetInclusionMode.
	inclusionMode atomic.Bool

	now func() time.Time

	rxDone          atomic.Bool
	txDone          atomic.Bool
	radioStateError atomic.Bool

	rxCh chan radio.Received
}

// RouteInfo describes one destination this node currently has a route for
// (RoutingSnapshot, the coordinator's topology view).
type RouteInfo = mesh.RouteEntry

// Config collects the pieces New needs to assemble a Device.
type Config struct {
	ID    mesh.DeviceID
	Role  mesh.DeviceType
	Radio radio.Radio
	Keys  *keys.KeyManager
	Now   func() time.Time
	// IncludeOpenInterval governs how often a hub re-broadcasts
	// INCLUDE_OPEN (spec.md §4.12 step 1). Zero disables automatic
	// broadcasting; the caller drives OpenInclusionWindow manually.
	IncludeOpenInterval time.Duration
}

// New assembles a Device from its persisted key material, deriving the
// CryptoContext and picking the hub or device side of the inclusion
// controller by Role.
func New(cfg Config) (*Device, error) {
	ctx, err := loadCryptoContext(cfg.Role, cfg.Keys)
	if err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	d := &Device{
		ID:               cfg.ID,
		Role:             cfg.Role,
		Radio:            cfg.Radio,
		Keys:             cfg.Keys,
		Router:           mesh.NewRouter(cfg.ID, ctx, now),
		Crypto:           ctx,
		now:              now,
		Trace:            newTracer(256),
		AuditLog:         newAuditLog(128),
		includeOpenEvery: cfg.IncludeOpenInterval,
		rxCh:             make(chan radio.Received, 32),
	}
	if cfg.Role == mesh.DeviceTypeHub {
		d.Hub = inclusion.NewHubController(cfg.Now)
		d.inclusionMode.Store(cfg.IncludeOpenInterval > 0)
	} else {
		d.Device = inclusion.NewDeviceController(cfg.Now)
		d.Device.State = inclusionStateToDeviceState(ctx.State)
	}

	// First-boot provisioning (spec.md §4.11): every node needs its own
	// P-256 identity keypair before it can take either side of inclusion.
	// A hub additionally needs a network key to hand out in
	// INCLUDE_RESPONSE; nothing upstream of Device provisions one, so the
	// first hub boot mints it here rather than leaving inclusion unable to
	// ever complete (see DESIGN.md).
	if ctx.DevicePrivate == nil {
		pub, kerr := cfg.Keys.GenerateAndStoreKeypair()
		if kerr != nil {
			return nil, kerr
		}
		priv, kerr := cfg.Keys.DevicePrivate()
		if kerr != nil {
			return nil, kerr
		}
		ctx.DevicePrivate = priv
		ctx.DevicePublic = &pub
	}
	if cfg.Role == mesh.DeviceTypeHub && ctx.NetworkKey == nil {
		var nk [32]byte
		if _, rerr := rand.Read(nk[:]); rerr != nil {
			return nil, mesh.NewError("New", mesh.ErrCryptoSetup, rerr)
		}
		if kerr := cfg.Keys.SetNetworkKey(nk); kerr != nil {
			return nil, kerr
		}
		ctx.NetworkKey = &nk
	}

	return d, nil
}

func loadCryptoContext(role mesh.DeviceType, km *keys.KeyManager) (*mesh.CryptoContext, error) {
	ctx := &mesh.CryptoContext{Role: role}

	state, err := km.InclusionState()
	if err != nil {
		return nil, err
	}
	ctx.State = state

	if km.HasNetworkKey() {
		nk, err := km.NetworkKey()
		if err != nil {
			return nil, err
		}
		ctx.NetworkKey = nk
	}

	priv, err := km.DevicePrivate()
	if err == nil {
		ctx.DevicePrivate = priv
		pub, derr := mesh.DerivePublicFromPrivate(*priv)
		if derr != nil {
			return nil, derr
		}
		ctx.DevicePublic = &pub
	}

	if hubPub, err := km.HubPublic(); err == nil {
		ctx.HubPublic = hubPub
	}

	return ctx, nil
}

func inclusionStateToDeviceState(s mesh.InclusionState) inclusion.DeviceState {
	switch s {
	case mesh.Included:
		return inclusion.DeviceIncluded
	case mesh.InclusionPending:
		return inclusion.DeviceRequestSent
	default:
		return inclusion.DeviceIdle
	}
}

// Run starts the background receive goroutine (the ISR analogue) and
// blocks until ctx is cancelled.
func (d *Device) Run(ctx context.Context) error {
	go d.rxLoop(ctx)
	<-ctx.Done()
	return ctx.Err()
}

func (d *Device) rxLoop(ctx context.Context) {
	for {
		rx, err := d.Radio.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.radioStateError.Store(true)
			continue
		}
		select {
		case d.rxCh <- rx:
			d.rxDone.Store(true)
		case <-ctx.Done():
			return
		}
	}
}

// Tick services at most one pending event: a radio fault, then one queued
// inbound frame, then (for hubs) a periodic INCLUDE_OPEN broadcast. It
// never blocks — callers loop it on their own schedule (a ticker, or a
// simulator's discrete-event clock).
func (d *Device) Tick(ctx context.Context) error {
	if d.radioStateError.Swap(false) {
		return mesh.NewError("Tick", mesh.ErrRadioFailure, nil)
	}

	select {
	case rx := <-d.rxCh:
		d.rxDone.Store(false)
		return d.handleFrame(ctx, rx)
	default:
	}

	if d.Role == mesh.DeviceTypeHub && d.shouldOpenInclusionWindow() {
		return d.OpenInclusionWindow(ctx)
	}
	return nil
}

func (d *Device) shouldOpenInclusionWindow() bool {
	if d.includeOpenEvery <= 0 || !d.InclusionMode() {
		return false
	}
	return d.now().Sub(d.lastIncludeOpen) >= d.includeOpenEvery
}

// InclusionMode reports whether this hub currently allows inclusion-class
// traffic (spec.md §4.13). Always false for a non-hub device.
func (d *Device) InclusionMode() bool {
	if d.Role != mesh.DeviceTypeHub {
		return false
	}
	return d.inclusionMode.Load()
}

// SetInclusionMode toggles inclusion_mode at runtime. Turning it off
// immediately cancels every in-flight candidate session and any open
// broadcast window (spec.md §4.13 cancellation rule (b): "the hub leaving
// inclusion mode"), regardless of how long they have been open.
func (d *Device) SetInclusionMode(on bool) {
	if d.Role != mesh.DeviceTypeHub {
		return
	}
	d.inclusionMode.Store(on)
	if on {
		return
	}
	for _, id := range d.Hub.ExpireAllSessions() {
		d.AuditLog.record(AuditEntry{Peer: id, Step: mesh.TopicIncludeOpen, Result: "cancelled"})
	}
}

// nextFrameCounter increments and durably persists the frame counter
// before returning it, so a crash between commit and transmission never
// causes a counter value to be reused (spec.md §4.11).
func (d *Device) nextFrameCounter() (uint32, error) {
	cur, err := d.Keys.FrameCounter()
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := d.Keys.SetFrameCounter(next); err != nil {
		return 0, err
	}
	return next, nil
}

func (d *Device) transmit(ctx context.Context, pkt *mesh.Packet) error {
	wire, err := pkt.Serialize()
	if err != nil {
		d.drop(err, pkt)
		return nil
	}
	if err := d.Radio.Send(ctx, wire); err != nil {
		d.radioStateError.Store(true)
		return err
	}
	d.txDone.Store(true)
	d.Trace.record(TraceEvent{Direction: DirOut, Topic: pkt.Topic, Peer: pkt.DstID, PacketID: pkt.PacketID})
	return nil
}

func (d *Device) drop(err error, pkt *mesh.Packet) {
	kind, _ := mesh.KindOf(err)
	if d.OnDrop != nil {
		d.OnDrop(kind, pkt)
	}
	if pkt != nil {
		d.Trace.record(TraceEvent{Direction: DirDropped, Topic: pkt.Topic, Peer: pkt.SrcID, PacketID: pkt.PacketID, Reason: kind})
	}
}

func (d *Device) handleFrame(ctx context.Context, rx radio.Received) error {
	pkt, err := mesh.ParsePacket(rx.Data)
	if err != nil {
		d.drop(err, nil)
		return nil
	}
	d.Trace.record(TraceEvent{Direction: DirIn, Topic: pkt.Topic, Peer: pkt.SrcID, PacketID: pkt.PacketID})

	// Integrity check (spec.md §4.13 step 3): payload_crc is computed over
	// frame_counter and the encrypted payload before the MIC is appended
	// (Router.RoutePacket), so the trailing MIC is left out of the check
	// when the topic carries one. It runs before MIC verification and
	// decryption.
	checkedPayload := pkt.Payload
	if d.Router.Mic.RequiresMIC(pkt.Topic) {
		checkedPayload = pkt.PayloadWithoutMIC()
	}
	if mesh.PayloadCRC(pkt.FrameCounter, checkedPayload) != pkt.PayloadCRC {
		d.drop(mesh.NewError("handleFrame", mesh.ErrCorrupted, nil), pkt)
		return nil
	}

	if pkt.Topic.IsInclusionClass() {
		return d.handleInclusion(ctx, pkt, rx.RSSI)
	}

	dec, err := d.Router.HandleInbound(pkt, rx.RSSI)
	if err != nil {
		d.drop(err, pkt)
		return nil
	}
	if dec.DeliverPayload != nil && d.OnDeliver != nil {
		d.OnDeliver(pkt.Topic, pkt.SrcID, dec.DeliverPayload)
	}
	if dec.Relay != nil {
		return d.transmit(ctx, dec.Relay)
	}
	return nil
}

// Send originates an application-layer frame addressed to dst. It refuses
// inclusion-class topics (those are only ever sent by the handshake in
// inclusion.go) and, for a standard device not yet INCLUDED, refuses
// everything else (spec.md §4.13's "Inclusion linearization" invariant).
func (d *Device) Send(ctx context.Context, topic mesh.Topic, dst mesh.DeviceID, payload []byte) error {
	if topic.IsInclusionClass() {
		return mesh.NewError("Send", mesh.ErrInvalidState, nil)
	}
	if d.Role != mesh.DeviceTypeHub && d.Crypto.State != mesh.Included {
		return mesh.NewError("Send", mesh.ErrDeviceNotIncluded, nil)
	}

	fc, err := d.nextFrameCounter()
	if err != nil {
		return err
	}
	pkt, err := d.Router.PrepareOutbound(topic, dst, d.nextPacketID(), fc, payload)
	if err != nil {
		return err
	}
	return d.transmit(ctx, pkt)
}

var packetIDSeq uint32

// nextPacketID returns a 32-bit packet identifier, randomly generated per
// spec.md §4.8 ("Randomly generated per originator"); it is not persisted,
// its only job is to key the receiver's dedup tracker for one boot, not to
// prove freshness. Falls back to a process-wide counter if the entropy
// source fails, which only degrades dedup uniqueness, never correctness.
func (d *Device) nextPacketID() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return atomic.AddUint32(&packetIDSeq, 1)
	}
	return binary.BigEndian.Uint32(b[:])
}

// RoutingSnapshot returns every destination this node currently has a route
// for, for diagnostics and the coordinator's topology view.
func (d *Device) RoutingSnapshot() []RouteInfo {
	return d.Router.Routing.Snapshot()
}
