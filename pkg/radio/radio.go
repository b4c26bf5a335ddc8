// Package radio defines the capability interface a concrete transport must
// satisfy to carry RadioMesh frames (spec.md §6), plus an in-memory fake
// used by unit tests and the simulator.
package radio

import (
	"context"
	"sync"

	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// Received is one frame handed up from the radio, together with the signal
// quality the device loop needs to feed the routing table (spec.md §4.9).
type Received struct {
	Data []byte
	RSSI int8
}

// Radio is the capability a node's single-threaded device loop drives. It
// mirrors the half-duplex, ISR-flagged nature of the real hardware: Send
// blocks until the transmission completes or ctx is done, and Receive
// blocks until a frame arrives, ctx is done, or the radio reports a
// hardware fault (spec.md §5, §6).
type Radio interface {
	// Send transmits data as a single frame. It returns mesh.ErrRadioTXTimeout
	// if ctx expires first, or mesh.ErrRadioFailure on a hardware fault.
	Send(ctx context.Context, data []byte) error
	// Receive blocks for the next inbound frame. It returns
	// mesh.ErrRadioRXTimeout if ctx expires first.
	Receive(ctx context.Context) (Received, error)
	// Close releases the underlying transport.
	Close() error
}

// FakeRadio is an in-process, in-memory Radio: Send on one FakeRadio
// delivers to every other FakeRadio subscribed to the same Medium, with a
// caller-supplied RSSI. It has no concept of range or collision; tests that
// need those model them by choosing which radios share a Medium.
type FakeRadio struct {
	medium *Medium
	inbox  chan Received
	id     mesh.DeviceID

	closeOnce sync.Once
	closed    chan struct{}
}

// Medium is a shared broadcast domain for FakeRadios, modeling "every node
// within range of every other node." Tests wanting a partial topology run
// several Mediums and wire FakeRadios selectively.
type Medium struct {
	mu      sync.Mutex
	members map[mesh.DeviceID]*FakeRadio
	rssi    int8
}

// NewMedium returns an empty broadcast domain in which every delivered
// frame reports the given RSSI.
func NewMedium(rssi int8) *Medium {
	return &Medium{members: make(map[mesh.DeviceID]*FakeRadio), rssi: rssi}
}

// Join attaches a new FakeRadio for id to the medium.
func (m *Medium) Join(id mesh.DeviceID) *FakeRadio {
	r := &FakeRadio{
		medium: m,
		id:     id,
		inbox:  make(chan Received, 32),
		closed: make(chan struct{}),
	}
	m.mu.Lock()
	m.members[id] = r
	m.mu.Unlock()
	return r
}

func (m *Medium) leave(id mesh.DeviceID) {
	m.mu.Lock()
	delete(m.members, id)
	m.mu.Unlock()
}

func (m *Medium) broadcast(from mesh.DeviceID, data []byte, rssi int8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.members {
		if id == from {
			continue
		}
		select {
		case r.inbox <- Received{Data: append([]byte(nil), data...), RSSI: rssi}:
		default:
			// slow reader, drop: the real radio has no retransmission either
		}
	}
}

// Send broadcasts data to every other member of the medium.
func (r *FakeRadio) Send(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return mesh.NewError("FakeRadio.Send", mesh.ErrRadioTXTimeout, ctx.Err())
	default:
	}
	r.medium.broadcast(r.id, data, r.medium.rssi)
	return nil
}

// Receive returns the next frame broadcast by another member.
func (r *FakeRadio) Receive(ctx context.Context) (Received, error) {
	select {
	case rx := <-r.inbox:
		return rx, nil
	case <-ctx.Done():
		return Received{}, mesh.NewError("FakeRadio.Receive", mesh.ErrRadioRXTimeout, ctx.Err())
	case <-r.closed:
		return Received{}, mesh.NewError("FakeRadio.Receive", mesh.ErrRadioFailure, nil)
	}
}

// Close detaches the radio from its medium.
func (r *FakeRadio) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
		r.medium.leave(r.id)
	})
	return nil
}
