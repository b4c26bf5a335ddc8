// Package radiobus is a zmq4 PUB/SUB transport standing in for spec.md
// §6's physical LoRa modem, grounded on the PUB/SUB event socket wiring in
// ccroswhite-agsys-control's internal/lora/concentratord.go (there dialing
// a Concentratord process; here dialing directly between RadioMesh nodes,
// since there is no concentrator process in this protocol). It lets
// `meshsim`'s nodes exchange real framed bytes over a real
// transport instead of the in-process pkg/radio.FakeRadio used by unit
// tests.
package radiobus

import (
	"context"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/radiomesh/radiomesh/pkg/mesh"
	"github.com/radiomesh/radiomesh/pkg/radio"
)

// Config wires one node's radio onto the bus: the endpoint it publishes
// on, and the endpoints of every peer it should receive from. There is no
// broker — every node dials every other node directly, a full mesh of
// PUB/SUB sockets, which is adequate for meshsim's small demo topologies.
type Config struct {
	ID             mesh.DeviceID
	ListenEndpoint string   // e.g. "tcp://127.0.0.1:5001"
	PeerEndpoints  []string // PUB endpoints of every other node on the bus
	RSSI           int8     // reported for every frame received on this bus, modeling one flat broadcast domain
}

// Radio implements pkg/radio.Radio over zmq4 PUB/SUB sockets.
type Radio struct {
	id   mesh.DeviceID
	rssi int8

	pub zmq4.Socket
	sub zmq4.Socket

	inbox chan radio.Received

	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// New binds the publishing socket, dials every peer, and starts the
// background receive loop. The returned Radio is ready to hand to
// internal/device.Config.Radio.
func New(ctx context.Context, cfg Config) (*Radio, error) {
	runCtx, cancel := context.WithCancel(context.Background())

	pub := zmq4.NewPub(runCtx)
	if err := pub.Listen(cfg.ListenEndpoint); err != nil {
		cancel()
		return nil, mesh.NewError("radiobus.New", mesh.ErrRadioNotReady, err)
	}

	sub := zmq4.NewSub(runCtx)
	for _, ep := range cfg.PeerEndpoints {
		if err := sub.Dial(ep); err != nil {
			pub.Close()
			sub.Close()
			cancel()
			return nil, mesh.NewError("radiobus.New", mesh.ErrRadioNotReady, err)
		}
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		pub.Close()
		sub.Close()
		cancel()
		return nil, mesh.NewError("radiobus.New", mesh.ErrRadioNotReady, err)
	}

	r := &Radio{
		id:     cfg.ID,
		rssi:   cfg.RSSI,
		pub:    pub,
		sub:    sub,
		inbox:  make(chan radio.Received, 32),
		cancel: cancel,
		closed: make(chan struct{}),
	}

	r.wg.Add(1)
	go r.recvLoop()

	return r, nil
}

// recvLoop mirrors concentratord.go's eventLoop: a single goroutine reads
// frames off the SUB socket for the radio's lifetime, handing each one to
// Receive over a buffered channel. Closing the socket in Close unblocks a
// pending Recv.
func (r *Radio) recvLoop() {
	defer r.wg.Done()
	for {
		msg, err := r.sub.Recv()
		if err != nil {
			select {
			case <-r.closed:
				return
			default:
				continue
			}
		}
		if len(msg.Frames) != 2 {
			continue
		}
		var src mesh.DeviceID
		copy(src[:], msg.Frames[0])
		if src == r.id {
			continue // dialing our own PUB endpoint would otherwise echo every send
		}

		rx := radio.Received{Data: append([]byte(nil), msg.Frames[1]...), RSSI: r.rssi}
		select {
		case r.inbox <- rx:
		case <-r.closed:
			return
		}
	}
}

// Send publishes data as the second frame of a two-frame message, the
// sender's id as the first frame (used only to let recvLoop ignore a
// self-dial; it is not part of the RadioMesh wire format itself).
func (r *Radio) Send(ctx context.Context, data []byte) error {
	msg := zmq4.NewMsgFrom(append([]byte(nil), r.id[:]...), data)
	if err := r.pub.Send(msg); err != nil {
		return mesh.NewError("radiobus.Send", mesh.ErrRadioTXTimeout, err)
	}
	return nil
}

// Receive returns the next frame delivered by recvLoop, or
// mesh.ErrRadioRXTimeout if ctx expires first.
func (r *Radio) Receive(ctx context.Context) (radio.Received, error) {
	select {
	case rx := <-r.inbox:
		return rx, nil
	case <-ctx.Done():
		return radio.Received{}, mesh.NewError("radiobus.Receive", mesh.ErrRadioRXTimeout, ctx.Err())
	case <-r.closed:
		return radio.Received{}, mesh.NewError("radiobus.Receive", mesh.ErrRadioFailure, nil)
	}
}

// Close stops the receive loop and releases both sockets.
func (r *Radio) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
		r.cancel()
		r.pub.Close()
		r.sub.Close()
	})
	r.wg.Wait()
	return nil
}

var _ radio.Radio = (*Radio)(nil)
