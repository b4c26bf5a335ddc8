// Package events bridges the protocol core's in-process trace/audit logs
// (internal/device's Tracer and AuditLog) onto NATS, the teacher's
// event-bus boundary between protocol processing and downstream consumers
// (internal/server/nats_subscriber.go, internal/integration/forwarder.go).
// RadioMesh has no application-server/network-server split, so there is a
// single flat subject space rather than the teacher's application/gateway
// hierarchy.
package events

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/radiomesh/radiomesh/internal/models"
)

// SubjectPrefix roots every subject this package publishes or subscribes
// to, keeping RadioMesh's event traffic out of the way of anything else
// sharing the same NATS server.
const SubjectPrefix = "radiomesh"

// Subject returns the NATS subject for one node's events of type t:
// "radiomesh.node.<hex device id>.<event type>", mirroring the teacher's
// "application.*.device.*.rx"-style hierarchical subjects scoped down to
// RadioMesh's single dimension (node, not application+device).
func Subject(nodeID [4]byte, t models.EventType) string {
	return fmt.Sprintf("%s.node.%s.%s", SubjectPrefix, hex.EncodeToString(nodeID[:]), t)
}

// subjectWildcard subscribes to every node and every event type.
const subjectWildcard = SubjectPrefix + ".node.*.*"

// Publisher publishes structured events onto NATS, one subject per
// (node, event type) pair.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher wraps an already-connected NATS client.
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// Publish marshals e and publishes it to its node/type subject. A
// zero-value Event.ID is left to the caller; Publish does not mint one.
func (p *Publisher) Publish(e *models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(Subject(e.NodeID, e.Type), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Handler consumes one decoded event off the bus.
type Handler func(*models.Event)

// Subscriber fans out every published event to a set of in-process
// handlers, the RadioMesh analogue of the teacher's NATSSubscriber (which
// instead writes each decoded message straight to storage.Store). Splitting
// decode-and-dispatch from the handlers lets the coordinator register both
// a coordstore-persisting handler and a websocket-fanout handler on the
// same subscription.
type Subscriber struct {
	nc       *nats.Conn
	sub      *nats.Subscription
	handlers []Handler
}

// NewSubscriber wraps an already-connected NATS client. Call Handle to
// register consumers before Start.
func NewSubscriber(nc *nats.Conn) *Subscriber {
	return &Subscriber{nc: nc}
}

// Handle registers a consumer invoked for every event received after
// Start. Handlers run synchronously and in registration order on the NATS
// client's delivery goroutine, so a slow handler delays the others.
func (s *Subscriber) Handle(h Handler) {
	s.handlers = append(s.handlers, h)
}

// Start subscribes to every node/event-type subject and begins dispatching
// to registered handlers. Call Stop to unsubscribe.
func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(subjectWildcard, s.dispatch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subjectWildcard, err)
	}
	s.sub = sub
	return nil
}

// Stop unsubscribes. Safe to call on a Subscriber that was never started.
func (s *Subscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (s *Subscriber) dispatch(msg *nats.Msg) {
	var e models.Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("discarding malformed event")
		return
	}
	for _, h := range s.handlers {
		h(&e)
	}
}
