package api

import (
	"context"
	"sync"
	"time"

	"github.com/radiomesh/radiomesh/internal/coordstore"
	"github.com/radiomesh/radiomesh/internal/models"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// fakeStore is an in-memory coordstore.Store, the same role the teacher's
// tests would give a hand-rolled storage.Store fake: it lets handler tests
// run without a live Postgres instance.
type fakeStore struct {
	mu        sync.Mutex
	nodes     map[mesh.DeviceID]*models.Node
	events    map[mesh.DeviceID][]*models.Event
	audit     map[mesh.DeviceID][]*models.InclusionAuditEntry
	snapshots map[mesh.DeviceID][]models.RouteSnapshot
	operators map[string]*models.Operator
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:     make(map[mesh.DeviceID]*models.Node),
		events:    make(map[mesh.DeviceID][]*models.Event),
		audit:     make(map[mesh.DeviceID][]*models.InclusionAuditEntry),
		snapshots: make(map[mesh.DeviceID][]models.RouteSnapshot),
		operators: make(map[string]*models.Operator),
	}
}

func (f *fakeStore) UpsertNode(ctx context.Context, n *models.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[n.DeviceID] = n
	return nil
}

func (f *fakeStore) GetNode(ctx context.Context, id mesh.DeviceID) (*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return nil, coordstore.ErrNotFound
	}
	return n, nil
}

func (f *fakeStore) ListNodes(ctx context.Context) ([]*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeStore) RecordEvent(ctx context.Context, e *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[e.NodeID] = append(f.events[e.NodeID], e)
	return nil
}

func (f *fakeStore) ListEventsForNode(ctx context.Context, id mesh.DeviceID, limit int) ([]*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs := f.events[id]
	if len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	return evs, nil
}

func (f *fakeStore) RecordInclusionAudit(ctx context.Context, a *models.InclusionAuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audit[a.CandidateID] = append(f.audit[a.CandidateID], a)
	return nil
}

func (f *fakeStore) ListInclusionAudit(ctx context.Context, candidateID mesh.DeviceID) ([]*models.InclusionAuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audit[candidateID], nil
}

func (f *fakeStore) SaveRoutingSnapshot(ctx context.Context, nodeID mesh.DeviceID, rows []models.RouteSnapshot, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[nodeID] = rows
	return nil
}

func (f *fakeStore) LatestRoutingSnapshot(ctx context.Context, nodeID mesh.DeviceID) ([]models.RouteSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[nodeID], nil
}

func (f *fakeStore) CreateOperator(ctx context.Context, op *models.Operator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.operators[op.Email]; exists {
		return coordstore.ErrDuplicateKey
	}
	f.operators[op.Email] = op
	return nil
}

func (f *fakeStore) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.operators[email]
	if !ok {
		return nil, coordstore.ErrNotFound
	}
	return op, nil
}

func (f *fakeStore) Close() error { return nil }

var _ coordstore.Store = (*fakeStore)(nil)
