package coordstore

import (
	"context"
	"errors"
	"time"

	"github.com/radiomesh/radiomesh/internal/models"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// Common errors, named the way the teacher's storage package names its
// sentinels.
var (
	ErrNotFound     = errors.New("coordstore: not found")
	ErrDuplicateKey = errors.New("coordstore: duplicate key")
)

// Store is the coordinator's fleet-wide persistence interface: the node
// registry, packet/inclusion event log, inclusion audit trail, and routing
// snapshots. Defined as an interface (mirroring the teacher's
// internal/storage.Store) so internal/api can be tested against a fake
// without a live Postgres instance.
type Store interface {
	UpsertNode(ctx context.Context, n *models.Node) error
	GetNode(ctx context.Context, id mesh.DeviceID) (*models.Node, error)
	ListNodes(ctx context.Context) ([]*models.Node, error)

	RecordEvent(ctx context.Context, e *models.Event) error
	ListEventsForNode(ctx context.Context, id mesh.DeviceID, limit int) ([]*models.Event, error)

	RecordInclusionAudit(ctx context.Context, a *models.InclusionAuditEntry) error
	ListInclusionAudit(ctx context.Context, candidateID mesh.DeviceID) ([]*models.InclusionAuditEntry, error)

	SaveRoutingSnapshot(ctx context.Context, nodeID mesh.DeviceID, rows []models.RouteSnapshot, capturedAt time.Time) error
	LatestRoutingSnapshot(ctx context.Context, nodeID mesh.DeviceID) ([]models.RouteSnapshot, error)

	CreateOperator(ctx context.Context, op *models.Operator) error
	GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)

	Close() error
}

var _ Store = (*PostgresStore)(nil)
