// Package coordstore is the coordinator's fleet-wide Postgres store: the
// node registry, inclusion audit log, routing-table snapshots, and packet
// event log of SPEC_FULL.md §4.3-4.5. Grounded on the teacher's
// internal/storage/postgres.go connection/transaction shape and its
// per-entity *_methods.go files' raw-SQL style (no ORM, manual Scan into
// scratch variables, $n placeholders via lib/pq).
package coordstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/radiomesh/radiomesh/internal/config"
	"github.com/radiomesh/radiomesh/internal/models"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// PostgresStore is the Postgres-backed implementation of Store.
type PostgresStore struct {
	db *sql.DB
}

// Open connects to cfg.DSN, applies the pool settings and runs the schema
// migration.
func Open(cfg config.CoordDBConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS nodes (
		id SERIAL PRIMARY KEY,
		device_id BYTEA UNIQUE NOT NULL,
		device_type SMALLINT NOT NULL,
		inclusion_state SMALLINT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		last_seen TIMESTAMPTZ NOT NULL,
		last_rssi SMALLINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		type TEXT NOT NULL,
		node_id BYTEA NOT NULL,
		topic SMALLINT,
		reason TEXT,
		hop_count SMALLINT,
		rssi SMALLINT,
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_node ON events(node_id);
	CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);

	CREATE TABLE IF NOT EXISTS inclusion_audit (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		candidate_id BYTEA NOT NULL,
		step SMALLINT NOT NULL,
		hub_state SMALLINT NOT NULL,
		result TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_inclusion_audit_candidate ON inclusion_audit(candidate_id);

	CREATE TABLE IF NOT EXISTS routing_snapshots (
		node_id BYTEA NOT NULL,
		dest BYTEA NOT NULL,
		next_hop BYTEA NOT NULL,
		hop_count SMALLINT NOT NULL,
		rssi SMALLINT NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (node_id, dest, captured_at)
	);

	CREATE TABLE IF NOT EXISTS operators (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT false
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func deviceIDBytes(id mesh.DeviceID) []byte { return id[:] }

func deviceIDFromBytes(b []byte) (id mesh.DeviceID) {
	copy(id[:], b)
	return id
}

// UpsertNode inserts or refreshes a fleet registry row.
func (s *PostgresStore) UpsertNode(ctx context.Context, n *models.Node) error {
	const query = `
		INSERT INTO nodes (device_id, device_type, inclusion_state, label, last_seen, last_rssi)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device_id) DO UPDATE SET
			device_type = excluded.device_type,
			inclusion_state = excluded.inclusion_state,
			label = CASE WHEN excluded.label = '' THEN nodes.label ELSE excluded.label END,
			last_seen = excluded.last_seen,
			last_rssi = excluded.last_rssi`

	var lastRSSI sql.NullInt64
	if n.LastRSSI != nil {
		lastRSSI = sql.NullInt64{Int64: int64(*n.LastRSSI), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		deviceIDBytes(n.DeviceID), n.DeviceType, n.InclusionState, n.Label, n.LastSeen, lastRSSI)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrDuplicateKey
	}
	return err
}

// GetNode looks up a registry row by device id.
func (s *PostgresStore) GetNode(ctx context.Context, id mesh.DeviceID) (*models.Node, error) {
	const query = `
		SELECT device_id, device_type, inclusion_state, label, last_seen, last_rssi, created_at
		FROM nodes WHERE device_id = $1`

	n := &models.Node{}
	var devIDBytes []byte
	var lastRSSI sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, deviceIDBytes(id)).Scan(
		&devIDBytes, &n.DeviceType, &n.InclusionState, &n.Label, &n.LastSeen, &lastRSSI, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	n.DeviceID = deviceIDFromBytes(devIDBytes)
	if lastRSSI.Valid {
		v := int8(lastRSSI.Int64)
		n.LastRSSI = &v
	}
	return n, nil
}

// ListNodes returns every known registry row, most recently seen first.
func (s *PostgresStore) ListNodes(ctx context.Context) ([]*models.Node, error) {
	const query = `
		SELECT device_id, device_type, inclusion_state, label, last_seen, last_rssi, created_at
		FROM nodes ORDER BY last_seen DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Node
	for rows.Next() {
		n := &models.Node{}
		var devIDBytes []byte
		var lastRSSI sql.NullInt64
		if err := rows.Scan(&devIDBytes, &n.DeviceType, &n.InclusionState, &n.Label, &n.LastSeen, &lastRSSI, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.DeviceID = deviceIDFromBytes(devIDBytes)
		if lastRSSI.Valid {
			v := int8(lastRSSI.Int64)
			n.LastRSSI = &v
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// RecordEvent appends one row to the packet/inclusion event log.
func (s *PostgresStore) RecordEvent(ctx context.Context, e *models.Event) error {
	const query = `
		INSERT INTO events (id, type, node_id, topic, reason, hop_count, rssi, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var topic sql.NullInt64
	if e.Topic != nil {
		topic = sql.NullInt64{Int64: int64(*e.Topic), Valid: true}
	}
	var reason sql.NullString
	if e.Reason != nil {
		reason = sql.NullString{String: string(*e.Reason), Valid: true}
	}
	var hopCount sql.NullInt64
	if e.HopCount != nil {
		hopCount = sql.NullInt64{Int64: int64(*e.HopCount), Valid: true}
	}
	var rssi sql.NullInt64
	if e.RSSI != nil {
		rssi = sql.NullInt64{Int64: int64(*e.RSSI), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		e.ID, string(e.Type), deviceIDBytes(e.NodeID), topic, reason, hopCount, rssi, e.Detail)
	return err
}

// ListEventsForNode returns the most recent limit events for a node.
func (s *PostgresStore) ListEventsForNode(ctx context.Context, id mesh.DeviceID, limit int) ([]*models.Event, error) {
	const query = `
		SELECT id, created_at, type, node_id, topic, reason, hop_count, rssi, detail
		FROM events WHERE node_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, deviceIDBytes(id), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e := &models.Event{}
		var devIDBytes []byte
		var typ string
		var topic, hopCount, rssi sql.NullInt64
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.CreatedAt, &typ, &devIDBytes, &topic, &reason, &hopCount, &rssi, &e.Detail); err != nil {
			return nil, err
		}
		e.Type = models.EventType(typ)
		e.NodeID = deviceIDFromBytes(devIDBytes)
		if topic.Valid {
			t := mesh.Topic(topic.Int64)
			e.Topic = &t
		}
		if reason.Valid {
			r := mesh.ErrorKind(reason.String)
			e.Reason = &r
		}
		if hopCount.Valid {
			h := uint8(hopCount.Int64)
			e.HopCount = &h
		}
		if rssi.Valid {
			v := int8(rssi.Int64)
			e.RSSI = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordInclusionAudit appends one step of a candidate's handshake to the
// audit trail.
func (s *PostgresStore) RecordInclusionAudit(ctx context.Context, a *models.InclusionAuditEntry) error {
	const query = `
		INSERT INTO inclusion_audit (id, candidate_id, step, hub_state, result)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, query, a.ID, deviceIDBytes(a.CandidateID), a.Step, a.HubState, a.Result)
	return err
}

// ListInclusionAudit returns every recorded step for one candidate, oldest
// first (so a reader can replay the handshake in order).
func (s *PostgresStore) ListInclusionAudit(ctx context.Context, candidateID mesh.DeviceID) ([]*models.InclusionAuditEntry, error) {
	const query = `
		SELECT id, created_at, candidate_id, step, hub_state, result
		FROM inclusion_audit WHERE candidate_id = $1 ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, deviceIDBytes(candidateID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.InclusionAuditEntry
	for rows.Next() {
		a := &models.InclusionAuditEntry{}
		var candIDBytes []byte
		if err := rows.Scan(&a.ID, &a.CreatedAt, &candIDBytes, &a.Step, &a.HubState, &a.Result); err != nil {
			return nil, err
		}
		a.CandidateID = deviceIDFromBytes(candIDBytes)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveRoutingSnapshot replaces nodeID's previously captured routing table
// with a new one, inside a transaction so a reader never observes a partial
// table.
func (s *PostgresStore) SaveRoutingSnapshot(ctx context.Context, nodeID mesh.DeviceID, rows []models.RouteSnapshot, capturedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM routing_snapshots WHERE node_id = $1`, deviceIDBytes(nodeID)); err != nil {
		return err
	}

	const insert = `
		INSERT INTO routing_snapshots (node_id, dest, next_hop, hop_count, rssi, last_seen, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, insert,
			deviceIDBytes(nodeID), deviceIDBytes(r.Dest), deviceIDBytes(r.NextHop), r.HopCount, r.RSSI, r.LastSeen, capturedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestRoutingSnapshot returns nodeID's most recently captured routing
// table rows.
func (s *PostgresStore) LatestRoutingSnapshot(ctx context.Context, nodeID mesh.DeviceID) ([]models.RouteSnapshot, error) {
	const query = `
		SELECT node_id, dest, next_hop, hop_count, rssi, last_seen, captured_at
		FROM routing_snapshots
		WHERE node_id = $1 AND captured_at = (
			SELECT max(captured_at) FROM routing_snapshots WHERE node_id = $1
		)`

	rows, err := s.db.QueryContext(ctx, query, deviceIDBytes(nodeID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RouteSnapshot
	for rows.Next() {
		var r models.RouteSnapshot
		var nodeIDBytes, destBytes, nextHopBytes []byte
		if err := rows.Scan(&nodeIDBytes, &destBytes, &nextHopBytes, &r.HopCount, &r.RSSI, &r.LastSeen, &r.CapturedAt); err != nil {
			return nil, err
		}
		r.NodeID = deviceIDFromBytes(nodeIDBytes)
		r.Dest = deviceIDFromBytes(destBytes)
		r.NextHop = deviceIDFromBytes(nextHopBytes)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateOperator inserts a new coordinator operator account.
func (s *PostgresStore) CreateOperator(ctx context.Context, op *models.Operator) error {
	const query = `
		INSERT INTO operators (id, email, password_hash, is_admin)
		VALUES ($1, $2, $3, $4)`
	_, err := s.db.ExecContext(ctx, query, op.ID, op.Email, op.PasswordHash, op.IsAdmin)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrDuplicateKey
	}
	return err
}

// GetOperatorByEmail looks up an operator by login email.
func (s *PostgresStore) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	const query = `
		SELECT id, created_at, email, password_hash, is_admin
		FROM operators WHERE email = $1`

	op := &models.Operator{}
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&op.ID, &op.CreatedAt, &op.Email, &op.PasswordHash, &op.IsAdmin)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}
