package coordstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/radiomesh/radiomesh/internal/auth"
	"github.com/radiomesh/radiomesh/internal/config"
	"github.com/radiomesh/radiomesh/internal/models"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

func TestDeviceIDBytesRoundTrip(t *testing.T) {
	id := mesh.DeviceID{0xde, 0xad, 0xbe, 0xef}
	got := deviceIDFromBytes(deviceIDBytes(id))
	if got != id {
		t.Fatalf("deviceIDFromBytes(deviceIDBytes(%v)) = %v", id, got)
	}
}

func TestDeviceIDFromBytesShortSliceZeroPads(t *testing.T) {
	got := deviceIDFromBytes([]byte{0xaa})
	want := mesh.DeviceID{0xaa, 0, 0, 0}
	if got != want {
		t.Fatalf("deviceIDFromBytes(short) = %v, want %v", got, want)
	}
}

// openTestStore connects to the Postgres instance named by
// TEST_COORDSTORE_DSN. There is no in-process Postgres available in this
// environment, so every test that needs a live connection skips when the
// variable isn't set rather than fail the whole package.
func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_COORDSTORE_DSN")
	if dsn == "" {
		t.Skip("TEST_COORDSTORE_DSN not set, skipping coordstore integration test")
	}
	s, err := Open(config.CoordDBConfig{DSN: dsn, MaxOpenConns: 4, MaxIdleConns: 2, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndGetNodeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rssi := int8(-42)
	n := &models.Node{
		DeviceID:       mesh.DeviceID{1, 2, 3, 4},
		DeviceType:     mesh.DeviceTypeStandard,
		InclusionState: mesh.Included,
		Label:          "greenhouse-1",
		LastSeen:       time.Now().UTC().Truncate(time.Second),
		LastRSSI:       &rssi,
	}
	if err := s.UpsertNode(ctx, n); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetNode(ctx, n.DeviceID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != n.Label {
		t.Fatalf("Label = %q, want %q", got.Label, n.Label)
	}
	if got.LastRSSI == nil || *got.LastRSSI != rssi {
		t.Fatalf("LastRSSI = %v, want %d", got.LastRSSI, rssi)
	}
}

func TestGetNodeMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetNode(context.Background(), mesh.DeviceID{9, 9, 9, 9}); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertNodePreservesNonEmptyLabelOnConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mesh.DeviceID{5, 5, 5, 5}

	if err := s.UpsertNode(ctx, &models.Node{DeviceID: id, Label: "first-label", LastSeen: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertNode(ctx, &models.Node{DeviceID: id, Label: "", LastSeen: time.Now()}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetNode(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != "first-label" {
		t.Fatalf("Label = %q, want the original label to survive an empty-label upsert", got.Label)
	}
}

func TestRecordAndListEventsForNode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mesh.DeviceID{7, 7, 7, 7}

	topic := mesh.TopicCmd
	rssi := int8(-60)
	if err := s.RecordEvent(ctx, &models.Event{
		ID:     uuid.New(),
		Type:   models.EventPacketReceived,
		NodeID: id,
		Topic:  &topic,
		RSSI:   &rssi,
		Detail: "uplink",
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordEvent(ctx, &models.Event{
		ID:     uuid.New(),
		Type:   models.EventPacketDropped,
		NodeID: id,
		Detail: "bad mic",
	}); err != nil {
		t.Fatal(err)
	}

	events, err := s.ListEventsForNode(ctx, id, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	// Most recent first: the drop was recorded second.
	if events[0].Type != models.EventPacketDropped {
		t.Fatalf("events[0].Type = %v, want EventPacketDropped", events[0].Type)
	}
	if events[0].Topic != nil {
		t.Fatal("the dropped event was recorded with no topic and should scan back as nil")
	}
	if events[1].Topic == nil || *events[1].Topic != topic {
		t.Fatalf("events[1].Topic = %v, want %v", events[1].Topic, topic)
	}
}

func TestRecordAndListInclusionAudit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	candidate := mesh.DeviceID{3, 1, 4, 1}

	for i, step := range []mesh.Topic{mesh.TopicIncludeRequest, mesh.TopicIncludeResponse} {
		if err := s.RecordInclusionAudit(ctx, &models.InclusionAuditEntry{
			ID:          uuid.New(),
			CandidateID: candidate,
			Step:        step,
			Result:      "ok",
		}); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}

	entries, err := s.ListInclusionAudit(ctx, candidate)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Step != mesh.TopicIncludeRequest {
		t.Fatalf("entries[0].Step = %v, want the request logged first", entries[0].Step)
	}
}

func TestCreateAndGetOperatorByEmail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	op := &models.Operator{ID: uuid.New(), Email: "ops@radiomesh.example", PasswordHash: hash, IsAdmin: true}
	if err := s.CreateOperator(ctx, op); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetOperatorByEmail(ctx, op.Email)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != op.ID {
		t.Fatalf("ID = %v, want %v", got.ID, op.ID)
	}
	if !auth.VerifyPassword("hunter2", got.PasswordHash) {
		t.Fatal("stored password hash does not verify against the original password")
	}
}

func TestGetOperatorByEmailMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetOperatorByEmail(context.Background(), "nobody@radiomesh.example"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveAndLoadRoutingSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	nodeID := mesh.DeviceID{2, 0, 2, 6}
	now := time.Now().UTC().Truncate(time.Second)

	rows := []models.RouteSnapshot{
		{NodeID: nodeID, Dest: mesh.DeviceID{1, 1, 1, 1}, NextHop: mesh.DeviceID{2, 2, 2, 2}, HopCount: 1, RSSI: -50, LastSeen: now},
	}
	if err := s.SaveRoutingSnapshot(ctx, nodeID, rows, now); err != nil {
		t.Fatal(err)
	}

	got, err := s.LatestRoutingSnapshot(ctx, nodeID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Dest != rows[0].Dest {
		t.Fatalf("LatestRoutingSnapshot = %+v, want one row matching %+v", got, rows[0])
	}

	// Saving again replaces the prior snapshot rather than appending to it.
	later := now.Add(time.Minute)
	rows2 := []models.RouteSnapshot{
		{NodeID: nodeID, Dest: mesh.DeviceID{9, 9, 9, 9}, NextHop: mesh.DeviceID{8, 8, 8, 8}, HopCount: 2, RSSI: -70, LastSeen: later},
	}
	if err := s.SaveRoutingSnapshot(ctx, nodeID, rows2, later); err != nil {
		t.Fatal(err)
	}
	got, err = s.LatestRoutingSnapshot(ctx, nodeID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Dest != rows2[0].Dest {
		t.Fatalf("LatestRoutingSnapshot after second save = %+v, want only the newest row", got)
	}
}
