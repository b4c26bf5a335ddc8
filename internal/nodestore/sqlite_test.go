package nodestore

import (
	"path/filepath"
	"testing"

	"github.com/radiomesh/radiomesh/pkg/keys"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReadMissingSlotReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Read(keys.SlotNetworkKey); err != keys.ErrNotFound {
		t.Fatalf("err = %v, want keys.ErrNotFound", err)
	}
	if s.Exists(keys.SlotNetworkKey) {
		t.Fatal("Exists on a never-written slot should be false")
	}
}

func TestWriteAndCommitRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := []byte{1, 2, 3, 4, 5}

	if err := s.WriteAndCommit(keys.SlotMessageCounter, want); err != nil {
		t.Fatal(err)
	}
	if !s.Exists(keys.SlotMessageCounter) {
		t.Fatal("Exists should be true after a write")
	}
	got, err := s.Read(keys.SlotMessageCounter)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Fatalf("Read = %v, want %v", got, want)
	}
}

func TestWriteAndCommitOverwritesExistingSlot(t *testing.T) {
	s := openTestStore(t)
	if err := s.WriteAndCommit(keys.SlotInclusionState, []byte{0}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteAndCommit(keys.SlotInclusionState, []byte{2}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Read(keys.SlotInclusionState)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("Read after overwrite = %v, want [2]", got)
	}
}

func TestRemoveDeletesSlot(t *testing.T) {
	s := openTestStore(t)
	if err := s.WriteAndCommit(keys.SlotDevicePrivate, []byte("thirty-two-byte-private-key-here")); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(keys.SlotDevicePrivate); err != nil {
		t.Fatal(err)
	}
	if s.Exists(keys.SlotDevicePrivate) {
		t.Fatal("slot should no longer exist after Remove")
	}
	if _, err := s.Read(keys.SlotDevicePrivate); err != keys.ErrNotFound {
		t.Fatalf("err = %v, want keys.ErrNotFound", err)
	}
}

func TestRemoveAbsentSlotIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	if err := s.Remove(keys.SlotHubPublic); err != nil {
		t.Fatalf("Remove on an absent slot should not error, got %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.WriteAndCommit(keys.SlotNetworkKey, []byte{9, 9, 9}); err != nil {
		t.Fatal(err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.Read(keys.SlotNetworkKey)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string([]byte{9, 9, 9}) {
		t.Fatalf("Read after reopen = %v, want [9 9 9]", got)
	}
}

func TestStoreImplementsKeysStorage(t *testing.T) {
	var _ keys.Storage = (*Store)(nil)
}
