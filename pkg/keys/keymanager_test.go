package keys

import (
	"testing"

	"github.com/radiomesh/radiomesh/pkg/mesh"
)

func TestInclusionStateDefaultsToNotIncluded(t *testing.T) {
	km := NewKeyManager(NewMemStorage())
	s, err := km.InclusionState()
	if err != nil {
		t.Fatal(err)
	}
	if s != mesh.NotIncluded {
		t.Fatalf("InclusionState() = %v, want NotIncluded", s)
	}
}

func TestInclusionStateRoundTrip(t *testing.T) {
	km := NewKeyManager(NewMemStorage())
	if err := km.SetInclusionState(mesh.Included); err != nil {
		t.Fatal(err)
	}
	got, err := km.InclusionState()
	if err != nil {
		t.Fatal(err)
	}
	if got != mesh.Included {
		t.Fatalf("InclusionState() = %v, want Included", got)
	}
}

func TestFrameCounterDefaultsToZero(t *testing.T) {
	km := NewKeyManager(NewMemStorage())
	v, err := km.FrameCounter()
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("FrameCounter() = %d, want 0", v)
	}
}

func TestFrameCounterRoundTrip(t *testing.T) {
	km := NewKeyManager(NewMemStorage())
	if err := km.SetFrameCounter(123456); err != nil {
		t.Fatal(err)
	}
	got, err := km.FrameCounter()
	if err != nil {
		t.Fatal(err)
	}
	if got != 123456 {
		t.Fatalf("FrameCounter() = %d, want 123456", got)
	}
}

func TestDevicePrivateRoundTrip(t *testing.T) {
	km := NewKeyManager(NewMemStorage())
	var priv [mesh.P256PrivateLen]byte
	for i := range priv {
		priv[i] = byte(i)
	}
	if err := km.SetDevicePrivate(priv); err != nil {
		t.Fatal(err)
	}
	got, err := km.DevicePrivate()
	if err != nil {
		t.Fatal(err)
	}
	if *got != priv {
		t.Fatal("DevicePrivate round trip mismatch")
	}
}

func TestNetworkKeyRoundTripAndHasNetworkKey(t *testing.T) {
	km := NewKeyManager(NewMemStorage())
	if km.HasNetworkKey() {
		t.Fatal("HasNetworkKey should be false before provisioning")
	}
	var key [32]byte
	key[0] = 0xAB
	if err := km.SetNetworkKey(key); err != nil {
		t.Fatal(err)
	}
	if !km.HasNetworkKey() {
		t.Fatal("HasNetworkKey should be true after SetNetworkKey")
	}
	got, err := km.NetworkKey()
	if err != nil {
		t.Fatal(err)
	}
	if *got != key {
		t.Fatal("NetworkKey round trip mismatch")
	}
}

func TestReadMissingSlotReturnsStorageKeyMissing(t *testing.T) {
	km := NewKeyManager(NewMemStorage())
	_, err := km.NetworkKey()
	if err == nil {
		t.Fatal("expected error reading an unprovisioned slot")
	}
	if kind, _ := mesh.KindOf(err); kind != mesh.ErrStorageKeyMissing {
		t.Fatalf("got kind %v, want ErrStorageKeyMissing", kind)
	}
}

func TestReadWrongSizeReturnsStorageInvalid(t *testing.T) {
	store := NewMemStorage()
	store.WriteAndCommit(SlotNetworkKey, []byte{1, 2, 3}) // wrong length
	km := NewKeyManager(store)
	_, err := km.NetworkKey()
	if err == nil {
		t.Fatal("expected error reading a malformed slot value")
	}
	if kind, _ := mesh.KindOf(err); kind != mesh.ErrStorageInvalid {
		t.Fatalf("got kind %v, want ErrStorageInvalid", kind)
	}
}

func TestGenerateAndStoreKeypairPersistsPrivateAndReturnsMatchingPublic(t *testing.T) {
	km := NewKeyManager(NewMemStorage())
	pub, err := km.GenerateAndStoreKeypair()
	if err != nil {
		t.Fatal(err)
	}
	priv, err := km.DevicePrivate()
	if err != nil {
		t.Fatal(err)
	}
	derived, err := mesh.DerivePublicFromPrivate(*priv)
	if err != nil {
		t.Fatal(err)
	}
	if derived != pub {
		t.Fatal("returned public key does not match the stored private key")
	}
}
