package keys

import (
	"encoding/binary"

	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// KeyManager enforces the fixed sizes spec.md §4.11 assigns to each slot and
// translates Storage errors into the mesh error taxonomy (ErrStorage*,
// ErrMissingKey) so callers in pkg/mesh and internal/device see one
// consistent error shape regardless of backend.
type KeyManager struct {
	store Storage
}

// NewKeyManager wraps a Storage backend.
func NewKeyManager(store Storage) *KeyManager {
	return &KeyManager{store: store}
}

func (m *KeyManager) read(slot Slot, wantLen int) ([]byte, error) {
	v, err := m.store.Read(slot)
	if err == ErrNotFound {
		return nil, mesh.NewError("KeyManager.read", mesh.ErrStorageKeyMissing, err)
	}
	if err != nil {
		return nil, mesh.NewError("KeyManager.read", mesh.ErrStorageRead, err)
	}
	if len(v) != wantLen {
		return nil, mesh.NewError("KeyManager.read", mesh.ErrStorageInvalid, ErrInvalidValue)
	}
	return v, nil
}

func (m *KeyManager) write(slot Slot, v []byte) error {
	if err := m.store.WriteAndCommit(slot, v); err != nil {
		return mesh.NewError("KeyManager.write", mesh.ErrStorageWrite, err)
	}
	return nil
}

// InclusionState returns the persisted inclusion state, or NotIncluded if
// the slot has never been written.
func (m *KeyManager) InclusionState() (mesh.InclusionState, error) {
	if !m.store.Exists(SlotInclusionState) {
		return mesh.NotIncluded, nil
	}
	v, err := m.read(SlotInclusionState, 1)
	if err != nil {
		return 0, err
	}
	return mesh.InclusionState(v[0]), nil
}

// SetInclusionState persists a new inclusion state.
func (m *KeyManager) SetInclusionState(s mesh.InclusionState) error {
	return m.write(SlotInclusionState, []byte{byte(s)})
}

// FrameCounter returns the persisted frame counter, or 0 if never written.
func (m *KeyManager) FrameCounter() (uint32, error) {
	if !m.store.Exists(SlotMessageCounter) {
		return 0, nil
	}
	v, err := m.read(SlotMessageCounter, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(v), nil
}

// SetFrameCounter persists a new frame counter value. Callers are
// responsible for committing before transmitting the frame that uses it
// (spec.md §4.11: the counter must never be reused after a crash).
func (m *KeyManager) SetFrameCounter(v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return m.write(SlotMessageCounter, buf)
}

// DevicePrivate returns this node's P-256 private key.
func (m *KeyManager) DevicePrivate() (*[mesh.P256PrivateLen]byte, error) {
	v, err := m.read(SlotDevicePrivate, mesh.P256PrivateLen)
	if err != nil {
		return nil, err
	}
	var out [mesh.P256PrivateLen]byte
	copy(out[:], v)
	return &out, nil
}

// SetDevicePrivate persists this node's P-256 private key. Only the private
// half is stored; the public half is derived from it when needed
// (mesh.DerivePublicFromPrivate).
func (m *KeyManager) SetDevicePrivate(priv [mesh.P256PrivateLen]byte) error {
	return m.write(SlotDevicePrivate, priv[:])
}

// HubPublic returns the hub's P-256 public key known to this node.
func (m *KeyManager) HubPublic() (*[mesh.P256PublicLen]byte, error) {
	v, err := m.read(SlotHubPublic, mesh.P256PublicLen)
	if err != nil {
		return nil, err
	}
	var out [mesh.P256PublicLen]byte
	copy(out[:], v)
	return &out, nil
}

// SetHubPublic persists the hub's public key, learned during inclusion.
func (m *KeyManager) SetHubPublic(pub [mesh.P256PublicLen]byte) error {
	return m.write(SlotHubPublic, pub[:])
}

// NetworkKey returns the shared AES-256 network key.
func (m *KeyManager) NetworkKey() (*[32]byte, error) {
	v, err := m.read(SlotNetworkKey, 32)
	if err != nil {
		return nil, err
	}
	var out [32]byte
	copy(out[:], v)
	return &out, nil
}

// SetNetworkKey persists the network key: a device learns it from
// INCLUDE_RESPONSE, a hub mints its own on first boot.
func (m *KeyManager) SetNetworkKey(key [32]byte) error {
	return m.write(SlotNetworkKey, key[:])
}

// HasNetworkKey reports whether a network key has been provisioned, used to
// gate regular-topic AES encryption per spec.md §4.6.
func (m *KeyManager) HasNetworkKey() bool {
	return m.store.Exists(SlotNetworkKey)
}

// GenerateAndStoreKeypair generates a fresh device keypair and persists the
// private half, returning both (spec.md §4.11, first-boot provisioning).
func (m *KeyManager) GenerateAndStoreKeypair() (pub [mesh.P256PublicLen]byte, err error) {
	priv, pub, err := mesh.GenerateP256Keypair()
	if err != nil {
		return pub, err
	}
	if err := m.SetDevicePrivate(priv); err != nil {
		return pub, err
	}
	return pub, nil
}
