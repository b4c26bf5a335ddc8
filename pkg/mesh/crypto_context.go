package mesh

// CryptoContext bundles the key material and local role/state a node needs
// to resolve the EncryptionService/MicService selection matrices
// (spec.md §4.6/§4.7). A node holds exactly one CryptoContext.
type CryptoContext struct {
	Role  DeviceType
	State InclusionState

	// NetworkKey is the shared AES-256 network key, present once a device
	// is (or is about to become) INCLUDED.
	NetworkKey *[32]byte

	// DevicePrivate/DevicePublic are this node's own P-256 keypair.
	DevicePrivate *[P256PrivateLen]byte
	DevicePublic  *[P256PublicLen]byte

	// HubPublic is the hub's P-256 public key, known to every included
	// device (and to the hub about itself, trivially).
	HubPublic *[P256PublicLen]byte

	// PeerPublic is the candidate's public key the hub is handling during
	// one in-flight inclusion session ("temp_peer_public", spec.md §4.6).
	PeerPublic *[P256PublicLen]byte
}

// EncryptionMethod identifies which transform EncryptionService.Determine
// selected.
type EncryptionMethod int

const (
	MethodNone EncryptionMethod = iota
	MethodECIESFromDevicePrivate
	MethodECIESToPeer
	MethodAES
)
