package mesh

// EncryptionService implements spec.md §4.6: it chooses between NONE, ECIES
// and AES-256-CTR by (topic, role, inclusion state), then performs the
// transform. EncryptionService itself holds no state; the key material and
// role/state live in the CryptoContext passed to each call.
//
// Resolved discrepancy (see DESIGN.md): spec.md §4.6's selection table lists
// ECIES for INCLUDE_REQUEST, but §4.12 step 2, the MicService table in §4.7,
// and the Open Questions in §9 all describe INCLUDE_REQUEST as a cleartext,
// unauthenticated public-key exchange. This implementation follows the
// cleartext behavior — it is stated three times against the table's once,
// and scenario S5 sends INCLUDE_REQUEST with no mention of encryption.
type EncryptionService struct{}

// NewEncryptionService returns a stateless EncryptionService.
func NewEncryptionService() *EncryptionService { return &EncryptionService{} }

// Determine resolves the encryption method for (topic, ctx.Role, ctx.State),
// per the table in spec.md §4.6 (as resolved above for INCLUDE_REQUEST).
func (s *EncryptionService) Determine(ctx *CryptoContext, topic Topic) EncryptionMethod {
	switch topic {
	case TopicIncludeOpen, TopicIncludeRequest:
		return MethodNone
	case TopicIncludeResponse:
		if ctx.Role == DeviceTypeHub {
			return MethodECIESToPeer
		}
		return MethodECIESFromDevicePrivate
	case TopicIncludeConfirm, TopicIncludeSuccess:
		return MethodAES
	default:
		if ctx.State == Included || ctx.Role == DeviceTypeHub {
			return MethodAES
		}
		return MethodNone
	}
}

// Encrypt transforms a cleartext payload for topic according to the
// selection matrix. On MethodNone it returns plaintext unchanged. macKey is
// non-nil only for the ECIES methods: it is the session key the ECIES step
// derived, which MicService reuses as INCLUDE_RESPONSE's "ECIES-derived
// k_mac" (spec.md §4.7) instead of a separate static-key exchange the
// receiving candidate could not yet compute (see DESIGN.md).
func (s *EncryptionService) Encrypt(ctx *CryptoContext, topic Topic, plaintext []byte) (ciphertext []byte, method EncryptionMethod, macKey []byte, err error) {
	method = s.Determine(ctx, topic)
	switch method {
	case MethodNone:
		return plaintext, method, nil, nil
	case MethodECIESToPeer:
		if ctx.PeerPublic == nil {
			return nil, method, nil, NewError("Encrypt", ErrMissingKey, nil)
		}
		ct, key, encErr := ECIESEncryptWithKey(*ctx.PeerPublic, plaintext)
		if encErr != nil {
			return nil, method, nil, encErr
		}
		return ct, method, key[:], nil
	case MethodECIESFromDevicePrivate:
		// Only the hub encrypts under INCLUDE_RESPONSE's ECIES-to-peer path;
		// a device never encrypts using its own private key, only decrypts.
		return nil, method, nil, NewError("Encrypt", ErrInvalidParam, nil)
	case MethodAES:
		if ctx.NetworkKey == nil {
			return nil, method, nil, NewError("Encrypt", ErrMissingKey, nil)
		}
		ct, encErr := AESCTR(ctx.NetworkKey[:], ZeroIV, plaintext)
		return ct, method, nil, encErr
	default:
		return nil, method, nil, NewError("Encrypt", ErrInvalidParam, nil)
	}
}

// Decrypt is the inverse of Encrypt given the local node's role/state and
// key material; see Encrypt's doc for macKey.
func (s *EncryptionService) Decrypt(ctx *CryptoContext, topic Topic, data []byte) (plaintext []byte, method EncryptionMethod, macKey []byte, err error) {
	method = s.Determine(ctx, topic)
	switch method {
	case MethodNone:
		return data, method, nil, nil
	case MethodECIESToPeer:
		// A candidate device decrypts INCLUDE_RESPONSE with its own private key.
		if ctx.DevicePrivate == nil {
			return nil, method, nil, NewError("Decrypt", ErrMissingKey, nil)
		}
		pt, key, decErr := ECIESDecryptWithKey(*ctx.DevicePrivate, data)
		if decErr != nil {
			return nil, method, nil, decErr
		}
		return pt, method, key[:], nil
	case MethodECIESFromDevicePrivate:
		if ctx.DevicePrivate == nil {
			return nil, method, nil, NewError("Decrypt", ErrMissingKey, nil)
		}
		pt, key, decErr := ECIESDecryptWithKey(*ctx.DevicePrivate, data)
		if decErr != nil {
			return nil, method, nil, decErr
		}
		return pt, method, key[:], nil
	case MethodAES:
		if ctx.NetworkKey == nil {
			return nil, method, nil, NewError("Decrypt", ErrMissingKey, nil)
		}
		pt, decErr := AESCTR(ctx.NetworkKey[:], ZeroIV, data)
		return pt, method, nil, decErr
	default:
		return nil, method, nil, NewError("Decrypt", ErrInvalidParam, nil)
	}
}
