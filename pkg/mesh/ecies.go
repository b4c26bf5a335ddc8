package mesh

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
)

// P256PublicLen/P256PrivateLen describe the uncompressed P-256 public key and
// raw private key sizes used throughout the inclusion protocol (spec.md §3).
const (
	P256PublicLen  = 64 // uncompressed X||Y, no 0x04 prefix
	P256PrivateLen = 32
)

// ECIESEncryptWithKey implements spec.md §4.5: generate an ephemeral P-256
// keypair, ECDH with the recipient's 64-byte uncompressed public key,
// derive a symmetric key via SHA-256, then AES-CTR encrypt under a zero
// IV. Output is the ephemeral public key followed by the ciphertext. The
// derived session key is also returned: spec.md §4.7 authenticates
// INCLUDE_RESPONSE with a MIC under this same "ECIES-derived k_mac" rather
// than a separate static-key exchange — the candidate device has no way to
// derive a static hub-identity-keyed MAC before this very message has told
// it the hub's identity key, so the only key both sides can compute
// without a circular dependency is the one ECIES itself already derived
// (see DESIGN.md).
//
// The ephemeral keypair must never be reused across two encryptions
// (spec.md §9) — ECIESEncryptWithKey always generates a fresh one.
func ECIESEncryptWithKey(recipientPub [P256PublicLen]byte, plaintext []byte) (wire []byte, sessionKey [32]byte, err error) {
	curve := ecdh.P256()
	recipient, err := unmarshalP256Public(curve, recipientPub[:])
	if err != nil {
		return nil, sessionKey, NewError("ECIESEncrypt", ErrInvalidKeyLen, err)
	}

	ephPriv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, sessionKey, NewError("ECIESEncrypt", ErrCryptoSetup, err)
	}

	shared, err := ephPriv.ECDH(recipient)
	if err != nil {
		return nil, sessionKey, NewError("ECIESEncrypt", ErrECDHFailed, err)
	}

	sessionKey = sha256.Sum256(shared)
	ciphertext, err := AESCTR(sessionKey[:], ZeroIV, plaintext)
	if err != nil {
		return nil, sessionKey, NewError("ECIESEncrypt", ErrCryptoSetup, err)
	}

	ephPub := marshalP256Public(ephPriv.PublicKey())
	out := make([]byte, 0, P256PublicLen+len(ciphertext))
	out = append(out, ephPub...)
	out = append(out, ciphertext...)
	return out, sessionKey, nil
}

// ECIESEncrypt is ECIESEncryptWithKey without exposing the session key, for
// callers that only need the ciphertext (regular AES/ECIES payload
// transforms that don't also need to derive a MIC key from it).
func ECIESEncrypt(recipientPub [P256PublicLen]byte, plaintext []byte) ([]byte, error) {
	wire, _, err := ECIESEncryptWithKey(recipientPub, plaintext)
	return wire, err
}

// ECIESDecryptWithKey is the inverse of ECIESEncryptWithKey given the
// recipient's 32-byte private key; see its doc for why the session key is
// also returned.
func ECIESDecryptWithKey(priv [P256PrivateLen]byte, data []byte) (plaintext []byte, sessionKey [32]byte, err error) {
	if len(data) < P256PublicLen+1 {
		return nil, sessionKey, NewError("ECIESDecrypt", ErrCiphertextShort, nil)
	}

	curve := ecdh.P256()
	localPriv, err := curve.NewPrivateKey(priv[:])
	if err != nil {
		return nil, sessionKey, NewError("ECIESDecrypt", ErrInvalidKeyLen, err)
	}

	ephPub, err := unmarshalP256Public(curve, data[:P256PublicLen])
	if err != nil {
		return nil, sessionKey, NewError("ECIESDecrypt", ErrInvalidKeyLen, err)
	}

	shared, err := localPriv.ECDH(ephPub)
	if err != nil {
		return nil, sessionKey, NewError("ECIESDecrypt", ErrECDHFailed, err)
	}

	sessionKey = sha256.Sum256(shared)
	plaintext, err = AESCTR(sessionKey[:], ZeroIV, data[P256PublicLen:])
	if err != nil {
		return nil, sessionKey, NewError("ECIESDecrypt", ErrCryptoSetup, err)
	}
	return plaintext, sessionKey, nil
}

// ECIESDecrypt is ECIESDecryptWithKey without exposing the session key.
func ECIESDecrypt(priv [P256PrivateLen]byte, data []byte) ([]byte, error) {
	plaintext, _, err := ECIESDecryptWithKey(priv, data)
	return plaintext, err
}

// GenerateP256Keypair generates a fresh device keypair (uECC_make_key-style
// random generation, spec.md §4.11): 32-byte private key, 64-byte
// uncompressed public key.
func GenerateP256Keypair() (priv [P256PrivateLen]byte, pub [P256PublicLen]byte, err error) {
	curve := ecdh.P256()
	key, genErr := curve.GenerateKey(rand.Reader)
	if genErr != nil {
		return priv, pub, NewError("GenerateP256Keypair", ErrCryptoSetup, genErr)
	}
	copy(priv[:], key.Bytes())
	copy(pub[:], marshalP256Public(key.PublicKey()))
	return priv, pub, nil
}

// DerivePublicFromPrivate recomputes a node's public key from its stored
// private key, used after a reboot when only the private half was
// persisted (spec.md §4.11).
func DerivePublicFromPrivate(priv [P256PrivateLen]byte) ([P256PublicLen]byte, error) {
	var pub [P256PublicLen]byte
	curve := ecdh.P256()
	key, err := curve.NewPrivateKey(priv[:])
	if err != nil {
		return pub, NewError("DerivePublicFromPrivate", ErrInvalidKeyLen, err)
	}
	copy(pub[:], marshalP256Public(key.PublicKey()))
	return pub, nil
}

func marshalP256Public(pub *ecdh.PublicKey) []byte {
	// pub.Bytes() is the SEC1 uncompressed form: 0x04 || X || Y (65 bytes).
	// The wire format is the bare 64-byte X||Y (spec.md §3).
	return pub.Bytes()[1:]
}

func unmarshalP256Public(curve ecdh.Curve, xy []byte) (*ecdh.PublicKey, error) {
	if len(xy) != P256PublicLen {
		return nil, NewError("unmarshalP256Public", ErrInvalidKeyLen, nil)
	}
	full := make([]byte, 0, P256PublicLen+1)
	full = append(full, 0x04)
	full = append(full, xy...)
	return curve.NewPublicKey(full)
}
