package mesh

import (
	"crypto/aes"
)

// ivCounterOffset is where the 4-byte big-endian block counter lives inside
// the 16-byte IV (spec.md §4.3).
const ivCounterOffset = 12

// AESCTR encrypts (or, symmetrically, decrypts) plaintext under AES-256 in
// counter mode, with the counter occupying only the last 4 bytes of a
// 16-byte IV. Output is the same length as the input; there is no padding.
func AESCTR(key, iv, input []byte) ([]byte, error) {
	if len(iv) != 16 {
		return nil, NewError("AESCTR", ErrInvalidLength, nil)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewError("AESCTR", ErrCryptoSetup, err)
	}

	numBlocks := (len(input) + 15) / 16
	counterBlock := make([]byte, 16)
	copy(counterBlock, iv)

	keystream := make([]byte, numBlocks*16)
	counter := beUint32(iv[ivCounterOffset:])
	for i := 0; i < numBlocks; i++ {
		putBEUint32(counterBlock[ivCounterOffset:], counter+uint32(i))
		block.Encrypt(keystream[i*16:(i+1)*16], counterBlock)
	}

	out := make([]byte, len(input))
	for i := range input {
		out[i] = input[i] ^ keystream[i]
	}
	return out, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBEUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// ZeroIV is the well-known 16-byte IV used for regular AES-CTR traffic and
// for ECIES: freshness comes from the frame counter feeding the CRC/MIC, not
// the IV (spec.md §9, "ECIES IV is zero" / "AES-CTR with zero IV").
var ZeroIV = make([]byte, 16)
