package mesh

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestAESCTRSymmetry(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		t.Fatal(err)
	}

	sizes := []int{0, 1, 15, 16, 17, 31, 32, 220}
	for _, n := range sizes {
		plaintext := make([]byte, n)
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatal(err)
		}
		ciphertext, err := AESCTR(key, iv, plaintext)
		if err != nil {
			t.Fatalf("size %d: encrypt: %v", n, err)
		}
		if len(ciphertext) != n {
			t.Fatalf("size %d: ciphertext length %d, want %d", n, len(ciphertext), n)
		}
		recovered, err := AESCTR(key, iv, ciphertext)
		if err != nil {
			t.Fatalf("size %d: decrypt: %v", n, err)
		}
		if !bytes.Equal(recovered, plaintext) {
			t.Fatalf("size %d: round trip mismatch", n)
		}
	}
}

func TestAESCTRInvalidIVLength(t *testing.T) {
	key := make([]byte, 32)
	_, err := AESCTR(key, make([]byte, 12), []byte("x"))
	if err == nil {
		t.Fatal("expected error for short IV")
	}
	if kind, _ := KindOf(err); kind != ErrInvalidLength {
		t.Fatalf("got kind %v, want ErrInvalidLength", kind)
	}
}

func TestAESCTRCounterRollsOverLastFourBytes(t *testing.T) {
	key := make([]byte, 32)
	iv := make([]byte, 16)
	// counter starts at 0xFFFFFFFF so the second 16-byte block wraps to 0.
	iv[12], iv[13], iv[14], iv[15] = 0xFF, 0xFF, 0xFF, 0xFF

	plaintext := make([]byte, 32)
	ciphertext, err := AESCTR(key, iv, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	recovered, err := AESCTR(key, iv, ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Fatal("round trip across counter wraparound failed")
	}
}
