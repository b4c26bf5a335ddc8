package mesh

import "testing"

func TestPayloadCRCDeterministic(t *testing.T) {
	a := PayloadCRC(42, []byte("hello"))
	b := PayloadCRC(42, []byte("hello"))
	if a != b {
		t.Fatalf("PayloadCRC not deterministic: %x != %x", a, b)
	}
}

func TestPayloadCRCChangesOnBitFlip(t *testing.T) {
	payload := []byte("hello, mesh")
	base := PayloadCRC(7, payload)

	for i := range payload {
		flipped := append([]byte(nil), payload...)
		flipped[i] ^= 0x01
		if got := PayloadCRC(7, flipped); got == base {
			t.Errorf("flipping byte %d left CRC unchanged: %x", i, got)
		}
	}
}

func TestPayloadCRCChangesOnCounter(t *testing.T) {
	payload := []byte("same payload")
	if PayloadCRC(1, payload) == PayloadCRC(2, payload) {
		t.Fatal("CRC did not change when frame counter changed")
	}
}

func TestCRC32Accumulator(t *testing.T) {
	c := NewCRC32()
	c.UpdateUint32(0x01020304)
	c.Update([]byte("payload"))

	want := PayloadCRC(0x01020304, []byte("payload"))
	if got := c.Sum(); got != want {
		t.Fatalf("accumulator mismatch: got %x want %x", got, want)
	}
}

func TestCRC32UpdateByteAndUint16(t *testing.T) {
	byByte := NewCRC32()
	byByte.UpdateByte(0x00)
	byByte.UpdateByte(0x01)

	byUint16 := NewCRC32()
	byUint16.UpdateUint16(0x0001)

	if byByte.Sum() != byUint16.Sum() {
		t.Fatalf("byte-at-a-time and uint16 updates diverged: %x != %x", byByte.Sum(), byUint16.Sum())
	}
}
