package mesh

import (
	"encoding/binary"
	"hash/crc32"
)

// crcTable is the reflected CRC-32 table for polynomial 0xEDB88320.
var crcTable = crc32.IEEETable

// CRC32 accumulates a reflected CRC-32/0xEDB88320 checksum over bytes, and
// 16/32-bit integers fed as big-endian byte streams, matching spec.md §4.2.
type CRC32 struct {
	crc uint32
}

// NewCRC32 returns a CRC32 accumulator ready to Update.
func NewCRC32() *CRC32 {
	return &CRC32{crc: 0}
}

// UpdateByte folds a single byte into the running checksum.
func (c *CRC32) UpdateByte(b byte) {
	c.crc = crc32.Update(c.crc, crcTable, []byte{b})
}

// UpdateUint16 folds a big-endian 16-bit value into the running checksum.
func (c *CRC32) UpdateUint16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	c.crc = crc32.Update(c.crc, crcTable, buf[:])
}

// UpdateUint32 folds a big-endian 32-bit value into the running checksum.
func (c *CRC32) UpdateUint32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	c.crc = crc32.Update(c.crc, crcTable, buf[:])
}

// Update folds an arbitrary byte slice into the running checksum.
func (c *CRC32) Update(b []byte) {
	c.crc = crc32.Update(c.crc, crcTable, b)
}

// Sum returns the checksum accumulated so far.
func (c *CRC32) Sum() uint32 {
	return c.crc
}

// PayloadCRC computes the packet's payload_crc field: CRC-32 over the
// big-endian frame counter followed by the on-wire payload bytes
// (spec.md §3, "payload_crc").
func PayloadCRC(frameCounter uint32, payload []byte) uint32 {
	c := NewCRC32()
	c.UpdateUint32(frameCounter)
	c.Update(payload)
	return c.Sum()
}
