// Package crc64 computes the exact CRC64 variant Redis uses to checksum RDB
// files: the Jones polynomial, with no initial or final inversion (unlike
// the CRC-64/XZ variant the standard library ships tables for).
package crc64

import (
	"hash"
	"hash/crc64"
	"math/bits"
	"sync"
)

// Poly is the Jones polynomial, matching Redis's own crc64.c.
const Poly uint64 = 0xad93d23594c935a9

var (
	tableOnce sync.Once
	table     *crc64.Table
)

func getTable() *crc64.Table {
	tableOnce.Do(func() {
		table = buildTable()
	})
	return table
}

// buildTable constructs the reflected (LSB-first) table for Poly by running
// the textbook MSB-first bit-at-a-time algorithm per byte value and then
// reversing each resulting word and storing it at the bit-reversed byte
// index, so the table is usable with the stdlib hash/crc64.Update function
// (which assumes a reflected table).
func buildTable() *crc64.Table {
	var t crc64.Table
	for i := 0; i < 256; i++ {
		crc := uint64(i) << 56
		for bit := 0; bit < 8; bit++ {
			if crc&(1<<63) != 0 {
				crc = (crc << 1) ^ Poly
			} else {
				crc <<= 1
			}
		}
		t[bits.Reverse8(uint8(i))] = bits.Reverse64(crc)
	}
	return &t
}

// Hash implements hash.Hash64 for the Redis/Jones CRC64 variant.
//
// hash/crc64.Update implicitly inverts its input and output (correct for
// CRC-64/XZ's init=allones/xorout=allones convention). Redis's variant uses
// init=0, xorout=0, so every call here wraps Update in the standard
// pre/post-XOR trick to cancel that built-in inversion back out.
type Hash struct {
	crc uint64
}

func New() *Hash {
	return &Hash{}
}

func (h *Hash) Write(p []byte) (int, error) {
	h.crc = ^crc64.Update(^h.crc, getTable(), p)
	return len(p), nil
}

func (h *Hash) Sum64() uint64 {
	return h.crc
}

func (h *Hash) Reset() { h.crc = 0 }

func (h *Hash) Size() int { return 8 }

func (h *Hash) BlockSize() int { return 1 }

func (h *Hash) Sum(b []byte) []byte {
	s := h.Sum64()
	return append(b,
		byte(s>>56), byte(s>>48), byte(s>>40), byte(s>>32),
		byte(s>>24), byte(s>>16), byte(s>>8), byte(s),
	)
}

// Checksum is a convenience wrapper for one-shot checksumming, mirroring the
// stdlib hash/crc64.Checksum signature.
func Checksum(data []byte) uint64 {
	h := New()
	h.Write(data)
	return h.Sum64()
}

var _ hash.Hash64 = (*Hash)(nil)
