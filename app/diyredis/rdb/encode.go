package rdb

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flonle/diyredis-server/app/diyredis/crc64"
)

// Encode serialises entries as a complete RDB image: header, a single
// SELECTDB 0, one key entry per element (with an expire opcode first when
// ExpiresAt is set), and an EOF trailer carrying the CRC64 of everything
// that preceded it.
func Encode(entries []Entry) []byte {
	var buf []byte
	buf = append(buf, magic...)
	buf = append(buf, headerVersion...)

	buf = appendByte(buf, opCodeAux)
	buf = appendStringEnc(buf, "redis-ver")
	buf = appendStringEnc(buf, "7.0.0")
	buf = appendByte(buf, opCodeAux)
	buf = appendStringEnc(buf, "diyredis-ver")
	buf = appendStringEnc(buf, "1.0.0")

	buf = appendByte(buf, opCodeSelectDB)
	buf = appendLengthEnc(buf, 0)

	buf = appendByte(buf, opCodeResizeDB)
	buf = appendLengthEnc(buf, uint64(len(entries)))
	buf = appendLengthEnc(buf, 0)

	for _, e := range entries {
		if !e.ExpiresAt.IsZero() {
			buf = appendByte(buf, opCodeExpireTimeMs)
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], uint64(e.ExpiresAt.UnixMilli()))
			buf = append(buf, tmp[:]...)
		}
		buf = appendByte(buf, typeString)
		buf = appendStringEnc(buf, e.Key)
		buf = appendStringEnc(buf, e.Value)
	}

	buf = appendByte(buf, opCodeEOF)

	sum := checksumOf(buf)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], sum)
	buf = append(buf, tmp[:]...)
	return buf
}

// EmptyRDB returns the bytes of a valid, keyless RDB image: the payload a
// master sends a replica's PSYNC when it has no data yet.
func EmptyRDB() []byte {
	return Encode(nil)
}

// Save atomically writes entries to path, via a temp file in the same
// directory renamed into place so a crash mid-write never leaves a
// truncated snapshot where the real one used to be.
func Save(path string, entries []Entry) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(Encode(entries)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func appendByte(buf []byte, b byte) []byte {
	return append(buf, b)
}

// appendLengthEnc always uses the narrowest encoding its value fits: 6-bit,
// 14-bit big-endian, or 32-bit big-endian. This encoder never produces the
// special int8/int16/int32/LZF string forms, only plain length-prefixed
// strings, which keeps the writer side simple and is always a legal
// encoding for a reader to accept.
func appendLengthEnc(buf []byte, n uint64) []byte {
	switch {
	case n < 1<<6:
		return append(buf, byte(n))
	case n < 1<<14:
		return append(buf, byte(0b01<<6|(n>>8)), byte(n))
	case n <= 0xFFFFFFFF:
		b := []byte{0b10 << 6, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], uint32(n))
		return append(buf, b...)
	default:
		panic(fmt.Sprintf("rdb: length %d exceeds 32-bit encoding", n))
	}
}

func appendStringEnc(buf []byte, s string) []byte {
	buf = appendLengthEnc(buf, uint64(len(s)))
	return append(buf, s...)
}

func checksumOf(buf []byte) uint64 {
	return crc64.Checksum(buf)
}
