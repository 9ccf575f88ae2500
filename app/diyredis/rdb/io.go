package rdb

import (
	"bufio"
	"bytes"
	"io"

	"github.com/flonle/diyredis-server/app/diyredis/crc64"
)

// byteReader adapts a []byte into an io.Reader without copying, for Decode's
// in-memory callers (replication applying a FULLRESYNC payload).
func byteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func readFull(r io.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}

// checksummingReader wraps a *bufio.Reader and feeds every byte it hands out
// into a running CRC64 (Jones polynomial, via this project's own crc64
// package — not the stdlib ECMA table some reference implementations reach
// for, which would produce a checksum Redis itself would reject).
type checksummingReader struct {
	r    *bufio.Reader
	hash *crc64.Hash
}

func newChecksummingReader(r *bufio.Reader) *checksummingReader {
	return &checksummingReader{r: r, hash: crc64.New()}
}

func (c *checksummingReader) readByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, err
	}
	c.hash.Write([]byte{b})
	return b, nil
}

func (c *checksummingReader) sum() uint64 {
	return c.hash.Sum64()
}

// readFullChecksummed reads len(buf) bytes from the underlying reader,
// folding them into the running checksum.
func readFullChecksummed(c *checksummingReader, buf []byte) (int, error) {
	n, err := io.ReadFull(c.r, buf)
	if err != nil {
		return n, err
	}
	c.hash.Write(buf)
	return n, nil
}
