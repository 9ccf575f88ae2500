package rdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	entries []Entry
	dbs     []int
}

func (h *recordingHandler) HandleString(dbIndex int, key, value string, expiresAt time.Time) {
	h.entries = append(h.entries, Entry{Key: key, Value: value, ExpiresAt: expiresAt})
	h.dbs = append(h.dbs, dbIndex)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []Entry{
		{Key: "foo", Value: "bar"},
		{Key: "baz", Value: "qux", ExpiresAt: time.UnixMilli(1_700_000_000_000)},
	}
	data := Encode(in)

	h := &recordingHandler{}
	require.NoError(t, Decode(data, h))

	require.Len(t, h.entries, 2)
	assert.Equal(t, "foo", h.entries[0].Key)
	assert.Equal(t, "bar", h.entries[0].Value)
	assert.True(t, h.entries[0].ExpiresAt.IsZero())

	assert.Equal(t, "baz", h.entries[1].Key)
	assert.Equal(t, "qux", h.entries[1].Value)
	assert.Equal(t, int64(1_700_000_000_000), h.entries[1].ExpiresAt.UnixMilli())
}

func TestEmptyRDBDecodesToNoEntries(t *testing.T) {
	h := &recordingHandler{}
	require.NoError(t, Decode(EmptyRDB(), h))
	assert.Empty(t, h.entries)
}

func TestDecodeBadMagic(t *testing.T) {
	h := &recordingHandler{}
	err := Decode([]byte("NOTREDIS0011\xff\x00\x00\x00\x00\x00\x00\x00\x00"), h)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeChecksumMismatch(t *testing.T) {
	data := Encode([]Entry{{Key: "k", Value: "v"}})
	data[len(data)-1] ^= 0xFF // flip every bit of the trailing CRC64's last byte

	h := &recordingHandler{}
	err := Decode(data, h)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/dump.rdb"

	in := []Entry{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	require.NoError(t, Save(path, in))

	h := &recordingHandler{}
	require.NoError(t, Load(path, h))
	require.Len(t, h.entries, 2)
	assert.Equal(t, "a", h.entries[0].Key)
	assert.Equal(t, "b", h.entries[1].Key)
}

func TestLengthEncodingWidths(t *testing.T) {
	// Exercise the 6-bit, 14-bit, and 32-bit size-encoding branches with
	// values that straddle each boundary.
	long := make([]byte, 1<<14+10)
	for i := range long {
		long[i] = 'x'
	}
	in := []Entry{
		{Key: "short", Value: "v"},
		{Key: "midlen", Value: string(make([]byte, 1000))},
		{Key: "longlen", Value: string(long)},
	}
	data := Encode(in)

	h := &recordingHandler{}
	require.NoError(t, Decode(data, h))
	require.Len(t, h.entries, 3)
	assert.Len(t, h.entries[1].Value, 1000)
	assert.Len(t, h.entries[2].Value, 1<<14+10)
}
