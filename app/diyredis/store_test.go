package diyredis

import (
	"testing"
	"time"

	streams "github.com/flonle/diyredis-server/app/diyredis/streams"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetExpiry(t *testing.T) {
	s := NewStore()
	s.Set("foo", "bar", time.Now().Add(100*time.Millisecond))

	val, ok, err := s.Get("foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bar", val)

	time.Sleep(150 * time.Millisecond)

	_, ok, err = s.Get("foo")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "none", s.Type("foo"))
}

func TestGetWrongType(t *testing.T) {
	s := NewStore()
	_, err := s.XAdd("stream-key", "1-1", []streams.FieldValue{{Field: "a", Value: "1"}})
	require.NoError(t, err)

	_, _, err = s.Get("stream-key")
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestDel(t *testing.T) {
	s := NewStore()
	s.Set("a", "1", time.Time{})
	s.Set("b", "2", time.Time{})

	assert.Equal(t, 2, s.Del([]string{"a", "b", "missing"}))
	_, ok, _ := s.Get("a")
	assert.False(t, ok)
}

func TestSetNXAndXX(t *testing.T) {
	s := NewStore()
	assert.True(t, s.SetIfAbsent("k", "v1", time.Time{}))
	assert.False(t, s.SetIfAbsent("k", "v2", time.Time{}))
	val, _, _ := s.Get("k")
	assert.Equal(t, "v1", val)

	assert.True(t, s.SetIfPresent("k", "v3", time.Time{}))
	assert.False(t, s.SetIfPresent("missing", "v4", time.Time{}))
}

func TestXAddOrdering(t *testing.T) {
	s := NewStore()
	id1, err := s.XAdd("s", "1-1", []streams.FieldValue{{Field: "a", Value: "1"}})
	require.NoError(t, err)
	assert.Equal(t, "1-1", id1.String())

	_, err = s.XAdd("s", "1-1", []streams.FieldValue{{Field: "b", Value: "2"}})
	assert.ErrorContains(t, err, "equal or smaller")

	id2, err := s.XAdd("s", "1-2", []streams.FieldValue{{Field: "b", Value: "2"}})
	require.NoError(t, err)
	assert.Equal(t, "1-2", id2.String())

	entries, err := s.XRange("s", "-", "+")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1-1", entries[0].Key.String())
	assert.Equal(t, "1-2", entries[1].Key.String())
}

func TestXAddZeroZeroRejected(t *testing.T) {
	s := NewStore()
	_, err := s.XAdd("s", "0-0", nil)
	assert.Error(t, err)
}

func TestKeysGlob(t *testing.T) {
	s := NewStore()
	s.Set("foo", "1", time.Time{})
	s.Set("foobar", "1", time.Time{})
	s.Set("baz", "1", time.Time{})

	got := s.Keys("foo*")
	assert.ElementsMatch(t, []string{"foo", "foobar"}, got)
}
