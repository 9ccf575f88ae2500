package replication

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("boom") }

func TestManagerPropagateAdvancesOffsetAndFansOut(t *testing.T) {
	m := NewManager(zerolog.Nop())
	var a, b bytes.Buffer
	m.Attach(&a, "replica-a")
	m.Attach(&b, "replica-b")

	payload := []byte("*1\r\n$4\r\nPING\r\n")
	m.Propagate(payload)

	assert.Equal(t, int64(len(payload)), m.Offset())
	assert.Equal(t, payload, a.Bytes())
	assert.Equal(t, payload, b.Bytes())
	assert.Equal(t, 2, m.ReplicaCount())
}

func TestManagerDetachesOnWriteFailure(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.Attach(failingWriter{}, "bad-replica")
	require.Equal(t, 1, m.ReplicaCount())

	m.Propagate([]byte("*1\r\n$4\r\nPING\r\n"))
	assert.Equal(t, 0, m.ReplicaCount())
}

func TestReplIDIsFortyHex(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.Len(t, m.ReplID(), 40)
}

func TestInfoReplicationBody(t *testing.T) {
	m := NewManager(zerolog.Nop())
	body := m.InfoReplication(false)
	assert.Contains(t, body, "role:master")
	assert.Contains(t, body, "master_replid:"+m.ReplID())
	assert.Contains(t, body, "master_repl_offset:0")

	body = m.InfoReplication(true)
	assert.Contains(t, body, "role:slave")
}
