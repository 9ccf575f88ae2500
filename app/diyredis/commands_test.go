package diyredis

import (
	"testing"

	"github.com/flonle/diyredis-server/app/diyredis/resp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(Config{Dir: t.TempDir(), DBFilename: "dump.rdb", Port: 6379}, zerolog.Nop())
}

func run(s *Server, args ...string) string {
	var enc resp.Encoder
	s.dispatch(&enc, args, true)
	return string(enc.Buf)
}

func TestDispatchPing(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, "+PONG\r\n", run(s, "PING"))
	assert.Equal(t, "$5\r\nhello\r\n", run(s, "PING", "hello"))
}

func TestDispatchSetGet(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, "+OK\r\n", run(s, "SET", "foo", "bar"))
	assert.Equal(t, "$3\r\nbar\r\n", run(s, "GET", "foo"))
	assert.Equal(t, "$-1\r\n", run(s, "GET", "missing"))
}

func TestDispatchSetNXPropagation(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, "+OK\r\n", run(s, "SET", "k", "v1", "NX"))
	assert.Equal(t, int64(0), s.repl.Offset(), "with no replica attached the offset must not advance")

	assert.Equal(t, "$-1\r\n", run(s, "SET", "k", "v2", "NX"))
	assert.Equal(t, "$2\r\nv1\r\n", run(s, "GET", "k"))
}

func TestDispatchDelCountsOnlyPresentKeys(t *testing.T) {
	s := newTestServer(t)
	run(s, "SET", "a", "1")
	assert.Equal(t, ":1\r\n", run(s, "DEL", "a", "missing"))
}

func TestDispatchUnknownCommand(t *testing.T) {
	s := newTestServer(t)
	assert.Contains(t, run(s, "NOTACOMMAND"), "-ERR unknown command")
}

func TestDispatchWrongType(t *testing.T) {
	s := newTestServer(t)
	run(s, "XADD", "stream", "1-1", "field", "value")
	assert.Contains(t, run(s, "GET", "stream"), "-WRONGTYPE")
}

func TestDispatchXAddXRange(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, "$3\r\n1-1\r\n", run(s, "XADD", "s", "1-1", "a", "1"))
	reply := run(s, "XRANGE", "s", "-", "+")
	assert.Equal(t, "*1\r\n*2\r\n$3\r\n1-1\r\n*2\r\n$1\r\na\r\n$1\r\n1\r\n", reply)
}

func TestDispatchConfigGet(t *testing.T) {
	s := newTestServer(t)
	reply := run(s, "CONFIG", "GET", "dbfilename")
	assert.Equal(t, "*2\r\n$10\r\ndbfilename\r\n$8\r\ndump.rdb\r\n", reply)
}

func TestDispatchPropagatesWritesToReplicas(t *testing.T) {
	s := newTestServer(t)
	replica := s.repl.Attach(&discardWriter{}, "test-replica")
	defer s.repl.Detach(replica)

	run(s, "SET", "k", "v")
	assert.Equal(t, int64(len(resp.EncodeCommandArray([]string{"SET", "k", "v"}))), s.repl.Offset())

	before := s.repl.Offset()
	run(s, "GET", "k")
	assert.Equal(t, before, s.repl.Offset(), "GET must never be replicated")
}

type discardWriter struct{}

func (*discardWriter) Write(p []byte) (int, error) { return len(p), nil }
