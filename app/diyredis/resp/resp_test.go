package resp

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCommand(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	args, err := ReadCommand(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET", "foo"}, args)
}

func TestReadCommandPipelined(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(
		"*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n",
	))
	args1, err := ReadCommand(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, args1)

	args2, err := ReadCommand(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, args2)
}

func TestReadCommandBadFraming(t *testing.T) {
	cases := []string{
		"$3\r\nfoo\r\n",        // not an array
		"*2\r\n$3\r\nfoo\r\n",  // missing second element
		"*1\r\n$2\r\nfoX\r\n",  // missing CRLF terminator after payload
		"*-2\r\n",              // invalid negative length
	}
	for _, c := range cases {
		r := bufio.NewReader(strings.NewReader(c))
		_, err := ReadCommand(r)
		assert.Error(t, err, c)
	}
}

func TestReadRDBBulkNoTrailingCRLF(t *testing.T) {
	payload := "REDIS0011\xff\x00\x00\x00\x00\x00\x00\x00\x00"
	wire := "$" + itoa(len(payload)) + "\r\n" + payload
	r := bufio.NewReader(strings.NewReader(wire))
	got, err := ReadRDBBulk(r)
	require.NoError(t, err)
	assert.Equal(t, []byte(payload), got)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestEncodeBulkStr(t *testing.T) {
	e := Encoder{}
	e.WriteBulkStr("hello")
	assert.Equal(t, "$5\r\nhello\r\n", string(e.Buf))
}

func TestEncodeNulls(t *testing.T) {
	e := Encoder{}
	e.WriteNullBulk()
	assert.Equal(t, "$-1\r\n", string(e.Buf))

	e.Reset()
	e.WriteNullArray()
	assert.Equal(t, "*-1\r\n", string(e.Buf))
}

func TestEncodeCommandArray(t *testing.T) {
	got := EncodeCommandArray([]string{"SET", "foo", "bar"})
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n", string(got))
}

func BenchmarkEncodeBulkStr(b *testing.B) {
	e := Encoder{}
	for i := 0; i < b.N; i++ {
		e.Reset()
		e.WriteBulkStr("hello world")
	}
}

func BenchmarkReadCommand(b *testing.B) {
	wire := "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"
	for i := 0; i < b.N; i++ {
		r := bufio.NewReader(strings.NewReader(wire))
		_, _ = ReadCommand(r)
	}
}
