package resp

import "strconv"

// nullBulk and nullArr are the RESP2 null forms. RESP3 introduced a unified
// "_\r\n" null; this server never speaks RESP3, so the two forms stay
// distinct exactly as real Redis emits them.
var (
	nullBulk = []byte("$-1\r\n")
	nullArr  = []byte("*-1\r\n")
)

// Encoder accumulates RESP2 bytes into Buf. It has no internal state besides
// the buffer, so it is safe to reuse across replies by calling Reset.
type Encoder struct {
	Buf []byte
}

func (e *Encoder) Reset() {
	e.Buf = e.Buf[:0]
}

func (e *Encoder) WriteSimpleStr(s string) {
	e.Buf = append(e.Buf, simpleStrPrefix)
	e.Buf = append(e.Buf, s...)
	e.Buf = append(e.Buf, CRLF...)
}

func (e *Encoder) WriteError(s string) {
	e.Buf = append(e.Buf, simpleErrPrefix)
	e.Buf = append(e.Buf, s...)
	e.Buf = append(e.Buf, CRLF...)
}

func (e *Encoder) WriteInteger(n int64) {
	e.Buf = append(e.Buf, numberPrefix)
	e.Buf = strconv.AppendInt(e.Buf, n, 10)
	e.Buf = append(e.Buf, CRLF...)
}

func (e *Encoder) WriteBulkStr(val string) {
	e.Buf = append(e.Buf, bulkStrPrefix)
	e.Buf = strconv.AppendInt(e.Buf, int64(len(val)), 10)
	e.Buf = append(e.Buf, CRLF...)
	e.Buf = append(e.Buf, val...)
	e.Buf = append(e.Buf, CRLF...)
}

func (e *Encoder) WriteBulkBytes(val []byte) {
	e.Buf = append(e.Buf, bulkStrPrefix)
	e.Buf = strconv.AppendInt(e.Buf, int64(len(val)), 10)
	e.Buf = append(e.Buf, CRLF...)
	e.Buf = append(e.Buf, val...)
	e.Buf = append(e.Buf, CRLF...)
}

func (e *Encoder) WriteNullBulk() {
	e.Buf = append(e.Buf, nullBulk...)
}

func (e *Encoder) WriteNullArray() {
	e.Buf = append(e.Buf, nullArr...)
}

func (e *Encoder) WriteArrHeader(arrLen int) {
	e.Buf = append(e.Buf, arrPrefix)
	e.Buf = strconv.AppendInt(e.Buf, int64(arrLen), 10)
	e.Buf = append(e.Buf, CRLF...)
}

// EncodeCommandArray renders args as a RESP array of bulk strings, the
// canonical command form used for the commands a replica sends its master
// (handshake steps and REPLCONF ACK), and for re-serializing a write command
// onto a replica's outbound stream (§4.4 of the accompanying design doc).
// Replies to client commands are built with Encoder's methods instead.
func EncodeCommandArray(args []string) []byte {
	e := Encoder{}
	e.WriteArrHeader(len(args))
	for _, a := range args {
		e.WriteBulkStr(a)
	}
	return e.Buf
}
