package diyredis

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/flonle/diyredis-server/app/diyredis/resp"
	streams "github.com/flonle/diyredis-server/app/diyredis/streams"
)

// dispatch runs one parsed command against s's store, writing the reply into
// enc. When propagate is true and the command mutated the keyspace, the
// original args are re-serialized and fanned out to attached replicas (see
// §4.4 of the accompanying design doc): propagate is false for the internal
// path a replica uses to apply commands received from its own master, so
// replication never cascades further than one hop.
func (s *Server) dispatch(enc *resp.Encoder, args []string, propagate bool) error {
	if len(args) == 0 {
		return nil
	}

	cmd := strings.ToUpper(args[0])
	mutated := false
	var err error

	switch cmd {
	case "PING":
		doPING(enc, args)
	case "ECHO":
		err = doECHO(enc, args)
	case "SET":
		mutated, err = doSET(s.store, enc, args)
	case "GET":
		err = doGET(s.store, enc, args)
	case "DEL":
		mutated, err = doDEL(s.store, enc, args)
	case "TYPE":
		err = doTYPE(s.store, enc, args)
	case "KEYS":
		err = doKEYS(s.store, enc, args)
	case "CONFIG":
		err = doCONFIG(s, enc, args)
	case "INFO":
		doINFO(s, enc, args)
	case "XADD":
		mutated, err = doXADD(s.store, enc, args)
	case "XRANGE":
		err = doXRANGE(s.store, enc, args)
	case "REPLCONF":
		doREPLCONF(enc, args)
	case "PSYNC":
		// PSYNC is only meaningful on the dedicated handshake path in
		// session.go, which intercepts it before reaching dispatch; seeing
		// it here means a client issued it outside a handshake.
		enc.WriteError("ERR PSYNC can only be used during replica handshake")
	default:
		enc.WriteError("ERR unknown command '" + args[0] + "'")
	}

	if err != nil {
		enc.Reset()
		enc.WriteError(errToRESP(err))
	}

	if propagate && mutated && err == nil {
		s.repl.Propagate(resp.EncodeCommandArray(args))
	}
	return err
}

func errToRESP(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "WRONGTYPE") || strings.HasPrefix(msg, "ERR") {
		return msg
	}
	return "ERR " + msg
}

func doPING(enc *resp.Encoder, args []string) {
	if len(args) > 1 {
		enc.WriteBulkStr(args[1])
		return
	}
	enc.WriteSimpleStr("PONG")
}

func doECHO(enc *resp.Encoder, args []string) error {
	if len(args) != 2 {
		return errArity("ECHO")
	}
	enc.WriteBulkStr(args[1])
	return nil
}

func doSET(store *Store, enc *resp.Encoder, args []string) (mutated bool, err error) {
	if len(args) < 3 {
		return false, errArity("SET")
	}
	key, val := args[1], args[2]

	var expiresAt time.Time
	var nx, xx bool
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "EX":
			if i+1 >= len(args) {
				return false, errSyntax()
			}
			secs, convErr := strconv.ParseInt(args[i+1], 10, 64)
			if convErr != nil {
				return false, errSyntax()
			}
			expiresAt = time.Now().Add(time.Duration(secs) * time.Second)
			i++
		case "PX":
			if i+1 >= len(args) {
				return false, errSyntax()
			}
			ms, convErr := strconv.ParseInt(args[i+1], 10, 64)
			if convErr != nil {
				return false, errSyntax()
			}
			expiresAt = time.Now().Add(time.Duration(ms) * time.Millisecond)
			i++
		case "NX":
			nx = true
		case "XX":
			xx = true
		default:
			return false, errSyntax()
		}
	}
	if nx && xx {
		return false, errSyntax()
	}

	switch {
	case nx:
		if ok := store.SetIfAbsent(key, val, expiresAt); !ok {
			enc.WriteNullBulk()
			return false, nil
		}
	case xx:
		if ok := store.SetIfPresent(key, val, expiresAt); !ok {
			enc.WriteNullBulk()
			return false, nil
		}
	default:
		store.Set(key, val, expiresAt)
	}

	enc.WriteSimpleStr("OK")
	return true, nil
}

func doGET(store *Store, enc *resp.Encoder, args []string) error {
	if len(args) != 2 {
		return errArity("GET")
	}
	val, ok, err := store.Get(args[1])
	if err != nil {
		return err
	}
	if !ok {
		enc.WriteNullBulk()
		return nil
	}
	enc.WriteBulkStr(val)
	return nil
}

func doDEL(store *Store, enc *resp.Encoder, args []string) (mutated bool, err error) {
	if len(args) < 2 {
		return false, errArity("DEL")
	}
	n := store.Del(args[1:])
	enc.WriteInteger(int64(n))
	return n > 0, nil
}

func doTYPE(store *Store, enc *resp.Encoder, args []string) error {
	if len(args) != 2 {
		return errArity("TYPE")
	}
	enc.WriteSimpleStr(store.Type(args[1]))
	return nil
}

func doKEYS(store *Store, enc *resp.Encoder, args []string) error {
	if len(args) != 2 {
		return errArity("KEYS")
	}
	keys := store.Keys(args[1])
	enc.WriteArrHeader(len(keys))
	for _, k := range keys {
		enc.WriteBulkStr(k)
	}
	return nil
}

func doCONFIG(s *Server, enc *resp.Encoder, args []string) error {
	if len(args) != 3 || !strings.EqualFold(args[1], "GET") {
		return errSyntax()
	}
	switch strings.ToLower(args[2]) {
	case "dir":
		enc.WriteArrHeader(2)
		enc.WriteBulkStr("dir")
		enc.WriteBulkStr(s.cfg.Dir)
	case "dbfilename":
		enc.WriteArrHeader(2)
		enc.WriteBulkStr("dbfilename")
		enc.WriteBulkStr(s.cfg.DBFilename)
	default:
		enc.WriteArrHeader(0)
	}
	return nil
}

func doINFO(s *Server, enc *resp.Encoder, args []string) {
	enc.WriteBulkStr(s.repl.InfoReplication(s.cfg.ReplicaOf != ""))
}

func doXADD(store *Store, enc *resp.Encoder, args []string) (mutated bool, err error) {
	if len(args) < 5 || len(args)%2 != 1 {
		return false, errArity("XADD")
	}
	key, idSpec := args[1], args[2]
	fields := make([]streams.FieldValue, 0, (len(args)-3)/2)
	for i := 3; i < len(args); i += 2 {
		fields = append(fields, streams.FieldValue{Field: args[i], Value: args[i+1]})
	}

	id, err := store.XAdd(key, idSpec, fields)
	if err != nil {
		return false, err
	}
	enc.WriteBulkStr(id.String())
	return true, nil
}

func doXRANGE(store *Store, enc *resp.Encoder, args []string) error {
	if len(args) != 4 {
		return errArity("XRANGE")
	}
	entries, err := store.XRange(args[1], args[2], args[3])
	if err != nil {
		return err
	}

	enc.WriteArrHeader(len(entries))
	for _, e := range entries {
		enc.WriteArrHeader(2)
		enc.WriteBulkStr(e.Key.String())
		fields, _ := e.Val.([]streams.FieldValue)
		enc.WriteArrHeader(len(fields) * 2)
		for _, fv := range fields {
			enc.WriteBulkStr(fv.Field)
			enc.WriteBulkStr(fv.Value)
		}
	}
	return nil
}

// doREPLCONF answers every REPLCONF with +OK, whatever its subcommand. This
// is how a replica's handshake steps (listening-port, capa) are answered:
// session.go only intercepts PSYNC, so those REPLCONFs arrive here. A
// master's GETACK is answered by the replica's own stream loop in
// replication/replica.go, and the ACKs a replica sends back are consumed
// by servePSYNC; neither reaches this function.
func doREPLCONF(enc *resp.Encoder, args []string) {
	enc.WriteSimpleStr("OK")
}

func errArity(cmd string) error {
	return errors.New("ERR wrong number of arguments for '" + strings.ToLower(cmd) + "' command")
}

func errSyntax() error {
	return errors.New("ERR syntax error")
}
