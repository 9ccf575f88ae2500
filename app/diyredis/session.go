package diyredis

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/flonle/diyredis-server/app/diyredis/rdb"
	"github.com/flonle/diyredis-server/app/diyredis/resp"
	"github.com/rs/zerolog"
)

// handleConnection runs one client connection through the read-parse-
// execute-reply cycle, except that a PSYNC request promotes it into the
// outbound-to-replica role for the rest of its lifetime (§4.5).
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	log := s.log.With().Str("addr", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("client connected")

	r := bufio.NewReader(conn)
	var enc resp.Encoder

	for {
		args, err := resp.ReadCommand(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug().Msg("client disconnected")
				return
			}
			var protoErr *resp.ProtocolError
			if errors.As(err, &protoErr) {
				log.Warn().Err(err).Msg("protocol error, closing connection")
				return
			}
			log.Warn().Err(err).Msg("read error, closing connection")
			return
		}
		if len(args) == 0 {
			continue
		}

		if strings.EqualFold(args[0], "PSYNC") {
			s.servePSYNC(conn, r, log)
			return
		}

		enc.Reset()
		if dispatchErr := s.dispatch(&enc, args, true); dispatchErr != nil {
			log.Warn().Err(dispatchErr).Strs("cmd", args).Msg("command returned an error")
		}
		if _, err := conn.Write(enc.Buf); err != nil {
			log.Warn().Err(err).Msg("write error, closing connection")
			return
		}
	}
}

// servePSYNC answers a PSYNC with FULLRESYNC + a full RDB snapshot, then
// keeps the connection open as an outbound-to-replica writer: replicated
// commands flow out as they occur on the master, and incoming REPLCONF ACKs
// are consumed without a reply (§4.6 M3-M4).
func (s *Server) servePSYNC(conn net.Conn, r *bufio.Reader, log zerolog.Logger) {
	var enc resp.Encoder
	enc.WriteSimpleStr(fmt.Sprintf("FULLRESYNC %s %d", s.repl.ReplID(), s.repl.Offset()))
	if _, err := conn.Write(enc.Buf); err != nil {
		log.Warn().Err(err).Msg("failed to send FULLRESYNC reply")
		return
	}

	snapshot := s.store.Snapshot()
	rdbBytes := rdb.Encode(snapshot)
	if _, err := conn.Write([]byte(fmt.Sprintf("$%d\r\n", len(rdbBytes)))); err != nil {
		log.Warn().Err(err).Msg("failed to send RDB bulk header")
		return
	}
	if _, err := conn.Write(rdbBytes); err != nil {
		log.Warn().Err(err).Msg("failed to send RDB bulk payload")
		return
	}
	log.Info().Int("bytes", len(rdbBytes)).Msg("sent FULLRESYNC bootstrap")

	replica := s.repl.Attach(conn, conn.RemoteAddr().String())
	defer s.repl.Detach(replica)

	for {
		args, err := resp.ReadCommand(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug().Msg("replica disconnected")
				return
			}
			log.Warn().Err(err).Msg("replica connection read error")
			return
		}
		// The only thing a replica ever sends back is a REPLCONF ACK; it is
		// consumed but never answered (a real reply would desync its offset
		// bookkeeping, which counts only the commands the master sends it).
		_ = args
	}
}
