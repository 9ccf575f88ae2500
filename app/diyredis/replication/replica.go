package replication

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/flonle/diyredis-server/app/diyredis/rdb"
	"github.com/flonle/diyredis-server/app/diyredis/resp"
	"github.com/rs/zerolog"
)

// Applier is how a replica hands an incoming replicated command to the local
// command executor, kept as a one-method seam so this package never needs to
// import the dispatch table.
type Applier interface {
	Apply(args []string) error
}

const handshakeTimeout = 60 * time.Second

// Client drives the replica-side handshake FSM (§4.6 S0-S5) against one
// master address, reconnecting with exponential backoff (100ms doubling,
// capped at 30s) whenever the connection drops.
type Client struct {
	masterAddr string
	listenPort int
	applier    Applier
	loader     rdb.Handler
	log        zerolog.Logger
}

func NewClient(masterAddr string, listenPort int, applier Applier, loader rdb.Handler, log zerolog.Logger) *Client {
	return &Client{
		masterAddr: masterAddr,
		listenPort: listenPort,
		applier:    applier,
		loader:     loader,
		log:        log,
	}
}

// Run connects, completes the handshake, and applies the command stream
// until ctx is cancelled. Failures (dial errors, handshake rejection, read errors once
// streaming) are logged at Warn and retried with backoff; Run only returns
// when ctx is done.
func (c *Client) Run(ctx context.Context) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.connectOnce(ctx)
		if err == nil {
			// connectOnce only returns nil if ctx was cancelled mid-stream.
			return
		}
		c.log.Warn().Err(err).Str("master", c.masterAddr).Dur("backoff", backoff).Msg("replication connection failed, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	conn, err := net.DialTimeout("tcp", c.masterAddr, handshakeTimeout)
	if err != nil {
		return fmt.Errorf("dial master: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	conn.SetDeadline(time.Now().Add(handshakeTimeout))

	if err := c.handshake(conn, r); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	conn.SetDeadline(time.Time{})

	c.log.Info().Str("master", c.masterAddr).Msg("replication handshake complete, streaming")
	return c.streamLoop(ctx, conn, r)
}

// handshake runs S0-S4: PING, REPLCONF listening-port, REPLCONF capa
// psync2, PSYNC ? -1, then loads the RDB bootstrap it receives.
func (c *Client) handshake(conn net.Conn, r *bufio.Reader) error {
	if err := sendAndExpectSimple(conn, r, []string{"PING"}, "PONG"); err != nil {
		return fmt.Errorf("S0 PING: %w", err)
	}
	if err := sendAndExpectSimple(conn, r, []string{"REPLCONF", "listening-port", strconv.Itoa(c.listenPort)}, "OK"); err != nil {
		return fmt.Errorf("S1 REPLCONF listening-port: %w", err)
	}
	if err := sendAndExpectSimple(conn, r, []string{"REPLCONF", "capa", "psync2"}, "OK"); err != nil {
		return fmt.Errorf("S2 REPLCONF capa: %w", err)
	}

	conn.Write(resp.EncodeCommandArray([]string{"PSYNC", "?", "-1"}))
	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("S3 PSYNC: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "+FULLRESYNC") {
		return fmt.Errorf("S3 PSYNC: unexpected reply %q", line)
	}
	c.log.Info().Str("reply", line).Msg("received FULLRESYNC")

	rdbBytes, err := resp.ReadRDBBulk(r)
	if err != nil {
		return fmt.Errorf("S4 RDB bootstrap: %w", err)
	}
	if err := rdb.Decode(rdbBytes, c.loader); err != nil {
		return fmt.Errorf("S4 RDB bootstrap decode: %w", err)
	}
	c.log.Info().Int("bytes", len(rdbBytes)).Msg("loaded RDB bootstrap")
	return nil
}

func sendAndExpectSimple(conn net.Conn, r *bufio.Reader, cmd []string, want string) error {
	if _, err := conn.Write(resp.EncodeCommandArray(cmd)); err != nil {
		return err
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimRight(line, "\r\n")
	if line != "+"+want {
		return fmt.Errorf("expected +%s, got %q", want, line)
	}
	return nil
}

// streamLoop is S5: apply incoming commands, answering REPLCONF GETACK with
// the offset as it stood before that frame, and advancing the applied offset
// by the canonical re-encoded length of every frame including the GETACK.
func (c *Client) streamLoop(ctx context.Context, conn net.Conn, r *bufio.Reader) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		args, err := resp.ReadCommand(r)
		if err != nil {
			return fmt.Errorf("read replicated command: %w", err)
		}
		frameLen := int64(len(resp.EncodeCommandArray(args)))

		if len(args) == 3 && strings.EqualFold(args[0], "REPLCONF") && strings.EqualFold(args[1], "GETACK") {
			ack := []string{"REPLCONF", "ACK", strconv.FormatInt(offset, 10)}
			offset += frameLen
			if _, err := conn.Write(resp.EncodeCommandArray(ack)); err != nil {
				return fmt.Errorf("write GETACK reply: %w", err)
			}
			continue
		}

		if err := c.applier.Apply(args); err != nil {
			c.log.Warn().Err(err).Strs("cmd", args).Msg("failed to apply replicated command")
		}
		offset += frameLen
	}
}
