package diyredis

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/flonle/diyredis-server/app/diyredis/rdb"
	"github.com/flonle/diyredis-server/app/diyredis/replication"
	"github.com/flonle/diyredis-server/app/diyredis/resp"
	"github.com/rs/zerolog"
)

// Config is the immutable startup configuration resolved from CLI flags
// before any listener is opened.
type Config struct {
	Dir        string
	DBFilename string
	Port       int
	ReplicaOf  string // "<host> <port>", empty means this process starts as master
}

func (c Config) rdbPath() string {
	return filepath.Join(c.Dir, c.DBFilename)
}

// Server owns the keyspace, the replication manager, and the accept loop.
// A Server instance is built once at startup and lives for the process.
type Server struct {
	cfg      Config
	store    *Store
	repl     *replication.Manager
	log      zerolog.Logger
	listener net.Listener
	wg       sync.WaitGroup
	quitCh   chan os.Signal
}

func NewServer(cfg Config, log zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  NewStore(),
		repl:   replication.NewManager(log.With().Str("component", "replication").Logger()),
		log:    log,
		quitCh: make(chan os.Signal, 1),
	}
}

// LoadRDB loads the configured RDB file into the store, if present. A
// missing file is not an error -- the keyspace simply starts empty.
func (s *Server) LoadRDB() error {
	path := s.cfg.rdbPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		s.log.Info().Str("path", path).Msg("no RDB file found, starting with empty keyspace")
		return nil
	}
	s.log.Info().Str("path", path).Msg("loading RDB file")
	if err := rdb.Load(path, s.store); err != nil {
		return fmt.Errorf("load RDB %s: %w", path, err)
	}
	s.log.Info().Str("path", path).Msg("RDB load complete")
	return nil
}

// SaveRDB writes the current keyspace to the configured RDB path.
func (s *Server) SaveRDB() error {
	path := s.cfg.rdbPath()
	entries := s.store.Snapshot()
	if err := rdb.Save(path, entries); err != nil {
		return fmt.Errorf("save RDB %s: %w", path, err)
	}
	s.log.Info().Str("path", path).Int("keys", len(entries)).Msg("RDB save complete")
	return nil
}

// Apply implements replication.Applier: it executes one command received
// from this server's own master without producing a reply or re-propagating
// it further (no chained replication in this design).
func (s *Server) Apply(args []string) error {
	var enc resp.Encoder
	return s.dispatch(&enc, args, false)
}

// Start binds the listener, launches the accept loop, connects outward as a
// replica if configured, and blocks until SIGINT/SIGTERM.
func (s *Server) Start() error {
	addr := fmt.Sprintf("0.0.0.0:%d", s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.log.Info().Str("addr", addr).Msg("listening")

	ctx, cancel := context.WithCancel(context.Background())

	go s.acceptLoop()

	if s.cfg.ReplicaOf != "" {
		masterAddr, err := parseReplicaOf(s.cfg.ReplicaOf)
		if err != nil {
			return fmt.Errorf("bad --replicaof: %w", err)
		}
		client := replication.NewClient(masterAddr, s.cfg.Port, s, s.store,
			s.log.With().Str("component", "replica-client").Logger())
		go client.Run(ctx)
	}

	signal.Notify(s.quitCh, syscall.SIGINT, syscall.SIGTERM)
	<-s.quitCh
	s.log.Info().Msg("shutdown signal received")
	cancel()
	listener.Close()
	s.wg.Wait()
	if err := s.SaveRDB(); err != nil {
		s.log.Warn().Err(err).Msg("failed to save RDB on shutdown")
	}
	s.log.Info().Msg("shutdown complete")
	return nil
}

func parseReplicaOf(spec string) (string, error) {
	parts := strings.Fields(spec)
	if len(parts) != 2 {
		return "", fmt.Errorf("expected \"<host> <port>\", got %q", spec)
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return "", fmt.Errorf("bad port %q: %w", parts[1], err)
	}
	return parts[0] + ":" + parts[1], nil
}

// acceptLoop accepts connections until the listener is closed at shutdown.
// Unlike the teacher's original version, a per-connection accept error is
// logged and the loop continues -- it no longer calls os.Exit, which would
// take the whole server down over one transient accept failure.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}
