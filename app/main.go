package main

import (
	"flag"
	"os"

	"github.com/flonle/diyredis-server/app/diyredis"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

func main() {
	var cfg diyredis.Config
	flag.StringVar(&cfg.Dir, "dir", ".", "the directory in which the RDB file resides")
	flag.StringVar(&cfg.DBFilename, "dbfilename", "dump.rdb", "the name of the RDB file")
	flag.IntVar(&cfg.Port, "port", 6379, "TCP port to listen on")
	flag.StringVar(&cfg.ReplicaOf, "replicaof", "", "\"<host> <port>\" of a master to replicate from")
	flag.Parse()

	log := newLogger()

	srv := diyredis.NewServer(cfg, log)
	if err := srv.LoadRDB(); err != nil {
		log.Fatal().Err(err).Msg("failed to load RDB file")
	}
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

// newLogger builds the process-wide structured logger: a human-readable
// console writer when stdout is a terminal, plain JSON lines otherwise, the
// same choice the replication-tooling example in the example pack makes for
// tools that run both interactively and under a process supervisor.
func newLogger() zerolog.Logger {
	var writer zerolog.ConsoleWriter
	if isatty.IsTerminal(os.Stdout.Fd()) {
		writer = zerolog.ConsoleWriter{Out: os.Stdout}
		return zerolog.New(writer).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
