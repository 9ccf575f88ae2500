package diyredis

import (
	"errors"
	"sync"
	"time"

	"github.com/flonle/diyredis-server/app/diyredis/rdb"
	streams "github.com/flonle/diyredis-server/app/diyredis/streams"
)

// ErrWrongType is returned whenever a command touches a key whose value
// variant does not match what the command expects (e.g. GET on a stream).
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

type valueKind int

const (
	kindString valueKind = iota
	kindStream
)

// Value is the tagged variant a KeyRecord holds. Only one of Str/Stream is
// meaningful, selected by Kind; a KeyRecord's Kind never changes over its
// lifetime (changing type requires delete + insert, same as real Redis).
type Value struct {
	Kind   valueKind
	Str    string
	Stream streams.Stream
}

// KeyRecord pairs a Value with its (optional) absolute expiration time.
type KeyRecord struct {
	Value     Value
	ExpiresAt time.Time // zero value means "no expiry"
}

func (r *KeyRecord) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !r.ExpiresAt.After(now)
}

// Database is one keyspace: a flat map from key bytes to KeyRecord.
type Database struct {
	data map[string]*KeyRecord
}

func newDatabase() *Database {
	return &Database{data: make(map[string]*KeyRecord)}
}

// DatabaseCount mirrors Redis's own default database count. Only database 0
// is reachable from client commands (this server never implements SELECT),
// but RDB files may address any of them via the SELECTDB opcode, so the
// store keeps the full slice around for reload fidelity.
const DatabaseCount = 16

// Store is the in-memory keyspace engine: a fixed slice of databases behind
// one coarse mutex, per the single-owned-map-behind-a-mutex design this
// server uses throughout (see accompanying design notes on the concurrency
// model). The lock is only ever held across pure in-memory work -- never
// across socket or file I/O.
type Store struct {
	mu  sync.Mutex
	dbs []*Database
}

func NewStore() *Store {
	dbs := make([]*Database, DatabaseCount)
	for i := range dbs {
		dbs[i] = newDatabase()
	}
	return &Store{dbs: dbs}
}

func (s *Store) db() *Database {
	return s.dbs[0]
}

// lookupLocked returns the record for key in db 0 if present and not lazily
// expired, deleting it first if its deadline has passed. Caller must hold s.mu.
func (s *Store) lookupLocked(key string, now time.Time) (*KeyRecord, bool) {
	d := s.db()
	rec, ok := d.data[key]
	if !ok {
		return nil, false
	}
	if rec.expired(now) {
		delete(d.data, key)
		return nil, false
	}
	return rec, true
}

// Get returns the string value of key, or ok=false if key is absent,
// expired, or not a string.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookupLocked(key, time.Now())
	if !ok {
		return "", false, nil
	}
	if rec.Value.Kind != kindString {
		return "", false, ErrWrongType
	}
	return rec.Value.Str, true, nil
}

// Set stores val under key, replacing any prior record outright. expiresAt
// is the zero Time for "no expiry".
func (s *Store) Set(key, val string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.db().data[key] = &KeyRecord{
		Value:     Value{Kind: kindString, Str: val},
		ExpiresAt: expiresAt,
	}
}

// SetIfAbsent implements SET's NX option: stores val only if key is
// currently absent (or lazily expired). Returns whether the write happened.
func (s *Store) SetIfAbsent(key, val string, expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookupLocked(key, time.Now()); ok {
		return false
	}
	s.db().data[key] = &KeyRecord{
		Value:     Value{Kind: kindString, Str: val},
		ExpiresAt: expiresAt,
	}
	return true
}

// SetIfPresent implements SET's XX option: stores val only if key currently
// exists (and is not lazily expired). Returns whether the write happened.
func (s *Store) SetIfPresent(key, val string, expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookupLocked(key, time.Now()); !ok {
		return false
	}
	s.db().data[key] = &KeyRecord{
		Value:     Value{Kind: kindString, Str: val},
		ExpiresAt: expiresAt,
	}
	return true
}

// Del removes each key in keys, returning how many were actually present.
func (s *Store) Del(keys []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for _, key := range keys {
		if _, ok := s.lookupLocked(key, now); ok {
			delete(s.db().data, key)
			count++
		}
	}
	return count
}

// Type reports "string", "stream", or "none".
func (s *Store) Type(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookupLocked(key, time.Now())
	if !ok {
		return "none"
	}
	switch rec.Value.Kind {
	case kindStream:
		return "stream"
	default:
		return "string"
	}
}

// Keys returns every live key matching pattern (glob syntax: '*', '?',
// '[set]').
func (s *Store) Keys(pattern string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	d := s.db()
	result := make([]string, 0, len(d.data))
	for key, rec := range d.data {
		if rec.expired(now) {
			delete(d.data, key)
			continue
		}
		if globMatch(pattern, key) {
			result = append(result, key)
		}
	}
	return result
}

// XAdd appends one entry to the stream at key, assigning its id per idSpec
// (see the XADD id-assignment rules), creating the stream if key is absent.
func (s *Store) XAdd(key, idSpec string, fields []streams.FieldValue) (streams.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookupLocked(key, time.Now())
	if !ok {
		rec = &KeyRecord{Value: Value{Kind: kindStream}}
		s.db().data[key] = rec
	} else if rec.Value.Kind != kindStream {
		return streams.Key{}, ErrWrongType
	}

	id, err := streams.NewKey(idSpec, rec.Value.Stream)
	if err != nil {
		return streams.Key{}, err
	}
	if err := rec.Value.Stream.Put(id, fields); err != nil {
		return streams.Key{}, err
	}
	return id, nil
}

// XRange returns every entry of the stream at key whose id falls in
// [start, end], inclusive both ends.
func (s *Store) XRange(key, startSpec, endSpec string) ([]streams.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookupLocked(key, time.Now())
	if !ok {
		return nil, nil
	}
	if rec.Value.Kind != kindStream {
		return nil, ErrWrongType
	}

	start, err := streams.ParseRangeBound(startSpec, true)
	if err != nil {
		return nil, err
	}
	end, err := streams.ParseRangeBound(endSpec, false)
	if err != nil {
		return nil, err
	}
	return rec.Value.Stream.Range(start, end), nil
}

// HandleString implements rdb.Handler, installing a key directly into an
// arbitrary database index as an RDB file or replication payload is walked,
// bypassing the client-facing db-0-only view.
func (s *Store) HandleString(dbIndex int, key, val string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dbIndex < 0 || dbIndex >= len(s.dbs) {
		return
	}
	s.dbs[dbIndex].data[key] = &KeyRecord{
		Value:     Value{Kind: kindString, Str: val},
		ExpiresAt: expiresAt,
	}
}

// Snapshot returns every live (key, value, expiresAt) triple in database 0,
// in the shape the RDB encoder consumes directly. Lazily-expired keys are
// dropped as seen.
func (s *Store) Snapshot() []rdb.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	d := s.db()
	out := make([]rdb.Entry, 0, len(d.data))
	for key, rec := range d.data {
		if rec.expired(now) {
			delete(d.data, key)
			continue
		}
		if rec.Value.Kind != kindString {
			continue // only strings are written to RDB by this core
		}
		out = append(out, rdb.Entry{Key: key, Value: rec.Value.Str, ExpiresAt: rec.ExpiresAt})
	}
	return out
}

var _ rdb.Handler = (*Store)(nil)
