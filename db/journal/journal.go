/*
Package journal keeps exit records for terminated processes so that a pid
stays meaningful after its process is gone: late watchers still learn the
reason, and hosts can list what ran.

Records live in a ttlcache, optionally bounded by a retention period and a
capacity. When a directory is configured every record is also archived in
badger and lookups fall back to the archive once the memory copy expired.
*/
package journal

import (
	"log/slog"
	"time"

	"github.com/InsulaLabs/isl/pkg/slp"
)

type Record struct {
	Pid      slp.Pid
	Reason   slp.Obj
	ExitedAt time.Time
}

type Journal interface {
	Record(rec Record) error
	Lookup(pid slp.Pid) (Record, bool)

	// Iterate visits records until fn returns false. With an archive it
	// walks the archive in key order, otherwise the in-memory records.
	Iterate(fn func(Record) bool) error

	// Len is the number of records held in memory.
	Len() int

	Close() error
}

type Config struct {
	Logger *slog.Logger

	// BadgerLogLevel is the lowest badger level passed on to Logger.
	BadgerLogLevel slog.Level

	// Directory holds the badger archive. Empty keeps records in memory
	// only.
	Directory string

	// Retention is how long a record stays in memory. Zero keeps it until
	// capacity pushes it out.
	Retention time.Duration

	// Capacity bounds in-memory records. Zero is unbounded.
	Capacity uint64
}
