package journal

import (
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/InsulaLabs/isl/pkg/slp"
	"github.com/dgraph-io/badger/v3"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
)

const keyPrefix = "exit:"

type journal struct {
	logger *slog.Logger
	cache  *ttlcache.Cache[slp.Pid, Record]
	store  *badger.DB // nil when memory only
	closed atomic.Bool
}

var _ Journal = &journal{}

func New(config Config) (Journal, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.WithGroup("journal")

	var store *badger.DB
	if config.Directory != "" {
		valuesDir := filepath.Join(config.Directory, "exits")
		if err := os.MkdirAll(valuesDir, 0755); err != nil {
			return nil, &ErrInternal{Err: err}
		}

		dbOpts := badger.DefaultOptions(valuesDir).
			WithLogger(newLogger(logger.WithGroup("store"), config.BadgerLogLevel)).
			WithMemTableSize(16 << 20)

		db, err := badger.Open(dbOpts)
		if err != nil {
			return nil, &ErrInternal{Err: errors.Wrap(err, "open exit archive")}
		}
		store = db
	}

	return &journal{
		logger: logger,
		cache:  newCache(config.Retention, config.Capacity),
		store:  store,
	}, nil
}

// NewMemory returns a journal without an archive. It can not fail.
func NewMemory(logger *slog.Logger, retention time.Duration) Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &journal{
		logger: logger.WithGroup("journal"),
		cache:  newCache(retention, 0),
	}
}

func newCache(retention time.Duration, capacity uint64) *ttlcache.Cache[slp.Pid, Record] {
	opts := []ttlcache.Option[slp.Pid, Record]{
		// a late lookup must not extend a record's life
		ttlcache.WithDisableTouchOnHit[slp.Pid, Record](),
	}
	if retention > 0 {
		opts = append(opts, ttlcache.WithTTL[slp.Pid, Record](retention))
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[slp.Pid, Record](capacity))
	}
	cache := ttlcache.New[slp.Pid, Record](opts...)
	go cache.Start()
	return cache
}

func (j *journal) Record(rec Record) error {
	if j.closed.Load() {
		return &ErrClosed{}
	}
	if rec.ExitedAt.IsZero() {
		rec.ExitedAt = time.Now()
	}
	j.cache.Set(rec.Pid, rec, ttlcache.DefaultTTL)

	if j.store == nil {
		return nil
	}
	err := j.store.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.Pid), encodeRecord(rec))
	})
	if err != nil {
		return &ErrInternal{Err: errors.Wrapf(err, "archive exit of %s", rec.Pid)}
	}
	return nil
}

func (j *journal) Lookup(pid slp.Pid) (Record, bool) {
	if item := j.cache.Get(pid); item != nil {
		return item.Value(), true
	}
	if j.store == nil || j.closed.Load() {
		return Record{}, false
	}

	var rec Record
	err := j.store.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(pid))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeRecord(pid, val)
			if err != nil {
				return err
			}
			rec = decoded
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			j.logger.Error("exit archive lookup failed", "pid", pid, "error", err)
		}
		return Record{}, false
	}
	return rec, true
}

func (j *journal) Iterate(fn func(Record) bool) error {
	if j.closed.Load() {
		return &ErrClosed{}
	}
	if j.store == nil {
		j.cache.Range(func(item *ttlcache.Item[slp.Pid, Record]) bool {
			return fn(item.Value())
		})
		return nil
	}

	err := j.store.View(func(txn *badger.Txn) error {
		prefix := []byte(keyPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())
			pid, err := slp.ParsePid(key[len(keyPrefix):])
			if err != nil {
				return &ErrDataCorruption{Key: key, Reason: err.Error()}
			}
			var rec Record
			err = item.Value(func(val []byte) error {
				decoded, err := decodeRecord(pid, val)
				rec = decoded
				return err
			})
			if err != nil {
				return err
			}
			if !fn(rec) {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		var corrupt *ErrDataCorruption
		if errors.As(err, &corrupt) {
			return corrupt
		}
		return &ErrInternal{Err: errors.Wrap(err, "iterate exit archive")}
	}
	return nil
}

func (j *journal) Len() int {
	return j.cache.Len()
}

func (j *journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	j.cache.Stop()
	if j.store == nil {
		return nil
	}
	if err := j.store.Close(); err != nil {
		j.logger.Error("error closing exit archive", "error", err)
		return &ErrInternal{Err: err}
	}
	return nil
}

func recordKey(pid slp.Pid) []byte {
	return []byte(keyPrefix + pid.String())
}

// A record is archived as the exit time in unix nanoseconds (8 bytes, big
// endian) followed by the encoded reason.
func encodeRecord(rec Record) []byte {
	reason := rec.Reason.Encode()
	buf := make([]byte, 8, 8+len(reason))
	binary.BigEndian.PutUint64(buf, uint64(rec.ExitedAt.UnixNano()))
	return append(buf, reason...)
}

// decodeRecord rebuilds the reason by parsing it. Values with no readable
// form (errors, pids, lambdas) come back as their printed string.
func decodeRecord(pid slp.Pid, val []byte) (Record, error) {
	if len(val) < 8 {
		return Record{}, &ErrDataCorruption{
			Key:    keyPrefix + pid.String(),
			Reason: "record shorter than its timestamp",
		}
	}
	exitedAt := time.Unix(0, int64(binary.BigEndian.Uint64(val[:8])))
	text := string(val[8:])
	reason, err := slp.ParseOne(text)
	if err != nil {
		reason = slp.NewString(text)
	}
	return Record{Pid: pid, Reason: reason, ExitedAt: exitedAt}, nil
}
