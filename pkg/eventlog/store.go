// Package eventlog stores the append-only event log of every
// submission entity. One BoltDB bucket per log key, keyed by the
// big-endian append sequence, so a cursor walk replays entries in
// exactly the order they were accepted.
package eventlog

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/filingmesh/filingmesh/pkg/filing"
)

// Store is the durable backing for all entity logs on this node.
// Appends within one log are strictly ordered; nothing is ordered
// across logs.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	logger  *slog.Logger
	timeout time.Duration
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOpenTimeout bounds how long Open waits on the bolt file lock.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Open opens (or creates) the log store at path.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{
		logger:  slog.Default(),
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: o.timeout})
	if err != nil {
		return nil, fmt.Errorf("open event log store %s: %w", path, err)
	}

	return &Store{
		db:     db,
		logger: o.logger.With("component", "eventlog"),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists one event at the end of the named log and returns
// its sequence number (1-based).
func (s *Store) Append(logKey string, ev filing.Event) (uint64, error) {
	data, err := ev.Encode()
	if err != nil {
		return 0, err
	}

	var seq uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(logKey))
		if err != nil {
			return fmt.Errorf("create log bucket %s: %w", logKey, err)
		}
		seq, err = b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence for %s: %w", logKey, err)
		}
		return b.Put(encodeSeq(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", logKey, err)
	}
	return seq, nil
}

// Replay walks the named log in append order, invoking fn for every
// entry. A missing log is an empty log. fn returning an error aborts
// the walk and is returned as-is.
func (s *Store) Replay(logKey string, fn func(seq uint64, ev filing.Event) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(logKey))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ev, err := filing.DecodeEvent(v)
			if err != nil {
				return fmt.Errorf("log %s seq %d: %w", logKey, decodeSeq(k), err)
			}
			if err := fn(decodeSeq(k), ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastSeq returns the sequence number of the newest entry, 0 for an
// empty or missing log.
func (s *Store) LastSeq(logKey string) (uint64, error) {
	var last uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(logKey))
		if b == nil {
			return nil
		}
		last = b.Sequence()
		return nil
	})
	return last, err
}

// Stats describes one log's growth. Exposed so operators can watch
// for logs that would benefit from snapshot compaction.
type Stats struct {
	Entries uint64
	Lines   uint64
}

// LogStats counts entries and LineAdded entries in the named log.
func (s *Store) LogStats(logKey string) (Stats, error) {
	var st Stats
	err := s.Replay(logKey, func(_ uint64, ev filing.Event) error {
		st.Entries++
		if ev.Kind == filing.KindLineAdded {
			st.Lines++
		}
		return nil
	})
	return st, err
}

func encodeSeq(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeSeq(data []byte) uint64 {
	if len(data) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}
