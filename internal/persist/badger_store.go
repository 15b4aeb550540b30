package persist

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/flowfile"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/internal/logging"
)

const (
	snapshotPrefix = "snapshot/"
	snapshotSeq    = "meta/snapshot-seq"
)

// BadgerConfig configures the on-disk store
type BadgerConfig struct {
	// Path is the database directory, ignored when InMemory is set
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`

	MaxSnapshots int `yaml:"max_snapshots" validate:"gte=0"`

	// GCInterval is how often value log GC runs, 0 disables it
	GCInterval     time.Duration `yaml:"gc_interval"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`

	Logger hclog.Logger `yaml:"-"`
}

// DefaultBadgerConfig is durable with a five minute GC cycle
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		MaxSnapshots:   DefaultMaxSnapshots,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig is meant for tests
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true, MaxSnapshots: DefaultMaxSnapshots}
}

// BadgerStore keeps the graph and snapshots in BadgerDB. Snapshot keys carry
// a database sequence number so iteration order is save order.
type BadgerStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	max    int
	logger hclog.Logger

	mu     sync.Mutex // serializes snapshot append and eviction
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// OpenBadger opens or creates the database
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, errors.Wrapf(err, "create database directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(logging.Badger{Logger: logger.Named("badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger database")
	}
	seq, err := db.GetSequence([]byte(snapshotSeq), 16)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "snapshot sequence")
	}

	limit := cfg.MaxSnapshots
	if limit <= 0 {
		limit = DefaultMaxSnapshots
	}
	s := &BadgerStore{db: db, seq: seq, max: limit, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.gc(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func (s *BadgerStore) gc(interval time.Duration, ratio float64) {
	defer close(s.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			// one rewrite per tick; ErrNoRewrite means nothing to collect
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("value log gc failed", "error", err)
			}
		}
	}
}

func (s *BadgerStore) Save(ctx context.Context, g graph.Graph) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	data, err := flowfile.Export(g)
	if err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(FlowKey), data)
	})
}

func (s *BadgerStore) Load(ctx context.Context) (graph.Graph, error) {
	if err := checkCtx(ctx); err != nil {
		return graph.Graph{}, err
	}
	var data []byte
	err := s.view(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(FlowKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return graph.Graph{}, errors.Wrapf(ErrNotFound, "key %q", FlowKey)
	}
	if err != nil {
		return graph.Graph{}, err
	}
	return flowfile.Import(data)
}

func (s *BadgerStore) SaveSnapshot(ctx context.Context, label string, g graph.Graph) (Snapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return Snapshot{}, err
	}
	snap := newSnapshot(label, g)
	data, err := encodeSnapshot(snap)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	n, err := s.seq.Next()
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "snapshot sequence")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(snapshotKey(n, snap.ID), data); err != nil {
			return err
		}
		keys := s.keysLocked(txn)
		for len(keys) > s.max {
			if err := txn.Delete(keys[0]); err != nil {
				return err
			}
			keys = keys[1:]
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "save snapshot")
	}
	return snap, nil
}

func snapshotKey(n uint64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", snapshotPrefix, n, id))
}

// keysLocked lists snapshot keys in sequence order
func (s *BadgerStore) keysLocked(txn *badger.Txn) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(snapshotPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// each visits snapshot values in sequence order until fn returns false
func (s *BadgerStore) each(fn func(key, value []byte) (bool, error)) error {
	return s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(snapshotPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			more, err := fn(item.KeyCopy(nil), value)
			if err != nil || !more {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Snapshots(ctx context.Context) ([]Snapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	var out []Snapshot
	err := s.each(func(_, value []byte) (bool, error) {
		snap, err := decodeSnapshot(value, false)
		if err != nil {
			return false, err
		}
		out = append(out, snap)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Snapshot{}
	}
	return out, nil
}

func (s *BadgerStore) find(id string) ([]byte, []byte, error) {
	var key, value []byte
	err := s.each(func(k, v []byte) (bool, error) {
		if bytes.HasSuffix(k, []byte("/"+id)) {
			key, value = k, v
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if key == nil {
		return nil, nil, errors.Wrapf(ErrNotFound, "snapshot %s", id)
	}
	return key, value, nil
}

func (s *BadgerStore) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return Snapshot{}, err
	}
	_, value, err := s.find(id)
	if err != nil {
		return Snapshot{}, err
	}
	return decodeSnapshot(value, true)
}

func (s *BadgerStore) DeleteSnapshot(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key, _, err := s.find(id)
	if err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *BadgerStore) view(fn func(txn *badger.Txn) error) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(fn)
}

func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.Update(fn)
}

// Close stops GC, releases the sequence lease and closes the database
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.stop != nil {
		close(s.stop)
		<-s.done
	}
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("release snapshot sequence", "error", err)
	}
	return errors.Wrap(s.db.Close(), "close badger database")
}
