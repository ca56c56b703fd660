package buffer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.etcd.io/bbolt"

	"github.com/ausimian/loki-logger-handler/internal/keygen"
	"github.com/ausimian/loki-logger-handler/internal/logentry"
)

var (
	entriesBucket = []byte("entries")
	metaBucket    = []byte("meta")
	epochMetaKey  = []byte("boot_epoch")
)

// diskEntry is the on-disk representation of a logentry.Entry.
type diskEntry struct {
	Timestamp          int64             `json:"ts"`
	Level              logentry.Level    `json:"lvl"`
	Message            string            `json:"msg"`
	Labels             map[string]string `json:"labels"`
	StructuredMetadata map[string]string `json:"meta,omitempty"`
}

// DiskBuffer is the persistent backend of spec §4.3: an embedded
// ordered-KV store (go.etcd.io/bbolt — the same store Loki's own
// boltdb-shipper index uses) with atomic put/delete-multi and durable
// writes. Keys are encoded big-endian so bbolt's native byte-order key
// sort gives the required total order for free, and are prefixed with a
// boot epoch (internal/keygen.Key.Epoch) incremented on every Open so
// cross-restart ordering is strict rather than relying on the monotonic
// clock resetting low (spec §9 Open Question, decided).
type DiskBuffer struct {
	cfg   Config
	db    *bbolt.DB
	keys  *keygen.Generator
	epoch uint64

	// count mirrors the entries bucket's key count. Maintained
	// incrementally on Put/Delete rather than recomputed from
	// Bucket.Stats(), which walks the whole bucket (O(n) per call).
	count atomic.Int64

	storeCh  chan logentry.Entry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// OpenDisk creates dataDir if absent, opens (or creates) the bbolt file
// inside it, and starts the writer goroutine.
func OpenDisk(dataDir string, cfg Config) (*DiskBuffer, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("buffer: create data dir %q: %w", dataDir, err)
	}
	db, err := bbolt.Open(filepath.Join(dataDir, "buffer.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("buffer: open bbolt database: %w", err)
	}

	d := &DiskBuffer{
		cfg:     cfg,
		db:      db,
		keys:    keygen.New(),
		storeCh: make(chan logentry.Entry, storeChanDepth),
		stopCh:  make(chan struct{}),
	}
	if err := d.bumpEpoch(); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.loadInitialCount(); err != nil {
		db.Close()
		return nil, err
	}

	d.wg.Add(1)
	go d.run()
	return d, nil
}

func (d *DiskBuffer) bumpEpoch() error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		mb, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		var epoch uint64
		if v := mb.Get(epochMetaKey); v != nil {
			epoch = binary.BigEndian.Uint64(v) + 1
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, epoch)
		if err := mb.Put(epochMetaKey, buf); err != nil {
			return err
		}
		d.epoch = epoch
		return nil
	})
}

// loadInitialCount seeds d.count from the bucket's existing key count.
// Runs once at Open, not on every insert, so its O(n) cost is paid once
// per process lifetime rather than once per entry.
func (d *DiskBuffer) loadInitialCount() error {
	return d.db.View(func(tx *bbolt.Tx) error {
		d.count.Store(int64(tx.Bucket(entriesBucket).Stats().KeyN))
		return nil
	})
}

func encodeKey(k keygen.Key) []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], k.Epoch)
	binary.BigEndian.PutUint64(buf[8:16], uint64(k.MonotonicNS))
	binary.BigEndian.PutUint64(buf[16:24], k.Counter)
	return buf
}

func decodeKey(b []byte) keygen.Key {
	return keygen.Key{
		Epoch:       binary.BigEndian.Uint64(b[0:8]),
		MonotonicNS: int64(binary.BigEndian.Uint64(b[8:16])),
		Counter:     binary.BigEndian.Uint64(b[16:24]),
	}
}

func (d *DiskBuffer) run() {
	defer d.wg.Done()
	for {
		select {
		case e, ok := <-d.storeCh:
			if !ok {
				return
			}
			if err := d.insert(e); err != nil && d.cfg.OnStoreError != nil {
				d.cfg.OnStoreError(err)
			}
		case <-d.stopCh:
			return
		}
	}
}

func (d *DiskBuffer) insert(e logentry.Entry) error {
	key := keygen.Key{Epoch: d.epoch}
	val, err := json.Marshal(toDiskEntry(e))
	if err != nil {
		return fmt.Errorf("buffer: encode entry: %w", err)
	}

	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		if n := EvictCount(int(d.count.Load()), d.cfg.MaxSize); n > 0 {
			c := b.Cursor()
			k, _ := c.First()
			for i := 0; i < n && k != nil; i++ {
				if err := c.Delete(); err != nil {
					return err
				}
				k, _ = c.First()
			}
			d.count.Add(-int64(n))
			if d.cfg.OnDrop != nil {
				d.cfg.OnDrop(n)
			}
		}

		generated := d.keys.Next()
		key.MonotonicNS, key.Counter = generated.MonotonicNS, generated.Counter
		if err := b.Put(encodeKey(key), val); err != nil {
			return err
		}
		d.count.Add(1)
		if d.cfg.OnStore != nil {
			d.cfg.OnStore()
		}
		return nil
	})
}

func toDiskEntry(e logentry.Entry) diskEntry {
	return diskEntry{
		Timestamp:          e.Timestamp,
		Level:              e.Level,
		Message:            e.Message,
		Labels:             e.Labels,
		StructuredMetadata: e.StructuredMetadata,
	}
}

func fromDiskEntry(e diskEntry) logentry.Entry {
	return logentry.Entry{
		Timestamp:          e.Timestamp,
		Level:              e.Level,
		Message:            e.Message,
		Labels:             e.Labels,
		StructuredMetadata: e.StructuredMetadata,
	}
}

// Store implements Buffer.
func (d *DiskBuffer) Store(_ context.Context, e logentry.Entry) {
	select {
	case d.storeCh <- e:
	default:
		if d.cfg.OnDrop != nil {
			d.cfg.OnDrop(1)
		}
	}
}

// FetchBatch implements Buffer.
func (d *DiskBuffer) FetchBatch(_ context.Context, limit int) ([]Item, error) {
	items := make([]Item, 0, limit)
	err := d.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(entriesBucket).Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var de diskEntry
			if err := json.Unmarshal(v, &de); err != nil {
				return fmt.Errorf("buffer: decode entry: %w", err)
			}
			items = append(items, Item{Key: decodeKey(k), Entry: fromDiskEntry(de)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteUpTo implements Buffer.
func (d *DiskBuffer) DeleteUpTo(_ context.Context, key keygen.Key) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		var deleted int64
		c := tx.Bucket(entriesBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.First() {
			if decodeKey(k).Compare(key) > 0 {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		if deleted > 0 {
			d.count.Add(-deleted)
		}
		return nil
	})
}

// Count implements Buffer.
func (d *DiskBuffer) Count(_ context.Context) (int, error) {
	return int(d.count.Load()), nil
}

// Stop implements Buffer. Idempotent.
func (d *DiskBuffer) Stop() error {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	return d.db.Close()
}
