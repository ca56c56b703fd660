package buffer

import (
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/ausimian/loki-logger-handler/internal/keygen"
	"github.com/ausimian/loki-logger-handler/internal/logentry"
)

// storeChanDepth bounds the handoff channel between producers and the
// single writer goroutine. A full channel drops the entry through the
// overflow-metric hook rather than blocking the producer (spec §9 Open
// Question: "a safer design uses a bounded channel with timeout" — here,
// a bounded channel with an immediate, observed drop instead of a
// timeout, since store must never block).
const storeChanDepth = 4096

// MemoryBuffer is the volatile backend of spec §4.3: an in-process
// ordered collection giving up persistence for throughput. Readers take a
// direct read lock against the tree; insert and overflow eviction run on
// a single writer goroutine fed by a channel, and DeleteUpTo takes the
// write lock directly. The writer goroutine is the in-process analogue of the teacher's
// batchMu-guarded batch slice, generalized from "batch accumulator" to
// "sole owner of the ordered keyspace".
type MemoryBuffer struct {
	cfg  Config
	keys *keygen.Generator

	mu   sync.RWMutex
	tree *btree.BTreeG[Item]

	storeCh  chan logentry.Entry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func itemLess(a, b Item) bool { return a.Key.Less(b.Key) }

// OpenMemory starts a MemoryBuffer's writer goroutine and returns it ready
// for use.
func OpenMemory(cfg Config) *MemoryBuffer {
	b := &MemoryBuffer{
		cfg:     cfg,
		keys:    keygen.New(),
		tree:    btree.NewG(32, itemLess),
		storeCh: make(chan logentry.Entry, storeChanDepth),
		stopCh:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

func (b *MemoryBuffer) run() {
	defer b.wg.Done()
	for {
		select {
		case e, ok := <-b.storeCh:
			if !ok {
				return
			}
			b.insert(e)
		case <-b.stopCh:
			return
		}
	}
}

func (b *MemoryBuffer) insert(e logentry.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := EvictCount(b.tree.Len(), b.cfg.MaxSize); n > 0 {
		for i := 0; i < n; i++ {
			if _, ok := b.tree.DeleteMin(); !ok {
				break
			}
		}
		if b.cfg.OnDrop != nil {
			b.cfg.OnDrop(n)
		}
	}
	b.tree.ReplaceOrInsert(Item{Key: b.keys.Next(), Entry: e})
	if b.cfg.OnStore != nil {
		b.cfg.OnStore()
	}
}

// Store implements Buffer.
func (b *MemoryBuffer) Store(_ context.Context, e logentry.Entry) {
	select {
	case b.storeCh <- e:
	default:
		if b.cfg.OnDrop != nil {
			b.cfg.OnDrop(1)
		}
	}
}

// FetchBatch implements Buffer.
func (b *MemoryBuffer) FetchBatch(_ context.Context, limit int) ([]Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	items := make([]Item, 0, min(limit, b.tree.Len()))
	b.tree.Ascend(func(it Item) bool {
		if len(items) >= limit {
			return false
		}
		items = append(items, it)
		return true
	})
	return items, nil
}

// DeleteUpTo implements Buffer.
func (b *MemoryBuffer) DeleteUpTo(_ context.Context, key keygen.Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		min, ok := b.tree.Min()
		if !ok || min.Key.Compare(key) > 0 {
			return nil
		}
		b.tree.DeleteMin()
	}
}

// Count implements Buffer.
func (b *MemoryBuffer) Count(_ context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.Len(), nil
}

// Stop implements Buffer. Idempotent.
func (b *MemoryBuffer) Stop() error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree.Clear(false)
	return nil
}
