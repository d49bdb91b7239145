// settlement-gateway/internal/store/db.go
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/example/settlement-gateway/pkg/errors"
)

// DB wraps a KV with stacked write overlays. A payment begins a frame,
// every mutation made by any stage lands in that frame, and the frame is
// merged down only when the whole pipeline succeeded. Rollback discards
// the frame, so a failing stage leaves no trace.
//
// Frames belong to the transaction that opened them: Begin returns a
// derived context, and only writes carrying that context stage in the
// overlay. Writes arriving with any other context wait for the
// transaction to finish and then land in the backing KV, so a concurrent
// admin mutation can never be dragged down by a payment's rollback.
type DB struct {
	mu     sync.Mutex
	base   KV
	frames []*frame
	txID   uint64

	// held from the outermost Begin to the matching Commit/Rollback;
	// serializes outside writers against the open transaction
	txMu sync.Mutex
}

type frame struct {
	writes  map[string][]byte
	deletes map[string]bool
}

func newFrame() *frame {
	return &frame{
		writes:  make(map[string][]byte),
		deletes: make(map[string]bool),
	}
}

type txMarker struct{}

func NewDB(base KV) *DB {
	return &DB{base: base}
}

// Begin opens an overlay frame and returns the context that owns it.
// Calling Begin again with the returned context nests another frame.
func (db *DB) Begin(ctx context.Context) context.Context {
	if db.owns(ctx) {
		db.mu.Lock()
		db.frames = append(db.frames, newFrame())
		db.mu.Unlock()
		return ctx
	}
	db.txMu.Lock()
	db.mu.Lock()
	db.txID++
	id := db.txID
	db.frames = append(db.frames, newFrame())
	db.mu.Unlock()
	return context.WithValue(ctx, txMarker{}, id)
}

// owns reports whether ctx carries the marker of the open transaction.
func (db *DB) owns(ctx context.Context) bool {
	id, ok := ctx.Value(txMarker{}).(uint64)
	if !ok {
		return false
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.frames) > 0 && id == db.txID
}

// Commit merges the top frame into the frame below it, or flushes it to
// the backing KV when it is the outermost frame.
func (db *DB) Commit(ctx context.Context) error {
	db.mu.Lock()
	n := len(db.frames)
	if n == 0 {
		db.mu.Unlock()
		return errors.Domain("commit without begin")
	}
	top := db.frames[n-1]
	db.frames = db.frames[:n-1]

	if n > 1 {
		below := db.frames[n-2]
		for k := range top.deletes {
			below.deletes[k] = true
			delete(below.writes, k)
		}
		for k, v := range top.writes {
			below.writes[k] = v
			delete(below.deletes, k)
		}
		db.mu.Unlock()
		return nil
	}
	db.mu.Unlock()
	defer db.txMu.Unlock()

	for k := range top.deletes {
		if err := db.base.Delete(ctx, k); err != nil {
			return err
		}
	}
	for k, v := range top.writes {
		if err := db.base.Put(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Rollback discards the top frame.
func (db *DB) Rollback() {
	db.mu.Lock()
	n := len(db.frames)
	if n == 0 {
		db.mu.Unlock()
		return
	}
	db.frames = db.frames[:n-1]
	db.mu.Unlock()
	if n == 1 {
		db.txMu.Unlock()
	}
}

// InTx reports whether at least one frame is open.
func (db *DB) InTx() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.frames) > 0
}

func (db *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if db.owns(ctx) {
		db.mu.Lock()
		for i := len(db.frames) - 1; i >= 0; i-- {
			f := db.frames[i]
			if f.deletes[key] {
				db.mu.Unlock()
				return nil, false, nil
			}
			if v, ok := f.writes[key]; ok {
				db.mu.Unlock()
				return v, true, nil
			}
		}
		db.mu.Unlock()
	}
	return db.base.Get(ctx, key)
}

func (db *DB) Put(ctx context.Context, key string, value []byte) error {
	if db.owns(ctx) {
		db.mu.Lock()
		if n := len(db.frames); n > 0 {
			f := db.frames[n-1]
			f.writes[key] = value
			delete(f.deletes, key)
			db.mu.Unlock()
			return nil
		}
		db.mu.Unlock()
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.base.Put(ctx, key, value)
}

func (db *DB) Delete(ctx context.Context, key string) error {
	if db.owns(ctx) {
		db.mu.Lock()
		if n := len(db.frames); n > 0 {
			f := db.frames[n-1]
			f.deletes[key] = true
			delete(f.writes, key)
			db.mu.Unlock()
			return nil
		}
		db.mu.Unlock()
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.base.Delete(ctx, key)
}

// Scan merges staged writes over the backing KV's view for the owning
// transaction; outside readers see only committed state.
func (db *DB) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	if !db.owns(ctx) {
		return db.base.Scan(ctx, prefix, fn)
	}
	merged := make(map[string][]byte)
	if err := db.base.Scan(ctx, prefix, func(k string, v []byte) error {
		merged[k] = v
		return nil
	}); err != nil {
		return err
	}
	db.mu.Lock()
	for _, f := range db.frames {
		for k := range f.deletes {
			if strings.HasPrefix(k, prefix) {
				delete(merged, k)
			}
		}
		for k, v := range f.writes {
			if strings.HasPrefix(k, prefix) {
				merged[k] = v
			}
		}
	}
	db.mu.Unlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, merged[k]); err != nil {
			return err
		}
	}
	return nil
}
