// settlement-gateway/internal/store/db_test.go
package store

import (
	"context"
	"testing"
	"time"
)

func TestOverlayCommit(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	db := NewDB(base)

	tx := db.Begin(ctx)
	if err := db.Put(tx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	// staged write is visible to the owning transaction
	if v, ok, _ := db.Get(tx, "k"); !ok || string(v) != "v" {
		t.Fatalf("staged read = %q %v", v, ok)
	}
	// but not in the backing store yet
	if _, ok, _ := base.Get(ctx, "k"); ok {
		t.Fatal("write leaked to base before commit")
	}
	if err := db.Commit(tx); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := base.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("base read after commit = %q %v", v, ok)
	}
}

func TestOverlayRollback(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	if err := base.Put(ctx, "k", []byte("old")); err != nil {
		t.Fatal(err)
	}
	db := NewDB(base)

	tx := db.Begin(ctx)
	_ = db.Put(tx, "k", []byte("new"))
	_ = db.Delete(tx, "other")
	db.Rollback()

	if v, ok, _ := db.Get(ctx, "k"); !ok || string(v) != "old" {
		t.Fatalf("rollback lost the old value: %q %v", v, ok)
	}
}

func TestOverlayNesting(t *testing.T) {
	ctx := context.Background()
	db := NewDB(NewMemory())

	tx := db.Begin(ctx)
	_ = db.Put(tx, "a", []byte("1"))

	db.Begin(tx)
	_ = db.Put(tx, "a", []byte("2"))
	db.Rollback()

	if v, _, _ := db.Get(tx, "a"); string(v) != "1" {
		t.Fatalf("inner rollback clobbered outer frame: %q", v)
	}

	db.Begin(tx)
	_ = db.Delete(tx, "a")
	if err := db.Commit(tx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := db.Get(tx, "a"); ok {
		t.Fatal("inner delete must merge into the outer frame")
	}
	if err := db.Commit(tx); err != nil {
		t.Fatal(err)
	}
	if db.InTx() {
		t.Fatal("all frames should be closed")
	}
}

func TestScanMergesOverlay(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	_ = base.Put(ctx, "p|1", []byte("base"))
	_ = base.Put(ctx, "p|2", []byte("gone"))
	db := NewDB(base)

	tx := db.Begin(ctx)
	_ = db.Put(tx, "p|3", []byte("staged"))
	_ = db.Delete(tx, "p|2")

	got := map[string]string{}
	if err := db.Scan(tx, "p|", func(k string, v []byte) error {
		got[k] = string(v)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["p|1"] != "base" || got["p|3"] != "staged" {
		t.Fatalf("scan = %v", got)
	}

	// a reader outside the transaction sees only committed state
	got = map[string]string{}
	if err := db.Scan(ctx, "p|", func(k string, v []byte) error {
		got[k] = string(v)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["p|2"] != "gone" {
		t.Fatalf("outside scan = %v", got)
	}
}

func TestCommitWithoutBegin(t *testing.T) {
	db := NewDB(NewMemory())
	if err := db.Commit(context.Background()); err == nil {
		t.Fatal("commit without begin must fail")
	}
}

func TestOutsideWriteNotStaged(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	db := NewDB(base)

	tx := db.Begin(ctx)
	_ = db.Put(tx, "pay", []byte("staged"))

	// a writer without the transaction context waits the transaction
	// out and lands in the backing store
	done := make(chan error, 1)
	go func() {
		done <- db.Put(ctx, "admin", []byte("direct"))
	}()
	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("outside write must block while the transaction is open")
	default:
	}

	db.Rollback()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := base.Get(ctx, "pay"); ok {
		t.Fatal("staged write survived the rollback")
	}
	if v, ok, _ := base.Get(ctx, "admin"); !ok || string(v) != "direct" {
		t.Fatalf("outside write lost: %q %v", v, ok)
	}
}

func TestStaleTransactionContext(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	db := NewDB(base)

	old := db.Begin(ctx)
	db.Rollback()

	// a context from a finished transaction writes through to base
	if err := db.Put(old, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := base.Get(ctx, "k"); !ok {
		t.Fatal("write with a stale context must reach the backing store")
	}
}
