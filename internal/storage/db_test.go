package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// testDB runs the shared test suite against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		err := db.Put([]byte("key1"), []byte("value1"))
		if err != nil {
			t.Fatalf("Put() error: %v", err)
		}

		val, err := db.Get([]byte("key1"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("value1")) {
			t.Errorf("Get() = %q, want %q", val, "value1")
		}
	})

	t.Run("GetNonexistent", func(t *testing.T) {
		_, err := db.Get([]byte("nonexistent"))
		if err == nil {
			t.Error("Get() for missing key should return error")
		}
	})

	t.Run("Has", func(t *testing.T) {
		db.Put([]byte("exists"), []byte("yes"))

		ok, err := db.Has([]byte("exists"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if !ok {
			t.Error("Has() = false for existing key")
		}

		ok, err = db.Has([]byte("missing"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if ok {
			t.Error("Has() = true for missing key")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		db.Put([]byte("ow"), []byte("first"))
		db.Put([]byte("ow"), []byte("second"))

		val, err := db.Get([]byte("ow"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("second")) {
			t.Errorf("Get() after overwrite = %q, want %q", val, "second")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db.Put([]byte("del"), []byte("value"))

		err := db.Delete([]byte("del"))
		if err != nil {
			t.Fatalf("Delete() error: %v", err)
		}

		ok, _ := db.Has([]byte("del"))
		if ok {
			t.Error("key should be gone after Delete()")
		}

		_, err = db.Get([]byte("del"))
		if err == nil {
			t.Error("Get() after Delete() should return error")
		}
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		// Deleting a nonexistent key should not error.
		err := db.Delete([]byte("never-existed"))
		if err != nil {
			t.Errorf("Delete() nonexistent key error: %v", err)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		err := db.Put([]byte("empty"), []byte{})
		if err != nil {
			t.Fatalf("Put() empty value error: %v", err)
		}

		val, err := db.Get([]byte("empty"))
		if err != nil {
			t.Fatalf("Get() empty value error: %v", err)
		}
		if len(val) != 0 {
			t.Errorf("expected empty value, got %d bytes", len(val))
		}
	})

	t.Run("BinaryData", func(t *testing.T) {
		key := []byte{0x00, 0x01, 0xFF}
		value := make([]byte, 256)
		for i := range value {
			value[i] = byte(i)
		}

		err := db.Put(key, value)
		if err != nil {
			t.Fatalf("Put() binary error: %v", err)
		}

		got, err := db.Get(key)
		if err != nil {
			t.Fatalf("Get() binary error: %v", err)
		}
		if !bytes.Equal(got, value) {
			t.Error("binary roundtrip failed")
		}
	})

	t.Run("ForEach", func(t *testing.T) {
		db.Put([]byte("prefix/a"), []byte("1"))
		db.Put([]byte("prefix/b"), []byte("2"))
		db.Put([]byte("prefix/c"), []byte("3"))
		db.Put([]byte("other/x"), []byte("4"))

		var count int
		err := db.ForEach([]byte("prefix/"), func(key, value []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if count != 3 {
			t.Errorf("ForEach(prefix/) count = %d, want 3", count)
		}
	})

	t.Run("GetNotFoundSentinel", func(t *testing.T) {
		_, err := db.Get([]byte("sentinel-missing"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateCommits", func(t *testing.T) {
		err := db.Update(func(txn Txn) error {
			if err := txn.Put([]byte("tx/a"), []byte("1")); err != nil {
				return err
			}
			if err := txn.Put([]byte("tx/b"), []byte("2")); err != nil {
				return err
			}
			// Reads inside the transaction observe its own writes.
			v, err := txn.Get([]byte("tx/a"))
			if err != nil {
				return err
			}
			if !bytes.Equal(v, []byte("1")) {
				return fmt.Errorf("read-your-writes = %q", v)
			}
			return txn.Delete([]byte("tx/b"))
		})
		if err != nil {
			t.Fatalf("Update() error: %v", err)
		}
		if ok, _ := db.Has([]byte("tx/a")); !ok {
			t.Error("tx/a missing after commit")
		}
		if ok, _ := db.Has([]byte("tx/b")); ok {
			t.Error("tx/b present after delete in commit")
		}
	})

	t.Run("UpdateRollsBack", func(t *testing.T) {
		db.Put([]byte("rb/keep"), []byte("orig"))
		boom := errors.New("boom")

		err := db.Update(func(txn Txn) error {
			if err := txn.Put([]byte("rb/new"), []byte("x")); err != nil {
				return err
			}
			if err := txn.Put([]byte("rb/keep"), []byte("changed")); err != nil {
				return err
			}
			if err := txn.Delete([]byte("rb/keep")); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Update() error = %v, want boom", err)
		}
		if ok, _ := db.Has([]byte("rb/new")); ok {
			t.Error("rb/new visible after rollback")
		}
		v, err := db.Get([]byte("rb/keep"))
		if err != nil {
			t.Fatalf("Get() after rollback: %v", err)
		}
		if !bytes.Equal(v, []byte("orig")) {
			t.Errorf("rb/keep = %q, want %q", v, "orig")
		}
	})

	t.Run("View", func(t *testing.T) {
		db.Put([]byte("view/k"), []byte("v"))
		err := db.View(func(r Reader) error {
			v, err := r.Get([]byte("view/k"))
			if err != nil {
				return err
			}
			if !bytes.Equal(v, []byte("v")) {
				return fmt.Errorf("view got %q", v)
			}
			if _, err := r.Get([]byte("view/missing")); !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("missing key error = %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("View() error: %v", err)
		}
	})

	t.Run("ConcurrentUpdates", func(t *testing.T) {
		db.Put([]byte("ctr"), []byte{0})

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := db.Update(func(txn Txn) error {
					v, err := txn.Get([]byte("ctr"))
					if err != nil {
						return err
					}
					return txn.Put([]byte("ctr"), []byte{v[0] + 1})
				})
				if err != nil {
					t.Errorf("Update() error: %v", err)
				}
			}()
		}
		wg.Wait()

		v, err := db.Get([]byte("ctr"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if v[0] != 10 {
			t.Errorf("counter = %d, want 10", v[0])
		}
	})

	t.Run("ForEachEmpty", func(t *testing.T) {
		var count int
		err := db.ForEach([]byte("nonexistent/"), func(key, value []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if count != 0 {
			t.Errorf("ForEach(nonexistent/) count = %d, want 0", count)
		}
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB_Persistence(t *testing.T) {
	dir := t.TempDir()

	// Write data.
	db1, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	db1.Put([]byte("persist"), []byte("data"))
	db1.Close()

	// Reopen and read.
	db2, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() reopen error: %v", err)
	}
	defer db2.Close()

	val, err := db2.Get([]byte("persist"))
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if !bytes.Equal(val, []byte("data")) {
		t.Errorf("persisted value = %q, want %q", val, "data")
	}
}

func TestBadgerDB_RunGC_NothingToRewrite(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()

	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	n, err := db.RunGC(0.5)
	if err != nil {
		t.Fatalf("RunGC() error: %v", err)
	}
	if n != 0 {
		t.Errorf("RunGC() rewrote %d files on a fresh db, want 0", n)
	}
}

// interfere commits a competing write to key from outside the running
// transaction, so the transaction's read of key is stale at commit.
func interfere(t *testing.T, db *BadgerDB, key []byte, attempt int) {
	t.Helper()
	if err := db.Put(key, []byte(fmt.Sprintf("competing-%d", attempt))); err != nil {
		t.Fatalf("competing Put() error: %v", err)
	}
}

func TestBadgerDB_Update_RetriesConflict(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()

	key := []byte("hot")
	attempts := 0
	err = db.Update(func(txn Txn) error {
		attempts++
		if _, err := txn.Get(key); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if attempts == 1 {
			interfere(t, db, key, attempts)
		}
		return txn.Put(key, []byte("winner"))
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("fn ran %d times, want 2", attempts)
	}
	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != "winner" {
		t.Errorf("Get() = %q, want %q", got, "winner")
	}
}

func TestBadgerDB_Update_ConflictExhausted(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()

	key := []byte("hot")
	attempts := 0
	err = db.Update(func(txn Txn) error {
		attempts++
		if _, err := txn.Get(key); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		interfere(t, db, key, attempts)
		return txn.Put([]byte("never"), []byte("written"))
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Update() error = %v, want ErrConflict", err)
	}
	if attempts != maxConflictRetries+1 {
		t.Errorf("fn ran %d times, want %d", attempts, maxConflictRetries+1)
	}
	if ok, _ := db.Has([]byte("never")); ok {
		t.Error("write from a conflicted transaction is visible")
	}
}
