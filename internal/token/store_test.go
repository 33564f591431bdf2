package token

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

func TestStore_PutGet(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)

	mint := types.Address{0x01, 0x02, 0x03}
	meta := &Metadata{
		Name:      "Macallan 18 Sherry Oak",
		Symbol:    "MAC18",
		URI:       "https://example.com/bottles/mac18.json",
		Custodian: types.Address{0xAA},
	}

	if _, err := store.Get(mint); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get before Put: err = %v, want storage.ErrNotFound", err)
	}

	// Put.
	if err := store.Put(mint, meta); err != nil {
		t.Fatalf("Put: %v", err)
	}


	// Get.
	got, err := store.Get(mint)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != meta.Name {
		t.Errorf("Name = %q, want %q", got.Name, meta.Name)
	}
	if got.Symbol != meta.Symbol {
		t.Errorf("Symbol = %q, want %q", got.Symbol, meta.Symbol)
	}
	if got.URI != meta.URI {
		t.Errorf("URI = %q, want %q", got.URI, meta.URI)
	}
	if got.Custodian != meta.Custodian {
		t.Errorf("Custodian = %s, want %s", got.Custodian, meta.Custodian)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)

	_, err := store.Get(types.Address{0xFF})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want storage.ErrNotFound", err)
	}
}

func TestStore_List_Empty(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(entries))
	}
}

func TestStore_List_Multiple(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)

	tokens := []struct {
		mint   types.Address
		meta *Metadata
	}{
		{types.Address{0x01}, &Metadata{Name: "Alpha", Symbol: "ALP"}},
		{types.Address{0x02}, &Metadata{Name: "Beta", Symbol: "BET"}},
		{types.Address{0x03}, &Metadata{Name: "Gamma", Symbol: "GAM"}},
	}

	for _, tt := range tokens {
		if err := store.Put(tt.mint, tt.meta); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// Verify all tokens are present (order may vary).
	found := make(map[string]bool)
	for _, e := range entries {
		found[e.Symbol] = true
	}
	for _, tt := range tokens {
		if !found[tt.meta.Symbol] {
			t.Errorf("missing token %s", tt.meta.Symbol)
		}
	}
}

func TestStore_ForEach_StopEarly(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)

	for i := 0; i < 5; i++ {
		mint := types.Address{byte(i)}
		if err := store.Put(mint, &Metadata{Name: "Token", Symbol: "TKN"}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	var count int
	errStop := errors.New("stop")
	err := store.ForEach(func(_ types.Address, _ *Metadata) error {
		count++
		if count >= 2 {
			return errStop
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected early-stop error")
	}
	if !errors.Is(err, errStop) {
		t.Errorf("error = %v, want %v", err, errStop)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestWriteMetadata_RollsBackWithTxn(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)
	mint := types.Address{0x42}
	errAbort := errors.New("abort")

	err := db.Update(func(txn storage.Txn) error {
		if err := WriteMetadata(txn, mint, &Metadata{Name: "Gone"}); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("Update err = %v, want abort", err)
	}
	if _, err := store.Get(mint); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("metadata written by an aborted transaction is visible: err = %v", err)
	}
}
