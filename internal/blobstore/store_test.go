package blobstore

import (
	"context"
	"testing"

	"github.com/vastralabs/vastra-backend/pkg/db"
	pkgerrors "github.com/vastralabs/vastra-backend/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestStore(t *testing.T, maxBytes int) *Store {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}

	store, err := New(db.FromConn(conn), maxBytes)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Reset(context.Background(), KeyProducts, KeyCollections, KeyOrders, "scratch")
	})
	return store
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	payload := []byte(`[{"id":"p1"}]`)
	if err := store.Save(ctx, KeyProducts, payload); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, ok, err := store.Load(ctx, KeyProducts)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !ok {
		t.Fatal("expected blob to be present")
	}
	if string(data) != string(payload) {
		t.Fatalf("round trip mismatch: %s", data)
	}
}

func TestLoadAbsentKey(t *testing.T) {
	store := openTestStore(t, 0)

	data, ok, err := store.Load(context.Background(), "scratch")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if ok || data != nil {
		t.Fatalf("expected absent blob, got ok=%v data=%v", ok, data)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	if err := store.Save(ctx, "scratch", []byte("v1")); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := store.Save(ctx, "scratch", []byte("v2")); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	data, ok, err := store.Load(ctx, "scratch")
	if err != nil || !ok {
		t.Fatalf("load failed: ok=%v err=%v", ok, err)
	}
	if string(data) != "v2" {
		t.Fatalf("expected overwrite, got %s", data)
	}
}

func TestResetRemovesOnlyGivenKeys(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	if err := store.Save(ctx, KeyProducts, []byte("[]")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(ctx, KeyCollections, []byte("[]")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(ctx, KeyOrders, []byte("[]")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := store.Reset(ctx, KeyProducts, KeyCollections); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	for _, key := range []string{KeyProducts, KeyCollections} {
		if _, ok, err := store.Load(ctx, key); err != nil || ok {
			t.Fatalf("expected %s gone: ok=%v err=%v", key, ok, err)
		}
	}
	if _, ok, err := store.Load(ctx, KeyOrders); err != nil || !ok {
		t.Fatalf("expected %s untouched: ok=%v err=%v", KeyOrders, ok, err)
	}

	// Resetting nothing, or absent keys, is a no-op.
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("empty reset failed: %v", err)
	}
	if err := store.Reset(ctx, "scratch"); err != nil {
		t.Fatalf("absent-key reset failed: %v", err)
	}
}

func TestSaveRejectsOversizedBlobWithoutWriting(t *testing.T) {
	store := openTestStore(t, 8)
	ctx := context.Background()

	if err := store.Save(ctx, "scratch", []byte("fits")); err != nil {
		t.Fatalf("small save failed: %v", err)
	}

	err := store.Save(ctx, "scratch", []byte("way too large for the ceiling"))
	if !pkgerrors.HasCode(err, pkgerrors.CodeCapacityExceeded) {
		t.Fatalf("expected CAPACITY_EXCEEDED, got %v", err)
	}

	// The oversized write must not have clobbered the stored value.
	data, ok, loadErr := store.Load(ctx, "scratch")
	if loadErr != nil || !ok {
		t.Fatalf("load failed: ok=%v err=%v", ok, loadErr)
	}
	if string(data) != "fits" {
		t.Fatalf("oversized save must not truncate; got %s", data)
	}
}
