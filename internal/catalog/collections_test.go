package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/vastralabs/vastra-backend/internal/blobstore"
	pkgerrors "github.com/vastralabs/vastra-backend/pkg/errors"
)

func newTestRegistry(t *testing.T, blobs *fakeBlobs, store *ProductStore, seed []Collection) *CollectionRegistry {
	t.Helper()
	registry, err := NewCollectionRegistry(blobs, store, testLogger(), nil)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	if err := registry.Bootstrap(context.Background(), seed); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	return registry
}

func TestBootstrapAssertsProtectedCollection(t *testing.T) {
	store := newTestStore(t, newFakeBlobs(), nil)
	registry := newTestRegistry(t, newFakeBlobs(), store, nil)

	protected, err := registry.GetByID(context.Background(), ExclusiveCollectionID)
	if err != nil {
		t.Fatalf("expected protected collection to exist, got %v", err)
	}
	if protected.Name != exclusiveCollectionName {
		t.Fatalf("unexpected protected collection name %q", protected.Name)
	}
}

func TestGetByIDSelfHealsProtectedCollection(t *testing.T) {
	store := newTestStore(t, newFakeBlobs(), nil)
	blobs := newFakeBlobs()
	registry := newTestRegistry(t, blobs, store, nil)
	ctx := context.Background()

	// Corrupt the registry state from the inside: drop the protected row.
	registry.mu.Lock()
	delete(registry.records, ExclusiveCollectionID)
	registry.mu.Unlock()

	healed, err := registry.GetByID(ctx, ExclusiveCollectionID)
	if err != nil {
		t.Fatalf("expected self-healing lookup, got %v", err)
	}
	if healed.ID != ExclusiveCollectionID {
		t.Fatalf("unexpected collection %+v", healed)
	}

	// The repair must be persisted, not just in memory.
	if _, ok := blobs.data[blobstore.KeyCollections]; !ok {
		t.Fatal("expected repair to be persisted")
	}
}

func TestDeleteProtectedCollectionRejected(t *testing.T) {
	store := newTestStore(t, newFakeBlobs(), nil)
	registry := newTestRegistry(t, newFakeBlobs(), store, nil)
	ctx := context.Background()

	before, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	err = registry.Delete(ctx, ExclusiveCollectionID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	after, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(after) != len(before) {
		t.Fatal("rejected delete must leave the registry unchanged")
	}
}

func TestDeleteCascadesProductsToUncategorized(t *testing.T) {
	seed := []Product{
		{ID: "p1", Name: "One", CollectionID: "col-festive"},
		{ID: "p2", Name: "Two", CollectionID: "col-festive"},
		{ID: "p3", Name: "Three", CollectionID: ExclusiveCollectionID},
	}
	store := newTestStore(t, newFakeBlobs(), seed)
	registry := newTestRegistry(t, newFakeBlobs(), store, []Collection{
		{ID: "col-festive", Name: "Festive"},
	})
	ctx := context.Background()

	if err := registry.Delete(ctx, "col-festive"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	orphaned, err := store.ListByCollection(ctx, "col-festive")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orphaned) != 0 {
		t.Fatalf("expected zero products referencing the deleted collection, got %d", len(orphaned))
	}

	uncategorized, err := store.ListByCollection(ctx, UncategorizedCollectionID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(uncategorized) != 2 {
		t.Fatalf("expected 2 products moved to the sentinel, got %d", len(uncategorized))
	}

	// The sentinel collection is created on demand.
	if _, err := registry.GetByID(ctx, UncategorizedCollectionID); err != nil {
		t.Fatalf("expected uncategorized sentinel to exist: %v", err)
	}

	// The protected collection and its products are unaffected.
	exclusive, err := store.ListByCollection(ctx, ExclusiveCollectionID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(exclusive) != 1 {
		t.Fatalf("protected collection membership must be untouched, got %d", len(exclusive))
	}
}

func TestCascadeDeleteObserverCanReadRegistry(t *testing.T) {
	seed := []Product{{ID: "p1", Name: "One", CollectionID: "col-festive"}}
	store := newTestStore(t, newFakeBlobs(), seed)
	registry := newTestRegistry(t, newFakeBlobs(), store, []Collection{
		{ID: "col-festive", Name: "Festive"},
	})
	ctx := context.Background()

	// The cascade's bulk move notifies product observers; one of them
	// calling back into the registry must not deadlock against Delete.
	sawSentinel := false
	store.Subscribe(func(event Event) {
		if event.Op != MutationBulkMove {
			return
		}
		if _, err := registry.GetByID(ctx, UncategorizedCollectionID); err == nil {
			sawSentinel = true
		}
	})

	done := make(chan error, 1)
	go func() { done <- registry.Delete(ctx, "col-festive") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("delete failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cascade delete with a registry-reading observer never completed")
	}
	if !sawSentinel {
		t.Fatal("observer should see the sentinel collection during the cascade")
	}
}

func TestDeleteMissingCollection(t *testing.T) {
	store := newTestStore(t, newFakeBlobs(), nil)
	registry := newTestRegistry(t, newFakeBlobs(), store, nil)

	if err := registry.Delete(context.Background(), "nope"); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCreateUpdateCollection(t *testing.T) {
	store := newTestStore(t, newFakeBlobs(), nil)
	registry := newTestRegistry(t, newFakeBlobs(), store, nil)
	ctx := context.Background()

	created, err := registry.Create(ctx, "Summer Set", "Light fabrics", "summer.jpg")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" || created.Name != "Summer Set" {
		t.Fatalf("unexpected collection %+v", created)
	}

	if _, err := registry.Create(ctx, "   ", "", ""); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for blank name, got %v", err)
	}

	updated, err := registry.Update(ctx, created.ID, "Monsoon Set", "Updated", "")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "Monsoon Set" {
		t.Fatalf("unexpected name %q", updated.Name)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatal("createdAt must stay fixed on update")
	}

	if _, err := registry.Update(ctx, "nope", "X", "", ""); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestRegistryBootstrapPreservesPersistedEdits(t *testing.T) {
	store := newTestStore(t, newFakeBlobs(), nil)
	blobs := newFakeBlobs()
	registry := newTestRegistry(t, blobs, store, []Collection{{ID: "col-1", Name: "Original"}})
	ctx := context.Background()

	if _, err := registry.Update(ctx, "col-1", "Renamed", "", ""); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	restarted := newTestRegistry(t, blobs, store, []Collection{{ID: "col-1", Name: "Original"}})
	got, err := restarted.GetByID(ctx, "col-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "Renamed" {
		t.Fatalf("persisted edits must win over seed, got %q", got.Name)
	}
}
