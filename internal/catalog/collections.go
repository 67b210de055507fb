package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vastralabs/vastra-backend/internal/blobstore"
	pkgerrors "github.com/vastralabs/vastra-backend/pkg/errors"
	"github.com/vastralabs/vastra-backend/pkg/logger"
	"github.com/vastralabs/vastra-backend/pkg/metrics"
)

// productReassigner is the slice of the product store the registry needs to
// cascade reference updates when a collection is deleted.
type productReassigner interface {
	ListByCollection(ctx context.Context, collectionID string) ([]Product, error)
	BulkMoveToCollection(ctx context.Context, ids []string, collectionID string) (int, error)
}

// CollectionRegistry owns the named groupings products reference. The
// exclusive collection is protected: re-asserted on every load, repaired on
// lookup, and never deletable.
type CollectionRegistry struct {
	mu      sync.RWMutex
	records map[string]Collection
	booted  bool

	blobs    blobPersistence
	products productReassigner
	log      *logger.Logger
	metrics  *metrics.StoreMetrics
}

const collectionsLabel = "collections"

// NewCollectionRegistry constructs the registry.
func NewCollectionRegistry(blobs blobPersistence, products productReassigner, logg *logger.Logger, m *metrics.StoreMetrics) (*CollectionRegistry, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob persistence required")
	}
	if products == nil {
		return nil, fmt.Errorf("product store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &CollectionRegistry{
		records:  make(map[string]Collection),
		blobs:    blobs,
		products: products,
		log:      logg,
		metrics:  m,
	}, nil
}

// Bootstrap loads the persisted set, merges seed collections the same way
// the product store does (persisted wins by id), and re-asserts the
// protected collection.
func (r *CollectionRegistry) Bootstrap(ctx context.Context, seed []Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.booted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "collection registry already bootstrapped")
	}

	ctx = r.log.WithStore(ctx, collectionsLabel)

	persisted, err := r.loadPersisted(ctx)
	if err != nil {
		return err
	}
	for _, record := range persisted {
		r.records[record.ID] = record
	}

	changed := false
	for _, record := range seed {
		if _, exists := r.records[record.ID]; exists {
			continue
		}
		r.records[record.ID] = record
		changed = true
	}

	if _, exists := r.records[ExclusiveCollectionID]; !exists {
		r.records[ExclusiveCollectionID] = newProtectedCollection()
		changed = true
	}

	if changed {
		if err := r.persistLocked(ctx); err != nil {
			return err
		}
	}

	r.booted = true
	r.log.Info(r.log.WithField(ctx, "total", len(r.records)), "collection registry bootstrapped")
	return nil
}

func newProtectedCollection() Collection {
	now := time.Now().UTC()
	return Collection{
		ID:          ExclusiveCollectionID,
		Name:        exclusiveCollectionName,
		Description: "Made-to-order pieces, shown only when browsed directly.",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *CollectionRegistry) loadPersisted(ctx context.Context) ([]Collection, error) {
	data, ok, err := r.blobs.Load(ctx, blobstore.KeyCollections)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var records []Collection
	if err := json.Unmarshal(data, &records); err != nil {
		r.log.Error(ctx, "malformed collections blob, starting empty", err)
		return nil, nil
	}
	return records, nil
}

func (r *CollectionRegistry) ensureBootedLocked() error {
	if !r.booted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "collection registry not bootstrapped")
	}
	return nil
}

// List returns all collections sorted by creation time, oldest first, id
// tie-break.
func (r *CollectionRegistry) List(_ context.Context) ([]Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ensureBootedLocked(); err != nil {
		return nil, err
	}

	out := make([]Collection, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, record)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetByID returns the collection. Requesting the protected id when it has
// gone missing recreates it, persists the repair, and returns it.
func (r *CollectionRegistry) GetByID(ctx context.Context, id string) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureBootedLocked(); err != nil {
		return nil, err
	}

	record, ok := r.records[id]
	if !ok {
		if id != ExclusiveCollectionID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "collection not found")
		}
		record = newProtectedCollection()
		r.records[id] = record
		if err := r.persistLocked(ctx); err != nil {
			delete(r.records, id)
			return nil, err
		}
		r.log.Warn(r.log.WithStore(ctx, collectionsLabel), "protected collection was missing, recreated")
	}
	out := record
	return &out, nil
}

// Create adds a collection with a fresh id and timestamps.
func (r *CollectionRegistry) Create(ctx context.Context, name, description, image string) (*Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "collection name is required")
	}

	now := time.Now().UTC()
	record := Collection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Image:       image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureBootedLocked(); err != nil {
		return nil, err
	}

	r.records[record.ID] = record
	if err := r.persistLocked(ctx); err != nil {
		delete(r.records, record.ID)
		return nil, err
	}
	r.metrics.IncMutation(collectionsLabel, "create")
	out := record
	return &out, nil
}

// Update edits name/description/image, refreshing UpdatedAt.
func (r *CollectionRegistry) Update(ctx context.Context, id, name, description, image string) (*Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "collection name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureBootedLocked(); err != nil {
		return nil, err
	}

	current, ok := r.records[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "collection not found")
	}

	updated := current
	updated.Name = name
	updated.Description = description
	updated.Image = image
	updated.UpdatedAt = time.Now().UTC()

	r.records[id] = updated
	if err := r.persistLocked(ctx); err != nil {
		r.records[id] = current
		return nil, err
	}
	r.metrics.IncMutation(collectionsLabel, "update")
	out := updated
	return &out, nil
}

// Delete removes a collection and reassigns every product referencing it to
// the uncategorized sentinel, creating the sentinel on demand. Deleting the
// protected collection is a logic error and is rejected outright.
//
// The cascade runs without holding r.mu: BulkMoveToCollection fires the
// product store's notification round, and an observer there is allowed to
// call back into the registry.
func (r *CollectionRegistry) Delete(ctx context.Context, id string) error {
	if id == ExclusiveCollectionID {
		return pkgerrors.New(pkgerrors.CodeValidation, "the protected collection cannot be deleted")
	}

	r.mu.Lock()
	if err := r.ensureBootedLocked(); err != nil {
		r.mu.Unlock()
		return err
	}
	if _, ok := r.records[id]; !ok {
		r.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeNotFound, "collection not found")
	}
	r.mu.Unlock()

	referencing, err := r.products.ListByCollection(ctx, id)
	if err != nil {
		return err
	}

	if len(referencing) > 0 {
		if err := r.ensureUncategorized(ctx); err != nil {
			return err
		}
		ids := make([]string, len(referencing))
		for i, product := range referencing {
			ids[i] = product.ID
		}
		moved, err := r.products.BulkMoveToCollection(ctx, ids, UncategorizedCollectionID)
		if err != nil {
			return err
		}
		r.log.Info(r.log.WithFields(r.log.WithStore(ctx, collectionsLabel), map[string]any{
			"collection": id,
			"moved":      moved,
		}), "cascaded products to uncategorized")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.records[id]
	if !ok {
		// A concurrent delete won the race; the cascade already completed.
		return pkgerrors.New(pkgerrors.CodeNotFound, "collection not found")
	}
	delete(r.records, id)
	if err := r.persistLocked(ctx); err != nil {
		r.records[id] = current
		return err
	}
	r.metrics.IncMutation(collectionsLabel, "delete")
	return nil
}

// ensureUncategorized creates the sentinel collection if it is missing.
func (r *CollectionRegistry) ensureUncategorized(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureUncategorizedLocked(ctx)
}

func (r *CollectionRegistry) ensureUncategorizedLocked(ctx context.Context) error {
	if _, exists := r.records[UncategorizedCollectionID]; exists {
		return nil
	}
	now := time.Now().UTC()
	r.records[UncategorizedCollectionID] = Collection{
		ID:          UncategorizedCollectionID,
		Name:        "Uncategorized",
		Description: "Products without a collection.",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return r.persistLocked(ctx)
}

// persistLocked writes the collections blob. Capacity errors surface to the
// caller: the registry is tiny and never sheds.
func (r *CollectionRegistry) persistLocked(ctx context.Context) error {
	snapshot := make([]Collection, 0, len(r.records))
	for _, record := range r.records {
		snapshot = append(snapshot, record)
	}
	sort.SliceStable(snapshot, func(i, j int) bool {
		if !snapshot[i].CreatedAt.Equal(snapshot[j].CreatedAt) {
			return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
		}
		return snapshot[i].ID < snapshot[j].ID
	})

	data, err := json.Marshal(snapshot)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal collections")
	}
	return r.blobs.Save(ctx, blobstore.KeyCollections, data)
}
