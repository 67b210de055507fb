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
	"go.uber.org/multierr"
)

// Mutation names the operation behind a change notification.
type Mutation string

const (
	MutationCreate     Mutation = "create"
	MutationUpdate     Mutation = "update"
	MutationDelete     Mutation = "delete"
	MutationBulkUpdate Mutation = "bulk_update"
	MutationBulkMove   Mutation = "bulk_move"
	MutationBulkDelete Mutation = "bulk_delete"
	MutationDuplicate  Mutation = "duplicate"
	MutationSetStock   Mutation = "set_stock"
)

// Event describes one successful mutation, delivered to observers after the
// change has been durably persisted.
type Event struct {
	Op         Mutation
	ProductIDs []string
}

// Observer receives change notifications in subscription order.
type Observer func(Event)

type blobPersistence interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
}

type subscription struct {
	id int
	fn Observer
}

// ProductStore owns the persisted, observable product collection. All
// mutations serialize around the read-modify-write-persist sequence; reads
// return deep copies of the in-memory snapshot.
type ProductStore struct {
	mu      sync.RWMutex
	records map[string]Product
	booted  bool

	// notifyMu serializes whole mutations including their notification
	// round. It is always acquired before mu (see beginMutation), so a
	// round's observers finish, and may read the store, before the next
	// mutation takes the write lock.
	notifyMu sync.Mutex
	subMu    sync.Mutex
	subs     []subscription
	nextSub  int

	blobs      blobPersistence
	log        *logger.Logger
	metrics    *metrics.StoreMetrics
	shedRetain int
}

const storeLabel = "catalog"

// NewProductStore constructs the product store. shedRetain bounds how many
// most-recently-updated records survive a capacity shed.
func NewProductStore(blobs blobPersistence, logg *logger.Logger, m *metrics.StoreMetrics, shedRetain int) (*ProductStore, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob persistence required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if shedRetain <= 0 {
		shedRetain = 50
	}
	return &ProductStore{
		records:    make(map[string]Product),
		blobs:      blobs,
		log:        logg,
		metrics:    m,
		shedRetain: shedRetain,
	}, nil
}

// Bootstrap loads the persisted set and merges the seed into it. Persisted
// records win by id so a redeploy of seed data never reverts user edits;
// seed records with new ids are appended. Malformed persisted data degrades
// to an empty store with an error log, never a crash. Must be called once
// before any other operation.
func (s *ProductStore) Bootstrap(ctx context.Context, seed []Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.booted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "product store already bootstrapped")
	}

	ctx = s.log.WithStore(ctx, storeLabel)

	persisted, malformed, err := s.loadPersisted(ctx)
	if err != nil {
		return err
	}

	for _, record := range persisted {
		s.records[record.ID] = record
	}

	appended := 0
	for _, record := range seed {
		if _, exists := s.records[record.ID]; exists {
			continue
		}
		s.records[record.ID] = record.Clone()
		appended++
	}

	// A malformed blob is overwritten with the recovered set, even an empty
	// one, so the next restart loads cleanly instead of degrading again.
	if appended > 0 || malformed || (len(persisted) == 0 && len(seed) > 0) {
		if err := s.persistLocked(ctx); err != nil {
			return err
		}
	}

	s.booted = true
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"persisted": len(persisted),
		"seeded":    appended,
		"total":     len(s.records),
	}), "product store bootstrapped")
	return nil
}

func (s *ProductStore) loadPersisted(ctx context.Context) ([]Product, bool, error) {
	data, ok, err := s.blobs.Load(ctx, blobstore.KeyProducts)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	var records []Product
	if err := json.Unmarshal(data, &records); err != nil {
		// Catalog data is not a critical system of record: a corrupt blob
		// degrades to an empty store, loudly.
		s.log.Error(ctx, "malformed products blob, starting empty", err)
		return nil, true, nil
	}
	return records, false, nil
}

func (s *ProductStore) ensureBootedLocked() error {
	if !s.booted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "product store not bootstrapped")
	}
	return nil
}

// List returns the ordered default view: ascending serial number (absent
// last), newest first, stable by id. Products in the exclusive collection
// are excluded unless requested explicitly via ListByCollection or ListAll.
func (s *ProductStore) List(ctx context.Context) ([]Product, error) {
	return s.list(ctx, false)
}

// ListAll returns the ordered set including exclusive-collection products.
func (s *ProductStore) ListAll(ctx context.Context) ([]Product, error) {
	return s.list(ctx, true)
}

func (s *ProductStore) list(_ context.Context, includeExclusive bool) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureBootedLocked(); err != nil {
		return nil, err
	}

	out := make([]Product, 0, len(s.records))
	for _, record := range s.records {
		if !includeExclusive && record.CollectionID == ExclusiveCollectionID {
			continue
		}
		out = append(out, record.Clone())
	}
	sortProducts(out)
	return out, nil
}

// GetByID returns the product or NOT_FOUND.
func (s *ProductStore) GetByID(_ context.Context, id string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureBootedLocked(); err != nil {
		return nil, err
	}

	record, ok := s.records[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	clone := record.Clone()
	return &clone, nil
}

// ListByCollection filters the ordered set by collection id. The exclusive
// collection is reachable here by explicit selection.
func (s *ProductStore) ListByCollection(ctx context.Context, collectionID string) ([]Product, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0)
	for _, record := range all {
		if record.CollectionID == collectionID {
			out = append(out, record)
		}
	}
	return out, nil
}

// ListByCategory filters the default view by category.
func (s *ProductStore) ListByCategory(ctx context.Context, category string) ([]Product, error) {
	listed, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0)
	for _, record := range listed {
		if string(record.Category) == category {
			out = append(out, record)
		}
	}
	return out, nil
}

// Search matches a case-insensitive substring over name, description,
// category, and materials. No ranking: the default view order is preserved.
func (s *ProductStore) Search(ctx context.Context, query string) ([]Product, error) {
	listed, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return listed, nil
	}

	out := make([]Product, 0)
	for _, record := range listed {
		if productMatches(record, needle) {
			out = append(out, record)
		}
	}
	return out, nil
}

func productMatches(p Product, needle string) bool {
	if strings.Contains(strings.ToLower(p.Name), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Description), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(string(p.Category)), needle) {
		return true
	}
	for _, material := range p.Materials {
		if strings.Contains(strings.ToLower(material), needle) {
			return true
		}
	}
	return false
}

// Create adds a product with a fresh id and timestamps. When variants are
// supplied, the flat image list is derived from the first variant and the
// images argument is ignored.
func (s *ProductStore) Create(ctx context.Context, input CreateProductInput, images []string) (*Product, error) {
	if err := input.validateInput(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inStock := true
	if input.InStock != nil {
		inStock = *input.InStock
	}
	stockCount := 0
	if input.StockCount != nil {
		stockCount = *input.StockCount
	}

	product := Product{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(input.Name),
		Price:            input.Price,
		OriginalPrice:    input.OriginalPrice,
		Description:      input.Description,
		Category:         input.Category,
		CollectionID:     input.CollectionID,
		Sizes:            cloneStrings(input.Sizes),
		Colors:           cloneStrings(input.Colors),
		Materials:        cloneStrings(input.Materials),
		CareInstructions: cloneStrings(input.CareInstructions),
		Features:         cloneStrings(input.Features),
		IsNew:            input.IsNew,
		IsBestSeller:     input.IsBestSeller,
		IsOnSale:         input.IsOnSale,
		InStock:          inStock,
		StockCount:       stockCount,
		SerialNumber:     input.SerialNumber,
		ProductCode:      strings.TrimSpace(input.ProductCode),
		Images:           cloneStrings(images),
		ColorVariants:    buildVariants(input.ColorVariants),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	product.syncImagesFromVariants()

	s.beginMutation()
	if err := s.ensureBootedLocked(); err != nil {
		s.abortMutation()
		return nil, err
	}
	s.records[product.ID] = product
	if err := s.persistLocked(ctx); err != nil {
		delete(s.records, product.ID)
		s.abortMutation()
		return nil, err
	}
	clone := product.Clone()
	s.finishMutation(ctx, Event{Op: MutationCreate, ProductIDs: []string{product.ID}})
	return &clone, nil
}

// Update patch-merges input into the record. Nil patch fields are left
// untouched; the variant image rule is re-applied on every update.
func (s *ProductStore) Update(ctx context.Context, id string, input UpdateProductInput, images []string) (*Product, error) {
	if err := input.validateInput(); err != nil {
		return nil, err
	}

	s.beginMutation()
	if err := s.ensureBootedLocked(); err != nil {
		s.abortMutation()
		return nil, err
	}

	current, ok := s.records[id]
	if !ok {
		s.abortMutation()
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	updated := current.Clone()
	applyUpdateToProduct(&updated, input)
	if images != nil {
		updated.Images = cloneStrings(images)
	}
	updated.syncImagesFromVariants()
	updated.UpdatedAt = time.Now().UTC()

	s.records[id] = updated
	if err := s.persistLocked(ctx); err != nil {
		s.records[id] = current
		s.abortMutation()
		return nil, err
	}
	clone := updated.Clone()
	s.finishMutation(ctx, Event{Op: MutationUpdate, ProductIDs: []string{id}})
	return &clone, nil
}

// Delete removes the product or returns NOT_FOUND.
func (s *ProductStore) Delete(ctx context.Context, id string) error {
	s.beginMutation()
	if err := s.ensureBootedLocked(); err != nil {
		s.abortMutation()
		return err
	}

	current, ok := s.records[id]
	if !ok {
		s.abortMutation()
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	delete(s.records, id)
	if err := s.persistLocked(ctx); err != nil {
		s.records[id] = current
		s.abortMutation()
		return err
	}
	s.finishMutation(ctx, Event{Op: MutationDelete, ProductIDs: []string{id}})
	return nil
}

// BulkUpdate applies the patch per id, skipping ids that do not exist, and
// returns how many records were updated. One persist and one notification
// round cover the whole call.
func (s *ProductStore) BulkUpdate(ctx context.Context, ids []string, input UpdateProductInput) (int, error) {
	if err := input.validateInput(); err != nil {
		return 0, err
	}
	return s.bulkMutate(ctx, MutationBulkUpdate, ids, func(product *Product) {
		applyUpdateToProduct(product, input)
		product.syncImagesFromVariants()
	})
}

// BulkMoveToCollection reassigns each existing id to the collection and
// returns the count moved.
func (s *ProductStore) BulkMoveToCollection(ctx context.Context, ids []string, collectionID string) (int, error) {
	return s.bulkMutate(ctx, MutationBulkMove, ids, func(product *Product) {
		product.CollectionID = collectionID
	})
}

func (s *ProductStore) bulkMutate(ctx context.Context, op Mutation, ids []string, apply func(*Product)) (int, error) {
	s.beginMutation()
	if err := s.ensureBootedLocked(); err != nil {
		s.abortMutation()
		return 0, err
	}

	now := time.Now().UTC()
	previous := make(map[string]Product, len(ids))
	touched := make([]string, 0, len(ids))
	for _, id := range ids {
		current, ok := s.records[id]
		if !ok {
			continue
		}
		previous[id] = current
		updated := current.Clone()
		apply(&updated)
		updated.UpdatedAt = now
		s.records[id] = updated
		touched = append(touched, id)
	}

	if len(touched) == 0 {
		s.abortMutation()
		return 0, nil
	}

	if err := s.persistLocked(ctx); err != nil {
		for id, record := range previous {
			s.records[id] = record
		}
		s.abortMutation()
		return 0, err
	}
	s.finishMutation(ctx, Event{Op: op, ProductIDs: touched})
	return len(touched), nil
}

// BulkDelete removes each existing id and returns the count deleted;
// missing ids are skipped, not fatal.
func (s *ProductStore) BulkDelete(ctx context.Context, ids []string) (int, error) {
	s.beginMutation()
	if err := s.ensureBootedLocked(); err != nil {
		s.abortMutation()
		return 0, err
	}

	previous := make(map[string]Product, len(ids))
	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		current, ok := s.records[id]
		if !ok {
			continue
		}
		previous[id] = current
		delete(s.records, id)
		removed = append(removed, id)
	}

	if len(removed) == 0 {
		s.abortMutation()
		return 0, nil
	}

	if err := s.persistLocked(ctx); err != nil {
		for id, record := range previous {
			s.records[id] = record
		}
		s.abortMutation()
		return 0, err
	}
	s.finishMutation(ctx, Event{Op: MutationBulkDelete, ProductIDs: removed})
	return len(removed), nil
}

// Duplicate deep-copies the record under a new id with the name marked as a
// copy and fresh timestamps.
func (s *ProductStore) Duplicate(ctx context.Context, id string) (*Product, error) {
	s.beginMutation()
	if err := s.ensureBootedLocked(); err != nil {
		s.abortMutation()
		return nil, err
	}

	current, ok := s.records[id]
	if !ok {
		s.abortMutation()
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	now := time.Now().UTC()
	copyRecord := current.Clone()
	copyRecord.ID = uuid.NewString()
	copyRecord.Name = current.Name + " (Copy)"
	copyRecord.CreatedAt = now
	copyRecord.UpdatedAt = now

	s.records[copyRecord.ID] = copyRecord
	if err := s.persistLocked(ctx); err != nil {
		delete(s.records, copyRecord.ID)
		s.abortMutation()
		return nil, err
	}
	clone := copyRecord.Clone()
	s.finishMutation(ctx, Event{Op: MutationDuplicate, ProductIDs: []string{copyRecord.ID}})
	return &clone, nil
}

// SetStock adjusts stock for one variant (variantIdx >= 0) or the top-level
// count (variantIdx < 0), re-deriving the in-stock flags.
func (s *ProductStore) SetStock(ctx context.Context, id string, variantIdx, stockCount int) (*Product, error) {
	if stockCount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock count must be non-negative")
	}

	s.beginMutation()
	if err := s.ensureBootedLocked(); err != nil {
		s.abortMutation()
		return nil, err
	}

	current, ok := s.records[id]
	if !ok {
		s.abortMutation()
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	updated := current.Clone()
	if variantIdx >= 0 {
		if variantIdx >= len(updated.ColorVariants) {
			s.abortMutation()
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant index out of range")
		}
		updated.ColorVariants[variantIdx].StockCount = stockCount
		updated.ColorVariants[variantIdx].InStock = stockCount > 0
		total := 0
		anyInStock := false
		for _, variant := range updated.ColorVariants {
			total += variant.StockCount
			anyInStock = anyInStock || variant.InStock
		}
		updated.StockCount = total
		updated.InStock = anyInStock
	} else {
		updated.StockCount = stockCount
		updated.InStock = stockCount > 0
	}
	updated.UpdatedAt = time.Now().UTC()

	s.records[id] = updated
	if err := s.persistLocked(ctx); err != nil {
		s.records[id] = current
		s.abortMutation()
		return nil, err
	}
	clone := updated.Clone()
	s.finishMutation(ctx, Event{Op: MutationSetStock, ProductIDs: []string{id}})
	return &clone, nil
}

// Subscribe registers an observer. Observers run synchronously in
// subscription order after each successful mutation has been persisted;
// the returned handle removes the subscription. Observers may read the
// store but must not mutate it from the callback.
func (s *ProductStore) Subscribe(fn Observer) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// beginMutation takes the notification lock and then the write lock. The
// fixed order matters: an in-flight notification round holds notifyMu while
// its observers read under mu.RLock, so a mutation grabbing mu first and
// then waiting on notifyMu would deadlock against it.
func (s *ProductStore) beginMutation() {
	s.notifyMu.Lock()
	s.mu.Lock()
}

// abortMutation releases both locks without a notification round.
func (s *ProductStore) abortMutation() {
	s.mu.Unlock()
	s.notifyMu.Unlock()
}

// finishMutation is called with both locks held: it releases s.mu so
// observers can read, runs the notification round, then releases notifyMu.
func (s *ProductStore) finishMutation(ctx context.Context, event Event) {
	s.metrics.IncMutation(storeLabel, string(event.Op))
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.subMu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	start := time.Now()
	var failures error
	for _, sub := range subs {
		if err := s.invokeObserver(sub.fn, event); err != nil {
			failures = multierr.Append(failures, err)
			s.metrics.IncNotifyFailure(storeLabel)
		}
	}
	s.metrics.ObserveNotifyDuration(storeLabel, time.Since(start))

	if failures != nil {
		ctx = s.log.WithField(ctx, "op", string(event.Op))
		s.log.Error(s.log.WithStore(ctx, storeLabel), "observer notification failed", failures)
	}
}

// invokeObserver isolates one observer: a panicking callback is recovered
// so the rest of the round still runs and the store stays consistent.
func (s *ProductStore) invokeObserver(fn Observer, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	fn(event)
	return nil
}

// persistLocked serializes every record and writes the products blob. On a
// capacity failure it sheds down to the most-recently-updated records and
// retries once; a second failure propagates. Shedding is deliberate,
// documented data loss under sustained over-capacity, and it is logged.
func (s *ProductStore) persistLocked(ctx context.Context) error {
	snapshot := make([]Product, 0, len(s.records))
	for _, record := range s.records {
		snapshot = append(snapshot, record)
	}
	sortProducts(snapshot)

	data, err := json.Marshal(snapshot)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal products")
	}

	saveErr := s.blobs.Save(ctx, blobstore.KeyProducts, data)
	if saveErr == nil {
		return nil
	}
	if !pkgerrors.HasCode(saveErr, pkgerrors.CodeCapacityExceeded) {
		return saveErr
	}

	retained := mostRecentlyUpdated(snapshot, s.shedRetain)
	dropped := len(snapshot) - len(retained)

	data, err = json.Marshal(retained)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal shed products")
	}
	if err := s.blobs.Save(ctx, blobstore.KeyProducts, data); err != nil {
		return err
	}

	s.records = make(map[string]Product, len(retained))
	for _, record := range retained {
		s.records[record.ID] = record
	}
	s.metrics.AddShedRecords(storeLabel, dropped)
	s.log.Warn(s.log.WithFields(s.log.WithStore(ctx, storeLabel), map[string]any{
		"dropped":  dropped,
		"retained": len(retained),
	}), "capacity exceeded, shed least-recently-updated products")
	return nil
}

// mostRecentlyUpdated keeps the n records with the newest UpdatedAt.
func mostRecentlyUpdated(records []Product, n int) []Product {
	out := make([]Product, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > n {
		out = out[:n]
	}
	sortProducts(out)
	return out
}
