package orders

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
	"github.com/vastralabs/vastra-backend/pkg/enums"
	pkgerrors "github.com/vastralabs/vastra-backend/pkg/errors"
	"github.com/vastralabs/vastra-backend/pkg/logger"
	"github.com/vastralabs/vastra-backend/pkg/metrics"
)

type blobPersistence interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Ledger is the append-mostly order store. Orders are immutable after
// creation except for status transitions; capacity errors surface to the
// caller because shedding order history is never acceptable by default.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]Order
	booted  bool

	blobs   blobPersistence
	log     *logger.Logger
	metrics *metrics.StoreMetrics
	nowFn   func() time.Time
}

const ledgerLabel = "orders"

// NewLedger constructs the order ledger.
func NewLedger(blobs blobPersistence, logg *logger.Logger, m *metrics.StoreMetrics) (*Ledger, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob persistence required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Ledger{
		records: make(map[string]Order),
		blobs:   blobs,
		log:     logg,
		metrics: m,
		nowFn:   time.Now,
	}, nil
}

// Bootstrap loads the persisted ledger. A malformed blob degrades to an
// empty ledger with an error log. Must run before any other operation.
func (l *Ledger) Bootstrap(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.booted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order ledger already bootstrapped")
	}

	ctx = l.log.WithStore(ctx, ledgerLabel)

	data, ok, err := l.blobs.Load(ctx, blobstore.KeyOrders)
	if err != nil {
		return err
	}
	if ok {
		var records []Order
		if err := json.Unmarshal(data, &records); err != nil {
			l.log.Error(ctx, "malformed orders blob, starting empty", err)
			// Overwrite the corrupt blob so the next restart loads cleanly.
			if err := l.persistLocked(ctx); err != nil {
				return err
			}
		} else {
			for _, record := range records {
				l.records[record.ID] = record
			}
		}
	}

	l.booted = true
	l.log.Info(l.log.WithField(ctx, "total", len(l.records)), "order ledger bootstrapped")
	return nil
}

func (l *Ledger) ensureBootedLocked() error {
	if !l.booted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order ledger not bootstrapped")
	}
	return nil
}

// newOrderID derives the id from creation time plus a random suffix so
// creation order stays recoverable without a separate sequence.
func (l *Ledger) newOrderID(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), uuid.NewString()[:6])
}

// Create appends an order. Line items and the shipping address are
// deep-copied snapshots, never references into caller state.
func (l *Ledger) Create(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if err := input.validateInput(); err != nil {
		return nil, err
	}

	now := l.nowFn().UTC()
	items := make([]OrderItem, len(input.Items))
	for i, item := range input.Items {
		items[i] = OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Size:        item.Size,
			Color:       item.Color,
		}
	}

	order := Order{
		ID:              l.newOrderID(now),
		UserID:          input.UserID,
		UserName:        input.UserName,
		UserEmail:       input.UserEmail,
		Items:           items,
		Total:           input.Total,
		Status:          enums.OrderStatusPending,
		ShippingAddress: input.ShippingAddress.Normalized(),
		PaymentMethod:   input.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureBootedLocked(); err != nil {
		return nil, err
	}

	l.records[order.ID] = order
	if err := l.persistLocked(ctx); err != nil {
		delete(l.records, order.ID)
		return nil, err
	}
	l.metrics.IncMutation(ledgerLabel, "create")
	l.log.Info(l.log.WithField(l.log.WithUserID(l.log.WithStore(ctx, ledgerLabel), order.UserID), "order", order.ID),
		"order appended")
	clone := order.Clone()
	return &clone, nil
}

// List returns every order, newest first, id tie-break.
func (l *Ledger) List(_ context.Context) ([]Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.ensureBootedLocked(); err != nil {
		return nil, err
	}
	return l.snapshotLocked(func(Order) bool { return true }), nil
}

// ListByUser returns the user's orders, newest first.
func (l *Ledger) ListByUser(_ context.Context, userID string) ([]Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.ensureBootedLocked(); err != nil {
		return nil, err
	}
	return l.snapshotLocked(func(o Order) bool { return o.UserID == userID }), nil
}

// GetByID returns the order or NOT_FOUND.
func (l *Ledger) GetByID(_ context.Context, id string) (*Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.ensureBootedLocked(); err != nil {
		return nil, err
	}

	record, ok := l.records[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	clone := record.Clone()
	return &clone, nil
}

// UpdateStatus applies a state-machine transition. Invalid transitions are
// hard errors: the record, including UpdatedAt, is left untouched.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status enums.OrderStatus) (*Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureBootedLocked(); err != nil {
		return nil, err
	}

	current, ok := l.records[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if !current.Status.CanTransitionTo(status) {
		if current.Status.IsTerminal() {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is already %s, no further transitions allowed", current.Status))
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition order from %s to %s", current.Status, status))
	}

	updated := current.Clone()
	updated.Status = status
	updated.UpdatedAt = l.nowFn().UTC()

	l.records[id] = updated
	if err := l.persistLocked(ctx); err != nil {
		l.records[id] = current
		return nil, err
	}
	l.metrics.IncMutation(ledgerLabel, "update_status")
	clone := updated.Clone()
	return &clone, nil
}

// Search matches a case-insensitive substring over order id, user name,
// user email, and line-item product names.
func (l *Ledger) Search(ctx context.Context, query string) ([]Order, error) {
	listed, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return listed, nil
	}

	out := make([]Order, 0)
	for _, order := range listed {
		if orderMatches(order, needle) {
			out = append(out, order)
		}
	}
	return out, nil
}

func orderMatches(o Order, needle string) bool {
	if strings.Contains(strings.ToLower(o.ID), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(o.UserName), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(o.UserEmail), needle) {
		return true
	}
	for _, item := range o.Items {
		if strings.Contains(strings.ToLower(item.ProductName), needle) {
			return true
		}
	}
	return false
}

// ListByDateRange returns orders created within [start, end], both
// endpoints inclusive, newest first.
func (l *Ledger) ListByDateRange(_ context.Context, start, end time.Time) ([]Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.ensureBootedLocked(); err != nil {
		return nil, err
	}
	return l.snapshotLocked(func(o Order) bool {
		return !o.CreatedAt.Before(start) && !o.CreatedAt.After(end)
	}), nil
}

// snapshotLocked filters and deep-copies matching orders, newest first.
func (l *Ledger) snapshotLocked(match func(Order) bool) []Order {
	out := make([]Order, 0, len(l.records))
	for _, record := range l.records {
		if match(record) {
			out = append(out, record.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// persistLocked writes the orders blob in creation order. The ledger never
// sheds: a CAPACITY_EXCEEDED save propagates untouched.
func (l *Ledger) persistLocked(ctx context.Context) error {
	snapshot := make([]Order, 0, len(l.records))
	for _, record := range l.records {
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
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal orders")
	}
	return l.blobs.Save(ctx, blobstore.KeyOrders, data)
}
