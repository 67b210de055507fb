package orders

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vastralabs/vastra-backend/internal/blobstore"
	"github.com/vastralabs/vastra-backend/pkg/enums"
	pkgerrors "github.com/vastralabs/vastra-backend/pkg/errors"
	"github.com/vastralabs/vastra-backend/pkg/logger"
	"github.com/vastralabs/vastra-backend/pkg/types"
)

type fakeBlobs struct {
	mu       sync.Mutex
	data     map[string][]byte
	maxBytes int
	saves    int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: map[string][]byte{}}
}

func (f *fakeBlobs) Load(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (f *fakeBlobs) Save(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.maxBytes > 0 && len(data) > f.maxBytes {
		return pkgerrors.New(pkgerrors.CodeCapacityExceeded, "blob exceeds storage ceiling")
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	f.data[key] = stored
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestLedger(t *testing.T, blobs *fakeBlobs) *Ledger {
	t.Helper()
	ledger, err := NewLedger(blobs, testLogger(), nil)
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	if err := ledger.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	return ledger
}

func testAddress() types.Address {
	return types.Address{
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "Karnataka",
		PostalCode: "560001",
	}
}

func testInput(userID string) CreateOrderInput {
	return CreateOrderInput{
		UserID:    userID,
		UserName:  "Priya Sharma",
		UserEmail: "priya@example.com",
		Items: []OrderItemInput{
			{ProductID: "p1", ProductName: "Banarasi Silk Saree", Quantity: 1, UnitPrice: 4999},
		},
		Total:           4999,
		ShippingAddress: testAddress(),
		PaymentMethod:   "upi",
	}
}

func TestCreateAssignsIDAndDefaults(t *testing.T) {
	blobs := newFakeBlobs()
	ledger := newTestLedger(t, blobs)
	ctx := context.Background()

	input := testInput("u1")
	created, err := ledger.Create(ctx, input)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.HasPrefix(created.ID, "ORD-") {
		t.Fatalf("expected ORD- prefixed id, got %q", created.ID)
	}
	if created.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", created.Status)
	}
	if created.ShippingAddress.Country != "IN" {
		t.Fatalf("expected normalized country IN, got %q", created.ShippingAddress.Country)
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("expected createdAt == updatedAt, got %v / %v", created.CreatedAt, created.UpdatedAt)
	}
	if blobs.saves != 1 {
		t.Fatalf("expected one persist, got %d", blobs.saves)
	}

	// The returned order and the ledger record must not alias the input.
	input.Items[0].ProductName = "mutated"
	fetched, err := ledger.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if fetched.Items[0].ProductName != "Banarasi Silk Saree" {
		t.Fatalf("ledger aliased caller items: %q", fetched.Items[0].ProductName)
	}
}

func TestCreateValidation(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateOrderInput)
	}{
		{"missing user", func(in *CreateOrderInput) { in.UserID = "" }},
		{"no items", func(in *CreateOrderInput) { in.Items = nil }},
		{"zero quantity", func(in *CreateOrderInput) { in.Items[0].Quantity = 0 }},
		{"negative total", func(in *CreateOrderInput) { in.Total = -1 }},
		{"missing payment method", func(in *CreateOrderInput) { in.PaymentMethod = "" }},
		{"missing address city", func(in *CreateOrderInput) { in.ShippingAddress.City = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := testInput("u1")
			tc.mutate(&input)
			if _, err := ledger.Create(ctx, input); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestOperationsRequireBootstrap(t *testing.T) {
	ledger, err := NewLedger(newFakeBlobs(), testLogger(), nil)
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	ctx := context.Background()

	if _, err := ledger.Create(ctx, testInput("u1")); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT before bootstrap, got %v", err)
	}
	if _, err := ledger.List(ctx); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT before bootstrap, got %v", err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	ctx := context.Background()

	base := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	clock := base
	ledger.nowFn = func() time.Time { return clock }

	var ids []string
	for i := 0; i < 3; i++ {
		clock = base.Add(time.Duration(i) * time.Hour)
		created, err := ledger.Create(ctx, testInput("u1"))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		ids = append(ids, created.ID)
	}

	listed, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(listed))
	}
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if listed[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, listed[i].ID)
		}
	}
}

func TestListByUserFilters(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	ctx := context.Background()

	if _, err := ledger.Create(ctx, testInput("u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := ledger.Create(ctx, testInput("u2")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := ledger.Create(ctx, testInput("u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	mine, err := ledger.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("listByUser failed: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 orders for u1, got %d", len(mine))
	}
	for _, order := range mine {
		if order.UserID != "u1" {
			t.Fatalf("unexpected user %s in result", order.UserID)
		}
	}
}

func TestGetByIDMissing(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	if _, err := ledger.GetByID(context.Background(), "ORD-nope"); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	ctx := context.Background()

	created, err := ledger.Create(ctx, testInput("u1"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	for _, status := range []enums.OrderStatus{
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
	} {
		updated, err := ledger.UpdateStatus(ctx, created.ID, status)
		if err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
		if updated.Status != status {
			t.Fatalf("expected status %s, got %s", status, updated.Status)
		}
	}
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	ctx := context.Background()

	created, err := ledger.Create(ctx, testInput("u1"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := ledger.UpdateStatus(ctx, created.ID, enums.OrderStatusDelivered); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT for pending->delivered, got %v", err)
	}

	// The failed transition must not touch the record.
	fetched, err := ledger.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if fetched.Status != enums.OrderStatusPending {
		t.Fatalf("expected status untouched, got %s", fetched.Status)
	}
	if !fetched.UpdatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("expected updatedAt untouched, got %v", fetched.UpdatedAt)
	}
}

func TestCancelledIsTerminal(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	ctx := context.Background()

	created, err := ledger.Create(ctx, testInput("u1"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := ledger.UpdateStatus(ctx, created.ID, enums.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	_, err = ledger.UpdateStatus(ctx, created.ID, enums.OrderStatusProcessing)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT leaving cancelled, got %v", err)
	}
	if !strings.Contains(err.Error(), "no further transitions") {
		t.Fatalf("expected a terminal-state message, got %q", err.Error())
	}
}

func TestUpdateStatusMissingOrder(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	if _, err := ledger.UpdateStatus(context.Background(), "ORD-nope", enums.OrderStatusProcessing); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestSearchOrders(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	ctx := context.Background()

	first, err := ledger.Create(ctx, testInput("u1"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	other := testInput("u2")
	other.UserName = "Ananya Rao"
	other.UserEmail = "ananya@example.com"
	other.Items[0].ProductName = "Chanderi Suit Set"
	if _, err := ledger.Create(ctx, other); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	byName, err := ledger.Search(ctx, "ananya")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(byName) != 1 || byName[0].UserName != "Ananya Rao" {
		t.Fatalf("expected one match on user name, got %d", len(byName))
	}

	byProduct, err := ledger.Search(ctx, "SILK")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(byProduct) != 1 || byProduct[0].ID != first.ID {
		t.Fatalf("expected one case-insensitive match on product name, got %d", len(byProduct))
	}

	byID, err := ledger.Search(ctx, first.ID)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(byID) != 1 {
		t.Fatalf("expected one match on id, got %d", len(byID))
	}

	all, err := ledger.Search(ctx, "   ")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected blank query to return all orders, got %d", len(all))
	}
}

func TestListByDateRangeInclusive(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	ctx := context.Background()

	base := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	clock := base
	ledger.nowFn = func() time.Time { return clock }

	var ids []string
	for i := 0; i < 3; i++ {
		clock = base.AddDate(0, 0, i)
		created, err := ledger.Create(ctx, testInput("u1"))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		ids = append(ids, created.ID)
	}

	// Both boundaries land exactly on creation instants.
	ranged, err := ledger.ListByDateRange(ctx, base, base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("listByDateRange failed: %v", err)
	}
	if len(ranged) != 2 {
		t.Fatalf("expected inclusive boundaries to match 2 orders, got %d", len(ranged))
	}
	if ranged[0].ID != ids[1] || ranged[1].ID != ids[0] {
		t.Fatalf("expected newest-first window ordering")
	}
}

func TestNamedDateWindows(t *testing.T) {
	ledger := newTestLedger(t, newFakeBlobs())
	ctx := context.Background()

	now := time.Date(2025, 8, 15, 14, 30, 0, 0, time.UTC)
	clock := now
	ledger.nowFn = func() time.Time { return clock }

	creationTimes := map[string]time.Time{
		"today":      time.Date(2025, 8, 15, 9, 0, 0, 0, time.UTC),
		"yesterday":  time.Date(2025, 8, 14, 23, 59, 0, 0, time.UTC),
		"last week":  time.Date(2025, 8, 9, 12, 0, 0, 0, time.UTC),
		"last month": time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC),
		"last year":  time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC),
	}
	for _, at := range creationTimes {
		clock = at
		if _, err := ledger.Create(ctx, testInput("u1")); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	clock = now

	cases := []struct {
		name string
		list func(context.Context) ([]Order, error)
		want int
	}{
		{"today", ledger.ListToday, 1},
		{"yesterday", ledger.ListYesterday, 1},
		{"this month", ledger.ListThisMonth, 3},
		{"last month", ledger.ListLastMonth, 1},
		{"this year", ledger.ListThisYear, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.list(ctx)
			if err != nil {
				t.Fatalf("%s window failed: %v", tc.name, err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d orders in %s window, got %d", tc.want, tc.name, len(got))
			}
		})
	}

	lastSeven, err := ledger.ListLastNDays(ctx, 7)
	if err != nil {
		t.Fatalf("lastNDays failed: %v", err)
	}
	if len(lastSeven) != 3 {
		t.Fatalf("expected 3 orders in trailing 7 days, got %d", len(lastSeven))
	}
	none, err := ledger.ListLastNDays(ctx, 0)
	if err != nil {
		t.Fatalf("lastNDays failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty result for n=0, got %d", len(none))
	}
}

func TestBootstrapMalformedBlobStartsEmpty(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.data[blobstore.KeyOrders] = []byte("{not json")

	ledger := newTestLedger(t, blobs)
	listed, err := ledger.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty ledger after malformed blob, got %d", len(listed))
	}

	// The corrupt blob is overwritten so later restarts load cleanly.
	var records []Order
	if err := json.Unmarshal(blobs.data[blobstore.KeyOrders], &records); err != nil {
		t.Fatalf("expected a valid blob after degrade, got %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected an empty recovered ledger, got %d records", len(records))
	}
}

func TestCapacityErrorPropagatesAndRollsBack(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.maxBytes = 1
	ledger, err := NewLedger(blobs, testLogger(), nil)
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	if err := ledger.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	if _, err := ledger.Create(context.Background(), testInput("u1")); !pkgerrors.HasCode(err, pkgerrors.CodeCapacityExceeded) {
		t.Fatalf("expected CAPACITY_EXCEEDED to propagate, got %v", err)
	}
	listed, err := ledger.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected failed create to be rolled back, got %d orders", len(listed))
	}
}

func TestLedgerSurvivesRestart(t *testing.T) {
	blobs := newFakeBlobs()
	first := newTestLedger(t, blobs)
	ctx := context.Background()

	created, err := first.Create(ctx, testInput("u1"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := first.UpdateStatus(ctx, created.ID, enums.OrderStatusProcessing); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	second := newTestLedger(t, blobs)
	fetched, err := second.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get after restart failed: %v", err)
	}
	if fetched.Status != enums.OrderStatusProcessing {
		t.Fatalf("expected persisted status processing, got %s", fetched.Status)
	}
	if len(fetched.Items) != 1 || fetched.Items[0].UnitPrice != 4999 {
		t.Fatalf("expected line items to survive restart")
	}
}
