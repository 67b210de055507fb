package orders

import (
	"time"

	"github.com/vastralabs/vastra-backend/pkg/enums"
	"github.com/vastralabs/vastra-backend/pkg/types"
)

// OrderItem is a line-item snapshot: product name and unit price are copied
// at order time and never re-synced against later catalog edits.
type OrderItem struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Size        string  `json:"size,omitempty"`
	Color       string  `json:"color,omitempty"`
}

// Order is an append-mostly ledger record. Everything except Status and
// UpdatedAt is immutable after creation.
type Order struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	UserName        string            `json:"userName"`
	UserEmail       string            `json:"userEmail"`
	Items           []OrderItem       `json:"items"`
	Total           float64           `json:"total"`
	Status          enums.OrderStatus `json:"status"`
	ShippingAddress types.Address     `json:"shippingAddress"`
	PaymentMethod   string            `json:"paymentMethod"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Clone deep-copies the order so callers never alias ledger state.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = make([]OrderItem, len(o.Items))
		copy(out.Items, o.Items)
	}
	if o.ShippingAddress.Line2 != nil {
		v := *o.ShippingAddress.Line2
		out.ShippingAddress.Line2 = &v
	}
	if o.ShippingAddress.Phone != nil {
		v := *o.ShippingAddress.Phone
		out.ShippingAddress.Phone = &v
	}
	return out
}
