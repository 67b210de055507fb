package orders

import (
	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/vastralabs/vastra-backend/pkg/errors"
	"github.com/vastralabs/vastra-backend/pkg/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// OrderItemInput is one caller-supplied line item.
type OrderItemInput struct {
	ProductID   string  `validate:"required"`
	ProductName string  `validate:"required"`
	Quantity    int     `validate:"gte=1"`
	UnitPrice   float64 `validate:"gte=0"`
	Size        string
	Color       string
}

// CreateOrderInput holds the payload to append an order. Total is computed
// by the caller (items plus shipping); the ledger records it as-is and
// never recomputes it.
type CreateOrderInput struct {
	UserID          string `validate:"required"`
	UserName        string
	UserEmail       string
	Items           []OrderItemInput `validate:"min=1,dive"`
	Total           float64          `validate:"gte=0"`
	ShippingAddress types.Address
	PaymentMethod   string `validate:"required"`
}

func (in CreateOrderInput) validateInput() error {
	if err := validate.Struct(in); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order input")
	}
	if err := in.ShippingAddress.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	return nil
}
