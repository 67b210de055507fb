package catalog

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vastralabs/vastra-backend/pkg/enums"
	pkgerrors "github.com/vastralabs/vastra-backend/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ColorVariantInput is the caller-supplied shape of one color variant.
type ColorVariantInput struct {
	Color         string   `validate:"required"`
	Images        []string `validate:"dive,required"`
	StockCount    int      `validate:"gte=0"`
	InStock       *bool
	HeadAlignment float64 `validate:"gte=0,lte=100"`
}

// CreateProductInput holds the validated payload to create a product.
// InStock defaults to true and StockCount to 0 when not supplied.
type CreateProductInput struct {
	Name             string  `validate:"required"`
	Price            float64 `validate:"gte=0"`
	OriginalPrice    *float64
	Description      string
	Category         enums.ProductCategory `validate:"required"`
	CollectionID     string
	Sizes            []string
	Colors           []string
	Materials        []string
	CareInstructions []string
	Features         []string
	IsNew            bool
	IsBestSeller     bool
	IsOnSale         bool
	InStock          *bool
	StockCount       *int `validate:"omitempty,gte=0"`
	SerialNumber     *int
	ProductCode      string
	ColorVariants    []ColorVariantInput `validate:"dive"`
}

// UpdateProductInput holds optional mutation values for a product. Nil
// fields are left untouched by the patch merge.
type UpdateProductInput struct {
	Name             *string
	Price            *float64 `validate:"omitempty,gte=0"`
	OriginalPrice    **float64
	Description      *string
	Category         *enums.ProductCategory
	CollectionID     *string
	Sizes            *[]string
	Colors           *[]string
	Materials        *[]string
	CareInstructions *[]string
	Features         *[]string
	IsNew            *bool
	IsBestSeller     *bool
	IsOnSale         *bool
	InStock          *bool
	StockCount       *int `validate:"omitempty,gte=0"`
	SerialNumber     **int
	ProductCode      *string
	ColorVariants    *[]ColorVariantInput `validate:"omitempty,dive"`
}

func (in CreateProductInput) validateInput() error {
	if err := validate.Struct(in); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product input")
	}
	if !in.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown product category")
	}
	return nil
}

func (in UpdateProductInput) validateInput() error {
	if err := validate.Struct(in); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product patch")
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name cannot be blank")
	}
	if in.Category != nil && !in.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown product category")
	}
	return nil
}

func buildVariants(inputs []ColorVariantInput) []ColorVariant {
	if inputs == nil {
		return nil
	}
	variants := make([]ColorVariant, len(inputs))
	for i, in := range inputs {
		inStock := in.StockCount > 0
		if in.InStock != nil {
			inStock = *in.InStock
		}
		variants[i] = ColorVariant{
			Color:         strings.TrimSpace(in.Color),
			Images:        cloneStrings(in.Images),
			StockCount:    in.StockCount,
			InStock:       inStock,
			HeadAlignment: in.HeadAlignment,
		}
	}
	return variants
}

// applyUpdateToProduct merges the patch into the record; untouched fields
// keep their current values.
func applyUpdateToProduct(product *Product, input UpdateProductInput) {
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.OriginalPrice != nil {
		product.OriginalPrice = *input.OriginalPrice
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.Category != nil {
		product.Category = *input.Category
	}
	if input.CollectionID != nil {
		product.CollectionID = *input.CollectionID
	}
	if input.Sizes != nil {
		product.Sizes = cloneStrings(*input.Sizes)
	}
	if input.Colors != nil {
		product.Colors = cloneStrings(*input.Colors)
	}
	if input.Materials != nil {
		product.Materials = cloneStrings(*input.Materials)
	}
	if input.CareInstructions != nil {
		product.CareInstructions = cloneStrings(*input.CareInstructions)
	}
	if input.Features != nil {
		product.Features = cloneStrings(*input.Features)
	}
	if input.IsNew != nil {
		product.IsNew = *input.IsNew
	}
	if input.IsBestSeller != nil {
		product.IsBestSeller = *input.IsBestSeller
	}
	if input.IsOnSale != nil {
		product.IsOnSale = *input.IsOnSale
	}
	if input.InStock != nil {
		product.InStock = *input.InStock
	}
	if input.StockCount != nil {
		product.StockCount = *input.StockCount
	}
	if input.SerialNumber != nil {
		product.SerialNumber = *input.SerialNumber
	}
	if input.ProductCode != nil {
		product.ProductCode = strings.TrimSpace(*input.ProductCode)
	}
	if input.ColorVariants != nil {
		product.ColorVariants = buildVariants(*input.ColorVariants)
	}
}
