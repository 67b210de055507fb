package catalog

import (
	"sort"
	"time"

	"github.com/vastralabs/vastra-backend/pkg/enums"
)

// Collection ids that are fixed at compile time. The exclusive collection
// always exists and can never be deleted; the uncategorized sentinel
// receives products orphaned by a collection delete.
const (
	ExclusiveCollectionID     = "col-exclusive"
	UncategorizedCollectionID = "col-uncategorized"

	exclusiveCollectionName = "Exclusive Pieces"
)

// ColorVariant bundles the per-color media and stock for a product.
// HeadAlignment is the vertical crop anchor (0-100) for portrait imagery.
type ColorVariant struct {
	Color         string   `json:"color"`
	Images        []string `json:"images"`
	StockCount    int      `json:"stockCount"`
	InStock       bool     `json:"inStock"`
	HeadAlignment float64  `json:"headAlignment"`
}

// Product is a catalog record. The flat Images list is kept in sync with
// the first color variant's images on every write.
type Product struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Price            float64               `json:"price"`
	OriginalPrice    *float64              `json:"originalPrice,omitempty"`
	Description      string                `json:"description"`
	Category         enums.ProductCategory `json:"category"`
	CollectionID     string                `json:"collectionId"`
	Sizes            []string              `json:"sizes"`
	Colors           []string              `json:"colors"`
	Materials        []string              `json:"materials"`
	CareInstructions []string              `json:"careInstructions"`
	Features         []string              `json:"features"`
	IsNew            bool                  `json:"isNew"`
	IsBestSeller     bool                  `json:"isBestSeller"`
	IsOnSale         bool                  `json:"isOnSale"`
	InStock          bool                  `json:"inStock"`
	StockCount       int                   `json:"stockCount"`
	SerialNumber     *int                  `json:"serialNumber,omitempty"`
	ProductCode      string                `json:"productCode,omitempty"`
	Images           []string              `json:"images"`
	ColorVariants    []ColorVariant        `json:"colorVariants"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

// Collection is a named grouping that products reference.
type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone deep-copies the product so callers can never alias store state.
func (p Product) Clone() Product {
	out := p
	out.Sizes = cloneStrings(p.Sizes)
	out.Colors = cloneStrings(p.Colors)
	out.Materials = cloneStrings(p.Materials)
	out.CareInstructions = cloneStrings(p.CareInstructions)
	out.Features = cloneStrings(p.Features)
	out.Images = cloneStrings(p.Images)
	if p.OriginalPrice != nil {
		v := *p.OriginalPrice
		out.OriginalPrice = &v
	}
	if p.SerialNumber != nil {
		v := *p.SerialNumber
		out.SerialNumber = &v
	}
	if p.ColorVariants != nil {
		out.ColorVariants = make([]ColorVariant, len(p.ColorVariants))
		for i, variant := range p.ColorVariants {
			out.ColorVariants[i] = variant
			out.ColorVariants[i].Images = cloneStrings(variant.Images)
		}
	}
	return out
}

// syncImagesFromVariants enforces the flat-image invariant: with variants
// present, the top-level list mirrors the first variant's images.
func (p *Product) syncImagesFromVariants() {
	if len(p.ColorVariants) == 0 {
		return
	}
	p.Images = cloneStrings(p.ColorVariants[0].Images)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// sortProducts orders by ascending serial number (absent sorts last), then
// newest first, then id for a stable tie-break.
func sortProducts(products []Product) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		switch {
		case a.SerialNumber != nil && b.SerialNumber != nil:
			if *a.SerialNumber != *b.SerialNumber {
				return *a.SerialNumber < *b.SerialNumber
			}
		case a.SerialNumber != nil:
			return true
		case b.SerialNumber != nil:
			return false
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
