package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vastralabs/vastra-backend/pkg/enums"
)

// SeedData is the bundled catalog shipped with a deploy. It is merged, not
// applied: persisted records win by id, new seed ids are appended.
type SeedData struct {
	Products    []Product    `json:"products"`
	Collections []Collection `json:"collections"`
}

// LoadSeedFile reads and decodes a seed catalog JSON file. Seed tooling is
// external, so product categories are validated here rather than trusted.
func LoadSeedFile(path string) (*SeedData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var seed SeedData
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decoding seed file %s: %w", path, err)
	}
	for _, product := range seed.Products {
		if _, err := enums.ParseProductCategory(string(product.Category)); err != nil {
			return nil, fmt.Errorf("seed product %s: %w", product.ID, err)
		}
	}
	return &seed, nil
}
