package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing seed file: %v", err)
	}
	return path
}

func TestLoadSeedFile(t *testing.T) {
	path := writeSeedFile(t, `{
		"products": [
			{"id": "p1", "name": "Banarasi Silk Saree", "price": 4999, "category": "sarees"}
		],
		"collections": [
			{"id": "col-festive", "name": "Festive Edit"}
		]
	}`)

	seed, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(seed.Products) != 1 || seed.Products[0].ID != "p1" {
		t.Fatalf("unexpected products: %+v", seed.Products)
	}
	if len(seed.Collections) != 1 || seed.Collections[0].ID != "col-festive" {
		t.Fatalf("unexpected collections: %+v", seed.Collections)
	}
}

func TestLoadSeedFileRejectsUnknownCategory(t *testing.T) {
	path := writeSeedFile(t, `{
		"products": [
			{"id": "p1", "name": "Sneakers", "price": 1999, "category": "shoes"}
		]
	}`)

	if _, err := LoadSeedFile(path); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestLoadSeedFileRejectsMalformedJSON(t *testing.T) {
	path := writeSeedFile(t, `{not json`)
	if _, err := LoadSeedFile(path); err == nil {
		t.Fatal("expected error for malformed seed file")
	}
}
