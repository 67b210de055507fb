package blobstore

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/vastralabs/vastra-backend/pkg/db"
	"github.com/vastralabs/vastra-backend/pkg/db/models"
	pkgerrors "github.com/vastralabs/vastra-backend/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Well-known blob keys. Each store persists under its own key so capacity
// shedding on one never touches the others.
const (
	KeyProducts    = "catalog:products"
	KeyCollections = "catalog:collections"
	KeyOrders      = "orders:ledger"
)

// Store persists named byte blobs under a hard per-key size ceiling. It is
// the only component that touches the storage medium: no retries, no
// versioning, and it never truncates — oversized writes fail whole.
type Store struct {
	client   *db.Client
	maxBytes int
}

// New constructs a blob store. maxBytes <= 0 disables the ceiling.
func New(client *db.Client, maxBytes int) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &Store{client: client, maxBytes: maxBytes}, nil
}

// Migrate creates the blob table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	return s.client.DB().WithContext(ctx).AutoMigrate(&models.StorageBlob{})
}

// Load returns the blob stored under key, or (nil, false, nil) when absent.
func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var row models.StorageBlob
	err := s.client.DB().WithContext(ctx).First(&row, "key = ?", key).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load blob")
	}
	data := make([]byte, len(row.Data))
	copy(data, row.Data)
	return data, true, nil
}

// Save durably writes the blob under key. Writes over the ceiling fail with
// CAPACITY_EXCEEDED before any byte reaches storage; the caller decides
// whether to shed and retry.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return pkgerrors.New(pkgerrors.CodeCapacityExceeded, "blob exceeds storage ceiling").
			WithDetails(map[string]any{"key": key, "size": len(data), "limit": s.maxBytes})
	}

	row := models.StorageBlob{Key: key, Data: data}
	err := s.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: save blob")
	}
	return nil
}

// Reset removes the blobs under the given keys in one transaction, so a
// partial reset never leaves the stores referencing each other's stale
// state. Absent keys are a no-op.
func (s *Store) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Delete(&models.StorageBlob{}, "key IN ?", keys).Error
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: reset blobs")
	}
	return nil
}
