package repository

import (
	"context"

	"digital-storefront/internal/domain/model"
)

// -----------------------------
// Access records
// -----------------------------

type AccessRecordRepository interface {
	// Upsert creates the (user, product) grant or refreshes the existing one in place.
	// The stored record is written back into rec.
	Upsert(ctx context.Context, tx Tx, rec *model.AccessRecord) error
	FindByUserAndProduct(ctx context.Context, tx Tx, userID, productID string) (*model.AccessRecord, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.AccessRecord, error)
	// Delete removes the (user, product) grant and reports whether a row existed.
	Delete(ctx context.Context, tx Tx, userID, productID string) (bool, error)
}
