package repository

import (
	"context"
	"time"

	"digital-storefront/internal/domain/model"
)

// -----------------------------
// Guest purchases
// -----------------------------

type GuestPurchaseRepository interface {
	Save(ctx context.Context, tx Tx, g *model.GuestPurchase) error
	FindBySessionID(ctx context.Context, tx Tx, sessionID string) (*model.GuestPurchase, error)
	ListUnclaimedByEmail(ctx context.Context, tx Tx, email string) ([]*model.GuestPurchase, error)
	// ClaimIfUnclaimed sets the claim columns only when the row is still unclaimed.
	// It returns false when another caller claimed the row first.
	ClaimIfUnclaimed(ctx context.Context, tx Tx, id, userID string, at time.Time) (bool, error)
	DeleteBySessionID(ctx context.Context, tx Tx, sessionID string) (bool, error)
}
