package repository

import (
	"context"
	"time"

	"digital-storefront/internal/domain/model"
)

// -----------------------------
// Payment transactions
// -----------------------------

// RefundUpdate holds the columns written when a refund is committed.
type RefundUpdate struct {
	RefundID       string
	RefundedAmount int64
	Reason         model.RefundReason
	RefundedAt     time.Time
	RefundedBy     string
}

// RefundClaim is written when a refund takes the exclusive claim. Reason and By are kept
// so a stale claim can be finalized later without the original request.
type RefundClaim struct {
	Token  string
	At     time.Time
	Reason model.RefundReason
	By     string
}

type PaymentTransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.PaymentTransaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentTransaction, error)
	FindBySessionID(ctx context.Context, tx Tx, sessionID string) (*model.PaymentTransaction, error)

	// UpdateStatusIf moves the transaction from -> to and reports whether the row matched.
	UpdateStatusIf(ctx context.Context, tx Tx, id string, from, to model.TransactionStatus) (bool, error)

	// ClaimRefund takes the exclusive refund claim. It only succeeds while the transaction
	// is completed and no other claim is held.
	ClaimRefund(ctx context.Context, tx Tx, id string, claim RefundClaim) (bool, error)
	// ReleaseRefundClaim drops the claim (and the reason recorded with it) if token still owns it.
	ReleaseRefundClaim(ctx context.Context, tx Tx, id, token string) error
	// MarkRefunded writes the refund columns, moves completed -> refunded and clears the claim,
	// provided token still owns the claim.
	MarkRefunded(ctx context.Context, tx Tx, id, token string, upd RefundUpdate) (bool, error)
	// ListStaleRefundClaims returns completed transactions whose claim is older than olderThan.
	ListStaleRefundClaims(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error)
}
