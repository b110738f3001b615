package model

import (
	"time"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"   // checkout session opened, not paid yet
	TransactionStatusCompleted TransactionStatus = "completed" // paid; entitlement granted
	TransactionStatusRefunded  TransactionStatus = "refunded"  // terminal
	TransactionStatusDisputed  TransactionStatus = "disputed"  // terminal
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// legalTransitions lists the only allowed status moves. Refunded and disputed are terminal.
var legalTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:   {TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusCompleted: {TransactionStatusRefunded, TransactionStatusDisputed},
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to TransactionStatus) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusRefunded,
		TransactionStatusDisputed, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// PaymentTransaction records the money side of a purchase.
type PaymentTransaction struct {
	ID                string
	SessionID         string // checkout session id, shared with GuestPurchase.SessionID
	ProviderReference string // provider payment reference (Stripe PaymentIntent id)
	ProductID         string
	UserID            *string // nil = guest purchase
	CustomerEmail     string
	Amount            int64 // minor units
	Currency          string
	Status            TransactionStatus

	RefundedAmount int64
	RefundID       *string
	RefundReason   *RefundReason
	RefundedAt     *time.Time
	RefundedBy     *string

	// Exclusive refund claim; set while a refund is being executed.
	RefundClaimToken *string
	RefundClaimedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *PaymentTransaction) IsGuest() bool { return t.UserID == nil || *t.UserID == "" }

// RemainingRefundable is the amount that has not been refunded yet.
func (t *PaymentTransaction) RemainingRefundable() int64 {
	r := t.Amount - t.RefundedAmount
	if r < 0 {
		return 0
	}
	return r
}

type RefundReason string

const (
	RefundReasonRequestedByCustomer RefundReason = "requested_by_customer"
	RefundReasonDuplicate           RefundReason = "duplicate"
	RefundReasonFraudulent          RefundReason = "fraudulent"
)

func (r RefundReason) Valid() bool {
	switch r {
	case RefundReasonRequestedByCustomer, RefundReasonDuplicate, RefundReasonFraudulent:
		return true
	}
	return false
}

// RevokedKind names what a refund removed.
type RevokedKind string

const (
	RevokedAccessRecord  RevokedKind = "access_record"
	RevokedGuestPurchase RevokedKind = "guest_purchase"
	RevokedNothing       RevokedKind = "none"
)

// RefundResult is returned to callers after a successful refund.
type RefundResult struct {
	TransactionID string
	RefundID      string
	Amount        int64
	Currency      string
	Status        string // provider refund status
	RefundedAt    time.Time
	Revoked       RevokedKind
}
