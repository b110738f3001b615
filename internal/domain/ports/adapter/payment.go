package adapter

import (
	"context"
	"time"

	"digital-storefront/internal/domain/model"
)

// RefundRequest is a provider-agnostic refund instruction.
type RefundRequest struct {
	PaymentReference string // provider payment id (PaymentIntent for Stripe)
	Amount           int64  // minor units
	Reason           model.RefundReason
	IdempotencyKey   string
	TransactionID    string // echoed into provider metadata so FindRefund can match it
	Note             string // sanitized operator note, sent as metadata
}

// RefundResult captures a minimal, provider-agnostic result of a refund request.
type RefundResult struct {
	ID           string    // provider refund id
	Status       string    // provider status e.g. pending / succeeded
	RefundAmount int64     // in minor units
	RefundTime   time.Time // provider timestamp if available
}

// Succeeded reports whether the provider considers money to have moved (or to be moving).
func (r RefundResult) Succeeded() bool {
	switch r.Status {
	case "succeeded", "pending", "requires_action":
		return true
	}
	return false
}

// PaymentGateway is the hex port for payment providers.
// Provider-side rejections are returned as *domain.ProviderError.
type PaymentGateway interface {
	Name() string

	// CreateRefund refunds amount of the referenced payment.
	CreateRefund(ctx context.Context, req RefundRequest) (RefundResult, error)
	// FindRefund looks up a refund previously created for transactionID on the referenced payment.
	// It returns domain.ErrNotFound when the provider has no such refund.
	FindRefund(ctx context.Context, paymentReference, transactionID string) (RefundResult, error)
}
