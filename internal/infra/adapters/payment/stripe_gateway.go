package payment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

const metaTransactionID = "transaction_id"

// StripeGateway implements adapter.PaymentGateway on the Stripe Refunds API.
type StripeGateway struct {
	sc  *client.API
	log *zerolog.Logger
}

// NewStripeGateway builds a gateway with its own client.API so the process never touches
// the package-level stripe.Key. backends may be nil for the default Stripe endpoints.
func NewStripeGateway(secretKey string, backends *stripe.Backends, logger *zerolog.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	l := logger.With().Str("component", "StripeGateway").Logger()
	return &StripeGateway{sc: client.New(secretKey, backends), log: &l}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	if req.PaymentReference == "" || req.Amount <= 0 {
		return adapter.RefundResult{}, domain.ErrInvalidArgument
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentReference),
		Amount:        stripe.Int64(req.Amount),
		Reason:        stripe.String(stripeReason(req.Reason)),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	if req.TransactionID != "" {
		params.AddMetadata(metaTransactionID, req.TransactionID)
	}
	if req.Note != "" {
		params.AddMetadata("note", req.Note)
	}

	r, err := g.sc.Refunds.New(params)
	if err != nil {
		g.log.Warn().Err(err).Str("transaction_id", req.TransactionID).Msg("stripe refund rejected")
		return adapter.RefundResult{}, g.providerError(err)
	}
	g.log.Info().
		Str("transaction_id", req.TransactionID).
		Str("refund_id", r.ID).
		Str("status", string(r.Status)).
		Int64("amount", r.Amount).
		Msg("stripe refund created")
	return toResult(r), nil
}

// FindRefund walks the refunds of a PaymentIntent and returns the first one tagged with transactionID.
func (g *StripeGateway) FindRefund(ctx context.Context, paymentReference, transactionID string) (adapter.RefundResult, error) {
	if paymentReference == "" {
		return adapter.RefundResult{}, domain.ErrInvalidArgument
	}
	params := &stripe.RefundListParams{PaymentIntent: stripe.String(paymentReference)}
	params.Context = ctx

	it := g.sc.Refunds.List(params)
	for it.Next() {
		r := it.Refund()
		if r.Metadata[metaTransactionID] == transactionID {
			return toResult(r), nil
		}
	}
	if err := it.Err(); err != nil {
		return adapter.RefundResult{}, g.providerError(err)
	}
	return adapter.RefundResult{}, domain.ErrNotFound
}

func (g *StripeGateway) providerError(err error) error {
	pe := &domain.ProviderError{Provider: g.Name(), Message: err.Error(), Err: err}
	var se *stripe.Error
	if errors.As(err, &se) {
		pe.Code = string(se.Code)
		pe.Message = se.Msg
		pe.HTTPStatus = se.HTTPStatusCode
		if pe.Code == "" {
			pe.Code = string(se.Type)
		}
	}
	return pe
}

func stripeReason(r model.RefundReason) string {
	switch r {
	case model.RefundReasonDuplicate:
		return string(stripe.RefundReasonDuplicate)
	case model.RefundReasonFraudulent:
		return string(stripe.RefundReasonFraudulent)
	default:
		return string(stripe.RefundReasonRequestedByCustomer)
	}
}

func toResult(r *stripe.Refund) adapter.RefundResult {
	return adapter.RefundResult{
		ID:           r.ID,
		Status:       string(r.Status),
		RefundAmount: r.Amount,
		RefundTime:   time.Unix(r.Created, 0).UTC(),
	}
}
