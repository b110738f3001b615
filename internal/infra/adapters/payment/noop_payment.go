package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for dev mode and tests. Refunds are keyed by
// idempotency key, so a replayed request returns the original refund.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	byKey   map[string]adapter.RefundResult
	byTxn   map[string]adapter.RefundResult // payment reference + transaction id
	charged map[string]int64                // payment reference -> refunded so far
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		byKey:   make(map[string]adapter.RefundResult),
		byTxn:   make(map[string]adapter.RefundResult),
		charged: make(map[string]int64),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next() string {
	g.seq++
	return fmt.Sprintf("re_noop_%d", g.seq)
}

func (g *NoopPaymentGateway) CreateRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	if req.PaymentReference == "" || req.Amount <= 0 {
		return adapter.RefundResult{}, domain.ErrInvalidArgument
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if req.IdempotencyKey != "" {
		if res, ok := g.byKey[req.IdempotencyKey]; ok {
			return res, nil
		}
	}
	res := adapter.RefundResult{
		ID:           g.next(),
		Status:       "succeeded",
		RefundAmount: req.Amount,
		RefundTime:   time.Now().UTC(),
	}
	g.charged[req.PaymentReference] += req.Amount
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = res
	}
	if req.TransactionID != "" {
		g.byTxn[req.PaymentReference+"/"+req.TransactionID] = res
	}
	return res, nil
}

func (g *NoopPaymentGateway) FindRefund(ctx context.Context, paymentReference, transactionID string) (adapter.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.byTxn[paymentReference+"/"+transactionID]
	if !ok {
		return adapter.RefundResult{}, domain.ErrNotFound
	}
	return res, nil
}

// Refunded returns the total refunded against a payment reference.
func (g *NoopPaymentGateway) Refunded(paymentReference string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charged[paymentReference]
}
