package payment

import (
	"context"

	"digital-storefront/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.PaymentGateway = (*limitedGateway)(nil)

// limitedGateway caps concurrent provider calls so a refund burst cannot exhaust the
// provider's rate limit for the whole account.
type limitedGateway struct {
	inner adapter.PaymentGateway
	sem   chan struct{}
}

func NewLimitedGateway(inner adapter.PaymentGateway, maxConcurrent int) adapter.PaymentGateway {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedGateway{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedGateway) Name() string { return l.inner.Name() }

func (l *limitedGateway) CreateRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.RefundResult{}, err
	}
	defer l.release()
	return l.inner.CreateRefund(ctx, req)
}

func (l *limitedGateway) FindRefund(ctx context.Context, paymentReference, transactionID string) (adapter.RefundResult, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.RefundResult{}, err
	}
	defer l.release()
	return l.inner.FindRefund(ctx, paymentReference, transactionID)
}

func (l *limitedGateway) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedGateway) release() { <-l.sem }
