//go:build !integration

package sched

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/adapter"
	"digital-storefront/internal/domain/ports/repository"
	"digital-storefront/internal/usecase"
)

type mockRefundUC struct {
	mu          sync.Mutex
	finalized   []string
	released    []string
	FinalizeErr error
}

var _ usecase.RefundUseCase = (*mockRefundUC)(nil)

func (m *mockRefundUC) Refund(ctx context.Context, req usecase.RefundRequest) (*model.RefundResult, error) {
	return nil, nil
}

func (m *mockRefundUC) Finalize(ctx context.Context, txn *model.PaymentTransaction, token string, refund adapter.RefundResult) (*model.RefundResult, error) {
	if m.FinalizeErr != nil {
		return nil, m.FinalizeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = append(m.finalized, txn.ID+"/"+token)
	return &model.RefundResult{TransactionID: txn.ID, RefundID: refund.ID}, nil
}

func (m *mockRefundUC) ReleaseClaim(ctx context.Context, transactionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, transactionID+"/"+token)
	sort.Strings(m.released)
	return nil
}

// mockTxnRepo only serves ListStaleRefundClaims; the reconciler touches nothing else.
type mockTxnRepo struct {
	repository.PaymentTransactionRepository
	stale  []*model.PaymentTransaction
	cutoff time.Time
}

func (m *mockTxnRepo) ListStaleRefundClaims(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	m.cutoff = olderThan
	return m.stale, nil
}

type mockGateway struct {
	mu      sync.Mutex
	refunds map[string]adapter.RefundResult // transaction id -> refund
	errs    map[string]error
	lookups []string
}

var _ adapter.PaymentGateway = (*mockGateway)(nil)

func (m *mockGateway) Name() string { return "mockpay" }

func (m *mockGateway) CreateRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	return adapter.RefundResult{}, nil
}

func (m *mockGateway) FindRefund(ctx context.Context, paymentReference, transactionID string) (adapter.RefundResult, error) {
	m.mu.Lock()
	m.lookups = append(m.lookups, transactionID)
	m.mu.Unlock()
	if err, ok := m.errs[transactionID]; ok {
		return adapter.RefundResult{}, err
	}
	return m.refunds[transactionID], nil
}

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}
