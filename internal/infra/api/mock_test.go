//go:build !integration

package api

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/adapter"
	"digital-storefront/internal/usecase"
)

const (
	testJWTSecret = "test-jwt-secret-please-change"
	testAdminKey  = "test-admin-key"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// signToken issues a user token; a non-empty email is marked verified.
func signToken(t *testing.T, secret, sub, email string) string {
	t.Helper()
	return signClaims(t, secret, sub, UserClaims{Email: email, EmailVerified: email != ""})
}

func signClaims(t *testing.T, secret, sub string, claims UserClaims) string {
	t.Helper()
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

type mockEntitlementUC struct {
	ResolveBySlugFunc func(ctx context.Context, id model.Identity, slug string) (*model.AccessDecision, error)
	ListGrantsFunc    func(ctx context.Context, userID string) ([]*model.AccessRecord, error)
}

var _ usecase.EntitlementUseCase = (*mockEntitlementUC)(nil)

func (m *mockEntitlementUC) Resolve(ctx context.Context, id model.Identity, p *model.Product) (*model.AccessDecision, error) {
	return model.Denied(p, model.DenialNoAccess), nil
}

func (m *mockEntitlementUC) ResolveBySlug(ctx context.Context, id model.Identity, slug string) (*model.AccessDecision, error) {
	return m.ResolveBySlugFunc(ctx, id, slug)
}

func (m *mockEntitlementUC) ListGrants(ctx context.Context, userID string) ([]*model.AccessRecord, error) {
	return m.ListGrantsFunc(ctx, userID)
}

type mockClaimUC struct {
	ClaimFunc func(ctx context.Context, userID, email string) (*model.ClaimResult, error)
}

func (m *mockClaimUC) ClaimGuestPurchases(ctx context.Context, userID, email string) (*model.ClaimResult, error) {
	return m.ClaimFunc(ctx, userID, email)
}

type mockRefundUC struct {
	RefundFunc func(ctx context.Context, req usecase.RefundRequest) (*model.RefundResult, error)
}

func (m *mockRefundUC) Refund(ctx context.Context, req usecase.RefundRequest) (*model.RefundResult, error) {
	return m.RefundFunc(ctx, req)
}

func (m *mockRefundUC) Finalize(ctx context.Context, txn *model.PaymentTransaction, token string, refund adapter.RefundResult) (*model.RefundResult, error) {
	return nil, nil
}

func (m *mockRefundUC) ReleaseClaim(ctx context.Context, transactionID, token string) error {
	return nil
}

type mockAccessUC struct {
	CompleteCheckoutFunc func(ctx context.Context, c usecase.CheckoutCompletion) (*model.PaymentTransaction, error)
	GrantFunc            func(ctx context.Context, userID, productID string, durationDays *int) (*model.AccessRecord, error)
	RevokeFunc           func(ctx context.Context, userID, productID string) error
	MarkDisputedFunc     func(ctx context.Context, transactionID string) (*model.PaymentTransaction, error)
}

func (m *mockAccessUC) CompleteCheckout(ctx context.Context, c usecase.CheckoutCompletion) (*model.PaymentTransaction, error) {
	return m.CompleteCheckoutFunc(ctx, c)
}

func (m *mockAccessUC) GrantAccess(ctx context.Context, userID, productID string, durationDays *int) (*model.AccessRecord, error) {
	return m.GrantFunc(ctx, userID, productID, durationDays)
}

func (m *mockAccessUC) RevokeAccess(ctx context.Context, userID, productID string) error {
	return m.RevokeFunc(ctx, userID, productID)
}

func (m *mockAccessUC) MarkDisputed(ctx context.Context, transactionID string) (*model.PaymentTransaction, error) {
	return m.MarkDisputedFunc(ctx, transactionID)
}

type mockLimiter struct {
	hits map[string]int
	Err  error
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	if m.hits == nil {
		m.hits = map[string]int{}
	}
	m.hits[key]++
	return m.hits[key] <= limit, nil
}
