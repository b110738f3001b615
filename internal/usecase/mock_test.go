//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/adapter"
	"digital-storefront/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func ptr[T any](v T) *T { return &v }

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	NameVal string
	Delay   time.Duration // widens race windows in concurrency tests

	CreateRefundFunc func(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error)
	FindRefundFunc   func(ctx context.Context, paymentReference, transactionID string) (adapter.RefundResult, error)

	createCalls atomic.Int32
	mu          sync.Mutex
	Requests    []adapter.RefundRequest
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string {
	if m.NameVal == "" {
		return "mockpay"
	}
	return m.NameVal
}

func (m *MockPaymentGateway) CreateRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	m.createCalls.Add(1)
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, req)
	}
	return adapter.RefundResult{ID: "re_" + req.IdempotencyKey, Status: "succeeded", RefundAmount: req.Amount, RefundTime: time.Now().UTC()}, nil
}

func (m *MockPaymentGateway) FindRefund(ctx context.Context, paymentReference, transactionID string) (adapter.RefundResult, error) {
	if m.FindRefundFunc != nil {
		return m.FindRefundFunc(ctx, paymentReference, transactionID)
	}
	return adapter.RefundResult{}, domain.ErrNotFound
}

// CreateCalls is the number of refunds sent to the provider.
func (m *MockPaymentGateway) CreateCalls() int { return int(m.createCalls.Load()) }

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", adapter.ErrLockHeld
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// Hold marks key as owned by someone else.
func (l *MockLocker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "other-owner"
}

// =============================
// Repositories
// =============================

// ---- Mock ProductRepository ----

type MockProductRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.Product
	bySlug map[string]string

	FindBySlugErr error
}

var _ repository.ProductRepository = (*MockProductRepo)(nil)

func NewMockProductRepo() *MockProductRepo {
	return &MockProductRepo{byID: map[string]*model.Product{}, bySlug: map[string]string{}}
}

func (m *MockProductRepo) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	m.bySlug[p.Slug] = p.ID
	return nil
}

func (m *MockProductRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockProductRepo) FindBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.Product, error) {
	if m.FindBySlugErr != nil {
		return nil, m.FindBySlugErr
	}
	m.mu.Lock()
	id, ok := m.bySlug[slug]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.FindByID(ctx, tx, id)
}

// ---- Mock AccessRecordRepository ----

type MockAccessRepo struct {
	mu   sync.Mutex
	data map[string]*model.AccessRecord // user|product

	FindErr   error
	DeleteErr error
}

var _ repository.AccessRecordRepository = (*MockAccessRepo)(nil)

func NewMockAccessRepo() *MockAccessRepo {
	return &MockAccessRepo{data: map[string]*model.AccessRecord{}}
}

func accessKey(userID, productID string) string { return userID + "|" + productID }

func (m *MockAccessRepo) Upsert(ctx context.Context, tx repository.Tx, rec *model.AccessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := accessKey(rec.UserID, rec.ProductID)
	if old, ok := m.data[k]; ok {
		rec.ID = old.ID
	}
	cp := *rec
	m.data[k] = &cp
	return nil
}

func (m *MockAccessRepo) FindByUserAndProduct(ctx context.Context, tx repository.Tx, userID, productID string) (*model.AccessRecord, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[accessKey(userID, productID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockAccessRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.AccessRecord, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AccessRecord
	for _, r := range m.data {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (m *MockAccessRepo) Delete(ctx context.Context, tx repository.Tx, userID, productID string) (bool, error) {
	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := accessKey(userID, productID)
	_, ok := m.data[k]
	delete(m.data, k)
	return ok, nil
}

func (m *MockAccessRepo) Has(userID, productID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[accessKey(userID, productID)]
	return ok
}

func (m *MockAccessRepo) Get(userID, productID string) *model.AccessRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[accessKey(userID, productID)]
}

// ---- Mock GuestPurchaseRepository ----

type MockGuestRepo struct {
	mu   sync.Mutex
	data map[string]*model.GuestPurchase // by id

	ClaimCalls atomic.Int32
}

var _ repository.GuestPurchaseRepository = (*MockGuestRepo)(nil)

func NewMockGuestRepo() *MockGuestRepo {
	return &MockGuestRepo{data: map[string]*model.GuestPurchase{}}
}

func (m *MockGuestRepo) Save(ctx context.Context, tx repository.Tx, g *model.GuestPurchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.data {
		if x.SessionID == g.SessionID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *g
	m.data[g.ID] = &cp
	return nil
}

func (m *MockGuestRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (*model.GuestPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.data {
		if g.SessionID == sessionID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockGuestRepo) ListUnclaimedByEmail(ctx context.Context, tx repository.Tx, email string) ([]*model.GuestPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.GuestPurchase
	for _, g := range m.data {
		if g.CustomerEmail == email && g.ClaimedByUserID == nil {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (m *MockGuestRepo) ClaimIfUnclaimed(ctx context.Context, tx repository.Tx, id, userID string, at time.Time) (bool, error) {
	m.ClaimCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.data[id]
	if !ok || g.ClaimedByUserID != nil {
		return false, nil
	}
	g.ClaimedByUserID = &userID
	g.ClaimedAt = &at
	return true, nil
}

func (m *MockGuestRepo) DeleteBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, g := range m.data {
		if g.SessionID == sessionID {
			delete(m.data, id)
			return true, nil
		}
	}
	return false, nil
}

// ---- Mock PaymentTransactionRepository ----

// MockPaymentRepo applies the same conditions as the SQL statements under one mutex.
type MockPaymentRepo struct {
	mu   sync.Mutex
	data map[string]*model.PaymentTransaction

	MarkRefundedCalls atomic.Int32
}

var _ repository.PaymentTransactionRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.PaymentTransaction{}}
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.data {
		if x.SessionID == t.SessionID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *t
	m.data[t.ID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockPaymentRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.data {
		if t.SessionID == sessionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, id string, from, to model.TransactionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[id]
	if !ok || t.Status != from || t.RefundClaimToken != nil {
		return false, nil
	}
	t.Status = to
	return true, nil
}

func (m *MockPaymentRepo) ClaimRefund(ctx context.Context, tx repository.Tx, id string, claim repository.RefundClaim) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[id]
	if !ok || t.Status != model.TransactionStatusCompleted || t.RefundClaimToken != nil {
		return false, nil
	}
	t.RefundClaimToken = ptr(claim.Token)
	t.RefundClaimedAt = ptr(claim.At)
	t.RefundReason = ptr(claim.Reason)
	if claim.By != "" {
		t.RefundedBy = ptr(claim.By)
	}
	return true, nil
}

func (m *MockPaymentRepo) ReleaseRefundClaim(ctx context.Context, tx repository.Tx, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[id]
	if !ok || t.RefundClaimToken == nil || *t.RefundClaimToken != token || t.Status != model.TransactionStatusCompleted {
		return nil
	}
	t.RefundClaimToken, t.RefundClaimedAt, t.RefundReason, t.RefundedBy = nil, nil, nil, nil
	return nil
}

func (m *MockPaymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id, token string, upd repository.RefundUpdate) (bool, error) {
	m.MarkRefundedCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[id]
	if !ok || t.RefundClaimToken == nil || *t.RefundClaimToken != token || t.Status != model.TransactionStatusCompleted {
		return false, nil
	}
	t.Status = model.TransactionStatusRefunded
	t.RefundedAmount += upd.RefundedAmount
	t.RefundID = ptr(upd.RefundID)
	t.RefundReason = ptr(upd.Reason)
	t.RefundedAt = ptr(upd.RefundedAt)
	if upd.RefundedBy != "" {
		t.RefundedBy = ptr(upd.RefundedBy)
	}
	t.RefundClaimToken, t.RefundClaimedAt = nil, nil
	return true, nil
}

func (m *MockPaymentRepo) ListStaleRefundClaims(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentTransaction
	for _, t := range m.data {
		if t.Status == model.TransactionStatusCompleted && t.RefundClaimToken != nil && t.RefundClaimedAt.Before(olderThan) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RefundClaimedAt.Before(*out[j].RefundClaimedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns a copy of the stored row.
func (m *MockPaymentRepo) Get(id string) *model.PaymentTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.data[id]
	return &cp
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
	Calls      atomic.Int32
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.Calls.Add(1)
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
