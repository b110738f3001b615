//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/repository"
	"digital-storefront/internal/usecase"
)

type claimFixture struct {
	products *MockProductRepo
	access   *MockAccessRepo
	guests   *MockGuestRepo
	txns     *MockPaymentRepo
	tm       *MockTxManager
	locker   *MockLocker
	now      time.Time
}

func newClaimFixture() *claimFixture {
	return &claimFixture{
		products: NewMockProductRepo(),
		access:   NewMockAccessRepo(),
		guests:   NewMockGuestRepo(),
		txns:     NewMockPaymentRepo(),
		tm:       NewMockTxManager(),
		locker:   NewMockLocker(),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *claimFixture) uc() usecase.ClaimUseCase {
	return usecase.NewClaimUseCase(f.guests, f.txns, f.products, f.access, f.tm, f.locker, time.Second, fixedClock(f.now), newTestLogger())
}

// guestPurchase stores a product, its guest purchase and the backing transaction.
func (f *claimFixture) guestPurchase(t *testing.T, session, email string, status model.TransactionStatus, days *int) *model.Product {
	t.Helper()
	ctx := context.Background()
	p, err := model.NewProduct("", "product-"+session, "Product", 1000, "USD", true, nil, nil, days)
	if err != nil {
		t.Fatalf("NewProduct: %v", err)
	}
	_ = f.products.Save(ctx, nil, p)
	g, err := model.NewGuestPurchase(session, email, p.ID, 1000)
	if err != nil {
		t.Fatalf("NewGuestPurchase: %v", err)
	}
	_ = f.guests.Save(ctx, nil, g)
	_ = f.txns.Save(ctx, nil, &model.PaymentTransaction{
		ID: "txn-" + session, SessionID: session, ProviderReference: "pi_" + session, ProductID: p.ID,
		CustomerEmail: g.CustomerEmail, Amount: 1000, Currency: "USD", Status: status,
	})
	return p
}

func TestClaimUseCase_ClaimGuestPurchases(t *testing.T) {
	ctx := context.Background()

	t.Run("claims completed purchases and is idempotent", func(t *testing.T) {
		f := newClaimFixture()
		p1 := f.guestPurchase(t, "cs_1", "buyer@example.com", model.TransactionStatusCompleted, ptr(30))
		p2 := f.guestPurchase(t, "cs_2", "buyer@example.com", model.TransactionStatusCompleted, nil)
		uc := f.uc()

		res, err := uc.ClaimGuestPurchases(ctx, "user-1", "  Buyer@Example.com ")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.ClaimedCount != 2 || len(res.GrantedProductIDs) != 2 {
			t.Fatalf("expected 2 claims, got %+v", res)
		}
		rec := f.access.Get("user-1", p1.ID)
		if rec == nil || rec.AccessExpiresAt == nil || !rec.AccessExpiresAt.Equal(f.now.Add(30*24*time.Hour)) {
			t.Errorf("expected a 30 day grant on %s, got %+v", p1.ID, rec)
		}
		if rec := f.access.Get("user-1", p2.ID); rec == nil || rec.AccessExpiresAt != nil {
			t.Errorf("expected a perpetual grant on %s, got %+v", p2.ID, rec)
		}

		again, err := uc.ClaimGuestPurchases(ctx, "user-1", "buyer@example.com")
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if again.ClaimedCount != 0 {
			t.Errorf("second run should claim nothing, got %d", again.ClaimedCount)
		}
	})

	t.Run("skips purchases whose transaction is not completed", func(t *testing.T) {
		f := newClaimFixture()
		p := f.guestPurchase(t, "cs_1", "buyer@example.com", model.TransactionStatusPending, nil)

		res, err := f.uc().ClaimGuestPurchases(ctx, "user-1", "buyer@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ClaimedCount != 0 || f.access.Has("user-1", p.ID) {
			t.Fatalf("pending purchase must not be claimed: %+v", res)
		}
		if f.guests.ClaimCalls.Load() != 0 {
			t.Error("no claim update should be attempted for an ineligible purchase")
		}
	})

	t.Run("a dispute landing after the listing blocks the claim", func(t *testing.T) {
		f := newClaimFixture()
		p := f.guestPurchase(t, "cs_1", "buyer@example.com", model.TransactionStatusCompleted, nil)
		f.tm.WithTxFunc = func(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
			// The status changes between ListUnclaimedByEmail and the claim transaction.
			if ok, _ := f.txns.UpdateStatusIf(ctx, nil, "txn-cs_1", model.TransactionStatusCompleted, model.TransactionStatusDisputed); !ok {
				t.Fatal("could not move transaction to disputed")
			}
			return fn(ctx, nil)
		}

		res, err := f.uc().ClaimGuestPurchases(ctx, "user-1", "buyer@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ClaimedCount != 0 || f.access.Has("user-1", p.ID) {
			t.Fatalf("disputed purchase must not be claimed: %+v", res)
		}
		if f.guests.ClaimCalls.Load() != 0 {
			t.Error("the guest row must stay unclaimed")
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		f := newClaimFixture()
		if _, err := f.uc().ClaimGuestPurchases(ctx, "", "a@b.io"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("empty user: expected ErrInvalidArgument, got %v", err)
		}
		if _, err := f.uc().ClaimGuestPurchases(ctx, "user-1", "not-an-email"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("bad email: expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("concurrent claimers grant exactly once", func(t *testing.T) {
		f := newClaimFixture()
		p := f.guestPurchase(t, "cs_1", "shared@example.com", model.TransactionStatusCompleted, nil)
		uc := usecase.NewClaimUseCase(f.guests, f.txns, f.products, f.access, f.tm, nil, 0, fixedClock(f.now), newTestLogger())

		users := []string{"user-a", "user-b", "user-c", "user-d"}
		var wg sync.WaitGroup
		var mu sync.Mutex
		total := 0
		for _, u := range users {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				res, err := uc.ClaimGuestPurchases(ctx, userID, "shared@example.com")
				if err != nil {
					t.Errorf("%s: %v", userID, err)
					return
				}
				mu.Lock()
				total += res.ClaimedCount
				mu.Unlock()
			}(u)
		}
		wg.Wait()

		if total != 1 {
			t.Fatalf("expected exactly one claim across all callers, got %d", total)
		}
		granted := 0
		for _, u := range users {
			if f.access.Has(u, p.ID) {
				granted++
			}
		}
		if granted != 1 {
			t.Fatalf("expected exactly one access record, got %d", granted)
		}
	})

	t.Run("a held sweep lock returns without claiming", func(t *testing.T) {
		f := newClaimFixture()
		f.guestPurchase(t, "cs_1", "buyer@example.com", model.TransactionStatusCompleted, nil)
		f.locker.Hold("claim:user:user-1")

		res, err := f.uc().ClaimGuestPurchases(ctx, "user-1", "buyer@example.com")
		if err != nil {
			t.Fatalf("lock contention must not be an error, got %v", err)
		}
		if res.ClaimedCount != 0 || f.guests.ClaimCalls.Load() != 0 {
			t.Fatalf("expected no claim while another sweep runs, got %+v", res)
		}
	})

	t.Run("a broken lock backend does not block claims", func(t *testing.T) {
		f := newClaimFixture()
		f.guestPurchase(t, "cs_1", "buyer@example.com", model.TransactionStatusCompleted, nil)
		f.locker.ErrOn["claim:user:user-1"] = errors.New("redis down")

		res, err := f.uc().ClaimGuestPurchases(ctx, "user-1", "buyer@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ClaimedCount != 1 {
			t.Fatalf("expected the sweep to proceed without the lock, got %+v", res)
		}
	})
}
