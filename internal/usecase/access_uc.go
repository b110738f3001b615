package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/repository"
	"digital-storefront/internal/infra/logging"
)

// CheckoutCompletion is a paid checkout session reported by the payment flow.
type CheckoutCompletion struct {
	SessionID         string
	ProviderReference string
	ProductID         string
	UserID            *string // nil for a guest checkout
	CustomerEmail     string
	Amount            int64
	Currency          string
}

// AccessUseCase covers the writes that create or remove entitlements outside the refund flow.
type AccessUseCase interface {
	// CompleteCheckout records a paid session and grants access (or parks a guest purchase).
	// Completing the same session twice returns the first transaction.
	CompleteCheckout(ctx context.Context, c CheckoutCompletion) (*model.PaymentTransaction, error)
	GrantAccess(ctx context.Context, userID, productID string, durationDays *int) (*model.AccessRecord, error)
	RevokeAccess(ctx context.Context, userID, productID string) error
	MarkDisputed(ctx context.Context, transactionID string) (*model.PaymentTransaction, error)
}

var _ AccessUseCase = (*accessUC)(nil)

type accessUC struct {
	products repository.ProductRepository
	access   repository.AccessRecordRepository
	guests   repository.GuestPurchaseRepository
	txns     repository.PaymentTransactionRepository
	tm       repository.TransactionManager
	now      func() time.Time
	log      *zerolog.Logger
}

func NewAccessUseCase(
	products repository.ProductRepository,
	access repository.AccessRecordRepository,
	guests repository.GuestPurchaseRepository,
	txns repository.PaymentTransactionRepository,
	tm repository.TransactionManager,
	now func() time.Time,
	logger *zerolog.Logger,
) *accessUC {
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "AccessUC").Logger()
	return &accessUC{products: products, access: access, guests: guests, txns: txns, tm: tm, now: now, log: &l}
}

func (u *accessUC) CompleteCheckout(ctx context.Context, c CheckoutCompletion) (*model.PaymentTransaction, error) {
	if c.SessionID == "" || c.ProviderReference == "" || c.ProductID == "" || c.Amount < 0 {
		return nil, domain.ErrInvalidInput
	}
	email, err := model.NormalizeEmail(c.CustomerEmail)
	if err != nil {
		return nil, err
	}
	if c.UserID != nil && *c.UserID == "" {
		c.UserID = nil
	}

	if existing, err := u.txns.FindBySessionID(ctx, repository.NoTX, c.SessionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	product, err := u.products.FindByID(ctx, repository.NoTX, c.ProductID)
	if err != nil {
		return nil, err
	}

	now := u.now().UTC()
	txn := &model.PaymentTransaction{
		ID:                uuid.NewString(),
		SessionID:         c.SessionID,
		ProviderReference: c.ProviderReference,
		ProductID:         product.ID,
		UserID:            c.UserID,
		CustomerEmail:     email,
		Amount:            c.Amount,
		Currency:          strings.ToUpper(c.Currency),
		Status:            model.TransactionStatusCompleted,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.txns.Save(ctx, tx, txn); err != nil {
			return err
		}
		if txn.IsGuest() {
			g, err := model.NewGuestPurchase(c.SessionID, email, product.ID, c.Amount)
			if err != nil {
				return err
			}
			return u.guests.Save(ctx, tx, g)
		}
		rec, err := model.NewAccessRecord(*txn.UserID, product.ID, now, product.AutoGrantDurationDays)
		if err != nil {
			return err
		}
		return u.access.Upsert(ctx, tx, rec)
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		// A concurrent completion of the same session won.
		return u.txns.FindBySessionID(ctx, repository.NoTX, c.SessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("complete checkout %s: %w", c.SessionID, err)
	}

	logging.With(ctx, u.log).Info().
		Str("transaction_id", txn.ID).
		Str("product_id", product.ID).
		Bool("guest", txn.IsGuest()).
		Msg("checkout completed")
	return txn, nil
}

func (u *accessUC) GrantAccess(ctx context.Context, userID, productID string, durationDays *int) (*model.AccessRecord, error) {
	if userID == "" || productID == "" {
		return nil, domain.ErrInvalidInput
	}
	if _, err := u.products.FindByID(ctx, repository.NoTX, productID); err != nil {
		return nil, err
	}
	rec, err := model.NewAccessRecord(userID, productID, u.now().UTC(), durationDays)
	if err != nil {
		return nil, err
	}
	if err := u.access.Upsert(ctx, repository.NoTX, rec); err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", userID).Str("product_id", productID).Msg("access granted")
	return rec, nil
}

func (u *accessUC) RevokeAccess(ctx context.Context, userID, productID string) error {
	if userID == "" || productID == "" {
		return domain.ErrInvalidInput
	}
	removed, err := u.access.Delete(ctx, repository.NoTX, userID, productID)
	if err != nil {
		return err
	}
	if !removed {
		return domain.ErrNotFound
	}
	u.log.Info().Str("user_id", userID).Str("product_id", productID).Msg("access revoked")
	return nil
}

func (u *accessUC) MarkDisputed(ctx context.Context, transactionID string) (*model.PaymentTransaction, error) {
	txn, err := u.txns.FindByID(ctx, repository.NoTX, transactionID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(txn.Status, model.TransactionStatusDisputed) {
		return nil, fmt.Errorf("cannot dispute a %s transaction: %w", txn.Status, domain.ErrInvalidState)
	}
	ok, err := u.txns.UpdateStatusIf(ctx, repository.NoTX, txn.ID, txn.Status, model.TransactionStatusDisputed)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Status moved underneath us, or a refund holds the claim.
		return nil, fmt.Errorf("transaction %s changed concurrently: %w", txn.ID, domain.ErrInvalidState)
	}
	txn.Status = model.TransactionStatusDisputed
	txn.UpdatedAt = u.now().UTC()
	u.log.Info().Str("transaction_id", txn.ID).Msg("transaction marked disputed")
	return txn, nil
}
