package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/adapter"
	"digital-storefront/internal/domain/ports/repository"
	"digital-storefront/internal/infra/logging"
	"digital-storefront/internal/infra/metrics"
)

// ClaimUseCase moves guest purchases onto a signed-in account.
type ClaimUseCase interface {
	// ClaimGuestPurchases grants userID access to every unclaimed, completed guest purchase made
	// with email. Running it again claims nothing new.
	ClaimGuestPurchases(ctx context.Context, userID, email string) (*model.ClaimResult, error)
}

var _ ClaimUseCase = (*claimUC)(nil)

// errLostRace rolls back a claim tx when another caller claimed the row first.
var errLostRace = errors.New("guest purchase already claimed")

// errIneligible rolls back a claim tx when the purchase's transaction is not completed.
var errIneligible = errors.New("guest purchase not eligible")

type claimUC struct {
	guests   repository.GuestPurchaseRepository
	txns     repository.PaymentTransactionRepository
	products repository.ProductRepository
	access   repository.AccessRecordRepository
	tm       repository.TransactionManager
	locker   adapter.Locker
	lockTTL  time.Duration
	now      func() time.Time
	log      *zerolog.Logger
}

// NewClaimUseCase builds the reconciler. locker may be nil; now may be nil.
func NewClaimUseCase(
	guests repository.GuestPurchaseRepository,
	txns repository.PaymentTransactionRepository,
	products repository.ProductRepository,
	access repository.AccessRecordRepository,
	tm repository.TransactionManager,
	locker adapter.Locker,
	lockTTL time.Duration,
	now func() time.Time,
	logger *zerolog.Logger,
) *claimUC {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "ClaimUC").Logger()
	return &claimUC{
		guests:   guests,
		txns:     txns,
		products: products,
		access:   access,
		tm:       tm,
		locker:   locker,
		lockTTL:  lockTTL,
		now:      now,
		log:      &l,
	}
}

func (u *claimUC) ClaimGuestPurchases(ctx context.Context, userID, email string) (*model.ClaimResult, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	norm, err := model.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	log := logging.With(ctx, u.log).With().Str("user_id", userID).Str("email", logging.Redact(norm, false)).Logger()
	res := &model.ClaimResult{GrantedProductIDs: []string{}}

	// The lock only collapses concurrent sweeps for one user; ClaimIfUnclaimed is what keeps
	// two claimers from both granting.
	if u.locker != nil {
		key := "claim:user:" + userID
		token, lerr := u.locker.TryLock(ctx, key, u.lockTTL)
		switch {
		case lerr == nil:
			defer func() {
				if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					log.Warn().Err(err).Msg("claim lock unlock failed")
				}
			}()
		case errors.Is(lerr, adapter.ErrLockHeld):
			log.Debug().Msg("claim sweep already running for user")
			return res, nil
		default:
			log.Warn().Err(lerr).Msg("claim lock unavailable, sweeping without it")
		}
	}

	pending, err := u.guests.ListUnclaimedByEmail(ctx, repository.NoTX, norm)
	if err != nil {
		return nil, fmt.Errorf("list unclaimed purchases: %w", err)
	}

	var errs []error
	for _, g := range pending {
		granted, err := u.claimOne(ctx, userID, g)
		switch {
		case err == nil && granted:
			metrics.IncGuestClaim("claimed")
			res.ClaimedCount++
			res.GrantedProductIDs = append(res.GrantedProductIDs, g.ProductID)
		case err == nil:
			metrics.IncGuestClaim("ineligible")
		case errors.Is(err, errLostRace):
			metrics.IncGuestClaim("lost_race")
			log.Debug().Str("session_id", g.SessionID).Msg("guest purchase claimed concurrently")
		default:
			metrics.IncGuestClaim("error")
			log.Error().Err(err).Str("session_id", g.SessionID).Msg("claim guest purchase failed")
			errs = append(errs, err)
		}
	}

	log.Info().Int("claimed", res.ClaimedCount).Int("candidates", len(pending)).Msg("guest purchases reconciled")
	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}

// claimOne returns (false, nil) when the purchase is not eligible yet.
func (u *claimUC) claimOne(ctx context.Context, userID string, g *model.GuestPurchase) (bool, error) {
	product, err := u.products.FindByID(ctx, repository.NoTX, g.ProductID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load product %s: %w", g.ProductID, err)
	}

	now := u.now().UTC()
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// The transaction row stays locked until commit, so a refund or dispute either lands
		// before this read or waits for the grant and then revokes it.
		txn, err := u.txns.FindBySessionID(ctx, tx, g.SessionID)
		if errors.Is(err, domain.ErrNotFound) {
			return errIneligible
		}
		if err != nil {
			return fmt.Errorf("load transaction %s: %w", g.SessionID, err)
		}
		if txn.Status != model.TransactionStatusCompleted {
			return errIneligible
		}

		ok, err := u.guests.ClaimIfUnclaimed(ctx, tx, g.ID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		rec, err := model.NewAccessRecord(userID, g.ProductID, now, product.AutoGrantDurationDays)
		if err != nil {
			return err
		}
		return u.access.Upsert(ctx, tx, rec)
	})
	if errors.Is(err, errIneligible) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
