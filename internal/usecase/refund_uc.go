package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v4"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/adapter"
	"digital-storefront/internal/domain/ports/repository"
	"digital-storefront/internal/infra/logging"
	"digital-storefront/internal/infra/metrics"
)

const maxRefundNoteLen = 500

// RefundRequest is an operator's instruction to refund a transaction.
type RefundRequest struct {
	TransactionID string
	Amount        *int64 // nil refunds the remaining balance
	Reason        model.RefundReason
	Note          string
	AdminID       string
}

// RefundConfig tunes the finalize step.
type RefundConfig struct {
	FinalizeAttempts int
	FinalizeTimeout  time.Duration
	ProviderTimeout  time.Duration
	RetryBackoff     time.Duration
}

// RefundUseCase refunds a transaction with the provider and revokes what it bought.
type RefundUseCase interface {
	Refund(ctx context.Context, req RefundRequest) (*model.RefundResult, error)
	// Finalize commits a refund the provider already accepted: the status write and the access
	// revocation happen in one transaction, conditional on token still owning the claim.
	Finalize(ctx context.Context, txn *model.PaymentTransaction, token string, refund adapter.RefundResult) (*model.RefundResult, error)
	// ReleaseClaim gives up a claim whose refund never reached the provider.
	ReleaseClaim(ctx context.Context, transactionID, token string) error
}

var _ RefundUseCase = (*refundUC)(nil)

type refundUC struct {
	txns    repository.PaymentTransactionRepository
	access  repository.AccessRecordRepository
	guests  repository.GuestPurchaseRepository
	tm      repository.TransactionManager
	gateway adapter.PaymentGateway
	policy  *bluemonday.Policy
	cfg     RefundConfig
	now     func() time.Time
	log     *zerolog.Logger
}

func NewRefundUseCase(
	txns repository.PaymentTransactionRepository,
	access repository.AccessRecordRepository,
	guests repository.GuestPurchaseRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	cfg RefundConfig,
	now func() time.Time,
	logger *zerolog.Logger,
) *refundUC {
	if cfg.FinalizeAttempts <= 0 {
		cfg.FinalizeAttempts = 3
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "RefundUC").Logger()
	return &refundUC{
		txns:    txns,
		access:  access,
		guests:  guests,
		tm:      tm,
		gateway: gateway,
		policy:  bluemonday.StrictPolicy(),
		cfg:     cfg,
		now:     now,
		log:     &l,
	}
}

func (u *refundUC) Refund(ctx context.Context, req RefundRequest) (res *model.RefundResult, err error) {
	defer func() {
		if err != nil {
			metrics.IncRefund(strings.ToLower(domain.Code(err)))
		}
	}()
	ctx = logging.WithTransactionID(ctx, req.TransactionID)
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "RefundUC.Refund")()

	if req.TransactionID == "" {
		return nil, domain.ErrInvalidInput
	}
	txn, err := u.txns.FindByID(ctx, repository.NoTX, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != model.TransactionStatusCompleted {
		return nil, fmt.Errorf("only completed transactions can be refunded (status %s): %w", txn.Status, domain.ErrInvalidState)
	}
	if !req.Reason.Valid() {
		return nil, fmt.Errorf("unknown refund reason %q: %w", req.Reason, domain.ErrInvalidInput)
	}
	amount := txn.RemainingRefundable()
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 {
		return nil, fmt.Errorf("refund amount must be positive: %w", domain.ErrInvalidInput)
	}
	if amount > txn.RemainingRefundable() {
		return nil, fmt.Errorf("refund amount exceeds remaining refundable balance (%d > %d): %w",
			amount, txn.RemainingRefundable(), domain.ErrInvalidInput)
	}
	if txn.RefundClaimToken != nil {
		return nil, domain.ErrRefundInProgress
	}
	note := u.sanitizeNote(req.Note)

	token := ulid.Make().String()
	ok, err := u.txns.ClaimRefund(ctx, repository.NoTX, txn.ID, repository.RefundClaim{
		Token:  token,
		At:     u.now().UTC(),
		Reason: req.Reason,
		By:     req.AdminID,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, rerr := u.txns.FindByID(ctx, repository.NoTX, txn.ID)
		if rerr == nil && cur.Status != model.TransactionStatusCompleted {
			return nil, fmt.Errorf("transaction is %s: %w", cur.Status, domain.ErrInvalidState)
		}
		return nil, domain.ErrRefundInProgress
	}
	txn.RefundClaimToken = &token
	txn.RefundReason = &req.Reason
	txn.RefundedBy = &req.AdminID

	// The claim is released on every path where the provider did not accept the refund.
	accepted := false
	defer func() {
		if accepted {
			return
		}
		if rerr := u.ReleaseClaim(ctx, txn.ID, token); rerr != nil {
			log.Error().Err(rerr).Msg("release refund claim failed; sweeper will retry")
		}
	}()

	// The provider call is not tied to the caller's connection: once sent, its outcome must be
	// recorded even if the client goes away.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.ProviderTimeout)
	refund, err := u.gateway.CreateRefund(pctx, adapter.RefundRequest{
		PaymentReference: txn.ProviderReference,
		Amount:           amount,
		Reason:           req.Reason,
		IdempotencyKey:   token,
		TransactionID:    txn.ID,
		Note:             note,
	})
	cancel()
	if err != nil {
		var pe *domain.ProviderError
		if !errors.As(err, &pe) {
			pe = &domain.ProviderError{Provider: u.gateway.Name(), Message: err.Error(), Err: err}
		}
		log.Warn().Err(err).Int64("amount", amount).Msg("provider rejected refund")
		return nil, pe
	}
	if !refund.Succeeded() {
		log.Warn().Str("refund_id", refund.ID).Str("status", refund.Status).Int64("amount", amount).Msg("provider did not complete refund")
		return nil, &domain.ProviderError{
			Provider: u.gateway.Name(),
			Code:     refund.Status,
			Message:  fmt.Sprintf("refund %s ended with status %s", refund.ID, refund.Status),
		}
	}
	accepted = true
	if refund.RefundAmount <= 0 {
		refund.RefundAmount = amount
	}

	log.Info().Str("refund_id", refund.ID).Int64("amount", refund.RefundAmount).Str("status", refund.Status).Msg("provider accepted refund")
	return u.Finalize(ctx, txn, token, refund)
}

func (u *refundUC) Finalize(ctx context.Context, txn *model.PaymentTransaction, token string, refund adapter.RefundResult) (*model.RefundResult, error) {
	log := logging.With(logging.WithTransactionID(ctx, txn.ID), u.log)
	base := context.WithoutCancel(ctx)

	reason := model.RefundReasonRequestedByCustomer
	if txn.RefundReason != nil && txn.RefundReason.Valid() {
		reason = *txn.RefundReason
	}
	by := ""
	if txn.RefundedBy != nil {
		by = *txn.RefundedBy
	}
	refundedAt := refund.RefundTime
	if refundedAt.IsZero() {
		refundedAt = u.now()
	}
	upd := repository.RefundUpdate{
		RefundID:       refund.ID,
		RefundedAmount: refund.RefundAmount,
		Reason:         reason,
		RefundedAt:     refundedAt.UTC(),
		RefundedBy:     by,
	}

	var revoked model.RevokedKind
	var err error
	for attempt := 1; attempt <= u.cfg.FinalizeAttempts; attempt++ {
		fctx, cancel := context.WithTimeout(base, u.cfg.FinalizeTimeout)
		revoked, err = u.commitRefund(fctx, txn, token, upd)
		cancel()
		if err == nil || errors.Is(err, domain.ErrInvalidState) {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("refund finalize failed")
		if attempt < u.cfg.FinalizeAttempts {
			time.Sleep(time.Duration(attempt) * u.cfg.RetryBackoff)
		}
	}
	if err != nil {
		log.Error().Err(err).Str("refund_id", refund.ID).Msg("refund accepted by provider but not recorded; claim left for the sweeper")
		if errors.Is(err, domain.ErrInvalidState) {
			return nil, err
		}
		return nil, fmt.Errorf("record refund %s: %w", refund.ID, domain.ErrOperationFailed)
	}

	metrics.IncRefund("ok")
	metrics.AddRefundedAmount(txn.Currency, upd.RefundedAmount)
	log.Info().Str("refund_id", refund.ID).Str("revoked", string(revoked)).Msg("refund recorded and access revoked")

	return &model.RefundResult{
		TransactionID: txn.ID,
		RefundID:      refund.ID,
		Amount:        upd.RefundedAmount,
		Currency:      txn.Currency,
		Status:        refund.Status,
		RefundedAt:    upd.RefundedAt,
		Revoked:       revoked,
	}, nil
}

// commitRefund writes the refund and revokes the entitlement in one transaction.
func (u *refundUC) commitRefund(ctx context.Context, txn *model.PaymentTransaction, token string, upd repository.RefundUpdate) (model.RevokedKind, error) {
	revoked := model.RevokedNothing
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.txns.MarkRefunded(ctx, tx, txn.ID, token, upd)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("refund claim no longer held: %w", domain.ErrInvalidState)
		}

		if !txn.IsGuest() {
			removed, err := u.access.Delete(ctx, tx, *txn.UserID, txn.ProductID)
			if err != nil {
				return err
			}
			if removed {
				revoked = model.RevokedAccessRecord
			}
			return nil
		}

		// A guest purchase may already have been claimed onto an account; that grant goes too.
		g, err := u.guests.FindBySessionID(ctx, tx, txn.SessionID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if g.IsClaimed() {
			if _, err := u.access.Delete(ctx, tx, *g.ClaimedByUserID, g.ProductID); err != nil {
				return err
			}
		}
		removed, err := u.guests.DeleteBySessionID(ctx, tx, txn.SessionID)
		if err != nil {
			return err
		}
		if removed {
			revoked = model.RevokedGuestPurchase
		}
		return nil
	})
	return revoked, err
}

func (u *refundUC) ReleaseClaim(ctx context.Context, transactionID, token string) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.FinalizeTimeout)
	defer cancel()
	return u.txns.ReleaseRefundClaim(rctx, repository.NoTX, transactionID, token)
}

func (u *refundUC) sanitizeNote(note string) string {
	s := strings.TrimSpace(u.policy.Sanitize(note))
	if utf8.RuneCountInString(s) <= maxRefundNoteLen {
		return s
	}
	return string([]rune(s)[:maxRefundNoteLen])
}
