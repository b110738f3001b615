package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/adapter"
	"digital-storefront/internal/domain/ports/repository"
	"digital-storefront/internal/infra/metrics"
	"digital-storefront/internal/infra/worker"
	"digital-storefront/internal/usecase"
)

// RefundReconciler finishes refunds whose claim outlived the request that took it: the provider
// may have accepted the refund while the status write or the revocation never committed.
// It asks the provider what happened and either finalizes the refund or releases the claim.
type RefundReconciler struct {
	uc         usecase.RefundUseCase
	txns       repository.PaymentTransactionRepository
	gateway    adapter.PaymentGateway
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a claim must be before it is reconciled
	batch      int
	pool       *worker.Pool
	now        func() time.Time
	log        *zerolog.Logger
}

// SweepStats counts what one pass did.
type SweepStats struct {
	Finalized int
	Released  int
	Failed    int
}

func NewRefundReconciler(
	uc usecase.RefundUseCase,
	txns repository.PaymentTransactionRepository,
	gateway adapter.PaymentGateway,
	interval, staleAfter time.Duration,
	logger *zerolog.Logger,
) *RefundReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := logger.With().Str("component", "RefundReconciler").Logger()
	return &RefundReconciler{
		uc:         uc,
		txns:       txns,
		gateway:    gateway,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      100,
		pool:       worker.NewPool(4),
		now:        time.Now,
		log:        &l,
	}
}

// Start blocks until ctx is cancelled.
func (w *RefundReconciler) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("refund reconciler started")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("refund reconciler stopped")
			return
		case <-t.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce reconciles one batch of stale claims.
func (w *RefundReconciler) RunOnce(ctx context.Context) SweepStats {
	var stats SweepStats
	cutoff := w.now().UTC().Add(-w.staleAfter)
	stale, err := w.txns.ListStaleRefundClaims(ctx, repository.NoTX, cutoff, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale refund claims failed")
		metrics.IncRefundSweep("error")
		return stats
	}

	var mu sync.Mutex
	tasks := make([]worker.Task, 0, len(stale))
	for _, txn := range stale {
		txn := txn
		if txn.RefundClaimToken == nil {
			continue
		}
		// A younger claim may belong to a request still waiting on the provider; releasing it
		// would let a second refund go out under a new idempotency key.
		if txn.RefundClaimedAt == nil || txn.RefundClaimedAt.After(cutoff) {
			w.log.Warn().Str("transaction_id", txn.ID).Msg("skipping refund claim newer than the stale cutoff")
			continue
		}
		tasks = append(tasks, func(ctx context.Context) error {
			outcome, err := w.reconcile(ctx, txn)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Failed++
				metrics.IncRefundSweep("error")
				w.log.Error().Err(err).Str("transaction_id", txn.ID).Msg("refund reconcile failed")
			case outcome == "finalized":
				stats.Finalized++
				metrics.IncRefundSweep(outcome)
				w.log.Info().Str("transaction_id", txn.ID).Msg("stale refund finalized")
			default:
				stats.Released++
				metrics.IncRefundSweep(outcome)
				w.log.Info().Str("transaction_id", txn.ID).Msg("stale refund claim released")
			}
			return nil
		})
	}
	if err := w.pool.Run(ctx, tasks); err != nil {
		w.log.Warn().Err(err).Msg("refund sweep interrupted")
	}
	return stats
}

func (w *RefundReconciler) reconcile(ctx context.Context, txn *model.PaymentTransaction) (string, error) {
	token := *txn.RefundClaimToken
	refund, err := w.gateway.FindRefund(ctx, txn.ProviderReference, txn.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "released", w.uc.ReleaseClaim(ctx, txn.ID, token)
	case err != nil:
		return "", err
	case !refund.Succeeded():
		// The provider refused or cancelled the refund; nothing moved.
		return "released", w.uc.ReleaseClaim(ctx, txn.ID, token)
	}
	if _, err := w.uc.Finalize(ctx, txn, token, refund); err != nil {
		return "", err
	}
	return "finalized", nil
}
