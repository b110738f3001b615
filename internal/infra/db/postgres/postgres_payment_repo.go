package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/repository"
)

var _ repository.PaymentTransactionRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const txnColumns = `id, session_id, provider_reference, product_id, user_id, customer_email, amount, currency, status,
  refunded_amount, refund_id, refund_reason, refunded_at, refunded_by, refund_claim_token, refund_claimed_at, created_at, updated_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error {
	const q = `
INSERT INTO payment_transactions (` + txnColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18);`
	var reason *string
	if t.RefundReason != nil {
		s := string(*t.RefundReason)
		reason = &s
	}
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.SessionID, t.ProviderReference, t.ProductID, t.UserID, t.CustomerEmail,
		t.Amount, t.Currency, string(t.Status), t.RefundedAmount, t.RefundID, reason, t.RefundedAt, t.RefundedBy,
		t.RefundClaimToken, t.RefundClaimedAt, t.CreatedAt, t.UpdatedAt)
	return mapErr(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + txnColumns + ` FROM payment_transactions WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", id)
}

func (r *paymentRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + txnColumns + ` FROM payment_transactions WHERE session_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", sessionID)
}

// UpdateStatusIf atomically moves from -> to; callers check model.CanTransition first.
func (r *paymentRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, id string, from, to model.TransactionStatus) (bool, error) {
	const q = `
UPDATE payment_transactions
   SET status=$3, updated_at=NOW()
 WHERE id=$1 AND status=$2 AND refund_claim_token IS NULL;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to))
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) ClaimRefund(ctx context.Context, tx repository.Tx, id string, claim repository.RefundClaim) (bool, error) {
	const q = `
UPDATE payment_transactions
   SET refund_claim_token=$2, refund_claimed_at=$3, refund_reason=$4, refunded_by=NULLIF($5, ''), updated_at=NOW()
 WHERE id=$1
   AND status='completed'
   AND refund_claim_token IS NULL;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, claim.Token, claim.At, string(claim.Reason), claim.By)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) ReleaseRefundClaim(ctx context.Context, tx repository.Tx, id, token string) error {
	const q = `
UPDATE payment_transactions
   SET refund_claim_token=NULL, refund_claimed_at=NULL, refund_reason=NULL, refunded_by=NULL, updated_at=NOW()
 WHERE id=$1 AND refund_claim_token=$2 AND status='completed';`
	_, err := execSQL(ctx, r.pool, tx, q, id, token)
	return mapErr(err)
}

func (r *paymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id, token string, upd repository.RefundUpdate) (bool, error) {
	const q = `
UPDATE payment_transactions
   SET status='refunded',
       refunded_amount=refunded_amount+$3,
       refund_id=$4,
       refund_reason=$5,
       refunded_at=$6,
       refunded_by=NULLIF($7, ''),
       refund_claim_token=NULL,
       refund_claimed_at=NULL,
       updated_at=NOW()
 WHERE id=$1
   AND refund_claim_token=$2
   AND status='completed';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, token, upd.RefundedAmount, upd.RefundID, string(upd.Reason), upd.RefundedAt, upd.RefundedBy)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) ListStaleRefundClaims(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + txnColumns + `
  FROM payment_transactions
 WHERE status='completed'
   AND refund_claim_token IS NOT NULL
   AND refund_claimed_at < $1
 ORDER BY refund_claimed_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentTransaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.PaymentTransaction, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanTxn(row)
}

func scanTxn(row pgx.Row) (*model.PaymentTransaction, error) {
	t := &model.PaymentTransaction{}
	var status string
	var reason *string
	if err := row.Scan(&t.ID, &t.SessionID, &t.ProviderReference, &t.ProductID, &t.UserID, &t.CustomerEmail,
		&t.Amount, &t.Currency, &status, &t.RefundedAmount, &t.RefundID, &reason, &t.RefundedAt, &t.RefundedBy,
		&t.RefundClaimToken, &t.RefundClaimedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	t.Status = model.TransactionStatus(status)
	if reason != nil {
		rr := model.RefundReason(*reason)
		t.RefundReason = &rr
	}
	return t, nil
}
