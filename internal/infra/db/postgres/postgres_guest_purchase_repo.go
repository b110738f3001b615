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

var _ repository.GuestPurchaseRepository = (*guestPurchaseRepo)(nil)

type guestPurchaseRepo struct{ pool *pgxpool.Pool }

func NewGuestPurchaseRepo(pool *pgxpool.Pool) *guestPurchaseRepo {
	return &guestPurchaseRepo{pool: pool}
}

const guestColumns = `id, session_id, customer_email, product_id, transaction_amount, claimed_by_user_id, claimed_at, created_at`

// Save inserts the row; the claim columns are only ever written by ClaimIfUnclaimed.
func (r *guestPurchaseRepo) Save(ctx context.Context, tx repository.Tx, g *model.GuestPurchase) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO guest_purchases (` + guestColumns + `)
VALUES ($1,$2,$3,$4,$5,NULL,NULL,$6);`
	_, err := execSQL(ctx, r.pool, tx, q, g.ID, g.SessionID, g.CustomerEmail, g.ProductID, g.TransactionAmount, g.CreatedAt)
	return mapErr(err)
}

func (r *guestPurchaseRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (*model.GuestPurchase, error) {
	q := `SELECT ` + guestColumns + ` FROM guest_purchases WHERE session_id=$1`
	if inTx(tx) {
		// Holds off a concurrent ClaimIfUnclaimed until the refund that read the row commits.
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", sessionID)
	if err != nil {
		return nil, err
	}
	return scanGuest(row)
}

func (r *guestPurchaseRepo) ListUnclaimedByEmail(ctx context.Context, tx repository.Tx, email string) ([]*model.GuestPurchase, error) {
	const q = `
SELECT ` + guestColumns + `
  FROM guest_purchases
 WHERE customer_email=$1 AND claimed_by_user_id IS NULL
 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, email)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.GuestPurchase
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *guestPurchaseRepo) ClaimIfUnclaimed(ctx context.Context, tx repository.Tx, id, userID string, at time.Time) (bool, error) {
	const q = `
UPDATE guest_purchases
   SET claimed_by_user_id=$2, claimed_at=$3
 WHERE id=$1 AND claimed_by_user_id IS NULL;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, userID, at)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *guestPurchaseRepo) DeleteBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (bool, error) {
	const q = `DELETE FROM guest_purchases WHERE session_id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() > 0, nil
}

func scanGuest(row pgx.Row) (*model.GuestPurchase, error) {
	g := &model.GuestPurchase{}
	if err := row.Scan(&g.ID, &g.SessionID, &g.CustomerEmail, &g.ProductID, &g.TransactionAmount, &g.ClaimedByUserID, &g.ClaimedAt, &g.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return g, nil
}
