package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/repository"
)

var _ repository.AccessRecordRepository = (*accessRepo)(nil)

type accessRepo struct{ pool *pgxpool.Pool }

func NewAccessRepo(pool *pgxpool.Pool) *accessRepo {
	return &accessRepo{pool: pool}
}

const accessColumns = `id, user_id, product_id, access_granted_at, access_duration_days, access_expires_at`

// Upsert relies on UNIQUE (user_id, product_id): a repeat grant refreshes the row and keeps its id.
func (r *accessRepo) Upsert(ctx context.Context, tx repository.Tx, rec *model.AccessRecord) error {
	const q = `
INSERT INTO access_records (` + accessColumns + `)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id, product_id) DO UPDATE SET
  access_granted_at=EXCLUDED.access_granted_at,
  access_duration_days=EXCLUDED.access_duration_days,
  access_expires_at=EXCLUDED.access_expires_at
RETURNING ` + accessColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, rec.ID, rec.UserID, rec.ProductID, rec.AccessGrantedAt, rec.AccessDurationDays, rec.AccessExpiresAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.ProductID, &rec.AccessGrantedAt, &rec.AccessDurationDays, &rec.AccessExpiresAt); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *accessRepo) FindByUserAndProduct(ctx context.Context, tx repository.Tx, userID, productID string) (*model.AccessRecord, error) {
	const q = `SELECT ` + accessColumns + ` FROM access_records WHERE user_id=$1 AND product_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, productID)
	if err != nil {
		return nil, err
	}
	return scanAccess(row)
}

func (r *accessRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.AccessRecord, error) {
	const q = `SELECT ` + accessColumns + ` FROM access_records WHERE user_id=$1 ORDER BY access_granted_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.AccessRecord
	for rows.Next() {
		rec, err := scanAccess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *accessRepo) Delete(ctx context.Context, tx repository.Tx, userID, productID string) (bool, error) {
	const q = `DELETE FROM access_records WHERE user_id=$1 AND product_id=$2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, productID)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() > 0, nil
}

func scanAccess(row pgx.Row) (*model.AccessRecord, error) {
	rec := &model.AccessRecord{}
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.ProductID, &rec.AccessGrantedAt, &rec.AccessDurationDays, &rec.AccessExpiresAt); err != nil {
		return nil, mapScanErr(err)
	}
	return rec, nil
}
