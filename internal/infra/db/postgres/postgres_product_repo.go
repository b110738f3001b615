package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/repository"
)

var _ repository.ProductRepository = (*productRepo)(nil)

type productRepo struct{ pool *pgxpool.Pool }

func NewProductRepo(pool *pgxpool.Pool) *productRepo {
	return &productRepo{pool: pool}
}

const productColumns = `id, slug, name, price, currency, is_active, available_from, available_until, auto_grant_duration_days, created_at, updated_at`

func (r *productRepo) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	const q = `
INSERT INTO products (` + productColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  slug=$2, name=$3, price=$4, currency=$5, is_active=$6, available_from=$7, available_until=$8,
  auto_grant_duration_days=$9, updated_at=$11;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Slug, p.Name, p.Price, p.Currency, p.IsActive,
		p.AvailableFrom, p.AvailableUntil, p.AutoGrantDurationDays, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (r *productRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *productRepo) FindBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE slug=$1;`
	return r.queryOne(ctx, tx, q, slug)
}

func (r *productRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Product, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanProduct(row)
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	p := &model.Product{}
	if err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Price, &p.Currency, &p.IsActive,
		&p.AvailableFrom, &p.AvailableUntil, &p.AutoGrantDurationDays, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}
