package repository

import (
	"context"

	"digital-storefront/internal/domain/model"
)

// ProductRepository is the port for product metadata.
type ProductRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Product) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Product, error)
	FindBySlug(ctx context.Context, tx Tx, slug string) (*model.Product, error)
}
