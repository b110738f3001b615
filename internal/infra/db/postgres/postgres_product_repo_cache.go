package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/repository"
	"digital-storefront/internal/infra/metrics"
	red "digital-storefront/internal/infra/redis"

	"github.com/rs/zerolog"
)

var _ repository.ProductRepository = (*productRepoCacheDecorator)(nil)

// productRepoCacheDecorator caches product reads in Redis. Reads inside a transaction
// bypass the cache so locked reads always see the database.
type productRepoCacheDecorator struct {
	inner repository.ProductRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewProductRepoCacheDecorator(inner repository.ProductRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.ProductRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	l := logger.With().Str("component", "ProductCache").Logger()
	return &productRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func productIDKey(id string) string     { return fmt.Sprintf("product:id:%s", id) }
func productSlugKey(slug string) string { return fmt.Sprintf("product:slug:%s", slug) }

func (d *productRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	return d.cached(ctx, productIDKey(id), func() (*model.Product, error) {
		return d.inner.FindByID(ctx, tx, id)
	})
}

func (d *productRepoCacheDecorator) FindBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.Product, error) {
	if tx != nil {
		return d.inner.FindBySlug(ctx, tx, slug)
	}
	return d.cached(ctx, productSlugKey(slug), func() (*model.Product, error) {
		return d.inner.FindBySlug(ctx, tx, slug)
	})
}

// Save invalidates both keys of the stored product, including a previous slug.
func (d *productRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	keys := []string{productIDKey(p.ID), productSlugKey(p.Slug)}
	if old, err := d.inner.FindByID(ctx, tx, p.ID); err == nil && old.Slug != p.Slug {
		keys = append(keys, productSlugKey(old.Slug))
	}
	if err := d.inner.Save(ctx, tx, p); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, keys...); err != nil {
		d.log.Warn().Err(err).Str("product_id", p.ID).Msg("cache invalidation failed")
	}
	return nil
}

func (d *productRepoCacheDecorator) cached(ctx context.Context, key string, load func() (*model.Product, error)) (*model.Product, error) {
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var p model.Product
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("product", "hit")
			return &p, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	metrics.IncCacheRequest("product", "miss")
	p, err := load()
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return p, nil
}
