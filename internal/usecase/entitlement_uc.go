package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/repository"
	"digital-storefront/internal/infra/metrics"
)

// DefaultExpiringSoonWindow is used when no window is configured.
const DefaultExpiringSoonWindow = 72 * time.Hour

// EntitlementUseCase answers "may this caller access this product right now".
type EntitlementUseCase interface {
	// Resolve is the single authoritative access decision. On a store failure it returns an
	// undetermined decision together with an error wrapping domain.ErrUndetermined.
	Resolve(ctx context.Context, id model.Identity, product *model.Product) (*model.AccessDecision, error)
	// ResolveBySlug loads the product first; an unknown slug is domain.ErrNotFound.
	ResolveBySlug(ctx context.Context, id model.Identity, slug string) (*model.AccessDecision, error)
	// ListGrants returns the user's access records that are valid now.
	ListGrants(ctx context.Context, userID string) ([]*model.AccessRecord, error)
}

var _ EntitlementUseCase = (*entitlementUC)(nil)

type entitlementUC struct {
	products     repository.ProductRepository
	access       repository.AccessRecordRepository
	expiringSoon time.Duration
	now          func() time.Time
	log          *zerolog.Logger
}

// NewEntitlementUseCase builds the resolver. now may be nil (time.Now is used).
func NewEntitlementUseCase(
	products repository.ProductRepository,
	access repository.AccessRecordRepository,
	expiringSoon time.Duration,
	now func() time.Time,
	logger *zerolog.Logger,
) *entitlementUC {
	if expiringSoon <= 0 {
		expiringSoon = DefaultExpiringSoonWindow
	}
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "EntitlementUC").Logger()
	return &entitlementUC{
		products:     products,
		access:       access,
		expiringSoon: expiringSoon,
		now:          now,
		log:          &l,
	}
}

func (u *entitlementUC) Resolve(ctx context.Context, id model.Identity, product *model.Product) (*model.AccessDecision, error) {
	if product == nil {
		return nil, domain.ErrInvalidArgument
	}
	d, err := u.resolve(ctx, id, product, u.now())
	metrics.IncDecision(d.Code())
	ev := u.log.Debug()
	if err != nil {
		ev = u.log.Warn().Err(err)
	}
	ev.Str("user_id", id.UserID).Str("product_id", product.ID).Str("decision", d.Code()).Msg("entitlement resolved")
	return d, err
}

func (u *entitlementUC) resolve(ctx context.Context, id model.Identity, p *model.Product, now time.Time) (*model.AccessDecision, error) {
	if id.IsAnonymous() {
		return model.Denied(p, model.DenialNoAccess), nil
	}

	// A valid grant wins over every product-side condition.
	rec, err := u.access.FindByUserAndProduct(ctx, repository.NoTX, id.UserID, p.ID)
	switch {
	case err == nil:
		if rec.IsValidAt(now) {
			granted := rec.AccessGrantedAt
			return &model.AccessDecision{
				Status:          model.DecisionGranted,
				ProductID:       p.ID,
				ProductSlug:     p.Slug,
				AccessGrantedAt: &granted,
				AccessExpiresAt: rec.AccessExpiresAt,
				IsExpiringSoon:  rec.ExpiresWithin(now, u.expiringSoon),
			}, nil
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return model.Undetermined(p), fmt.Errorf("%w: access lookup: %v", domain.ErrUndetermined, err)
	}

	if !p.IsActive {
		return model.Denied(p, model.DenialInactive), nil
	}
	w := p.Window(now)
	if w.NotYetAvailable {
		return model.Denied(p, model.DenialTemporalNotYet), nil
	}
	if w.Expired {
		return model.Denied(p, model.DenialTemporalExpired), nil
	}
	return model.Denied(p, model.DenialNoAccess), nil
}

func (u *entitlementUC) ResolveBySlug(ctx context.Context, id model.Identity, slug string) (*model.AccessDecision, error) {
	if slug == "" {
		return nil, domain.ErrInvalidArgument
	}
	p, err := u.products.FindBySlug(ctx, repository.NoTX, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return model.Undetermined(nil), fmt.Errorf("%w: product lookup: %v", domain.ErrUndetermined, err)
	}
	return u.Resolve(ctx, id, p)
}

func (u *entitlementUC) ListGrants(ctx context.Context, userID string) ([]*model.AccessRecord, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	recs, err := u.access.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	out := make([]*model.AccessRecord, 0, len(recs))
	for _, r := range recs {
		if r.IsValidAt(now) {
			out = append(out, r)
		}
	}
	return out, nil
}
