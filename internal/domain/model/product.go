package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"digital-storefront/internal/domain"

	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Product is a purchasable digital product.
type Product struct {
	ID                    string
	Slug                  string
	Name                  string
	Price                 int64 // minor units; 0 means free
	Currency              string
	IsActive              bool
	AvailableFrom         *time.Time // nil = open-ended
	AvailableUntil        *time.Time // nil = open-ended
	AutoGrantDurationDays *int       // nil = perpetual access
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewProduct validates and constructs a product.
func NewProduct(id, slug, name string, price int64, currency string, active bool, from, until *time.Time, durationDays *int) (*Product, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	p := &Product{
		ID:                    id,
		Slug:                  strings.TrimSpace(slug),
		Name:                  strings.TrimSpace(name),
		Price:                 price,
		Currency:              strings.ToUpper(strings.TrimSpace(currency)),
		IsActive:              active,
		AvailableFrom:         from,
		AvailableUntil:        until,
		AutoGrantDurationDays: durationDays,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the product invariants.
func (p *Product) Validate() error {
	if p == nil || p.ID == "" || p.Name == "" {
		return domain.ErrInvalidArgument
	}
	if !slugPattern.MatchString(p.Slug) {
		return fmt.Errorf("slug %q is not url-safe: %w", p.Slug, domain.ErrInvalidArgument)
	}
	if p.Price < 0 {
		return fmt.Errorf("negative price: %w", domain.ErrInvalidArgument)
	}
	if p.Price > 0 && len(p.Currency) != 3 {
		return fmt.Errorf("currency %q: %w", p.Currency, domain.ErrInvalidArgument)
	}
	if p.AvailableFrom != nil && p.AvailableUntil != nil && !p.AvailableFrom.Before(*p.AvailableUntil) {
		return fmt.Errorf("available_from must be before available_until: %w", domain.ErrInvalidArgument)
	}
	if p.AutoGrantDurationDays != nil && *p.AutoGrantDurationDays <= 0 {
		return fmt.Errorf("auto grant duration must be positive: %w", domain.ErrInvalidArgument)
	}
	return nil
}

// Window evaluates the product's temporal availability at now.
func (p *Product) Window(now time.Time) Window {
	return EvaluateWindow(now, p.AvailableFrom, p.AvailableUntil)
}

func (p *Product) IsFree() bool { return p.Price == 0 }
