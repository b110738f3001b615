package model

import (
	"time"

	"digital-storefront/internal/domain"

	"github.com/google/uuid"
)

// AccessRecord is a persisted grant of a user's entitlement to a product.
// There is at most one record per (UserID, ProductID); a repeat grant refreshes it.
type AccessRecord struct {
	ID                 string
	UserID             string
	ProductID          string
	AccessGrantedAt    time.Time
	AccessDurationDays *int       // nil = perpetual
	AccessExpiresAt    *time.Time // derived from granted_at + duration
}

// NewAccessRecord builds a grant starting at grantedAt.
func NewAccessRecord(userID, productID string, grantedAt time.Time, durationDays *int) (*AccessRecord, error) {
	if userID == "" || productID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if durationDays != nil && *durationDays <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &AccessRecord{
		ID:                 uuid.NewString(),
		UserID:             userID,
		ProductID:          productID,
		AccessGrantedAt:    grantedAt,
		AccessDurationDays: durationDays,
		AccessExpiresAt:    ExpiryFor(grantedAt, durationDays),
	}, nil
}

// ExpiryFor returns grantedAt + days, or nil for perpetual access.
func ExpiryFor(grantedAt time.Time, durationDays *int) *time.Time {
	if durationDays == nil {
		return nil
	}
	ex := grantedAt.Add(time.Duration(*durationDays) * 24 * time.Hour)
	return &ex
}

// IsValidAt reports whether the grant is still in force at now.
func (a *AccessRecord) IsValidAt(now time.Time) bool {
	return a.AccessExpiresAt == nil || a.AccessExpiresAt.After(now)
}

// ExpiresWithin reports whether a valid, expiring grant ends within d of now.
func (a *AccessRecord) ExpiresWithin(now time.Time, d time.Duration) bool {
	if a.AccessExpiresAt == nil || !a.IsValidAt(now) {
		return false
	}
	return !a.AccessExpiresAt.After(now.Add(d))
}
