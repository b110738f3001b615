package model

import (
	"net/mail"
	"strings"
	"time"

	"digital-storefront/internal/domain"

	"github.com/google/uuid"
)

// GuestPurchase is a completed purchase made without an account, waiting to be claimed.
// Once ClaimedByUserID is set it is never cleared.
type GuestPurchase struct {
	ID                string
	SessionID         string
	CustomerEmail     string
	ProductID         string
	TransactionAmount int64
	ClaimedByUserID   *string
	ClaimedAt         *time.Time
	CreatedAt         time.Time
}

func NewGuestPurchase(sessionID, email, productID string, amount int64) (*GuestPurchase, error) {
	norm, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if sessionID == "" || productID == "" || amount < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &GuestPurchase{
		ID:                uuid.NewString(),
		SessionID:         sessionID,
		CustomerEmail:     norm,
		ProductID:         productID,
		TransactionAmount: amount,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

func (g *GuestPurchase) IsClaimed() bool { return g.ClaimedByUserID != nil }

// NormalizeEmail lower-cases and trims an address after checking it parses.
func NormalizeEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return "", domain.ErrInvalidArgument
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", domain.ErrInvalidArgument
	}
	return e, nil
}

// ClaimResult summarizes a claim reconciliation run.
type ClaimResult struct {
	ClaimedCount      int
	GrantedProductIDs []string
}
