package model

import "time"

// Identity is the caller asking for access. An empty UserID is an anonymous visitor.
type Identity struct {
	UserID string
}

func Anonymous() Identity             { return Identity{} }
func UserIdentity(id string) Identity { return Identity{UserID: id} }
func (i Identity) IsAnonymous() bool  { return i.UserID == "" }

type DecisionStatus string

const (
	DecisionGranted      DecisionStatus = "granted"
	DecisionDenied       DecisionStatus = "denied"
	DecisionUndetermined DecisionStatus = "undetermined"
)

type DenialReason string

const (
	DenialNone            DenialReason = ""
	DenialNoAccess        DenialReason = "no_access"
	DenialInactive        DenialReason = "inactive"
	DenialTemporalNotYet  DenialReason = "temporal_not_yet"
	DenialTemporalExpired DenialReason = "temporal_expired"
)

// AccessDecision is the entitlement resolver's answer for one (identity, product) pair.
type AccessDecision struct {
	Status          DecisionStatus
	Reason          DenialReason
	ProductID       string
	ProductSlug     string
	AccessGrantedAt *time.Time
	AccessExpiresAt *time.Time
	IsExpiringSoon  bool
}

func (d *AccessDecision) Granted() bool { return d != nil && d.Status == DecisionGranted }

// Code renders the decision as "granted", "denied:<reason>" or "undetermined".
func (d *AccessDecision) Code() string {
	if d.Status == DecisionDenied {
		return string(d.Status) + ":" + string(d.Reason)
	}
	return string(d.Status)
}

func Denied(p *Product, reason DenialReason) *AccessDecision {
	d := &AccessDecision{Status: DecisionDenied, Reason: reason}
	if p != nil {
		d.ProductID, d.ProductSlug = p.ID, p.Slug
	}
	return d
}

func Undetermined(p *Product) *AccessDecision {
	d := &AccessDecision{Status: DecisionUndetermined}
	if p != nil {
		d.ProductID, d.ProductSlug = p.ID, p.Slug
	}
	return d
}
