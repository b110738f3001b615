package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/infra/logging"
	"digital-storefront/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type decisionResponse struct {
	Status          string     `json:"status"`
	Reason          string     `json:"reason,omitempty"`
	Code            string     `json:"code"`
	ProductID       string     `json:"product_id,omitempty"`
	ProductSlug     string     `json:"product_slug,omitempty"`
	AccessGrantedAt *time.Time `json:"access_granted_at,omitempty"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`
	IsExpiringSoon  bool       `json:"is_expiring_soon"`
}

func toDecisionResponse(d *model.AccessDecision) decisionResponse {
	return decisionResponse{
		Status:          string(d.Status),
		Reason:          string(d.Reason),
		Code:            d.Code(),
		ProductID:       d.ProductID,
		ProductSlug:     d.ProductSlug,
		AccessGrantedAt: d.AccessGrantedAt,
		AccessExpiresAt: d.AccessExpiresAt,
		IsExpiringSoon:  d.IsExpiringSoon,
	}
}

type accessResponse struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	ProductID          string     `json:"product_id"`
	AccessGrantedAt    time.Time  `json:"access_granted_at"`
	AccessDurationDays *int       `json:"access_duration_days,omitempty"`
	AccessExpiresAt    *time.Time `json:"access_expires_at,omitempty"`
}

func toAccessResponse(a *model.AccessRecord) accessResponse {
	return accessResponse{
		ID:                 a.ID,
		UserID:             a.UserID,
		ProductID:          a.ProductID,
		AccessGrantedAt:    a.AccessGrantedAt,
		AccessDurationDays: a.AccessDurationDays,
		AccessExpiresAt:    a.AccessExpiresAt,
	}
}

type transactionResponse struct {
	ID                string  `json:"id"`
	SessionID         string  `json:"session_id"`
	ProductID         string  `json:"product_id"`
	UserID            *string `json:"user_id,omitempty"`
	Amount            int64   `json:"amount"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
	RefundedAmount    int64   `json:"refunded_amount"`
	ProviderReference string  `json:"provider_reference"`
}

func toTransactionResponse(t *model.PaymentTransaction) transactionResponse {
	return transactionResponse{
		ID:                t.ID,
		SessionID:         t.SessionID,
		ProductID:         t.ProductID,
		UserID:            t.UserID,
		Amount:            t.Amount,
		Currency:          t.Currency,
		Status:            string(t.Status),
		RefundedAmount:    t.RefundedAmount,
		ProviderReference: t.ProviderReference,
	}
}

// GET /api/v1/products/{slug}/access
func (s *Server) handleProductAccess(w http.ResponseWriter, r *http.Request) {
	id := model.Anonymous()
	if c := claimsFrom(r.Context()); c != nil {
		id = model.UserIdentity(c.Subject)
	}
	d, err := s.entUC.ResolveBySlug(r.Context(), id, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, logging.With(r.Context(), s.log), err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionResponse(d))
}

// GET /api/v1/me/library
func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	c := claimsFrom(r.Context())
	grants, err := s.entUC.ListGrants(r.Context(), c.Subject)
	if err != nil {
		writeError(w, logging.With(r.Context(), s.log), err)
		return
	}
	out := make([]accessResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toAccessResponse(g))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []accessResponse `json:"items"`
	}{Items: out})
}

// POST /api/v1/me/claims
func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	c := claimsFrom(r.Context())
	if strings.TrimSpace(c.Email) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Code: domain.CodeInvalidInput, Message: "token carries no email"})
		return
	}
	if !c.EmailVerified {
		writeJSON(w, http.StatusForbidden, errorBody{Code: "FORBIDDEN", Message: "token email is not verified"})
		return
	}
	res, err := s.claimUC.ClaimGuestPurchases(r.Context(), c.Subject, c.Email)
	if err != nil {
		writeError(w, logging.With(r.Context(), s.log), err)
		return
	}
	ids := res.GrantedProductIDs
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, struct {
		ClaimedCount      int      `json:"claimed_count"`
		GrantedProductIDs []string `json:"granted_product_ids"`
	}{ClaimedCount: res.ClaimedCount, GrantedProductIDs: ids})
}

type refundRequest struct {
	Amount *int64 `json:"amount"`
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

// POST /api/v1/admin/transactions/{id}/refund
func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: domain.CodeInvalidInput, Message: "invalid request body"})
		return
	}
	adminID := strings.TrimSpace(r.Header.Get("X-Admin-ID"))
	if adminID == "" {
		adminID = "admin"
	}
	res, err := s.refundUC.Refund(r.Context(), usecase.RefundRequest{
		TransactionID: chi.URLParam(r, "id"),
		Amount:        req.Amount,
		Reason:        model.RefundReason(req.Reason),
		Note:          req.Note,
		AdminID:       adminID,
	})
	if err != nil {
		writeError(w, logging.With(r.Context(), s.log), err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		TransactionID string    `json:"transaction_id"`
		RefundID      string    `json:"refund_id"`
		Amount        int64     `json:"amount"`
		Currency      string    `json:"currency"`
		Status        string    `json:"status"`
		RefundedAt    time.Time `json:"refunded_at"`
		Revoked       string    `json:"revoked"`
	}{
		TransactionID: res.TransactionID,
		RefundID:      res.RefundID,
		Amount:        res.Amount,
		Currency:      res.Currency,
		Status:        res.Status,
		RefundedAt:    res.RefundedAt,
		Revoked:       string(res.Revoked),
	})
}

// POST /api/v1/admin/transactions/{id}/dispute
func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	txn, err := s.accessUC.MarkDisputed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, logging.With(r.Context(), s.log), err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(txn))
}

type grantRequest struct {
	UserID       string `json:"user_id"`
	ProductID    string `json:"product_id"`
	DurationDays *int   `json:"duration_days"`
}

// POST /api/v1/admin/access
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: domain.CodeInvalidInput, Message: "invalid request body"})
		return
	}
	rec, err := s.accessUC.GrantAccess(r.Context(), req.UserID, req.ProductID, req.DurationDays)
	if err != nil {
		writeError(w, logging.With(r.Context(), s.log), err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccessResponse(rec))
}

// DELETE /api/v1/admin/access/{userID}/{productID}
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	err := s.accessUC.RevokeAccess(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, logging.With(r.Context(), s.log), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkoutRequest struct {
	SessionID         string  `json:"session_id"`
	ProviderReference string  `json:"provider_reference"`
	ProductID         string  `json:"product_id"`
	UserID            *string `json:"user_id"`
	CustomerEmail     string  `json:"customer_email"`
	Amount            int64   `json:"amount"`
	Currency          string  `json:"currency"`
}

// POST /api/v1/admin/checkout/complete
func (s *Server) handleCheckoutComplete(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: domain.CodeInvalidInput, Message: "invalid request body"})
		return
	}
	txn, err := s.accessUC.CompleteCheckout(r.Context(), usecase.CheckoutCompletion{
		SessionID:         req.SessionID,
		ProviderReference: req.ProviderReference,
		ProductID:         req.ProductID,
		UserID:            req.UserID,
		CustomerEmail:     req.CustomerEmail,
		Amount:            req.Amount,
		Currency:          req.Currency,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody{Code: domain.CodeInvalidState, Message: err.Error()})
			return
		}
		writeError(w, logging.With(r.Context(), s.log), err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(txn))
}
