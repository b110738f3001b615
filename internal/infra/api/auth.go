package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"digital-storefront/internal/infra/logging"
	"digital-storefront/internal/infra/metrics"

	"github.com/golang-jwt/jwt/v5"
)

// UserClaims is the bearer token issued by the identity provider for storefront customers.
type UserClaims struct {
	Email string `json:"email"`
	// EmailVerified must be true before Email is trusted to claim guest purchases.
	EmailVerified bool `json:"email_verified"`
	jwt.RegisteredClaims
}

var errMissingToken = errors.New("missing token")

// Authenticator verifies HS256 user tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// ParseFromRequest reads "Authorization: Bearer <jwt>".
func (a *Authenticator) ParseFromRequest(r *http.Request) (*UserClaims, error) {
	tok, ok := bearer(r)
	if !ok {
		return nil, errMissingToken
	}
	claims := &UserClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func bearer(r *http.Request) (string, bool) {
	hdr := r.Header.Get("Authorization")
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) *UserClaims {
	c, _ := ctx.Value(claimsKey{}).(*UserClaims)
	return c
}

// optionalUser attaches the caller's claims when a valid token is present. A bad token is
// rejected rather than silently treated as anonymous.
func (s *Server) optionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		switch {
		case errors.Is(err, errMissingToken):
			next.ServeHTTP(w, r)
		case err != nil:
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHORIZED", Message: err.Error()})
		default:
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		}
	})
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHORIZED", Message: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func withClaims(ctx context.Context, c *UserClaims) context.Context {
	ctx = logging.WithUserID(ctx, c.Subject)
	return context.WithValue(ctx, claimsKey{}, c)
}

// requireAdmin guards operator routes with the static admin API key.
func (s *Server) requireAdmin(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.adminKey == "" {
				s.log.Error().Msg("admin API key is not configured")
				metrics.IncAdminAction(action, "unauthorized")
				writeJSON(w, http.StatusForbidden, errorBody{Code: "FORBIDDEN", Message: "admin API disabled"})
				return
			}
			tok, ok := bearer(r)
			if !ok {
				metrics.IncAdminAction(action, "unauthorized")
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHORIZED", Message: "missing admin key"})
				return
			}
			if subtle.ConstantTimeCompare([]byte(tok), []byte(s.adminKey)) != 1 {
				metrics.IncAdminAction(action, "unauthorized")
				writeJSON(w, http.StatusForbidden, errorBody{Code: "FORBIDDEN", Message: "invalid admin key"})
				return
			}
			metrics.IncAdminAction(action, "authorized")
			next.ServeHTTP(w, r)
		})
	}
}
