package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"digital-storefront/internal/infra/metrics"
	"digital-storefront/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Server exposes the entitlement, claim and refund use cases over HTTP.
type Server struct {
	entUC    usecase.EntitlementUseCase
	claimUC  usecase.ClaimUseCase
	refundUC usecase.RefundUseCase
	accessUC usecase.AccessUseCase
	auth     *Authenticator
	adminKey string
	timeout  time.Duration
	log      *zerolog.Logger

	limiter     RateLimiter
	claimLimit  int
	claimWindow time.Duration

	srv *http.Server
}

func NewServer(
	entUC usecase.EntitlementUseCase,
	claimUC usecase.ClaimUseCase,
	refundUC usecase.RefundUseCase,
	accessUC usecase.AccessUseCase,
	auth *Authenticator,
	adminKey string,
	timeout time.Duration,
	logger *zerolog.Logger,
) *Server {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	l := logger.With().Str("component", "HTTP").Logger()
	return &Server{
		entUC:    entUC,
		claimUC:  claimUC,
		refundUC: refundUC,
		accessUC: accessUC,
		auth:     auth,
		adminKey: adminKey,
		timeout:  timeout,
		log:      &l,
	}
}

// Routes builds the router. Mount it at the root.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.optionalUser).Get("/products/{slug}/access", s.handleProductAccess)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/me/library", s.handleLibrary)
			r.With(s.rateLimitUser("claims")).Post("/me/claims", s.handleClaims)
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(s.requireAdmin("refund")).Post("/transactions/{id}/refund", s.handleRefund)
			r.With(s.requireAdmin("dispute")).Post("/transactions/{id}/dispute", s.handleDispute)
			r.With(s.requireAdmin("grant")).Post("/access", s.handleGrant)
			r.With(s.requireAdmin("revoke")).Delete("/access/{userID}/{productID}", s.handleRevoke)
			r.With(s.requireAdmin("checkout")).Post("/checkout/complete", s.handleCheckoutComplete)
		})
	})
	return r
}

// Start serves on port until Shutdown is called.
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
