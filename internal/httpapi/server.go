// Package httpapi exposes the mobile client API over chi.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/internal/health"
	"github.com/arcanalabs/arcana-server/internal/idempotency"
	"github.com/arcanalabs/arcana-server/internal/ledger"
	appmiddleware "github.com/arcanalabs/arcana-server/internal/middleware"
	"github.com/arcanalabs/arcana-server/internal/oracle"
	"github.com/arcanalabs/arcana-server/internal/purchase"
	"github.com/arcanalabs/arcana-server/internal/reward"
	"github.com/arcanalabs/arcana-server/internal/unlock"
	"github.com/arcanalabs/arcana-server/pkg/logger"
)

// Deps bundles everything the API server needs.
type Deps struct {
	Ledger     *ledger.Service
	Rewards    *reward.Service
	Purchases  *purchase.Service
	Gate       *unlock.Gate
	Previewer  *unlock.Previewer
	Generator  oracle.Generator
	Horoscopes *oracle.Horoscopes
	Health     *health.Checker
	ErrHandler *apperrors.Handler

	Auth        *appmiddleware.AuthMiddleware
	RateLimit   *appmiddleware.RateLimitMiddleware
	Idempotency idempotency.Manager

	Log *slog.Logger
}

// Server holds the handler dependencies and builds the router.
type Server struct {
	ledger     *ledger.Service
	rewards    *reward.Service
	purchases  *purchase.Service
	gate       *unlock.Gate
	previewer  *unlock.Previewer
	generator  oracle.Generator
	horoscopes *oracle.Horoscopes
	health     *health.Checker
	errHandler *apperrors.Handler
	log        *slog.Logger
}

// NewServer constructs the API server and its routes.
func NewServer(deps Deps) (*Server, http.Handler) {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	if deps.ErrHandler == nil {
		deps.ErrHandler = apperrors.NewHandler(log, false)
	}

	s := &Server{
		ledger:     deps.Ledger,
		rewards:    deps.Rewards,
		purchases:  deps.Purchases,
		gate:       deps.Gate,
		previewer:  deps.Previewer,
		generator:  deps.Generator,
		horoscopes: deps.Horoscopes,
		health:     deps.Health,
		errHandler: deps.ErrHandler,
		log:        log,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(logger.Middleware)
	r.Use(appmiddleware.Logging(log))
	r.Use(appmiddleware.Metrics)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Handle)
		}
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Handle)
		}
		r.Use(appmiddleware.Idempotency(deps.Idempotency, log))

		r.Get("/profile", s.handleGetProfile)
		r.Patch("/profile", s.handlePatchProfile)

		r.Post("/ledger/refresh", s.handleRefresh)
		r.Post("/ledger/spend", s.handleSpend)
		r.Post("/ledger/daily-bonus", s.handleDailyBonus)

		r.Post("/rewards/ad/load", s.handleAdLoad)
		r.Post("/rewards/ad/loaded", s.handleAdLoaded)
		r.Post("/rewards/ad/shown", s.handleAdShown)
		r.Post("/rewards/ad/earned", s.handleAdEarned)

		r.Post("/purchases/confirm", s.handlePurchaseConfirm)

		r.Post("/unlocks", s.handleUnlock)
		r.Get("/unlocks/{contentID}", s.handleUnlockStatus)

		r.Post("/oracle/dream", s.handleDream)
		r.Get("/oracle/horoscope", s.handleHoroscope)
	})

	return s, r
}
