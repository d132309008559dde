package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-rewards/api/controllers"
	"github.com/angelmondragon/packfinderz-rewards/api/controllers/account"
	"github.com/angelmondragon/packfinderz-rewards/api/controllers/admin"
	"github.com/angelmondragon/packfinderz-rewards/api/controllers/webhooks"
	"github.com/angelmondragon/packfinderz-rewards/api/middleware"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/internal/settlement"
	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-rewards/pkg/redis"
)

type ReferralService interface {
	account.ReferralService
	admin.ReferralService
}

type RewardsService interface {
	account.RewardsService
	admin.CounterGranter
}

// ProgramStore serves the live rewards program and reloads it on demand.
type ProgramStore interface {
	program.Provider
	admin.ProgramReloader
}

// Redis is the subset of the redis client the HTTP layer leans on.
type Redis interface {
	pkgredis.IdempotencyStore
	middleware.RateLimiterStore
}

// Dependencies is everything NewRouter wires into handlers.
type Dependencies struct {
	DB        controllers.Pinger
	Redis     Redis
	Ledger    admin.LedgerService
	Referrals ReferralService
	Affiliate account.AffiliateService
	Clicks    controllers.ClickRecorder
	Rewards   RewardsService
	Program   ProgramStore
	Inbound   settlement.Inbound
	Eraser    admin.Eraser
	Stats     admin.StatsReader
	Sweeper   admin.Sweeper
	DLQ       admin.DeadLetters
	Gatherer  prometheus.Gatherer
	Clock     func() time.Time
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	ready := map[string]controllers.Pinger{"db": deps.DB}
	if deps.Redis != nil {
		if p, ok := deps.Redis.(controllers.Pinger); ok {
			ready["redis"] = p
		}
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	idempotent := middleware.Idempotency(deps.Redis, cfg.Cron.IdempotencyTTL, logg)
	clickPolicy := middleware.RateLimitPolicy{
		Name:   "affiliate-click",
		Window: cfg.Affiliate.ClickRateWindow,
		Limit:  cfg.Affiliate.ClickRateLimit,
	}
	r.Route("/api/public", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.Affiliate.AllowedOrigins))
		r.Use(middleware.OptionalAuth(cfg.JWT))
		r.With(middleware.RateLimit(clickPolicy, deps.Redis, logg)).
			Post("/affiliate/clicks", controllers.AffiliateClick(deps.Clicks, logg))
	})

	r.Route("/api/v1/webhooks/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleService))
		r.Post("/completed", webhooks.OrderCompleted(deps.Inbound, logg))
		r.Post("/cancelled", webhooks.OrderCancelled(deps.Inbound, logg))
		r.Post("/refunded", webhooks.OrderRefunded(deps.Inbound, logg))
	})

	r.Route("/api/v1/me", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleUser, enums.ActorRoleAdmin))

		r.Get("/balance", account.Balance(deps.Ledger, logg))
		r.Get("/ledger", account.LedgerLog(deps.Ledger, logg))
		r.Get("/referrals", account.ListReferrals(deps.Referrals, logg))
		r.Post("/referrals", account.SubmitReferral(deps.Referrals, logg))
		r.Get("/affiliate", account.Affiliate(deps.Affiliate, logg))
		r.Put("/affiliate/code", account.SetAffiliateCode(deps.Affiliate, logg))
		r.Get("/rewards", account.Rewards(deps.Rewards, deps.Program, logg))
		r.With(idempotent).Post("/rewards/spin", account.Spin(deps.Rewards, logg))
		r.With(idempotent).Post("/rewards/shop", account.Purchase(deps.Rewards, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))

		r.Route("/referrals", func(r chi.Router) {
			r.Get("/", admin.ListReferrals(deps.Referrals, logg))
			r.Post("/bulk", admin.BulkDecide(deps.Referrals, logg))
			r.Post("/{applicationId}/approve", admin.ApproveReferral(deps.Referrals, logg))
			r.Post("/{applicationId}/reject", admin.RejectReferral(deps.Referrals, logg))
		})
		r.Route("/users/{userId}", func(r chi.Router) {
			r.With(idempotent).Post("/adjust", admin.AdjustUser(deps.Ledger, logg))
			r.Get("/ledger", admin.UserLedger(deps.Ledger, logg))
			r.Post("/counters", admin.GrantCounter(deps.Rewards, logg))
			r.Delete("/", admin.EraseUser(deps.Eraser, logg))
		})
		r.Get("/stats", admin.Stats(deps.Stats, logg))
		r.Post("/expiry/sweep", admin.RunExpirySweep(deps.Sweeper, deps.Clock, logg))
		r.Post("/program/reload", admin.ReloadProgram(deps.Program, logg))
		r.Get("/outbox/dlq", admin.ListDeadLetters(deps.DLQ, logg))
		r.Post("/outbox/dlq/{eventId}/requeue", admin.RequeueDeadLetter(deps.DLQ, logg))
	})

	return r
}
