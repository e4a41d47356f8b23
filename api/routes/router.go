package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avelarsoto/tianguis-backend/api/controllers"
	ordercontrollers "github.com/avelarsoto/tianguis-backend/api/controllers/orders"
	webhookcontrollers "github.com/avelarsoto/tianguis-backend/api/controllers/webhooks"
	"github.com/avelarsoto/tianguis-backend/api/middleware"
	"github.com/avelarsoto/tianguis-backend/internal/orders"
	"github.com/avelarsoto/tianguis-backend/internal/payouts"
	"github.com/avelarsoto/tianguis-backend/internal/stock"
	stripewebhook "github.com/avelarsoto/tianguis-backend/internal/webhooks/stripe"
	"github.com/avelarsoto/tianguis-backend/internal/withdrawals"
	"github.com/avelarsoto/tianguis-backend/pkg/config"
	"github.com/avelarsoto/tianguis-backend/pkg/db"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
	"github.com/avelarsoto/tianguis-backend/pkg/redis"
	"github.com/avelarsoto/tianguis-backend/pkg/stripe"
)

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config             *config.Config
	Logger             *logger.Logger
	DB                 db.Pinger
	Redis              *redis.Client
	Gatherer           prometheus.Gatherer
	Orders             orders.Service
	Stock              stock.Service
	Payouts            payouts.Service
	Withdrawals        withdrawals.Service
	StripeClient       *stripe.Client
	StripeWebhook      *stripewebhook.Service
	StripeWebhookGuard *stripewebhook.IdempotencyGuard
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	deps := []controllers.Dependency{{Name: "database", Pinger: params.DB}}
	if params.Redis != nil {
		deps = append(deps, controllers.Dependency{Name: "redis", Pinger: params.Redis})
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps...))
	})

	if params.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.StripeWebhook, params.StripeClient, params.StripeWebhookGuard, logg))
		r.Post("/carrier", webhookcontrollers.CarrierWebhook(params.Orders, cfg.Carrier.WebhookToken, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		useRedisGuards(r, params.Redis, logg)

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(params.Orders, logg))
			r.Get("/", ordercontrollers.List(params.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(params.Orders, logg))
			r.Get("/{orderId}/history", ordercontrollers.History(params.Orders, logg))
			r.Get("/{orderId}/options", ordercontrollers.Options(params.Orders, logg))
			r.Post("/{orderId}/transition", ordercontrollers.Transition(params.Orders, logg))
			r.Get("/{orderId}/payouts", controllers.OrderPayouts(params.Payouts, logg))
		})

		r.Route("/seller", func(r chi.Router) {
			r.Get("/{sellerId}/balance", controllers.SellerBalance(params.Payouts, logg))
			r.Get("/{sellerId}/payouts", controllers.SellerPayouts(params.Payouts, logg))
			r.Get("/{sellerId}/withdrawals", controllers.WithdrawalList(params.Withdrawals, logg))
			r.Post("/withdrawals", controllers.WithdrawalCreate(params.Withdrawals, logg))
		})

		r.Route("/stock", func(r chi.Router) {
			r.Get("/{productId}", controllers.StockLevel(params.Stock, logg))
			r.Get("/{productId}/movements", controllers.StockMovements(params.Stock, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		useRedisGuards(r, params.Redis, logg)

		r.Get("/ping", controllers.AdminPing())

		r.Route("/stock", func(r chi.Router) {
			r.Post("/bulk-update", controllers.StockBulkUpdate(params.Stock, logg))
			r.Route("/{productId}", func(r chi.Router) {
				r.Post("/restock", controllers.StockRestock(params.Stock, logg))
				r.Post("/adjust", controllers.StockAdjust(params.Stock, logg))
				r.Post("/rebuild", controllers.StockRebuild(params.Stock, logg))
			})
		})

		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/pending", controllers.AdminWithdrawalsPending(params.Withdrawals, logg))
			r.Post("/{withdrawalId}/complete", controllers.AdminWithdrawalComplete(params.Withdrawals, logg))
			r.Post("/{withdrawalId}/reject", controllers.AdminWithdrawalReject(params.Withdrawals, logg))
		})

		r.Post("/payouts/sweep", controllers.AdminRunSweep(params.Payouts, logg))
	})

	return r
}

// useRedisGuards wires the redis-backed middleware when a client is
// configured. Without one the guards are disabled.
func useRedisGuards(r chi.Router, client *redis.Client, logg *logger.Logger) {
	if client == nil {
		return
	}
	r.Use(middleware.Idempotency(client, logg))
	r.Use(middleware.RateLimit(client, logg))
}
