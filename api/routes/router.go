package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koipond/koipond-backend/api/controllers"
	"github.com/koipond/koipond-backend/api/middleware"
	"github.com/koipond/koipond-backend/internal/checkout"
	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/internal/orders"
	"github.com/koipond/koipond-backend/internal/reports"
	"github.com/koipond/koipond-backend/internal/wallets"
	"github.com/koipond/koipond-backend/pkg/config"
	"github.com/koipond/koipond-backend/pkg/enums"
	"github.com/koipond/koipond-backend/pkg/logger"
	pkgredis "github.com/koipond/koipond-backend/pkg/redis"
)

// Deps are the services the HTTP surface dispatches to.
type Deps struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Checkout checkout.Service
	Orders   orders.Service
	Reports  reports.Service
	Wallets  wallets.Service
	Ledger   ledger.Service
	Revenue  *ledger.RevenueService
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	idem := func(ttl time.Duration) func(http.Handler) http.Handler {
		return middleware.Idempotency(deps.Idempotency, ttl, logg)
	}
	defaultTTL := cfg.FeatureFlags.IdempotencyTTL

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.With(idem(middleware.CriticalIdempotencyTTL)).Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.BuyerOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
			r.Put("/{orderId}", controllers.UpdateOrder(deps.Orders, logg))
			r.With(idem(middleware.CriticalIdempotencyTTL)).Post("/{orderId}/cancel", controllers.CancelOrder(deps.Orders, logg))
		})

		r.With(idem(defaultTTL)).Post("/reports", controllers.CreateReport(deps.Reports, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletBalance(deps.Wallets, logg))
			r.With(idem(defaultTTL)).Post("/withdrawals", controllers.RequestWithdrawal(deps.Wallets, logg))
		})

		r.Get("/shops/{shopId}/revenue", controllers.ShopRevenue(deps.Revenue, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.Use(idem(defaultTTL))
				r.Post("/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
				r.Post("/payment", controllers.AdminRecordOrderPayment(deps.Orders, logg))
			})

			r.Get("/reports", controllers.AdminListReports(deps.Reports, logg))
			r.With(idem(defaultTTL)).Post("/reports/{reportId}/resolve", controllers.AdminResolveReport(deps.Reports, logg))

			r.Route("/withdrawals/{transactionId}", func(r chi.Router) {
				r.Use(idem(defaultTTL))
				r.Post("/approve", controllers.AdminApproveWithdrawal(deps.Wallets, logg))
				r.Post("/reject", controllers.AdminRejectWithdrawal(deps.Wallets, logg))
			})

			r.With(idem(middleware.CriticalIdempotencyTTL)).Post("/deposits", controllers.AdminDeposit(deps.Wallets, logg))
			r.With(idem(middleware.CriticalIdempotencyTTL)).Post("/package-purchases", controllers.AdminRecordPackagePurchase(deps.Ledger, logg))

			r.Get("/revenue", controllers.AdminPlatformRevenue(deps.Revenue, logg))
			r.Get("/revenue/shops", controllers.AdminRevenueByShop(deps.Revenue, logg))
		})
	})

	return r
}
