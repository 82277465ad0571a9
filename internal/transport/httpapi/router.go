// Package httpapi — публичный HTTP API витрины: каталог, корзина,
// оформление и оплата заказов.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/taxonomy"
)

const (
	// CartSessionHeader идентифицирует корзину.
	CartSessionHeader = "X-Cart-Session"
	// IdempotencyKeyHeader защищает оформление и оплату от повторов.
	IdempotencyKeyHeader = "Idempotency-Key"

	requestTimeout = 30 * time.Second
)

// Deps — зависимости HTTP API. Guard, Health и Taxonomy необязательны.
type Deps struct {
	Catalog  *catalog.Service
	Taxonomy *taxonomy.Service
	Carts    *cart.Sessions
	Orders   *ordering.Service
	Tokens   *auth.Tokens
	Guard    *idempotency.Guard
	Health   *health.Handler
	Logger   *log.Entry
}

// Handler обслуживает маршруты /api/v1.
type Handler struct {
	catalog  *catalog.Service
	taxonomy *taxonomy.Service
	carts    *cart.Sessions
	orders   *ordering.Service
	guard    *idempotency.Guard
	logger   *log.Entry
}

// NewRouter собирает chi-роутер с middleware и оборачивает его в otelhttp.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	h := &Handler{
		catalog:  deps.Catalog,
		taxonomy: deps.Taxonomy,
		carts:    deps.Carts,
		orders:   deps.Orders,
		guard:    deps.Guard,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", health.LivenessHandler)
	if deps.Health != nil {
		r.Get("/readyz", deps.Health.ReadinessHandler)
		r.Get("/health", deps.Health.ServeHTTP)
	} else {
		r.Get("/readyz", health.LivenessHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate(deps.Tokens))

		r.Get("/catalog", h.listCatalog)
		r.Get("/catalog/featured", h.featured)
		r.Get("/catalog/{id}", h.getEntry)
		r.Get("/categories/{id}/catalog", h.listCategory)
		if h.taxonomy != nil {
			r.Get("/categories", h.listCategories)
			r.Get("/categories/{id}", h.getCategory)
			r.Get("/delivery-modes", h.listDeliveryModes)
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.viewCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addCartItem)
			r.Put("/items/{id}", h.setCartItem)
			r.Delete("/items/{id}", h.removeCartItem)
			r.Post("/checkout", h.checkout)
		})

		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/pay", h.payOrder)
	})

	return otelhttp.NewHandler(r, "storefront-http")
}
