package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Services bundles what the router dispatches to.
type Services struct {
	Checkout  CheckoutRunner
	Orders    OrderService
	Inventory InventoryService
	Carts     CartEditor
	Streams   *Streams
	DB        Pinger
	Metrics   http.Handler
}

type RouterConfig struct {
	CORSOrigins []string
	Log         *zap.Logger
	HTTPMetrics HTTPMetrics
}

// NewRouter mounts every route. CORS wraps the router so preflight requests
// for unknown routes are still answered; the outermost handler starts a
// server span per request, skipping health checks and scrapes.
func NewRouter(svc Services, cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log, cfg.HTTPMetrics))
	r.Use(middleware.Recoverer)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", HealthHandler)
	if svc.DB != nil {
		r.Get("/ready", HandleReady(svc.DB))
	}
	if svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", svc.Metrics)
	}

	r.Get("/cart", HandleGetCart(svc.Carts, log))
	r.Put("/cart/items", HandleSetCartItem(svc.Carts, log))
	r.Post("/checkout", HandleCheckout(svc.Checkout, log))

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", HandleListOrders(svc.Orders, log))
		r.Get("/{orderID}", HandleGetOrder(svc.Orders, log))
		r.Post("/{orderID}/status", HandleUpdateOrderStatus(svc.Orders, log))
		r.Post("/{orderID}/cancel", HandleCancelOrder(svc.Orders, log))
	})

	r.Route("/inventory", func(r chi.Router) {
		r.Get("/low-stock", HandleLowStock(svc.Inventory, log))
		r.Get("/{productID}", HandleStockLevel(svc.Inventory, log))
		r.Post("/{productID}/restock", HandleRestock(svc.Inventory, log))
	})

	if svc.Streams != nil {
		r.Route("/stream", func(r chi.Router) {
			r.Get("/orders/{orderID}", svc.Streams.HandleOrder)
			r.Get("/notifications", svc.Streams.HandleNotifications)
			r.Get("/inventory", svc.Streams.HandleInventory)
		})
	}

	return otelhttp.NewHandler(CORS(cfg.CORSOrigins, r), "http.server",
		otelhttp.WithFilter(traced),
	)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, codeNotFound, "not found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
}

func traced(r *http.Request) bool {
	switch r.URL.Path {
	case "/health", "/ready", "/metrics":
		return false
	}
	return true
}
