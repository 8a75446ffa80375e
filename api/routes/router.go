package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sirveme/quevendi-pos/api/controllers"
	"github.com/Sirveme/quevendi-pos/api/middleware"
	"github.com/Sirveme/quevendi-pos/internal/catalog"
	"github.com/Sirveme/quevendi-pos/internal/connectivity"
	"github.com/Sirveme/quevendi-pos/internal/correlative"
	"github.com/Sirveme/quevendi-pos/internal/sales"
	"github.com/Sirveme/quevendi-pos/pkg/config"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
)

// RouterParams bundles everything the diagnostics router exposes.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Sales       *sales.Service
	Catalog     *catalog.Service
	Correlative *correlative.Allocator
	Monitor     *connectivity.Monitor
	Device      controllers.DeviceSource
	Registry    *prometheus.Registry
}

// NewRouter builds the local diagnostics HTTP surface. It binds to
// loopback only; nothing here is meant for the sales floor network.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(params.Logger),
		middleware.RequestID(params.Logger),
		middleware.Logging(params.Logger),
	)

	r.Get("/healthz", controllers.Healthz(params.Config))
	r.Get("/status", controllers.Status(
		params.Config,
		params.Sales,
		params.Catalog,
		params.Correlative,
		params.Monitor,
		params.Device,
		params.Logger,
	))
	r.Get("/v/{code}", controllers.VerificationLookup(params.Sales, params.Logger))

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	return r
}
