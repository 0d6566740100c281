package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cargoloop/forwarder-backend/api/controllers"
	"github.com/cargoloop/forwarder-backend/api/middleware"
	"github.com/cargoloop/forwarder-backend/internal/boxes"
	"github.com/cargoloop/forwarder-backend/internal/platformconfig"
	"github.com/cargoloop/forwarder-backend/internal/shipping"
	"github.com/cargoloop/forwarder-backend/pkg/config"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
	pkgredis "github.com/cargoloop/forwarder-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *pkgredis.Client,
	metricsGatherer prometheus.Gatherer,
	settingsProvider *platformconfig.Provider,
	boxService boxes.Service,
	shippingService shipping.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg))
	})

	if metricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsGatherer, promhttp.HandlerOpts{}))
	}

	var idempotencyStore pkgredis.IdempotencyStore
	if redisClient != nil {
		idempotencyStore = redisClient
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/boxes", func(r chi.Router) {
			r.Post("/", controllers.CreateBox(boxService, logg))
			r.Get("/", controllers.ListBoxes(boxService, logg))
			r.Route("/{boxID}", func(r chi.Router) {
				r.Get("/", controllers.GetBox(boxService, logg))
				r.Delete("/", controllers.DeleteBox(boxService, logg))
				r.Post("/packages", controllers.AddPackage(boxService, logg))
				r.Delete("/packages/{packageID}", controllers.RemovePackage(boxService, logg))
				r.Post("/photos", controllers.AppendPhotos(boxService, logg))
				r.Post("/close", controllers.CloseBox(boxService, logg))
				r.Patch("/status", controllers.UpdateBoxStatus(boxService, logg))
			})
		})

		r.Post("/shipping/quotes", controllers.QuoteRates(shippingService, logg))
		r.Route("/shipments", func(r chi.Router) {
			r.Post("/", controllers.CreateShipment(shippingService, logg))
			r.Get("/{trackingNumber}", controllers.TrackShipment(shippingService, logg))
			r.Delete("/{trackingNumber}", controllers.CancelShipment(shippingService, logg))
		})

		r.Post("/platform-config/reload", controllers.ReloadPlatformConfig(settingsProvider, logg))
	})

	return r
}
