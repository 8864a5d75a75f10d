package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/pubsub-outbox/internal/api/handler"
	apimw "github.com/ricirt/pubsub-outbox/internal/api/middleware"
	"github.com/ricirt/pubsub-outbox/internal/domain"
	"github.com/ricirt/pubsub-outbox/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
// db may be nil when no database is configured.
func NewRouter(
	svc *service.OutboxService,
	db handler.Pinger,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	// JSON base64 inflates payloads by a third; leave headroom over the payload cap.
	r.Use(chimw.RequestSize(2 * domain.MaxPayloadSize))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	mh := handler.NewMessageHandler(svc, logger)
	oh := handler.NewOutboxHandler(svc)
	hh := handler.NewHealthHandler(db)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", mh.Publish)
		r.Get("/messages", mh.List)
		r.Get("/messages/{id}", mh.GetByID)
		r.Post("/messages/{id}/ack", mh.Ack)
		r.Post("/messages/{id}/pending", mh.MarkPending)
		r.Delete("/messages/{id}", mh.Cancel)

		r.Delete("/kinds/{kind}", mh.PurgeKind)

		r.Get("/outbox", oh.Stats)
		r.Get("/failures", oh.Failures)
	})

	return r
}
