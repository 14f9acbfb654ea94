package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"elementx/internal/metrics"
)

// NewRouter wires every endpoint behind the shared middleware stack.
func NewRouter(h *Handler, m *metrics.Metrics, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(m.Middleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(LoggingContext(log))
	r.Use(Recoverer)
	r.Use(CORS)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/images", h.GetImage)
		r.Get("/images/ws", h.ImagesWS)
		r.Get("/queue", h.QueueStatus)
		r.Post("/explain", h.Explain)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", m.Handler())

	return r
}
