package httptransport

import (
	"expvar"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"cultura-chupistica/internal/gateway"
	"cultura-chupistica/internal/ws"
)

func NewRouter(dispatcher *gateway.Dispatcher, wsServer *ws.Server, pinger Pinger) *chi.Mux {
	handlers := NewCommandHandlers(dispatcher)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", Health(pinger))
	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Post("/command", handlers.Command())
	})

	// ws upgrade bypasses the request logger so the hijacked connection
	// does not confuse the response recorder
	r.Get("/api/games/{code}/events", wsServer.HandleWS)

	return r
}
