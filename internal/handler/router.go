package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/maxai/client/internal/handler/auth"
	"github.com/zhouzirui/maxai/client/internal/handler/chat"
	"github.com/zhouzirui/maxai/client/internal/handler/page"
	"github.com/zhouzirui/maxai/client/internal/handler/session"
	"github.com/zhouzirui/maxai/client/internal/middleware"
	chatService "github.com/zhouzirui/maxai/client/internal/service/chat"
	sessionService "github.com/zhouzirui/maxai/client/internal/service/session"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(sessions *sessionService.Manager, chatSvc *chatService.Service, cookies *middleware.Sessions, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Group(func(app chi.Router) {
		app.Use(cookies.Handler)

		page.New(sessions, chatSvc, logger).RegisterRoutes(app)
		auth.New(sessions, chatSvc, logger).RegisterRoutes(app)

		app.Route("/api", func(api chi.Router) {
			session.New(sessions, logger).RegisterRoutes(api)
			chat.New(chatSvc, sessions).RegisterRoutes(api)
		})
	})

	return r
}
