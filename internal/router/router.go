package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/casescope/hub/internal/config"
	"github.com/casescope/hub/internal/handler"
	"github.com/casescope/hub/internal/middleware"
	"github.com/casescope/hub/internal/service"
)

// Deps are the shared service instances wired in main.go. The directory
// is shared with the sync scheduler, the thread manager with health.
type Deps struct {
	Auth     *service.AuthService
	Pipeline *service.Pipeline
	Resolver *service.Resolver
	Threads  *service.ThreadManager
	Dir      *service.Directory
	Audit    service.SecurityLog
}

// New builds the HTTP router.
func New(cfg *config.Config, d Deps) http.Handler {
	authH := handler.NewAuthHandler(d.Auth)
	chatH := handler.NewChatHandler(d.Pipeline)
	docH := handler.NewDocumentHandler(d.Resolver)
	adminH := handler.NewAdminHandler(d.Dir, d.Audit)
	healthH := handler.NewHealthHandler("0.3.0", d.Dir, d.Threads)

	requireAuth := middleware.AuthMiddleware(d.Auth.ValidateToken)
	requireAdmin := middleware.RequireAdminSecret(cfg.AdminSecret)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Trace)

	// Public
	r.Get("/v1/health", healthH.Health)
	r.Get("/v1/version", healthH.Version)
	r.Post("/v1/auth/login", authH.Login)

	// Authenticated
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/v1/chat", chatH.Chat)
		r.Delete("/v1/chat", chatH.Clear)
		r.Post("/v1/documents/resolve", docH.Resolve)
	})

	// Operator
	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/internal/sync", adminH.ForceSync)
	})

	return r
}
