package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/UnAfraid/wgtunnel/pkg/config"
	"github.com/UnAfraid/wgtunnel/pkg/manage"
)

func NewRouter(
	conf *config.Config,
	manageService manage.Service,
) http.Handler {
	h := &tunnelHandler{
		manageService: manageService,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: conf.CorsAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", integrationSecretHeader},
	}))

	router.HandleFunc("/health", func(writer http.ResponseWriter, request *http.Request) {})

	router.Group(func(r chi.Router) {
		r.Use(integrationSecretMiddleware(conf.IntegrationSecret))

		r.Get("/tunnels", h.list)
		r.Get("/export", h.export)
		r.Route("/tunnels/{name}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.put)
			r.Delete("/", h.delete)
			r.Post("/rename", h.rename)
			r.Get("/state", h.getState)
			r.Put("/state", h.setState)
			r.Get("/statistics", h.statistics)
		})

		r.Get("/tools", h.toolsStatus)
		r.Post("/tools/install", h.installTools)
	})

	return router
}
