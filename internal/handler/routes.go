package handler

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"wikid/internal/logger"
	"wikid/internal/middleware"
	"wikid/internal/service"
)

// NewRouter creates and configures the API router. Everything under
// /api requires Basic auth; /metrics is open.
func NewRouter(svc *service.Service, log logger.Logger) *chi.Mux {
	h := New(svc, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.BasicAuth(svc.Store()))
		r.Use(middleware.RequestLogger(log))

		r.Get("/hello", h.hello)

		r.Route("/pages", func(r chi.Router) {
			r.Post("/", h.createPage)
			r.Get("/", h.listPages)
			r.Get("/deleted", h.deletedPages)
			r.Get("/search", h.searchPages)
			r.Get("/templates", h.listTemplates)

			r.Route("/{pageID}", func(r chi.Router) {
				r.Delete("/", h.deletePage)
				r.Get("/source", h.getSource)
				r.Put("/source", h.putSource)
				r.Get("/html", h.getHTML)
				r.Get("/diff", h.getDiff)
				r.Get("/meta", h.getMeta)
				r.Get("/parent", h.getParent)
				r.Get("/path", h.getPath)
				r.Post("/path", h.changePath)
				r.Post("/revision", h.changeRevision)

				r.Post("/lock", h.acquireLock)
				r.Put("/lock", h.extendLock)
				r.Get("/lock", h.getLock)
				r.Delete("/lock", h.releaseLock)

				r.Get("/assets", h.listPageAssets)
				r.Post("/assets", h.uploadAsset)
				r.Get("/assets/{fileName}", h.pageAssetByName)
			})
		})

		r.Route("/assets/{assetID}", func(r chi.Router) {
			r.Get("/", h.getAssetBody)
			r.Get("/meta", h.getAssetMeta)
			r.Delete("/", h.deleteAsset)
		})
	})

	return r
}
