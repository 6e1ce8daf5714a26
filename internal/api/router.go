package api

import (
	_ "incident-pipeline/docs"
	"incident-pipeline/internal/api/handler"
	"incident-pipeline/pkg/router"

	httpSwagger "github.com/swaggo/http-swagger"
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.GET("/healthz", h.Health)
	r.GET("/api/v1/runs", h.ListRuns)
	r.GET("/api/v1/runs/{id}", h.GetRun)
	r.GET("/api/v1/runs/{id}/polls", h.ListPolls)

	r.GET("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
