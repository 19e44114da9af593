package router

import (
	"net/http"

	"webhook-ingest/backend/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupOperationalRoutes registers the scrape endpoint and the API document
func (r *Router) setupOperationalRoutes() {
	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Engine.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", validator.Document())
	})
}
