package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers mounted by NewRouter. A nil handler leaves its
// routes unmounted.
type Handlers struct {
	Documents *DocumentHandler
	Export    *ExportHandler
}

// NewRouter builds the HTTP surface. /healthz is open; everything else sits behind
// the x-api-key guard when apiKey is set.
func NewRouter(apiKey string, h Handlers, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/")
	api.Use(WithAPIKey(apiKey))
	if h.Documents != nil {
		api.POST("/process-document", h.Documents.ProcessDocument)
	}
	if h.Export != nil {
		api.GET("/parameters/:code/history", h.Export.History)
		api.GET("/results/export", h.Export.Results)
	}
	return r
}
