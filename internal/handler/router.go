package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paperbase/paperbase/internal/middleware"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Ask       *AskHandler
	// RateWindow throttles the expensive endpoints (upload, ask) to one
	// request per client per window. Zero disables throttling.
	RateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	limit := middleware.RateLimit(deps.RateWindow)

	api.GET("/documents", deps.Documents.List)
	api.POST("/documents", limit, deps.Documents.Upload)
	api.GET("/documents/:slug/status", deps.Documents.Status)
	api.GET("/documents/:slug/pdf", deps.Documents.PDF)
	api.POST("/documents/:slug/ask", limit, deps.Ask.Ask)
}
