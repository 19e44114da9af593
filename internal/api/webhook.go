package api

import (
	"io"
	"net/http"

	"webhook-ingest/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// WebhookController accepts signed message deliveries
type WebhookController struct {
	ingest          *service.IngestService
	signatureHeader string
}

// NewWebhookController creates a new webhook controller
func NewWebhookController(ingest *service.IngestService, signatureHeader string) *WebhookController {
	if signatureHeader == "" {
		signatureHeader = "X-Signature"
	}
	return &WebhookController{ingest: ingest, signatureHeader: signatureHeader}
}

// RegisterRoutes registers the routes for the webhook controller
func (c *WebhookController) RegisterRoutes(router gin.IRoutes) {
	router.POST("/webhook", c.Receive)
}

// Receive handles POST /webhook
func (c *WebhookController) Receive(ctx *gin.Context) {
	// The signature covers the exact bytes on the wire, so read them before
	// anything parses the body
	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		_ = ctx.Error(toAppError(err))
		return
	}

	if _, err := c.ingest.Ingest(ctx.Request.Context(), body, ctx.GetHeader(c.signatureHeader)); err != nil {
		_ = ctx.Error(toAppError(err))
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
