package api

import (
	"net/http"

	"webhook-ingest/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// MessageController serves the read side
type MessageController struct {
	query *service.QueryService
	stats *service.StatsService
}

// NewMessageController creates a new message controller
func NewMessageController(query *service.QueryService, stats *service.StatsService) *MessageController {
	return &MessageController{query: query, stats: stats}
}

// RegisterRoutes registers the routes for the message controller
func (c *MessageController) RegisterRoutes(router gin.IRoutes) {
	router.GET("/messages", c.ListMessages)
	router.GET("/stats", c.GetStats)
}

func optionalQuery(ctx *gin.Context, key string) *string {
	if v, ok := ctx.GetQuery(key); ok {
		return &v
	}
	return nil
}

// ListMessages handles GET /messages
func (c *MessageController) ListMessages(ctx *gin.Context) {
	params, err := c.query.ParseParams(service.RawListParams{
		Limit:  optionalQuery(ctx, "limit"),
		Offset: optionalQuery(ctx, "offset"),
		From:   optionalQuery(ctx, "from"),
		Since:  optionalQuery(ctx, "since"),
		Q:      optionalQuery(ctx, "q"),
	})
	if err != nil {
		_ = ctx.Error(toAppError(err))
		return
	}

	page, err := c.query.List(ctx.Request.Context(), params)
	if err != nil {
		_ = ctx.Error(toAppError(err))
		return
	}

	ctx.JSON(http.StatusOK, page)
}

// GetStats handles GET /stats
func (c *MessageController) GetStats(ctx *gin.Context) {
	stats, err := c.stats.Stats(ctx.Request.Context())
	if err != nil {
		_ = ctx.Error(toAppError(err))
		return
	}

	ctx.JSON(http.StatusOK, stats)
}
