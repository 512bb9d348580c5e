package publishing

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-studio/backend/internal/middleware"
	"github.com/aura-studio/backend/pkg/response"
)

// Handler handles publish endpoints.
type Handler struct {
	publisher *Publisher
	// uploadTimeout is the write deadline of the publish route, which streams the whole
	// upload before answering.
	uploadTimeout time.Duration
}

// NewHandler creates a publishing handler. uploadTimeout <= 0 keeps the server's WriteTimeout.
func NewHandler(p *Publisher, uploadTimeout time.Duration) *Handler {
	return &Handler{publisher: p, uploadTimeout: uploadTimeout}
}

// Register mounts the publishing routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/videos/:id/publish", middleware.WriteDeadline(h.uploadTimeout), h.Publish)
	rg.GET("/videos/:id/publications", h.List)
}

// Publish handles POST /videos/:id/publish.
func (h *Handler) Publish(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return
	}
	var in PublishInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rec, err := h.publisher.Publish(c.Request.Context(), middleware.UserID(c), id, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// List handles GET /videos/:id/publications.
func (h *Handler) List(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return
	}
	list, err := h.publisher.Records(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
