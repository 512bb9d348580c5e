package channels

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/middleware"
	"github.com/aura-studio/backend/pkg/response"
)

// Handler handles account connection and statistics endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a channel handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the authenticated routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/auth/youtube/url", h.ConnectURL)
	rg.DELETE("/auth/youtube", h.Disconnect)
	rg.GET("/channels/me/stats", h.Stats)
	rg.GET("/videos/:id/analytics", h.Analytics)
}

// RegisterCallback mounts the OAuth redirect target. The platform calls it without a bearer
// token; the user is identified by the state parameter.
func (h *Handler) RegisterCallback(rg *gin.RouterGroup) {
	rg.GET("/auth/youtube/callback", h.Callback)
}

// ConnectURL handles GET /auth/youtube/url.
func (h *Handler) ConnectURL(c *gin.Context) {
	response.OK(c, gin.H{"url": h.svc.ConnectURL(middleware.UserID(c))})
}

// Callback handles GET /auth/youtube/callback?code=&state=.
func (h *Handler) Callback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		response.Error(c, apperror.InvalidInput("channels.callback", "authorization was not granted: %s", reason))
		return
	}
	conn, err := h.svc.Complete(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, conn)
}

// Disconnect handles DELETE /auth/youtube.
func (h *Handler) Disconnect(c *gin.Context) {
	if err := h.svc.Disconnect(c.Request.Context(), middleware.UserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats handles GET /channels/me/stats.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// Analytics handles GET /videos/:id/analytics.
func (h *Handler) Analytics(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return
	}
	st, err := h.svc.Analytics(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}
