package assets

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-studio/backend/internal/middleware"
	"github.com/aura-studio/backend/pkg/response"
)

// Handler handles asset CRUD endpoints.
type Handler struct {
	scripts *ScriptService
	audios  *AudioService
	images  *ImageService
	videos  *VideoService
}

// NewHandler creates an asset handler.
func NewHandler(scripts *ScriptService, audios *AudioService, images *ImageService, videos *VideoService) *Handler {
	return &Handler{scripts: scripts, audios: audios, images: images, videos: videos}
}

// Register mounts the asset routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/scripts", h.CreateScript)
	rg.GET("/scripts", h.ListScripts)
	rg.GET("/scripts/:id", h.GetScript)
	rg.PATCH("/scripts/:id", h.UpdateScript)
	rg.DELETE("/scripts/:id", h.DeleteScript)

	rg.POST("/audios", h.CreateAudio)
	rg.GET("/audios", h.ListAudios)
	rg.GET("/audios/:id", h.GetAudio)
	rg.PATCH("/audios/:id", h.UpdateAudio)
	rg.DELETE("/audios/:id", h.DeleteAudio)

	rg.POST("/images", h.CreateImage)
	rg.GET("/images", h.ListImages)
	rg.GET("/images/:id", h.GetImage)
	rg.PATCH("/images/:id", h.UpdateImage)
	rg.DELETE("/images/:id", h.DeleteImage)

	rg.POST("/videos", h.CreateVideo)
	rg.GET("/videos", h.ListVideos)
	rg.GET("/videos/:id", h.GetVideo)
	rg.GET("/videos/:id/download", h.DownloadVideo)
	rg.PATCH("/videos/:id", h.UpdateVideo)
	rg.DELETE("/videos/:id", h.DeleteVideo)
}

func userID(c *gin.Context) uuid.UUID {
	return middleware.UserID(c)
}

func pageQuery(c *gin.Context) (int, int) {
	p, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return p, limit
}

func idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// CreateScript handles POST /scripts.
func (h *Handler) CreateScript(c *gin.Context) {
	var in CreateScriptInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.scripts.Create(c.Request.Context(), in, userID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, s)
}

// ListScripts handles GET /scripts?page=&limit=.
func (h *Handler) ListScripts(c *gin.Context) {
	p, limit := pageQuery(c)
	out, err := h.scripts.FindAll(c.Request.Context(), userID(c), p, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// GetScript handles GET /scripts/:id.
func (h *Handler) GetScript(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	s, err := h.scripts.FindOne(c.Request.Context(), userID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, s)
}

// UpdateScript handles PATCH /scripts/:id.
func (h *Handler) UpdateScript(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch ScriptPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.scripts.Update(c.Request.Context(), userID(c), id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, s)
}

// DeleteScript handles DELETE /scripts/:id.
func (h *Handler) DeleteScript(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	s, err := h.scripts.SoftDelete(c.Request.Context(), userID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, s)
}

// CreateAudio handles POST /audios.
func (h *Handler) CreateAudio(c *gin.Context) {
	var in CreateAudioInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.audios.Create(c.Request.Context(), in, userID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, a)
}

// ListAudios handles GET /audios?page=&limit=.
func (h *Handler) ListAudios(c *gin.Context) {
	p, limit := pageQuery(c)
	out, err := h.audios.FindAll(c.Request.Context(), userID(c), p, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// GetAudio handles GET /audios/:id.
func (h *Handler) GetAudio(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	a, err := h.audios.FindOne(c.Request.Context(), userID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, a)
}

// UpdateAudio handles PATCH /audios/:id.
func (h *Handler) UpdateAudio(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch AudioPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.audios.Update(c.Request.Context(), userID(c), id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, a)
}

// DeleteAudio handles DELETE /audios/:id.
func (h *Handler) DeleteAudio(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	a, err := h.audios.SoftDelete(c.Request.Context(), userID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, a)
}

// CreateImage handles POST /images.
func (h *Handler) CreateImage(c *gin.Context) {
	var in CreateImageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	img, err := h.images.Create(c.Request.Context(), in, userID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, img)
}

// ListImages handles GET /images?page=&limit=.
func (h *Handler) ListImages(c *gin.Context) {
	p, limit := pageQuery(c)
	out, err := h.images.FindAll(c.Request.Context(), userID(c), p, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// GetImage handles GET /images/:id.
func (h *Handler) GetImage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	img, err := h.images.FindOne(c.Request.Context(), userID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, img)
}

// UpdateImage handles PATCH /images/:id.
func (h *Handler) UpdateImage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch ImagePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	img, err := h.images.Update(c.Request.Context(), userID(c), id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, img)
}

// DeleteImage handles DELETE /images/:id.
func (h *Handler) DeleteImage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	img, err := h.images.SoftDelete(c.Request.Context(), userID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, img)
}

// CreateVideo handles POST /videos.
func (h *Handler) CreateVideo(c *gin.Context) {
	var in CreateVideoInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	v, err := h.videos.Create(c.Request.Context(), in, userID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, v)
}

// ListVideos handles GET /videos?page=&limit=.
func (h *Handler) ListVideos(c *gin.Context) {
	p, limit := pageQuery(c)
	out, err := h.videos.FindAll(c.Request.Context(), userID(c), p, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// GetVideo handles GET /videos/:id.
func (h *Handler) GetVideo(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	v, err := h.videos.FindOne(c.Request.Context(), userID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// DownloadVideo handles GET /videos/:id/download.
func (h *Handler) DownloadVideo(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	d, err := h.videos.Download(c.Request.Context(), userID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, d)
}

// UpdateVideo handles PATCH /videos/:id.
func (h *Handler) UpdateVideo(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch VideoPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	v, err := h.videos.Update(c.Request.Context(), userID(c), id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// DeleteVideo handles DELETE /videos/:id.
func (h *Handler) DeleteVideo(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	v, err := h.videos.SoftDelete(c.Request.Context(), userID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}
