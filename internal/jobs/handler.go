package jobs

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-studio/backend/internal/middleware"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/pkg/queue"
	"github.com/aura-studio/backend/pkg/response"
)

// PollInterval is how often the progress stream re-reads the job row.
const PollInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Inspector is the read-only queue view.
type Inspector interface {
	Summary() (queue.Summary, error)
	List(state queue.TaskState, page, size int) ([]queue.TaskView, error)
}

// Event is one progress stream message.
type Event struct {
	Event string                `json:"event"`
	Job   *models.GenerationJob `json:"job,omitempty"`
	Error string                `json:"error,omitempty"`
}

// Handler handles job submission, status and the admin queue view.
type Handler struct {
	svc       *Service
	inspector Inspector
	poll      time.Duration
	logger    *zap.Logger
}

// NewHandler creates a job handler. inspector may be nil when the admin view is not served.
func NewHandler(svc *Service, inspector Inspector, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, inspector: inspector, poll: PollInterval, logger: logger}
}

// Register mounts the caller-facing routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/videos/generate", h.Submit)
	rg.GET("/jobs", h.List)
	rg.GET("/jobs/:id", h.Get)
	rg.GET("/jobs/:id/ws", h.Stream)
}

// RegisterAdmin mounts the queue view on an admin-only group.
func (h *Handler) RegisterAdmin(rg *gin.RouterGroup) {
	rg.GET("/jobs", h.AdminList)
}

// Submit handles POST /videos/generate.
func (h *Handler) Submit(c *gin.Context) {
	var in SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	j, err := h.svc.Submit(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"job_id": j.ID, "status": j.Status})
}

// List handles GET /jobs.
func (h *Handler) List(c *gin.Context) {
	p, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.svc.List(c.Request.Context(), middleware.UserID(c), p, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, page)
}

// Get handles GET /jobs/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return
	}
	j, err := h.svc.Status(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, j)
}

// Stream handles GET /jobs/:id/ws. It pushes the job whenever stage or progress changes and
// closes after the terminal state has been sent.
func (h *Handler) Stream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return
	}
	userID := middleware.UserID(c)
	j, err := h.svc.Status(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		// Reads only detect the peer closing.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	h.stream(ctx, conn, userID, j)
}

func (h *Handler) stream(ctx context.Context, conn *websocket.Conn, userID uuid.UUID, j *models.GenerationJob) {
	send := func(ev Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(ev) == nil
	}
	if !send(Event{Event: "progress", Job: j}) {
		return
	}
	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	last := j
	for !last.Status.Terminal() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cur, err := h.svc.Status(ctx, userID, j.ID)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("poll job", zap.String("job_id", j.ID.String()), zap.Error(err))
				send(Event{Event: "error", Error: "could not read job"})
			}
			return
		}
		if cur.Progress == last.Progress && cur.Stage == last.Stage && cur.Status == last.Status {
			continue
		}
		if !send(Event{Event: "progress", Job: cur}) {
			return
		}
		last = cur
	}
	send(Event{Event: "done", Job: last})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// AdminList handles GET /admin/jobs?state=&page=&size=.
func (h *Handler) AdminList(c *gin.Context) {
	if h.inspector == nil {
		response.ServiceUnavailable(c, "queue inspection unavailable")
		return
	}
	state, err := queue.ParseTaskState(c.Query("state"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, size := models.NormalizePage(atoi(c.Query("page")), atoi(c.Query("size")))
	summary, err := h.inspector.Summary()
	if err != nil {
		h.logger.Error("queue summary", zap.Error(err))
		response.Internal(c, "failed to inspect queue")
		return
	}
	tasks, err := h.inspector.List(state, page, size)
	if err != nil {
		h.logger.Error("list queue tasks", zap.String("state", string(state)), zap.Error(err))
		response.Internal(c, "failed to inspect queue")
		return
	}
	if tasks == nil {
		tasks = []queue.TaskView{}
	}
	response.OK(c, gin.H{"summary": summary, "state": state, "page": page, "size": size, "tasks": tasks})
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
