package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/backend/internal/apperror"
	"github.com/aura-studio/backend/internal/middleware"
	"github.com/aura-studio/backend/internal/models"
	"github.com/aura-studio/backend/pkg/database"
	"github.com/aura-studio/backend/pkg/queue"
)

type memStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*models.GenerationJob
	failures map[uuid.UUID]Failure
	// script of updates applied on each GetByID after the first, to simulate a running worker
	steps []func(*models.GenerationJob)
}

func newMemStore() *memStore {
	return &memStore{jobs: map[uuid.UUID]*models.GenerationJob{}, failures: map[uuid.UUID]Failure{}}
}

func (m *memStore) Create(_ context.Context, j *models.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.CreatedAt = time.Now()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *j
	if len(m.steps) > 0 {
		m.steps[0](j)
		m.steps = m.steps[1:]
	}
	return &cp, nil
}

func (m *memStore) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.GenerationJob, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GenerationJob
	for _, j := range m.jobs {
		if j.UserID == userID {
			out = append(out, *j)
		}
	}
	return out, len(out), nil
}

func (m *memStore) MarkFailed(_ context.Context, id uuid.UUID, f Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = f
	m.jobs[id].Status = models.JobStatusFailed
	return nil
}

type fakeQueue struct {
	payloads []queue.GenerateVideoPayload
	err      error
}

func (q *fakeQueue) EnqueueGenerateVideo(_ context.Context, p queue.GenerateVideoPayload) error {
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, p)
	return nil
}

func TestSubmitCreatesAndEnqueues(t *testing.T) {
	store, q := newMemStore(), &fakeQueue{}
	svc := NewService(store, q, nil)
	user, script := uuid.New(), uuid.New()

	j, err := svc.Submit(context.Background(), user, SubmitInput{ScriptID: script, Scripts: []string{"a"}, ImageURLs: []string{"u"}})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, j.Status)

	require.Len(t, q.payloads, 1)
	assert.Equal(t, j.ID, q.payloads[0].JobID)
	assert.Equal(t, script, q.payloads[0].ScriptID)
	assert.Equal(t, []string{"u"}, q.payloads[0].ImageURLs)

	got, err := svc.Status(context.Background(), user, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
}

func TestSubmitValidation(t *testing.T) {
	svc := NewService(newMemStore(), &fakeQueue{}, nil)

	_, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{})
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidInput))

	_, err = svc.Submit(context.Background(), uuid.New(), SubmitInput{ScriptID: uuid.New(), ImageURLs: []string{" "}})
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidInput))
}

func TestSubmitEnqueueFailureMarksJobFailed(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &fakeQueue{err: errors.New("redis down")}, nil)

	_, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{ScriptID: uuid.New()})
	require.Error(t, err)
	require.Len(t, store.failures, 1)
	for _, f := range store.failures {
		assert.Equal(t, string(models.StageQueued), f.Stage)
	}
}

func TestStatusHidesOtherUsersJobs(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &fakeQueue{}, nil)
	j, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{ScriptID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.Status(context.Background(), uuid.New(), j.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
	_, err = svc.Status(context.Background(), uuid.New(), uuid.New())
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestNewFailure(t *testing.T) {
	f := NewFailure(models.StageGeneratingFromScratch, apperror.Upstream("image", errors.New("nsfw")))
	assert.Equal(t, "generating_from_scratch", f.Stage)
	assert.Equal(t, string(apperror.KindUpstream), f.Code)
	assert.Contains(t, f.Reason, "nsfw")

	f = NewFailure(models.StageAssemblingVideo, apperror.Persistence("videos.create", errors.New("pq: secret dsn")))
	assert.Equal(t, "internal error", f.Reason)
}

func asUser(id uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, id)
		c.Next()
	}
}

type fakeInspector struct{ state queue.TaskState }

func (f *fakeInspector) Summary() (queue.Summary, error) { return queue.Summary{Size: 1, Pending: 1}, nil }

func (f *fakeInspector) List(state queue.TaskState, page, size int) ([]queue.TaskView, error) {
	f.state = state
	return []queue.TaskView{{TaskID: "t1", State: string(state)}}, nil
}

func router(h *Handler, user uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", asUser(user))
	h.Register(api)
	h.RegisterAdmin(api.Group("/admin"))
	return r
}

func TestSubmitEndpoint(t *testing.T) {
	store, q := newMemStore(), &fakeQueue{}
	user := uuid.New()
	r := router(NewHandler(NewService(store, q, nil), nil, nil), user)

	body, _ := json.Marshal(SubmitInput{ScriptID: uuid.New()})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/videos/generate", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, q.payloads, 1)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/videos/generate", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"invalid_input"`)
}

func TestAdminListEndpoint(t *testing.T) {
	insp := &fakeInspector{}
	r := router(NewHandler(NewService(newMemStore(), &fakeQueue{}, nil), insp, nil), uuid.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/jobs?state=retry", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, queue.StateRetry, insp.state)
	assert.Contains(t, w.Body.String(), `"task_id":"t1"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/jobs?state=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProgressStream(t *testing.T) {
	store := newMemStore()
	user := uuid.New()
	svc := NewService(store, &fakeQueue{}, nil)
	j, err := svc.Submit(context.Background(), user, SubmitInput{ScriptID: uuid.New()})
	require.NoError(t, err)

	set := func(status models.JobStatus, stage models.JobStage, p int) func(*models.GenerationJob) {
		return func(j *models.GenerationJob) { j.Status, j.Stage, j.Progress = status, stage, p }
	}
	// The handler's initial Status read consumes the first step.
	store.steps = []func(*models.GenerationJob){
		set(models.JobStatusRunning, models.StageValidating, 10),
		func(*models.GenerationJob) {},
		set(models.JobStatusRunning, models.StageAssemblingVideo, 70),
		set(models.JobStatusSucceeded, models.StageCompleted, 100),
	}

	h := NewHandler(svc, nil, nil)
	h.poll = 5 * time.Millisecond
	srv := httptest.NewServer(router(h, user))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/" + j.ID.String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var progress []int
	var last Event
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		last = ev
		if ev.Event == "progress" {
			progress = append(progress, ev.Job.Progress)
		}
	}
	assert.Equal(t, []int{0, 10, 70, 100}, progress)
	assert.Equal(t, "done", last.Event)
	assert.Equal(t, models.JobStatusSucceeded, last.Job.Status)
}
