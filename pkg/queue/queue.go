package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	// TypeGenerateVideo is the task type of a video generation job.
	TypeGenerateVideo = "video:generate"
	// QueueDefault is the asynq queue generation tasks are written to.
	QueueDefault = "default"
)

// ErrDuplicate is returned when a task for the same job is already queued.
var ErrDuplicate = errors.New("job already enqueued")

// GenerateVideoPayload is the payload of a generation task.
type GenerateVideoPayload struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    uuid.UUID `json:"user_id"`
	ScriptID  uuid.UUID `json:"script_id"`
	Scripts   []string  `json:"scripts,omitempty"`
	ImageURLs []string  `json:"image_urls,omitempty"`
}

// ParseGenerateVideo decodes the payload of t.
func ParseGenerateVideo(t *asynq.Task) (GenerateVideoPayload, error) {
	var p GenerateVideoPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.JobID == uuid.Nil {
		return p, errors.New("payload has no job_id")
	}
	return p, nil
}

// Options are the per-task execution policies.
type Options struct {
	MaxRetry  int
	Timeout   time.Duration // zero leaves asynq's default
	Retention time.Duration
}

// inspector is the part of *asynq.Inspector the admin view reads.
type inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListPendingTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListActiveTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListRetryTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListCompletedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// Queue enqueues generation tasks and inspects the queue for the admin view.
type Queue struct {
	client    *asynq.Client
	inspector inspector
	opts      Options
	logger    *zap.Logger
}

// NewQueue creates an asynq-backed job queue on the given Redis connection.
func NewQueue(redisOpt asynq.RedisConnOpt, opts Options, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		opts:      opts,
		logger:    logger,
	}
}

// Close releases the Redis connections.
func (q *Queue) Close() error {
	if err := q.inspector.Close(); err != nil {
		q.logger.Warn("close inspector", zap.Error(err))
	}
	return q.client.Close()
}

// EnqueueGenerateVideo enqueues one generation task. The job id doubles as the task id so a
// job is never queued twice.
func (q *Queue) EnqueueGenerateVideo(ctx context.Context, p GenerateVideoPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.TaskID(p.JobID.String()),
		asynq.MaxRetry(q.opts.MaxRetry),
	}
	if q.opts.Timeout > 0 {
		opts = append(opts, asynq.Timeout(q.opts.Timeout))
	}
	if q.opts.Retention > 0 {
		opts = append(opts, asynq.Retention(q.opts.Retention))
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TypeGenerateVideo, body), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	q.logger.Info("enqueued generation job",
		zap.String("job_id", p.JobID.String()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
		zap.Int("max_retry", info.MaxRetry),
	)
	return nil
}

// TaskState names the queue states listed by the admin view.
type TaskState string

const (
	StatePending   TaskState = "pending"
	StateActive    TaskState = "active"
	StateScheduled TaskState = "scheduled"
	StateRetry     TaskState = "retry"
	StateArchived  TaskState = "archived"
	StateCompleted TaskState = "completed"
)

// ParseTaskState validates s. Empty selects pending.
func ParseTaskState(s string) (TaskState, error) {
	switch st := TaskState(s); st {
	case "":
		return StatePending, nil
	case StatePending, StateActive, StateScheduled, StateRetry, StateArchived, StateCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown task state %q", s)
}

// TaskView is one queued task as shown to operators.
type TaskView struct {
	TaskID        string               `json:"task_id"`
	State         string               `json:"state"`
	Payload       GenerateVideoPayload `json:"payload"`
	Retried       int                  `json:"retried"`
	MaxRetry      int                  `json:"max_retry"`
	LastError     string               `json:"last_error,omitempty"`
	LastFailedAt  *time.Time           `json:"last_failed_at,omitempty"`
	NextProcessAt *time.Time           `json:"next_process_at,omitempty"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// Summary counts tasks per state in the generation queue.
type Summary struct {
	Size      int `json:"size"`
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Scheduled int `json:"scheduled"`
	Retry     int `json:"retry"`
	Archived  int `json:"archived"`
	Completed int `json:"completed"`
}

// Summary returns per-state counts. A queue that has never held a task is empty.
func (q *Queue) Summary() (Summary, error) {
	info, err := q.inspector.GetQueueInfo(QueueDefault)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return Summary{}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("queue info: %w", err)
	}
	return Summary{
		Size:      info.Size,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Completed: info.Completed,
	}, nil
}

// List returns one page of tasks in state. page is 1-based.
func (q *Queue) List(state TaskState, page, size int) ([]TaskView, error) {
	opts := []asynq.ListOption{asynq.Page(page), asynq.PageSize(size)}
	var (
		infos []*asynq.TaskInfo
		err   error
	)
	switch state {
	case StateActive:
		infos, err = q.inspector.ListActiveTasks(QueueDefault, opts...)
	case StateScheduled:
		infos, err = q.inspector.ListScheduledTasks(QueueDefault, opts...)
	case StateRetry:
		infos, err = q.inspector.ListRetryTasks(QueueDefault, opts...)
	case StateArchived:
		infos, err = q.inspector.ListArchivedTasks(QueueDefault, opts...)
	case StateCompleted:
		infos, err = q.inspector.ListCompletedTasks(QueueDefault, opts...)
	default:
		infos, err = q.inspector.ListPendingTasks(QueueDefault, opts...)
	}
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return []TaskView{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s tasks: %w", state, err)
	}
	out := make([]TaskView, 0, len(infos))
	for _, info := range infos {
		out = append(out, toView(info))
	}
	return out, nil
}

func toView(info *asynq.TaskInfo) TaskView {
	v := TaskView{
		TaskID:    info.ID,
		State:     info.State.String(),
		Retried:   info.Retried,
		MaxRetry:  info.MaxRetry,
		LastError: info.LastErr,
	}
	_ = json.Unmarshal(info.Payload, &v.Payload)
	v.LastFailedAt = nonZero(info.LastFailedAt)
	v.NextProcessAt = nonZero(info.NextProcessAt)
	v.CompletedAt = nonZero(info.CompletedAt)
	return v
}

func nonZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
