package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/quillcms/quill/internal/platform/httpx"
	"github.com/quillcms/quill/internal/rbac"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Maintenance *Maintenance
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	if cfg.Maintenance != nil {
		mux.HandleFunc(TaskSessionsPurge, cfg.Maintenance.HandleSessionsPurge)
		mux.HandleFunc(TaskAuditTrim, cfg.Maintenance.HandleAuditTrim)
	}
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueSessionsPurge enqueues an immediate session purge.
func (c *Client) EnqueueSessionsPurge(ctx context.Context) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, NewSessionsPurgeTask(), asynq.Queue(QueueDefault))
}

// EnqueueAuditTrim enqueues an audit trim with the given retention.
func (c *Client) EnqueueAuditTrim(ctx context.Context, payload AuditTrimPayload) (*asynq.TaskInfo, error) {
	task, err := NewAuditTrimTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ Enqueuer = (*Client)(nil)

// Permission guarding the maintenance trigger endpoints.
const (
	PermJobsManage  = "jobs.manage"
	LevelJobsManage = int64(2)
)

// Enqueuer submits maintenance tasks. Satisfied by *Client.
type Enqueuer interface {
	EnqueueSessionsPurge(ctx context.Context) (*asynq.TaskInfo, error)
	EnqueueAuditTrim(ctx context.Context, payload AuditTrimPayload) (*asynq.TaskInfo, error)
}

// Handler exposes HTTP endpoints for job observability and on-demand
// maintenance runs.
type Handler struct {
	inspector *asynq.Inspector
	tasks     Enqueuer
	guard     rbac.Middleware
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, tasks Enqueuer, guard rbac.Middleware, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, tasks: tasks, guard: guard, logger: logger}
}

// MountRoutes attaches job routes. Health stays open; triggering maintenance
// requires the jobs permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(PermJobsManage, LevelJobsManage))
		r.Post("/maintenance/sessions-purge", h.triggerSessionsPurge)
		r.Post("/maintenance/audit-trim", h.triggerAuditTrim)
	})
}

func (h *Handler) triggerSessionsPurge(w http.ResponseWriter, r *http.Request) {
	if h.tasks == nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	info, err := h.tasks.EnqueueSessionsPurge(r.Context())
	if err != nil {
		h.logger.Error("enqueue sessions purge", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": info.ID})
}

func (h *Handler) triggerAuditTrim(w http.ResponseWriter, r *http.Request) {
	if h.tasks == nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var payload AuditTrimPayload
	if r.Body != nil && r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
	}
	info, err := h.tasks.EnqueueAuditTrim(r.Context(), payload)
	if err != nil {
		h.logger.Error("enqueue audit trim", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": info.ID})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":"default","pending":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	pending := 0
	queueName := QueueDefault
	if info != nil {
		pending = int(info.Pending)
		queueName = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + queueName + `","pending":` + itoa(pending) + `}`))
}

func itoa(i int) string {
	return strconv.FormatInt(int64(i), 10)
}
