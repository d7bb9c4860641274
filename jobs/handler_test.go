package jobs_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/internal/identity"
	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
	"github.com/quillcms/quill/jobs"
)

type stubEnqueuer struct {
	purges int
	trims  []jobs.AuditTrimPayload
	err    error
}

func (s *stubEnqueuer) EnqueueSessionsPurge(ctx context.Context) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.purges++
	return &asynq.TaskInfo{ID: "task-1"}, nil
}

func (s *stubEnqueuer) EnqueueAuditTrim(ctx context.Context, payload jobs.AuditTrimPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.trims = append(s.trims, payload)
	return &asynq.TaskInfo{ID: "task-2"}, nil
}

type opsPrincipal struct {
	id    uuid.UUID
	email string
}

func (p opsPrincipal) GetID() uuid.UUID   { return p.id }
func (p opsPrincipal) GetEmail() string   { return p.email }
func (p opsPrincipal) GetRole() uuid.UUID { return uuid.Nil }
func (p opsPrincipal) IsActive() bool     { return true }

type opsDirectory struct {
	byID map[uuid.UUID]opsPrincipal
}

func (d opsDirectory) PrincipalByID(ctx context.Context, id uuid.UUID) (rbac.Principal, error) {
	if p, ok := d.byID[id]; ok {
		return p, nil
	}
	return nil, shared.ErrNotFound
}

func newJobsRouter(tasks jobs.Enqueuer, principals rbac.PrincipalSource) http.Handler {
	guard := rbac.Middleware{
		Principals: principals,
		Admin:      identity.NewAuthority("root@example.com"),
	}
	handler := jobs.NewHandler(nil, tasks, guard, nil)
	r := chi.NewRouter()
	r.Route("/jobs", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return r
}

func adminRequest(t *testing.T, admin opsPrincipal, method, target, body string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	sess := &shared.Session{ID: "test-session"}
	sess.SetUser(admin.id.String())
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	router := newJobsRouter(&stubEnqueuer{}, opsDirectory{})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"queue":"default"`)
}

func TestTriggerSessionsPurge(t *testing.T) {
	admin := opsPrincipal{id: uuid.New(), email: "root@example.com"}
	tasks := &stubEnqueuer{}
	router := newJobsRouter(tasks, opsDirectory{byID: map[uuid.UUID]opsPrincipal{admin.id: admin}})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, adminRequest(t, admin, http.MethodPost, "/jobs/maintenance/sessions-purge", ""))

	require.Equal(t, http.StatusAccepted, res.Code)
	require.Contains(t, res.Body.String(), "task-1")
	require.Equal(t, 1, tasks.purges)
}

func TestTriggerAuditTrimForwardsRetention(t *testing.T) {
	admin := opsPrincipal{id: uuid.New(), email: "root@example.com"}
	tasks := &stubEnqueuer{}
	router := newJobsRouter(tasks, opsDirectory{byID: map[uuid.UUID]opsPrincipal{admin.id: admin}})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, adminRequest(t, admin, http.MethodPost, "/jobs/maintenance/audit-trim", `{"retain_days":14}`))

	require.Equal(t, http.StatusAccepted, res.Code)
	require.Equal(t, []jobs.AuditTrimPayload{{RetainDays: 14}}, tasks.trims)
}

func TestTriggerAuditTrimRejectsBadPayload(t *testing.T) {
	admin := opsPrincipal{id: uuid.New(), email: "root@example.com"}
	tasks := &stubEnqueuer{}
	router := newJobsRouter(tasks, opsDirectory{byID: map[uuid.UUID]opsPrincipal{admin.id: admin}})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, adminRequest(t, admin, http.MethodPost, "/jobs/maintenance/audit-trim", `{not json`))

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Empty(t, tasks.trims)
}

func TestTriggerRejectsAnonymous(t *testing.T) {
	router := newJobsRouter(&stubEnqueuer{}, opsDirectory{})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/jobs/maintenance/sessions-purge", nil))

	require.Equal(t, http.StatusUnauthorized, res.Code)
}
