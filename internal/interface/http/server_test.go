package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/infrastructure/scheduler"
	"github.com/alem-hub/study-pace/internal/infrastructure/syncqueue"
)

type fakeQueue struct {
	items  []syncqueue.Item
	report syncqueue.DrainReport
	err    error
	drains int
}

func (f *fakeQueue) Pending(context.Context) ([]syncqueue.Item, error) { return f.items, f.err }

func (f *fakeQueue) Drain(context.Context) (syncqueue.DrainReport, error) {
	f.drains++
	return f.report, f.err
}

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	health := NewHealthChecker("1.0.0", time.Second)
	health.AddCheck("backend", func(context.Context) error { return nil })
	s := NewServer(DefaultConfig(), Dependencies{Health: health})

	rec := serve(t, s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Healthy)
	assert.Equal(t, "1.0.0", status.Version)
	assert.True(t, status.Checks["backend"].Healthy)

	health.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec = serve(t, s, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Some checks failed: redis")
}

func TestHealth_CheckTimeout(t *testing.T) {
	health := NewHealthChecker("", 20*time.Millisecond)
	health.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := health.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Checks["slow"].Message, "deadline exceeded")
}

func TestLive(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	rec := serve(t, s, http.MethodGet, "/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "study_pace_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := NewServer(DefaultConfig(), Dependencies{Gatherer: reg})
	rec := serve(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "study_pace_test_total 1")

	s = NewServer(DefaultConfig(), Dependencies{})
	assert.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/metrics").Code)
}

func TestQueueEndpoints(t *testing.T) {
	q := &fakeQueue{
		items: []syncqueue.Item{{ID: "i1", Payload: backend.InsertWrite(backend.TableTasks, backend.Row{"id": "t1"})}},
		report: syncqueue.DrainReport{
			Attempted: 3, Succeeded: 1, Retried: 1,
			Dropped: []syncqueue.Item{{ID: "i2"}}, Remaining: 1,
		},
	}
	s := NewServer(DefaultConfig(), Dependencies{Queue: q})

	rec := serve(t, s, http.MethodGet, "/queue")
	require.Equal(t, http.StatusOK, rec.Code)
	var queue QueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	assert.Equal(t, 1, queue.Depth)
	assert.Equal(t, "i1", queue.Items[0].ID)

	rec = serve(t, s, http.MethodPost, "/queue/drain")
	require.Equal(t, http.StatusOK, rec.Code)
	var drain DrainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &drain))
	assert.Equal(t, DrainResponse{Attempted: 3, Succeeded: 1, Retried: 1, Dropped: 1, Remaining: 1}, drain)
	assert.Equal(t, 1, q.drains)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, s, http.MethodGet, "/queue/drain").Code)

	q.err = errors.New("storage offline")
	rec = serve(t, s, http.MethodGet, "/queue")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "queue_unavailable"))
}

type stubJob struct {
	name string
	err  error
}

func (j stubJob) Name() string              { return j.name }
func (j stubJob) Description() string       { return j.name + " job" }
func (j stubJob) Run(context.Context) error { return j.err }

func TestJobsEndpoints(t *testing.T) {
	sched, err := scheduler.NewScheduler(scheduler.DefaultSchedulerConfig())
	require.NoError(t, err)
	require.NoError(t, sched.Register(stubJob{name: "drain_sync_queue"}, scheduler.NewIntervalSchedule(time.Minute)))
	require.NoError(t, sched.Register(stubJob{name: "connectivity_watch", err: errors.New("unreachable")}, scheduler.NewIntervalSchedule(30*time.Second)))

	_, err = sched.RunNow(context.Background(), "drain_sync_queue")
	require.NoError(t, err)
	_, err = sched.RunNow(context.Background(), "connectivity_watch")
	require.Error(t, err)

	s := NewServer(DefaultConfig(), Dependencies{Jobs: sched})

	rec := serve(t, s, http.MethodGet, "/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs JobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs.Jobs, 2)
	assert.Equal(t, "connectivity_watch", jobs.Jobs[0].Name)
	assert.Equal(t, "drain_sync_queue", jobs.Jobs[1].Name)
	assert.EqualValues(t, 1, jobs.Jobs[0].FailCount)
	require.NotNil(t, jobs.Jobs[0].LastResult)
	assert.Equal(t, "unreachable", jobs.Jobs[0].LastResult.Error)
	require.Len(t, jobs.History, 2)
	assert.True(t, jobs.History[0].Success)
	assert.True(t, jobs.History[0].Manual)
	assert.False(t, jobs.History[1].Success)

	rec = serve(t, s, http.MethodGet, "/jobs/drain_sync_queue")
	require.Equal(t, http.StatusOK, rec.Code)
	var job JobView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "@every 1m0s", job.Schedule)
	assert.EqualValues(t, 1, job.RunCount)
	assert.NotNil(t, job.LastRun)
	assert.Nil(t, job.NextRun)

	rec = serve(t, s, http.MethodGet, "/jobs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "job_not_found")

	s = NewServer(DefaultConfig(), Dependencies{})
	assert.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/jobs").Code)
}

func TestRecovery(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	s.router.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := serve(t, s, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_server_error")
}

func TestRequestID_Propagated(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
