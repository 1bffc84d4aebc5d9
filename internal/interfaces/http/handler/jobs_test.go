package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/domain/job"
	"github.com/erp/sellersync/internal/infrastructure/scheduler"
	"github.com/erp/sellersync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSchedules []scheduler.ScheduledEntry

func (f fakeSchedules) Entries() []scheduler.ScheduledEntry { return f }

func newJobRouter(h *JobHandler) *gin.Engine {
	r := gin.New()
	r.GET("/jobs", h.List)
	r.GET("/jobs/schedules", h.Schedules)
	r.GET("/jobs/:id", h.Get)
	r.POST("/jobs/:id/cancel", h.Cancel)
	return r
}

func TestJobHandler_Get(t *testing.T) {
	j := job.New(job.TypeFinancialEvents, []byte(`{"days":3}`), 3, time.Now())
	j.Progress = `{"status":"success"}`
	j.Result = `not json`
	queue := &fakeQueue{jobs: map[uuid.UUID]*job.Job{j.ID: j}}
	router := newJobRouter(NewJobHandler(queue, nil))

	w := doRequest(router, http.MethodGet, "/jobs/"+j.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	assert.Equal(t, j.ID, resp.ID)
	assert.Equal(t, job.StatusPending, resp.Status)
	assert.JSONEq(t, `{"days":3}`, string(resp.Payload))
	assert.JSONEq(t, `{"status":"success"}`, string(resp.Progress))
	assert.Nil(t, resp.Result, "invalid stored JSON is dropped")

	w = doRequest(router, http.MethodGet, "/jobs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodGet, "/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandler_List(t *testing.T) {
	j := job.New(job.TypeReturns, nil, 3, time.Now())
	queue := &fakeQueue{jobs: map[uuid.UUID]*job.Job{j.ID: j}}
	router := newJobRouter(NewJobHandler(queue, nil))

	w := doRequest(router, http.MethodGet, "/jobs?type=returns&status=PENDING&limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.Filter{Type: job.TypeReturns, Status: job.StatusPending, Limit: 10}, queue.filter)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Total)
}

func TestJobHandler_Cancel(t *testing.T) {
	pending := job.New(job.TypeReturns, nil, 3, time.Now())
	running := job.New(job.TypeOrdersHistorical, nil, 3, time.Now())
	running.Status = job.StatusRunning
	queue := &fakeQueue{jobs: map[uuid.UUID]*job.Job{pending.ID: pending, running.ID: running}}
	router := newJobRouter(NewJobHandler(queue, nil))

	w := doRequest(router, http.MethodPost, "/jobs/"+pending.ID.String()+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp JobResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	assert.Equal(t, job.StatusCancelled, resp.Status)

	w = doRequest(router, http.MethodPost, "/jobs/"+running.ID.String()+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	assert.Equal(t, job.StatusRunning, resp.Status)
	assert.True(t, resp.CancelRequested)

	w = doRequest(router, http.MethodPost, "/jobs/"+uuid.NewString()+"/cancel", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.ErrCodeNotFound, env.Error.Code)
}

func TestJobHandler_Schedules(t *testing.T) {
	next := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	schedules := fakeSchedules{{JobType: job.TypeOrdersIncremental, Spec: "*/15 * * * *", Next: next}}
	router := newJobRouter(NewJobHandler(&fakeQueue{}, schedules))

	w := doRequest(router, http.MethodGet, "/jobs/schedules", "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []scheduler.ScheduledEntry
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, job.TypeOrdersIncremental, entries[0].JobType)
	assert.True(t, next.Equal(entries[0].Next))

	router = newJobRouter(NewJobHandler(&fakeQueue{}, nil))
	w = doRequest(router, http.MethodGet, "/jobs/schedules", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(decodeEnvelope(t, w).Data))
}
