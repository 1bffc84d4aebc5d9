package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/application/syncjobs"
	"github.com/erp/sellersync/internal/domain/job"
	domainprofit "github.com/erp/sellersync/internal/domain/profit"
	"github.com/erp/sellersync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfitReader struct {
	from, to time.Time
	days     int
}

func (f *fakeProfitReader) Daily(_ context.Context, from, to time.Time) ([]domainprofit.DailyProfit, error) {
	f.from, f.to = from, to
	return []domainprofit.DailyProfit{{Date: from, SKU: "SKU-1", Units: 2, Revenue: decimal.NewFromInt(30)}}, nil
}

func (f *fakeProfitReader) Velocity(_ context.Context, days int) ([]domainprofit.Velocity, error) {
	f.days = days
	return nil, nil
}

func newProfitRouter(h *ProfitHandler) *gin.Engine {
	r := gin.New()
	r.GET("/profit/daily", h.Daily)
	r.GET("/profit/velocity", h.Velocity)
	r.POST("/profit/rebuild", h.Rebuild)
	r.POST("/profit/export", h.Export)
	return r
}

func TestProfitHandler_Daily(t *testing.T) {
	reader := &fakeProfitReader{}
	h := NewProfitHandler(reader, &fakeQueue{}, false)
	h.now = func() time.Time { return time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC) }
	router := newProfitRouter(h)

	w := doRequest(router, http.MethodGet, "/profit/daily", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), reader.from)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), reader.to)

	w = doRequest(router, http.MethodGet, "/profit/daily?from=2024-01-01&to=2024-01-31", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), reader.from)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), reader.to, "to is inclusive")

	w = doRequest(router, http.MethodGet, "/profit/daily?from=January", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfitHandler_Velocity(t *testing.T) {
	reader := &fakeProfitReader{}
	router := newProfitRouter(NewProfitHandler(reader, &fakeQueue{}, false))

	w := doRequest(router, http.MethodGet, "/profit/velocity?days=7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, reader.days)

	doRequest(router, http.MethodGet, "/profit/velocity", "")
	assert.Equal(t, 30, reader.days)
}

func TestProfitHandler_Rebuild(t *testing.T) {
	queue := &fakeQueue{}
	router := newProfitRouter(NewProfitHandler(&fakeProfitReader{}, queue, false))

	w := doRequest(router, http.MethodPost, "/profit/rebuild", `{"days":30}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, job.TypeProfitRebuild, queue.enqueued[0].jobType)
	assert.Equal(t, syncjobs.DaysPayload{Days: 30}, queue.enqueued[0].payload)
}

func TestProfitHandler_Export(t *testing.T) {
	queue := &fakeQueue{}
	router := newProfitRouter(NewProfitHandler(&fakeProfitReader{}, queue, false))

	w := doRequest(router, http.MethodPost, "/profit/export", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.ErrCodeUnavailable, env.Error.Code)
	assert.Empty(t, queue.enqueued)

	router = newProfitRouter(NewProfitHandler(&fakeProfitReader{}, queue, true))
	w = doRequest(router, http.MethodPost, "/profit/export", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, job.TypeProfitExport, queue.enqueued[0].jobType)
}
