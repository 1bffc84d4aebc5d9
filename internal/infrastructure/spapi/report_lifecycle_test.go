package spapi

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReportAPI struct {
	statuses  []marketplace.ReportStatus
	errs      map[int]error
	polls     int
	downloads int
	created   []string
}

func (s *scriptedReportAPI) CreateReport(_ context.Context, reportType string, _ shared.DateRange) (string, error) {
	s.created = append(s.created, reportType)
	return "R-1", nil
}

func (s *scriptedReportAPI) GetReport(_ context.Context, reportID string) (*marketplace.ReportStatusResult, error) {
	idx := s.polls
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	s.polls++
	if err, ok := s.errs[s.polls]; ok {
		return nil, err
	}
	res := &marketplace.ReportStatusResult{ReportID: reportID, Status: s.statuses[idx]}
	if res.Status == marketplace.ReportStatusDone {
		res.DocumentID = "DOC-1"
	}
	return res, nil
}

func (s *scriptedReportAPI) DownloadDocument(context.Context, string) ([]byte, error) {
	s.downloads++
	return []byte("payload"), nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestReportLifecycle_Await(t *testing.T) {
	t.Run("polls until done then downloads", func(t *testing.T) {
		api := &scriptedReportAPI{statuses: []marketplace.ReportStatus{
			marketplace.ReportStatusInQueue,
			marketplace.ReportStatusInProgress,
			marketplace.ReportStatusDone,
		}}
		l := NewReportLifecycle(api, WithSleeper(noSleep))

		id, data, err := l.Fetch(context.Background(), marketplace.ReportTypeOrdersByOrderDate, shared.DateRange{})
		require.NoError(t, err)
		assert.Equal(t, "R-1", id)
		assert.Equal(t, "payload", string(data))
		assert.Equal(t, 3, api.polls)
		assert.Equal(t, 1, api.downloads)
	})

	t.Run("fatal is terminal and never re-polled", func(t *testing.T) {
		api := &scriptedReportAPI{statuses: []marketplace.ReportStatus{
			marketplace.ReportStatusInProgress,
			marketplace.ReportStatusFatal,
		}}
		l := NewReportLifecycle(api, WithSleeper(noSleep), WithMaxPollAttempts(10))

		_, err := l.Await(context.Background(), "R-1")
		assert.ErrorIs(t, err, marketplace.ErrReportFailed)
		assert.NotErrorIs(t, err, marketplace.ErrReportTimedOut)
		assert.Equal(t, 2, api.polls)
		assert.Equal(t, 0, api.downloads)

		var failed *marketplace.ReportFailedError
		require.True(t, errors.As(err, &failed))
		assert.Equal(t, marketplace.ReportStatusFatal, failed.Status)
	})

	t.Run("cancelled is a failure", func(t *testing.T) {
		api := &scriptedReportAPI{statuses: []marketplace.ReportStatus{marketplace.ReportStatusCancelled}}
		l := NewReportLifecycle(api, WithSleeper(noSleep))

		_, err := l.Await(context.Background(), "R-1")
		assert.ErrorIs(t, err, marketplace.ErrReportFailed)
	})

	t.Run("exhausted budget is a distinct timeout", func(t *testing.T) {
		api := &scriptedReportAPI{statuses: []marketplace.ReportStatus{marketplace.ReportStatusInProgress}}
		l := NewReportLifecycle(api, WithSleeper(noSleep), WithMaxPollAttempts(5))

		_, err := l.Await(context.Background(), "R-1")
		assert.ErrorIs(t, err, marketplace.ErrReportTimedOut)
		assert.NotErrorIs(t, err, marketplace.ErrReportFailed)
		assert.Equal(t, 5, api.polls)

		var timedOut *marketplace.ReportTimedOutError
		require.True(t, errors.As(err, &timedOut))
		assert.Equal(t, "R-1", timedOut.ReportID)
	})

	t.Run("throttled polls back off and keep polling", func(t *testing.T) {
		api := &scriptedReportAPI{
			statuses: []marketplace.ReportStatus{
				marketplace.ReportStatusInProgress,
				marketplace.ReportStatusInProgress,
				marketplace.ReportStatusInProgress,
				marketplace.ReportStatusInProgress,
				marketplace.ReportStatusDone,
			},
			errs: map[int]error{
				2: fmt.Errorf("%w: getReport returned HTTP 429", marketplace.ErrRateLimited),
				3: fmt.Errorf("%w: getReport returned HTTP 503", marketplace.ErrVendorUnavailable),
			},
		}
		var waits []time.Duration
		sleeper := func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}
		l := NewReportLifecycle(api, WithSleeper(sleeper), WithPollInterval(time.Second), WithMaxPollAttempts(10))

		data, err := l.Await(context.Background(), "R-1")
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
		assert.Equal(t, 5, api.polls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, time.Second}, waits)
	})

	t.Run("throttling until the budget runs out is a timeout", func(t *testing.T) {
		api := &scriptedReportAPI{
			statuses: []marketplace.ReportStatus{marketplace.ReportStatusInProgress},
			errs: map[int]error{
				2: marketplace.ErrRateLimited,
				3: marketplace.ErrRateLimited,
			},
		}
		l := NewReportLifecycle(api, WithSleeper(noSleep), WithMaxPollAttempts(3))

		_, err := l.Await(context.Background(), "R-1")
		assert.ErrorIs(t, err, marketplace.ErrReportTimedOut)
		assert.Equal(t, 3, api.polls)
	})

	t.Run("non-transient poll errors are returned", func(t *testing.T) {
		api := &scriptedReportAPI{
			statuses: []marketplace.ReportStatus{marketplace.ReportStatusInProgress},
			errs:     map[int]error{1: marketplace.ErrUnauthorized},
		}
		l := NewReportLifecycle(api, WithSleeper(noSleep))

		_, err := l.Await(context.Background(), "R-1")
		assert.ErrorIs(t, err, marketplace.ErrUnauthorized)
		assert.Equal(t, 1, api.polls)
	})

	t.Run("cancellation stops the wait", func(t *testing.T) {
		api := &scriptedReportAPI{statuses: []marketplace.ReportStatus{marketplace.ReportStatusInQueue}}
		l := NewReportLifecycle(api, WithPollInterval(time.Hour))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := l.Await(ctx, "R-1")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, api.polls)
	})
}
