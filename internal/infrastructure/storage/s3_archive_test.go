package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewS3ReportArchive_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3ReportArchive(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3ReportArchive(&config.StorageConfig{AccessKeyID: "k", SecretAccessKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing access key returns error", func(t *testing.T) {
		_, err := NewS3ReportArchive(&config.StorageConfig{Bucket: "b", SecretAccessKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key is required")
	})

	t.Run("missing secret key returns error", func(t *testing.T) {
		_, err := NewS3ReportArchive(&config.StorageConfig{Bucket: "b", AccessKeyID: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})
}

func TestS3ReportArchive_Key(t *testing.T) {
	archive, err := NewS3ReportArchive(&config.StorageConfig{
		Bucket:          "reports",
		AccessKeyID:     "k",
		SecretAccessKey: "s",
		Prefix:          "/raw/",
	}, WithClock(func() time.Time { return time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)

	assert.Equal(t, "raw/GET_FLAT_FILE_ALL_ORDERS_DATA_BY_ORDER_DATE_GENERAL/2024/03/01/rpt-1.tsv",
		archive.Key("GET_FLAT_FILE_ALL_ORDERS_DATA_BY_ORDER_DATE_GENERAL", "rpt-1"))
	assert.Equal(t, "raw/unknown/2024/03/01/rpt-2.tsv", archive.Key("", "rpt-2"))
	assert.Equal(t, "reports", archive.Bucket())
}

func TestS3ReportArchive_Store(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		reqURI string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method = r.Method
		reqURI = r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	archive, err := NewS3ReportArchive(&config.StorageConfig{
		Bucket:          "reports",
		AccessKeyID:     "k",
		SecretAccessKey: "s",
		Endpoint:        srv.URL,
		UsePathStyle:    true,
	},
		WithLogger(zap.NewNop()),
		WithClock(func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)

	require.NoError(t, archive.Store(context.Background(), "GET_FBA_FULFILLMENT_CUSTOMER_RETURNS_DATA", "rpt-9", []byte("a\tb\n1\t2\n")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/reports/GET_FBA_FULFILLMENT_CUSTOMER_RETURNS_DATA/2024/03/01/rpt-9.tsv", reqURI)

	assert.Error(t, archive.Store(context.Background(), "x", "", nil))
}
