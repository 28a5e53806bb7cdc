package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypes(t *testing.T) {
	cause := os.ErrNotExist
	err := WrapError(cause, ErrorTypeIO, "open feed").WithDetail("path", "x.csv")

	assert.Equal(t, "io: open feed: file does not exist", err.Error())
	assert.True(t, IsType(err, ErrorTypeIO))
	assert.False(t, IsType(err, ErrorTypeFormat))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "x.csv", err.Details["path"])

	outer := fmt.Errorf("load: %w", WrapError(NewError(ErrorTypeFormat, "short row"), ErrorTypeIO, "import"))
	assert.True(t, IsType(outer, ErrorTypeIO))
	assert.True(t, IsType(outer, ErrorTypeFormat), "Inner types are found through the chain")
	assert.Equal(t, ErrorTypeIO, TypeOf(outer))

	assert.Nil(t, WrapError(nil, ErrorTypeIO, "nothing"))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}

func TestTimeHelpers(t *testing.T) {
	ts, err := CDToDatetime("1900-Jan-01 12:11")
	require.NoError(t, err)
	assert.Equal(t, time.Date(1900, time.January, 1, 12, 11, 0, 0, time.UTC), ts)

	s, err := DatetimeToStr(ts)
	require.NoError(t, err)
	assert.Equal(t, "1900-01-01 12:11", s)

	_, err = DatetimeToStr(time.Time{})
	assert.True(t, IsType(err, ErrorTypeFormat))

	_, err = CDToDatetime("1900-01-01 12:11")
	assert.Error(t, err)
}

func TestResultFromError(t *testing.T) {
	err := NewError(ErrorTypeFormat, "invalid diameter").
		WithDetail("row", 7).
		WithDetail("field", "diameter").
		WithDetail("designation", "433")

	result := ResultFromError(err)
	assert.False(t, result.Valid)
	assert.Equal(t, 7, result.RowNumber)
	assert.Equal(t, "433", result.RecordID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "diameter", result.Errors[0].Field)

	plain := ResultFromError(errors.New("disk on fire"))
	assert.Equal(t, "file", plain.Errors[0].Field)
	assert.NotEmpty(t, plain.ToJSON())
}

func TestDatabaseAndMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := Init(filepath.Join(t.TempDir(), "jobs", "test.db"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrateJobs(db))
	t.Cleanup(func() { SetDB(nil) })

	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/health", func(c *gin.Context) {
		c.Set("rows_processed", 3)
		c.Status(http.StatusOK)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/health", "GET", "200"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/health", "GET", "200")))

	assert.Eventually(t, func() bool {
		var metric ApiMetric
		if err := GetDB().Where("endpoint = ?", "/health").First(&metric).Error; err != nil {
			return false
		}
		return metric.RowsProcessed == 3
	}, 2*time.Second, 20*time.Millisecond)
}
