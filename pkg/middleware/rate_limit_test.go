package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/qabase/qabase/backend/go-services/pkg/metrics"
)

func serve(r *gin.Engine, path string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w.Code
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	before := testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory"))
	r := gin.New()
	r.Use(RateLimitMiddleware(10, 2, nil))
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, serve(r, "/ok"))
	require.Equal(t, http.StatusOK, serve(r, "/ok"))

	require.Equal(t, before+2, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory")))
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(2, 1, nil))
	r.GET("/limited", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, serve(r, "/limited"))
	require.Equal(t, http.StatusTooManyRequests, serve(r, "/limited"))

	// one token refills after half a second
	time.Sleep(600 * time.Millisecond)
	require.Equal(t, http.StatusOK, serve(r, "/limited"))
}

func TestRateLimitMiddleware_SeparateBucketsPerKey(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(0.5, 1, func(c *gin.Context) string { return c.Query("k") }))
	r.GET("/k", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, serve(r, "/k?k=a"))
	require.Equal(t, http.StatusTooManyRequests, serve(r, "/k?k=a"))
	require.Equal(t, http.StatusOK, serve(r, "/k?k=b"))
}
