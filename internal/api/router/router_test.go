package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/tagindex"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/middleware"
)

func newServer(t *testing.T) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewUnregistered()
	reg := registry.New(tagindex.New(), nil, m)
	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp}
	})

	srv := httptest.NewServer(New(handler.New(reg, nil, 16), checker, Options{
		Metrics:     m,
		Timeout:     time.Second,
		CORSOrigins: []string{"*"},
	}))
	t.Cleanup(srv.Close)
	return srv, m
}

func TestRoutes_EndToEnd(t *testing.T) {
	srv, m := newServer(t)
	client := srv.Client()

	resp, err := client.Post(srv.URL+"/api/v1/entities", "application/json", strings.NewReader(`{"id":"s1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/entities/s1/tags/go", nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/api/v1/rank?tags=go")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodPut, "/api/v1/entities/{id}/tags/{tag}", "200")))
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	srv, _ := newServer(t)
	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/v1/tags", nil)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRoutes_CORSPreflight(t *testing.T) {
	srv, _ := newServer(t)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/rank", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
