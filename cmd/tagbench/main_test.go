package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueries(t *testing.T) {
	got := parseQueries("sports, music; ;art,,film;")
	assert.Equal(t, [][]string{{"sports", "music"}, {"art", "film"}}, got)
	assert.Empty(t, parseQueries(" ; "))
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestRankOnce(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("tags")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"query":["a","b"],"total_hits":1,"results":[],"cache_hit":true}`))
	}))
	defer srv.Close()

	s := rankOnce(context.Background(), srv.Client(), rankURL(srv.URL, []string{"a", "b"}))
	require.NoError(t, s.err)
	assert.Equal(t, http.StatusOK, s.status)
	assert.True(t, s.cacheHit)
	assert.Equal(t, "a,b", gotQuery)
}

func TestSummarize(t *testing.T) {
	r := summarize([]sample{
		{latency: 4 * time.Millisecond, status: http.StatusOK, cacheHit: true},
		{latency: 2 * time.Millisecond, status: http.StatusOK},
		{latency: 6 * time.Millisecond, status: http.StatusBadRequest},
		{err: assert.AnError},
	}, 2*time.Second)

	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 2, r.Succeeded)
	assert.Equal(t, 2, r.Failed)
	assert.Equal(t, 1, r.CacheHits)
	assert.Equal(t, 2.0, r.PerSecond)
	assert.Equal(t, map[int]int{http.StatusOK: 2, http.StatusBadRequest: 1}, r.StatusCodes)
	assert.Equal(t, Latency{
		Min:  2 * time.Millisecond,
		Mean: 4 * time.Millisecond,
		P50:  4 * time.Millisecond,
		P95:  6 * time.Millisecond,
		P99:  6 * time.Millisecond,
		Max:  6 * time.Millisecond,
	}, r.Latency)

	var out strings.Builder
	r.WriteText(&out)
	assert.Contains(t, out.String(), "cache hits")
	assert.Contains(t, out.String(), "status 400")
}

func TestSummarize_Empty(t *testing.T) {
	r := summarize(nil, time.Second)
	assert.Zero(t, r.Total)
	assert.Equal(t, Latency{}, r.Latency)
	assert.Empty(t, r.StatusCodes)
}
