package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/tagindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/tag-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/metrics"
)

func newRegistry(t *testing.T, cache RankCache) (*Registry, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewUnregistered()
	return New(tagindex.New(), cache, m), m
}

func TestRegister_TaxonomyMapping(t *testing.T) {
	r, m := newRegistry(t, nil)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "A"))
	err := r.Register(ctx, "A")
	assert.ErrorIs(t, err, apperrors.ErrEntityExists)
	assert.Equal(t, 409, apperrors.HTTPStatusCode(err))

	err = r.Register(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagMutationsTotal.WithLabelValues("register", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagMutationsTotal.WithLabelValues("register", "noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagMutationsTotal.WithLabelValues("register", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Entities))
}

func TestAttachDetach_TaxonomyMapping(t *testing.T) {
	r, m := newRegistry(t, nil)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "A"))

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"attach new", func() error { return r.Attach(ctx, "A", "music") }, nil},
		{"attach duplicate", func() error { return r.Attach(ctx, "A", "music") }, apperrors.ErrAlreadyTagged},
		{"attach unknown", func() error { return r.Attach(ctx, "Z", "music") }, apperrors.ErrEntityNotFound},
		{"detach missing tag", func() error { return r.Detach(ctx, "A", "art") }, apperrors.ErrNotTagged},
		{"detach unknown", func() error { return r.Detach(ctx, "Z", "music") }, apperrors.ErrEntityNotFound},
		{"detach present", func() error { return r.Detach(ctx, "A", "music") }, nil},
		{"detach empty tag", func() error { return r.Detach(ctx, "A", "") }, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Empty(t, r.AllTags())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Tags))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagMutationsTotal.WithLabelValues("attach", "not_found")))
}

func TestRank_WithoutCache(t *testing.T) {
	r, m := newRegistry(t, nil)
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, r.Register(ctx, id))
	}
	require.NoError(t, r.Attach(ctx, "A", "sports"))
	require.NoError(t, r.Attach(ctx, "A", "music"))
	require.NoError(t, r.Attach(ctx, "B", "sports"))
	require.NoError(t, r.Attach(ctx, "C", "art"))

	res, err := r.Rank(ctx, []string{"sports", "music", "sports"})
	require.NoError(t, err)
	assert.Equal(t, []string{"music", "sports"}, res.Query)
	assert.Equal(t, []tagindex.ScoredEntity{{EntityID: "A", Overlap: 2}, {EntityID: "B", Overlap: 1}}, res.Results)
	assert.False(t, res.CacheHit)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankQueriesTotal.WithLabelValues("disabled")))
}

type stubCache struct {
	hit       bool
	err       error
	revisions []uint64
	scopes    []string
}

func (s *stubCache) GetOrCompute(
	_ context.Context,
	scope string,
	revision uint64,
	_ []string,
	compute func() ([]tagindex.ScoredEntity, error),
) ([]tagindex.ScoredEntity, bool, error) {
	s.scopes = append(s.scopes, scope)
	s.revisions = append(s.revisions, revision)
	if s.err != nil {
		return nil, false, s.err
	}
	res, err := compute()
	return res, s.hit, err
}

func TestRank_UsesCacheWithRevision(t *testing.T) {
	cache := &stubCache{hit: true}
	r, m := newRegistry(t, cache)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "A"))
	require.NoError(t, r.Attach(ctx, "A", "x"))

	res, err := r.Rank(ctx, []string{"x"})
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, []uint64{2}, cache.revisions)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankQueriesTotal.WithLabelValues("hit")))

	_, err = r.Rank(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, cache.revisions, 1, "empty query bypasses the cache")
}

func TestRank_ScopeIsPerRegistry(t *testing.T) {
	cache := &stubCache{}
	ctx := context.Background()
	first := New(tagindex.New(), cache, nil)
	second := New(tagindex.New(), cache, nil)

	_, err := first.Rank(ctx, []string{"x"})
	require.NoError(t, err)
	_, err = first.Rank(ctx, []string{"y"})
	require.NoError(t, err)
	_, err = second.Rank(ctx, []string{"x"})
	require.NoError(t, err)

	require.Len(t, cache.scopes, 3)
	assert.NotEmpty(t, cache.scopes[0])
	assert.Equal(t, cache.scopes[0], cache.scopes[1])
	assert.NotEqual(t, cache.scopes[0], cache.scopes[2])
	assert.Equal(t, []uint64{0, 0, 0}, cache.revisions)
}

func TestRank_CacheError(t *testing.T) {
	boom := errors.New("boom")
	r, _ := newRegistry(t, &stubCache{err: boom})
	_, err := r.Rank(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
}

func TestStats(t *testing.T) {
	r, _ := newRegistry(t, nil)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "A"))
	require.NoError(t, r.Attach(ctx, "A", "x"))
	assert.Equal(t, Stats{Entities: 1, Tags: 1, Revision: 2}, r.Stats())
	assert.True(t, r.HasEntity("A"))
	assert.Equal(t, []string{"A"}, r.EntitiesWithTag("x"))
	assert.Equal(t, []string{"x"}, r.TagsOf("A"))
}
