// Package registry is the service layer over the tag index. HTTP handlers,
// the bulk loader and the Kafka consumer all mutate and query the index
// through a Registry, which turns the index's "nothing changed" booleans into
// the shared error taxonomy, keeps the Prometheus gauges current and serves
// rankings through an optional cache.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/tagindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/tag-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/metrics"
)

const (
	opRegister = "register"
	opAttach   = "attach"
	opDetach   = "detach"

	cacheHit      = "hit"
	cacheMiss     = "miss"
	cacheDisabled = "disabled"
)

// RankCache memoises rankings per index instance and revision. scope
// identifies the index; revisions are only comparable within one scope.
type RankCache interface {
	GetOrCompute(
		ctx context.Context,
		scope string,
		revision uint64,
		query []string,
		compute func() ([]tagindex.ScoredEntity, error),
	) ([]tagindex.ScoredEntity, bool, error)
}

// RankResult is a ranking together with the normalised query that produced
// it.
type RankResult struct {
	Query    []string
	Results  []tagindex.ScoredEntity
	CacheHit bool
}

type Stats struct {
	Entities int    `json:"entities"`
	Tags     int    `json:"tags"`
	Revision uint64 `json:"revision"`
}

type Registry struct {
	// instance is unique per Registry. Revisions restart at zero with every
	// new index, so cache entries are keyed by instance as well.
	instance string
	index    *tagindex.Index
	cache    RankCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New builds a Registry over index. cache may be nil, in which case every
// rank query is computed directly.
func New(index *tagindex.Index, cache RankCache, m *metrics.Metrics) *Registry {
	return &Registry{
		instance: uuid.NewString(),
		index:    index,
		cache:    cache,
		metrics:  m,
		logger:   slog.Default().With("component", "registry"),
	}
}

func (r *Registry) Register(ctx context.Context, id string) error {
	created, err := r.index.RegisterEntity(id)
	if err != nil {
		r.observe(opRegister, err)
		return fmt.Errorf("registering %q: %w", id, err)
	}
	if !created {
		r.observe(opRegister, apperrors.ErrEntityExists)
		return fmt.Errorf("registering %q: %w", id, apperrors.ErrEntityExists)
	}
	r.observe(opRegister, nil)
	logger.FromContext(ctx).Debug("entity registered", "entity_id", id)
	return nil
}

func (r *Registry) Attach(ctx context.Context, id, tag string) error {
	added, err := r.index.AttachTag(id, tag)
	if err != nil {
		r.observe(opAttach, err)
		return fmt.Errorf("attaching %q to %q: %w", tag, id, err)
	}
	if !added {
		r.observe(opAttach, apperrors.ErrAlreadyTagged)
		return fmt.Errorf("attaching %q to %q: %w", tag, id, apperrors.ErrAlreadyTagged)
	}
	r.observe(opAttach, nil)
	logger.FromContext(ctx).Debug("tag attached", "entity_id", id, "tag", tag)
	return nil
}

func (r *Registry) Detach(ctx context.Context, id, tag string) error {
	removed, err := r.index.DetachTag(id, tag)
	if err != nil {
		r.observe(opDetach, err)
		return fmt.Errorf("detaching %q from %q: %w", tag, id, err)
	}
	if !removed {
		r.observe(opDetach, apperrors.ErrNotTagged)
		return fmt.Errorf("detaching %q from %q: %w", tag, id, apperrors.ErrNotTagged)
	}
	r.observe(opDetach, nil)
	logger.FromContext(ctx).Debug("tag detached", "entity_id", id, "tag", tag)
	return nil
}

func (r *Registry) TagsOf(id string) []string { return r.index.TagsOf(id) }

func (r *Registry) EntitiesWithTag(tag string) []string { return r.index.EntitiesWithTag(tag) }

func (r *Registry) AllTags() []string { return r.index.AllTags() }

func (r *Registry) HasEntity(id string) bool { return r.index.HasEntity(id) }

func (r *Registry) Stats() Stats {
	return Stats{
		Entities: r.index.Len(),
		Tags:     r.index.TagCount(),
		Revision: r.index.Revision(),
	}
}

// Rank orders entities by how many of the query tags they carry. The query
// is normalised first so permutations and duplicates share a cache entry.
func (r *Registry) Rank(ctx context.Context, query []string) (RankResult, error) {
	start := time.Now()
	normalized := tagindex.NormalizeQuery(query)
	compute := func() ([]tagindex.ScoredEntity, error) {
		return r.index.RankByTags(normalized), nil
	}

	var (
		results []tagindex.ScoredEntity
		hit     bool
		status  = cacheDisabled
	)
	if r.cache != nil && len(normalized) > 0 {
		var err error
		results, hit, err = r.cache.GetOrCompute(ctx, r.instance, r.index.Revision(), normalized, compute)
		if err != nil {
			return RankResult{}, fmt.Errorf("ranking %v: %w", normalized, err)
		}
		status = cacheMiss
		if hit {
			status = cacheHit
		}
	} else {
		results, _ = compute()
	}

	if r.metrics != nil {
		r.metrics.RankQueriesTotal.WithLabelValues(status).Inc()
		r.metrics.RankLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
		r.metrics.RankResultsCount.Observe(float64(len(results)))
	}
	logger.FromContext(ctx).Debug("rank completed",
		"query", normalized,
		"hits", len(results),
		"cache", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return RankResult{Query: normalized, Results: results, CacheHit: hit}, nil
}

func (r *Registry) observe(op string, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.TagMutationsTotal.WithLabelValues(op, outcome(err)).Inc()
	if err == nil {
		r.metrics.Entities.Set(float64(r.index.Len()))
		r.metrics.Tags.Set(float64(r.index.TagCount()))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case apperrors.IsConflict(err):
		return "noop"
	case errors.Is(err, apperrors.ErrEntityNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
