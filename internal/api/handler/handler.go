// Package handler exposes the registry over JSON/HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/tagindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/tag-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/logger"
)

const maxBodyBytes = 1 << 16

// Registry is the service surface the handlers call.
type Registry interface {
	Register(ctx context.Context, id string) error
	Attach(ctx context.Context, id, tag string) error
	Detach(ctx context.Context, id, tag string) error
	TagsOf(id string) []string
	EntitiesWithTag(tag string) []string
	AllTags() []string
	Rank(ctx context.Context, query []string) (registry.RankResult, error)
	Stats() registry.Stats
}

// CacheAdmin is implemented by the rank cache.
type CacheAdmin interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) error
}

type Handler struct {
	registry     Registry
	cache        CacheAdmin
	maxQueryTags int
	logger       *slog.Logger
}

// New builds a Handler. cache may be nil when Redis is not configured.
func New(reg Registry, cache CacheAdmin, maxQueryTags int) *Handler {
	return &Handler{
		registry:     reg,
		cache:        cache,
		maxQueryTags: maxQueryTags,
		logger:       logger.WithComponent("api-handler"),
	}
}

type createEntityRequest struct {
	ID string `json:"id"`
}

type rankedEntity struct {
	EntityID    string   `json:"entity_id"`
	Overlap     int      `json:"overlap"`
	MatchedTags []string `json:"matched_tags"`
}

type rankResponse struct {
	Query     []string       `json:"query"`
	TotalHits int            `json:"total_hits"`
	Results   []rankedEntity `json:"results"`
	CacheHit  bool           `json:"cache_hit"`
}

func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"tags": h.registry.AllTags()})
}

func (h *Handler) EntitiesWithTag(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"tag":      tag,
		"entities": h.registry.EntitiesWithTag(tag),
	})
}

func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req createEntityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if err := h.registry.Register(r.Context(), req.ID); err != nil {
		h.writeAppError(w, r, "register", err)
		return
	}
	logger.FromContext(r.Context()).Info("entity created", "entity_id", req.ID)
	h.writeJSON(w, http.StatusCreated, map[string]any{"entity_id": req.ID, "tags": []string{}})
}

func (h *Handler) TagsOf(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"tags":      h.registry.TagsOf(id),
	})
}

func (h *Handler) AttachTag(w http.ResponseWriter, r *http.Request) {
	id, tag := r.PathValue("id"), r.PathValue("tag")
	if err := h.registry.Attach(r.Context(), id, tag); err != nil {
		h.writeAppError(w, r, "attach", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"tags":      h.registry.TagsOf(id),
	})
}

func (h *Handler) DetachTag(w http.ResponseWriter, r *http.Request) {
	id, tag := r.PathValue("id"), r.PathValue("tag")
	if err := h.registry.Detach(r.Context(), id, tag); err != nil {
		h.writeAppError(w, r, "detach", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"tags":      h.registry.TagsOf(id),
	})
}

// Rank accepts tags as repeated and/or comma-separated "tags" parameters.
// An empty selection yields an empty result, not an error. The tag limit
// counts distinct tags.
func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := tagindex.NormalizeQuery(parseTags(r.URL.Query()["tags"]))
	if h.maxQueryTags > 0 && len(query) > h.maxQueryTags {
		h.writeAppError(w, r, "rank", apperrors.Newf(apperrors.ErrInvalidInput,
			http.StatusBadRequest, "at most %d tags per query", h.maxQueryTags))
		return
	}

	result, err := h.registry.Rank(ctx, query)
	if err != nil {
		logger.FromContext(ctx).Error("rank failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "rank failed")
		return
	}

	resp := rankResponse{
		Query:     result.Query,
		TotalHits: len(result.Results),
		Results:   make([]rankedEntity, 0, len(result.Results)),
		CacheHit:  result.CacheHit,
	}
	for _, s := range result.Results {
		resp.Results = append(resp.Results, rankedEntity{
			EntityID:    s.EntityID,
			Overlap:     s.Overlap,
			MatchedTags: tagindex.MatchedTags(h.registry.TagsOf(s.EntityID), result.Query),
		})
	}
	logger.FromContext(ctx).Info("rank completed",
		"query", result.Query,
		"total_hits", resp.TotalHits,
		"cache_hit", resp.CacheHit,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.registry.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func parseTags(params []string) []string {
	var out []string
	for _, p := range params {
		for _, tag := range strings.Split(p, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				out = append(out, tag)
			}
		}
	}
	return out
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(op+" failed", "error", err, "status_code", status)
		h.writeError(w, status, op+" failed")
		return
	}
	log.Debug(op+" rejected", "error", err, "status_code", status)
	h.writeError(w, status, publicMessage(err))
}

func publicMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	for _, sentinel := range []error{
		apperrors.ErrEntityNotFound,
		apperrors.ErrEntityExists,
		apperrors.ErrAlreadyTagged,
		apperrors.ErrNotTagged,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
