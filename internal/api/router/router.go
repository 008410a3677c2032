// Package router wires the tag-search routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/middleware"
)

type Options struct {
	Metrics     *metrics.Metrics
	Timeout     time.Duration
	CORSOrigins []string
}

// New builds the HTTP handler.
//
// Route table:
//
//	GET    /api/v1/tags                        → all tags
//	GET    /api/v1/tags/{tag}/entities         → entities carrying tag
//	POST   /api/v1/entities                    → register entity
//	GET    /api/v1/entities/{id}/tags          → tags of entity
//	PUT    /api/v1/entities/{id}/tags/{tag}    → attach tag
//	DELETE /api/v1/entities/{id}/tags/{tag}    → detach tag
//	GET    /api/v1/rank?tags=a,b               → rank by tag overlap
//	GET    /api/v1/stats                       → index size and revision
//	GET    /api/v1/cache/stats                 → rank cache hit rate
//	POST   /api/v1/cache/invalidate            → drop cached rankings
//	GET    /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Timeout → mux
func New(h *handler.Handler, checker *health.Checker, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("GET /api/v1/tags", h.ListTags)
	mux.HandleFunc("GET /api/v1/tags/{tag}/entities", h.EntitiesWithTag)

	mux.HandleFunc("POST /api/v1/entities", h.CreateEntity)
	mux.HandleFunc("GET /api/v1/entities/{id}/tags", h.TagsOf)
	mux.HandleFunc("PUT /api/v1/entities/{id}/tags/{tag}", h.AttachTag)
	mux.HandleFunc("DELETE /api/v1/entities/{id}/tags/{tag}", h.DetachTag)

	mux.HandleFunc("GET /api/v1/rank", h.Rank)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)

	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	var chain http.Handler = mux
	if opts.Timeout > 0 {
		chain = middleware.Timeout(opts.Timeout)(chain)
	}
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	if len(opts.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(opts.CORSOrigins))(chain)
	}
	chain = middleware.RequestID(chain)

	return chain
}
