// Package loader bulk-loads entity/tag records from an external source
// (a CSV file or a Postgres query) into a Sink, which is either the local
// index or the Kafka tag-event topic.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/metrics"
)

// ErrMalformedRecord marks a source row that cannot become a Record, such
// as a row with an empty entity id.
var ErrMalformedRecord = errors.New("malformed record")

// Record is one entity and the tags to attach to it.
type Record struct {
	EntityID string
	Tags     []string
}

// Source yields records until it returns io.EOF. An error wrapping
// ErrMalformedRecord reports a single bad row; the source stays usable.
type Source interface {
	Next(ctx context.Context) (Record, error)
}

type Sink interface {
	Put(ctx context.Context, rec Record) error
}

// Counter is implemented by sinks that can report what their writes did to
// the index.
type Counter interface {
	Count(stats *Stats)
}

type Options struct {
	// Strict turns a malformed record into a load failure instead of a
	// counted skip.
	Strict        bool
	ProgressEvery int
	Metrics       *metrics.Metrics
}

type Stats struct {
	Records          int `json:"records"`
	Malformed        int `json:"malformed"`
	EntitiesCreated  int `json:"entities_created"`
	EntitiesExisting int `json:"entities_existing"`
	TagsAttached     int `json:"tags_attached"`
	TagsDuplicate    int `json:"tags_duplicate"`
}

// Load drains src into sink. It stops at the first sink error, at the first
// malformed record when opts.Strict is set, or when ctx is cancelled.
func Load(ctx context.Context, src Source, sink Sink, opts Options) (Stats, error) {
	log := slog.Default().With("component", "loader")
	start := time.Now()
	var stats Stats

	finish := func(err error) (Stats, error) {
		if c, ok := sink.(Counter); ok {
			c.Count(&stats)
		}
		log.Info("load finished",
			"records", stats.Records,
			"malformed", stats.Malformed,
			"entities_created", stats.EntitiesCreated,
			"tags_attached", stats.TagsAttached,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return stats, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("load cancelled after %d records: %w", stats.Records, err))
		}
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return finish(nil)
		}
		if errors.Is(err, ErrMalformedRecord) {
			if opts.Strict {
				return finish(fmt.Errorf("strict load: %w", err))
			}
			stats.Malformed++
			opts.record("malformed")
			log.Warn("skipping malformed record", "error", err)
			continue
		}
		if err != nil {
			return finish(fmt.Errorf("reading source: %w", err))
		}

		if err := sink.Put(ctx, rec); err != nil {
			opts.record("failed")
			return finish(fmt.Errorf("writing record %q: %w", rec.EntityID, err))
		}
		stats.Records++
		opts.record("loaded")
		if opts.ProgressEvery > 0 && stats.Records%opts.ProgressEvery == 0 {
			log.Info("load progress", "records", stats.Records)
		}
	}
}

func (o Options) record(status string) {
	if o.Metrics != nil {
		o.Metrics.LoaderRecordsTotal.WithLabelValues(status).Inc()
	}
}
