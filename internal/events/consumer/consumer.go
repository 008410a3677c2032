// Package consumer applies tag events read from Kafka to the registry.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/events"
	apperrors "github.com/Adithya-Monish-Kumar-K/tag-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/metrics"
)

// Registry is the mutation surface the consumer drives.
type Registry interface {
	Register(ctx context.Context, id string) error
	Attach(ctx context.Context, id, tag string) error
	Detach(ctx context.Context, id, tag string) error
}

// Runner is satisfied by *kafka.Consumer.
type Runner interface {
	Start(ctx context.Context) error
}

// StatusReporter is satisfied by *kafka.Consumer.
type StatusReporter interface {
	Status() kafka.Status
}

// HealthCheck reports the consume loop as degraded while fetches fail. An
// idle topic is healthy.
func HealthCheck(src StatusReporter) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		s := src.Status()
		if s.LastError != nil {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("%d failed fetches: %v", s.Failures, s.LastError),
			}
		}
		msg := fmt.Sprintf("group %s, lag %d", s.GroupID, s.Lag)
		if !s.LastFetch.IsZero() {
			msg += fmt.Sprintf(", last message %s ago", time.Since(s.LastFetch).Round(time.Second))
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: msg}
	}
}

// TagConsumer drives the tag-event consume loop.
type TagConsumer struct {
	consumer Runner
	logger   *slog.Logger
}

func New(kafkaConsumer Runner) *TagConsumer {
	return &TagConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "tag-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (tc *TagConsumer) Start(ctx context.Context) error {
	tc.logger.Info("tag consumer starting")
	return tc.consumer.Start(ctx)
}

// HandleMessage returns a kafka.MessageHandler that applies each event to
// reg. Undecodable and invalid events are dropped, as are events that
// change nothing or name an unknown entity; only unexpected registry
// failures are returned so the message stays uncommitted.
func HandleMessage(reg Registry, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "tag-consumer")
	count := func(op events.Op, status string) {
		if m != nil {
			m.TagEventsTotal.WithLabelValues(string(op), status).Inc()
		}
	}

	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[events.TagEvent](value)
		if err != nil {
			logger.Error("failed to decode tag event", "error", err, "key", string(key))
			count("unknown", "invalid")
			return nil
		}
		if err := events.Validate(event); err != nil {
			logger.Warn("skipping invalid tag event",
				"error", err,
				"key", string(key),
				"op", event.Op,
			)
			count(event.Op, "invalid")
			return nil
		}

		err = apply(ctx, reg, event)
		switch {
		case err == nil:
			logger.Debug("tag event applied", "op", event.Op, "entity_id", event.EntityID, "tag", event.Tag)
			count(event.Op, "applied")
			return nil
		case apperrors.IsConflict(err):
			logger.Debug("tag event changed nothing", "op", event.Op, "entity_id", event.EntityID, "tag", event.Tag, "reason", err)
			count(event.Op, "noop")
			return nil
		case errors.Is(err, apperrors.ErrEntityNotFound):
			logger.Warn("tag event for unknown entity", "op", event.Op, "entity_id", event.EntityID, "tag", event.Tag)
			count(event.Op, "not_found")
			return nil
		default:
			count(event.Op, "failed")
			return fmt.Errorf("applying %s event for %q: %w", event.Op, event.EntityID, err)
		}
	}
}

func apply(ctx context.Context, reg Registry, event events.TagEvent) error {
	switch event.Op {
	case events.OpRegister:
		return reg.Register(ctx, event.EntityID)
	case events.OpAttach:
		return reg.Attach(ctx, event.EntityID, event.Tag)
	case events.OpDetach:
		return reg.Detach(ctx, event.EntityID, event.Tag)
	default:
		return fmt.Errorf("op %q: %w", event.Op, apperrors.ErrInvalidInput)
	}
}
