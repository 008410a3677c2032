// Package publisher turns loader records into tag events on Kafka. A record
// becomes one register event followed by one attach event per tag, all keyed
// by entity id so they land on one partition in order.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/resilience"
)

// BatchPublisher is satisfied by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	producer BatchPublisher
	retry    resilience.RetryConfig
	now      func() time.Time
	logger   *slog.Logger
}

func New(producer BatchPublisher, retry resilience.RetryConfig) *Publisher {
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return &Publisher{
		producer: producer,
		retry:    retry,
		now:      time.Now,
		logger:   slog.Default().With("component", "tag-publisher"),
	}
}

// Put publishes rec as a single batch.
func (p *Publisher) Put(ctx context.Context, rec loader.Record) error {
	batch, err := p.Events(rec)
	if err != nil {
		return err
	}
	err = resilience.Retry(ctx, "publish tag events", p.retry, func() error {
		return p.producer.PublishBatch(ctx, batch)
	})
	if err != nil {
		p.logger.Error("failed to publish tag events",
			"entity_id", rec.EntityID,
			"events", len(batch),
			"error", err,
		)
		return fmt.Errorf("publishing events for %q: %w", rec.EntityID, err)
	}
	p.logger.Debug("tag events published", "entity_id", rec.EntityID, "events", len(batch))
	return nil
}

// Events builds the validated event batch for rec.
func (p *Publisher) Events(rec loader.Record) ([]kafka.Event, error) {
	emitted := p.now().UTC()
	evs := make([]events.TagEvent, 0, len(rec.Tags)+1)
	evs = append(evs, events.TagEvent{Op: events.OpRegister, EntityID: rec.EntityID, EmittedAt: emitted})
	for _, tag := range rec.Tags {
		evs = append(evs, events.TagEvent{Op: events.OpAttach, EntityID: rec.EntityID, Tag: tag, EmittedAt: emitted})
	}

	batch := make([]kafka.Event, 0, len(evs))
	for _, ev := range evs {
		if err := events.Validate(ev); err != nil {
			return nil, fmt.Errorf("invalid %s event for %q: %w", ev.Op, rec.EntityID, err)
		}
		batch = append(batch, kafka.Event{Key: rec.EntityID, Value: ev})
	}
	return batch, nil
}
