// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON, while the
// consumer decodes them via a pluggable MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/config"
)

// MessageHandler is a callback invoked for each Kafka message. A returned
// error leaves the message uncommitted.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Status is a snapshot of a consume loop.
type Status struct {
	GroupID string
	// LastFetch is when a message was last fetched successfully.
	LastFetch time.Time
	// LastError is the most recent fetch error, cleared by the next
	// successful fetch.
	LastError error
	Failures  int
	Lag       int64
}

// Consumer replays a topic from its first offset and dispatches every
// message to a MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	groupID string
	handler MessageHandler
	state   fetchState
	logger  *slog.Logger
}

// NewConsumer creates a Consumer for topic. Every Consumer joins a group of
// its own, named after cfg.ConsumerGroup with a random suffix. A new group
// has no committed offsets, so each process is assigned every partition and
// reads it from the first offset, rebuilding its in-memory index from the
// whole topic. Abandoned groups expire with the broker's offset retention.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	groupID := InstanceGroupID(cfg.ConsumerGroup)
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:  r,
		groupID: groupID,
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", groupID),
	}
}

// InstanceGroupID returns a consumer group id unique to this process.
func InstanceGroupID(prefix string) string {
	if prefix == "" {
		prefix = "tagsearch"
	}
	return prefix + "-" + uuid.NewString()
}

// Start fetches and handles messages until ctx is cancelled. Messages whose
// handler fails are logged and left uncommitted.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.logger.Info("consumer stopped")
	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			break
		}
		c.state.record(err, time.Now())
		if err != nil {
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.process(ctx, msg)
	}
	return c.reader.Close()
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		log.Error("failed to process message", "key", string(msg.Key), "error", err)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("failed to commit message", "error", err)
	}
}

// Status reports the consume loop's fetch state and the reader's lag.
func (c *Consumer) Status() Status {
	s := c.state.snapshot()
	s.GroupID = c.groupID
	s.Lag = c.reader.Stats().Lag
	return s
}

type fetchState struct {
	mu        sync.Mutex
	lastFetch time.Time
	lastErr   error
	failures  int
}

func (f *fetchState) record(err error, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.lastErr = err
		f.failures++
		return
	}
	f.lastFetch = at
	f.lastErr = nil
	f.failures = 0
}

func (f *fetchState) snapshot() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{LastFetch: f.lastFetch, LastError: f.lastErr, Failures: f.failures}
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
