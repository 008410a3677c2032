package publisher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/resilience"
)

type fakeProducer struct {
	batches  [][]kafka.Event
	failures int
}

func (f *fakeProducer) PublishBatch(_ context.Context, evs []kafka.Event) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("leader not available")
	}
	f.batches = append(f.batches, evs)
	return nil
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestPut_RegisterThenAttach(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod, fastRetry())
	fixed := time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	require.NoError(t, p.Put(context.Background(), loader.Record{EntityID: "s1", Tags: []string{"go", "db"}}))
	require.Len(t, prod.batches, 1)
	batch := prod.batches[0]
	require.Len(t, batch, 3)

	for _, ev := range batch {
		assert.Equal(t, "s1", ev.Key)
	}
	assert.Equal(t, events.TagEvent{Op: events.OpRegister, EntityID: "s1", EmittedAt: fixed}, batch[0].Value)
	assert.Equal(t, events.TagEvent{Op: events.OpAttach, EntityID: "s1", Tag: "go", EmittedAt: fixed}, batch[1].Value)
	assert.Equal(t, events.TagEvent{Op: events.OpAttach, EntityID: "s1", Tag: "db", EmittedAt: fixed}, batch[2].Value)
}

func TestPut_RetriesTransientFailures(t *testing.T) {
	prod := &fakeProducer{failures: 2}
	p := New(prod, fastRetry())
	require.NoError(t, p.Put(context.Background(), loader.Record{EntityID: "s1"}))
	assert.Len(t, prod.batches, 1)
}

func TestPut_GivesUp(t *testing.T) {
	prod := &fakeProducer{failures: 10}
	p := New(prod, fastRetry())
	err := p.Put(context.Background(), loader.Record{EntityID: "s1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `publishing events for "s1"`)
	assert.Empty(t, prod.batches)
}

func TestPut_InvalidRecord(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod, fastRetry())
	err := p.Put(context.Background(), loader.Record{EntityID: strings.Repeat("x", 300)})
	var verr *events.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, prod.batches)
}

func TestPublisher_IsLoaderSink(t *testing.T) {
	prod := &fakeProducer{}
	var sink loader.Sink = New(prod, fastRetry())
	src := loader.NewCSVSource(strings.NewReader("id,tags\nA,x\nB,y,z\n"), true)

	stats, err := loader.Load(context.Background(), src, sink, loader.Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	require.Len(t, prod.batches, 2)
	assert.Len(t, prod.batches[1], 3)
}
