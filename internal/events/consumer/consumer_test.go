package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/tagindex"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/metrics"
)

func encode(t *testing.T, ev events.TagEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleMessage_AppliesEvents(t *testing.T) {
	m := metrics.NewUnregistered()
	reg := registry.New(tagindex.New(), nil, m)
	handle := HandleMessage(reg, m)
	ctx := context.Background()

	stream := []events.TagEvent{
		{Op: events.OpRegister, EntityID: "s1"},
		{Op: events.OpAttach, EntityID: "s1", Tag: "go"},
		{Op: events.OpAttach, EntityID: "s1", Tag: "db"},
		{Op: events.OpAttach, EntityID: "s1", Tag: "go"},
		{Op: events.OpRegister, EntityID: "s1"},
		{Op: events.OpDetach, EntityID: "s1", Tag: "db"},
		{Op: events.OpDetach, EntityID: "s1", Tag: "db"},
		{Op: events.OpAttach, EntityID: "ghost", Tag: "go"},
	}
	for _, ev := range stream {
		require.NoError(t, handle(ctx, []byte(ev.EntityID), encode(t, ev)))
	}

	assert.Equal(t, []string{"go"}, reg.TagsOf("s1"))
	assert.Equal(t, []string{"s1"}, reg.EntitiesWithTag("go"))
	assert.Empty(t, reg.EntitiesWithTag("db"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TagEventsTotal.WithLabelValues("attach", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagEventsTotal.WithLabelValues("attach", "noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagEventsTotal.WithLabelValues("attach", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagEventsTotal.WithLabelValues("detach", "noop")))
}

func TestHandleMessage_DropsBadPayloads(t *testing.T) {
	m := metrics.NewUnregistered()
	reg := registry.New(tagindex.New(), nil, m)
	handle := HandleMessage(reg, m)
	ctx := context.Background()

	assert.NoError(t, handle(ctx, nil, []byte("{not json")))
	assert.NoError(t, handle(ctx, nil, encode(t, events.TagEvent{Op: "rename", EntityID: "s1"})))
	assert.NoError(t, handle(ctx, nil, encode(t, events.TagEvent{Op: events.OpAttach, EntityID: "s1"})))

	assert.Equal(t, 0, reg.Stats().Entities)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagEventsTotal.WithLabelValues("unknown", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagEventsTotal.WithLabelValues("attach", "invalid")))
}

type brokenRegistry struct{ err error }

func (b brokenRegistry) Register(context.Context, string) error       { return b.err }
func (b brokenRegistry) Attach(context.Context, string, string) error { return b.err }
func (b brokenRegistry) Detach(context.Context, string, string) error { return b.err }

func TestHandleMessage_UnexpectedErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	handle := HandleMessage(brokenRegistry{boom}, nil)
	err := handle(context.Background(), nil, encode(t, events.TagEvent{Op: events.OpRegister, EntityID: "s1"}))
	assert.ErrorIs(t, err, boom)
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Start(ctx context.Context) error { return f(ctx) }

func TestTagConsumer_Start(t *testing.T) {
	started := false
	tc := New(runnerFunc(func(context.Context) error {
		started = true
		return nil
	}))
	require.NoError(t, tc.Start(context.Background()))
	assert.True(t, started)
}

type statusFunc func() kafka.Status

func (f statusFunc) Status() kafka.Status { return f() }

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  kafka.Status
		want    health.Status
		message string
	}{
		{"idle", kafka.Status{GroupID: "g-1"}, health.StatusUp, "group g-1, lag 0"},
		{"consuming", kafka.Status{GroupID: "g-1", Lag: 3, LastFetch: time.Now()}, health.StatusUp, "lag 3, last message"},
		{"failing", kafka.Status{GroupID: "g-1", Failures: 4, LastError: errors.New("dial tcp: refused")}, health.StatusDegraded, "4 failed fetches: dial tcp: refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := HealthCheck(statusFunc(func() kafka.Status { return tt.status }))
			got := check(context.Background())
			assert.Equal(t, tt.want, got.Status)
			assert.Contains(t, got.Message, tt.message)
		})
	}
}
