package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveobs/hive/pkg/models"
)

// captureBus records everything published, decoding batch envelopes.
type captureBus struct {
	mu      sync.Mutex
	rooms   []string
	batches []BatchEnvelope
	raw     [][]byte
	notify  chan struct{}
}

func newCaptureBus() *captureBus {
	return &captureBus{notify: make(chan struct{}, 64)}
}

func (b *captureBus) Publish(_ context.Context, room string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms = append(b.rooms, room)
	b.raw = append(b.raw, payload)

	var env BatchEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && env.Type == TypeEventBatch {
		b.batches = append(b.batches, env)
	}
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

func (b *captureBus) Close() error { return nil }

func (b *captureBus) batchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches)
}

func (b *captureBus) batch(i int) BatchEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches[i]
}

func testEvent(trace string, seq int) models.LLMEvent {
	return models.LLMEvent{
		Timestamp:    time.Now().UTC(),
		TeamID:       "team-1",
		TraceID:      trace,
		CallSequence: seq,
		Model:        "gpt-4o",
		Usage:        models.Usage{Input: 10, Output: 5},
		CostTotal:    0.01,
	}
}

// newTestBatcher keeps the flush timer effectively disabled so tests drive
// flushes explicitly.
func newTestBatcher(bus *captureBus, maxBuffer, maxPerFlush int) (*Batcher, *Hub) {
	hub := NewHub(time.Second)
	hub.SetBus(bus)
	b := NewBatcher(hub, BatcherConfig{
		FlushInterval: time.Hour,
		MaxBuffer:     maxBuffer,
		MaxPerFlush:   maxPerFlush,
	})
	return b, hub
}

func TestBatcherOverflowDropsOldest(t *testing.T) {
	bus := newCaptureBus()
	b, _ := newTestBatcher(bus, 3, 2)

	// Five events in a burst before any timer fires.
	events := make([]models.LLMEvent, 5)
	for i := range events {
		events[i] = testEvent("trace", i)
	}
	b.Add("team-1", events)

	// The overflow triggered an immediate flush of maxPerFlush events with
	// the dropped count surfaced.
	require.Equal(t, 1, bus.batchCount())
	first := bus.batch(0)
	assert.Equal(t, FlushBufferFull, first.Meta.FlushReason)
	assert.Len(t, first.Events, 2)
	assert.Equal(t, 2, first.Meta.DroppedCount)

	// One event remains buffered; the next flush drains it cleanly.
	assert.Equal(t, 1, b.BufferedCount("team-1"))
	b.flush("team-1", FlushTimer)

	require.Equal(t, 2, bus.batchCount())
	second := bus.batch(1)
	assert.Len(t, second.Events, 1)
	assert.Zero(t, second.Meta.DroppedCount)
	assert.Equal(t, FlushTimer, second.Meta.FlushReason)
	assert.Zero(t, b.BufferedCount("team-1"))
}

func TestBatcherConservation(t *testing.T) {
	bus := newCaptureBus()
	b, _ := newTestBatcher(bus, 10, 4)

	added := 0
	for i := 0; i < 3; i++ {
		events := make([]models.LLMEvent, 7)
		for j := range events {
			events[j] = testEvent("trace", added+j)
		}
		b.Add("team-1", events)
		added += 7
	}
	b.Shutdown()

	emitted, dropped := 0, 0
	for i := 0; i < bus.batchCount(); i++ {
		env := bus.batch(i)
		emitted += len(env.Events)
		dropped += env.Meta.DroppedCount
	}
	assert.Equal(t, added, emitted+dropped+b.BufferedCount("team-1"))
	assert.Zero(t, b.BufferedCount("team-1"), "shutdown drains everything")
}

func TestBatcherTimerFlush(t *testing.T) {
	bus := newCaptureBus()
	hub := NewHub(time.Second)
	hub.SetBus(bus)
	b := NewBatcher(hub, BatcherConfig{
		FlushInterval: 30 * time.Millisecond,
		MaxBuffer:     100,
		MaxPerFlush:   10,
	})
	defer b.Shutdown()

	b.Add("team-1", []models.LLMEvent{testEvent("trace", 0)})

	select {
	case <-bus.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timer flush never fired")
	}

	require.Equal(t, 1, bus.batchCount())
	env := bus.batch(0)
	assert.Equal(t, FlushTimer, env.Meta.FlushReason)
	assert.Equal(t, TypeEventBatch, env.Type)
	assert.Equal(t, "team-1", env.TeamID)
	require.Len(t, env.Events, 1)
	assert.Equal(t, "trace", env.Events[0].TraceID)
}

func TestBatcherSummaryProjection(t *testing.T) {
	ev := testEvent("trace", 1)
	ev.Metadata = map[string]any{"agent": "override"}
	ev.Agent = "top-level"

	s := ev.Summarize()
	assert.Equal(t, "override", s.Agent)
	assert.Equal(t, int64(10), s.InputTokens)
	assert.Equal(t, int64(5), s.OutputTokens)
	assert.InDelta(t, 0.01, s.Cost, 1e-9)
}

func TestBatcherEmptyAddIsNoop(t *testing.T) {
	bus := newCaptureBus()
	b, _ := newTestBatcher(bus, 3, 2)
	b.Add("team-1", nil)
	assert.Zero(t, b.BufferedCount("team-1"))
	assert.Zero(t, bus.batchCount())
}

func TestBatcherRoomNaming(t *testing.T) {
	bus := newCaptureBus()
	b, _ := newTestBatcher(bus, 3, 2)
	b.Add("team-9", []models.LLMEvent{testEvent("t", 0), testEvent("t", 1), testEvent("t", 2)})

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.NotEmpty(t, bus.rooms)
	assert.Equal(t, "team:team-9:llm-events", bus.rooms[0])
}
