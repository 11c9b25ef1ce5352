package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hiveobs/hive/pkg/models"
	"github.com/hiveobs/hive/pkg/telemetry"
)

// Idle buffers are garbage-collected on this cadence.
const (
	batcherGCInterval = 5 * time.Minute
	batcherIdleAfter  = 5 * time.Minute
)

// BatcherConfig tunes the per-tenant ring buffers.
type BatcherConfig struct {
	FlushInterval time.Duration
	MaxBuffer     int
	MaxPerFlush   int
}

// DefaultBatcherConfig returns the production defaults.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		FlushInterval: 5 * time.Second,
		MaxBuffer:     500,
		MaxPerFlush:   100,
	}
}

// teamBuffer is one tenant's in-memory ring. Overflow drops the oldest
// summaries; droppedCount is surfaced in the next envelope.
type teamBuffer struct {
	events       []models.EventSummary
	dropped      int
	timer        *time.Timer
	windowStart  time.Time
	lastNonEmpty time.Time
}

// Batcher buffers event summaries per tenant and flushes them to the
// fan-out hub on a timer, on overflow, and at shutdown. It is a
// best-effort layer: durability lives in the tiered store.
type Batcher struct {
	hub    *Hub
	cfg    BatcherConfig
	logger *slog.Logger

	mu      sync.Mutex
	buffers map[string]*teamBuffer

	stopOnce sync.Once
	stopCh   chan struct{}
	gcDone   chan struct{}
}

// NewBatcher creates a batcher emitting through the given hub.
func NewBatcher(hub *Hub, cfg BatcherConfig) *Batcher {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = 500
	}
	if cfg.MaxPerFlush <= 0 {
		cfg.MaxPerFlush = 100
	}
	b := &Batcher{
		hub:     hub,
		cfg:     cfg,
		logger:  slog.Default().With("component", "event-batcher"),
		buffers: make(map[string]*teamBuffer),
		stopCh:  make(chan struct{}),
		gcDone:  make(chan struct{}),
	}
	go b.gcLoop()
	return b
}

// Add appends event summaries to the tenant's buffer. A full buffer drops
// its oldest entries and flushes immediately; otherwise a flush timer is
// scheduled if none is pending.
func (b *Batcher) Add(teamID string, events []models.LLMEvent) {
	if len(events) == 0 {
		return
	}

	b.mu.Lock()
	buf, ok := b.buffers[teamID]
	if !ok {
		buf = &teamBuffer{}
		b.buffers[teamID] = buf
	}
	if len(buf.events) == 0 {
		buf.windowStart = time.Now().UTC()
	}
	for _, ev := range events {
		buf.events = append(buf.events, ev.Summarize())
	}
	if overflow := len(buf.events) - b.cfg.MaxBuffer; overflow > 0 {
		buf.events = buf.events[overflow:]
		buf.dropped += overflow
		telemetry.EventsDroppedTotal.Add(float64(overflow))
	}
	buf.lastNonEmpty = time.Now().UTC()

	full := len(buf.events) >= b.cfg.MaxBuffer
	if full {
		b.stopTimerLocked(buf)
	} else if buf.timer == nil {
		buf.timer = time.AfterFunc(b.cfg.FlushInterval, func() {
			b.flush(teamID, FlushTimer)
		})
	}
	b.mu.Unlock()

	if full {
		b.flush(teamID, FlushBufferFull)
	}
}

// flush drains up to MaxPerFlush summaries and emits them. Remaining
// events reschedule the timer.
func (b *Batcher) flush(teamID, reason string) {
	b.mu.Lock()
	buf, ok := b.buffers[teamID]
	if !ok || len(buf.events) == 0 {
		if ok {
			b.stopTimerLocked(buf)
		}
		b.mu.Unlock()
		return
	}

	n := len(buf.events)
	if n > b.cfg.MaxPerFlush {
		n = b.cfg.MaxPerFlush
	}
	batch := make([]models.EventSummary, n)
	copy(batch, buf.events[:n])
	buf.events = buf.events[n:]

	dropped := buf.dropped
	buf.dropped = 0
	windowStart := buf.windowStart
	windowEnd := time.Now().UTC()

	b.stopTimerLocked(buf)
	if len(buf.events) > 0 {
		buf.windowStart = windowEnd
		buf.timer = time.AfterFunc(b.cfg.FlushInterval, func() {
			b.flush(teamID, FlushTimer)
		})
	}
	b.mu.Unlock()

	envelope := BatchEnvelope{
		Type:   TypeEventBatch,
		TeamID: teamID,
		Events: batch,
		Meta: BatchMeta{
			BatchSize:    len(batch),
			DroppedCount: dropped,
			WindowStart:  windowStart,
			WindowEnd:    windowEnd,
			FlushReason:  reason,
		},
	}
	b.hub.EmitEventBatch(context.Background(), teamID, envelope)
	telemetry.BatchesFlushedTotal.WithLabelValues(reason).Inc()
}

// stopTimerLocked clears a pending flush timer. Caller holds b.mu.
func (b *Batcher) stopTimerLocked(buf *teamBuffer) {
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}
}

// gcLoop evicts tenant buffers that have been empty past the idle window.
func (b *Batcher) gcLoop() {
	defer close(b.gcDone)
	ticker := time.NewTicker(batcherGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.gc()
		}
	}
}

func (b *Batcher) gc() {
	cutoff := time.Now().UTC().Add(-batcherIdleAfter)
	b.mu.Lock()
	defer b.mu.Unlock()
	for teamID, buf := range b.buffers {
		if len(buf.events) == 0 && buf.lastNonEmpty.Before(cutoff) {
			b.stopTimerLocked(buf)
			delete(b.buffers, teamID)
		}
	}
}

// BufferedCount returns the number of summaries currently buffered for a
// team. Used by tests.
func (b *Batcher) BufferedCount(teamID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[teamID]; ok {
		return len(buf.events)
	}
	return 0
}

// Shutdown flushes every buffer until drained and stops the timers.
func (b *Batcher) Shutdown() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.gcDone

	for {
		b.mu.Lock()
		teams := make([]string, 0, len(b.buffers))
		for teamID, buf := range b.buffers {
			if len(buf.events) > 0 {
				teams = append(teams, teamID)
			} else {
				b.stopTimerLocked(buf)
				delete(b.buffers, teamID)
			}
		}
		b.mu.Unlock()

		if len(teams) == 0 {
			return
		}
		for _, teamID := range teams {
			b.flush(teamID, FlushManual)
		}
	}
}
