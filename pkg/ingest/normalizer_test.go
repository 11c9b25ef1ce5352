package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveobs/hive/pkg/models"
	"github.com/hiveobs/hive/pkg/pricing"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(pricing.NewService(nil, time.Minute))
}

func rawEvent(overrides map[string]any) map[string]any {
	ev := map[string]any{
		"timestamp":     float64(1735689600000), // 2025-01-01T00:00:00Z in ms
		"trace_id":      "trace-1",
		"call_sequence": float64(0),
		"model":         "gpt-4o",
		"usage": map[string]any{
			"input":  float64(1000),
			"output": float64(500),
		},
	}
	for k, v := range overrides {
		ev[k] = v
	}
	return ev
}

func TestNormalizeValidEvent(t *testing.T) {
	n := testNormalizer()
	batch := n.Normalize(context.Background(), "team-1", []map[string]any{rawEvent(nil)})

	require.Len(t, batch.Events, 1)
	assert.Zero(t, batch.Skipped)

	ev := batch.Events[0]
	assert.Equal(t, "team-1", ev.TeamID)
	assert.Equal(t, "trace-1", ev.TraceID)
	assert.Equal(t, 0, ev.CallSequence)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, int64(1000), ev.Usage.Input)
	assert.Equal(t, int64(500), ev.Usage.Output)
	assert.Equal(t, int64(1500), ev.Usage.Total, "total derived when absent")
	assert.Greater(t, ev.CostTotal, 0.0)
}

func TestNormalizeRejectsInvalidEvents(t *testing.T) {
	n := testNormalizer()
	cases := []struct {
		name string
		ev   map[string]any
	}{
		{"missing timestamp", rawEvent(map[string]any{"timestamp": nil})},
		{"garbage timestamp", rawEvent(map[string]any{"timestamp": "yesterday"})},
		{"missing trace id", rawEvent(map[string]any{"trace_id": ""})},
		{"missing call sequence", rawEvent(map[string]any{"call_sequence": nil})},
		{"fractional call sequence", rawEvent(map[string]any{"call_sequence": 1.5})},
		{"negative call sequence", rawEvent(map[string]any{"call_sequence": float64(-1)})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			batch := n.Normalize(context.Background(), "team-1", []map[string]any{tc.ev})
			assert.Empty(t, batch.Events)
			assert.Equal(t, 1, batch.Skipped)
		})
	}
}

func TestNormalizeFlatUsage(t *testing.T) {
	n := testNormalizer()
	ev := rawEvent(map[string]any{
		"input_tokens":  float64(200),
		"output_tokens": float64(100),
		"cached_tokens": float64(50),
	})
	delete(ev, "usage")

	batch := n.Normalize(context.Background(), "team-1", []map[string]any{ev})
	require.Len(t, batch.Events, 1)
	assert.Equal(t, int64(200), batch.Events[0].Usage.Input)
	assert.Equal(t, int64(100), batch.Events[0].Usage.Output)
	assert.Equal(t, int64(50), batch.Events[0].Usage.Cached)
}

func TestNormalizeStringUsageNeverLeaks(t *testing.T) {
	n := testNormalizer()
	ev := rawEvent(map[string]any{
		"usage": map[string]any{"input": "1000", "output": float64(5)},
	})

	batch := n.Normalize(context.Background(), "team-1", []map[string]any{ev})
	require.Len(t, batch.Events, 1)
	assert.Zero(t, batch.Events[0].Usage.Input, "string token counts are dropped, not parsed")
	assert.Equal(t, int64(5), batch.Events[0].Usage.Output)
}

func TestNormalizeTimestampFormats(t *testing.T) {
	n := testNormalizer()
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, ts := range map[string]any{
		"epoch millis":  float64(1735689600000),
		"rfc3339":       "2025-01-01T00:00:00Z",
		"string epoch":  "1735689600000",
	} {
		t.Run(name, func(t *testing.T) {
			batch := n.Normalize(context.Background(), "team-1",
				[]map[string]any{rawEvent(map[string]any{"timestamp": ts})})
			require.Len(t, batch.Events, 1)
			assert.True(t, batch.Events[0].Timestamp.Equal(want))
		})
	}
}

func TestNormalizeDedupLaterTimestampWins(t *testing.T) {
	n := testNormalizer()
	older := rawEvent(map[string]any{"timestamp": float64(1735689600000), "model": "gpt-4o"})
	newer := rawEvent(map[string]any{"timestamp": float64(1735689660000), "model": "gpt-4o-mini"})

	for _, order := range [][]map[string]any{{older, newer}, {newer, older}} {
		batch := n.Normalize(context.Background(), "team-1", order)
		require.Len(t, batch.Events, 1)
		assert.Equal(t, "gpt-4o-mini", batch.Events[0].Model)
	}
}

func TestNormalizeAgentPrecedence(t *testing.T) {
	n := testNormalizer()
	ev := rawEvent(map[string]any{
		"agent":       "top-level",
		"agent_stack": []any{"leader", "helper"},
		"metadata":    map[string]any{"agent": "override"},
	})

	batch := n.Normalize(context.Background(), "team-1", []map[string]any{ev})
	require.Len(t, batch.Events, 1)
	got := batch.Events[0]
	assert.Equal(t, "override", got.Agent)
	assert.Equal(t, []string{"override", "leader", "helper"}, got.AgentStack)
}

func TestNormalizeAgentAlreadyInStack(t *testing.T) {
	n := testNormalizer()
	ev := rawEvent(map[string]any{
		"agent":       "leader",
		"agent_stack": []any{"leader", "helper"},
	})

	batch := n.Normalize(context.Background(), "team-1", []map[string]any{ev})
	require.Len(t, batch.Events, 1)
	assert.Equal(t, []string{"leader", "helper"}, batch.Events[0].AgentStack)
}

func TestNormalizeToolCallCount(t *testing.T) {
	n := testNormalizer()
	ev := rawEvent(map[string]any{
		"messages": []any{
			map[string]any{"role": "assistant", "tool_calls": []any{1, 2}},
			map[string]any{"role": "assistant", "tool_calls": []any{3}},
			map[string]any{"role": "user"},
		},
	})

	batch := n.Normalize(context.Background(), "team-1", []map[string]any{ev})
	require.Len(t, batch.Events, 1)
	assert.Equal(t, 3, batch.Events[0].ToolCallCount)
}

func TestExtractContentHashAndPreview(t *testing.T) {
	n := testNormalizer()
	response := "a response worth capturing"
	ev := rawEvent(map[string]any{"response_content": response})

	batch := n.Normalize(context.Background(), "team-1", []map[string]any{ev})
	require.Len(t, batch.Events, 1)
	require.Len(t, batch.Refs, 1)
	require.Len(t, batch.Blobs, 1)

	sum := sha256.Sum256([]byte(response))
	wantHash := hex.EncodeToString(sum[:])
	assert.Equal(t, wantHash, batch.Refs[0].ContentHash)
	assert.Equal(t, wantHash, batch.Blobs[0].ContentHash)
	assert.Equal(t, models.ContentResponse, batch.Refs[0].ContentType)
	assert.Equal(t, response, batch.Refs[0].Preview)
	assert.Equal(t, len(response), batch.Refs[0].ByteSize)
	assert.True(t, batch.Events[0].HasContent)
}

func TestExtractContentPreviewTruncated(t *testing.T) {
	n := testNormalizer()
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	ev := rawEvent(map[string]any{"response_content": string(long)})

	batch := n.Normalize(context.Background(), "team-1", []map[string]any{ev})
	require.Len(t, batch.Refs, 1)
	assert.Len(t, batch.Refs[0].Preview, 200)
}

func TestExtractContentMessagesCount(t *testing.T) {
	n := testNormalizer()
	ev := rawEvent(map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "hi"},
			map[string]any{"role": "assistant", "content": "hello"},
		},
	})

	batch := n.Normalize(context.Background(), "team-1", []map[string]any{ev})
	require.Len(t, batch.Refs, 1)
	require.NotNil(t, batch.Refs[0].MessageCount)
	assert.Equal(t, 2, *batch.Refs[0].MessageCount)
}

func TestExtractContentDedupWithinBatch(t *testing.T) {
	n := testNormalizer()
	shared := "identical response"
	a := rawEvent(map[string]any{"response_content": shared})
	b := rawEvent(map[string]any{"trace_id": "trace-2", "response_content": shared})

	batch := n.Normalize(context.Background(), "team-1", []map[string]any{a, b})
	require.Len(t, batch.Events, 2)
	assert.Len(t, batch.Refs, 2, "each event keeps its own reference")
	assert.Len(t, batch.Blobs, 1, "identical content yields a single blob")
}

func TestNormalizeEmptyContentSkipped(t *testing.T) {
	n := testNormalizer()
	ev := rawEvent(map[string]any{
		"response_content": "",
		"tools":            []any{},
		"params":           map[string]any{},
	})

	batch := n.Normalize(context.Background(), "team-1", []map[string]any{ev})
	require.Len(t, batch.Events, 1)
	assert.Empty(t, batch.Refs)
	assert.Empty(t, batch.Blobs)
	assert.False(t, batch.Events[0].HasContent)
}

func TestNormalizeLatency(t *testing.T) {
	n := testNormalizer()
	batch := n.Normalize(context.Background(), "team-1",
		[]map[string]any{rawEvent(map[string]any{"latency_ms": float64(1234)})})
	require.Len(t, batch.Events, 1)
	require.NotNil(t, batch.Events[0].LatencyMS)
	assert.InDelta(t, 1234, *batch.Events[0].LatencyMS, 1e-9)
}
