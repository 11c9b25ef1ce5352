package eventstore

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveobs/hive/pkg/models"
)

func TestEventArgsMatchesPlaceholders(t *testing.T) {
	latency := 120.5
	ev := models.LLMEvent{
		Timestamp:    time.Now().UTC(),
		TeamID:       "team-1",
		TraceID:      "trace",
		CallSequence: 3,
		Model:        "gpt-4o",
		LatencyMS:    &latency,
		Usage:        models.Usage{Input: 10, Output: 5, Total: 15, Cached: 2},
		Metadata:     map[string]any{"agent": "x"},
	}

	args := eventArgs(&ev)

	// The arg list must line up with the highest placeholder in the SQL.
	maxPlaceholder := 0
	for i := 1; i <= 64; i++ {
		if strings.Contains(insertEventSQL, fmt.Sprintf("$%d", i)) {
			maxPlaceholder = i
		}
	}
	require.Equal(t, maxPlaceholder, len(args))
}

func TestEventArgsNullableStrings(t *testing.T) {
	ev := models.LLMEvent{
		Timestamp:    time.Now().UTC(),
		TeamID:       "team-1",
		TraceID:      "trace",
		CallSequence: 0,
		Model:        "gpt-4o",
	}
	args := eventArgs(&ev)

	// span_id is the 5th parameter; empty optional strings become NULL.
	assert.Nil(t, args[4])
	// model is required and passed as-is.
	assert.Equal(t, "gpt-4o", args[8])
	// metadata defaults to an empty object rather than NULL.
	assert.Equal(t, map[string]any{}, args[23])
	// agent_stack defaults to an empty array.
	assert.Equal(t, []string{}, args[12])
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	v := nullable("x")
	require.NotNil(t, v)
	assert.Equal(t, "x", *v)
}

func TestInsertEventSQLLastWriteWins(t *testing.T) {
	// The statement must delete stale rows, guard against newer rows, and
	// resolve exact-timestamp ties in favour of the incoming row.
	assert.Contains(t, insertEventSQL, "DELETE FROM llm_events")
	assert.Contains(t, insertEventSQL, "timestamp < $1")
	assert.Contains(t, insertEventSQL, "timestamp > $1")
	assert.Contains(t, insertEventSQL, "ON CONFLICT (timestamp, trace_id, call_sequence) DO UPDATE")
}

func TestInsertBlobSQLRefCounting(t *testing.T) {
	assert.Contains(t, insertBlobSQL, "ref_count = llm_content_store.ref_count + 1")
	assert.Contains(t, insertBlobSQL, "(xmax = 0) AS inserted")
	assert.NotContains(t, insertBlobSQL, "content = EXCLUDED.content",
		"cold content is immutable")
}
