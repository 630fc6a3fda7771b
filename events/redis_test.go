package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogauto/logging"
	"blogauto/workflow"
)

func TestNewRedisSinkRejectsBadURL(t *testing.T) {
	_, err := NewRedisSink("not-a-url", "blogauto", logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func TestNewRedisSinkFailsWhenUnreachable(t *testing.T) {
	_, err := NewRedisSink("redis://127.0.0.1:1/0", "blogauto", logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect redis")
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "blogauto:workflow:abc", streamName("blogauto", "abc"))
	assert.Equal(t, "x:workflow:a_b", streamName("x", "a:b"))
}

func TestStreamValues(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	v := streamValues(Event{
		Session: "s1",
		RunID:   "r1",
		State:   workflow.StatePublishing,
		Status:  workflow.Status{AnalyzeDone: true, SynthesizeDone: true, Publishing: true},
		At:      at,
	})
	assert.Equal(t, "publishing", v["state"])
	assert.Equal(t, "true", v["publishing"])
	assert.Equal(t, "false", v["publish_done"])
	assert.Equal(t, "2026-03-01T00:00:00Z", v["timestamp"])
	assert.NotContains(t, v, "error")
	assert.NotContains(t, v, "post_id")

	v = streamValues(Event{State: workflow.StateFailed, Error: "存储已满"})
	assert.Equal(t, "存储已满", v["error"])
}
