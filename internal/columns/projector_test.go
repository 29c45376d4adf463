package columns

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibleForRole(t *testing.T) {
	restricted := []string{
		"total_cost", "total_llm_cost", "total_tts_cost", "total_stt_cost",
		"avg_latency", "billing_duration_seconds",
	}

	for _, key := range restricted {
		assert.False(t, VisibleForRole(key, "user"), "user must not see %s", key)
	}

	assert.True(t, VisibleForRole("call_id", "user"))
	assert.True(t, VisibleForRole("total_cost", "admin"))
	assert.True(t, VisibleForRole("total_cost", "owner"))

	// No role, no columns.
	assert.False(t, VisibleForRole("call_id", ""))
}

func TestSelectColumns(t *testing.T) {
	t.Run("empty role selects everything", func(t *testing.T) {
		assert.Equal(t, "*", SelectColumns(""))
	})

	t.Run("user role omits cost and latency columns", func(t *testing.T) {
		sel := SelectColumns("user")
		cols := strings.Split(sel, ",")

		assert.Contains(t, cols, "call_id")
		assert.Contains(t, cols, "metadata")
		assert.NotContains(t, cols, "avg_latency")
		assert.NotContains(t, cols, "billing_duration_seconds")
		assert.NotContains(t, cols, "total_llm_cost")
		assert.NotContains(t, cols, "total_tts_cost")
		assert.NotContains(t, cols, "total_stt_cost")
	})

	t.Run("unrestricted role gets full projection", func(t *testing.T) {
		sel := SelectColumns("admin")
		cols := strings.Split(sel, ",")

		assert.Contains(t, cols, "avg_latency")
		assert.Contains(t, cols, "billing_duration_seconds")
		assert.Contains(t, cols, "total_llm_cost")
		assert.Contains(t, cols, "total_tts_cost")
		assert.Contains(t, cols, "total_stt_cost")
	})
}
