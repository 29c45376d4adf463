package columns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
)

func TestDiscover(t *testing.T) {
	calls := []models.CallLog{
		{
			Metadata:             models.JSON(`{"campaign":"diwali","region":"south"}`),
			TranscriptionMetrics: models.JSON(`{"sentiment":"positive"}`),
		},
		{
			Metadata: models.JSON(`{"campaign":"holi","retries":2}`),
			Metrics:  models.JSON(`{"latency_p95":350}`),
		},
	}

	discovered := Discover(calls)
	assert.Equal(t, []string{"campaign", "region", "retries"}, discovered.Metadata)
	assert.Equal(t, []string{"sentiment"}, discovered.TranscriptionMetrics)
	assert.Equal(t, []string{"latency_p95"}, discovered.Metrics)
}

func TestDiscoverRowsHandlesDriverShapes(t *testing.T) {
	rows := []map[string]interface{}{
		{"metadata": map[string]interface{}{"campaign": "diwali"}},
		{"metadata": `{"region":"south"}`},
		{"transcription_metrics": []byte(`{"sentiment":"neutral"}`)},
		{"metadata": "not-json"},
		{"metrics": nil},
	}

	discovered := DiscoverRows(rows)
	assert.Equal(t, []string{"campaign", "region"}, discovered.Metadata)
	assert.Equal(t, []string{"sentiment"}, discovered.TranscriptionMetrics)
	assert.Empty(t, discovered.Metrics)
}

func TestAgentExtractionKeys(t *testing.T) {
	t.Run("array form", func(t *testing.T) {
		keys := AgentExtractionKeys(models.JSON(`[{"key":"Final Disposition"},{"key":"callback requested"}]`))
		assert.Equal(t, []string{"finalDisposition", "callbackRequested"}, keys)
	})

	t.Run("string-wrapped form", func(t *testing.T) {
		keys := AgentExtractionKeys(models.JSON(`"[{\"key\":\"Final Disposition\"}]"`))
		assert.Equal(t, []string{"finalDisposition"}, keys)
	})

	t.Run("empty and malformed", func(t *testing.T) {
		assert.Nil(t, AgentExtractionKeys(nil))
		assert.Nil(t, AgentExtractionKeys(models.JSON(`{"key":"x"}`)))
	})
}

func TestToCamelCase(t *testing.T) {
	tests := map[string]string{
		"Final Disposition":  "finalDisposition",
		"callback requested": "callbackRequested",
		"already":            "already",
		"Spaced  Out!":       "spacedOut",
		"a 1 b":              "a1B",
	}
	for in, want := range tests {
		assert.Equal(t, want, ToCamelCase(in), "input %q", in)
	}
}

func TestDefaultVisible(t *testing.T) {
	discovered := DynamicColumns{
		Metadata:             []string{"campaign", "complete_configuration", "usage", "region"},
		TranscriptionMetrics: []string{"sentiment"},
		Metrics:              []string{"latency_p95"},
	}

	visible := DefaultVisible("admin", discovered, []string{"finalDisposition"})

	// Hidden catalog entries stay out of the default basic selection.
	assert.NotContains(t, visible.Basic, "avg_latency")
	assert.Contains(t, visible.Basic, "call_id")
	assert.Contains(t, visible.Basic, "total_cost")

	// Pipeline plumbing keys are excluded from metadata defaults.
	assert.Equal(t, []string{"campaign", "region"}, visible.Metadata)

	// Configured extraction keys merge into the transcription set.
	assert.Equal(t, []string{"finalDisposition", "sentiment"}, visible.TranscriptionMetrics)
	assert.Equal(t, []string{"latency_p95"}, visible.Metrics)
}

func TestDefaultVisibleRedactsForUserRole(t *testing.T) {
	visible := DefaultVisible("user", DynamicColumns{}, nil)
	require.NotEmpty(t, visible.Basic)
	assert.NotContains(t, visible.Basic, "total_cost")
	assert.NotContains(t, visible.Basic, "billing_duration_seconds")
	assert.Contains(t, visible.Basic, "duration_seconds")
}
