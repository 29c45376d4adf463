package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/columns"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/filters"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
)

// fakeChunkFetcher serves a fixed call set in chunk windows, optionally
// failing at a given offset.
type fakeChunkFetcher struct {
	calls    []models.CallLog
	failAt   int
	requests []ChunkRequest
}

func (f *fakeChunkFetcher) FetchChunk(ctx context.Context, req ChunkRequest) ([]models.CallLog, error) {
	f.requests = append(f.requests, req)
	if f.failAt > 0 && req.Offset >= f.failAt {
		return nil, errors.New("store unavailable")
	}
	if req.Offset >= len(f.calls) {
		return nil, nil
	}
	end := req.Offset + req.Limit
	if end > len(f.calls) {
		end = len(f.calls)
	}
	return f.calls[req.Offset:end], nil
}

func makeCalls(n int) []models.CallLog {
	calls := make([]models.CallLog, n)
	for i := range calls {
		calls[i] = models.CallLog{
			ID:           fmt.Sprintf("id-%d", i),
			AgentID:      "agent-1",
			CallID:       fmt.Sprintf("call-%d", i),
			TotalLLMCost: 1.5,
			TotalTTSCost: 0.25,
			TotalSTTCost: 0.25,
			Metadata:     models.JSON(`{"campaign":"diwali"}`),
		}
	}
	return calls
}

func basicVisible() columns.VisibleColumns {
	return columns.VisibleColumns{
		Basic:    []string{"call_id", "total_cost"},
		Metadata: []string{"campaign"},
	}
}

func TestExportChunksSequentially(t *testing.T) {
	fetcher := &fakeChunkFetcher{calls: makeCalls(2500)}
	e := NewExporter(fetcher)

	var buf bytes.Buffer
	count, err := e.Export(context.Background(), "agent-1", nil, basicVisible(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2500, count)

	// 2500 rows at chunk size 1000: full, full, short.
	require.Len(t, fetcher.requests, 3)
	assert.Equal(t, 0, fetcher.requests[0].Offset)
	assert.Equal(t, 1000, fetcher.requests[1].Offset)
	assert.Equal(t, 2000, fetcher.requests[2].Offset)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2501)
	assert.Equal(t, []string{"call_id", "total_cost", "metadata_campaign"}, records[0])
	assert.Equal(t, []string{"call-0", "2", "diwali"}, records[1])
}

func TestExportExactChunkBoundary(t *testing.T) {
	fetcher := &fakeChunkFetcher{calls: makeCalls(2000)}
	e := NewExporter(fetcher)

	var buf bytes.Buffer
	count, err := e.Export(context.Background(), "agent-1", nil, basicVisible(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2000, count)
	// The trailing empty chunk confirms exhaustion.
	assert.Len(t, fetcher.requests, 3)
}

func TestExportChunkFailureAborts(t *testing.T) {
	fetcher := &fakeChunkFetcher{calls: makeCalls(2500), failAt: 2000}
	e := NewExporter(fetcher)

	var buf bytes.Buffer
	_, err := e.Export(context.Background(), "agent-1", nil, basicVisible(), &buf)
	require.Error(t, err)
	// No partial file.
	assert.Zero(t, buf.Len())
}

func TestExportEmptyResultErrors(t *testing.T) {
	e := NewExporter(&fakeChunkFetcher{})

	var buf bytes.Buffer
	_, err := e.Export(context.Background(), "agent-1", nil, basicVisible(), &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data found to export")
	assert.Zero(t, buf.Len())
}

func TestExportScopesToAgent(t *testing.T) {
	fetcher := &fakeChunkFetcher{calls: makeCalls(1)}
	e := NewExporter(fetcher)

	var buf bytes.Buffer
	_, err := e.Export(context.Background(), "agent-7", nil, basicVisible(), &buf)
	require.NoError(t, err)

	require.NotEmpty(t, fetcher.requests)
	clauses := fetcher.requests[0].Clauses
	require.NotEmpty(t, clauses)
	assert.Equal(t, filters.Clause{Column: "agent_id", Operator: filters.OperatorEq, Value: "agent-7"}, clauses[0])
}

func TestFlattenSynthesizesTotalCost(t *testing.T) {
	call := models.CallLog{
		CallID:       "c-1",
		TotalLLMCost: 1.25,
		TotalTTSCost: 0.5,
		TotalSTTCost: 0.25,
		Metadata:     models.JSON(`{"retries":3,"tags":["a","b"]}`),
	}
	visible := columns.VisibleColumns{
		Basic:    []string{"call_id", "total_cost"},
		Metadata: []string{"retries", "tags", "missing"},
	}

	flat := Flatten(call, visible)
	assert.Equal(t, "c-1", flat["call_id"])
	assert.Equal(t, "2", flat["total_cost"])
	assert.Equal(t, "3", flat["metadata_retries"])
	assert.Equal(t, `["a","b"]`, flat["metadata_tags"])
	assert.Equal(t, "", flat["metadata_missing"])
}

func TestHeaderPrefixesJSONColumns(t *testing.T) {
	header := Header(columns.VisibleColumns{
		Basic:                []string{"call_id"},
		Metadata:             []string{"campaign"},
		TranscriptionMetrics: []string{"sentiment"},
	})
	assert.Equal(t, []string{"call_id", "metadata_campaign", "transcription_sentiment"}, header)
}

func TestFilename(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "call_logs_2025-03-14.csv", Filename(now))
}

func TestSelectColumnsSkipsSyntheticAndUnusedJSON(t *testing.T) {
	sel := selectColumns(columns.VisibleColumns{
		Basic:    []string{"call_id", "total_cost", "duration_seconds"},
		Metadata: []string{"campaign"},
	})
	assert.Equal(t, []string{"id", "agent_id", "call_id", "duration_seconds", "metadata"}, sel)

	sel = selectColumns(columns.VisibleColumns{Basic: []string{"call_id"}})
	assert.NotContains(t, sel, "metadata")
	assert.NotContains(t, sel, "transcription_metrics")
}
