// Package export walks the entire filtered call-log set in bulk chunks and
// serializes it to a single CSV download. It reads the raw row table
// directly (no distinct collapsing) with the same clause vocabulary the
// paginated path compiles to.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/columns"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/filters"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/metrics"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
)

// ChunkSize is the fixed bulk read size per chunk request.
const ChunkSize = 1000

// ChunkRequest describes one bulk read: selected columns, compiled
// clauses, and the inclusive row range, ordered created_at descending.
type ChunkRequest struct {
	Select  []string
	Clauses []filters.Clause
	Limit   int
	Offset  int
}

// ChunkFetcher reads one chunk of raw filtered rows.
type ChunkFetcher interface {
	FetchChunk(ctx context.Context, req ChunkRequest) ([]models.CallLog, error)
}

// Exporter accumulates chunks and writes the flattened CSV.
type Exporter struct {
	fetcher   ChunkFetcher
	chunkSize int
}

// NewExporter returns an exporter using the standard chunk size.
func NewExporter(fetcher ChunkFetcher) *Exporter {
	return &Exporter{fetcher: fetcher, chunkSize: ChunkSize}
}

// Export compiles the active filters, retrieves every matching row in
// strictly sequential chunks, and writes one CSV (header plus a row per
// call) to w. A failed chunk aborts the export before anything is written;
// no partial file is produced. Returns the number of data rows written.
func (e *Exporter) Export(ctx context.Context, agentID string, rules []filters.FilterRule, visible columns.VisibleColumns, w io.Writer) (int, error) {
	compiled, errs := filters.Compile(rules, agentID, nil, nil)
	if len(errs) > 0 {
		// Invalid rules were excluded upstream as well; the export runs
		// on what remains.
		logrus.WithField("rejected", len(errs)).Warn("export compiled with invalid filter rules excluded")
	}

	var all []models.CallLog
	sel := selectColumns(visible)
	for offset := 0; ; offset += e.chunkSize {
		chunk, err := e.fetcher.FetchChunk(ctx, ChunkRequest{
			Select:  sel,
			Clauses: compiled.Pre,
			Limit:   e.chunkSize,
			Offset:  offset,
		})
		if err != nil {
			metrics.ExportFailures.Inc()
			return 0, fmt.Errorf("failed to fetch data for export: %w", err)
		}
		all = append(all, chunk...)
		if len(chunk) < e.chunkSize {
			break
		}
	}

	if len(all) == 0 {
		return 0, fmt.Errorf("no data found to export")
	}

	header := Header(visible)
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, call := range all {
		flat := Flatten(call, visible)
		record := make([]string, len(header))
		for i, key := range header {
			record[i] = flat[key]
		}
		if err := writer.Write(record); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}

	metrics.ExportRows.Add(float64(len(all)))
	return len(all), nil
}

// Filename returns the attachment name for an export started now.
func Filename(now time.Time) string {
	return "call_logs_" + now.Format("2006-01-02") + ".csv"
}

// selectColumns builds the store projection: identifiers, the selected
// basic columns (total_cost is synthesized, not selected), and the JSON
// blobs only when sub-fields of them are exported.
func selectColumns(visible columns.VisibleColumns) []string {
	sel := []string{"id", "agent_id"}
	for _, key := range visible.Basic {
		if key != "total_cost" {
			sel = append(sel, key)
		}
	}
	if len(visible.Metadata) > 0 {
		sel = append(sel, "metadata")
	}
	if len(visible.TranscriptionMetrics) > 0 {
		sel = append(sel, "transcription_metrics")
	}
	return sel
}

// Header returns the flattened CSV column order: basic keys as-is, then
// the JSON keys prefixed by their source column.
func Header(visible columns.VisibleColumns) []string {
	header := make([]string, 0, len(visible.Basic)+len(visible.Metadata)+len(visible.TranscriptionMetrics))
	header = append(header, visible.Basic...)
	for _, key := range visible.Metadata {
		header = append(header, "metadata_"+key)
	}
	for _, key := range visible.TranscriptionMetrics {
		header = append(header, "transcription_"+key)
	}
	return header
}

// Flatten turns one call row into flat string columns. JSON sub-fields
// become prefixed columns; objects are JSON-encoded; missing keys are
// empty. The synthetic total_cost column sums the three cost columns.
func Flatten(call models.CallLog, visible columns.VisibleColumns) map[string]string {
	flat := make(map[string]string)

	for _, key := range visible.Basic {
		if key == "total_cost" {
			total := call.TotalLLMCost + call.TotalTTSCost + call.TotalSTTCost
			flat["total_cost"] = strconv.FormatFloat(total, 'f', -1, 64)
			continue
		}
		flat[key] = basicValue(call, key)
	}

	metadata := call.Metadata.Map()
	for _, key := range visible.Metadata {
		flat["metadata_"+key] = stringify(metadata[key])
	}

	transcription := call.TranscriptionMetrics.Map()
	for _, key := range visible.TranscriptionMetrics {
		flat["transcription_"+key] = stringify(transcription[key])
	}

	return flat
}

func basicValue(call models.CallLog, key string) string {
	switch key {
	case "id":
		return call.ID
	case "agent_id":
		return call.AgentID
	case "call_id":
		return call.CallID
	case "customer_number":
		return call.CustomerNumber
	case "call_ended_reason":
		return call.CallEndedReason
	case "call_started_at":
		return formatTime(call.CallStartedAt)
	case "call_ended_at":
		return formatTime(call.CallEndedAt)
	case "duration_seconds":
		return strconv.FormatFloat(call.DurationSeconds, 'f', -1, 64)
	case "billing_duration_seconds":
		return strconv.FormatFloat(call.BillingDurationSeconds, 'f', -1, 64)
	case "recording_url":
		return call.RecordingURL
	case "avg_latency":
		return strconv.FormatFloat(call.AvgLatency, 'f', -1, 64)
	case "total_llm_cost":
		return strconv.FormatFloat(call.TotalLLMCost, 'f', -1, 64)
	case "total_tts_cost":
		return strconv.FormatFloat(call.TotalTTSCost, 'f', -1, 64)
	case "total_stt_cost":
		return strconv.FormatFloat(call.TotalSTTCost, 'f', -1, 64)
	case "environment":
		return call.Environment
	}
	return ""
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
