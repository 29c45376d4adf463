package columns

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
)

// BasicColumn is one entry of the fixed scalar-column catalog. Hidden
// entries exist for filtering and export but stay out of the default
// table selection.
type BasicColumn struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Hidden bool   `json:"hidden,omitempty"`
}

// BasicColumns is the scalar catalog offered by the column picker.
var BasicColumns = []BasicColumn{
	{Key: "customer_number", Label: "Customer Number"},
	{Key: "call_id", Label: "Call ID"},
	{Key: "call_ended_reason", Label: "Call Status"},
	{Key: "duration_seconds", Label: "Duration"},
	{Key: "billing_duration_seconds", Label: "Billing Duration"},
	{Key: "total_cost", Label: "Total Cost (₹)"},
	{Key: "call_started_at", Label: "Start Time"},
	{Key: "avg_latency", Label: "Avg Latency (ms)", Hidden: true},
	{Key: "total_llm_cost", Label: "LLM Cost (₹)", Hidden: true},
	{Key: "total_tts_cost", Label: "TTS Cost (₹)", Hidden: true},
	{Key: "total_stt_cost", Label: "STT Cost (₹)", Hidden: true},
}

// excludedMetadataKeys stay out of the default metadata selection; they
// carry pipeline plumbing rather than anything an operator reads.
var excludedMetadataKeys = map[string]bool{
	"complete_configuration": true,
	"usage":                  true,
	"sip_trunk_id":           true,
	"campaignId":             true,
	"contactId":              true,
	"agent_name":             true,
	"metadata":               true,
}

// VisibleColumns is the per-view column selection. Basic keys come from
// the fixed catalog; the other three sets are mined from sampled rows.
type VisibleColumns struct {
	Basic                []string `json:"basic"`
	Metadata             []string `json:"metadata"`
	TranscriptionMetrics []string `json:"transcription_metrics"`
	Metrics              []string `json:"metrics"`
}

// DynamicColumns are the JSON key sets discovered from a row sample.
type DynamicColumns struct {
	Metadata             []string `json:"metadata"`
	TranscriptionMetrics []string `json:"transcription_metrics"`
	Metrics              []string `json:"metrics"`
}

// Discover mines the sorted key sets of the three JSON columns from the
// sampled rows. Key sets are not known statically; every fetched page
// widens the sample.
func Discover(calls []models.CallLog) DynamicColumns {
	metadata := map[string]bool{}
	transcription := map[string]bool{}
	metrics := map[string]bool{}

	for _, call := range calls {
		for key := range call.Metadata.Map() {
			metadata[key] = true
		}
		for key := range call.TranscriptionMetrics.Map() {
			transcription[key] = true
		}
		for key := range call.Metrics.Map() {
			metrics[key] = true
		}
	}

	return DynamicColumns{
		Metadata:             sortedKeys(metadata),
		TranscriptionMetrics: sortedKeys(transcription),
		Metrics:              sortedKeys(metrics),
	}
}

// DiscoverRows is Discover over raw result rows, as returned by the
// paginated query. JSON columns may arrive as decoded objects or as raw
// JSON text depending on the driver.
func DiscoverRows(rows []map[string]interface{}) DynamicColumns {
	metadata := map[string]bool{}
	transcription := map[string]bool{}
	metrics := map[string]bool{}

	for _, row := range rows {
		collectKeys(row["metadata"], metadata)
		collectKeys(row["transcription_metrics"], transcription)
		collectKeys(row["metrics"], metrics)
	}

	return DynamicColumns{
		Metadata:             sortedKeys(metadata),
		TranscriptionMetrics: sortedKeys(transcription),
		Metrics:              sortedKeys(metrics),
	}
}

func collectKeys(value interface{}, into map[string]bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		for key := range v {
			into[key] = true
		}
	case models.JSON:
		for key := range v.Map() {
			into[key] = true
		}
	case []byte:
		var m map[string]interface{}
		if json.Unmarshal(v, &m) == nil {
			for key := range m {
				into[key] = true
			}
		}
	case string:
		var m map[string]interface{}
		if json.Unmarshal([]byte(v), &m) == nil {
			for key := range m {
				into[key] = true
			}
		}
	}
}

// AgentExtractionKeys parses the agent's field-extractor configuration (a
// JSON array of {key} objects) into camel-cased key names. These merge
// into the transcription key set so configured fields appear even before
// any row carries them.
func AgentExtractionKeys(prompt models.JSON) []string {
	if len(prompt) == 0 {
		return nil
	}

	raw := []byte(prompt)
	// The prompt is stored either as a JSON array or as a string holding
	// one.
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		raw = []byte(asString)
	}

	var entries []struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Key != "" {
			keys = append(keys, ToCamelCase(entry.Key))
		}
	}
	return keys
}

// DefaultVisible initializes an empty selection: all permitted basic
// columns, all discovered keys minus the metadata exclusion list, and the
// agent-configured extraction keys merged into the transcription set.
func DefaultVisible(role string, discovered DynamicColumns, extractionKeys []string) VisibleColumns {
	var basic []string
	for _, col := range BasicColumns {
		if !col.Hidden && VisibleForRole(col.Key, role) {
			basic = append(basic, col.Key)
		}
	}

	var metadata []string
	for _, key := range discovered.Metadata {
		if !excludedMetadataKeys[key] {
			metadata = append(metadata, key)
		}
	}

	transcription := map[string]bool{}
	for _, key := range discovered.TranscriptionMetrics {
		transcription[key] = true
	}
	for _, key := range extractionKeys {
		transcription[key] = true
	}

	return VisibleColumns{
		Basic:                basic,
		Metadata:             metadata,
		TranscriptionMetrics: sortedKeys(transcription),
		Metrics:              discovered.Metrics,
	}
}

// ToCamelCase converts a human label ("Final Disposition!") to a camel
// cased key ("finalDisposition").
func ToCamelCase(s string) string {
	var b strings.Builder
	upperNext := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			upperNext = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			switch {
			case b.Len() == 0:
				b.WriteRune(unicode.ToLower(r))
			case upperNext:
				b.WriteRune(unicode.ToUpper(r))
			default:
				b.WriteRune(r)
			}
			upperNext = false
		}
	}
	return b.String()
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
