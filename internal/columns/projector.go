// Package columns computes which call-log columns a caller may see: the
// role-gated SELECT projection plus the dynamically discovered JSON key
// sets that back the column picker and the CSV export.
package columns

import "strings"

// RoleRestrictions maps a tenant-membership role to the column keys that
// must never be selected or rendered for it. Redaction happens at the
// select-column layer; a filter referencing a restricted column cannot
// widen the projection.
var RoleRestrictions = map[string][]string{
	"user": {
		"total_cost",
		"total_llm_cost",
		"total_tts_cost",
		"total_stt_cost",
		"avg_latency",
		"billing_duration_seconds",
	},
}

// VisibleForRole reports whether the column may be shown to the role.
// An empty role sees nothing; roles without a restriction entry see
// everything.
func VisibleForRole(columnKey, role string) bool {
	if role == "" {
		return false
	}
	restricted, ok := RoleRestrictions[role]
	if !ok {
		return true
	}
	for _, key := range restricted {
		if key == columnKey {
			return false
		}
	}
	return true
}

// baseline is the projection every role starts from.
var baseline = []string{
	"id", "agent_id", "call_id", "customer_number", "call_ended_reason",
	"call_started_at", "call_ended_at", "duration_seconds", "recording_url",
	"metadata", "environment", "transcript_type", "transcript_json",
	"created_at", "transcription_metrics", "metrics",
}

// SelectColumns returns the comma-joined SELECT list for a role, or "*"
// when the role is unknown. Cost and latency columns are appended only
// when the role may see them.
func SelectColumns(role string) string {
	if role == "" {
		return "*"
	}

	cols := make([]string, len(baseline))
	copy(cols, baseline)

	if VisibleForRole("billing_duration_seconds", role) {
		cols = append(cols, "billing_duration_seconds")
	}
	if VisibleForRole("avg_latency", role) {
		cols = append(cols, "avg_latency")
	}
	if VisibleForRole("total_llm_cost", role) {
		cols = append(cols, "total_llm_cost", "total_tts_cost", "total_stt_cost")
	}

	return strings.Join(cols, ",")
}
