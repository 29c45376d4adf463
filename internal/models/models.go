package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type User struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	Email               string     `json:"email" gorm:"uniqueIndex"`
	Password            string     `json:"-"`
	Name                string     `json:"name"`
	Active              bool       `json:"active" gorm:"default:true"`
	FailedLoginAttempts int        `json:"-" gorm:"default:0"`
	LockedUntil         *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type Project struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     uint      `json:"owner_id" gorm:"index"`
	Environment string    `json:"environment" gorm:"default:'production'"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectMember links a user to a project with a tenant-membership role.
// The role string drives column redaction in the call-log views.
type ProjectMember struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ProjectID string    `json:"project_id" gorm:"index:idx_member_project_email;type:uuid"`
	Email     string    `json:"email" gorm:"index:idx_member_project_email"`
	Role      string    `json:"role" gorm:"default:'user'"`
	AddedBy   uint      `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agent represents a voice-call agent whose calls are logged.
type Agent struct {
	ID                   string    `json:"id" gorm:"primaryKey;type:uuid"`
	ProjectID            string    `json:"project_id" gorm:"index;type:uuid"`
	Name                 string    `json:"name"`
	AgentType            string    `json:"agent_type"`
	Environment          string    `json:"environment" gorm:"default:'production'"`
	Active               bool      `json:"active" gorm:"default:true"`
	FieldExtractorPrompt JSON      `json:"field_extractor_prompt,omitempty" gorm:"type:jsonb"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// CallLog is one raw call record written by the voice pipeline. Retry
// attempts of the same logical call share a call_id; the distinct machinery
// collapses them to one representative row. This subsystem never writes
// these rows.
type CallLog struct {
	ID                     string     `json:"id" gorm:"primaryKey;type:uuid"`
	AgentID                string     `json:"agent_id" gorm:"index;type:uuid"`
	CallID                 string     `json:"call_id" gorm:"index"`
	CustomerNumber         string     `json:"customer_number"`
	CallEndedReason        string     `json:"call_ended_reason"`
	CallStartedAt          *time.Time `json:"call_started_at" gorm:"index"`
	CallEndedAt            *time.Time `json:"call_ended_at"`
	DurationSeconds        float64    `json:"duration_seconds"`
	BillingDurationSeconds float64    `json:"billing_duration_seconds"`
	RecordingURL           string     `json:"recording_url"`
	AvgLatency             float64    `json:"avg_latency"`
	TotalLLMCost           float64    `json:"total_llm_cost"`
	TotalTTSCost           float64    `json:"total_tts_cost"`
	TotalSTTCost           float64    `json:"total_stt_cost"`
	Environment            string     `json:"environment"`
	TranscriptType         string     `json:"transcript_type"`
	TranscriptJSON         JSON       `json:"transcript_json,omitempty" gorm:"type:jsonb"`
	Metadata               JSON       `json:"metadata,omitempty" gorm:"type:jsonb"`
	TranscriptionMetrics   JSON       `json:"transcription_metrics,omitempty" gorm:"type:jsonb"`
	Metrics                JSON       `json:"metrics,omitempty" gorm:"type:jsonb"`
	CreatedAt              time.Time  `json:"created_at" gorm:"index"`
}

// TableName keeps the table shared with the ingestion pipeline.
func (CallLog) TableName() string {
	return "pype_voice_call_logs"
}

// TokenBlacklist represents blacklisted JWT tokens
type TokenBlacklist struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TokenHash string    `json:"-" gorm:"uniqueIndex;not null"`
	UserID    uint      `json:"user_id" gorm:"index"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason" gorm:"default:'logout'"`
	CreatedAt time.Time `json:"created_at"`
}

// JSON is a generic JSON field type
type JSON []byte

// Value implements the driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements the sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = JSON(v)
		return nil
	case string:
		*j = JSON(v)
		return nil
	default:
		return errors.New("cannot scan into JSON")
	}
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = JSON(data)
	return nil
}

// MarshalJSON implements the json.Marshaler interface
func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

// Map decodes the field into a generic map. Returns nil for empty or
// non-object payloads.
func (j JSON) Map() map[string]interface{} {
	if len(j) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(j, &m); err != nil {
		return nil
	}
	return m
}
