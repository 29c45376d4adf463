package calllogs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/filters"
)

func TestNewViewSessionDefaults(t *testing.T) {
	s := NewViewSession("agent-1")
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "agent-1", s.AgentID)
	assert.Equal(t, "created_at", s.OrderBy)
	assert.False(t, s.Ascending)
	assert.Empty(t, s.Operations)
}

func TestSetOperationsExcludesInvalid(t *testing.T) {
	s := NewViewSession("agent-1")

	errs := s.SetOperations([]filters.Operation{
		{Type: filters.OperationFilter, Column: "call_id", Operation: filters.OpEquals, Value: "c-1"},
		{Type: filters.OperationFilter, Column: "metadata", Operation: filters.OpJSONEquals, Value: "x"},
	})

	require.Len(t, errs, 1)
	assert.Len(t, s.Operations, 1)
	assert.Equal(t, "call_id", s.Operations[0].Column)
}

func TestSessionDistinctResolution(t *testing.T) {
	s := NewViewSession("agent-1")
	s.DistinctFallback = &filters.DistinctConfig{Column: "call_id", Order: filters.SortDesc}

	// Fallback applies while no distinct operation exists.
	d := s.Distinct()
	require.NotNil(t, d)
	assert.Equal(t, "call_id", d.Column)

	s.SetOperations([]filters.Operation{
		{Type: filters.OperationDistinct, Column: "customer_number", SortOrder: filters.SortAsc},
	})
	d = s.Distinct()
	require.NotNil(t, d)
	assert.Equal(t, "customer_number", d.Column)
}

func TestSessionQueryState(t *testing.T) {
	s := NewViewSession("agent-1")
	s.SetOperations([]filters.Operation{
		{Type: filters.OperationFilter, Column: "call_ended_reason", Operation: filters.OpEquals, Value: "completed"},
		{Type: filters.OperationDistinct, Column: "call_id", SortOrder: filters.SortDesc, Order: 1},
	})

	state, errs := s.QueryState("admin")
	require.Empty(t, errs)

	assert.Equal(t, "agent-1", state.AgentID)
	require.NotNil(t, state.Distinct)
	assert.Equal(t, "call_id", state.Distinct.Column)
	assert.NotEqual(t, "*", state.Select)

	// agent scope + reason filter, nothing targets the distinct key
	assert.Len(t, state.Compiled.Pre, 2)
	assert.Empty(t, state.Compiled.Post)
}

func TestSessionQueryStateSignatureChangesWithFilters(t *testing.T) {
	s := NewViewSession("agent-1")
	before, _ := s.QueryState("admin")

	s.SetOperations([]filters.Operation{
		{Type: filters.OperationFilter, Column: "call_id", Operation: filters.OpEquals, Value: "c-1"},
	})
	after, _ := s.QueryState("admin")

	assert.NotEqual(t, before.Signature(), after.Signature())
}

func TestSessionReset(t *testing.T) {
	s := NewViewSession("agent-1")
	s.SetOperations([]filters.Operation{
		{Type: filters.OperationFilter, Column: "call_id", Operation: filters.OpEquals, Value: "c-1"},
	})
	s.DistinctFallback = &filters.DistinctConfig{Column: "call_id", Order: filters.SortAsc}
	s.OrderBy = "call_started_at"
	s.Ascending = true
	s.DateRange = &filters.DateRange{From: "2025-01-01", To: "2025-01-31"}

	s.Reset()

	assert.Empty(t, s.Operations)
	assert.Nil(t, s.DistinctFallback)
	assert.Nil(t, s.DateRange)
	assert.Equal(t, "created_at", s.OrderBy)
	assert.False(t, s.Ascending)
	assert.Nil(t, s.Distinct())
}
