package calllogs

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/filters"
)

// StoreFetcher fetches pages through the store's distinct-aware query
// function. The function applies the pre-distinct clauses to raw rows,
// collapses duplicates to one representative row per distinct group, then
// applies the post-distinct clauses, ordering and limit/offset.
type StoreFetcher struct {
	db *gorm.DB
}

// NewStoreFetcher returns a fetcher bound to the given database handle.
func NewStoreFetcher(db *gorm.DB) *StoreFetcher {
	return &StoreFetcher{db: db}
}

// FetchPage implements RowFetcher against get_call_logs_with_distinct.
func (f *StoreFetcher) FetchPage(ctx context.Context, state QueryState, limit, offset int) ([]Row, error) {
	pre, err := json.Marshal(state.Compiled.Pre)
	if err != nil {
		return nil, fmt.Errorf("encode pre-distinct filters: %w", err)
	}
	post, err := json.Marshal(state.Compiled.Post)
	if err != nil {
		return nil, fmt.Errorf("encode post-distinct filters: %w", err)
	}

	var distinctColumn, distinctField interface{}
	distinctOrder := string(filters.SortAsc)
	if state.Distinct != nil {
		distinctColumn = state.Distinct.Column
		if state.Distinct.JSONField != "" {
			distinctField = state.Distinct.JSONField
		}
		distinctOrder = string(state.Distinct.Order)
	}

	var dateFrom, dateTo interface{}
	if state.Compiled.From != nil {
		dateFrom = *state.Compiled.From
	}
	if state.Compiled.To != nil {
		dateTo = *state.Compiled.To
	}

	params := map[string]interface{}{
		"p_agent_id":              state.AgentID,
		"p_pre_distinct_filters":  string(pre),
		"p_post_distinct_filters": string(post),
		"p_select":                state.Select,
		"p_order_by_column":       state.OrderBy,
		"p_order_ascending":       state.Ascending,
		"p_limit":                 limit,
		"p_offset":                offset,
		"p_distinct_column":       distinctColumn,
		"p_distinct_json_field":   distinctField,
		"p_distinct_order":        distinctOrder,
		"p_date_from":             dateFrom,
		"p_date_to":               dateTo,
	}

	var rows []map[string]interface{}
	err = f.db.WithContext(ctx).Raw(`
		SELECT * FROM get_call_logs_with_distinct(
			@p_agent_id,
			@p_pre_distinct_filters::jsonb,
			@p_post_distinct_filters::jsonb,
			@p_select,
			@p_order_by_column,
			@p_order_ascending,
			@p_limit,
			@p_offset,
			@p_distinct_column,
			@p_distinct_json_field,
			@p_distinct_order,
			@p_date_from,
			@p_date_to)`, params).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("call log page query failed: %w", err)
	}

	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row(r)
	}
	return out, nil
}
