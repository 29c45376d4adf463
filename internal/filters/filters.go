// Package filters holds the call-log filter DSL and its compiler. User
// predicates are expressed as FilterRule values and compiled into the
// clause vocabulary the backing store's query function understands.
package filters

import "fmt"

// FilterOp enumerates the operations the filter UI can request. The set is
// closed: every consumer (validator, compiler, handlers) switches over it
// exhaustively, so adding an operation breaks compilation until each
// consumer handles it.
type FilterOp string

const (
	OpEquals          FilterOp = "equals"
	OpContains        FilterOp = "contains"
	OpStartsWith      FilterOp = "starts_with"
	OpGreaterThan     FilterOp = "greater_than"
	OpLessThan        FilterOp = "less_than"
	OpJSONEquals      FilterOp = "json_equals"
	OpJSONContains    FilterOp = "json_contains"
	OpJSONGreaterThan FilterOp = "json_greater_than"
	OpJSONLessThan    FilterOp = "json_less_than"
	OpJSONExists      FilterOp = "json_exists"
)

// IsValid reports whether op is a known filter operation.
func (op FilterOp) IsValid() bool {
	switch op {
	case OpEquals, OpContains, OpStartsWith, OpGreaterThan, OpLessThan,
		OpJSONEquals, OpJSONContains, OpJSONGreaterThan, OpJSONLessThan, OpJSONExists:
		return true
	}
	return false
}

// RequiresJSONField reports whether op only makes sense against a key
// inside a JSON column.
func (op FilterOp) RequiresJSONField() bool {
	switch op {
	case OpJSONEquals, OpJSONContains, OpJSONGreaterThan, OpJSONLessThan, OpJSONExists:
		return true
	}
	return false
}

// Operator is the backing store's native comparison vocabulary.
type Operator string

const (
	OperatorEq    Operator = "eq"
	OperatorILike Operator = "ilike"
	OperatorGte   Operator = "gte"
	OperatorLte   Operator = "lte"
	OperatorGt    Operator = "gt"
	OperatorLt    Operator = "lt"
	OperatorNotIs Operator = "not.is"
)

// Clause is one compiled predicate in the backing store's vocabulary.
// Column may carry a JSON path ("metadata->>'campaign'") or a cast
// ("metadata->'retries'::numeric").
type Clause struct {
	Column   string      `json:"column"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// SortOrder selects which row in a distinct group is authoritative.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// FilterRule is one user-specified predicate. Column names either a scalar
// column or one of the JSON columns; JSONField, when set, addresses a key
// inside that JSON column.
type FilterRule struct {
	ID        string   `json:"id,omitempty"`
	Column    string   `json:"column"`
	JSONField string   `json:"jsonField,omitempty"`
	Operation FilterOp `json:"operation"`
	Value     string   `json:"value"`
	Order     int      `json:"order"`
}

// DistinctConfig identifies which column (optionally a JSON sub-field)
// groups raw rows into one logical call, and which row in the group wins.
type DistinctConfig struct {
	Column    string    `json:"column"`
	JSONField string    `json:"jsonField,omitempty"`
	Order     SortOrder `json:"order"`
}

// OperationType tags the filter/distinct union coming from the UI.
type OperationType string

const (
	OperationFilter   OperationType = "filter"
	OperationDistinct OperationType = "distinct"
)

// Operation is one entry of the unified filter list: either an ordinary
// predicate or the dedup-key declaration.
type Operation struct {
	ID        string        `json:"id"`
	Type      OperationType `json:"type"`
	Column    string        `json:"column"`
	JSONField string        `json:"jsonField,omitempty"`
	Operation FilterOp      `json:"operation,omitempty"`
	Value     string        `json:"value,omitempty"`
	SortOrder SortOrder     `json:"sortOrder,omitempty"`
	Order     int           `json:"order"`
}

// Rule converts a filter-typed operation to its FilterRule form.
func (o Operation) Rule() FilterRule {
	return FilterRule{
		ID:        o.ID,
		Column:    o.Column,
		JSONField: o.JSONField,
		Operation: o.Operation,
		Value:     o.Value,
		Order:     o.Order,
	}
}

// jsonColumns are the CallLog attributes holding semi-structured
// provider/agent data with statically unknown key sets.
var jsonColumns = map[string]bool{
	"metadata":              true,
	"transcription_metrics": true,
	"metrics":               true,
}

// IsJSONColumn reports whether column is one of the JSON-typed call-log
// attributes.
func IsJSONColumn(column string) bool {
	return jsonColumns[column]
}

// ValidationError describes a rule that was excluded from compilation.
type ValidationError struct {
	Column    string   `json:"column"`
	Operation FilterOp `json:"operation"`
	Reason    string   `json:"reason"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid filter on %s (%s): %s", e.Column, e.Operation, e.Reason)
}
