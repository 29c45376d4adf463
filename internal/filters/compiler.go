package filters

import (
	"fmt"
	"strconv"
	"time"
)

// TimestampColumn is the call-start column that gets day-granular
// comparison semantics instead of instant-granular ones.
const TimestampColumn = "call_started_at"

// DateRange optionally bounds a query to an inclusive ISO-date window.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CompiledFilters is the compiler output: clauses applied to raw rows
// before duplicate collapsing, clauses applied to the surviving
// representative rows after it, and the pass-through date window.
type CompiledFilters struct {
	Pre  []Clause `json:"pre_distinct_filters"`
	Post []Clause `json:"post_distinct_filters"`
	From *string  `json:"date_from,omitempty"`
	To   *string  `json:"date_to,omitempty"`
}

// textPath addresses a JSON key extracted as text, for string comparisons.
func textPath(column, field string) string {
	return fmt.Sprintf("%s->>'%s'", column, field)
}

// valuePath addresses a JSON key preserving its JSON type, for numeric
// comparisons after a cast.
func valuePath(column, field string) string {
	return fmt.Sprintf("%s->'%s'", column, field)
}

// Compile converts the ordered rule list plus the mandatory agent scope
// into the backing store's clause lists. Rules targeting the distinct
// grouping key are routed to the post-distinct list so they filter the one
// representative row per group rather than discarding whole groups on the
// strength of a non-representative row. Invalid rules are excluded and
// reported; compilation of the remaining rules proceeds.
func Compile(rules []FilterRule, agentID string, distinct *DistinctConfig, dateRange *DateRange) (CompiledFilters, []ValidationError) {
	compiled := CompiledFilters{
		Pre:  []Clause{{Column: "agent_id", Operator: OperatorEq, Value: agentID}},
		Post: []Clause{},
	}
	if dateRange != nil {
		compiled.From = &dateRange.From
		compiled.To = &dateRange.To
	}

	var errs []ValidationError
	for _, rule := range rules {
		clauses, err := compileRule(rule)
		if err != nil {
			errs = append(errs, *err)
			continue
		}
		if targetsDistinctKey(rule, distinct) {
			compiled.Post = append(compiled.Post, clauses...)
		} else {
			compiled.Pre = append(compiled.Pre, clauses...)
		}
	}
	return compiled, errs
}

// targetsDistinctKey reports whether the rule filters on the active
// distinct grouping column (and, for JSON columns, the same sub-field).
func targetsDistinctKey(rule FilterRule, distinct *DistinctConfig) bool {
	if distinct == nil {
		return false
	}
	return rule.Column == distinct.Column && rule.JSONField == distinct.JSONField
}

func compileRule(rule FilterRule) ([]Clause, *ValidationError) {
	if !rule.Operation.IsValid() {
		return nil, &ValidationError{
			Column:    rule.Column,
			Operation: rule.Operation,
			Reason:    "unknown filter operation",
		}
	}
	if rule.Operation.RequiresJSONField() && IsJSONColumn(rule.Column) && rule.JSONField == "" {
		return nil, &ValidationError{
			Column:    rule.Column,
			Operation: rule.Operation,
			Reason:    "json operation requires a jsonField",
		}
	}

	// Scalar rules address the column directly; JSON rules pick the text
	// or value path depending on the comparison.
	column := rule.Column
	text := rule.Column
	if rule.JSONField != "" {
		column = valuePath(rule.Column, rule.JSONField)
		text = textPath(rule.Column, rule.JSONField)
	}

	switch rule.Operation {
	case OpEquals:
		if rule.Column == TimestampColumn {
			// Day bucket: an equality on the start timestamp means "on
			// that day", not an exact instant.
			return []Clause{
				{Column: rule.Column, Operator: OperatorGte, Value: rule.Value + " 00:00:00"},
				{Column: rule.Column, Operator: OperatorLte, Value: rule.Value + " 23:59:59.999"},
			}, nil
		}
		// Equality compares the extracted text, same as json_equals.
		return []Clause{{Column: text, Operator: OperatorEq, Value: rule.Value}}, nil

	case OpContains:
		return []Clause{{Column: text, Operator: OperatorILike, Value: "%" + rule.Value + "%"}}, nil

	case OpStartsWith:
		return []Clause{{Column: text, Operator: OperatorILike, Value: rule.Value + "%"}}, nil

	case OpGreaterThan:
		if rule.Column == TimestampColumn {
			day, err := time.Parse("2006-01-02", rule.Value)
			if err != nil {
				return nil, &ValidationError{
					Column:    rule.Column,
					Operation: rule.Operation,
					Reason:    fmt.Sprintf("not an ISO date: %q", rule.Value),
				}
			}
			next := day.AddDate(0, 0, 1).Format("2006-01-02")
			return []Clause{{Column: rule.Column, Operator: OperatorGte, Value: next + " 00:00:00"}}, nil
		}
		return []Clause{{Column: column, Operator: OperatorGt, Value: rule.Value}}, nil

	case OpLessThan:
		if rule.Column == TimestampColumn {
			return []Clause{{Column: rule.Column, Operator: OperatorLt, Value: rule.Value + " 00:00:00"}}, nil
		}
		return []Clause{{Column: column, Operator: OperatorLt, Value: rule.Value}}, nil

	case OpJSONEquals:
		return []Clause{{Column: text, Operator: OperatorEq, Value: rule.Value}}, nil

	case OpJSONContains:
		return []Clause{{Column: text, Operator: OperatorILike, Value: "%" + rule.Value + "%"}}, nil

	case OpJSONGreaterThan, OpJSONLessThan:
		n, err := strconv.ParseFloat(rule.Value, 64)
		if err != nil {
			return nil, &ValidationError{
				Column:    rule.Column,
				Operation: rule.Operation,
				Reason:    fmt.Sprintf("not a number: %q", rule.Value),
			}
		}
		op := OperatorGt
		if rule.Operation == OpJSONLessThan {
			op = OperatorLt
		}
		return []Clause{{Column: column + "::numeric", Operator: op, Value: n}}, nil

	case OpJSONExists:
		// Text extraction, matching the store function's own condition
		// builder.
		return []Clause{{Column: text, Operator: OperatorNotIs, Value: nil}}, nil
	}

	return nil, &ValidationError{
		Column:    rule.Column,
		Operation: rule.Operation,
		Reason:    "unknown filter operation",
	}
}
