package filters

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// ResolveDistinct extracts the active dedup key from the operation list.
// The first distinct-typed operation (by execution order) wins; further
// candidates are logged and ignored. When the list declares no distinct
// key the explicitly configured fallback, if any, applies.
func ResolveDistinct(ops []Operation, fallback *DistinctConfig) *DistinctConfig {
	sorted := make([]Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	var resolved *DistinctConfig
	for _, op := range sorted {
		if op.Type != OperationDistinct {
			continue
		}
		if IsJSONColumn(op.Column) && op.JSONField == "" {
			logrus.WithFields(logrus.Fields{
				"column": op.Column,
			}).Warn("skipping distinct operation on JSON column without jsonField")
			continue
		}
		if resolved != nil {
			logrus.WithFields(logrus.Fields{
				"active":   resolved.Column,
				"ignored":  op.Column,
				"op_order": op.Order,
			}).Warn("multiple distinct operations active, first wins")
			continue
		}
		order := op.SortOrder
		if order == "" {
			order = SortAsc
		}
		resolved = &DistinctConfig{
			Column:    op.Column,
			JSONField: op.JSONField,
			Order:     order,
		}
	}

	if resolved == nil {
		return fallback
	}
	return resolved
}

// ValidateOperations partitions the operation list into the entries worth
// keeping and typed errors for the rest. Filter-typed entries follow the
// same validity rules as compilation; distinct-typed entries on a JSON
// column need a jsonField.
func ValidateOperations(ops []Operation) ([]Operation, []ValidationError) {
	valid := make([]Operation, 0, len(ops))
	var errs []ValidationError

	for i, op := range ops {
		switch op.Type {
		case OperationFilter:
			if !op.Operation.IsValid() {
				errs = append(errs, ValidationError{
					Column:    op.Column,
					Operation: op.Operation,
					Reason:    "unknown filter operation",
				})
				continue
			}
			if op.Operation.RequiresJSONField() && IsJSONColumn(op.Column) && op.JSONField == "" {
				errs = append(errs, ValidationError{
					Column:    op.Column,
					Operation: op.Operation,
					Reason:    "json operation requires a jsonField",
				})
				continue
			}
		case OperationDistinct:
			if IsJSONColumn(op.Column) && op.JSONField == "" {
				errs = append(errs, ValidationError{
					Column: op.Column,
					Reason: "distinct on JSON column requires a jsonField",
				})
				continue
			}
		default:
			errs = append(errs, ValidationError{
				Column: op.Column,
				Reason: "unknown operation type",
			})
			continue
		}
		if op.Order == 0 && i > 0 {
			op.Order = i
		}
		valid = append(valid, op)
	}
	return valid, errs
}

// FilterRules extracts the filter-typed operations, in execution order, as
// compiler input.
func FilterRules(ops []Operation) []FilterRule {
	sorted := make([]Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	rules := make([]FilterRule, 0, len(sorted))
	for _, op := range sorted {
		if op.Type == OperationFilter {
			rules = append(rules, op.Rule())
		}
	}
	return rules
}
