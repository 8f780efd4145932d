package form

import (
	"strconv"
	"strings"
)

// compareNumbers performs a comparison between two float64 values based on the operator.
func compareNumbers(actual, target float64, op Operator) bool {
	switch op {
	case OpGreaterThan:
		return actual > target
	case OpLessThan:
		return actual < target
	}
	return false
}

// evaluateCondition tests one condition against the current form values.
// Absent values are treated as empty strings for the string operators and
// fail the numeric comparisons; a condition referencing a field that no
// longer exists in the form is always false. Nothing here returns an
// error: malformed input simply fails the test.
func evaluateCondition(cond Condition, fields map[string]Field, values map[string]string) bool {
	if _, ok := fields[cond.FieldID]; !ok {
		return false
	}

	actual := values[cond.FieldID]
	target := string(cond.Value)

	switch cond.Operator {
	case OpEquals:
		return actual == target
	case OpNotEquals:
		return actual != target
	case OpContains:
		return strings.Contains(actual, target)
	case OpNotContains:
		return !strings.Contains(actual, target)
	case OpGreaterThan, OpLessThan:
		actualNum, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		if err != nil {
			return false
		}
		targetNum, err := cond.Value.Float()
		if err != nil {
			return false
		}
		return compareNumbers(actualNum, targetNum, cond.Operator)
	case OpIsEmpty:
		return actual == ""
	case OpIsNotEmpty:
		return actual != ""
	}
	return false
}

// ruleMatches combines the per-condition results with the rule's
// combinator. A rule with no conditions never matches; the authoring UI
// prevents that state but stored documents are not trusted to honor it.
func ruleMatches(rule Rule, fields map[string]Field, values map[string]string) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	switch rule.ConditionLogic {
	case CombineAny:
		for _, cond := range rule.Conditions {
			if evaluateCondition(cond, fields, values) {
				return true
			}
		}
		return false
	default:
		// AND is the default for missing or unknown combinators.
		for _, cond := range rule.Conditions {
			if !evaluateCondition(cond, fields, values) {
				return false
			}
		}
		return true
	}
}
