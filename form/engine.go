// Package form holds the form document model and the logic engine that
// derives per-field presentation state from author-defined rules. The
// engine is a pure function of its inputs: it performs no I/O and keeps
// no state between invocations, so the rendering surface can call it on
// every value change.
package form

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"formlogic-engine/expr"
)

// FieldState is the derived presentation state for one field after a
// full evaluation pass. Value and Options are overrides: nil means the
// field keeps its current value / static options.
type FieldState struct {
	Visible  bool     `json:"visible"`
	Required bool     `json:"required"`
	Value    *string  `json:"value,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// EvalError describes a contained calculation failure. Errors never
// escape the engine; they are reported here only when debug mode is on.
type EvalError struct {
	FieldID string `json:"field_id"`
	Formula string `json:"formula,omitempty"`
	Err     string `json:"error"`
}

// EvalResult is the full output of one evaluation pass.
type EvalResult struct {
	Fields   map[string]FieldState `json:"fields"`
	Messages []string              `json:"messages,omitempty"`
	SkipTo   string                `json:"skip_to,omitempty"`
	Errors   []EvalError           `json:"errors,omitempty"`
	Trace    []string              `json:"trace,omitempty"`
}

// Evaluate runs every enabled rule against the current values and
// derives the presentation state for each field. Rules are applied in
// priority order, lowest first, so on conflicting effects the rule with
// the higher priority number wins (last write per field attribute).
// The result is fully determined by the three inputs.
func Evaluate(fields []Field, logic FormLogic, values map[string]string) EvalResult {
	result := EvalResult{Fields: make(map[string]FieldState, len(fields))}
	fieldsByID := make(map[string]Field, len(fields))
	var errs []EvalError
	var trace []string

	for _, field := range fields {
		fieldsByID[field.ID] = field
		result.Fields[field.ID] = FieldState{
			Visible:  !field.DefaultHidden,
			Required: field.Required,
		}
	}

	resolve := numericResolver(fieldsByID, values)

	// Calculated field definitions are the static layer; rule-driven
	// calculate actions may still override them below.
	for _, field := range fields {
		if field.Type != FieldCalculated || field.Calculation == "" {
			continue
		}
		if err := applyCalculation(result.Fields, field.ID, field.Calculation, resolve); err != nil {
			errs = append(errs, EvalError{FieldID: field.ID, Formula: field.Calculation, Err: err.Error()})
		}
	}

	enabled := make([]Rule, 0, len(logic.Rules))
	for _, rule := range logic.Rules {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	// Stable sort keeps document order as the tie-break for equal priorities.
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})

	for _, rule := range enabled {
		if !ruleMatches(rule, fieldsByID, values) {
			continue
		}
		trace = append(trace, fmt.Sprintf("rule %q (priority %d) matched", rule.Name, rule.Priority))

		for _, action := range rule.Actions {
			if action.Type == ActionSkipTo {
				result.SkipTo = action.TargetFieldID
				continue
			}
			if action.Type == ActionShowMessage {
				if action.Message != "" {
					result.Messages = append(result.Messages, action.Message)
				} else if action.Value != "" {
					result.Messages = append(result.Messages, string(action.Value))
				}
				continue
			}

			state, ok := result.Fields[action.TargetFieldID]
			if !ok {
				// Target field was deleted from the form; the action is inert.
				continue
			}

			switch action.Type {
			case ActionShow:
				state.Visible = true
			case ActionHide:
				state.Visible = false
			case ActionRequire:
				state.Required = true
			case ActionOptional:
				state.Required = false
			case ActionSetValue:
				v := string(action.Value)
				state.Value = &v
			case ActionSetOptions:
				state.Options = append([]string(nil), action.Options...)
			case ActionCalculate:
				if err := applyCalculation(result.Fields, action.TargetFieldID, action.Formula, resolve); err != nil {
					errs = append(errs, EvalError{FieldID: action.TargetFieldID, Formula: action.Formula, Err: err.Error()})
				}
				continue
			}
			result.Fields[action.TargetFieldID] = state
		}
	}

	if logic.Settings.DebugMode {
		result.Errors = errs
		result.Trace = trace
	}
	return result
}

// applyCalculation evaluates a formula and stores the numeric result as
// a value override on the target field. On any failure the target keeps
// its previous value: the override is simply not written.
func applyCalculation(states map[string]FieldState, targetID, formula string, resolve expr.Resolver) error {
	if formula == "" {
		return fmt.Errorf("empty formula")
	}
	state, ok := states[targetID]
	if !ok {
		return fmt.Errorf("target field %q not found", targetID)
	}
	v, err := expr.Eval(formula, resolve)
	if err != nil {
		return err
	}
	formatted := strconv.FormatFloat(v, 'f', -1, 64)
	state.Value = &formatted
	states[targetID] = state
	return nil
}

// numericResolver resolves formula identifiers against the current
// values. References to fields that do not exist resolve to zero, as do
// empty values; a present, non-numeric value is an error the engine
// contains.
func numericResolver(fields map[string]Field, values map[string]string) expr.Resolver {
	return func(name string) (float64, error) {
		if _, ok := fields[name]; !ok {
			return 0, nil
		}
		raw := strings.TrimSpace(values[name])
		if raw == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q has non-numeric value %q", name, raw)
		}
		return v, nil
	}
}
