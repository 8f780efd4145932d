package form

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"formlogic-engine/expr"
)

var stripTagsPolicy = bluemonday.StrictPolicy()

// ValidateForm checks a form document against the model invariants:
// unique non-empty field IDs, known field types, non-empty options on
// selects, known operators/combinators/action types, and rules carrying
// at least one condition and one action. Violations are returned as
// errors; references to fields that no longer exist are returned
// separately as warnings, since dangling references stay inert at
// evaluation time and the authoring surface may offer cleanup instead.
func ValidateForm(f *Form) (warnings []string, err error) {
	if f.Name == "" {
		return nil, fmt.Errorf("form name is required")
	}

	fieldIDs := make(map[string]bool, len(f.Fields))
	for _, field := range f.Fields {
		if field.ID == "" {
			return nil, fmt.Errorf("field with empty id")
		}
		if fieldIDs[field.ID] {
			return nil, fmt.Errorf("duplicate field id %q", field.ID)
		}
		fieldIDs[field.ID] = true

		if !field.Type.Valid() {
			return nil, fmt.Errorf("field %q has unknown type %q", field.ID, field.Type)
		}
		if field.Type == FieldSelect && len(field.Options) == 0 {
			return nil, fmt.Errorf("select field %q has no options", field.ID)
		}
		if field.Type == FieldCalculated && field.Calculation != "" {
			if _, parseErr := expr.Parse(field.Calculation); parseErr != nil {
				return nil, fmt.Errorf("field %q has invalid calculation: %w", field.ID, parseErr)
			}
		}
	}

	ruleIDs := make(map[string]bool, len(f.Logic.Rules))
	for _, rule := range f.Logic.Rules {
		if rule.ID != "" && ruleIDs[rule.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", rule.ID)
		}
		ruleIDs[rule.ID] = true

		if len(rule.Conditions) == 0 {
			return nil, fmt.Errorf("rule %q has no conditions", rule.Name)
		}
		if len(rule.Actions) == 0 {
			return nil, fmt.Errorf("rule %q has no actions", rule.Name)
		}
		if rule.ConditionLogic != "" && !rule.ConditionLogic.Valid() {
			return nil, fmt.Errorf("rule %q has unknown condition logic %q", rule.Name, rule.ConditionLogic)
		}

		for _, cond := range rule.Conditions {
			if !cond.Operator.Valid() {
				return nil, fmt.Errorf("rule %q has unknown operator %q", rule.Name, cond.Operator)
			}
			if !fieldIDs[cond.FieldID] {
				warnings = append(warnings, fmt.Sprintf("rule %q condition references missing field %q", rule.Name, cond.FieldID))
			}
		}
		for _, action := range rule.Actions {
			if !action.Type.Valid() {
				return nil, fmt.Errorf("rule %q has unknown action type %q", rule.Name, action.Type)
			}
			if action.Type == ActionCalculate {
				if _, parseErr := expr.Parse(action.Formula); parseErr != nil {
					return nil, fmt.Errorf("rule %q has invalid formula: %w", rule.Name, parseErr)
				}
			}
			// skip_to targets a navigation point, not a field reference.
			if action.Type != ActionSkipTo && action.Type != ActionShowMessage && !fieldIDs[action.TargetFieldID] {
				warnings = append(warnings, fmt.Sprintf("rule %q action targets missing field %q", rule.Name, action.TargetFieldID))
			}
		}
	}

	return warnings, nil
}

// Sanitize strips markup from all author-controlled display strings
// before the document is persisted.
func Sanitize(f *Form) {
	f.Name = stripTagsPolicy.Sanitize(f.Name)
	f.Meta.Description = stripTagsPolicy.Sanitize(f.Meta.Description)
	for i := range f.Fields {
		f.Fields[i].Label = stripTagsPolicy.Sanitize(f.Fields[i].Label)
		f.Fields[i].DisplayText = stripTagsPolicy.Sanitize(f.Fields[i].DisplayText)
	}
	for i := range f.Logic.Rules {
		for j := range f.Logic.Rules[i].Actions {
			action := &f.Logic.Rules[i].Actions[j]
			if action.Type == ActionShowMessage {
				action.Message = stripTagsPolicy.Sanitize(action.Message)
				action.Value = Scalar(stripTagsPolicy.Sanitize(string(action.Value)))
			}
		}
	}
}

// SanitizeValues strips markup from submitted free-text values. Other
// field types are validated strictly enough that markup cannot survive.
func SanitizeValues(fields []Field, values map[string]string) {
	for _, field := range fields {
		switch field.Type {
		case FieldText, FieldTextarea:
			if v, ok := values[field.ID]; ok {
				values[field.ID] = stripTagsPolicy.Sanitize(v)
			}
		}
	}
}

// ValidateSubmission validates submitted values against the field
// definitions under the evaluated logic state: hidden fields are never
// required and their values are ignored, and the engine's required
// overrides win over the static required flag. Returns a map of field
// ID to error message; an empty map means the submission is acceptable.
func ValidateSubmission(fields []Field, state EvalResult, values map[string]string) map[string]string {
	errors := make(map[string]string)

	for _, field := range fields {
		fs, ok := state.Fields[field.ID]
		if !ok || !fs.Visible {
			continue
		}
		if field.Type == FieldDisplay {
			continue
		}

		value := strings.TrimSpace(values[field.ID])
		if fs.Value != nil {
			// Engine override wins over whatever the client sent.
			value = *fs.Value
		}

		if fs.Required && value == "" {
			errors[field.ID] = "This field is required."
			continue
		}
		if value == "" {
			continue
		}

		switch field.Type {
		case FieldNumber, FieldCalculated:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				errors[field.ID] = "Must be a valid number."
			}
		case FieldEmail:
			if !strings.Contains(value, "@") || !strings.Contains(value, ".") {
				errors[field.ID] = "Must be a valid email address."
			}
		case FieldSelect:
			options := field.Options
			if fs.Options != nil {
				options = fs.Options
			}
			found := false
			for _, opt := range options {
				if opt == value {
					found = true
					break
				}
			}
			if !found {
				errors[field.ID] = "Must be one of the available options."
			}
		}
	}
	return errors
}

// CollectAnswer builds the values to persist for a submission: only
// visible, non-display fields are kept, with engine value overrides
// applied over the submitted input.
func CollectAnswer(fields []Field, state EvalResult, values map[string]string) map[string]string {
	answer := make(map[string]string)
	for _, field := range fields {
		fs, ok := state.Fields[field.ID]
		if !ok || !fs.Visible || field.Type == FieldDisplay {
			continue
		}
		value := values[field.ID]
		if fs.Value != nil {
			value = *fs.Value
		}
		if value == "" {
			continue
		}
		answer[field.ID] = value
	}
	return answer
}
