package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldType enumerates the supported input kinds. The set is closed;
// ValidateForm rejects anything else.
type FieldType string

const (
	FieldText       FieldType = "text"
	FieldEmail      FieldType = "email"
	FieldTextarea   FieldType = "textarea"
	FieldNumber     FieldType = "number"
	FieldDate       FieldType = "date"
	FieldSelect     FieldType = "select"
	FieldCheckbox   FieldType = "checkbox"
	FieldCalculated FieldType = "calculated"
	FieldDisplay    FieldType = "display"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldEmail, FieldTextarea, FieldNumber, FieldDate,
		FieldSelect, FieldCheckbox, FieldCalculated, FieldDisplay:
		return true
	}
	return false
}

// Field is a single input definition within a form. The definition is
// immutable during filling; the engine only produces presentation
// overrides on top of it.
type Field struct {
	ID            string    `json:"id"`
	Label         string    `json:"label,omitempty"`
	Type          FieldType `json:"type"`
	Required      bool      `json:"required,omitempty"`
	Placeholder   string    `json:"placeholder,omitempty"`
	Options       []string  `json:"options,omitempty"`        // select only
	DefaultHidden bool      `json:"default_hidden,omitempty"`
	Calculation   string    `json:"calculation,omitempty"`    // calculated only
	DisplayText   string    `json:"display_text,omitempty"`   // display only
}

// Operator enumerates the condition comparison operators.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
)

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpLessThan, OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}

// Scalar is a comparison value that form authors may write as a JSON
// string, number or boolean. It is stored canonically as its string
// form, which is also how submitted values arrive.
type Scalar string

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*s = Scalar(num.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*s = Scalar(strconv.FormatBool(b))
		return nil
	}
	return fmt.Errorf("unsupported scalar value: %s", data)
}

// Float returns the numeric form of the scalar.
func (s Scalar) Float() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
}

// Condition is one atomic test against a field's current value. Value is
// ignored for the two emptiness operators. A condition whose FieldID no
// longer exists in the form always evaluates false.
type Condition struct {
	FieldID  string   `json:"field_id"`
	Operator Operator `json:"operator"`
	Value    Scalar   `json:"value,omitempty"`
}

// CombineMode is the combinator applied across a rule's conditions.
type CombineMode string

const (
	CombineAll CombineMode = "and"
	CombineAny CombineMode = "or"
)

func (m *CombineMode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = CombineMode(strings.ToLower(raw))
	return nil
}

// Valid reports whether m is a known combinator.
func (m CombineMode) Valid() bool {
	return m == CombineAll || m == CombineAny
}

// ActionType enumerates the effects a rule can apply.
type ActionType string

const (
	ActionShow        ActionType = "show"
	ActionHide        ActionType = "hide"
	ActionRequire     ActionType = "require"
	ActionOptional    ActionType = "optional"
	ActionSetValue    ActionType = "set_value"
	ActionSetOptions  ActionType = "set_options"
	ActionCalculate   ActionType = "calculate"
	ActionSkipTo      ActionType = "skip_to"
	ActionShowMessage ActionType = "show_message"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionShow, ActionHide, ActionRequire, ActionOptional,
		ActionSetValue, ActionSetOptions, ActionCalculate,
		ActionSkipTo, ActionShowMessage:
		return true
	}
	return false
}

// Action is one effect applied when a rule matches. Only the payload
// field matching Type is meaningful: Value for set_value, Options for
// set_options, Formula for calculate, Message for show_message. skip_to
// interprets TargetFieldID as a navigation target rather than a field
// reference.
type Action struct {
	Type          ActionType `json:"type"`
	TargetFieldID string     `json:"target_field_id"`
	Value         Scalar     `json:"value,omitempty"`
	Options       []string   `json:"options,omitempty"`
	Formula       string     `json:"formula,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// Rule is a named bundle of conditions and actions. Evaluation order is
// governed by Priority ascending; array order only breaks ties.
type Rule struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Enabled        bool        `json:"enabled"`
	Conditions     []Condition `json:"conditions"`
	ConditionLogic CombineMode `json:"condition_logic"`
	Actions        []Action    `json:"actions"`
	Priority       int         `json:"priority"`
}

// GlobalSettings holds the recognized logic-wide options.
type GlobalSettings struct {
	EnableAnimations    bool `json:"enable_animations,omitempty"`
	ShowLogicIndicators bool `json:"show_logic_indicators,omitempty"`
	DebugMode           bool `json:"debug_mode,omitempty"`
}

// FormLogic is the rule aggregate persisted with a form.
type FormLogic struct {
	Rules    []Rule         `json:"rules,omitempty"`
	Settings GlobalSettings `json:"global_settings,omitempty"`
}

// MetaData holds additional information about a form.
type MetaData struct {
	Description string `json:"description,omitempty"`
}

// Form is the persisted form document: ordered fields plus at most one
// logic aggregate. Nothing in it is shared across forms.
type Form struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Meta      MetaData  `json:"meta,omitempty"`
	Fields    []Field   `json:"fields"`
	Logic     FormLogic `json:"logic,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// GetFieldByID is a helper method on Form to find a field by its ID.
func (f *Form) GetFieldByID(fieldID string) *Field {
	for i := range f.Fields {
		if f.Fields[i].ID == fieldID {
			fieldCopy := f.Fields[i]
			return &fieldCopy
		}
	}
	return nil
}
