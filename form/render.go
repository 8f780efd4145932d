package form

import (
	"fmt"
	"html/template"
	"strings"
)

// GenerateHTMLForm renders a form as HTML under a given evaluation
// state: hidden fields are omitted, required flags and value/options
// overrides come from the state, and per-field validation errors are
// shown next to their inputs. All author and user text is escaped.
func GenerateHTMLForm(f *Form, state EvalResult, values map[string]string, errors map[string]string) template.HTML {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<form action="/f/%s" method="POST">`, template.HTMLEscapeString(f.Slug)))

	for _, msg := range state.Messages {
		sb.WriteString(fmt.Sprintf(`<p class="form-message">%s</p>`, template.HTMLEscapeString(msg)))
	}

	sb.WriteString(`<table>`)
	for _, field := range f.Fields {
		fs, ok := state.Fields[field.ID]
		if !ok || !fs.Visible {
			continue
		}

		value := values[field.ID]
		if fs.Value != nil {
			value = *fs.Value
		}
		requiredAttr := ""
		if fs.Required {
			requiredAttr = "required"
		}

		label := field.Label
		if label == "" {
			label = field.ID
		}

		sb.WriteString(`<tr>`)
		sb.WriteString(fmt.Sprintf(`<td><label for="%s">%s</label></td>`,
			template.HTMLEscapeString(field.ID), template.HTMLEscapeString(label)))
		sb.WriteString(`<td>`)

		switch field.Type {
		case FieldTextarea:
			sb.WriteString(fmt.Sprintf(`<textarea id="%s" name="%s" placeholder="%s" %s>%s</textarea>`,
				template.HTMLEscapeString(field.ID), template.HTMLEscapeString(field.ID),
				template.HTMLEscapeString(field.Placeholder), requiredAttr, template.HTMLEscapeString(value)))
		case FieldSelect:
			options := field.Options
			if fs.Options != nil {
				options = fs.Options
			}
			sb.WriteString(fmt.Sprintf(`<select id="%s" name="%s" %s>`,
				template.HTMLEscapeString(field.ID), template.HTMLEscapeString(field.ID), requiredAttr))
			sb.WriteString(`<option value=""></option>`)
			for _, opt := range options {
				selected := ""
				if opt == value {
					selected = " selected"
				}
				sb.WriteString(fmt.Sprintf(`<option value="%s"%s>%s</option>`,
					template.HTMLEscapeString(opt), selected, template.HTMLEscapeString(opt)))
			}
			sb.WriteString(`</select>`)
		case FieldCheckbox:
			checked := ""
			if value == "true" || value == "on" {
				checked = " checked"
			}
			sb.WriteString(fmt.Sprintf(`<input type="checkbox" id="%s" name="%s" value="true"%s %s>`,
				template.HTMLEscapeString(field.ID), template.HTMLEscapeString(field.ID), checked, requiredAttr))
		case FieldCalculated:
			sb.WriteString(fmt.Sprintf(`<input type="text" id="%s" name="%s" value="%s" readonly>`,
				template.HTMLEscapeString(field.ID), template.HTMLEscapeString(field.ID), template.HTMLEscapeString(value)))
		case FieldDisplay:
			sb.WriteString(fmt.Sprintf(`<span id="%s">%s</span>`,
				template.HTMLEscapeString(field.ID), template.HTMLEscapeString(field.DisplayText)))
		case FieldNumber, FieldEmail, FieldDate, FieldText:
			sb.WriteString(fmt.Sprintf(`<input type="%s" id="%s" name="%s" value="%s" placeholder="%s" %s>`,
				field.Type, template.HTMLEscapeString(field.ID), template.HTMLEscapeString(field.ID),
				template.HTMLEscapeString(value), template.HTMLEscapeString(field.Placeholder), requiredAttr))
		default:
			sb.WriteString(fmt.Sprintf(`<input type="text" id="%s" name="%s" value="%s" %s>`,
				template.HTMLEscapeString(field.ID), template.HTMLEscapeString(field.ID),
				template.HTMLEscapeString(value), requiredAttr))
		}

		if msg := errors[field.ID]; msg != "" {
			sb.WriteString(fmt.Sprintf(`<span class="field-error">%s</span>`, template.HTMLEscapeString(msg)))
		}
		sb.WriteString(`</td>`)
		sb.WriteString(`</tr>`)
	}
	sb.WriteString(`</table>`)
	sb.WriteString(`<br><button type="submit">Submit</button>`)
	sb.WriteString(`</form>`)

	return template.HTML(sb.String())
}
