// Package prompt models interactive multi-step prompts issued by the
// backend mid-generation, and validates user answers before they are
// sent back.
//
// A prompt carries an ordered list of questions. Each question has a type
// (text, select, multi-select, number, checkbox) and optional validation
// rules. Validation runs client-side so malformed answers never reach the
// transport; the backend performs its own validation and may still reply
// with a prompt_validation_error event.
package prompt

import (
	"fmt"
	"regexp"
)

// Question types supported by the backend.
const (
	TypeText        = "text"
	TypeSelect      = "select"
	TypeMultiSelect = "multi-select"
	TypeNumber      = "number"
	TypeCheckbox    = "checkbox"
)

// Validation holds the optional constraint set for a question.
type Validation struct {
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
}

// Question is a single entry in an interactive prompt.
type Question struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Label        string      `json:"label"`
	Placeholder  string      `json:"placeholder,omitempty"`
	Required     bool        `json:"required,omitempty"`
	Options      []string    `json:"options,omitempty"`
	AllowOther   bool        `json:"allow_other,omitempty"`
	DefaultValue any         `json:"default_value,omitempty"`
	Validation   *Validation `json:"validation,omitempty"`
}

// Answer is the user's response to one question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
	IsOther    bool   `json:"is_other,omitempty"`
}

// Validate checks answers against the questions' constraints.
// It returns a map of question ID to error message; an empty map means
// all answers are acceptable. Unknown question IDs in answers are ignored
// (the backend is authoritative for the question set).
func Validate(questions []Question, answers map[string]Answer) map[string]string {
	errs := make(map[string]string)

	for _, q := range questions {
		ans, ok := answers[q.ID]
		if !ok || ans.Value == nil {
			if q.Required {
				errs[q.ID] = "answer required"
			}
			continue
		}

		if msg := validateAnswer(q, ans); msg != "" {
			errs[q.ID] = msg
		}
	}

	return errs
}

func validateAnswer(q Question, ans Answer) string {
	switch q.Type {
	case TypeText:
		return validateText(q, ans)
	case TypeNumber:
		return validateNumber(q, ans)
	case TypeSelect:
		return validateSelect(q, ans)
	case TypeMultiSelect:
		return validateMultiSelect(q, ans)
	case TypeCheckbox:
		if _, ok := ans.Value.(bool); !ok {
			return "expected a boolean answer"
		}
		return ""
	default:
		// Unknown question types pass through; the backend validates them.
		return ""
	}
}

func validateText(q Question, ans Answer) string {
	s, ok := ans.Value.(string)
	if !ok {
		return "expected a text answer"
	}
	if q.Required && s == "" {
		return "answer required"
	}
	v := q.Validation
	if v == nil {
		return ""
	}
	if v.MinLength != nil && len(s) < *v.MinLength {
		return fmt.Sprintf("must be at least %d characters", *v.MinLength)
	}
	if v.MaxLength != nil && len(s) > *v.MaxLength {
		return fmt.Sprintf("must be at most %d characters", *v.MaxLength)
	}
	if v.Pattern != "" {
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			// A broken server-supplied pattern must not block the user.
			return ""
		}
		if !re.MatchString(s) {
			return "does not match the required format"
		}
	}
	return ""
}

func validateNumber(q Question, ans Answer) string {
	n, ok := toFloat(ans.Value)
	if !ok {
		return "expected a numeric answer"
	}
	v := q.Validation
	if v == nil {
		return ""
	}
	if v.Min != nil && n < *v.Min {
		return fmt.Sprintf("must be at least %v", *v.Min)
	}
	if v.Max != nil && n > *v.Max {
		return fmt.Sprintf("must be at most %v", *v.Max)
	}
	return ""
}

func validateSelect(q Question, ans Answer) string {
	s, ok := ans.Value.(string)
	if !ok {
		return "expected a single selection"
	}
	if ans.IsOther && q.AllowOther {
		return ""
	}
	if !containsOption(q.Options, s) {
		return "not one of the available options"
	}
	return ""
}

func validateMultiSelect(q Question, ans Answer) string {
	values, ok := toStringSlice(ans.Value)
	if !ok {
		return "expected a list of selections"
	}
	if ans.IsOther && q.AllowOther {
		return ""
	}
	for _, s := range values {
		if !containsOption(q.Options, s) {
			return fmt.Sprintf("%q is not one of the available options", s)
		}
	}
	return ""
}

func containsOption(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

// toFloat accepts the numeric shapes JSON decoding can produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toStringSlice accepts both []string and the []any that json.Unmarshal
// produces for arrays.
func toStringSlice(v any) ([]string, bool) {
	switch vs := v.(type) {
	case []string:
		return vs, true
	case []any:
		out := make([]string, 0, len(vs))
		for _, e := range vs {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
