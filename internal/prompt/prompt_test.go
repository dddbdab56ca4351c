package prompt

import "testing"

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestValidate_RequiredQuestion(t *testing.T) {
	questions := []Question{
		{ID: "name", Type: TypeText, Label: "Name", Required: true},
		{ID: "note", Type: TypeText, Label: "Note"},
	}

	errs := Validate(questions, map[string]Answer{})
	if errs["name"] == "" {
		t.Error("missing required answer should produce an error")
	}
	if _, ok := errs["note"]; ok {
		t.Error("optional question without answer should not error")
	}
}

func TestValidate_TextConstraints(t *testing.T) {
	questions := []Question{
		{
			ID:       "code",
			Type:     TypeText,
			Required: true,
			Validation: &Validation{
				MinLength: intPtr(3),
				MaxLength: intPtr(5),
				Pattern:   `^[A-Z]+$`,
			},
		},
	}

	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{"valid", "ABCD", false},
		{"too short", "AB", true},
		{"too long", "ABCDEF", true},
		{"pattern mismatch", "abcd", true},
		{"wrong type", 42, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(questions, map[string]Answer{
				"code": {QuestionID: "code", Value: tt.value},
			})
			if (errs["code"] != "") != tt.wantErr {
				t.Errorf("Validate(%v) error = %q, wantErr %v", tt.value, errs["code"], tt.wantErr)
			}
		})
	}
}

func TestValidate_NumberBounds(t *testing.T) {
	questions := []Question{
		{
			ID:         "count",
			Type:       TypeNumber,
			Validation: &Validation{Min: floatPtr(1), Max: floatPtr(10)},
		},
	}

	if errs := Validate(questions, map[string]Answer{
		"count": {QuestionID: "count", Value: float64(5)},
	}); len(errs) != 0 {
		t.Errorf("in-range number rejected: %v", errs)
	}

	if errs := Validate(questions, map[string]Answer{
		"count": {QuestionID: "count", Value: float64(11)},
	}); errs["count"] == "" {
		t.Error("out-of-range number accepted")
	}
}

func TestValidate_SelectOptions(t *testing.T) {
	questions := []Question{
		{ID: "color", Type: TypeSelect, Options: []string{"red", "blue"}, AllowOther: true},
	}

	if errs := Validate(questions, map[string]Answer{
		"color": {QuestionID: "color", Value: "red"},
	}); len(errs) != 0 {
		t.Errorf("valid option rejected: %v", errs)
	}

	if errs := Validate(questions, map[string]Answer{
		"color": {QuestionID: "color", Value: "green"},
	}); errs["color"] == "" {
		t.Error("unknown option accepted without is_other")
	}

	// AllowOther permits values outside the option list.
	if errs := Validate(questions, map[string]Answer{
		"color": {QuestionID: "color", Value: "green", IsOther: true},
	}); len(errs) != 0 {
		t.Errorf("is_other answer rejected: %v", errs)
	}
}

func TestValidate_MultiSelectDecodedJSON(t *testing.T) {
	questions := []Question{
		{ID: "tags", Type: TypeMultiSelect, Options: []string{"a", "b", "c"}},
	}

	// json.Unmarshal produces []any, not []string.
	errs := Validate(questions, map[string]Answer{
		"tags": {QuestionID: "tags", Value: []any{"a", "c"}},
	})
	if len(errs) != 0 {
		t.Errorf("decoded JSON array rejected: %v", errs)
	}
}

func TestValidate_BrokenPatternDoesNotBlock(t *testing.T) {
	questions := []Question{
		{ID: "q", Type: TypeText, Validation: &Validation{Pattern: `([`}},
	}

	errs := Validate(questions, map[string]Answer{
		"q": {QuestionID: "q", Value: "anything"},
	})
	if len(errs) != 0 {
		t.Errorf("unparseable pattern should be ignored, got %v", errs)
	}
}
