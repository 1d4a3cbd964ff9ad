package forms

import (
	"strings"
)

// FieldKind describes the input shape of a form question.
type FieldKind string

const (
	FieldShortText    FieldKind = "short_text"
	FieldLongText     FieldKind = "long_text"
	FieldSingleSelect FieldKind = "single_select"
	FieldMultiSelect  FieldKind = "multi_select"
	FieldCheckbox     FieldKind = "checkbox"
)

// ResponseType describes the expected answer shape for a classified question.
type ResponseType string

const (
	ResponseNumeric       ResponseType = "numeric"
	ResponseDecimal       ResponseType = "decimal"
	ResponseBoolean       ResponseType = "boolean"
	ResponseText          ResponseType = "text"
	ResponseLongText      ResponseType = "long_text"
	ResponseURL           ResponseType = "url"
	ResponseScaledNumeric ResponseType = "scaled_numeric"
	ResponseSelection     ResponseType = "selection"
)

// Strategy identifies which decision-engine strategy produced an answer.
type Strategy string

const (
	StrategyRemoteAI          Strategy = "remote_ai"
	StrategyPattern           Strategy = "pattern"
	StrategySafeDefault       Strategy = "safe_default"
	StrategyUniversalFallback Strategy = "universal_fallback"
)

// JobContext carries the job a question was encountered in.
type JobContext struct {
	ID          string
	Title       string
	Company     string
	Description string
}

// Question is a single form question as read from the page.
// Immutable once constructed.
type Question struct {
	Text    string
	Kind    FieldKind
	Options []string
	Job     *JobContext
}

// Answer is the value chosen for a question by the decision engine.
type Answer struct {
	Value     string
	Source    Strategy
	Validated bool
}

const (
	maxShortText = 200
	maxLongText  = 1000
)

// Validate reports whether value is acceptable for the given field kind.
// Selection values must literally equal one of the offered options when
// options are non-empty.
func Validate(value string, kind FieldKind, options []string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}

	switch kind {
	case FieldShortText:
		return len([]rune(value)) <= maxShortText
	case FieldLongText:
		return len([]rune(value)) <= maxLongText
	case FieldSingleSelect, FieldMultiSelect:
		if len(options) == 0 {
			return true
		}
		for _, opt := range options {
			if value == opt {
				return true
			}
		}
		return false
	case FieldCheckbox:
		switch strings.ToLower(value) {
		case "true", "false", "yes", "no", "1", "0":
			return true
		}
		return false
	default:
		return true
	}
}

// IsPlaceholder reports whether an option is a non-answer such as
// "Select an option".
func IsPlaceholder(option string) bool {
	normalized := strings.ToLower(strings.TrimSpace(option))
	switch normalized {
	case "select", "choose", "pick", "--", "--select--", "please select",
		"select one", "select an option", "choose one", "pick one":
		return true
	}
	return strings.HasPrefix(normalized, "--")
}
