// Package validate checks candidate field values against the label
// definitions of a schema snapshot. Fields are evaluated independently;
// there are no cross-field rules. Findings are returned as data and are
// never fatal.
package validate

import (
	"fmt"
	"regexp"

	"obs-go/internal/model"
)

// Result aggregates per-field findings. Valid is true iff Errors is empty.
type Result struct {
	Valid  bool
	Errors map[string]string // labelId -> message
}

// Validate checks every label in the snapshot against the supplied
// values. Missing entries are treated as null. Enum membership is
// enforced here rather than left to presentation widgets.
func Validate(values map[string]model.Value, labels []model.Label) Result {
	errs := make(map[string]string)

	for _, label := range labels {
		value, ok := values[label.LabelID]
		if !ok {
			value = model.NullValue()
		}
		if msg := checkField(value, label); msg != "" {
			errs[label.LabelID] = msg
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// checkField runs the rules for one field and returns the first failure
// message, or "" when the field passes.
func checkField(value model.Value, label model.Label) string {
	if value.IsEmpty() {
		if label.Required {
			return "required"
		}
		// Empty optional fields skip all further checks.
		return ""
	}

	switch label.Type {
	case model.LabelNumber:
		return checkNumber(value, label.Constraints)
	case model.LabelText:
		return checkText(value, label.Constraints)
	case model.LabelEnum:
		return checkEnum(value, label.Options)
	case model.LabelBoolean, model.LabelDate, model.LabelMedia:
		// Only the required-check applies; deeper checks belong to the
		// package builder (media) and type-family enforcement.
		return ""
	default:
		return fmt.Sprintf("unknown label type %q", label.Type)
	}
}

func checkNumber(value model.Value, c *model.Constraints) string {
	if value.Kind != model.KindNumber {
		return "must be a number"
	}
	if c == nil {
		return ""
	}
	if c.Min != nil && value.Number < *c.Min {
		return boundsMessage(c)
	}
	if c.Max != nil && value.Number > *c.Max {
		return boundsMessage(c)
	}
	return ""
}

func boundsMessage(c *model.Constraints) string {
	switch {
	case c.Min != nil && c.Max != nil:
		return fmt.Sprintf("must be between %g and %g", *c.Min, *c.Max)
	case c.Min != nil:
		return fmt.Sprintf("must be at least %g", *c.Min)
	default:
		return fmt.Sprintf("must be at most %g", *c.Max)
	}
}

func checkText(value model.Value, c *model.Constraints) string {
	if value.Kind != model.KindText {
		return "must be text"
	}
	if c == nil {
		return ""
	}
	length := len([]rune(value.Text))
	if c.MaxLength != nil && length > *c.MaxLength {
		return fmt.Sprintf("must be at most %d characters", *c.MaxLength)
	}
	if c.MinLength != nil && length < *c.MinLength {
		return fmt.Sprintf("must be at least %d characters", *c.MinLength)
	}
	if c.Pattern != "" {
		re, err := regexp.Compile(c.Pattern)
		// An uncompilable pattern is a schema authority defect; do not
		// punish the reporter for it.
		if err == nil && !re.MatchString(value.Text) {
			return "invalid format"
		}
	}
	return ""
}

func checkEnum(value model.Value, options []string) string {
	if value.Kind != model.KindText {
		return "must be text"
	}
	for _, opt := range options {
		if value.Text == opt {
			return ""
		}
	}
	return "must be one of the allowed options"
}
