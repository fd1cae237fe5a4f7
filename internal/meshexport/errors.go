package meshexport

import "errors"

// ErrParse indicates the input text is not well-formed JSON. Parse failures
// are reported through the error return, never as schema violations, and
// validation does not proceed past them.
var ErrParse = errors.New("mesh export: malformed JSON")

// Rule identifies the constraint class a violation breached.
type Rule string

// Violation rules.
const (
	// RuleRequired reports a missing required field.
	RuleRequired Rule = "required"

	// RuleType reports a value of the wrong runtime type.
	RuleType Rule = "type"

	// RuleFormat reports a string failing a named format (uri, date-time).
	RuleFormat Rule = "format"

	// RulePattern reports a string not matching its fixed regular expression.
	RulePattern Rule = "pattern"

	// RuleEnum reports a value outside a fixed literal set.
	RuleEnum Rule = "enum"

	// RuleMinimum and RuleMaximum report numeric bound violations.
	RuleMinimum Rule = "minimum"
	RuleMaximum Rule = "maximum"

	// RuleReference reports a consumer-level integrity finding from
	// CheckReferences. The schema pass never emits this rule.
	RuleReference Rule = "reference"
)
