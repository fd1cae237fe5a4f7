package meshexport

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Violation describes a single schema or referential finding. Path is
// JSON-pointer style with array indices, for example
// nodes[2].elements[0].models[1].bind[0]; top-level fields are bare names.
type Violation struct {
	Path     string `json:"path"`
	Rule     Rule   `json:"rule"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (expected %s, got %s)", v.Path, v.Rule, v.Expected, v.Actual)
}

// Result holds the ordered violations from one validation pass. Order is
// deterministic: schema declaration order, depth first, array elements by
// index. Re-validating the same document yields the same result.
type Result struct {
	Violations []Violation `json:"violations"`
}

// Valid reports whether the document conforms to the schema.
func (r *Result) Valid() bool { return len(r.Violations) == 0 }

func (r *Result) add(v Violation) { r.Violations = append(r.Violations, v) }

// Validator judges network export documents against the export schema.
// It is stateless and safe for concurrent use; one instance can serve
// any number of callers and documents.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateJSON parses data as JSON and validates the resulting document.
// Malformed JSON returns an error wrapping ErrParse and no Result. Well
// formed JSON that is not an object at the top level is reported as a type
// violation at the document root.
func (v *Validator) ValidateJSON(data []byte) (*Result, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrParse, err)
	}

	doc, ok := raw.(map[string]any)
	if !ok {
		res := &Result{}
		res.add(Violation{
			Path:     "",
			Rule:     RuleType,
			Expected: kindObject.String(),
			Actual:   describeValue(raw),
		})
		return res, nil
	}
	return v.Validate(doc), nil
}

// Validate checks a decoded document against the export schema and returns
// every violation found. The input is never modified. A nil map reports
// every required top-level field as missing.
func (v *Validator) Validate(doc map[string]any) *Result {
	res := &Result{}
	validateObject(res, "", doc, &exportSchema)
	return res
}

// validateObject checks each declared field of obj. Undeclared fields are
// permitted and skipped.
func validateObject(res *Result, path string, obj map[string]any, spec *objectSpec) {
	for i := range spec.fields {
		f := &spec.fields[i]
		fieldPath := joinPath(path, f.name)

		val, present := obj[f.name]
		if !present {
			if f.required {
				res.add(Violation{
					Path:     fieldPath,
					Rule:     RuleRequired,
					Expected: "field present",
					Actual:   "missing",
				})
			}
			continue
		}
		validateValue(res, fieldPath, val, f)
	}
}

// validateValue checks a single value against its field spec. A type
// mismatch suppresses the narrower checks for that value: reporting a
// pattern failure against a number would be noise.
func validateValue(res *Result, path string, val any, f *fieldSpec) {
	switch f.kind {
	case kindString:
		s, ok := val.(string)
		if !ok {
			res.add(typeViolation(path, f.kind, val))
			return
		}
		validateString(res, path, s, f)

	case kindBoolean:
		if _, ok := val.(bool); !ok {
			res.add(typeViolation(path, f.kind, val))
		}

	case kindInteger:
		n, ok := asInteger(val)
		if !ok {
			res.add(typeViolation(path, f.kind, val))
			return
		}
		if f.min != nil && n < *f.min {
			res.add(Violation{
				Path:     path,
				Rule:     RuleMinimum,
				Expected: ">= " + strconv.FormatInt(*f.min, 10),
				Actual:   strconv.FormatInt(n, 10),
			})
		}
		if f.max != nil && n > *f.max {
			res.add(Violation{
				Path:     path,
				Rule:     RuleMaximum,
				Expected: "<= " + strconv.FormatInt(*f.max, 10),
				Actual:   strconv.FormatInt(n, 10),
			})
		}

	case kindObject:
		m, ok := val.(map[string]any)
		if !ok {
			res.add(typeViolation(path, f.kind, val))
			return
		}
		if f.object != nil {
			validateObject(res, path, m, f.object)
		}

	case kindArray:
		arr, ok := val.([]any)
		if !ok {
			res.add(typeViolation(path, f.kind, val))
			return
		}
		if f.items != nil {
			for i, elem := range arr {
				validateValue(res, path+"["+strconv.Itoa(i)+"]", elem, f.items)
			}
		}
	}
}

func validateString(res *Result, path, s string, f *fieldSpec) {
	if f.pattern != nil && !f.pattern.MatchString(s) {
		res.add(Violation{
			Path:     path,
			Rule:     RulePattern,
			Expected: f.pattern.String(),
			Actual:   strconv.Quote(s),
		})
	}

	if f.format != "" {
		validateFormat(res, path, s, f.format)
	}

	if len(f.enum) > 0 && !containsString(f.enum, s) {
		res.add(Violation{
			Path:     path,
			Rule:     RuleEnum,
			Expected: "one of " + quoteAll(f.enum),
			Actual:   strconv.Quote(s),
		})
	}
}

func validateFormat(res *Result, path, s, format string) {
	switch format {
	case formatURI:
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" {
			res.add(Violation{
				Path:     path,
				Rule:     RuleFormat,
				Expected: formatURI,
				Actual:   strconv.Quote(s),
			})
		}
	case formatDateTime:
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			res.add(Violation{
				Path:     path,
				Rule:     RuleFormat,
				Expected: formatDateTime,
				Actual:   strconv.Quote(s),
			})
		}
	}
}

func typeViolation(path string, expected kind, val any) Violation {
	return Violation{
		Path:     path,
		Rule:     RuleType,
		Expected: expected.String(),
		Actual:   describeValue(val),
	}
}

// asInteger reports whether val is an integer-valued JSON number and
// returns it as int64. encoding/json decodes numbers as float64; int and
// int64 are accepted for documents assembled in code.
func asInteger(val any) (int64, bool) {
	switch n := val.(type) {
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// describeValue renders a value for the Actual side of a violation:
// scalars literally, composites by their type name.
func describeValue(val any) string {
	switch v := val.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case json.Number:
		return v.String()
	case map[string]any:
		return kindObject.String()
	case []any:
		return kindArray.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}

func containsString(set []string, s string) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return strings.Join(quoted, ", ")
}
