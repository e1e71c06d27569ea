package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/partner"
	"github.com/shopspring/decimal"
)

// OpFunc is a single field transformation. It must be pure: the same
// value and args always produce the same output.
type OpFunc func(value string, args map[string]string) (string, error)

// FieldTransformer applies field mappings using a registry of named
// operations. Additional operations can be registered before use;
// registration is not safe for concurrent use with Transform.
type FieldTransformer struct {
	ops map[string]OpFunc
}

// NewFieldTransformer creates a transformer with the built-in operations
func NewFieldTransformer() *FieldTransformer {
	t := &FieldTransformer{ops: make(map[string]OpFunc)}
	t.Register("uppercase", opUppercase)
	t.Register("lowercase", opLowercase)
	t.Register("trim", opTrim)
	t.Register("unit_convert", opUnitConvert)
	t.Register("enum_map", opEnumMap)
	t.Register("date_format", opDateFormat)
	t.Register("prefix", opPrefix)
	t.Register("suffix", opSuffix)
	return t
}

// Register adds or replaces a named operation
func (t *FieldTransformer) Register(name string, op OpFunc) {
	t.ops[name] = op
}

// Transform applies every mapping to the record and returns a new record
// keyed by target field names. The input record is never modified. A
// missing source field falls back to the mapping's default when one is
// set, fails the record when the mapping is required, and is skipped
// otherwise.
func (t *FieldTransformer) Transform(record integration.Record, mappings []partner.FieldMapping) (integration.Record, error) {
	out := make(integration.Record, len(mappings))

	for _, m := range mappings {
		value, ok := record[m.SourceField]
		if !ok {
			if m.DefaultValue != nil {
				value = *m.DefaultValue
			} else if m.Required {
				return nil, integration.NewMappingError(m.SourceField, "required field is missing")
			} else {
				continue
			}
		}

		if m.Transformation != "" {
			op, found := t.ops[m.Transformation]
			if !found {
				return nil, integration.NewMappingError(m.SourceField,
					fmt.Sprintf("unknown transformation %q", m.Transformation))
			}
			transformed, err := op(value, m.TransformArgs)
			if err != nil {
				return nil, integration.NewMappingError(m.SourceField, err.Error())
			}
			value = transformed
		}

		out[m.TargetField] = value
	}

	return out, nil
}

func opUppercase(value string, _ map[string]string) (string, error) {
	return strings.ToUpper(value), nil
}

func opLowercase(value string, _ map[string]string) (string, error) {
	return strings.ToLower(value), nil
}

func opTrim(value string, _ map[string]string) (string, error) {
	return strings.TrimSpace(value), nil
}

// opUnitConvert multiplies a numeric value by the "factor" argument.
// Decimal arithmetic keeps conversions exact for currency and dosage
// fields.
func opUnitConvert(value string, args map[string]string) (string, error) {
	factorStr, ok := args["factor"]
	if !ok {
		return "", fmt.Errorf("unit_convert requires a factor argument")
	}
	factor, err := decimal.NewFromString(factorStr)
	if err != nil {
		return "", fmt.Errorf("invalid conversion factor %q", factorStr)
	}
	v, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("value %q is not numeric", value)
	}
	return v.Mul(factor).String(), nil
}

// opEnumMap looks the value up in the args table. Values absent from the
// table fail the record so silent enum drift is caught at the boundary.
func opEnumMap(value string, args map[string]string) (string, error) {
	mapped, ok := args[value]
	if !ok {
		return "", fmt.Errorf("value %q has no enum mapping", value)
	}
	return mapped, nil
}

// opDateFormat re-renders a timestamp from the "from" layout to the "to"
// layout. Both default to RFC 3339.
func opDateFormat(value string, args map[string]string) (string, error) {
	from := args["from"]
	if from == "" {
		from = time.RFC3339
	}
	to := args["to"]
	if to == "" {
		to = time.RFC3339
	}
	parsed, err := time.Parse(from, value)
	if err != nil {
		return "", fmt.Errorf("value %q does not match layout %q", value, from)
	}
	return parsed.Format(to), nil
}

func opPrefix(value string, args map[string]string) (string, error) {
	return args["value"] + value, nil
}

func opSuffix(value string, args map[string]string) (string, error) {
	return value + args["value"], nil
}

var _ integration.Transformer = (*FieldTransformer)(nil)
