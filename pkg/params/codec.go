package params

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/araddon/dateparse"
)

// Codec converts between a parameter's native type and its query string form.
type Codec[T any] struct {
	// Kind tags parameters registered with this codec.
	Kind Kind

	// Parse converts a raw query string value into T.
	Parse func(raw string) (T, error)

	// Format converts T into its canonical query string form.
	// If nil, a generic textual conversion is used.
	Format func(T) string
}

// Range is an inclusive pair of values, as produced by range sliders.
type Range[T any] struct {
	Lo T
	Hi T
}

// NewRange builds a Range from its two bounds.
func NewRange[T any](lo, hi T) Range[T] {
	return Range[T]{Lo: lo, Hi: hi}
}

// String renders the range in display form, e.g. "(10, 20)".
func (r Range[T]) String() string {
	return "(" + displayValue(r.Lo) + ", " + displayValue(r.Hi) + ")"
}

// Built-in codecs, one per Kind.
var (
	BoolCodec = Codec[bool]{Kind: KindBool, Parse: parseBool, Format: strconv.FormatBool}

	IntCodec = Codec[int]{Kind: KindInt, Parse: parseInt, Format: strconv.Itoa}

	FloatCodec = Codec[float64]{Kind: KindFloat, Parse: parseFloat, Format: formatFloat}

	StringCodec = Codec[string]{
		Kind:   KindString,
		Parse:  func(raw string) (string, error) { return raw, nil },
		Format: func(s string) string { return s },
	}

	DateCodec = Codec[civil.Date]{Kind: KindDate, Parse: parseDate, Format: civil.Date.String}

	IntRangeCodec   = rangeCodec(KindIntRange, parseInt, strconv.Itoa)
	FloatRangeCodec = rangeCodec(KindFloatRange, parseFloat, formatFloat)
	DateRangeCodec  = rangeCodec(KindDateRange, parseDate, civil.Date.String)

	// List items are not escaped: an item holding a comma or a single quote
	// does not survive a round trip.
	StringListCodec = listCodec(KindStringList, unquoted, quoted)
	BoolListCodec   = listCodec(KindBoolList, parseBool, strconv.FormatBool)
)

var errEmptyValue = errors.New("empty value")

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "t", "y", "on", "1":
		return true, nil
	case "false", "no", "f", "n", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", raw)
}

func parseInt(raw string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(raw))
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}

func parseDate(raw string) (civil.Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return civil.Date{}, errEmptyValue
	}
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(t), nil
}

// formatFloat writes the shortest representation that parses back to f,
// keeping a ".0" suffix on integral values so they still read as floats.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) || strings.ContainsAny(s, ".eE") {
		return s
	}
	return s + ".0"
}

func unquoted(raw string) (string, error) { return raw, nil }

func quoted(s string) string { return "'" + s + "'" }

// splitSequence strips one optional bracket or parenthesis from each end of
// raw, splits on commas and cleans each element of whitespace and one pair of
// single quotes. Empty content yields no elements.
func splitSequence(raw string) []string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "(") || strings.HasPrefix(s, "[") {
		s = s[1:]
	}
	if strings.HasSuffix(s, ")") || strings.HasSuffix(s, "]") {
		s = s[:len(s)-1]
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "'")
		part = strings.TrimSuffix(part, "'")
		parts[i] = part
	}
	return parts
}

func rangeCodec[T any](kind Kind, parse func(string) (T, error), format func(T) string) Codec[Range[T]] {
	return Codec[Range[T]]{
		Kind: kind,
		Parse: func(raw string) (Range[T], error) {
			parts := splitSequence(raw)
			if len(parts) != 2 {
				return Range[T]{}, fmt.Errorf("a range needs exactly 2 elements, got %d", len(parts))
			}
			lo, err := parse(parts[0])
			if err != nil {
				return Range[T]{}, fmt.Errorf("range start: %w", err)
			}
			hi, err := parse(parts[1])
			if err != nil {
				return Range[T]{}, fmt.Errorf("range end: %w", err)
			}
			return Range[T]{Lo: lo, Hi: hi}, nil
		},
		Format: func(r Range[T]) string {
			return "(" + format(r.Lo) + "," + format(r.Hi) + ")"
		},
	}
}

func listCodec[T any](kind Kind, parse func(string) (T, error), format func(T) string) Codec[[]T] {
	return Codec[[]T]{
		Kind: kind,
		Parse: func(raw string) ([]T, error) {
			parts := splitSequence(raw)
			out := make([]T, 0, len(parts))
			for i, part := range parts {
				v, err := parse(part)
				if err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				out = append(out, v)
			}
			return out, nil
		},
		Format: func(values []T) string {
			parts := make([]string, len(values))
			for i, v := range values {
				parts[i] = format(v)
			}
			return "[" + strings.Join(parts, ", ") + "]"
		},
	}
}

// serializer adapts the codec's Format to an untyped value. Values of another
// type, which Update does not reject, fall back to the textual form.
func (c Codec[T]) serializer() func(any) string {
	if c.Format == nil {
		return formatText
	}
	return func(v any) string {
		if t, ok := v.(T); ok {
			return c.Format(t)
		}
		return formatText(v)
	}
}

func (c Codec[T]) parser() func(string) (any, error) {
	return func(raw string) (any, error) {
		v, err := c.parse(raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func (c Codec[T]) parse(raw string) (T, error) {
	if c.Parse == nil {
		var zero T
		return zero, fmt.Errorf("no parser for kind %s", c.Kind)
	}
	return c.Parse(raw)
}

// formatText is the generic textual conversion used when no serializer is
// given.
func formatText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// displayValue renders v for Parameter.String.
func displayValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return val
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case []string:
		parts := make([]string, len(val))
		for i, s := range val {
			parts[i] = quoted(s)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []bool:
		parts := make([]string, len(val))
		for i, b := range val {
			parts[i] = displayValue(b)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
