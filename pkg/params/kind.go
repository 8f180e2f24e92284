package params

import (
	"fmt"
	"strings"
)

// Kind identifies the native type a parameter is registered with.
type Kind int

const (
	// KindCustom is used for parameters registered through Register with a
	// caller-supplied codec.
	KindCustom Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindDate
	KindIntRange
	KindFloatRange
	KindDateRange
	KindStringList
	KindBoolList
)

var kindNames = map[Kind]string{
	KindCustom:     "custom",
	KindBool:       "bool",
	KindInt:        "int",
	KindFloat:      "float",
	KindString:     "string",
	KindDate:       "date",
	KindIntRange:   "int_range",
	KindFloatRange: "float_range",
	KindDateRange:  "date_range",
	KindStringList: "string_list",
	KindBoolList:   "bool_list",
}

// Accepted spellings beyond the canonical names.
var kindAliases = map[string]Kind{
	"boolean": KindBool,
	"integer": KindInt,
	"str":     KindString,
}

// String returns the canonical name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a kind name as written in configuration files.
// Names are case-insensitive and dashes are treated as underscores.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if k, ok := kindAliases[normalized]; ok {
		return k, nil
	}
	for k, n := range kindNames {
		if n == normalized && k != KindCustom {
			return k, nil
		}
	}
	return KindCustom, fmt.Errorf("params: unknown parameter kind %q", name)
}

// Kinds returns the built-in kinds in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindBool, KindInt, KindFloat, KindString, KindDate,
		KindIntRange, KindFloatRange, KindDateRange,
		KindStringList, KindBoolList,
	}
}
