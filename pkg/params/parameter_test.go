package params

import (
	"strings"
	"testing"

	"cloud.google.com/go/civil"
)

func TestNewParameter(t *testing.T) {
	p := NewParameter("foo", 5)
	if p.Key != "foo" || p.Default != 5 || p.Value != 5 || p.Touched {
		t.Fatalf("NewParameter() = %+v", p)
	}
	if got := p.Serialize(); got != "5" {
		t.Errorf("Serialize() = %q", got)
	}
	if v, err := p.Parse("raw"); err != nil || v != "raw" {
		t.Errorf("Parse() without parser = %v, %v", v, err)
	}

	touched := NewParameter("bar", "x", WithTouched(true))
	if !touched.Touched {
		t.Error("WithTouched(true) ignored")
	}
}

func TestParameterUpdate(t *testing.T) {
	p := NewParameter("foo", 1)
	p.Update(2)
	p.Update(2)
	if p.Default != 1 || p.Value != 2 || !p.Touched {
		t.Fatalf("after Update: %+v", p)
	}

	// Update does not validate the type.
	p.Update("two")
	if p.Value != "two" {
		t.Fatalf("Value = %v", p.Value)
	}
	if got := p.Serialize(); got != "two" {
		t.Errorf("Serialize() = %q", got)
	}
}

func TestParameterSerializer(t *testing.T) {
	p := NewParameter("foo", []int{1, 2}, WithSerializer(func(v any) string {
		ints := v.([]int)
		parts := make([]string, len(ints))
		for i, n := range ints {
			parts[i] = strings.Repeat("I", n)
		}
		return strings.Join(parts, "|")
	}))
	if got := p.Serialize(); got != "I|II" {
		t.Errorf("Serialize() = %q", got)
	}
}

func TestParameterString(t *testing.T) {
	tests := []struct {
		name string
		p    *Parameter
		want string
	}{
		{"Untouched", NewParameter("a", 16), "Parameter(default=16,value=16,touched=False)"},
		{"Float", NewParameter("a", 5.0), "Parameter(default=5.0,value=5.0,touched=False)"},
		{"Date", NewParameter("a", civil.Date{Year: 2020, Month: 10, Day: 5}), "Parameter(default=2020-10-05,value=2020-10-05,touched=False)"},
		{"DateRange", NewParameter("a", NewRange(civil.Date{Year: 2021, Month: 11, Day: 1}, civil.Date{Year: 2021, Month: 11, Day: 3})),
			"Parameter(default=(2021-11-01, 2021-11-03),value=(2021-11-01, 2021-11-03),touched=False)"},
		{"EmptyList", NewParameter("a", []string{}), "Parameter(default=[],value=[],touched=False)"},
		{"Nil", NewParameter("a", nil), "Parameter(default=None,value=None,touched=False)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
