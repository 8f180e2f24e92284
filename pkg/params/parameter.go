package params

import "fmt"

// Parameter stores the default, current value and export state of one
// page parameter.
type Parameter struct {
	// Key names the parameter. It doubles as the identity of the widget
	// bound to it.
	Key string

	// Default is the value chosen at registration: the caller's fallback, or
	// the value parsed from the query string when one was present.
	Default any

	// Value is the current value. It equals Default until Update is called.
	Value any

	// Touched marks the parameter for export in partial mode. It is set when
	// the value came from the query string or after the first Update.
	Touched bool

	// Kind is the type tag the parameter was registered with.
	Kind Kind

	serialize func(any) string
	parse     func(string) (any, error)
}

// ParameterOption configures a Parameter at construction.
type ParameterOption func(*Parameter)

// WithTouched sets the initial touched flag.
func WithTouched(touched bool) ParameterOption {
	return func(p *Parameter) {
		p.Touched = touched
	}
}

// WithSerializer overrides the generic textual conversion used on export.
func WithSerializer(fn func(any) string) ParameterOption {
	return func(p *Parameter) {
		if fn != nil {
			p.serialize = fn
		}
	}
}

// WithParser sets the decoder used for raw widget values.
func WithParser(fn func(string) (any, error)) ParameterOption {
	return func(p *Parameter) {
		p.parse = fn
	}
}

// WithKind sets the parameter's type tag.
func WithKind(kind Kind) ParameterOption {
	return func(p *Parameter) {
		p.Kind = kind
	}
}

// NewParameter creates an untouched parameter whose value equals its default.
func NewParameter(key string, defaultValue any, opts ...ParameterOption) *Parameter {
	p := &Parameter{
		Key:       key,
		Default:   defaultValue,
		Value:     defaultValue,
		serialize: formatText,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Update overrides the current value and flags the parameter as touched so it
// is embedded in the query string. The value is not validated.
func (p *Parameter) Update(value any) {
	p.Value = value
	p.Touched = true
}

// Serialize returns the query string form of the current value.
func (p *Parameter) Serialize() string {
	return p.serialize(p.Value)
}

// Parse decodes a raw widget value into the parameter's native type.
// Parameters without a parser take raw text verbatim.
func (p *Parameter) Parse(raw string) (any, error) {
	if p.parse == nil {
		return raw, nil
	}
	return p.parse(raw)
}

// String renders default, value and touched state, in that order.
func (p *Parameter) String() string {
	return fmt.Sprintf("Parameter(default=%s,value=%s,touched=%s)",
		displayValue(p.Default), displayValue(p.Value), displayValue(p.Touched))
}
