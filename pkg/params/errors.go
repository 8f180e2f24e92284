package params

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRegistered matches every *LookupError.
	ErrNotRegistered = errors.New("parameter not registered")

	// ErrConversion matches every *ConversionError.
	ErrConversion = errors.New("parameter conversion failed")

	// ErrTypeMismatch is returned by ValueOf when the stored value has
	// another type than requested.
	ErrTypeMismatch = errors.New("parameter type mismatch")

	// ErrCorruptState is returned by New when the session slot reserved for
	// the registry holds a foreign value.
	ErrCorruptState = errors.New("parameter storage in session state is corrupt")
)

// LookupError reports access to a key that is not available.
type LookupError struct {
	Key string

	// Source is "registry" for unregistered parameters and "session" when
	// the session state has no widget value for the key.
	Source string
}

func (e *LookupError) Error() string {
	if e.Source == "session" {
		return fmt.Sprintf("params: no session value for %q", e.Key)
	}
	return fmt.Sprintf("params: parameter %q is not registered", e.Key)
}

// Is reports whether target is ErrNotRegistered.
func (e *LookupError) Is(target error) bool {
	return target == ErrNotRegistered
}

// ConversionError reports a raw value that could not be converted to the
// parameter's type.
type ConversionError struct {
	Key  string
	Kind Kind
	Raw  string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("params: cannot convert %q for %q to %s: %v", e.Raw, e.Key, e.Kind, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConversion.
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}
