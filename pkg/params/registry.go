package params

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"cloud.google.com/go/civil"
)

// Reserved session state names.
const (
	// StorageKey holds the registry's parameter table.
	StorageKey = "_parameters"

	// ExportAllKey holds the export-all flag. A checkbox widget bound with
	// this key toggles between partial and full export.
	ExportAllKey = "_parameters_set_all"
)

// SessionState is the per-session key/value store shared with the widget
// toolkit. session.State implements it.
type SessionState interface {
	Contains(name string) bool
	Get(name string) any
	Set(name string, value any)
}

// QueryStore is the address bar's query string. Each key may carry several
// values; only the first is used. SetAll replaces the entire query string.
type QueryStore interface {
	GetAll() url.Values
	SetAll(values map[string]string)
}

// table is the session-lifetime parameter storage, kept in registration order.
type table struct {
	order []string
	byKey map[string]*Parameter
}

func newTable() *table {
	return &table{byKey: make(map[string]*Parameter)}
}

func (t *table) get(key string) (*Parameter, bool) {
	p, ok := t.byKey[key]
	return p, ok
}

func (t *table) put(p *Parameter) {
	if _, ok := t.byKey[p.Key]; !ok {
		t.order = append(t.order, p.Key)
	}
	t.byKey[p.Key] = p
}

// Registry connects page parameters to the session state and the URL query
// string. A Registry is a capability bound to one session; it is cheap to
// create and is normally rebuilt on every render pass, while the parameters
// themselves live in the session state.
//
// A Registry is not safe for concurrent use. Callers serialize render passes
// per session.
type Registry struct {
	state    SessionState
	query    QueryStore
	table    *table
	logger   *slog.Logger
	observer Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver sets the activity observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// New binds a registry to a session. The parameter table is created in the
// session state on first use and reused by every later call for the same
// session.
func New(state SessionState, query QueryStore, opts ...Option) (*Registry, error) {
	if state == nil {
		return nil, errors.New("params: nil session state")
	}
	if query == nil {
		return nil, errors.New("params: nil query store")
	}

	r := &Registry{
		state:    state,
		query:    query,
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "params")

	if state.Contains(StorageKey) {
		t, ok := state.Get(StorageKey).(*table)
		if !ok {
			return nil, fmt.Errorf("%w: %q holds %T", ErrCorruptState, StorageKey, state.Get(StorageKey))
		}
		r.table = t
	} else {
		r.table = newTable()
		state.Set(StorageKey, r.table)
	}
	if !state.Contains(ExportAllKey) {
		state.Set(ExportAllKey, false)
	}
	return r, nil
}

// Register is the generic registration core. If key is already registered
// the existing parameter is returned unchanged. Otherwise the parameter is
// initialised from the query string when present (and flagged as touched),
// or from defaultValue. A query string value that fails to parse returns a
// *ConversionError and registers nothing.
func Register[T any](r *Registry, key string, defaultValue T, codec Codec[T]) (*Parameter, error) {
	if p, ok := r.table.get(key); ok {
		return p, nil
	}

	opts := []ParameterOption{
		WithKind(codec.Kind),
		WithSerializer(codec.serializer()),
		WithParser(codec.parser()),
	}

	raw, fromQuery := r.queryValue(key)
	var p *Parameter
	if fromQuery {
		v, err := codec.parse(raw)
		if err != nil {
			r.observer.ConversionFailed(key, codec.Kind)
			r.logger.Warn("query string value rejected",
				"key", key, "kind", codec.Kind.String(), "raw", raw, "error", err)
			return nil, &ConversionError{Key: key, Kind: codec.Kind, Raw: raw, Err: err}
		}
		p = NewParameter(key, v, append(opts, WithTouched(true))...)
	} else {
		p = NewParameter(key, defaultValue, opts...)
	}

	r.table.put(p)
	r.observer.Registered(key, codec.Kind, fromQuery)
	r.logger.Debug("parameter registered",
		"key", key, "kind", codec.Kind.String(), "from_query", fromQuery)
	return p, nil
}

// RegisterBool registers a boolean parameter.
func (r *Registry) RegisterBool(key string, defaultValue bool) (*Parameter, error) {
	return Register(r, key, defaultValue, BoolCodec)
}

// RegisterInt registers an integer parameter.
func (r *Registry) RegisterInt(key string, defaultValue int) (*Parameter, error) {
	return Register(r, key, defaultValue, IntCodec)
}

// RegisterFloat registers a floating point parameter.
func (r *Registry) RegisterFloat(key string, defaultValue float64) (*Parameter, error) {
	return Register(r, key, defaultValue, FloatCodec)
}

// RegisterString registers a string parameter. Query string values are used
// verbatim.
func (r *Registry) RegisterString(key string, defaultValue string) (*Parameter, error) {
	return Register(r, key, defaultValue, StringCodec)
}

// RegisterDate registers a calendar date parameter.
func (r *Registry) RegisterDate(key string, defaultValue civil.Date) (*Parameter, error) {
	return Register(r, key, defaultValue, DateCodec)
}

// RegisterIntRange registers an integer range parameter.
func (r *Registry) RegisterIntRange(key string, defaultValue Range[int]) (*Parameter, error) {
	return Register(r, key, defaultValue, IntRangeCodec)
}

// RegisterFloatRange registers a floating point range parameter.
func (r *Registry) RegisterFloatRange(key string, defaultValue Range[float64]) (*Parameter, error) {
	return Register(r, key, defaultValue, FloatRangeCodec)
}

// RegisterDateRange registers a date range parameter.
func (r *Registry) RegisterDateRange(key string, defaultValue Range[civil.Date]) (*Parameter, error) {
	return Register(r, key, defaultValue, DateRangeCodec)
}

// RegisterStringList registers a list of strings.
func (r *Registry) RegisterStringList(key string, defaultValue []string) (*Parameter, error) {
	return Register(r, key, defaultValue, StringListCodec)
}

// RegisterBoolList registers a list of booleans.
func (r *Registry) RegisterBoolList(key string, defaultValue []bool) (*Parameter, error) {
	return Register(r, key, defaultValue, BoolListCodec)
}

// RegisterKind registers a parameter from a type tag and a default written in
// query string form, as found in configuration files. An unparseable default
// is reported as a *ConversionError.
func (r *Registry) RegisterKind(key string, kind Kind, rawDefault string) (*Parameter, error) {
	switch kind {
	case KindBool:
		return registerRaw(r, key, rawDefault, BoolCodec)
	case KindInt:
		return registerRaw(r, key, rawDefault, IntCodec)
	case KindFloat:
		return registerRaw(r, key, rawDefault, FloatCodec)
	case KindString:
		return registerRaw(r, key, rawDefault, StringCodec)
	case KindDate:
		return registerRaw(r, key, rawDefault, DateCodec)
	case KindIntRange:
		return registerRaw(r, key, rawDefault, IntRangeCodec)
	case KindFloatRange:
		return registerRaw(r, key, rawDefault, FloatRangeCodec)
	case KindDateRange:
		return registerRaw(r, key, rawDefault, DateRangeCodec)
	case KindStringList:
		return registerRaw(r, key, rawDefault, StringListCodec)
	case KindBoolList:
		return registerRaw(r, key, rawDefault, BoolListCodec)
	}
	return nil, fmt.Errorf("params: cannot register %q with kind %s", key, kind)
}

func registerRaw[T any](r *Registry, key, rawDefault string, codec Codec[T]) (*Parameter, error) {
	if p, ok := r.table.get(key); ok {
		return p, nil
	}
	def, err := codec.parse(rawDefault)
	if err != nil {
		return nil, &ConversionError{Key: key, Kind: codec.Kind, Raw: rawDefault, Err: err}
	}
	return Register(r, key, def, codec)
}

// Lookup returns the parameter registered under key.
func (r *Registry) Lookup(key string) (*Parameter, error) {
	p, ok := r.table.get(key)
	if !ok {
		return nil, &LookupError{Key: key, Source: "registry"}
	}
	return p, nil
}

// ValueOf returns the current value of key as T.
func ValueOf[T any](r *Registry, key string) (T, error) {
	var zero T
	p, err := r.Lookup(key)
	if err != nil {
		return zero, err
	}
	v, ok := p.Value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T, not %T", ErrTypeMismatch, key, p.Value, zero)
	}
	return v, nil
}

// Update sets the current value of a registered parameter.
func (r *Registry) Update(key string, value any) error {
	p, err := r.Lookup(key)
	if err != nil {
		return err
	}
	p.Update(value)
	return nil
}

// UpdateFromExternal copies the widget value stored in the session state
// under key into the parameter. Bind it to a widget's change notification.
func (r *Registry) UpdateFromExternal(key string) error {
	if !r.state.Contains(key) {
		return &LookupError{Key: key, Source: "session"}
	}
	return r.Update(key, r.state.Get(key))
}

// Decode converts a raw widget value for key into the parameter's native
// type without changing any state.
func (r *Registry) Decode(key, raw string) (any, error) {
	p, err := r.Lookup(key)
	if err != nil {
		return nil, err
	}
	v, err := p.Parse(raw)
	if err != nil {
		return nil, &ConversionError{Key: key, Kind: p.Kind, Raw: raw, Err: err}
	}
	return v, nil
}

// Export rewrites the query string from the current parameters. A parameter
// is written when export-all is set or when it has been touched. The write
// replaces the whole query string; it never merges with what was there.
// The written mapping is returned.
func (r *Registry) Export() map[string]string {
	all := r.IsExportAll()
	values := make(map[string]string, len(r.table.order))
	for _, key := range r.table.order {
		p := r.table.byKey[key]
		if all || p.Touched {
			values[key] = p.Serialize()
		}
	}
	r.query.SetAll(values)
	r.observer.Exported(len(values))
	r.logger.Debug("query string exported", "keys", len(values), "export_all", all)
	return values
}

// IsExportAll reports whether every parameter is exported, rather than only
// touched ones.
func (r *Registry) IsExportAll() bool {
	all, _ := r.state.Get(ExportAllKey).(bool)
	return all
}

// SetExportAll sets the session's export mode.
func (r *Registry) SetExportAll(all bool) {
	r.state.Set(ExportAllKey, all)
}

// Snapshot returns all parameters keyed by name.
func (r *Registry) Snapshot() map[string]*Parameter {
	out := make(map[string]*Parameter, len(r.table.byKey))
	for k, p := range r.table.byKey {
		out[k] = p
	}
	return out
}

// Keys returns the registered keys in registration order.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.table.order...)
}

// Len returns the number of registered parameters.
func (r *Registry) Len() int {
	return len(r.table.order)
}

func (r *Registry) queryValue(key string) (string, bool) {
	values := r.query.GetAll()[key]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}
