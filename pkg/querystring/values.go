// Package querystring models the address bar's query string for a page.
//
// Values is the store the params registry reads on first load and rewrites
// on every export. Navigator wraps it for live connections so each rewrite
// is also pushed to the browser.
package querystring

import (
	"net/url"
	"sort"
	"sync"
)

// Values is an in-memory query string. Writes replace the whole set of
// keys; there is no per-key merge. Values is safe for concurrent use.
type Values struct {
	mu     sync.RWMutex
	values url.Values
}

// New returns a store holding a copy of values.
func New(values url.Values) *Values {
	return &Values{values: cloneValues(values)}
}

// Parse returns a store for a raw query string, with or without the
// leading "?".
func Parse(rawQuery string) (*Values, error) {
	if len(rawQuery) > 0 && rawQuery[0] == '?' {
		rawQuery = rawQuery[1:]
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	return &Values{values: values}, nil
}

// GetAll returns a copy of every key with all of its values.
func (v *Values) GetAll() url.Values {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return cloneValues(v.values)
}

// Get returns the first value for key.
func (v *Values) Get(key string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	vals := v.values[key]
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// SetAll replaces the entire query string with one value per key.
func (v *Values) SetAll(values map[string]string) {
	next := make(url.Values, len(values))
	for k, val := range values {
		next[k] = []string{val}
	}
	v.mu.Lock()
	v.values = next
	v.mu.Unlock()
}

// Encode returns the query string in URL-encoded form sorted by key, without
// a leading "?".
func (v *Values) Encode() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values.Encode()
}

// Keys returns the keys present, sorted.
func (v *Values) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneValues(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for k, vals := range values {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
