// Package jsonfield decodes loosely shaped JSON from collaborating services.
//
// Every lookup takes an ordered list of candidate field names; the first
// present, non-null value wins. Callers state the fallbacks explicitly rather
// than probing maps ad hoc.
package jsonfield

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrNotObject = errors.New("jsonfield: not a json object")

// Object is one decoded JSON object.
type Object map[string]json.RawMessage

// Parse decodes data as an object.
func Parse(data []byte) (Object, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrNotObject
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Unwrap returns the object stored under the first present envelope key,
// or the object itself when none is present.
func (o Object) Unwrap(envelopeKeys ...string) Object {
	if inner, ok := o.Object(envelopeKeys...); ok {
		return inner
	}
	return o
}

func (o Object) lookup(names []string) (json.RawMessage, bool) {
	for _, name := range names {
		raw, ok := o[name]
		if !ok {
			continue
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		return trimmed, true
	}
	return nil, false
}

// Has reports whether any of the names carries a non-null value.
func (o Object) Has(names ...string) bool {
	_, ok := o.lookup(names)
	return ok
}

// String returns the first non-empty string among names. Numbers are
// rendered in their JSON form.
func (o Object) String(names ...string) string {
	for _, name := range names {
		raw, ok := o.lookup([]string{name})
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		if raw[0] != '{' && raw[0] != '[' && raw[0] != '"' {
			return string(raw)
		}
	}
	return ""
}

// StringOr is String with a default.
func (o Object) StringOr(def string, names ...string) string {
	if s := o.String(names...); s != "" {
		return s
	}
	return def
}

// Int accepts numbers and numeric strings.
func (o Object) Int(names ...string) (int, bool) {
	for _, name := range names {
		raw, ok := o.lookup([]string{name})
		if !ok {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if v, err := strconv.Atoi(n.String()); err == nil {
				return v, true
			}
			if f, err := n.Float64(); err == nil {
				return int(f), true
			}
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// Decimal accepts numbers and numeric strings.
func (o Object) Decimal(names ...string) (decimal.Decimal, bool) {
	for _, name := range names {
		raw, ok := o.lookup([]string{name})
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			raw = []byte(strings.TrimSpace(s))
		}
		if d, err := decimal.NewFromString(string(raw)); err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

// Bool accepts booleans and the strings "true"/"false".
func (o Object) Bool(names ...string) (bool, bool) {
	for _, name := range names {
		raw, ok := o.lookup([]string{name})
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return v, true
			}
		}
	}
	return false, false
}

func (o Object) Object(names ...string) (Object, bool) {
	for _, name := range names {
		raw, ok := o.lookup([]string{name})
		if !ok || raw[0] != '{' {
			continue
		}
		var inner Object
		if err := json.Unmarshal(raw, &inner); err == nil {
			return inner, true
		}
	}
	return nil, false
}

// Objects returns the first array-of-objects among names. Non-object
// elements are skipped.
func (o Object) Objects(names ...string) ([]Object, bool) {
	for _, name := range names {
		raw, ok := o.lookup([]string{name})
		if !ok || raw[0] != '[' {
			continue
		}
		out, err := ParseArray(raw)
		if err == nil {
			return out, true
		}
	}
	return nil, false
}

// Strings returns the first array among names, keeping string elements and
// the first string field of object elements found under fieldNames.
func (o Object) Strings(names []string, fieldNames ...string) []string {
	for _, name := range names {
		raw, ok := o.lookup([]string{name})
		if !ok || raw[0] != '[' {
			continue
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			continue
		}
		return collectStrings(elems, fieldNames)
	}
	return nil
}

// ParseArray decodes a JSON array keeping only its object elements.
func ParseArray(data []byte) ([]Object, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, err
	}
	out := make([]Object, 0, len(elems))
	for _, elem := range elems {
		obj, err := Parse(elem)
		if err != nil {
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}

// ParseStrings decodes an array of strings or objects into names.
func ParseStrings(data []byte, fieldNames ...string) ([]string, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, err
	}
	return collectStrings(elems, fieldNames), nil
}

func collectStrings(elems []json.RawMessage, fieldNames []string) []string {
	out := make([]string, 0, len(elems))
	for _, elem := range elems {
		var s string
		if err := json.Unmarshal(elem, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		obj, err := Parse(elem)
		if err != nil {
			continue
		}
		if s := obj.String(fieldNames...); s != "" {
			out = append(out, s)
		}
	}
	return out
}
