// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tags is a free-form key/value bag that remembers insertion order.
//
// Keys are lower-cased and trimmed, values are trimmed. The normalization is
// applied when a tag enters the bag so every comparison downstream sees the
// same canonical form. Empty keys are dropped. The zero value is ready to use.
type Tags struct {
	keys   []string
	values map[string]string
}

// NormalizeKey returns the canonical form of a tag key.
func NormalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// NewTags builds Tags from alternating key, value arguments.
func NewTags(kv ...string) Tags {
	var t Tags
	for i := 0; i+1 < len(kv); i += 2 {
		t.Set(kv[i], kv[i+1])
	}

	return t
}

// TagsFromMap builds Tags from m, sorting keys so the result does not depend
// on map iteration order.
func TagsFromMap(m map[string]string) Tags {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var t Tags
	for _, k := range keys {
		t.Set(k, m[k])
	}

	return t
}

// Set stores value under key. Setting an existing key replaces the value but
// keeps its original position.
func (t *Tags) Set(key, value string) {
	key = NormalizeKey(key)
	if key == "" {
		return
	}

	if t.values == nil {
		t.values = make(map[string]string)
	}

	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}

	t.values[key] = strings.TrimSpace(value)
}

// Get returns the value for key.
func (t Tags) Get(key string) (string, bool) {
	v, ok := t.values[NormalizeKey(key)]

	return v, ok
}

// Has reports whether key is present.
func (t Tags) Has(key string) bool {
	_, ok := t.Get(key)

	return ok
}

// Len returns the number of tags.
func (t Tags) Len() int {
	return len(t.keys)
}

// Keys returns the keys in insertion order.
func (t Tags) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Each calls fn for every tag in order.
func (t Tags) Each(fn func(key, value string)) {
	for _, k := range t.keys {
		fn(k, t.values[k])
	}
}

// Clone returns an independent copy.
func (t Tags) Clone() Tags {
	var c Tags
	t.Each(c.Set)

	return c
}

// Map returns the tags as a plain map.
func (t Tags) Map() map[string]string {
	m := make(map[string]string, len(t.keys))
	t.Each(func(k, v string) { m[k] = v })

	return m
}

// MarshalJSON encodes the tags as an object, keys in insertion order.
func (t Tags) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, k := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}

		vb, err := json.Marshal(t.values[k])
		if err != nil {
			return nil, err
		}

		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, preserving the order in the document.
// Non-string scalar values are kept in their JSON text form.
func (t *Tags) UnmarshalJSON(data []byte) error {
	*t = Tags{}

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("tags: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}

		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			if bytes.Equal(raw, []byte("null")) {
				continue
			}

			s = string(raw)
		}

		t.Set(key, s)
	}

	_, err = dec.Token()

	return err
}
